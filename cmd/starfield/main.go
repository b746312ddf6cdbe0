package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/starfield/internal/version"
)

const defaultDBPath = "starfield.db"

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	var err error
	switch command {
	case "solve":
		err = handleSolve(args)
	case "generate":
		err = handleGenerate(args)
	case "migrate":
		err = handleMigrate(args)
	case "serve":
		err = handleServe(args)
	case "version":
		fmt.Println(version.String())
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("%s: %v", command, err)
	}
}

func printUsage() {
	fmt.Println(`starfield - star detection for event-camera recordings

Usage: starfield <command> [options]

Commands:
  solve      Dewarp, threshold and segment an event file into star centroids
  generate   Write a synthetic drifting star field
  migrate    Manage the results database schema
  serve      Serve stored runs over HTTP
  version    Show build information
  help       Show this help message

Run 'starfield <command> -h' for the options of each command.

Examples:
  # Synthesise a field and solve it with the drift it was generated with
  starfield generate -out field.dat -vx 0.4 -vy -0.15
  starfield solve -in field.dat -vx 0.4 -vy -0.15 -png frame.png -report report.html

  # Estimate the drift, store the run and plate-solve against a local service
  starfield solve -in field.dat -estimate-velocity -db starfield.db -solver-url http://localhost:8000

  # Browse stored runs
  starfield serve -listen :8090 -db starfield.db`)
}

package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/starfield/internal/api"
	"github.com/banshee-data/starfield/internal/db"
)

func handleServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	listen := fs.String("listen", ":8090", "Listen address")
	dbPath := fs.String("db", defaultDBPath, "Results database")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if *listen == "" {
		return errors.New("listen address is required")
	}

	store, err := db.NewDB(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return api.NewServer(store).ListenAndServe(ctx, *listen)
}

// handleMigrate passes everything after the flags to the migrate runner,
// e.g. "starfield migrate -db runs.db up".
func handleMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dbPath := fs.String("db", defaultDBPath, "Results database")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			db.PrintMigrateHelp(os.Stdout)
			return nil
		}
		return err
	}
	return db.RunMigrateCommand(fs.Args(), *dbPath, os.Stdout)
}

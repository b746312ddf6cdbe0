package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/banshee-data/starfield/internal/aer"
	"github.com/banshee-data/starfield/internal/fsutil"
	"github.com/banshee-data/starfield/internal/security"
)

type generateOptions struct {
	Out   string
	Synth aer.SynthOptions
}

func parseGenerateFlags(args []string) (*generateOptions, error) {
	def := aer.DefaultSynthOptions()
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	out := fs.String("out", "", "Output event file (.dat, .csv, .pcap) (required)")
	width := fs.Uint("width", uint(def.Width), "Sensor width in pixels")
	height := fs.Uint("height", uint(def.Height), "Sensor height in pixels")
	stars := fs.Int("stars", def.Stars, "Number of stars")
	vx := fs.Float64("vx", def.VX, "Drift along x in pixels per second")
	vy := fs.Float64("vy", def.VY, "Drift along y in pixels per second")
	duration := fs.Duration("duration", time.Duration(def.Duration)*time.Microsecond, "Recording length")
	perStar := fs.Int("events-per-star", def.EventsPerStar, "Mean events per star")
	noise := fs.Int("noise", def.NoiseEvents, "Uniform background events")
	psf := fs.Float64("psf-sigma", def.PSFSigma, "Star spread in pixels")
	seed := fs.Uint64("seed", def.Seed, "Random seed")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *out == "" {
		return nil, errors.New("-out is required")
	}
	if err := security.ValidateOutputPath(*out, ".dat", ".csv", ".txt", ".pcap"); err != nil {
		return nil, err
	}
	if *width == 0 || *width > 0xffff || *height == 0 || *height > 0xffff {
		return nil, fmt.Errorf("sensor geometry %dx%d out of range", *width, *height)
	}
	if *duration <= 0 {
		return nil, fmt.Errorf("-duration must be positive, got %v", *duration)
	}
	if *stars < 0 || *perStar < 0 || *noise < 0 {
		return nil, errors.New("-stars, -events-per-star and -noise must be non-negative")
	}

	opts := def
	opts.Width = uint16(*width)
	opts.Height = uint16(*height)
	opts.Stars = *stars
	opts.VX = *vx
	opts.VY = *vy
	opts.Duration = uint64(duration.Microseconds())
	opts.EventsPerStar = *perStar
	opts.NoiseEvents = *noise
	opts.PSFSigma = *psf
	opts.Seed = *seed
	return &generateOptions{Out: *out, Synth: opts}, nil
}

func handleGenerate(args []string) error {
	opts, err := parseGenerateFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	return runGenerate(fsutil.OSFileSystem{}, opts, os.Stdout)
}

// runGenerate writes the synthetic stream and lists the anchored star
// positions a correct solve should recover.
func runGenerate(fsys fsutil.FileSystem, opts *generateOptions, out io.Writer) error {
	s, truth, err := aer.Synthesize(opts.Synth)
	if err != nil {
		return err
	}
	if err := aer.Save(fsys, opts.Out, s); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %d events (%dx%d, %.1fs, drift %.3f, %.3f px/s) to %s\n",
		s.Len(), s.Width, s.Height, float64(s.Duration())/1e6, opts.Synth.VX, opts.Synth.VY, opts.Out)
	for i, st := range truth {
		fmt.Fprintf(out, "  star %d at (%.2f, %.2f), %d events\n", i+1, st.X, st.Y, st.Events)
	}
	return nil
}

package aer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSynthesizeDeterministic(t *testing.T) {
	opts := DefaultSynthOptions()
	a, truthA, err := Synthesize(opts)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	b, truthB, err := Synthesize(opts)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed produced different streams (-a +b):\n%s", diff)
	}
	if diff := cmp.Diff(truthA, truthB); diff != "" {
		t.Errorf("same seed produced different truth (-a +b):\n%s", diff)
	}

	opts.Seed = 2
	c, _, err := Synthesize(opts)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if cmp.Equal(a.Events, c.Events) {
		t.Error("different seeds produced identical events")
	}
}

func TestSynthesizeShape(t *testing.T) {
	opts := DefaultSynthOptions()
	opts.Start = 1_000_000
	s, truth, err := Synthesize(opts)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("synthetic stream invalid: %v", err)
	}
	if s.Start() != opts.Start {
		t.Errorf("Start() = %d, want %d", s.Start(), opts.Start)
	}
	if s.Duration() != opts.Duration {
		t.Errorf("Duration() = %d, want %d", s.Duration(), opts.Duration)
	}
	if len(truth) != opts.Stars {
		t.Fatalf("got %d stars, want %d", len(truth), opts.Stars)
	}

	starEvents := 0
	for i, st := range truth {
		starEvents += st.Events
		if st.Events < opts.EventsPerStar/2 || st.Events > opts.EventsPerStar*3/2 {
			t.Errorf("star %d has %d events, outside [%d, %d]", i, st.Events, opts.EventsPerStar/2, opts.EventsPerStar*3/2)
		}
		for j := i + 1; j < len(truth); j++ {
			if dx, dy := st.X-truth[j].X, st.Y-truth[j].Y; dx*dx+dy*dy < opts.MinSeparation*opts.MinSeparation {
				t.Errorf("stars %d and %d closer than %.0f px", i, j, opts.MinSeparation)
			}
		}
	}
	if s.Len() != starEvents+opts.NoiseEvents {
		t.Errorf("Len() = %d, want %d", s.Len(), starEvents+opts.NoiseEvents)
	}
}

func TestSynthesizeStaticStarsStayPut(t *testing.T) {
	s, truth, err := Synthesize(SynthOptions{
		Width: 64, Height: 64, Stars: 1, Duration: 1000, EventsPerStar: 20, Seed: 7,
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	for _, e := range s.Events {
		if float64(e.X) != truth[0].X || float64(e.Y) != truth[0].Y {
			t.Fatalf("event %+v away from static star at (%.0f,%.0f)", e, truth[0].X, truth[0].Y)
		}
	}
}

func TestSynthesizeFieldTooSmall(t *testing.T) {
	_, _, err := Synthesize(SynthOptions{
		Width: 16, Height: 16, Stars: 1, VX: 10, Duration: 10_000_000, EventsPerStar: 10,
	})
	if err == nil {
		t.Error("expected error when drift exceeds the sensor")
	}
}

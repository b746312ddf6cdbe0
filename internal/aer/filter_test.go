package aer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterHotPixels(t *testing.T) {
	t.Parallel()

	s := &Stream{Width: 20, Height: 20}
	var ts uint64
	for i := 0; i < 50; i++ {
		x, y := uint16(i%20), uint16(i/20)
		for k := 0; k < 2; k++ {
			s.Events = append(s.Events, Event{T: ts, X: x, Y: y})
			ts++
		}
	}
	for k := 0; k < 500; k++ {
		s.Events = append(s.Events, Event{T: ts, X: 19, Y: 19, Polarity: true})
		ts++
	}

	filtered, removed := FilterHotPixels(s, 3)
	assert.Equal(t, 1, removed)
	require.Len(t, filtered.Events, 100)
	for _, e := range filtered.Events {
		assert.False(t, e.X == 19 && e.Y == 19, "hot pixel event survived: %+v", e)
	}
	assert.Len(t, s.Events, 600, "input must not be modified")
	assert.NoError(t, filtered.Validate())
}

func TestFilterHotPixelsDisabled(t *testing.T) {
	t.Parallel()

	s := &Stream{Width: 4, Height: 4, Events: []Event{{T: 1, X: 1, Y: 1}, {T: 2, X: 1, Y: 1}}}
	filtered, removed := FilterHotPixels(s, 0)
	assert.Equal(t, 0, removed)
	assert.Equal(t, s.Events, filtered.Events)

	filtered.Events[0].X = 3
	assert.Equal(t, uint16(1), s.Events[0].X, "disabled filter must still return a copy")
}

func TestFilterHotPixelsUniformField(t *testing.T) {
	t.Parallel()

	s := &Stream{Width: 4, Height: 4}
	for i := 0; i < 16; i++ {
		s.Events = append(s.Events, Event{T: uint64(i), X: uint16(i % 4), Y: uint16(i / 4)})
	}
	filtered, removed := FilterHotPixels(s, 1)
	assert.Equal(t, 0, removed)
	assert.Len(t, filtered.Events, 16)
}

func TestFilterNeighbourSupport(t *testing.T) {
	t.Parallel()

	s := &Stream{Width: 32, Height: 32, Events: []Event{
		{T: 0, X: 5, Y: 5},      // first event has no history
		{T: 10, X: 6, Y: 5},     // supported by (5,5)
		{T: 20, X: 15, Y: 15},   // isolated
		{T: 500, X: 5, Y: 6},    // neighbours too old
		{T: 505, X: 5, Y: 5},    // supported by (5,6) at 500
		{T: 2000, X: 31, Y: 31}, // corner, isolated
	}}

	filtered := FilterNeighbourSupport(s, 100)
	want := []Event{{T: 10, X: 6, Y: 5}, {T: 505, X: 5, Y: 5}}
	assert.Equal(t, want, filtered.Events)
}

func TestFilterNeighbourSupportIgnoresSamePixel(t *testing.T) {
	t.Parallel()

	s := &Stream{Width: 8, Height: 8, Events: []Event{
		{T: 0, X: 3, Y: 3},
		{T: 1, X: 3, Y: 3},
		{T: 2, X: 3, Y: 3},
	}}
	assert.Empty(t, FilterNeighbourSupport(s, 1000).Events)
	assert.Len(t, FilterNeighbourSupport(s, 0).Events, 3)
}

func TestFilterPolarity(t *testing.T) {
	t.Parallel()

	s := &Stream{Width: 4, Height: 4, Events: []Event{
		{T: 0, Polarity: true}, {T: 1}, {T: 2, Polarity: true},
	}}
	assert.Len(t, FilterPolarity(s, true).Events, 2)
	assert.Len(t, FilterPolarity(s, false).Events, 1)
}

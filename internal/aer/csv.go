package aer

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var csvHeader = []string{"t", "x", "y", "p"}

// ReadCSV decodes an event CSV with columns t,x,y,p. Leading "#" comment
// lines may declare the geometry as "# width=W height=H"; otherwise it is
// inferred from the events. Polarity accepts 0/1 or true/false.
func ReadCSV(r io.Reader) (*Stream, error) {
	br := bufio.NewReader(r)
	width, height, err := readCSVPreamble(br)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(br)
	cr.Comment = '#'
	cr.FieldsPerRecord = len(csvHeader)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var events []Event
	for row := 0; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", row, err)
		}
		if row == 0 && strings.EqualFold(rec[0], csvHeader[0]) {
			continue
		}
		e, err := parseCSVEvent(rec)
		if err != nil {
			return nil, fmt.Errorf("invalid CSV row %d: %w", row, err)
		}
		events = append(events, e)
	}

	if width == 0 || height == 0 {
		w, h, err := inferGeometry(events)
		if err != nil {
			return nil, err
		}
		width, height = w, h
	}
	return &Stream{Width: width, Height: height, Events: events}, nil
}

func readCSVPreamble(br *bufio.Reader) (width, height uint16, err error) {
	for {
		b, perr := br.Peek(1)
		if perr != nil || b[0] != '#' {
			return width, height, nil
		}
		line, rerr := br.ReadString('\n')
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return 0, 0, fmt.Errorf("failed to read CSV comment: %w", rerr)
		}
		for _, field := range strings.Fields(strings.TrimPrefix(line, "#")) {
			key, val, ok := strings.Cut(field, "=")
			if !ok {
				continue
			}
			switch strings.ToLower(key) {
			case "width":
				if width, err = parseDimension(val); err != nil {
					return 0, 0, fmt.Errorf("invalid CSV width: %w", err)
				}
			case "height":
				if height, err = parseDimension(val); err != nil {
					return 0, 0, fmt.Errorf("invalid CSV height: %w", err)
				}
			}
		}
	}
}

func parseCSVEvent(rec []string) (Event, error) {
	t, err := strconv.ParseUint(rec[0], 10, 64)
	if err != nil {
		return Event{}, fmt.Errorf("timestamp %q: %w", rec[0], err)
	}
	x, err := strconv.ParseUint(rec[1], 10, 16)
	if err != nil {
		return Event{}, fmt.Errorf("x %q: %w", rec[1], err)
	}
	y, err := strconv.ParseUint(rec[2], 10, 16)
	if err != nil {
		return Event{}, fmt.Errorf("y %q: %w", rec[2], err)
	}
	p, err := strconv.ParseBool(rec[3])
	if err != nil {
		return Event{}, fmt.Errorf("polarity %q: %w", rec[3], err)
	}
	return Event{T: t, X: uint16(x), Y: uint16(y), Polarity: p}, nil
}

// WriteCSV encodes a stream as t,x,y,p rows preceded by a geometry comment.
func WriteCSV(w io.Writer, s *Stream) error {
	if _, err := fmt.Fprintf(w, "# width=%d height=%d\n", s.Width, s.Height); err != nil {
		return fmt.Errorf("failed to write CSV comment: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	rec := make([]string, len(csvHeader))
	for _, e := range s.Events {
		rec[0] = strconv.FormatUint(e.T, 10)
		rec[1] = strconv.FormatUint(uint64(e.X), 10)
		rec[2] = strconv.FormatUint(uint64(e.Y), 10)
		rec[3] = "0"
		if e.Polarity {
			rec[3] = "1"
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

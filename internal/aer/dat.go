package aer

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DAT layout constants for CD (contrast detection) event files: a text
// header of '%'-prefixed lines, a two-byte type/size preamble, then one
// 8-byte little-endian record per event.
const (
	datTypeCD     = 0x0C
	datEventSize  = 8
	datMaskX      = 0x3FFF
	datShiftY     = 14
	datShiftP     = 28
	datMaxCoord   = datMaskX
	datWrapPeriod = uint64(1) << 32
)

// ReadDAT decodes a CD event DAT stream. Geometry comes from the header
// ("Width"/"Height" lines or "geometry WxH"); when the header has none, it
// is inferred from the largest address seen. 32-bit timestamps that wrap
// are unwrapped into a monotonic 64-bit clock.
func ReadDAT(r io.Reader) (*Stream, error) {
	br := bufio.NewReader(r)

	width, height, err := readDATHeader(br)
	if err != nil {
		return nil, err
	}

	var preamble [2]byte
	if _, err := io.ReadFull(br, preamble[:]); err != nil {
		if errors.Is(err, io.EOF) {
			// Header-only file.
			return &Stream{Width: width, Height: height}, nil
		}
		return nil, fmt.Errorf("failed to read DAT preamble: %w", err)
	}
	if preamble[0] != datTypeCD {
		return nil, fmt.Errorf("unsupported DAT event type 0x%02X (want 0x%02X)", preamble[0], datTypeCD)
	}
	if preamble[1] != datEventSize {
		return nil, fmt.Errorf("unsupported DAT event size %d (want %d)", preamble[1], datEventSize)
	}

	var (
		events  []Event
		rec     [datEventSize]byte
		offset  uint64
		prevRaw uint32
	)
	for i := 0; ; i++ {
		if _, err := io.ReadFull(br, rec[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read DAT event %d: %w", i, err)
		}
		raw := binary.LittleEndian.Uint32(rec[0:4])
		word := binary.LittleEndian.Uint32(rec[4:8])

		if i > 0 && raw < prevRaw && prevRaw-raw > 1<<31 {
			offset += datWrapPeriod
		}
		prevRaw = raw

		events = append(events, Event{
			T:        offset + uint64(raw),
			X:        uint16(word & datMaskX),
			Y:        uint16((word >> datShiftY) & datMaskX),
			Polarity: (word>>datShiftP)&0xF != 0,
		})
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

// readDATHeader consumes the '%'-prefixed header lines and returns any
// geometry they declare.
func readDATHeader(br *bufio.Reader) (width, height uint16, err error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return width, height, nil
			}
			return 0, 0, fmt.Errorf("failed to read DAT header: %w", err)
		}
		if b[0] != '%' {
			return width, height, nil
		}

		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, 0, fmt.Errorf("failed to read DAT header: %w", err)
		}
		fields := strings.Fields(strings.TrimPrefix(line, "%"))
		if len(fields) < 2 {
			continue
		}
		switch strings.ToLower(fields[0]) {
		case "width":
			if width, err = parseDimension(fields[1]); err != nil {
				return 0, 0, fmt.Errorf("invalid DAT header width: %w", err)
			}
		case "height":
			if height, err = parseDimension(fields[1]); err != nil {
				return 0, 0, fmt.Errorf("invalid DAT header height: %w", err)
			}
		case "geometry":
			w, h, ok := strings.Cut(fields[1], "x")
			if !ok {
				return 0, 0, fmt.Errorf("invalid DAT header geometry %q", fields[1])
			}
			if width, err = parseDimension(w); err != nil {
				return 0, 0, fmt.Errorf("invalid DAT header geometry: %w", err)
			}
			if height, err = parseDimension(h); err != nil {
				return 0, 0, fmt.Errorf("invalid DAT header geometry: %w", err)
			}
		}
	}
}

func parseDimension(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

// WriteDAT encodes a stream as a CD event DAT file. Addresses must fit the
// 14-bit DAT fields; timestamps are written modulo 2^32 and unwrapped again
// by ReadDAT as long as consecutive events are less than ~35 minutes apart.
func WriteDAT(w io.Writer, s *Stream) error {
	if s.Width > datMaxCoord+1 || s.Height > datMaxCoord+1 {
		return fmt.Errorf("geometry %dx%d exceeds DAT address range", s.Width, s.Height)
	}

	var hdr bytes.Buffer
	fmt.Fprintf(&hdr, "%% Version 2\n")
	fmt.Fprintf(&hdr, "%% Width %d\n", s.Width)
	fmt.Fprintf(&hdr, "%% Height %d\n", s.Height)
	fmt.Fprintf(&hdr, "%% end\n")
	hdr.WriteByte(datTypeCD)
	hdr.WriteByte(datEventSize)

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(hdr.Bytes()); err != nil {
		return fmt.Errorf("failed to write DAT header: %w", err)
	}

	var rec [datEventSize]byte
	for _, e := range s.Events {
		word := uint32(e.X)&datMaskX | (uint32(e.Y)&datMaskX)<<datShiftY
		if e.Polarity {
			word |= 1 << datShiftP
		}
		binary.LittleEndian.PutUint32(rec[0:4], uint32(e.T))
		binary.LittleEndian.PutUint32(rec[4:8], word)
		if _, err := bw.Write(rec[:]); err != nil {
			return fmt.Errorf("failed to write DAT event: %w", err)
		}
	}
	return bw.Flush()
}

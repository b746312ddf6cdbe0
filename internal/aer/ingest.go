package aer

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/banshee-data/starfield/internal/fsutil"
	"github.com/banshee-data/starfield/internal/monitoring"
)

// ErrUnknownFormat is returned for file extensions with no registered codec.
var ErrUnknownFormat = errors.New("unknown event file format")

var logf = monitoring.Component("Ingest")

// LoadOptions controls how an event file becomes a Stream.
type LoadOptions struct {
	// Width and Height override the geometry declared by (or inferred from) the file.
	Width  uint16
	Height uint16

	// SortByTime stably sorts out-of-order files instead of rejecting them.
	SortByTime bool

	// UDPPort filters PCAP captures; 0 uses DefaultUDPPort, -1 accepts any port.
	UDPPort int
}

// Format names an on-disk event encoding.
type Format string

const (
	FormatDAT  Format = "dat"
	FormatCSV  Format = "csv"
	FormatPCAP Format = "pcap"
)

// FormatForPath picks the codec from a file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".dat":
		return FormatDAT, nil
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".pcap", ".pcapng", ".cap":
		return FormatPCAP, nil
	default:
		return "", fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}
}

// Load reads an event file through fsys. The file is opened, read
// sequentially and closed before Load returns, whether or not decoding
// succeeded. The result satisfies Stream.Validate.
func Load(fsys fsutil.FileSystem, path string, opts LoadOptions) (*Stream, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}

	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event file: %w", err)
	}
	defer f.Close()

	s, err := Decode(f, format, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logf("loaded %d events (%dx%d, %.3fs) from %s", s.Len(), s.Width, s.Height, float64(s.Duration())/1e6, path)
	return s, nil
}

// Decode reads a stream in the given format and applies opts.
func Decode(r io.Reader, format Format, opts LoadOptions) (*Stream, error) {
	var (
		s   *Stream
		err error
	)
	switch format {
	case FormatDAT:
		s, err = ReadDAT(r)
	case FormatCSV:
		s, err = ReadCSV(r)
	case FormatPCAP:
		port := opts.UDPPort
		switch {
		case port == 0:
			port = DefaultUDPPort
		case port < 0:
			port = 0
		}
		s, err = ReadPCAP(r, port, 0, 0)
	default:
		return nil, fmt.Errorf("%q: %w", format, ErrUnknownFormat)
	}
	if err != nil {
		return nil, err
	}

	if opts.Width != 0 {
		s.Width = opts.Width
	}
	if opts.Height != 0 {
		s.Height = opts.Height
	}

	if err := s.Validate(); err != nil {
		if !errors.Is(err, ErrUnsorted) || !opts.SortByTime {
			return nil, err
		}
		s = s.SortByTime()
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Save writes a stream through fsys, choosing the codec by extension.
func Save(fsys fsutil.FileSystem, path string, s *Stream) (err error) {
	format, err := FormatForPath(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	w, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create event file: %w", err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close event file: %w", cerr)
		}
	}()

	switch format {
	case FormatDAT:
		return WriteDAT(w, s)
	case FormatCSV:
		return WriteCSV(w, s)
	default:
		return WritePCAP(w, s, DefaultUDPPort)
	}
}

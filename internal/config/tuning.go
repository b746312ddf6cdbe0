package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/starfield/internal/units"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

const defaultSolverTimeout = 2 * time.Minute

// ErrNoDefaultConfig means DefaultConfigPath was not found from the
// working directory or its usual parents.
var ErrNoDefaultConfig = errors.New("no " + DefaultConfigPath + " found")

// Polarity filter values.
const (
	PolarityBoth = "both"
	PolarityOn   = "on"
	PolarityOff  = "off"
)

// TuningConfig represents the root configuration for pipeline tuning.
// Every field is optional; the Get* accessors supply defaults for
// anything the JSON file omits.
type TuningConfig struct {
	// Sidereal drift, in VelocityUnits (default px/s)
	VelocityX     *float64 `json:"velocity_x,omitempty"`
	VelocityY     *float64 `json:"velocity_y,omitempty"`
	VelocityUnits *string  `json:"velocity_units,omitempty"`

	// Segmentation params
	ThresholdPercentile *float64 `json:"threshold_percentile,omitempty"`
	MedianRadius        *int     `json:"median_radius,omitempty"`
	MinEvents           *int     `json:"min_events,omitempty"`

	// Upstream noise filters (disabled when zero or "both")
	HotPixelSigma     *float64 `json:"hot_pixel_sigma,omitempty"`
	NeighbourWindowUs *int64   `json:"neighbour_window_us,omitempty"`
	Polarity          *string  `json:"polarity,omitempty"`

	// Plate solver params
	SolverURL            *string  `json:"solver_url,omitempty"`
	SolverTimeout        *string  `json:"solver_timeout,omitempty"` // duration string like "2m"
	SolverMaxStars       *int     `json:"solver_max_stars,omitempty"`
	MatchToleranceArcsec *float64 `json:"match_tolerance_arcsec,omitempty"`
	ScaleLower           *float64 `json:"scale_lower,omitempty"`
	ScaleUpper           *float64 `json:"scale_upper,omitempty"`
	ScaleUnits           *string  `json:"scale_units,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// from the Get* defaults. Useful for writing out a starting config file.
func DefaultTuningConfig() *TuningConfig {
	empty := EmptyTuningConfig()
	return &TuningConfig{
		VelocityX:            ptrFloat64(empty.GetVelocityX()),
		VelocityY:            ptrFloat64(empty.GetVelocityY()),
		VelocityUnits:        ptrString(empty.GetVelocityUnits()),
		ThresholdPercentile:  ptrFloat64(empty.GetThresholdPercentile()),
		MedianRadius:         ptrInt(empty.GetMedianRadius()),
		MinEvents:            ptrInt(empty.GetMinEvents()),
		HotPixelSigma:        ptrFloat64(empty.GetHotPixelSigma()),
		NeighbourWindowUs:    ptrInt64(empty.GetNeighbourWindowUs()),
		Polarity:             ptrString(empty.GetPolarity()),
		SolverURL:            ptrString(empty.GetSolverURL()),
		SolverTimeout:        ptrString("2m"),
		SolverMaxStars:       ptrInt(empty.GetSolverMaxStars()),
		MatchToleranceArcsec: ptrFloat64(empty.GetMatchToleranceArcsec()),
		ScaleLower:           ptrFloat64(empty.GetScaleLower()),
		ScaleUpper:           ptrFloat64(empty.GetScaleUpper()),
		ScaleUnits:           ptrString(empty.GetScaleUnits()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath,
// searching the current directory and common parent directories. It returns
// the path it loaded, or ErrNoDefaultConfig when no candidate exists. A
// candidate that exists but fails to load is an error.
func LoadDefaultConfig() (*TuningConfig, string, error) {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from cmd/starfield/ or internal/config/
		"../../../" + DefaultConfigPath,    // from internal/astro/pipeline/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := LoadTuningConfig(path)
		if err != nil {
			return nil, path, err
		}
		return cfg, path, nil
	}
	return nil, "", ErrNoDefaultConfig
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.VelocityUnits != nil && *c.VelocityUnits != "" && !units.IsValidVelocity(*c.VelocityUnits) {
		return fmt.Errorf("invalid velocity_units '%s': must be one of %s", *c.VelocityUnits, units.GetValidVelocityUnitsString())
	}
	for _, v := range []struct {
		key string
		val *float64
	}{{"velocity_x", c.VelocityX}, {"velocity_y", c.VelocityY}} {
		if v.val == nil {
			continue
		}
		if math.IsNaN(*v.val) || math.IsInf(*v.val, 0) {
			return fmt.Errorf("%s must be finite, got %f", v.key, *v.val)
		}
		if rate := units.ToPxPerSec(*v.val, c.GetVelocityUnits()); math.Abs(rate) > units.MaxDriftPxPerSec {
			return fmt.Errorf("%s of %g px/s exceeds %g px/s", v.key, rate, units.MaxDriftPxPerSec)
		}
	}

	if c.ThresholdPercentile != nil {
		if *c.ThresholdPercentile < 0 || *c.ThresholdPercentile > 100 {
			return fmt.Errorf("threshold_percentile must be between 0 and 100, got %f", *c.ThresholdPercentile)
		}
	}

	if c.MedianRadius != nil && *c.MedianRadius < 0 {
		return fmt.Errorf("median_radius must be non-negative, got %d", *c.MedianRadius)
	}

	if c.MinEvents != nil && *c.MinEvents < 0 {
		return fmt.Errorf("min_events must be non-negative, got %d", *c.MinEvents)
	}

	if c.HotPixelSigma != nil && *c.HotPixelSigma < 0 {
		return fmt.Errorf("hot_pixel_sigma must be non-negative, got %f", *c.HotPixelSigma)
	}

	if c.NeighbourWindowUs != nil && *c.NeighbourWindowUs < 0 {
		return fmt.Errorf("neighbour_window_us must be non-negative, got %d", *c.NeighbourWindowUs)
	}

	if c.Polarity != nil && *c.Polarity != "" {
		switch *c.Polarity {
		case PolarityBoth, PolarityOn, PolarityOff:
		default:
			return fmt.Errorf("invalid polarity '%s': must be one of %s, %s, %s", *c.Polarity, PolarityBoth, PolarityOn, PolarityOff)
		}
	}

	if c.SolverTimeout != nil && *c.SolverTimeout != "" {
		if _, err := time.ParseDuration(*c.SolverTimeout); err != nil {
			return fmt.Errorf("invalid solver_timeout '%s': %w", *c.SolverTimeout, err)
		}
	}

	if c.SolverMaxStars != nil && *c.SolverMaxStars < 0 {
		return fmt.Errorf("solver_max_stars must be non-negative, got %d", *c.SolverMaxStars)
	}

	if c.ScaleUnits != nil && *c.ScaleUnits != "" && !units.IsValidScale(*c.ScaleUnits) {
		return fmt.Errorf("invalid scale_units '%s': must be one of %s", *c.ScaleUnits, units.GetValidScaleUnitsString())
	}

	if c.ScaleLower != nil && c.ScaleUpper != nil && *c.ScaleUpper > 0 && *c.ScaleLower > *c.ScaleUpper {
		return fmt.Errorf("scale_lower (%f) must not exceed scale_upper (%f)", *c.ScaleLower, *c.ScaleUpper)
	}

	return nil
}

// GetVelocityX returns the x drift in GetVelocityUnits or the default.
func (c *TuningConfig) GetVelocityX() float64 {
	if c.VelocityX == nil {
		return 0
	}
	return *c.VelocityX
}

// GetVelocityY returns the y drift in GetVelocityUnits or the default.
func (c *TuningConfig) GetVelocityY() float64 {
	if c.VelocityY == nil {
		return 0
	}
	return *c.VelocityY
}

// GetVelocityUnits returns the velocity_units value or the default (px/s).
func (c *TuningConfig) GetVelocityUnits() string {
	if c.VelocityUnits == nil || *c.VelocityUnits == "" {
		return units.PxPerSec
	}
	return *c.VelocityUnits
}

// GetVelocityPxPerSec returns the drift converted to pixels per second.
func (c *TuningConfig) GetVelocityPxPerSec() (vx, vy float64) {
	u := c.GetVelocityUnits()
	return units.ToPxPerSec(c.GetVelocityX(), u), units.ToPxPerSec(c.GetVelocityY(), u)
}

// GetThresholdPercentile returns the threshold_percentile value or the default.
func (c *TuningConfig) GetThresholdPercentile() float64 {
	if c.ThresholdPercentile == nil {
		return 99.5
	}
	return *c.ThresholdPercentile
}

// GetMedianRadius returns the median_radius value or the default (0 = no smoothing).
func (c *TuningConfig) GetMedianRadius() int {
	if c.MedianRadius == nil {
		return 0
	}
	return *c.MedianRadius
}

// GetMinEvents returns the min_events value or the default.
func (c *TuningConfig) GetMinEvents() int {
	if c.MinEvents == nil {
		return 1
	}
	return *c.MinEvents
}

// GetHotPixelSigma returns the hot_pixel_sigma value or the default (0 = disabled).
func (c *TuningConfig) GetHotPixelSigma() float64 {
	if c.HotPixelSigma == nil {
		return 0
	}
	return *c.HotPixelSigma
}

// GetNeighbourWindowUs returns the neighbour_window_us value or the default (0 = disabled).
func (c *TuningConfig) GetNeighbourWindowUs() int64 {
	if c.NeighbourWindowUs == nil {
		return 0
	}
	return *c.NeighbourWindowUs
}

// GetPolarity returns the polarity value or the default (both = no filter).
func (c *TuningConfig) GetPolarity() string {
	if c.Polarity == nil || *c.Polarity == "" {
		return PolarityBoth
	}
	return *c.Polarity
}

// GetSolverURL returns the solver_url value or the default (empty = no solve).
func (c *TuningConfig) GetSolverURL() string {
	if c.SolverURL == nil {
		return ""
	}
	return *c.SolverURL
}

// GetSolverTimeout parses and returns the SolverTimeout as a time.Duration.
func (c *TuningConfig) GetSolverTimeout() time.Duration {
	if c.SolverTimeout == nil || *c.SolverTimeout == "" {
		return defaultSolverTimeout
	}
	d, err := time.ParseDuration(*c.SolverTimeout)
	if err != nil {
		return defaultSolverTimeout // default on parse error
	}
	return d
}

// GetSolverMaxStars returns the solver_max_stars value or the default.
func (c *TuningConfig) GetSolverMaxStars() int {
	if c.SolverMaxStars == nil {
		return 50
	}
	return *c.SolverMaxStars
}

// GetMatchToleranceArcsec returns the match_tolerance_arcsec value or the default.
func (c *TuningConfig) GetMatchToleranceArcsec() float64 {
	if c.MatchToleranceArcsec == nil {
		return 60
	}
	return *c.MatchToleranceArcsec
}

// GetScaleLower returns the scale_lower value or the default (0 = no hint).
func (c *TuningConfig) GetScaleLower() float64 {
	if c.ScaleLower == nil {
		return 0
	}
	return *c.ScaleLower
}

// GetScaleUpper returns the scale_upper value or the default (0 = no hint).
func (c *TuningConfig) GetScaleUpper() float64 {
	if c.ScaleUpper == nil {
		return 0
	}
	return *c.ScaleUpper
}

// GetScaleUnits returns the scale_units value or the default.
func (c *TuningConfig) GetScaleUnits() string {
	if c.ScaleUnits == nil || *c.ScaleUnits == "" {
		return units.ArcsecPerPix
	}
	return *c.ScaleUnits
}

package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/starfield/internal/astro/pipeline"
	"github.com/banshee-data/starfield/internal/astro/platesolve"
	"github.com/banshee-data/starfield/internal/astro/segment"
)

// ErrRunNotFound is returned for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Threshold modes recorded with a run.
const (
	ThresholdPercentile = "percentile"
	ThresholdLevel      = "level"
)

// Run is the stored summary of one pipeline run.
type Run struct {
	ID            string          `json:"id"`
	SourcePath    string          `json:"source_path"`
	CreatedAt     time.Time       `json:"created_at"`
	Width         int             `json:"width"`
	Height        int             `json:"height"`
	FrameRows     int             `json:"frame_rows"`
	FrameCols     int             `json:"frame_cols"`
	Events        int             `json:"events"`
	DurationUs    int64           `json:"duration_us"`
	VX            float64         `json:"vx_px_per_sec"`
	VY            float64         `json:"vy_px_per_sec"`
	ThresholdMode string          `json:"threshold_mode"`
	Percentile    float64         `json:"percentile"` // 0 under ThresholdLevel
	Threshold     float64         `json:"threshold"`
	StarCount     int             `json:"star_count"`
	Matched       bool            `json:"matched"`
	WCS           *platesolve.WCS `json:"wcs,omitempty"`
}

// Centroid is a stored star position.
type Centroid struct {
	Label   int     `json:"label"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Events  int     `json:"events"`
	SpreadX float64 `json:"spread_x"`
	SpreadY float64 `json:"spread_y"`
}

// CatalogMatch is a centroid paired with a catalogue star.
type CatalogMatch struct {
	Label            int      `json:"label"`
	RADeg            float64  `json:"ra_deg"`
	DecDeg           float64  `json:"dec_deg"`
	Magnitude        *float64 `json:"magnitude,omitempty"`
	SeparationArcsec float64  `json:"separation_arcsec"`
}

// Segment converts back to the pipeline's centroid type.
func (c Centroid) Segment() segment.Centroid {
	return segment.Centroid{Label: c.Label, X: c.X, Y: c.Y, Events: c.Events, SpreadX: c.SpreadX, SpreadY: c.SpreadY}
}

// NewRun summarises a pipeline result. A run thresholded at a fixed
// level is stored with mode ThresholdLevel and a zero percentile.
func NewRun(source string, res *pipeline.Result) *Run {
	mode := ThresholdPercentile
	if res.FixedLevel {
		mode = ThresholdLevel
	}
	return &Run{
		SourcePath:    source,
		Width:         int(res.Width),
		Height:        int(res.Height),
		FrameRows:     res.Extent.Rows,
		FrameCols:     res.Extent.Cols,
		Events:        res.Events,
		DurationUs:    int64(res.Duration),
		VX:            res.Velocity.VX,
		VY:            res.Velocity.VY,
		ThresholdMode: mode,
		Percentile:    res.Percentile,
		Threshold:     res.Threshold,
		StarCount:     len(res.Centroids),
	}
}

// InsertRun stores run and its centroids in one transaction, assigning
// run.ID and run.CreatedAt.
func (db *DB) InsertRun(run *Run, centroids []segment.Centroid) (err error) {
	run.ID = uuid.NewString()
	run.CreatedAt = db.clock.Now().UTC()
	run.StarCount = len(centroids)
	if run.ThresholdMode == "" {
		run.ThresholdMode = ThresholdPercentile
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec(`INSERT INTO runs (
		run_id, source_path, created_unix_nanos, width, height, frame_rows, frame_cols,
		events, duration_us, vx_px_per_sec, vy_px_per_sec, threshold_mode, percentile, threshold, star_count
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.SourcePath, run.CreatedAt.UnixNano(), run.Width, run.Height, run.FrameRows, run.FrameCols,
		run.Events, run.DurationUs, run.VX, run.VY, run.ThresholdMode, run.Percentile, run.Threshold, run.StarCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO centroids (run_id, label, x, y, events, spread_x, spread_y)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare centroid insert: %w", err)
	}
	defer stmt.Close()
	for _, c := range centroids {
		if _, err = stmt.Exec(run.ID, c.Label, c.X, c.Y, c.Events, c.SpreadX, c.SpreadY); err != nil {
			return fmt.Errorf("failed to insert centroid %d: %w", c.Label, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	logf("stored run %s: %d centroids", run.ID, len(centroids))
	return nil
}

// InsertMatches records a plate solution for a run and replaces its
// catalogue matches.
func (db *DB) InsertMatches(runID string, sol *platesolve.Solution, matches []platesolve.Match) (err error) {
	var wcsJSON sql.NullString
	if sol != nil && sol.WCS != nil {
		b, merr := json.Marshal(sol.WCS)
		if merr != nil {
			return fmt.Errorf("failed to encode wcs: %w", merr)
		}
		wcsJSON = sql.NullString{String: string(b), Valid: true}
	}
	matched := sol != nil && sol.Matched

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.Exec(`UPDATE runs SET matched = ?, wcs_json = ? WHERE run_id = ?`, matched, wcsJSON, runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		return err
	}
	if _, err = tx.Exec(`DELETE FROM catalog_matches WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to clear matches: %w", err)
	}
	for _, m := range matches {
		var mag sql.NullFloat64
		if v, ok := m.Star.Magnitude(); ok {
			mag = sql.NullFloat64{Float64: v, Valid: true}
		}
		_, err = tx.Exec(`INSERT INTO catalog_matches (run_id, label, ra_deg, dec_deg, magnitude, separation_arcsec)
			VALUES (?, ?, ?, ?, ?, ?)`,
			runID, m.Point.Label, m.Star.RADeg, m.Star.DecDeg, mag, m.Separation.Deg()*3600)
		if err != nil {
			return fmt.Errorf("failed to insert match for label %d: %w", m.Point.Label, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit matches: %w", err)
	}
	return nil
}

const runColumns = `run_id, source_path, created_unix_nanos, width, height, frame_rows, frame_cols,
	events, duration_us, vx_px_per_sec, vy_px_per_sec, threshold_mode, percentile, threshold, star_count,
	matched, wcs_json`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (*Run, error) {
	var (
		r       Run
		created int64
		wcsJSON sql.NullString
	)
	err := s.Scan(&r.ID, &r.SourcePath, &created, &r.Width, &r.Height, &r.FrameRows, &r.FrameCols,
		&r.Events, &r.DurationUs, &r.VX, &r.VY, &r.ThresholdMode, &r.Percentile, &r.Threshold, &r.StarCount,
		&r.Matched, &wcsJSON)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = time.Unix(0, created).UTC()
	if wcsJSON.Valid {
		r.WCS = &platesolve.WCS{}
		if err := json.Unmarshal([]byte(wcsJSON.String), r.WCS); err != nil {
			return nil, fmt.Errorf("run %s has invalid wcs: %w", r.ID, err)
		}
	}
	return &r, nil
}

// GetRun returns one run.
func (db *DB) GetRun(id string) (*Run, error) {
	run, err := scanRun(db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 means 100.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT `+runColumns+` FROM runs ORDER BY created_unix_nanos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetCentroids returns a run's centroids in label order.
func (db *DB) GetCentroids(runID string) ([]Centroid, error) {
	rows, err := db.Query(`SELECT label, x, y, events, spread_x, spread_y
		FROM centroids WHERE run_id = ? ORDER BY label`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get centroids: %w", err)
	}
	defer rows.Close()

	out := []Centroid{}
	for rows.Next() {
		var c Centroid
		if err := rows.Scan(&c.Label, &c.X, &c.Y, &c.Events, &c.SpreadX, &c.SpreadY); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetMatches returns a run's catalogue matches in label order.
func (db *DB) GetMatches(runID string) ([]CatalogMatch, error) {
	rows, err := db.Query(`SELECT label, ra_deg, dec_deg, magnitude, separation_arcsec
		FROM catalog_matches WHERE run_id = ? ORDER BY label`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get matches: %w", err)
	}
	defer rows.Close()

	out := []CatalogMatch{}
	for rows.Next() {
		var (
			m   CatalogMatch
			mag sql.NullFloat64
		)
		if err := rows.Scan(&m.Label, &m.RADeg, &m.DecDeg, &mag, &m.SeparationArcsec); err != nil {
			return nil, err
		}
		if mag.Valid {
			m.Magnitude = &mag.Float64
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteRun removes a run with its centroids and matches.
func (db *DB) DeleteRun(id string) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, table := range []string{"catalog_matches", "centroids"} {
		if _, err = tx.Exec(`DELETE FROM `+table+` WHERE run_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}
	res, err := tx.Exec(`DELETE FROM runs WHERE run_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = fmt.Errorf("%w: %s", ErrRunNotFound, id)
		return err
	}
	return tx.Commit()
}

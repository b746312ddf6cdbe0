// Package api serves stored pipeline runs over HTTP: run summaries,
// centroids, catalogue matches and an HTML report per run.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/banshee-data/starfield/internal/astro/render"
	"github.com/banshee-data/starfield/internal/astro/segment"
	"github.com/banshee-data/starfield/internal/db"
	"github.com/banshee-data/starfield/internal/httputil"
	"github.com/banshee-data/starfield/internal/monitoring"
	"github.com/banshee-data/starfield/internal/security"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const (
	defaultListLimit = 100
	maxListLimit     = 1000
	shutdownTimeout  = 5 * time.Second
)

var logf = monitoring.Component("API")

type Server struct {
	db *db.DB
}

func NewServer(db *db.DB) *Server {
	return &Server{db: db}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// Router returns the read-only API routes wrapped in LoggingMiddleware.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/runs", s.listRuns).Methods(http.MethodGet)
	r.HandleFunc("/api/runs/{id}", s.showRun).Methods(http.MethodGet)
	r.HandleFunc("/api/runs/{id}/centroids", s.listCentroids).Methods(http.MethodGet)
	r.HandleFunc("/api/runs/{id}/matches", s.listMatches).Methods(http.MethodGet)
	r.HandleFunc("/api/runs/{id}/report", s.showReport).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.NotFound(w, "no such endpoint")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return LoggingMiddleware(r)
}

// ListenAndServe serves Router on addr until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logf("listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logf("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	return nil
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxListLimit {
			httputil.BadRequest(w, fmt.Sprintf("limit must be between 1 and %d", maxListLimit))
			return
		}
		limit = n
	}
	runs, err := s.db.ListRuns(limit)
	if err != nil {
		s.dbError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, runs)
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.db.GetRun(mux.Vars(r)["id"])
	if err != nil {
		s.dbError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, run)
}

func (s *Server) listCentroids(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.db.GetRun(id); err != nil {
		s.dbError(w, err)
		return
	}
	cs, err := s.db.GetCentroids(id)
	if err != nil {
		s.dbError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cs)
}

func (s *Server) listMatches(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.db.GetRun(id); err != nil {
		s.dbError(w, err)
		return
	}
	ms, err := s.db.GetMatches(id)
	if err != nil {
		s.dbError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ms)
}

func (s *Server) showReport(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, err := s.db.GetRun(id)
	if err != nil {
		s.dbError(w, err)
		return
	}
	cs, err := s.db.GetCentroids(id)
	if err != nil {
		s.dbError(w, err)
		return
	}
	ms, err := s.db.GetMatches(id)
	if err != nil {
		s.dbError(w, err)
		return
	}

	name := security.SanitizeFilename(strings.TrimSuffix(filepath.Base(run.SourcePath), filepath.Ext(run.SourcePath)))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s-report.html"`, name))
	if err := render.ReportHTML(w, storedReport(run, cs, ms)); err != nil {
		logf("report for run %s: %v", id, err)
	}
}

// storedReport rebuilds a report from stored rows. Stored runs keep no
// frame, so the report has no count histogram.
func storedReport(run *db.Run, cs []db.Centroid, ms []db.CatalogMatch) render.Report {
	centroids := make([]segment.Centroid, len(cs))
	byLabel := make(map[int]segment.Centroid, len(cs))
	for i, c := range cs {
		centroids[i] = c.Segment()
		byLabel[c.Label] = centroids[i]
	}

	rows := make([]render.MatchRow, 0, len(ms))
	for _, m := range ms {
		c, ok := byLabel[m.Label]
		if !ok {
			continue
		}
		rows = append(rows, render.MatchRow{
			Label:            m.Label,
			X:                c.X,
			Y:                c.Y,
			RADeg:            m.RADeg,
			DecDeg:           m.DecDeg,
			SeparationArcsec: m.SeparationArcsec,
		})
	}

	return render.Report{
		Title: "Run " + run.ID,
		Subtitle: fmt.Sprintf("%s: %d events, %.1fs, drift (%.3f, %.3f) px/s, %d stars",
			run.SourcePath, run.Events, float64(run.DurationUs)/1e6, run.VX, run.VY, run.StarCount),
		Centroids: centroids,
		Threshold: run.Threshold,
		Matches:   rows,
	}
}

func (s *Server) dbError(w http.ResponseWriter, err error) {
	if errors.Is(err, db.ErrRunNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	logf("database error: %v", err)
	httputil.InternalServerError(w, "database error")
}

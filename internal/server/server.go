// Package server exposes the HTTP API for the cribwatch alert service.
//
// Endpoints:
//
//   - POST /api/videos  — multipart video upload, runs the analysis pipeline
//   - GET  /api/events  — websocket feed of pipeline progress events
//   - GET  /api/history — recent analysis results, newest first
//   - GET  /healthz, /readyz, /metrics — operational endpoints
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haneul-dev/cribwatch/internal/health"
	"github.com/haneul-dev/cribwatch/internal/history"
	"github.com/haneul-dev/cribwatch/internal/mimetype"
	"github.com/haneul-dev/cribwatch/internal/observe"
	"github.com/haneul-dev/cribwatch/internal/pipeline"
	"github.com/haneul-dev/cribwatch/pkg/provider/objectstore"
)

const (
	// DefaultMaxUploadMB caps uploads when no limit is configured.
	DefaultMaxUploadMB = 100

	// DefaultRecentLimit caps the history endpoint when no limit is configured.
	DefaultRecentLimit = 50

	// uploadField is the multipart form field carrying the video.
	uploadField = "video"
)

// Runner executes one pipeline run per uploaded video. *pipeline.Pipeline
// satisfies this; tests substitute fakes.
type Runner interface {
	Process(ctx context.Context, filename string, src io.Reader) (*pipeline.Outcome, error)
}

// Deps bundles the collaborators a [Server] needs.
type Deps struct {
	Pipeline    Runner
	Hub         *Hub
	History     history.Store
	Health      *health.Handler
	Metrics     *observe.Metrics
	MaxUploadMB int
	RecentLimit int
}

// Server is the HTTP front of the alert service.
type Server struct {
	pipeline Runner
	hub      *Hub
	history  history.Store
	health   *health.Handler
	metrics  *observe.Metrics

	maxUploadBytes atomic.Int64
	recentLimit    atomic.Int64
}

// New creates a Server. Zero limits fall back to the defaults.
func New(d Deps) *Server {
	s := &Server{
		pipeline: d.Pipeline,
		hub:      d.Hub,
		history:  d.History,
		health:   d.Health,
		metrics:  d.Metrics,
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if d.MaxUploadMB <= 0 {
		d.MaxUploadMB = DefaultMaxUploadMB
	}
	if d.RecentLimit <= 0 {
		d.RecentLimit = DefaultRecentLimit
	}
	s.maxUploadBytes.Store(int64(d.MaxUploadMB) << 20)
	s.recentLimit.Store(int64(d.RecentLimit))
	return s
}

// SetMaxUploadMB adjusts the upload cap. Applied to subsequent requests;
// used by config hot-reload.
func (s *Server) SetMaxUploadMB(mb int) {
	if mb <= 0 {
		mb = DefaultMaxUploadMB
	}
	s.maxUploadBytes.Store(int64(mb) << 20)
}

// SetRecentLimit adjusts the history endpoint cap. Used by config hot-reload.
func (s *Server) SetRecentLimit(n int) {
	if n <= 0 {
		n = DefaultRecentLimit
	}
	s.recentLimit.Store(int64(n))
}

// Handler builds the full route table wrapped in the tracing middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/videos", s.handleUpload)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	if s.hub != nil {
		mux.HandleFunc("GET /api/events", s.hub.Handle)
	}
	if s.health != nil {
		s.health.Register(mux)
	}
	mux.Handle("GET /metrics", promhttp.Handler())
	return observe.Middleware(s.metrics)(mux)
}

// handleUpload accepts one multipart video and runs it through the pipeline
// synchronously. The response carries the analysis outcome; alert playback
// continues in the background.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes.Load())

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field %q is required", uploadField)
		return
	}
	defer file.Close()

	if !mimetype.IsSupported(header.Filename) {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported video type: %q", header.Filename)
		return
	}

	out, err := s.pipeline.Process(r.Context(), header.Filename, file)
	if err != nil {
		status, msg := classifyError(err)
		observe.Logger(r.Context()).Error("upload processing failed",
			"filename", header.Filename,
			"status", status,
			"err", err,
		)
		writeError(w, status, "%s", msg)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// handleHistory returns recent analysis results, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.history.Recent(r.Context(), int(s.recentLimit.Load()))
	if err != nil {
		observe.Logger(r.Context()).Error("history query failed", "err", err)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// classifyError maps pipeline failures onto HTTP statuses. Client mistakes
// get 4xx; upstream provider failures get 502; local capacity problems get
// 503. Alert-stage and analysis-parse failures never reach here: the
// pipeline reports those inside a successful outcome.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, pipeline.ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType, "unsupported video type"
	case errors.Is(err, objectstore.ErrBucketNotFound):
		return http.StatusServiceUnavailable, "storage bucket not available"
	case errors.Is(err, objectstore.ErrUpload):
		return http.StatusBadGateway, "upload to object storage failed"
	default:
		return http.StatusInternalServerError, "video processing failed"
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, errorBody{Error: fmt.Sprintf(format, args...)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "err", err)
	}
}

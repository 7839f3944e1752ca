// Package api exposes the HTTP interface for the crawler service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/crawler"
	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/metrics"
	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/pacing"
	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/scheduler"
)

// RunScheduler is the scheduler surface the API depends on.
type RunScheduler interface {
	Submit(ctx context.Context, params crawler.RunParameters) (crawler.Run, error)
	Cancel(runID string) error
}

// PacingView is the read-only pacing surface exposed over HTTP.
type PacingView interface {
	CurrentDelay(host string) time.Duration
	Snapshot() map[string]time.Duration
	TrackedHosts() int
	Config() pacing.Config
}

// Server wires HTTP handlers to the scheduler, run store, and pacing state.
type Server struct {
	router chi.Router
	sched  RunScheduler
	runs   crawler.RunStore
	pacer  PacingView
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(sched RunScheduler, runs crawler.RunStore, pacer PacingView, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		sched:  sched,
		runs:   runs,
		pacer:  pacer,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/crawls", func(r chi.Router) {
			r.Post("/", s.submitCrawl)
			r.Get("/", s.listRuns)
			r.Route("/{run_id}", func(r chi.Router) {
				r.Get("/", s.getRun)
				r.Post("/cancel", s.cancelRun)
			})
		})
		r.Route("/pacing", func(r chi.Router) {
			r.Get("/", s.pacingSnapshot)
			r.Get("/host", s.pacingHost)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

type crawlRequest struct {
	Seeds    []string          `json:"seeds"`
	MaxDepth int               `json:"max_depth"`
	MaxPages int               `json:"max_pages"`
	Tags     map[string]string `json:"tags"`
}

func (s *Server) submitCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	run, err := s.sched.Submit(r.Context(), crawler.RunParameters{
		Seeds:    req.Seeds,
		MaxDepth: req.MaxDepth,
		MaxPages: req.MaxPages,
		Tags:     req.Tags,
	})
	if err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusAccepted, map[string]string{
		"run_id": run.ID,
		"status": string(run.Status),
	})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runs.ListRuns(r.Context())
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		writeError(s.logger, w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"run": run})
}

func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	if err := s.sched.Cancel(runID); err != nil {
		if errors.Is(err, scheduler.ErrUnknownRun) {
			writeError(s.logger, w, http.StatusNotFound, "run not active")
			return
		}
		writeError(s.logger, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusAccepted, map[string]string{
		"run_id": runID,
		"status": "canceling",
	})
}

func (s *Server) pacingSnapshot(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.pacer.Snapshot()
	hosts := make(map[string]int64, len(snapshot))
	for host, delay := range snapshot {
		hosts[host] = delay.Milliseconds()
	}
	cfg := s.pacer.Config()
	writeJSON(s.logger, w, http.StatusOK, map[string]any{
		"tracked_hosts": s.pacer.TrackedHosts(),
		"base_delay_ms": cfg.BaseDelay.Milliseconds(),
		"max_delay_ms":  cfg.MaxDelay.Milliseconds(),
		"hosts":         hosts,
	})
}

// pacingHost reports the delay currently assigned to the host of ?url=.
// Unseen hosts report the base delay, matching what a worker would honor.
func (s *Server) pacingHost(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		writeError(s.logger, w, http.StatusBadRequest, "url query parameter is required")
		return
	}
	host, err := crawler.HostKey(raw)
	if err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{
		"host":     host,
		"delay_ms": s.pacer.CurrentDelay(host).Milliseconds(),
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(logger, w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}

// Package server exposes a read-only status API during a run: health,
// the live progress snapshot, and the recorded run history.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/geodesymiami/minsar-sub000/internal/admission"
	"github.com/geodesymiami/minsar-sub000/internal/store"
	"github.com/geodesymiami/minsar-sub000/pkg/model"
)

// ProgressSource reports the run and group currently being monitored.
type ProgressSource interface {
	Snapshot() (runID, group string, p model.Progress)
}

// UsageSource reports the admission accounting.
type UsageSource interface {
	Snapshot() admission.Usage
}

// Server is the orchestrator's status API.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	addr      string
	startTime time.Time
	store     store.Store
	progress  ProgressSource
	usage     UsageSource
}

// New creates a Server with all routes registered. st may be nil when run
// history is disabled; progress and usage may be nil in tests.
func New(addr string, st store.Store, progress ProgressSource, usage UsageSource, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		addr:      addr,
		startTime: time.Now(),
		store:     st,
		progress:  progress,
		usage:     usage,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start serves the API until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", "addr", s.addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/progress", s.handleProgress)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Get("/jobs", s.handleListRunJobs)
			})
		})
	})
}

// Package api serves a read-only JSON view of the ledger over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/agreements/internal/metrics"
	"github.com/roach88/agreements/internal/store"
)

const shutdownTimeout = 5 * time.Second

// Server exposes accounts, contracts, agreements, executions, counters
// and metrics. It has no mutating routes.
type Server struct {
	store   *store.Store
	metrics *metrics.Collector
	log     *slog.Logger
	router  chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics mounts /metrics for the collector's registry.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) {
		s.metrics = c
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.log = logger
	}
}

// New builds the router.
func New(st *store.Store, opts ...Option) *Server {
	s := &Server{store: st, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/accounts/{id}", s.getByID("account", func(ctx context.Context, id int64) (any, error) {
		return s.store.GetAccount(ctx, id)
	}))
	r.Get("/contracts/{id}", s.getByID("contract", func(ctx context.Context, id int64) (any, error) {
		return s.store.GetContract(ctx, id)
	}))
	r.Get("/agreements/{id}", s.getByID("agreement", func(ctx context.Context, id int64) (any, error) {
		return s.store.GetAgreement(ctx, id)
	}))
	r.Get("/executions/{id}", s.getByID("execution", func(ctx context.Context, id int64) (any, error) {
		return s.store.GetExecution(ctx, id)
	}))
	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		c, err := s.store.Counters(r.Context())
		if err != nil {
			s.internalError(w, "stats", err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	})
	if s.metrics != nil {
		s.metrics.MustRegister(newCountersCollector(st, s.log))
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown api: %w", err)
	}
	<-errCh
	s.log.Info("api stopped")
	return nil
}

func (s *Server) getByID(kind string, get func(context.Context, int64) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id")
			return
		}
		v, err := get(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		if err != nil {
			s.internalError(w, kind, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func (s *Server) internalError(w http.ResponseWriter, kind string, err error) {
	s.log.Error("api read failed", "kind", kind, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

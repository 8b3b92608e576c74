// Package health exposes a small chi-routed HTTP server with a
// liveness/readiness endpoint and a Prometheus scrape endpoint, shared
// across the strategy-run worker, execution orchestrator, dispatcher,
// and watchdog loops running in one process.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/nitinkhare/patterncore/internal/metrics"
	"github.com/nitinkhare/patterncore/internal/store"
)

// TickTracker records the last time each named loop completed a tick,
// so /healthz can report a loop that has gone silent without itself
// knowing anything about poll intervals.
type TickTracker struct {
	mu   sync.RWMutex
	last map[string]time.Time
}

// NewTickTracker builds an empty tracker.
func NewTickTracker() *TickTracker {
	return &TickTracker{last: make(map[string]time.Time)}
}

// Touch records that the named loop just completed a tick. Wrap a
// loop.Tick with this to report it.
func (t *TickTracker) Touch(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[name] = time.Now()
}

// Snapshot returns a copy of the last-tick times, for rendering.
func (t *TickTracker) Snapshot() map[string]time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]time.Time, len(t.last))
	for k, v := range t.last {
		out[k] = v
	}
	return out
}

// WrapTick returns a loop.Tick-shaped function that calls fn, then
// records a touch only on success.
func (t *TickTracker) WrapTick(name string, fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return err
		}
		t.Touch(name)
		return nil
	}
}

// Config tunes the health server's listen address.
type Config struct {
	Port int
}

// Server serves /healthz and /metrics.
type Server struct {
	router *chi.Mux
	server *http.Server
	store  store.Store
	ticks  *TickTracker
	logger *logrus.Entry
	port   int
}

// NewServer builds a health server. ticks may be nil, in which case
// /healthz reports only database reachability.
func NewServer(cfg Config, st store.Store, ticks *TickTracker, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if ticks == nil {
		ticks = NewTickTracker()
	}
	s := &Server{
		router: chi.NewRouter(),
		store:  st,
		ticks:  ticks,
		logger: logger.WithField("component", "health"),
		port:   cfg.Port,
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(10 * time.Second))
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	return s
}

type healthResponse struct {
	Status    string                `json:"status"`
	Database  string                `json:"database"`
	LastTicks map[string]time.Time `json:"last_ticks,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Database: "ok", LastTicks: s.ticks.Snapshot()}
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Database = err.Error()
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.WithError(err).Error("failed to encode health response")
	}
}

// Start runs the server until it is shut down. It never returns nil
// on its own; callers run it in a goroutine and call Shutdown on exit.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.logger.WithField("port", s.port).Info("starting health server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

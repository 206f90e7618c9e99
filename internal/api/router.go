// Package api is the control server an AI-agent host talks to: it
// turns pool.Pool and runner.Runner into an HTTP surface an external
// caller can acquire a VM from, run commands in, and release.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/carapaceos/carapaced/internal/ledger"
	"github.com/carapaceos/carapaced/internal/pool"
)

// Server is the control server. It owns the registry of checked-out
// VMs and the route table; the pool itself is the single source of
// truth for warm/booting/active slot counts. ledger is optional (may
// be nil in tests) and is read-only from here: GET /vms uses it to
// surface recent slot history across a daemon restart, when the
// in-memory registry itself has none.
type Server struct {
	pool    *pool.Pool
	reg     *registry
	ledger  *ledger.Ledger
	metrics *Metrics
	logger  *slog.Logger
	mux     *http.ServeMux
}

// NewServer wires a Server around an already-started pool. led may be
// nil, in which case GET /vms reports live VMs only, with no history.
func NewServer(p *pool.Pool, led *ledger.Ledger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		pool:    p,
		reg:     newRegistry(),
		ledger:  led,
		metrics: newMetrics(),
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the fully wrapped HTTP handler: body-size cap first,
// then request-ID tagging, then routing.
func (s *Server) Handler() http.Handler {
	return s.bodySizeMiddleware(s.requestIDMiddleware(s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)
	s.mux.HandleFunc("GET /vms", s.handleListVMs)
	s.mux.HandleFunc("POST /vms/acquire", s.handleAcquire)
	s.mux.HandleFunc("POST /vms/{id}/run", s.handleRun)
	s.mux.HandleFunc("POST /vms/{id}/pipeline", s.handlePipeline)
	s.mux.HandleFunc("POST /vms/{id}/release", s.handleRelease)
	s.mux.HandleFunc("GET /pool/status", s.handlePoolStatus)
	s.mux.HandleFunc("POST /pool/resize", s.handlePoolResize)
}

// activeCount, poolWarm, and poolBooting satisfy gaugeSource for
// handleMetrics, pulling live numbers straight from the registry and
// pool rather than tracking them as separate counters that could drift.
func (s *Server) activeCount() int { return len(s.reg.list()) }
func (s *Server) poolWarm() int    { return s.pool.Stats().Warm }
func (s *Server) poolBooting() int { return s.pool.Stats().Booting }

// Shutdown drains every checked-out VM (releasing it back through the
// pool, which per the no-recycling invariant shuts it down rather than
// rewarming it), stops the pool's own slots, then shuts the HTTP
// server down. httpServer is supplied by the caller (cmd/carapaced)
// since *http.Server itself isn't owned here.
func (s *Server) Shutdown(ctx context.Context, httpServer *http.Server) error {
	for _, vm := range s.reg.drain() {
		s.pool.Release(vm.runner)
	}
	if err := s.pool.Stop(ctx); err != nil {
		s.logger.Warn("pool stop failed", "error", err)
	}
	return httpServer.Shutdown(ctx)
}

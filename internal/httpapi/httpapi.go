// Package httpapi serves the process's health and metrics endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReadyChecker reports whether the router has at least seeded its
// forwarding table and is accepting peers.
type ReadyChecker interface {
	Ready() bool
}

// Server exposes /healthz, /readyz, and /metrics.
type Server struct {
	srv *http.Server
	log *zap.Logger
}

// New builds a Server bound to addr. ready may be nil, in which case
// /readyz always reports ready.
func New(addr string, ready ReadyChecker, log *zap.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{log: log}

	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		s.handleReadyz(w, r, ready)
	})
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start begins serving in the background. It returns once the listener
// is bound so callers know startup succeeded before proceeding.
func (s *Server) Start() error {
	ln, err := newListener(s.srv.Addr)
	if err != nil {
		return err
	}
	s.log.Info("httpapi: listening", zap.String("addr", s.srv.Addr))
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("httpapi: server error", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request, ready ReadyChecker) {
	w.Header().Set("Content-Type", "application/json")
	if ready != nil && !ready.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

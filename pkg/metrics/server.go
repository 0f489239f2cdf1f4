package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/conductorsdk/worker-go/internal/logger"
)

// Server exposes a collector over HTTP: GET /metrics in Prometheus text
// format and GET /health for liveness probes.
type Server struct {
	srv *http.Server
}

// HealthFunc reports whether the owning task handler is healthy.
type HealthFunc func() bool

// NewServer builds the exposition server on the given port.
func NewServer(port int, collector *Collector, healthy HealthFunc) *Server {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", collector.Handler())
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if healthy != nil && !healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"status":"unhealthy"}`)
			return
		}
		fmt.Fprint(w, `{"status":"ok"}`)
	})

	return &Server{
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", s.srv.Addr).Msg("metrics server error")
		}
	}()
	logger.Info().Str("addr", s.srv.Addr).Msg("metrics server started")
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

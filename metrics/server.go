package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes /metrics over HTTP for the lifetime of a CLI invocation.
// Use this only if the host process does not already expose metrics.
type Server struct {
	server  *http.Server
	errChan chan error
}

// NewServer creates a metrics server on addr serving the default registry.
// Example address: ":9090" or "localhost:9090"
func NewServer(addr string) *Server {
	return NewServerFor(addr, prometheus.DefaultGatherer)
}

// NewServerFor creates a metrics server on addr serving gatherer.
func NewServerFor(addr string, gatherer prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		errChan: make(chan error, 1),
	}
}

// Handler returns the HTTP handler serving /metrics.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the metrics server in a goroutine.
// Returns immediately. Check Err() to detect startup failures.
// Use Shutdown to stop the server.
func (s *Server) Start() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errChan <- err
		}
	}()
}

// Err returns any error that occurred during server startup or operation.
// This is non-blocking and returns nil if no error has occurred.
func (s *Server) Err() error {
	select {
	case err := <-s.errChan:
		return err
	default:
		return nil
	}
}

// Shutdown gracefully shuts down the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

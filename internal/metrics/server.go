package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// MetricsServer handles exposing metrics via HTTP
type MetricsServer struct {
	server *http.Server
	logger *logrus.Entry
}

// ServerOption customizes a MetricsServer.
type ServerOption func(r chi.Router)

// WithProfiling mounts the net/http/pprof handlers under /debug.
func WithProfiling() ServerOption {
	return func(r chi.Router) {
		r.Mount("/debug", middleware.Profiler())
	}
}

// NewMetricsServer serves reg on /metrics and a liveness probe on /health.
func NewMetricsServer(addr string, reg *prometheus.Registry, opts ...ServerOption) *MetricsServer {
	s := &MetricsServer{
		logger: logrus.WithField("component", "metrics_server"),
	}

	metricsHandler := promhttp.InstrumentMetricHandler(
		reg,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			Registry:          reg,
		}),
	)

	mux := chi.NewRouter()
	mux.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debugf("Metrics request from %s", r.RemoteAddr)
		metricsHandler.ServeHTTP(w, r)
	})
	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	for _, opt := range opts {
		opt(mux)
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until ctx is cancelled, then shuts the listener down.
func (s *MetricsServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("Shutting down metrics server")
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Error("Error shutting down server")
		}
	}()

	s.logger.Infof("Metrics server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		s.logger.WithError(err).Error("Error starting server")
		return err
	}
	s.logger.Info("Metrics server shutdown complete")
	return nil
}

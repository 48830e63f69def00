// Package api exposes card registration and pipeline introspection over HTTP.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/alejoacosta74/cardbatch/internal/events"
	"github.com/alejoacosta74/cardbatch/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Server is the public HTTP API.
type Server struct {
	registry Registry
	recorder *metrics.Recorder
	eventBus events.Bus
	upgrader websocket.Upgrader
	router   chi.Router
	server   *http.Server
	logger   *logrus.Entry
}

// NewServer builds the API routes. The server does not listen until Start.
func NewServer(addr string, registry Registry, recorder *metrics.Recorder, eventBus events.Bus) *Server {
	s := &Server{
		registry: registry,
		recorder: recorder,
		eventBus: eventBus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logrus.WithField("component", "api_server"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Route("/cards", func(r chi.Router) {
			r.Post("/", s.handleRegister)
			r.Get("/", s.handleListPending)
		})
		r.Get("/stats", s.handleStats)
		r.Post("/flush", s.handleFlush)
		r.Get("/batches/stream", s.handleBatchStream)
	})
	s.router = r

	s.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled. Open batch streams end with ctx.
func (s *Server) Start(ctx context.Context) error {
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("Shutting down API server")
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Error("Error shutting down server")
		}
	}()

	s.logger.Infof("API server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		s.logger.WithError(err).Error("Error starting server")
		return err
	}
	s.logger.Info("API server shutdown complete")
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.logger.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"took":       time.Since(start),
		}).Debug("Request served")
	})
}

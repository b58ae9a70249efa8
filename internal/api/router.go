package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gree-bridge/internal/bridges/gree"
)

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/history", s.handleGetDeviceHistory)
				r.Post("/command", s.handleDeviceCommand)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	return r
}

// handleHealth returns the bridge health message. Degraded and stopping
// bridges answer 503 so load balancers and probes can act on the code.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := s.bridge.Health()
	if health.Version == "" {
		health.Version = s.version
	}

	status := http.StatusOK
	switch health.Status {
	case gree.HealthDegraded, gree.HealthStopping:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

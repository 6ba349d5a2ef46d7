package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds the storage check behind /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Agents built against the first release post here.
	r.Post("/checkin", s.handleCheckIn)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/checkin", s.handleCheckIn)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{serial}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/history", s.handleDeviceHistory)
			})
		})
	})

	return r
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
	MQTT     string `json:"mqtt,omitempty"`
	InfluxDB string `json:"influxdb,omitempty"`
}

// handleHealth returns the server health status. Storage failure makes the
// server unhealthy; optional brokers only report their link state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:   "ok",
		Version:  s.version,
		Database: "ok",
		MQTT:     linkState(s.mqtt),
		InfluxDB: linkState(s.influx),
	}
	status := http.StatusOK

	if err := s.database.HealthCheck(ctx); err != nil {
		s.logger.Error("database health check failed", "error", err)
		resp.Status = "unavailable"
		resp.Database = "unavailable"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}

func linkState(c ConnectionReporter) string {
	switch {
	case c == nil:
		return ""
	case c.IsConnected():
		return "connected"
	default:
		return "disconnected"
	}
}

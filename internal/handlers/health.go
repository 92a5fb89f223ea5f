package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cheet0dust/The-Nothing-Club/internal/constants"
	"github.com/cheet0dust/The-Nothing-Club/internal/ingest"
)

// HealthStatus represents the health status of the service.
type HealthStatus string

const (
	// StatusHealthy indicates the service is healthy.
	StatusHealthy HealthStatus = "healthy"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status        HealthStatus `json:"status"`
	Timestamp     time.Time    `json:"timestamp"`
	Uptime        string       `json:"uptime,omitempty"`
	SessionsToday int          `json:"sessions_today"`
}

// ReadinessResponse represents the readiness check response.
type ReadinessResponse struct {
	Ready     bool      `json:"ready"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthHandler provides health check and monitoring endpoints.
type HealthHandler struct {
	coordinator *ingest.Coordinator
	logger      *logrus.Logger
	startTime   time.Time
}

// NewHealthHandler creates a new health check handler.
func NewHealthHandler(coordinator *ingest.Coordinator, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{
		coordinator: coordinator,
		logger:      logger,
		startTime:   time.Now(),
	}
}

// Health handles GET /api/v1/health. The service holds its state in memory,
// so a responsive process is a healthy one.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        StatusHealthy,
		Timestamp:     time.Now(),
		Uptime:        time.Since(h.startTime).Round(time.Second).String(),
		SessionsToday: h.coordinator.SessionsToday(time.Now()),
	}

	h.writeJSONResponse(w, http.StatusOK, resp)
}

// Liveness handles GET /api/v1/health/live.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Readiness handles GET /api/v1/health/ready.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	resp := ReadinessResponse{
		Ready:     true,
		Timestamp: time.Now(),
	}

	h.writeJSONResponse(w, http.StatusOK, resp)
}

func (h *HealthHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.WithError(err).Error("Failed to encode health response")
	}
}

package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cheet0dust/The-Nothing-Club/internal/constants"
	"github.com/cheet0dust/The-Nothing-Club/internal/ingest"
)

// StatsHandler serves the read-only aggregate views.
type StatsHandler struct {
	coordinator *ingest.Coordinator
	logger      *logrus.Logger
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(coordinator *ingest.Coordinator, logger *logrus.Logger) *StatsHandler {
	return &StatsHandler{
		coordinator: coordinator,
		logger:      logger,
	}
}

// Stats handles GET /api/v1/stats.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := h.coordinator.Stats(time.Now())

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.WithError(err).Error("Failed to encode stats response")
	}
}

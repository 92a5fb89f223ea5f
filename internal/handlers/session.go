// Package handlers contains the HTTP handlers for session submission,
// aggregate stats, and health endpoints.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cheet0dust/The-Nothing-Club/internal/constants"
	"github.com/cheet0dust/The-Nothing-Club/internal/ingest"
	"github.com/cheet0dust/The-Nothing-Club/internal/middleware"
	"github.com/cheet0dust/The-Nothing-Club/internal/models"
)

// maxBodyBytes caps the request body for a session submission. Valid payloads
// are two small fields; anything larger is not a session.
const maxBodyBytes = 4096

// SessionHandler accepts session submissions and runs them through the
// ingestion pipeline.
type SessionHandler struct {
	coordinator *ingest.Coordinator
	logger      *logrus.Logger
}

// NewSessionHandler creates a new session submission handler.
func NewSessionHandler(coordinator *ingest.Coordinator, logger *logrus.Logger) *SessionHandler {
	return &SessionHandler{
		coordinator: coordinator,
		logger:      logger,
	}
}

// Submit handles POST /api/v1/sessions.
func (h *SessionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	source := middleware.ClientIP(r)

	var req models.SessionRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		ingestErr := models.NewInvalidInput(models.SubkindMalformedBody, "Invalid JSON format")
		h.coordinator.RecordInvalid(source, ingestErr, now)
		h.writeErrorResponse(w, ingestErr, now)
		return
	}

	resp, ingestErr := h.coordinator.Submit(source, &req, now)
	if ingestErr != nil {
		h.writeErrorResponse(w, ingestErr, now)
		return
	}

	h.writeJSONResponse(w, http.StatusCreated, resp)
}

func (h *SessionHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

func (h *SessionHandler) writeErrorResponse(w http.ResponseWriter, ingestErr *models.IngestError, now time.Time) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	if ingestErr.StatusCode == http.StatusTooManyRequests {
		w.Header().Set(constants.HeaderRetryAfter, retryAfter(ingestErr, now))
	}
	w.WriteHeader(ingestErr.StatusCode)

	if err := json.NewEncoder(w).Encode(ingestErr); err != nil {
		h.logger.WithError(err).Error("Failed to encode error response")
	}

	h.logger.WithFields(logrus.Fields{
		"status_code": ingestErr.StatusCode,
		"error":       ingestErr.Code,
	}).Warn("Session submission rejected")
}

// retryAfter estimates when a retry is worth making. Rate-window denials
// clear within a minute; the daily cap resets at the next UTC midnight.
func retryAfter(ingestErr *models.IngestError, now time.Time) string {
	if ingestErr.Code == models.CodeDailyLimit {
		next := now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
		seconds := int(next.Sub(now.UTC()).Seconds())
		if seconds < 1 {
			seconds = 1
		}
		return strconv.Itoa(seconds)
	}
	return "60"
}

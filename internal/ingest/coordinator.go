// Package ingest wires the admission, validation, storage, and escalation
// stages into the single submission pipeline the HTTP layer calls into.
package ingest

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cheet0dust/The-Nothing-Club/internal/config"
	"github.com/cheet0dust/The-Nothing-Club/internal/metrics"
	"github.com/cheet0dust/The-Nothing-Club/internal/models"
	"github.com/cheet0dust/The-Nothing-Club/internal/security"
	"github.com/cheet0dust/The-Nothing-Club/internal/stats"
	"github.com/cheet0dust/The-Nothing-Club/internal/store"
)

// Rejection reason labels for the sessions_rejected metric.
const (
	reasonRateLimited = "rate_limited"
	reasonDailyLimit  = "daily_limit"
	reasonBlocked     = "blocked"
	reasonInvalid     = "invalid_input"
)

// Coordinator runs a submission through admission control, validation,
// storage, and percentile computation, and feeds every denial into the
// escalation detector.
type Coordinator struct {
	limits   *config.LimitsConfig
	limiter  *security.RateLimiter
	events   *security.EventLog
	detector *security.Detector
	sessions *store.SessionStore
	logger   *logrus.Logger
	metrics  *metrics.Metrics
}

// NewCoordinator creates the ingestion pipeline from its assembled stages.
func NewCoordinator(
	limits *config.LimitsConfig,
	limiter *security.RateLimiter,
	events *security.EventLog,
	detector *security.Detector,
	sessions *store.SessionStore,
	logger *logrus.Logger,
	m *metrics.Metrics,
) *Coordinator {
	return &Coordinator{
		limits:   limits,
		limiter:  limiter,
		events:   events,
		detector: detector,
		sessions: sessions,
		logger:   logger,
		metrics:  m,
	}
}

// Submit processes one session submission from the given source. It returns
// the acceptance response, or an *IngestError describing the denial. Every
// denial is followed by an escalation pass so abuse patterns are recognized
// as they form, not on some later poll.
func (c *Coordinator) Submit(source string, req *models.SessionRequest, now time.Time) (*models.SessionResponse, *models.IngestError) {
	if ingestErr := c.limiter.Admit(source, now); ingestErr != nil {
		c.rejected(source, rejectionReason(ingestErr), now)
		return nil, ingestErr
	}

	session, ingestErr := req.Validate(now, c.limits.MinDuration, c.limits.MaxDuration, c.limits.TimestampSkew)
	if ingestErr != nil {
		c.limiter.Release(source, now)
		c.RecordInvalid(source, ingestErr, now)
		return nil, ingestErr
	}

	result := c.sessions.Append(session)

	percentile := stats.Percentile(session.Duration, result.Priors)

	c.metrics.SessionsAccepted.Inc()
	c.metrics.PercentileServed.Observe(float64(percentile))

	c.logger.WithFields(logrus.Fields{
		"source":         security.MaskSource(source),
		"duration":       session.Duration,
		"date_key":       session.DateKey,
		"percentile":     percentile,
		"sessions_today": result.SessionsToday,
	}).Info("Session accepted")

	return &models.SessionResponse{
		Message:           stats.MessageFor(percentile),
		Duration:          session.Duration,
		DurationFormatted: stats.FormatDuration(session.Duration),
		Percentile:        percentile,
		SessionsToday:     result.SessionsToday,
		TotalSessions:     result.TotalSessions,
	}, nil
}

// RecordInvalid logs an invalid submission as a security event and runs an
// escalation pass. The handler calls this directly for payloads that fail
// before validation, such as unparseable JSON.
func (c *Coordinator) RecordInvalid(source string, ingestErr *models.IngestError, now time.Time) {
	c.events.Record(models.EventInvalidData, source, models.SeverityInfo, ingestErr.Subkind, now)
	c.metrics.SessionsRejected.WithLabelValues(reasonInvalid).Inc()
	c.detector.Evaluate(source, now)
}

// Stats returns the aggregate view for the date containing now.
func (c *Coordinator) Stats(now time.Time) *models.StatsResponse {
	return c.sessions.Stats(now)
}

// SessionsToday returns the number of accepted sessions for the date
// containing now.
func (c *Coordinator) SessionsToday(now time.Time) int {
	return c.sessions.Stats(now).Today.Sessions
}

// rejected counts the denial and runs an escalation pass. The limiter has
// already recorded the denial event itself.
func (c *Coordinator) rejected(source, reason string, now time.Time) {
	c.metrics.SessionsRejected.WithLabelValues(reason).Inc()
	c.detector.Evaluate(source, now)
}

// rejectionReason maps an admission error to its metric label.
func rejectionReason(ingestErr *models.IngestError) string {
	switch ingestErr.Code {
	case models.CodeRateLimited:
		return reasonRateLimited
	case models.CodeDailyLimit:
		return reasonDailyLimit
	case models.CodeSourceBlocked:
		return reasonBlocked
	default:
		return reasonInvalid
	}
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Severity classifies a security event.
type Severity string

const (
	SeverityInfo       Severity = "INFO"
	SeverityWarning    Severity = "WARNING"
	SeveritySuspicious Severity = "SUSPICIOUS"
	SeverityCritical   Severity = "CRITICAL"
)

// EventType identifies the kind of abuse-relevant event.
type EventType string

const (
	// EventRateLimitExceeded fires when the per-minute sliding window denies a request.
	EventRateLimitExceeded EventType = "RATE_LIMIT_EXCEEDED"
	// EventDailyLimitExceeded fires when the daily accepted-session cap denies a request.
	EventDailyLimitExceeded EventType = "DAILY_LIMIT_EXCEEDED"
	// EventBlockedIPAccess fires when a blocked source attempts access.
	EventBlockedIPAccess EventType = "BLOCKED_IP_ACCESS"
	// EventInvalidData fires when submitted data fails validation.
	EventInvalidData EventType = "INVALID_DATA"
	// EventRapidFire fires when a source hammers the admission gate itself.
	EventRapidFire EventType = "RAPID_FIRE_ATTACK"
	// EventPossibleScraping fires on sustained high request volume.
	EventPossibleScraping EventType = "POSSIBLE_SCRAPING"
	// EventSystematicProbing fires when a source cycles distinct invalid inputs.
	EventSystematicProbing EventType = "SYSTEMATIC_PROBING"
)

// ViolationTypes are the event types that count toward violation-based
// escalation thresholds.
var ViolationTypes = map[EventType]bool{
	EventRateLimitExceeded:  true,
	EventDailyLimitExceeded: true,
	EventBlockedIPAccess:    true,
	EventInvalidData:        true,
}

// SecurityEvent is one append-only record of abuse-relevant activity.
// Source holds the anonymized identifier; raw addresses are never retained.
type SecurityEvent struct {
	ID         uuid.UUID `json:"id"`
	Type       EventType `json:"type"`
	Source     string    `json:"source"`
	Severity   Severity  `json:"severity"`
	OccurredAt time.Time `json:"occurred_at"`
	Detail     string    `json:"detail,omitempty"`
}

// AlertRequest is handed to the alert delivery collaborator when an
// escalation rule fires. The core never performs delivery itself.
type AlertRequest struct {
	Severity     Severity        `json:"severity"`
	Source       string          `json:"source"`
	Summary      string          `json:"summary"`
	RecentEvents []SecurityEvent `json:"recent_events,omitempty"`
}

// Package security implements the abuse-resistance core of the ingestion
// pipeline: the security event log, the per-source rate limiter, and the
// escalation detector. All mutable state lives in memory, is guarded by
// per-component mutexes, and expires lazily on access.
package security

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cheet0dust/The-Nothing-Club/internal/metrics"
	"github.com/cheet0dust/The-Nothing-Club/internal/models"
)

// maskedSuffixLen is how much of a non-IPv4 source survives masking.
const maskedSuffixLen = 8

// EventLog is an append-only, queryable history of abuse-relevant events
// keyed by anonymized source. Entries are immutable once appended and are
// discarded lazily once older than the retention window.
//
// Thread Safety: all methods are safe for concurrent use.
type EventLog struct {
	mu        sync.Mutex
	events    map[string][]models.SecurityEvent
	retention time.Duration
	logger    *logrus.Logger
	metrics   *metrics.Metrics
}

// NewEventLog creates an event log retaining entries for the given window.
// The metrics parameter may be nil (e.g., in tests).
func NewEventLog(retention time.Duration, logger *logrus.Logger, m *metrics.Metrics) *EventLog {
	return &EventLog{
		events:    make(map[string][]models.SecurityEvent),
		retention: retention,
		logger:    logger,
		metrics:   m,
	}
}

// MaskSource anonymizes a raw source address deterministically so the same
// source always maps to the same identifier. IPv4 addresses keep their first
// two octets; anything else keeps a short prefix.
func MaskSource(raw string) string {
	if ip := net.ParseIP(raw); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return fmt.Sprintf("%d.%d.x.x", v4[0], v4[1])
		}
	}
	if len(raw) > maskedSuffixLen {
		return raw[:maskedSuffixLen] + "..."
	}
	return raw
}

// Record appends a new event for the source and returns its ID. The raw
// source is masked before storage; only the masked form is retained. The
// event is also emitted to the structured log sink at a severity-mapped
// level.
func (l *EventLog) Record(
	eventType models.EventType,
	rawSource string,
	severity models.Severity,
	detail string,
	now time.Time,
) uuid.UUID {
	masked := MaskSource(rawSource)
	event := models.SecurityEvent{
		ID:         uuid.New(),
		Type:       eventType,
		Source:     masked,
		Severity:   severity,
		OccurredAt: now,
		Detail:     detail,
	}

	l.mu.Lock()
	l.events[masked] = appendPruned(l.events[masked], event, now.Add(-l.retention))
	l.mu.Unlock()

	l.emit(event)

	if l.metrics != nil {
		l.metrics.SecurityEvents.WithLabelValues(string(eventType), string(severity)).Inc()
	}

	return event.ID
}

// RecentEvents returns the source's events within the window, oldest first.
// The returned slice is a copy; entries are never mutated after append.
func (l *EventLog) RecentEvents(rawSource string, window time.Duration, now time.Time) []models.SecurityEvent {
	masked := MaskSource(rawSource)
	cutoff := now.Add(-window)

	l.mu.Lock()
	defer l.mu.Unlock()

	var out []models.SecurityEvent
	for _, e := range l.events[masked] {
		if !e.OccurredAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// CountByType returns how many events of the given type the source produced
// within the window.
func (l *EventLog) CountByType(rawSource string, eventType models.EventType, window time.Duration, now time.Time) int {
	masked := MaskSource(rawSource)
	cutoff := now.Add(-window)

	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for _, e := range l.events[masked] {
		if e.Type == eventType && !e.OccurredAt.Before(cutoff) {
			count++
		}
	}
	return count
}

// CountViolations returns how many violation-class events the source produced
// within the window.
func (l *EventLog) CountViolations(rawSource string, window time.Duration, now time.Time) int {
	masked := MaskSource(rawSource)
	cutoff := now.Add(-window)

	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for _, e := range l.events[masked] {
		if models.ViolationTypes[e.Type] && !e.OccurredAt.Before(cutoff) {
			count++
		}
	}
	return count
}

// CountDistinctDetails returns how many distinct detail strings the source
// produced for the given event type within the window. Used to recognize
// systematic probing across invalid-input kinds.
func (l *EventLog) CountDistinctDetails(
	rawSource string,
	eventType models.EventType,
	window time.Duration,
	now time.Time,
) int {
	masked := MaskSource(rawSource)
	cutoff := now.Add(-window)

	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[string]struct{})
	for _, e := range l.events[masked] {
		if e.Type == eventType && !e.OccurredAt.Before(cutoff) {
			seen[e.Detail] = struct{}{}
		}
	}
	return len(seen)
}

// emit writes the event to the structured log sink. CRITICAL maps to error
// level, WARNING and SUSPICIOUS to warn, INFO to info.
func (l *EventLog) emit(event models.SecurityEvent) {
	entry := l.logger.WithFields(logrus.Fields{
		"event_id": event.ID.String(),
		"type":     string(event.Type),
		"source":   event.Source,
		"severity": string(event.Severity),
		"detail":   event.Detail,
	})

	msg := "Security event: " + string(event.Type)
	switch event.Severity {
	case models.SeverityCritical:
		entry.Error(msg)
	case models.SeverityWarning, models.SeveritySuspicious:
		entry.Warn(msg)
	default:
		entry.Info(msg)
	}
}

// appendPruned appends an event to a slice, first dropping entries at or
// before the cutoff. Events are appended in insertion order, so the expired
// prefix is contiguous.
func appendPruned(events []models.SecurityEvent, event models.SecurityEvent, cutoff time.Time) []models.SecurityEvent {
	start := 0
	for start < len(events) && events[start].OccurredAt.Before(cutoff) {
		start++
	}
	if start > 0 {
		events = append(events[:0], events[start:]...)
	}
	return append(events, event)
}

// summarizeDetails joins up to limit event details for alert summaries.
func summarizeDetails(events []models.SecurityEvent, limit int) string {
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	parts := make([]string, 0, len(events))
	for _, e := range events {
		parts = append(parts, string(e.Type))
	}
	return strings.Join(parts, ", ")
}

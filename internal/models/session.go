package models

import (
	"fmt"
	"math"
	"time"
)

// DateKeyFormat is the calendar-date layout used to partition sessions.
const DateKeyFormat = "2006-01-02"

// Session is a single accepted stillness measurement. Immutable once stored.
type Session struct {
	// Duration is the session length in seconds.
	Duration int `json:"duration"`
	// SubmittedAt is the client-attributed timestamp, validated against skew.
	SubmittedAt time.Time `json:"submitted_at"`
	// DateKey is the calendar date derived from SubmittedAt (UTC).
	DateKey string `json:"date_key"`
}

// DailyBucket holds the sessions and running aggregates for one calendar date.
// Aggregates are maintained incrementally on append, never recomputed.
type DailyBucket struct {
	DateKey     string `json:"date_key"`
	Durations   []int  `json:"durations"`
	Count       int    `json:"count"`
	SumDuration int64  `json:"sum_duration"`
	MaxDuration int    `json:"max_duration"`
}

// Average returns the mean duration for the bucket, rounded to one decimal,
// or 0 for an empty bucket.
func (b *DailyBucket) Average() float64 {
	if b.Count == 0 {
		return 0
	}
	return math.Round(float64(b.SumDuration)/float64(b.Count)*10) / 10
}

// GlobalAggregate carries all-time counters, updated alongside the daily
// bucket on every accepted session.
type GlobalAggregate struct {
	TotalSessions int   `json:"total_sessions"`
	SumDuration   int64 `json:"sum_duration"`
	MaxDuration   int   `json:"max_duration"`
}

// Average returns the all-time mean duration rounded to one decimal,
// or 0 when no sessions exist.
func (g *GlobalAggregate) Average() float64 {
	if g.TotalSessions == 0 {
		return 0
	}
	return math.Round(float64(g.SumDuration)/float64(g.TotalSessions)*10) / 10
}

// SessionRequest is the inbound submission payload.
// Duration is a pointer so a missing field is distinguishable from zero;
// Timestamp is optional and defaults to server time.
type SessionRequest struct {
	Duration  *float64 `json:"duration"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// Validate checks the submission against duration bounds and timestamp skew
// and returns the Session to store. Validation failures are returned as
// *IngestError with a classifying subkind and a description that never echoes
// the submitted values beyond the configured bounds.
func (r *SessionRequest) Validate(now time.Time, minDuration, maxDuration int, skew time.Duration) (*Session, *IngestError) {
	if r.Duration == nil {
		return nil, NewInvalidInput(SubkindDurationMissing, "Duration is required")
	}

	raw := *r.Duration
	if raw != math.Trunc(raw) {
		return nil, NewInvalidInput(SubkindDurationNotInteger, "Duration must be a whole number of seconds")
	}
	duration := int(raw)

	if duration < minDuration {
		return nil, NewInvalidInput(SubkindDurationOutOfRange,
			fmt.Sprintf("Duration too short (minimum: %ds)", minDuration))
	}
	if duration > maxDuration {
		return nil, NewInvalidInput(SubkindDurationOutOfRange,
			fmt.Sprintf("Duration too long (maximum: %ds)", maxDuration))
	}

	submittedAt := now
	if r.Timestamp != "" {
		parsed, err := parseTimestamp(r.Timestamp)
		if err != nil {
			return nil, NewInvalidInput(SubkindTimestampInvalid, "Invalid timestamp format")
		}
		if parsed.Sub(now).Abs() > skew {
			return nil, NewInvalidInput(SubkindTimestampOutOfSkew, "Timestamp too far from current time")
		}
		submittedAt = parsed
	}

	return &Session{
		Duration:    duration,
		SubmittedAt: submittedAt,
		DateKey:     submittedAt.UTC().Format(DateKeyFormat),
	}, nil
}

// timestampLayouts are the accepted timestamp shapes. Clients may omit the
// zone offset; zone-less values are interpreted as UTC.
var timestampLayouts = []string{time.RFC3339, "2006-01-02T15:04:05"}

func parseTimestamp(value string) (time.Time, error) {
	var err error
	for _, layout := range timestampLayouts {
		var parsed time.Time
		if parsed, err = time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, err
}

// SessionResponse is returned for an accepted submission.
type SessionResponse struct {
	Message           string `json:"message"`
	Duration          int    `json:"duration"`
	DurationFormatted string `json:"duration_formatted"`
	Percentile        int    `json:"percentile"`
	SessionsToday     int    `json:"sessions_today"`
	TotalSessions     int    `json:"total_sessions"`
}

// PeriodStats describes one day's aggregate view.
type PeriodStats struct {
	Sessions int     `json:"sessions"`
	Average  float64 `json:"average"`
	Longest  int     `json:"longest"`
}

// AllTimeStats describes the all-time aggregate view.
type AllTimeStats struct {
	TotalSessions int     `json:"total_sessions"`
	Average       float64 `json:"average"`
	Longest       int     `json:"longest"`
}

// StatsResponse is the read-only aggregate payload.
type StatsResponse struct {
	Today   PeriodStats  `json:"today"`
	AllTime AllTimeStats `json:"all_time"`
}

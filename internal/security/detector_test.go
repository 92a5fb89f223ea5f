package security_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheet0dust/The-Nothing-Club/internal/models"
	"github.com/cheet0dust/The-Nothing-Club/internal/security"
)

// captureSink collects delivered alerts for assertions. Deliver runs on the
// detector's goroutine, so receipt goes through a channel.
type captureSink struct {
	alerts chan *models.AlertRequest
}

func newCaptureSink() *captureSink {
	return &captureSink{alerts: make(chan *models.AlertRequest, 16)}
}

func (s *captureSink) Deliver(alert *models.AlertRequest) {
	s.alerts <- alert
}

func (s *captureSink) wait(t *testing.T) *models.AlertRequest {
	t.Helper()
	select {
	case alert := <-s.alerts:
		return alert
	case <-time.After(2 * time.Second):
		t.Fatal("expected an alert delivery")
		return nil
	}
}

func (s *captureSink) expectNone(t *testing.T) {
	t.Helper()
	select {
	case alert := <-s.alerts:
		t.Fatalf("unexpected alert delivery: %s", alert.Summary)
	case <-time.After(50 * time.Millisecond):
	}
}

type detectorFixture struct {
	log      *security.EventLog
	limiter  *security.RateLimiter
	sink     *captureSink
	detector *security.Detector
}

func newDetectorFixture() *detectorFixture {
	cfg := testLimits()
	logger := testLogger()
	log := security.NewEventLog(cfg.EventRetention, logger, nil)
	limiter := security.NewRateLimiter(cfg, log, nil)
	sink := newCaptureSink()
	detector := security.NewDetector(cfg, log, limiter, sink, 5*time.Minute, logger, nil)

	return &detectorFixture{log: log, limiter: limiter, sink: sink, detector: detector}
}

func TestDetector_NoRulesFireOnQuietSource(t *testing.T) {
	t.Parallel()

	f := newDetectorFixture()
	now := time.Now()

	decision := f.detector.Evaluate("203.0.113.50", now)
	assert.False(t, decision.Blocked)
	assert.Empty(t, decision.Fired)
	f.sink.expectNone(t)
}

func TestDetector_RapidFireBlocks(t *testing.T) {
	t.Parallel()

	f := newDetectorFixture()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	source := "203.0.113.51"

	// 20 attempts inside the rate window, most of them denied.
	for i := 0; i < 20; i++ {
		f.limiter.Admit(source, now)
	}

	decision := f.detector.Evaluate(source, now)
	assert.True(t, decision.Blocked)
	assert.Contains(t, decision.Fired, "rapid_fire")
	assert.True(t, f.limiter.IsBlocked(source, now.Add(29*time.Minute)))

	// The escalation itself is recorded as an event.
	assert.Equal(t, 1, f.log.CountByType(source, models.EventRapidFire, time.Hour, now))

	alert := f.sink.wait(t)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
	assert.Equal(t, "203.0.x.x", alert.Source)
}

func TestDetector_RepeatViolationsWarnThenBlock(t *testing.T) {
	t.Parallel()

	f := newDetectorFixture()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	source := "203.0.113.52"

	// 5 violations reach the warn threshold without blocking.
	for i := 0; i < 5; i++ {
		f.log.Record(models.EventInvalidData, source, models.SeverityInfo, "duration_missing", now)
	}

	decision := f.detector.Evaluate(source, now)
	assert.False(t, decision.Blocked)
	assert.Contains(t, decision.Fired, "repeat_violations_warn")

	alert := f.sink.wait(t)
	assert.Equal(t, models.SeverityWarning, alert.Severity)

	// 5 more cross the block threshold.
	for i := 0; i < 5; i++ {
		f.log.Record(models.EventInvalidData, source, models.SeverityInfo, "duration_missing", now)
	}

	decision = f.detector.Evaluate(source, now)
	assert.True(t, decision.Blocked)
	assert.Contains(t, decision.Fired, "repeat_violations_block")
	assert.NotContains(t, decision.Fired, "repeat_violations_warn")
	assert.True(t, f.limiter.IsBlocked(source, now))

	alert = f.sink.wait(t)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
}

func TestDetector_SystematicProbing(t *testing.T) {
	t.Parallel()

	f := newDetectorFixture()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	source := "203.0.113.53"

	f.log.Record(models.EventInvalidData, source, models.SeverityInfo, "duration_missing", now)
	f.log.Record(models.EventInvalidData, source, models.SeverityInfo, "timestamp_invalid", now)

	decision := f.detector.Evaluate(source, now)
	assert.NotContains(t, decision.Fired, "systematic_probing")

	f.log.Record(models.EventInvalidData, source, models.SeverityInfo, "malformed_body", now)

	decision = f.detector.Evaluate(source, now)
	assert.Contains(t, decision.Fired, "systematic_probing")
	assert.False(t, decision.Blocked)
	assert.Equal(t, 1, f.log.CountByType(source, models.EventSystematicProbing, time.Hour, now))
}

func TestDetector_PossibleScraping(t *testing.T) {
	t.Parallel()

	f := newDetectorFixture()
	start := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	source := "203.0.113.54"

	// 50 attempts spread over 50 minutes stay under the per-window rapid fire
	// threshold but cross the hourly scraping one.
	var now time.Time
	for i := 0; i < 50; i++ {
		now = start.Add(time.Duration(i) * time.Minute)
		f.limiter.Admit(source, now)
	}

	decision := f.detector.Evaluate(source, now)
	assert.Contains(t, decision.Fired, "possible_scraping")
	assert.NotContains(t, decision.Fired, "rapid_fire")
	assert.False(t, decision.Blocked)
	assert.Equal(t, 1, f.log.CountByType(source, models.EventPossibleScraping, time.Hour, now))
}

func TestDetector_BlockedAccessExtendsBlock(t *testing.T) {
	t.Parallel()

	f := newDetectorFixture()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	source := "203.0.113.55"

	f.limiter.Block(source, now.Add(time.Minute))

	// The denied attempt records BLOCKED_IP_ACCESS.
	require.NotNil(t, f.limiter.Admit(source, now))

	decision := f.detector.Evaluate(source, now)
	assert.True(t, decision.Blocked)
	assert.Contains(t, decision.Fired, "blocked_access")

	// The block was extended well past its original expiry.
	assert.True(t, f.limiter.IsBlocked(source, now.Add(20*time.Minute)))
}

func TestDetector_AlertCooldown(t *testing.T) {
	t.Parallel()

	f := newDetectorFixture()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	source := "203.0.113.56"

	for i := 0; i < 3; i++ {
		f.log.Record(models.EventInvalidData, source, models.SeverityInfo, "duration_missing", now)
		f.log.Record(models.EventInvalidData, source, models.SeverityInfo, "timestamp_invalid", now)
	}

	f.detector.Evaluate(source, now)
	f.sink.wait(t)

	// Re-evaluating inside the cooldown stays silent.
	f.detector.Evaluate(source, now.Add(time.Minute))
	f.sink.expectNone(t)

	// After the cooldown the same rule may alert again.
	f.detector.Evaluate(source, now.Add(6*time.Minute))
	f.sink.wait(t)
}

func TestDetector_NilSinkOnlyLogs(t *testing.T) {
	t.Parallel()

	cfg := testLimits()
	logger := testLogger()
	log := security.NewEventLog(cfg.EventRetention, logger, nil)
	limiter := security.NewRateLimiter(cfg, log, nil)
	detector := security.NewDetector(cfg, log, limiter, nil, 5*time.Minute, logger, nil)

	now := time.Now()
	source := "203.0.113.57"
	for i := 0; i < 20; i++ {
		limiter.Admit(source, now)
	}

	// Must not panic without a sink.
	decision := detector.Evaluate(source, now)
	assert.True(t, decision.Blocked)
}

package security_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheet0dust/The-Nothing-Club/internal/models"
	"github.com/cheet0dust/The-Nothing-Club/internal/security"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()

	limits := testLimits()
	log := security.NewEventLog(limits.EventRetention, testLogger(), nil)
	limiter := security.NewRateLimiter(limits, log, nil)

	start := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	source := "203.0.113.1"

	// First 10 requests in the window are admitted.
	for i := 0; i < limits.RequestsPerMinute; i++ {
		err := limiter.Admit(source, start.Add(time.Duration(i)*time.Second))
		require.Nil(t, err, "request %d should be admitted", i+1)
	}

	// The 11th inside the window is denied and recorded.
	err := limiter.Admit(source, start.Add(30*time.Second))
	require.NotNil(t, err)
	assert.Equal(t, models.CodeRateLimited, err.Code)
	assert.Equal(t, 1, log.CountByType(source, models.EventRateLimitExceeded, time.Hour, start.Add(30*time.Second)))

	// Once the earliest admissions fall out of the window, capacity returns.
	err = limiter.Admit(source, start.Add(61*time.Second))
	assert.Nil(t, err)
}

func TestRateLimiter_DeniedRequestsDoNotConsumeWindow(t *testing.T) {
	t.Parallel()

	limits := testLimits()
	log := security.NewEventLog(limits.EventRetention, testLogger(), nil)
	limiter := security.NewRateLimiter(limits, log, nil)

	start := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	source := "203.0.113.2"

	for i := 0; i < limits.RequestsPerMinute; i++ {
		require.Nil(t, limiter.Admit(source, start))
	}
	for i := 0; i < 5; i++ {
		require.NotNil(t, limiter.Admit(source, start.Add(time.Second)))
	}

	// All 10 admissions expire together; the denials did not extend the window.
	assert.Nil(t, limiter.Admit(source, start.Add(61*time.Second)))
}

func TestRateLimiter_DailyLimit(t *testing.T) {
	t.Parallel()

	limits := testLimits()
	limits.SessionsPerDay = 3
	log := security.NewEventLog(limits.EventRetention, testLogger(), nil)
	limiter := security.NewRateLimiter(limits, log, nil)

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	source := "203.0.113.3"

	for i := 0; i < 3; i++ {
		require.Nil(t, limiter.Admit(source, now.Add(time.Duration(i)*time.Minute)))
	}

	err := limiter.Admit(source, now.Add(10*time.Minute))
	require.NotNil(t, err)
	assert.Equal(t, models.CodeDailyLimit, err.Code)

	// A new calendar date resets the cap.
	nextDay := time.Date(2026, 3, 16, 0, 0, 1, 0, time.UTC)
	assert.Nil(t, limiter.Admit(source, nextDay))
}

func TestRateLimiter_DailyCapReservedAtAdmission(t *testing.T) {
	t.Parallel()

	limits := testLimits()
	limits.SessionsPerDay = 1
	log := security.NewEventLog(limits.EventRetention, testLogger(), nil)
	limiter := security.NewRateLimiter(limits, log, nil)

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	source := "203.0.113.4"

	// The first admission holds the only slot; a second in-flight submission
	// is denied even though nothing has been stored yet.
	require.Nil(t, limiter.Admit(source, now))

	err := limiter.Admit(source, now.Add(time.Second))
	require.NotNil(t, err)
	assert.Equal(t, models.CodeDailyLimit, err.Code)
}

func TestRateLimiter_ConcurrentAdmitNeverOversubscribesDailyCap(t *testing.T) {
	t.Parallel()

	limits := testLimits()
	limits.SessionsPerDay = 1
	limits.RequestsPerMinute = 100
	log := security.NewEventLog(limits.EventRetention, testLogger(), nil)
	limiter := security.NewRateLimiter(limits, log, nil)

	now := time.Now()
	source := "203.0.113.40"

	const callers = 20
	admitted := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		go func() {
			admitted <- limiter.Admit(source, now) == nil
		}()
	}

	count := 0
	for i := 0; i < callers; i++ {
		if <-admitted {
			count++
		}
	}
	assert.Equal(t, 1, count, "only one concurrent submission may hold the daily slot")
}

func TestRateLimiter_ReleaseReturnsDailySlot(t *testing.T) {
	t.Parallel()

	limits := testLimits()
	limits.SessionsPerDay = 2
	limits.RequestsPerMinute = 100
	limits.RapidFireAttempts = 200
	log := security.NewEventLog(limits.EventRetention, testLogger(), nil)
	limiter := security.NewRateLimiter(limits, log, nil)

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	source := "203.0.113.41"

	// Admitted requests that are released (invalid submissions) leave the
	// daily budget untouched.
	for i := 0; i < 10; i++ {
		at := now.Add(time.Duration(i) * time.Second)
		require.Nil(t, limiter.Admit(source, at))
		limiter.Release(source, at)
	}

	require.Nil(t, limiter.Admit(source, now.Add(time.Minute)))
	require.Nil(t, limiter.Admit(source, now.Add(2*time.Minute)))

	err := limiter.Admit(source, now.Add(3*time.Minute))
	require.NotNil(t, err)
	assert.Equal(t, models.CodeDailyLimit, err.Code)
}

func TestRateLimiter_GlobalDailyLimit(t *testing.T) {
	t.Parallel()

	limits := testLimits()
	limits.SessionsPerDay = 2
	limits.DailyLimitPerSource = false
	log := security.NewEventLog(limits.EventRetention, testLogger(), nil)
	limiter := security.NewRateLimiter(limits, log, nil)

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	require.Nil(t, limiter.Admit("203.0.113.5", now))
	require.Nil(t, limiter.Admit("198.51.100.5", now))

	// A third source shares the cap.
	err := limiter.Admit("192.0.2.5", now)
	require.NotNil(t, err)
	assert.Equal(t, models.CodeDailyLimit, err.Code)
}

func TestRateLimiter_Block(t *testing.T) {
	t.Parallel()

	limits := testLimits()
	log := security.NewEventLog(limits.EventRetention, testLogger(), nil)
	limiter := security.NewRateLimiter(limits, log, nil)

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	source := "203.0.113.6"

	limiter.Block(source, now.Add(30*time.Minute))
	assert.True(t, limiter.IsBlocked(source, now))

	err := limiter.Admit(source, now.Add(time.Minute))
	require.NotNil(t, err)
	assert.Equal(t, models.CodeSourceBlocked, err.Code)
	assert.Equal(t, 403, err.StatusCode)

	// Blocked attempts are recorded for escalation.
	assert.Equal(t, 1, log.CountByType(source, models.EventBlockedIPAccess, time.Hour, now.Add(time.Minute)))

	// The block expires on its own.
	assert.False(t, limiter.IsBlocked(source, now.Add(31*time.Minute)))
	assert.Nil(t, limiter.Admit(source, now.Add(31*time.Minute)))
}

func TestRateLimiter_BlockNeverShortens(t *testing.T) {
	t.Parallel()

	limits := testLimits()
	log := security.NewEventLog(limits.EventRetention, testLogger(), nil)
	limiter := security.NewRateLimiter(limits, log, nil)

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	source := "203.0.113.7"

	limiter.Block(source, now.Add(time.Hour))
	limiter.Block(source, now.Add(10*time.Minute))

	assert.True(t, limiter.IsBlocked(source, now.Add(30*time.Minute)))
}

func TestRateLimiter_AttemptsTracksDenials(t *testing.T) {
	t.Parallel()

	limits := testLimits()
	log := security.NewEventLog(limits.EventRetention, testLogger(), nil)
	limiter := security.NewRateLimiter(limits, log, nil)

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	source := "203.0.113.8"

	// 15 calls: 10 admitted, 5 denied. All count as attempts.
	for i := 0; i < 15; i++ {
		limiter.Admit(source, now.Add(time.Duration(i)*time.Second))
	}

	assert.Equal(t, 15, limiter.Attempts(source, time.Minute, now.Add(15*time.Second)))
	assert.Equal(t, 0, limiter.Attempts("198.51.100.99", time.Minute, now))
}

func TestRateLimiter_SourcesAreIndependent(t *testing.T) {
	t.Parallel()

	limits := testLimits()
	log := security.NewEventLog(limits.EventRetention, testLogger(), nil)
	limiter := security.NewRateLimiter(limits, log, nil)

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	for i := 0; i < limits.RequestsPerMinute; i++ {
		require.Nil(t, limiter.Admit("203.0.113.9", now))
	}
	require.NotNil(t, limiter.Admit("203.0.113.9", now))

	// A different source is unaffected.
	assert.Nil(t, limiter.Admit("198.51.100.9", now))
}

func TestRateLimiter_ConcurrentAdmitNeverOverAdmits(t *testing.T) {
	t.Parallel()

	limits := testLimits()
	log := security.NewEventLog(limits.EventRetention, testLogger(), nil)
	limiter := security.NewRateLimiter(limits, log, nil)

	now := time.Now()
	source := "203.0.113.10"

	const callers = 50
	admitted := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		go func() {
			admitted <- limiter.Admit(source, now) == nil
		}()
	}

	count := 0
	for i := 0; i < callers; i++ {
		if <-admitted {
			count++
		}
	}
	assert.Equal(t, limits.RequestsPerMinute, count,
		fmt.Sprintf("exactly %d of %d concurrent requests may pass", limits.RequestsPerMinute, callers))
}

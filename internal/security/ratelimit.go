package security

import (
	"fmt"
	"sync"
	"time"

	"github.com/cheet0dust/The-Nothing-Club/internal/config"
	"github.com/cheet0dust/The-Nothing-Club/internal/metrics"
	"github.com/cheet0dust/The-Nothing-Club/internal/models"
)

// sweepEvery is how many admissions pass between idle-source sweeps.
const sweepEvery = 512

// staleDayKeys is how many calendar days of daily slot counters are retained
// per source before the sweep discards them.
const staleDayKeys = 2

// sourceWindow tracks one source's recent activity. Never persisted; the
// table resets on process restart.
type sourceWindow struct {
	// admissions are allowed requests inside the rate window.
	admissions []time.Time
	// attempts are all admission calls, allowed or denied, kept for the
	// detector's lookback.
	attempts []time.Time
	// dailySlots counts sessions per date key, reserved at admission and
	// returned by Release when a submission fails later in the pipeline.
	dailySlots map[string]int
	// blockedUntil denies everything before it when set.
	blockedUntil time.Time
}

// RateLimiter provides sliding-window admission control per source address.
// Every denial is reported to the event log. The checks and the bookkeeping,
// daily slot included, happen inside a single critical section so concurrent
// in-flight submissions can neither under-count a window nor oversubscribe
// the daily cap.
type RateLimiter struct {
	mu         sync.Mutex
	sources    map[string]*sourceWindow
	globalDay  map[string]int
	limits     *config.LimitsConfig
	log        *EventLog
	metrics    *metrics.Metrics
	admissions int
}

// NewRateLimiter creates a rate limiter that reports denials to the given
// event log. The metrics parameter may be nil.
func NewRateLimiter(limits *config.LimitsConfig, log *EventLog, m *metrics.Metrics) *RateLimiter {
	return &RateLimiter{
		sources:   make(map[string]*sourceWindow),
		globalDay: make(map[string]int),
		limits:    limits,
		log:       log,
		metrics:   m,
	}
}

// Admit decides whether a submission from the source may proceed. A nil
// return means allowed; otherwise the IngestError carries the denial reason.
// Attempts are tracked for the detector regardless of outcome.
func (r *RateLimiter) Admit(source string, now time.Time) *models.IngestError {
	r.mu.Lock()
	w := r.window(source)
	w.attempts = pruneBefore(append(w.attempts, now), now.Add(-r.limits.ViolationWindow))

	r.admissions++
	if r.admissions%sweepEvery == 0 {
		r.sweepLocked(now)
	}

	if now.Before(w.blockedUntil) {
		until := w.blockedUntil
		r.mu.Unlock()
		r.log.Record(models.EventBlockedIPAccess, source, models.SeverityCritical,
			fmt.Sprintf("blocked source attempted access (block expires %s)", until.Format(time.RFC3339)), now)
		return models.NewSourceBlocked()
	}

	w.admissions = pruneBefore(w.admissions, now.Add(-r.limits.RateWindow))
	if len(w.admissions) >= r.limits.RequestsPerMinute {
		count := len(w.admissions)
		r.mu.Unlock()
		r.log.Record(models.EventRateLimitExceeded, source, models.SeverityWarning,
			fmt.Sprintf("%d requests in %s", count, r.limits.RateWindow), now)
		return models.NewRateLimited()
	}

	dateKey := now.UTC().Format(models.DateKeyFormat)
	if count := r.daySlotsLocked(w, dateKey); count >= r.limits.SessionsPerDay {
		r.mu.Unlock()
		r.log.Record(models.EventDailyLimitExceeded, source, models.SeverityWarning,
			fmt.Sprintf("%d sessions already accepted for %s", count, dateKey), now)
		return models.NewDailyLimit()
	}

	w.admissions = append(w.admissions, now)
	r.reserveDaySlotLocked(w, dateKey)
	r.mu.Unlock()
	return nil
}

// Release returns the daily slot Admit reserved. Called when an admitted
// submission is rejected later in the pipeline, so invalid requests never
// consume daily capacity.
func (r *RateLimiter) Release(source string, now time.Time) {
	dateKey := now.UTC().Format(models.DateKeyFormat)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.limits.DailyLimitPerSource {
		if w, ok := r.sources[source]; ok && w.dailySlots[dateKey] > 0 {
			w.dailySlots[dateKey]--
		}
		return
	}
	if r.globalDay[dateKey] > 0 {
		r.globalDay[dateKey]--
	}
}

// Block denies the source until the given time. Extending an existing block
// never shortens it.
func (r *RateLimiter) Block(source string, until time.Time) {
	r.mu.Lock()
	w := r.window(source)
	if until.After(w.blockedUntil) {
		w.blockedUntil = until
	}
	r.updateBlockedGaugeLocked(time.Now())
	r.mu.Unlock()
}

// IsBlocked reports whether the source is under an active block.
func (r *RateLimiter) IsBlocked(source string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.sources[source]
	return ok && now.Before(w.blockedUntil)
}

// Attempts returns how many admission calls, allowed or denied, the source
// made within the window.
func (r *RateLimiter) Attempts(source string, window time.Duration, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.sources[source]
	if !ok {
		return 0
	}

	cutoff := now.Add(-window)
	count := 0
	for _, t := range w.attempts {
		if !t.Before(cutoff) {
			count++
		}
	}
	return count
}

// window returns the source's state, creating it on first request.
func (r *RateLimiter) window(source string) *sourceWindow {
	w, ok := r.sources[source]
	if !ok {
		w = &sourceWindow{dailySlots: make(map[string]int)}
		r.sources[source] = w
	}
	return w
}

func (r *RateLimiter) daySlotsLocked(w *sourceWindow, dateKey string) int {
	if r.limits.DailyLimitPerSource {
		return w.dailySlots[dateKey]
	}
	return r.globalDay[dateKey]
}

func (r *RateLimiter) reserveDaySlotLocked(w *sourceWindow, dateKey string) {
	if r.limits.DailyLimitPerSource {
		w.dailySlots[dateKey]++
		return
	}
	r.globalDay[dateKey]++
}

// sweepLocked discards sources with no recent activity, no active block, and
// no live daily counters, bounding memory by sources active within the
// detector lookback. Caller holds the mutex.
func (r *RateLimiter) sweepLocked(now time.Time) {
	cutoff := now.Add(-r.limits.ViolationWindow)
	today := now.UTC()

	for source, w := range r.sources {
		w.attempts = pruneBefore(w.attempts, cutoff)
		for dateKey := range w.dailySlots {
			if day, err := time.Parse(models.DateKeyFormat, dateKey); err == nil {
				if today.Sub(day) > staleDayKeys*24*time.Hour {
					delete(w.dailySlots, dateKey)
				}
			}
		}
		if len(w.attempts) == 0 && len(w.dailySlots) == 0 && !now.Before(w.blockedUntil) {
			delete(r.sources, source)
		}
	}

	for dateKey := range r.globalDay {
		if day, err := time.Parse(models.DateKeyFormat, dateKey); err == nil {
			if today.Sub(day) > staleDayKeys*24*time.Hour {
				delete(r.globalDay, dateKey)
			}
		}
	}

	r.updateBlockedGaugeLocked(now)
}

func (r *RateLimiter) updateBlockedGaugeLocked(now time.Time) {
	if r.metrics == nil {
		return
	}
	blocked := 0
	for _, w := range r.sources {
		if now.Before(w.blockedUntil) {
			blocked++
		}
	}
	r.metrics.BlockedSources.Set(float64(blocked))
}

// pruneBefore drops timestamps strictly before the cutoff. Timestamps are
// appended in order, so the expired prefix is contiguous.
func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	if start > 0 {
		times = append(times[:0], times[start:]...)
	}
	return times
}

package security

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cheet0dust/The-Nothing-Club/internal/config"
	"github.com/cheet0dust/The-Nothing-Club/internal/metrics"
	"github.com/cheet0dust/The-Nothing-Club/internal/models"
)

// alertEventContext is how many recent events accompany an alert.
const alertEventContext = 5

// AlertSink delivers escalation alerts to the external notification
// collaborator. Implementations must not block the ingestion path; delivery
// failures are the sink's problem to log.
type AlertSink interface {
	Deliver(alert *models.AlertRequest)
}

// Blocker is the block-enforcement half of the rate limiter consumed by the
// detector.
type Blocker interface {
	Block(source string, until time.Time)
	IsBlocked(source string, now time.Time) bool
	Attempts(source string, window time.Duration, now time.Time) int
}

// Decision is the outcome of one escalation pass.
type Decision struct {
	// Blocked is true when at least one firing rule blocked the source.
	Blocked bool
	// Fired lists the names of the rules that fired, in evaluation order.
	Fired []string
}

// rule is one declarative escalation record. Rules are evaluated uniformly
// and independently; several may fire on the same pass.
type rule struct {
	name      string
	eventType models.EventType
	severity  models.Severity
	block     bool
	// fires inspects the source's history and returns whether the rule
	// triggers plus a detail string for the recorded event and alert.
	fires func(source string, now time.Time) (bool, string)
}

// Detector recognizes abuse patterns over the event log and decides
// escalation: blocking a source and/or requesting an alert. It is invoked
// after every recorded security event.
type Detector struct {
	log      *EventLog
	limiter  Blocker
	alerts   AlertSink
	limits   *config.LimitsConfig
	logger   *logrus.Logger
	metrics  *metrics.Metrics
	cooldown time.Duration
	rules    []rule

	mu        sync.Mutex
	lastAlert map[string]time.Time
}

// NewDetector builds the detector with its escalation rule table. The alerts
// sink may be nil, in which case alerts are only logged. The cooldown
// suppresses duplicate alerts for the same rule and source.
func NewDetector(
	limits *config.LimitsConfig,
	log *EventLog,
	limiter Blocker,
	alerts AlertSink,
	cooldown time.Duration,
	logger *logrus.Logger,
	m *metrics.Metrics,
) *Detector {
	d := &Detector{
		log:       log,
		limiter:   limiter,
		alerts:    alerts,
		limits:    limits,
		logger:    logger,
		metrics:   m,
		cooldown:  cooldown,
		lastAlert: make(map[string]time.Time),
	}
	d.rules = d.buildRules()
	return d
}

// buildRules assembles the ordered escalation table. New rules are data, not
// branching logic: add a record here and Evaluate picks it up.
func (d *Detector) buildRules() []rule {
	return []rule{
		{
			name:      "rapid_fire",
			eventType: models.EventRapidFire,
			severity:  models.SeverityCritical,
			block:     true,
			fires: func(source string, now time.Time) (bool, string) {
				attempts := d.limiter.Attempts(source, d.limits.RateWindow, now)
				if attempts < d.limits.RapidFireAttempts {
					return false, ""
				}
				return true, fmt.Sprintf("%d requests in %s", attempts, d.limits.RateWindow)
			},
		},
		{
			name:      "repeat_violations_block",
			eventType: "",
			severity:  models.SeverityCritical,
			block:     true,
			fires: func(source string, now time.Time) (bool, string) {
				violations := d.log.CountViolations(source, d.limits.ViolationWindow, now)
				if violations < d.limits.ViolationBlockCount {
					return false, ""
				}
				return true, fmt.Sprintf("%d violations in %s", violations, d.limits.ViolationWindow)
			},
		},
		{
			name:      "repeat_violations_warn",
			eventType: "",
			severity:  models.SeverityWarning,
			fires: func(source string, now time.Time) (bool, string) {
				violations := d.log.CountViolations(source, d.limits.ViolationWindow, now)
				if violations < d.limits.ViolationWarnCount || violations >= d.limits.ViolationBlockCount {
					return false, ""
				}
				return true, fmt.Sprintf("%d violations in %s", violations, d.limits.ViolationWindow)
			},
		},
		{
			name:      "possible_scraping",
			eventType: models.EventPossibleScraping,
			severity:  models.SeverityWarning,
			fires: func(source string, now time.Time) (bool, string) {
				attempts := d.limiter.Attempts(source, d.limits.ViolationWindow, now)
				if attempts < d.limits.ScrapingAttempts {
					return false, ""
				}
				return true, fmt.Sprintf("%d requests in %s", attempts, d.limits.ViolationWindow)
			},
		},
		{
			name:      "systematic_probing",
			eventType: models.EventSystematicProbing,
			severity:  models.SeveritySuspicious,
			fires: func(source string, now time.Time) (bool, string) {
				kinds := d.log.CountDistinctDetails(source, models.EventInvalidData, d.limits.ViolationWindow, now)
				if kinds < d.limits.ProbingKinds {
					return false, ""
				}
				return true, fmt.Sprintf("%d distinct invalid-input kinds in %s", kinds, d.limits.ViolationWindow)
			},
		},
		{
			// The limiter already records BLOCKED_IP_ACCESS on denial, so
			// this rule only extends the block and alerts.
			name:      "blocked_access",
			eventType: "",
			severity:  models.SeverityCritical,
			block:     true,
			fires: func(source string, now time.Time) (bool, string) {
				if !d.limiter.IsBlocked(source, now) {
					return false, ""
				}
				if d.log.CountByType(source, models.EventBlockedIPAccess, d.limits.ViolationWindow, now) == 0 {
					return false, ""
				}
				return true, "blocked source still attempting access"
			},
		},
	}
}

// Evaluate runs every escalation rule for the source. Firing rules block
// and/or alert independently; the returned decision reports the aggregate.
// Escalation events recorded here do not re-enter evaluation.
func (d *Detector) Evaluate(source string, now time.Time) Decision {
	var decision Decision

	for _, rl := range d.rules {
		fired, detail := rl.fires(source, now)
		if !fired {
			continue
		}
		decision.Fired = append(decision.Fired, rl.name)

		if rl.block {
			until := now.Add(d.limits.BlockDuration)
			d.limiter.Block(source, until)
			decision.Blocked = true
			d.logger.WithFields(logrus.Fields{
				"rule":          rl.name,
				"source":        MaskSource(source),
				"blocked_until": until.Format(time.RFC3339),
			}).Warn("Source blocked by escalation rule")
		}

		if rl.eventType != "" {
			d.log.Record(rl.eventType, source, rl.severity, detail, now)
		}

		d.alert(rl, source, detail, now)
	}

	return decision
}

// alert dispatches an escalation alert unless the (rule, source) pair is in
// its cooldown window. Delivery is fire-and-forget: the sink runs on its own
// goroutine and never fails the ingestion path.
func (d *Detector) alert(rl rule, source, detail string, now time.Time) {
	masked := MaskSource(source)
	key := rl.name + "|" + masked

	d.mu.Lock()
	if last, ok := d.lastAlert[key]; ok && now.Sub(last) < d.cooldown {
		d.mu.Unlock()
		return
	}
	d.lastAlert[key] = now
	d.mu.Unlock()

	recent := d.log.RecentEvents(source, d.limits.ViolationWindow, now)
	if len(recent) > alertEventContext {
		recent = recent[len(recent)-alertEventContext:]
	}

	alert := &models.AlertRequest{
		Severity:     rl.severity,
		Source:       masked,
		Summary:      fmt.Sprintf("%s: %s (recent: %s)", rl.name, detail, summarizeDetails(recent, alertEventContext)),
		RecentEvents: recent,
	}

	if d.metrics != nil {
		d.metrics.AlertsSent.WithLabelValues(string(rl.severity)).Inc()
	}

	if d.alerts == nil {
		d.logger.WithFields(logrus.Fields{
			"severity": string(alert.Severity),
			"source":   alert.Source,
			"summary":  alert.Summary,
		}).Warn("Security alert (no sink configured)")
		return
	}

	go d.alerts.Deliver(alert)
}

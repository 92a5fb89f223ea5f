// Package store holds the durable, date-partitioned record of accepted
// sessions and the running aggregates the stats endpoint serves. The live
// state is in memory; a snapshot is persisted to disk with an atomic replace
// so a crash mid-write never corrupts the previous consistent copy.
package store

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cheet0dust/The-Nothing-Club/internal/config"
	"github.com/cheet0dust/The-Nothing-Club/internal/metrics"
	"github.com/cheet0dust/The-Nothing-Club/internal/models"
)

// AppendResult is the store's view handed back for percentile computation.
// Priors are the day's durations before this session, in insertion order.
type AppendResult struct {
	Priors        []int
	SessionsToday int
	TotalSessions int
}

// SessionStore owns the daily buckets and the global aggregate. Appends
// update both incrementally and mark the state dirty for the persistence
// loop; reads come from the maintained aggregates without rescans.
//
// Thread Safety: all methods are safe for concurrent use. Persistence writes
// copy the state under the read lock and perform I/O without holding it.
type SessionStore struct {
	mu     sync.RWMutex
	days   map[string]*models.DailyBucket
	global models.GlobalAggregate

	cfg     *config.StorageConfig
	logger  *logrus.Logger
	metrics *metrics.Metrics

	dirty    chan struct{}
	stopSave chan struct{}
	saveDone chan struct{}
}

// New creates a session store, hydrates it from the last durable snapshot if
// one exists, and starts the persistence loop. Absence of a snapshot is not
// an error; the store starts empty. The metrics parameter may be nil.
func New(cfg *config.StorageConfig, logger *logrus.Logger, m *metrics.Metrics) *SessionStore {
	s := &SessionStore{
		days:     make(map[string]*models.DailyBucket),
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		dirty:    make(chan struct{}, 1),
		stopSave: make(chan struct{}),
		saveDone: make(chan struct{}),
	}

	if snap, err := readSnapshot(cfg.SnapshotPath); err != nil {
		logger.WithError(err).Warn("Could not load session snapshot, starting empty")
	} else if snap != nil {
		s.Restore(snap)
		logger.WithFields(logrus.Fields{
			"total_sessions": s.global.TotalSessions,
			"days":           len(s.days),
		}).Info("Session snapshot loaded")
	}

	go s.persistLoop()
	return s
}

// Append records an accepted session, updating the relevant daily bucket and
// the global aggregate atomically with respect to concurrent readers, and
// returns the prior state needed for percentile computation.
func (s *SessionStore) Append(session *models.Session) AppendResult {
	s.mu.Lock()

	bucket, ok := s.days[session.DateKey]
	if !ok {
		bucket = &models.DailyBucket{DateKey: session.DateKey}
		s.days[session.DateKey] = bucket
	}

	priors := make([]int, len(bucket.Durations))
	copy(priors, bucket.Durations)

	bucket.Durations = append(bucket.Durations, session.Duration)
	bucket.Count++
	bucket.SumDuration += int64(session.Duration)
	if session.Duration > bucket.MaxDuration {
		bucket.MaxDuration = session.Duration
	}

	s.global.TotalSessions++
	s.global.SumDuration += int64(session.Duration)
	if session.Duration > s.global.MaxDuration {
		s.global.MaxDuration = session.Duration
	}

	result := AppendResult{
		Priors:        priors,
		SessionsToday: bucket.Count,
		TotalSessions: s.global.TotalSessions,
	}
	s.mu.Unlock()

	s.markDirty()
	return result
}

// Stats returns the aggregate view for the date containing now plus the
// all-time totals, computed from the maintained aggregates.
func (s *SessionStore) Stats(now time.Time) *models.StatsResponse {
	dateKey := now.UTC().Format(models.DateKeyFormat)

	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := &models.StatsResponse{
		AllTime: models.AllTimeStats{
			TotalSessions: s.global.TotalSessions,
			Average:       s.global.Average(),
			Longest:       s.global.MaxDuration,
		},
	}

	if bucket, ok := s.days[dateKey]; ok {
		resp.Today = models.PeriodStats{
			Sessions: bucket.Count,
			Average:  bucket.Average(),
			Longest:  bucket.MaxDuration,
		}
	}

	return resp
}

// Snapshot returns a deep copy of the full persisted state.
func (s *SessionStore) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		Days:   make(map[string]*models.DailyBucket, len(s.days)),
		Global: s.global,
	}
	for key, bucket := range s.days {
		cp := *bucket
		cp.Durations = make([]int, len(bucket.Durations))
		copy(cp.Durations, bucket.Durations)
		snap.Days[key] = &cp
	}
	return snap
}

// Restore replaces the store state with the snapshot's contents.
// Restore(Snapshot(S)) reproduces S exactly.
func (s *SessionStore) Restore(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.days = make(map[string]*models.DailyBucket, len(snap.Days))
	for key, bucket := range snap.Days {
		cp := *bucket
		cp.Durations = make([]int, len(bucket.Durations))
		copy(cp.Durations, bucket.Durations)
		s.days[key] = &cp
	}
	s.global = snap.Global
}

// Close stops the persistence loop after a final flush of any pending state.
func (s *SessionStore) Close() error {
	close(s.stopSave)
	<-s.saveDone
	s.logger.Info("Session store closed")
	return nil
}

// markDirty schedules a persistence pass. The single-slot channel coalesces
// bursts of appends into one write per save interval.
func (s *SessionStore) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// persistLoop writes the snapshot whenever the state is dirty, at most once
// per save interval, and once more on shutdown.
func (s *SessionStore) persistLoop() {
	defer close(s.saveDone)

	ticker := time.NewTicker(s.cfg.SaveInterval)
	defer ticker.Stop()

	pending := false
	for {
		select {
		case <-s.dirty:
			pending = true
		case <-ticker.C:
			if pending {
				pending = false
				s.persist()
			}
		case <-s.stopSave:
			select {
			case <-s.dirty:
				pending = true
			default:
			}
			if pending {
				s.persist()
			}
			return
		}
	}
}

// persist writes the current snapshot to disk. Failures degrade durability
// only: they are logged and counted, and the live state is untouched.
func (s *SessionStore) persist() {
	snap := s.Snapshot()

	if err := writeSnapshot(s.cfg.SnapshotPath, snap); err != nil {
		s.logger.WithError(err).WithField("path", s.cfg.SnapshotPath).
			Error("Failed to persist session snapshot")
		if s.metrics != nil {
			s.metrics.SnapshotWrites.WithLabelValues("error").Inc()
		}
		return
	}

	if s.metrics != nil {
		s.metrics.SnapshotWrites.WithLabelValues("ok").Inc()
	}
	s.logger.WithFields(logrus.Fields{
		"path":           s.cfg.SnapshotPath,
		"total_sessions": snap.Global.TotalSessions,
	}).Debug("Session snapshot persisted")
}

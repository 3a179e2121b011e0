package persistence

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/eternalApril/moonstone/internal/metrics"
	"github.com/eternalApril/moonstone/internal/storage"
)

// SchedulerConfig controls when snapshots are taken
type SchedulerConfig struct {
	Interval  time.Duration // time between scheduled snapshots
	Mutations int64         // successful writes that trigger an early snapshot, 0 disables
	// RetryEvery is the pause after a failed snapshot before the mutation trigger tries again
	RetryEvery time.Duration
}

// Scheduler snapshots the keyspace when the interval elapses or the mutation threshold is reached,
// whichever comes first
type Scheduler struct {
	snap    *Snapshotter
	ks      *storage.Keyspace
	cfg     SchedulerConfig
	logger  *zap.Logger
	metrics *metrics.Metrics

	mutations atomic.Int64
	lastSave  atomic.Int64 // unix seconds

	notify chan struct{} // mutation threshold reached
	force  chan struct{} // BGSAVE

	saveMu sync.Mutex // one snapshot at a time
}

func NewScheduler(snap *Snapshotter, ks *storage.Keyspace, cfg SchedulerConfig, logger *zap.Logger, m *metrics.Metrics) *Scheduler {
	if cfg.RetryEvery <= 0 {
		cfg.RetryEvery = time.Second
	}

	s := &Scheduler{
		snap:    snap,
		ks:      ks,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		notify:  make(chan struct{}, 1),
		force:   make(chan struct{}, 1),
	}
	s.lastSave.Store(time.Now().Unix())
	return s
}

// Mutated adds n successful writes to the counter
func (s *Scheduler) Mutated(n int64) {
	v := s.mutations.Add(n)
	if s.cfg.Mutations > 0 && v >= s.cfg.Mutations {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
}

// Pending returns the writes not yet covered by a snapshot
func (s *Scheduler) Pending() int64 {
	return s.mutations.Load()
}

// LastSave returns the time of the last successful snapshot, or the start time
func (s *Scheduler) LastSave() time.Time {
	return time.Unix(s.lastSave.Load(), 0)
}

// Run drives scheduled snapshots until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	// retry is armed while a mutation-triggered snapshot waits out RetryEvery after a failure
	retry := time.NewTimer(time.Hour)
	retry.Stop()
	defer retry.Stop()

	var (
		failedAt     time.Time // zero after a successful snapshot
		retryPending bool
	)

	saved := func(reason string) {
		if err := s.save(reason); err != nil {
			failedAt = time.Now()
			return
		}
		failedAt = time.Time{}
		timer.Reset(s.cfg.Interval)
	}

	onThreshold := func() {
		if s.cfg.Mutations <= 0 || retryPending || s.mutations.Load() < s.cfg.Mutations {
			return
		}
		if !failedAt.IsZero() {
			if wait := s.cfg.RetryEvery - time.Since(failedAt); wait > 0 {
				retry.Reset(wait)
				retryPending = true
				return
			}
		}
		saved("mutations")
		if !failedAt.IsZero() {
			retry.Reset(s.cfg.RetryEvery)
			retryPending = true
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-timer.C:
			saved("interval")
			if !failedAt.IsZero() {
				// the next attempt waits a full interval, or the mutation trigger
				timer.Reset(s.cfg.Interval)
			}

		case <-s.notify:
			onThreshold()

		case <-retry.C:
			retryPending = false
			onThreshold()

		case <-s.force:
			saved("bgsave")
		}
	}
}

// SaveNow takes a snapshot synchronously
func (s *Scheduler) SaveNow() error {
	return s.save("save")
}

// Trigger asks the Run loop for a snapshot without waiting for it.
// It returns false if one is already queued
func (s *Scheduler) Trigger() bool {
	select {
	case s.force <- struct{}{}:
		return true
	default:
		return false
	}
}

// Close takes a final snapshot. Run must have returned
func (s *Scheduler) Close() error {
	return s.save("shutdown")
}

func (s *Scheduler) save(reason string) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	covered := s.mutations.Load()
	start := time.Now()

	info, err := s.snap.Save(s.ks)
	s.metrics.ObserveSnapshot(time.Since(start), err)
	if err != nil {
		s.logger.Error("snapshot failed",
			zap.String("reason", reason),
			zap.Int64("pending", covered),
			zap.Error(err),
		)
		return err
	}

	s.mutations.Add(-covered)
	s.lastSave.Store(time.Now().Unix())

	if s.logger.Core().Enabled(zap.DebugLevel) {
		s.logger.Debug("snapshot trigger",
			zap.String("reason", reason),
			zap.Int64("covered", covered),
			zap.Uint64("keys", info.Keys),
		)
	}
	return nil
}

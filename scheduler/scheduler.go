// Package scheduler runs a task on a fixed interval, at most once at a time across replicas.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"settlement-service/lock"

	"go.uber.org/zap"
)

const (
	DefaultInterval = 15 * time.Minute
	DefaultLockTTL  = 10 * time.Minute
)

// Task is one unit of scheduled work.
type Task func(ctx context.Context) error

type Config struct {
	Name     string
	Interval time.Duration
	LockKey  string
	// LockTTL bounds how long a crashed replica blocks the others.
	LockTTL time.Duration
}

type Scheduler struct {
	cfg     Config
	task    Task
	locker  lock.Locker
	logger  *zap.Logger
	running atomic.Bool
}

func New(cfg Config, task Task, locker lock.Locker, logger *zap.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.LockKey == "" {
		cfg.LockKey = "scheduler:" + cfg.Name
	}
	return &Scheduler{cfg: cfg, task: task, locker: locker, logger: logger.With(zap.String("job", cfg.Name))}
}

// Start ticks until ctx is cancelled. The first run happens one interval after start.
// Runs execute on the calling goroutine, so Start returns only after an in-flight run ends.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("Scheduler started", zap.Duration("interval", s.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes the task unless a previous run is still going here or on another replica.
// It reports whether the task ran.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("previous run still in progress, skipping tick")
		return false
	}
	defer s.running.Store(false)

	lease, ok, err := s.locker.TryAcquire(ctx, s.cfg.LockKey, s.cfg.LockTTL)
	if err != nil {
		s.logger.Error("failed to take scheduler lock", zap.Error(err))
		return false
	}
	if !ok {
		s.logger.Debug("another replica holds the scheduler lock")
		return false
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release scheduler lock", zap.Error(err))
		}
	}()

	start := time.Now()
	if err := s.task(ctx); err != nil {
		s.logger.Error("Scheduled run failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return true
	}
	s.logger.Info("Scheduled run completed", zap.Duration("elapsed", time.Since(start)))
	return true
}

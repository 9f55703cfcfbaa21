package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// ErrScanInProgress is returned by RunOnce when another run holds the lock.
var ErrScanInProgress = errors.New("sla scan already running")

// Scanner runs one breach scan.
type Scanner interface {
	Scan(ctx context.Context, now time.Time, dryRun bool) (service.ScanResult, error)
}

// BreachScheduler triggers the scanner periodically. At most one run is
// active across every process sharing the locker; overlapping ticks are
// skipped, never queued.
type BreachScheduler struct {
	scanner  Scanner
	locker   persistence.Locker
	lockKey  string
	cooldown time.Duration
	interval time.Duration
	now      service.Clock
	metrics  *observability.Metrics
	logger   *zap.Logger

	wg sync.WaitGroup
}

// BreachSchedulerConfig configures the scheduler.
type BreachSchedulerConfig struct {
	Scanner  Scanner
	Locker   persistence.Locker
	LockKey  string
	Interval time.Duration
	Cooldown time.Duration
	Now      service.Clock
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// NewBreachScheduler builds a scheduler.
func NewBreachScheduler(cfg BreachSchedulerConfig) *BreachScheduler {
	now := cfg.Now
	if now == nil {
		now = service.SystemClock
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cooldown := cfg.Cooldown
	if cooldown < cfg.Interval {
		cooldown = cfg.Interval
	}
	return &BreachScheduler{
		scanner:  cfg.Scanner,
		locker:   cfg.Locker,
		lockKey:  cfg.LockKey,
		cooldown: cooldown,
		interval: cfg.Interval,
		now:      now,
		metrics:  cfg.Metrics,
		logger:   logger,
	}
}

// RunOnce performs a scan if no other run is active. The lock is held for
// the duration of the run and expires after the cooldown at the latest.
func (s *BreachScheduler) RunOnce(ctx context.Context, dryRun bool) (service.ScanResult, error) {
	lock, acquired, err := s.locker.TryAcquire(ctx, s.lockKey, s.cooldown)
	if err != nil {
		return service.ScanResult{}, err
	}
	if !acquired {
		s.metrics.RecordSkippedScan()
		s.logger.Info("sla scan skipped, previous run still active", zap.String("lock_key", s.lockKey))
		return service.ScanResult{}, ErrScanInProgress
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			s.logger.Warn("release sla scan lock", zap.Error(err))
		}
	}()

	return s.scanner.Scan(ctx, s.now(), dryRun)
}

// Start ticks every interval until ctx is cancelled. Each tick runs in its
// own goroutine so a slow scan never delays the ticker.
func (s *BreachScheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Warn("sla scheduler disabled: non-positive interval")
		return
	}
	ticker := time.NewTicker(s.interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		s.logger.Info("sla scheduler started", zap.Duration("interval", s.interval), zap.Duration("cooldown", s.cooldown))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					s.tick(ctx)
				}()
			}
		}
	}()
}

// Wait blocks until the ticker loop and in-flight runs returned.
func (s *BreachScheduler) Wait() {
	s.wg.Wait()
}

func (s *BreachScheduler) tick(ctx context.Context) {
	_, err := s.RunOnce(ctx, false)
	switch {
	case err == nil, errors.Is(err, ErrScanInProgress):
	case errors.Is(err, context.Canceled):
	default:
		s.logger.Error("sla scheduled scan failed", zap.Error(err))
	}
}

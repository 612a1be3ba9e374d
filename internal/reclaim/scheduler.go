package reclaim

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultInterval = time.Minute
	leaseKey        = "reclaim:sweep:lock"
)

type Runner interface {
	Sweep(ctx context.Context) (SweepResult, error)
}

// Lease — межрепликовая блокировка прохода; nil — без неё.
type Lease interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

type Scheduler struct {
	runner   Runner
	interval time.Duration
	lease    Lease
	leaseTTL time.Duration
	log      *zap.Logger

	running  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewScheduler(runner Runner, interval time.Duration, lease Lease, leaseTTL time.Duration, log *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if leaseTTL <= 0 {
		leaseTTL = 5 * interval
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		lease:    lease,
		leaseTTL: leaseTTL,
		log:      log,
		stopCh:   make(chan struct{}),
	}
}

// Start запускает периодический проход; первый — сразу.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("starting reclaim scheduler", zap.Duration("interval", s.interval))
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop останавливает планировщик и дожидается текущего прохода.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.log.Info("stopping reclaim scheduler")
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.stopCh:
			s.log.Info("reclaim scheduler stopped")
			return
		case <-ctx.Done():
			s.log.Info("reclaim scheduler cancelled")
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, ran, err := s.RunOnceNow(ctx); err != nil {
		s.log.Error("expiry sweep failed", zap.Error(err))
	} else if !ran {
		s.log.Debug("expiry sweep skipped")
	}
}

// RunOnceNow выполняет один проход, если другой не идёт. ran=false — проход пропущен.
// Начатый проход доводится до конца даже при отмене ctx.
func (s *Scheduler) RunOnceNow(ctx context.Context) (SweepResult, bool, error) {
	if !s.running.CompareAndSwap(false, true) {
		return SweepResult{}, false, nil
	}
	defer s.running.Store(false)

	sweepCtx := context.WithoutCancel(ctx)

	if s.lease != nil {
		token, ok, err := s.lease.TryLock(sweepCtx, leaseKey, s.leaseTTL)
		if err != nil {
			return SweepResult{}, false, err
		}
		if !ok {
			return SweepResult{}, false, nil
		}
		defer func() {
			if err := s.lease.Unlock(sweepCtx, leaseKey, token); err != nil {
				s.log.Warn("failed to release reclaim lease", zap.Error(err))
			}
		}()
	}

	res, err := s.runner.Sweep(sweepCtx)
	return res, true, err
}

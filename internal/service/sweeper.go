package service

import (
	"context"
	"sync"
	"time"

	"groupdecide/pkg/logger"
)

// DefaultSweepInterval is used when no interval is configured
const DefaultSweepInterval = 30 * time.Second

// Sweeper locks expired decisions on a ticker
type Sweeper struct {
	decisions *DecisionService
	cache     *CacheService
	logger    *logger.Logger
	interval  time.Duration

	ticker    *time.Ticker
	stopSweep chan struct{}
	done      sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewSweeper creates the deadline sweep loop
func NewSweeper(decisions *DecisionService, cache *CacheService, log *logger.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if cache == nil {
		cache = decisions.cache
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Sweeper{
		decisions: decisions,
		cache:     cache,
		logger:    log.Named("sweeper"),
		interval:  interval,
	}
}

// Start runs a pass now and then one per interval until Stop
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	s.logger.WithField("interval", s.interval.String()).Info("Starting deadline sweeper...")

	s.ticker = time.NewTicker(s.interval)
	s.stopSweep = make(chan struct{})
	s.done.Add(1)
	go s.sweepRoutine(ctx, s.ticker, s.stopSweep)

	s.isRunning = true
	return nil
}

// Stop halts the ticker and waits for an in-flight pass
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.logger.Info("Stopping deadline sweeper...")
	s.ticker.Stop()
	close(s.stopSweep)

	finished := make(chan struct{})
	go func() {
		s.done.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		s.logger.Warn("Sweeper did not finish before shutdown deadline")
	}

	s.isRunning = false
	s.logger.Info("Deadline sweeper stopped")
	return nil
}

func (s *Sweeper) sweepRoutine(ctx context.Context, ticker *time.Ticker, stop <-chan struct{}) {
	defer s.done.Done()

	s.RunOnce(ctx)
	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-stop:
			s.logger.Debug("Sweep routine stopped")
			return
		case <-ctx.Done():
			s.logger.Debug("Sweep routine cancelled")
			return
		}
	}
}

// leaseTTL is how long a won sweep lease is held. It ends a tenth of an
// interval before the next tick so the winner can claim its own next pass.
func (s *Sweeper) leaseTTL() time.Duration {
	return s.interval - s.interval/10
}

// RunOnce performs one pass if this instance wins the sweep lease. The lease
// is left to expire rather than released so that one instance sweeps per
// interval. It returns nil when another instance holds the lease.
func (s *Sweeper) RunOnce(ctx context.Context) *LockSummary {
	lease, err := s.cache.TrySweepLeader(ctx, s.leaseTTL())
	if err != nil {
		s.logger.WithError(err).Warn("Sweep lease unavailable, sweeping anyway")
	} else if lease == nil {
		s.logger.Debug("Another instance holds the sweep lease")
		return nil
	}

	start := time.Now()
	summary, err := s.decisions.TallyAndLockExpired(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Deadline sweep finished with errors")
	}
	if summary != nil && len(summary.Locked) > 0 {
		s.logger.WithFields(map[string]interface{}{
			"locked":   len(summary.Locked),
			"skipped":  len(summary.Skipped),
			"duration": time.Since(start).String(),
		}).Info("Deadline sweep locked decisions")
	}
	return summary
}

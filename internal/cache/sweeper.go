package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const defaultSweepInterval = 6 * time.Hour

// Sweeper periodically evicts cache entries older than the retention
// period.
type Sweeper struct {
	store    Store
	interval time.Duration
	log      *zap.Logger
	now      func() time.Time
}

func NewSweeper(store Store, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		store:    store,
		interval: defaultSweepInterval,
		log:      log,
		now:      time.Now,
	}
}

// Run sweeps immediately and then on every interval tick until ctx is
// canceled.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := s.now().Add(-Retention)
	if err := s.store.DeleteOlderThan(ctx, cutoff); err != nil {
		s.log.Warn("cache sweep failed", zap.Error(err))
	}
}

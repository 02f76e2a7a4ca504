package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/mbd888/riskline/internal/metrics"
)

// Sweeper periodically deletes evaluations past their expiry.
type Sweeper struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
}

// NewSweeper creates a retention sweeper.
func NewSweeper(store Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger.With("component", "sweeper"),
		stop:     make(chan struct{}),
	}
}

// Start begins the sweep loop. Call in a goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Stop signals the sweeper to stop.
func (s *Sweeper) Stop() {
	select {
	case s.stop <- struct{}{}:
	default:
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	deleted, err := s.store.DeleteExpired(ctx, time.Now())
	if err != nil {
		s.logger.Warn("retention sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		metrics.RecordsSweptTotal.Add(float64(deleted))
		s.logger.Info("expired evaluations swept", "count", deleted)
	}
}

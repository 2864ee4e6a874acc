package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/lorrc/service-desk-workflow/internal/core/ports"
)

// BreachSweeper periodically records breaches for overdue timers nobody has checked.
type BreachSweeper struct {
	slas     ports.SLAService
	interval time.Duration
	logger   *slog.Logger
}

// NewBreachSweeper creates a sweeper. A non-positive interval defaults to one minute.
func NewBreachSweeper(slas ports.SLAService, interval time.Duration, logger *slog.Logger) *BreachSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &BreachSweeper{
		slas:     slas,
		interval: interval,
		logger:   componentLogger(logger, "breach_sweeper"),
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (b *BreachSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.logger.Info("breach sweeper started", "interval", b.interval)
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("breach sweeper stopped")
			return
		case <-ticker.C:
			b.sweep(ctx)
		}
	}
}

func (b *BreachSweeper) sweep(ctx context.Context) {
	count, err := b.slas.SweepBreaches(ctx)
	if err != nil {
		if ctx.Err() == nil {
			b.logger.Error("breach sweep failed", "error", err)
		}
		return
	}
	if count > 0 {
		b.logger.Warn("breach sweep recorded breaches", "count", count)
	}
}

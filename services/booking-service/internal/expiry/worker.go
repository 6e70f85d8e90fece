// Package expiry cancels pending reservations whose fee was never paid, releasing
// their slots.
package expiry

import (
	"context"
	"log/slog"
	"time"
)

type Expirer interface {
	ExpirePending(ctx context.Context, olderThan time.Duration) (int, error)
}

type Worker struct {
	svc      Expirer
	logger   *slog.Logger
	interval time.Duration
	after    time.Duration
}

type WorkerConfig struct {
	// Interval between sweeps.
	Interval time.Duration
	// After is how long a reservation may stay pending.
	After time.Duration
}

func NewWorker(svc Expirer, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.After <= 0 {
		cfg.After = 30 * time.Minute
	}
	return &Worker{
		svc:      svc,
		logger:   logger,
		interval: cfg.Interval,
		after:    cfg.After,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep expires batches until one comes back short or fails.
func (w *Worker) Sweep(ctx context.Context) int {
	total := 0
	for ctx.Err() == nil {
		n, err := w.svc.ExpirePending(ctx, w.after)
		total += n
		if err != nil {
			w.logger.Error("reservation expiry failed", "err", err, "expired", total)
			return total
		}
		if n == 0 {
			break
		}
	}
	if total > 0 {
		w.logger.Info("pending reservations expired", "count", total, "older_than", w.after.String())
	}
	return total
}

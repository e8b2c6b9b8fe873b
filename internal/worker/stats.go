package worker

import (
	"context"
	"log/slog"
	"time"

	airlock "github.com/reodash/airlock/internal"
	"github.com/reodash/airlock/internal/telemetry"
)

const statsInterval = time.Minute

// StatsSource reports generation statistics. Implemented by the generation
// manager.
type StatsSource interface {
	Stats(ctx context.Context) (airlock.GenerationStats, error)
}

// StatsWorker periodically logs generation statistics and refreshes the
// entries gauge. It waits for activation so it never reports on a
// generation that is still being populated.
type StatsWorker struct {
	src      StatsSource
	metrics  *telemetry.Metrics
	interval time.Duration
	ready    <-chan struct{}
}

// NewStatsWorker creates a StatsWorker. interval <= 0 selects the default,
// metrics may be nil.
func NewStatsWorker(src StatsSource, interval time.Duration, m *telemetry.Metrics, ready <-chan struct{}) *StatsWorker {
	if interval <= 0 {
		interval = statsInterval
	}
	return &StatsWorker{src: src, metrics: m, interval: interval, ready: ready}
}

// Name returns the worker identifier.
func (w *StatsWorker) Name() string { return "stats" }

// Run reports once after activation, then on every tick until ctx is
// cancelled.
func (w *StatsWorker) Run(ctx context.Context) error {
	if w.ready != nil {
		select {
		case <-w.ready:
		case <-ctx.Done():
			return nil
		}
	}
	w.report(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.report(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *StatsWorker) report(ctx context.Context) {
	stats, err := w.src.Stats(ctx)
	if err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "stats collection failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if w.metrics != nil {
		w.metrics.GenerationEntries.Set(float64(stats.Entries))
	}
	slog.LogAttrs(ctx, slog.LevelInfo, "generation stats",
		slog.String("generation", stats.Generation),
		slog.Bool("complete", stats.Complete),
		slog.Int("entries", stats.Entries),
	)
}

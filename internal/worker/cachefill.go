package worker

import (
	"context"
	"log/slog"
	"time"

	airlock "github.com/reodash/airlock/internal"
	"github.com/reodash/airlock/internal/telemetry"
)

const (
	fillQueueSize = 1024
	fillDrainTime = 10 * time.Second
)

// FillStore is the persistence interface consumed by CacheFill. Implemented
// by the generation manager.
type FillStore interface {
	Put(ctx context.Context, key string, resp *airlock.StoredResponse) error
}

type fillItem struct {
	key  string
	resp *airlock.StoredResponse
}

// CacheFill writes asset snapshots into the active generation off the
// request path. Items are dropped if the queue is full (back-pressure on a
// slow store); a dropped item is refetched on the next miss.
type CacheFill struct {
	ch      chan fillItem
	store   FillStore
	metrics *telemetry.Metrics
}

// NewCacheFill creates a CacheFill with the given queue capacity. size <= 0
// selects the default. metrics may be nil.
func NewCacheFill(store FillStore, size int, m *telemetry.Metrics) *CacheFill {
	if size <= 0 {
		size = fillQueueSize
	}
	return &CacheFill{
		ch:      make(chan fillItem, size),
		store:   store,
		metrics: m,
	}
}

// Name returns the worker identifier.
func (f *CacheFill) Name() string { return "cache_fill" }

// Enqueue queues a response for background fill. It never blocks; drops on
// full queue.
func (f *CacheFill) Enqueue(key string, resp *airlock.StoredResponse) {
	select {
	case f.ch <- fillItem{key: key, resp: resp}:
	default:
		slog.Warn("cache fill dropped, queue full", "key", key)
		if f.metrics != nil {
			f.metrics.FillDrops.Inc()
		}
	}
	f.gauge()
}

// Run writes queued items until ctx is cancelled, then drains the queue.
func (f *CacheFill) Run(ctx context.Context) error {
	for {
		select {
		case item := <-f.ch:
			f.put(ctx, item)
		case <-ctx.Done():
			f.drain()
			return nil
		}
	}
}

func (f *CacheFill) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), fillDrainTime)
	defer cancel()

	for {
		select {
		case item := <-f.ch:
			f.put(ctx, item)
		default:
			return
		}
	}
}

func (f *CacheFill) put(ctx context.Context, item fillItem) {
	if err := f.store.Put(ctx, item.key, item.resp); err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "cache fill failed",
			slog.String("key", item.key),
			slog.String("error", err.Error()),
		)
	}
	f.gauge()
}

func (f *CacheFill) gauge() {
	if f.metrics != nil {
		f.metrics.FillQueueLength.Set(float64(len(f.ch)))
	}
}

// Package strategy implements the response strategies behind the
// interception boundary: network first for data and navigation traffic,
// cache first for static assets.
package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	airlock "github.com/reodash/airlock/internal"
	"github.com/reodash/airlock/internal/telemetry"
)

// Store is the cache surface the engine reads. Implemented by the
// generation manager.
type Store interface {
	Get(ctx context.Context, key string) (*airlock.StoredResponse, error)
}

// Origin performs outbound fetches.
type Origin interface {
	// Do issues the request and returns the raw response for streaming.
	// The caller owns the body.
	Do(ctx context.Context, method, requestURI string, hdr http.Header) (*http.Response, error)
	// Snapshot fetches a buffered copy suitable for caching.
	Snapshot(ctx context.Context, requestURI string) (*airlock.StoredResponse, error)
}

// Filler accepts responses for asynchronous cache fill.
type Filler interface {
	Enqueue(key string, resp *airlock.StoredResponse)
}

// Disposition labels how a response was produced. It surfaces in the
// X-Airlock header and the strategy_results_total metric.
type Disposition string

const (
	// DispositionHit is a response served from the cache.
	DispositionHit Disposition = "hit"
	// DispositionMiss is a response fetched from the origin.
	DispositionMiss Disposition = "miss"
	// DispositionFallback is the offline shell standing in for a navigation.
	DispositionFallback Disposition = "fallback"
	// DispositionOffline is a synthesized answer with the origin down and
	// nothing cached.
	DispositionOffline Disposition = "offline"
	// DispositionBypass marks traffic the engine never saw. Applied at the
	// transport for ignored classes and pre-activation passthrough.
	DispositionBypass Disposition = "bypass"
)

// Result is a strategy decision. Exactly one of Live and Stored is set:
// Live streams the origin's response and the caller owns its body, Stored
// is a buffered cache or synthesized response.
type Result struct {
	Live        *http.Response
	Stored      *airlock.StoredResponse
	Disposition Disposition
}

// Engine arbitrates between cache, network, and synthesized fallbacks.
// It never propagates an origin failure as a fault; every request gets the
// best available answer or an error the transport turns into a 502.
type Engine struct {
	store   Store
	origin  Origin
	fill    Filler
	metrics *telemetry.Metrics
}

// New creates an Engine. fill may be nil to disable background fill,
// metrics may be nil.
func New(store Store, origin Origin, fill Filler, m *telemetry.Metrics) *Engine {
	return &Engine{store: store, origin: origin, fill: fill, metrics: m}
}

// ServeAPI is network first with cached fallback. An origin response is
// returned verbatim whatever its status, and API responses are never
// written to the cache. Only when the origin is unreachable does a cached
// entry under the exact key serve; with nothing cached the engine
// synthesizes the offline JSON answer. The returned error is always nil.
func (e *Engine) ServeAPI(ctx context.Context, method, requestURI string, hdr http.Header) (Result, error) {
	resp, err := e.fetchLive(ctx, method, requestURI, hdr)
	if err == nil {
		e.count(airlock.ClassAPI, DispositionMiss)
		return Result{Live: resp, Disposition: DispositionMiss}, nil
	}

	key := airlock.EntryKey(method, requestURI)
	if cached, cerr := e.store.Get(ctx, key); cerr == nil {
		e.hit()
		e.count(airlock.ClassAPI, DispositionHit)
		return Result{Stored: cached, Disposition: DispositionHit}, nil
	}
	e.miss()
	e.count(airlock.ClassAPI, DispositionOffline)
	slog.LogAttrs(ctx, slog.LevelWarn, "origin unreachable, synthesizing offline answer",
		slog.String("path", requestURI),
		slog.String("error", err.Error()),
	)
	return Result{Stored: offlineResponse(err), Disposition: DispositionOffline}, nil
}

// ServeNavigation is network first with the precached offline shell as
// fallback. When the shell was never cached the degenerate case surfaces
// as airlock.ErrNoFallback.
func (e *Engine) ServeNavigation(ctx context.Context, requestURI string, hdr http.Header) (Result, error) {
	resp, err := e.fetchLive(ctx, http.MethodGet, requestURI, hdr)
	if err == nil {
		e.count(airlock.ClassNavigation, DispositionMiss)
		return Result{Live: resp, Disposition: DispositionMiss}, nil
	}

	shell, cerr := e.store.Get(ctx, airlock.EntryKey(http.MethodGet, airlock.OfflinePath))
	if cerr != nil {
		e.miss()
		e.count(airlock.ClassNavigation, DispositionOffline)
		return Result{}, fmt.Errorf("offline shell: %w", airlock.ErrNoFallback)
	}
	e.hit()
	e.count(airlock.ClassNavigation, DispositionFallback)
	slog.LogAttrs(ctx, slog.LevelWarn, "origin unreachable, serving offline shell",
		slog.String("path", requestURI),
		slog.String("error", err.Error()),
	)
	return Result{Stored: shell, Disposition: DispositionFallback}, nil
}

// ServeAsset is cache first. A hit never touches the network. On a miss
// the snapshot goes back to the client and, for success statuses, an
// independent clone goes to the fill queue so the generation picks up
// assets the precache set missed.
func (e *Engine) ServeAsset(ctx context.Context, requestURI string) (Result, error) {
	key := airlock.EntryKey(http.MethodGet, requestURI)
	if cached, err := e.store.Get(ctx, key); err == nil {
		e.hit()
		e.count(airlock.ClassAsset, DispositionHit)
		return Result{Stored: cached, Disposition: DispositionHit}, nil
	}
	e.miss()

	snap, err := e.fetchSnapshot(ctx, requestURI)
	if err != nil {
		e.count(airlock.ClassAsset, DispositionOffline)
		return Result{}, fmt.Errorf("asset %s: %w", requestURI, err)
	}
	if e.fill != nil && snap.Status >= 200 && snap.Status < 300 {
		e.fill.Enqueue(key, snap.Clone())
	}
	e.count(airlock.ClassAsset, DispositionMiss)
	return Result{Stored: snap, Disposition: DispositionMiss}, nil
}

func (e *Engine) fetchLive(ctx context.Context, method, requestURI string, hdr http.Header) (*http.Response, error) {
	start := time.Now()
	resp, err := e.origin.Do(ctx, method, requestURI, hdr)
	e.observeOrigin("fetch", start, err)
	return resp, err
}

func (e *Engine) fetchSnapshot(ctx context.Context, requestURI string) (*airlock.StoredResponse, error) {
	start := time.Now()
	snap, err := e.origin.Snapshot(ctx, requestURI)
	e.observeOrigin("snapshot", start, err)
	return snap, err
}

func (e *Engine) observeOrigin(op string, start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	e.metrics.OriginDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		e.metrics.OriginErrors.WithLabelValues(op).Inc()
	}
}

func (e *Engine) hit() {
	if e.metrics != nil {
		e.metrics.CacheHits.Inc()
	}
}

func (e *Engine) miss() {
	if e.metrics != nil {
		e.metrics.CacheMisses.Inc()
	}
}

func (e *Engine) count(class airlock.Class, d Disposition) {
	if e.metrics != nil {
		e.metrics.StrategyResults.WithLabelValues(class.String(), string(d)).Inc()
	}
}

// offlineResponse synthesizes the answer for a data request with the origin
// unreachable and nothing cached.
func offlineResponse(cause error) *airlock.StoredResponse {
	body, _ := json.Marshal(map[string]string{
		"error":  "offline",
		"detail": cause.Error(),
	})
	return &airlock.StoredResponse{
		Status:   http.StatusServiceUnavailable,
		Header:   http.Header{"Content-Type": {"application/json"}},
		Body:     body,
		StoredAt: time.Now().UTC(),
	}
}

package worker

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	airlock "github.com/reodash/airlock/internal"
	"github.com/reodash/airlock/internal/strategy"
)

// ManifestStore reads cached entries. Implemented by the generation manager.
type ManifestStore interface {
	Get(ctx context.Context, key string) (*airlock.StoredResponse, error)
}

// AssetServer is the cache-first strategy the warmer fetches through, so
// warmed assets land exactly the way a client miss would.
type AssetServer interface {
	ServeAsset(ctx context.Context, requestURI string) (strategy.Result, error)
}

// ManifestWarmer waits for activation, parses the precached web manifest,
// and warms the assets it references. Already-cached paths are hits and
// never touch the network.
type ManifestWarmer struct {
	store  ManifestStore
	assets AssetServer
	ready  <-chan struct{}
}

// NewManifestWarmer creates a ManifestWarmer that starts once ready closes.
func NewManifestWarmer(store ManifestStore, assets AssetServer, ready <-chan struct{}) *ManifestWarmer {
	return &ManifestWarmer{store: store, assets: assets, ready: ready}
}

// Name returns the worker identifier.
func (w *ManifestWarmer) Name() string { return "warmup" }

// Run warms manifest assets once, then returns.
func (w *ManifestWarmer) Run(ctx context.Context) error {
	select {
	case <-w.ready:
	case <-ctx.Done():
		return nil
	}

	manifest, err := w.store.Get(ctx, airlock.EntryKey(http.MethodGet, airlock.ManifestPath))
	if err != nil {
		slog.Warn("manifest warmup skipped, manifest not cached", "error", err.Error())
		return nil
	}

	warmed := 0
	for _, path := range manifestPaths(manifest.Body) {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := w.assets.ServeAsset(ctx, path); err != nil {
			slog.LogAttrs(ctx, slog.LevelWarn, "asset warmup failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		warmed++
	}
	slog.Info("manifest warmup complete", "assets", warmed)
	return nil
}

// manifestPaths extracts same-origin asset paths from a web manifest:
// start_url plus every icon source. Cross-origin references are skipped.
func manifestPaths(body []byte) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(raw string) {
		path := normalizePath(raw)
		if path == "" || seen[path] {
			return
		}
		seen[path] = true
		out = append(out, path)
	}

	add(gjson.GetBytes(body, "start_url").String())
	for _, icon := range gjson.GetBytes(body, "icons.#.src").Array() {
		add(icon.String())
	}
	return out
}

// normalizePath resolves a manifest reference to an absolute same-origin
// request URI. Manifests live at the origin root, so relative references
// resolve against "/".
func normalizePath(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	path := u.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path
}

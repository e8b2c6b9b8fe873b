// Package airlock defines domain types and interfaces for the Airlock caching gateway.
// This package has no project imports -- it is the dependency root.
package airlock

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// --- Request classification ---

// Class is the traffic class assigned to an incoming request. It determines
// which response strategy handles the request.
type Class int

const (
	// ClassIgnore marks requests the gateway does not manage (non-GET).
	ClassIgnore Class = iota
	// ClassAPI marks GET requests under the data-API prefix.
	ClassAPI
	// ClassNavigation marks top-level document requests.
	ClassNavigation
	// ClassAsset marks every remaining GET request (scripts, styles, images).
	ClassAsset
)

func (c Class) String() string {
	switch c {
	case ClassIgnore:
		return "ignore"
	case ClassAPI:
		return "api"
	case ClassNavigation:
		return "navigation"
	case ClassAsset:
		return "asset"
	default:
		return "unknown"
	}
}

// APIPrefix is the path prefix that marks data-API requests.
const APIPrefix = "/api/"

// Classify assigns a traffic class from the request method, URL path, and
// navigation flag. Rules apply in order: non-GET requests are never managed,
// the API prefix wins over the navigation flag, and everything else that
// navigates is a document request. The remainder is static-asset traffic.
func Classify(method, path string, navigation bool) Class {
	if method != http.MethodGet {
		return ClassIgnore
	}
	if strings.HasPrefix(path, APIPrefix) {
		return ClassAPI
	}
	if navigation {
		return ClassNavigation
	}
	return ClassAsset
}

// IsNavigation reports whether the request is a top-level document load.
// Browsers state this explicitly via Sec-Fetch-Mode; for clients that do not
// send fetch metadata the Accept header is used as a fallback signal.
func IsNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// --- Cache generations ---

// GenerationPrefix is the common prefix for generation names. The full name
// is the prefix plus the release version, so each release owns one generation.
const GenerationPrefix = "airlock-"

// GenerationName returns the generation name for a release version.
func GenerationName(version string) string {
	return GenerationPrefix + version
}

// Generation is the metadata record for one versioned cache generation.
// Complete is set only after the initial population finished in full; an
// incomplete generation must never be promoted to serve traffic.
type Generation struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Complete  bool      `json:"complete"`
	CreatedAt time.Time `json:"created_at"`
}

// GenerationStats is a point-in-time summary of the serving generation.
type GenerationStats struct {
	Generation string `json:"generation"`
	Complete   bool   `json:"complete"`
	Entries    int    `json:"entries"`
}

// --- Precache set ---

// OfflinePath is the navigation fallback document. It is part of the precache
// set and is served whenever a document request cannot reach the origin.
const OfflinePath = "/offline"

// ManifestPath is the web app manifest. The warmup worker reads the cached
// copy to discover assets worth prefetching.
const ManifestPath = "/manifest.webmanifest"

// PrecachePaths is the fixed set of origin paths fetched during installation.
// Population is all-or-nothing over exactly this set.
var PrecachePaths = []string{
	"/",
	OfflinePath,
	ManifestPath,
}

// --- Stored responses ---

// StoredResponse is a cached snapshot of an origin response: enough to replay
// the response to a client without contacting the origin.
type StoredResponse struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// Clone returns a deep copy. The stored copy and the copy handed to a client
// must not share header maps or body bytes.
func (r *StoredResponse) Clone() *StoredResponse {
	if r == nil {
		return nil
	}
	c := &StoredResponse{
		Status:   r.Status,
		Header:   r.Header.Clone(),
		StoredAt: r.StoredAt,
	}
	if r.Body != nil {
		c.Body = make([]byte, len(r.Body))
		copy(c.Body, r.Body)
	}
	return c
}

// EntryKey builds the cache key for a request. Identity is the method plus
// the full request URI including the query string, so /api/tree?date=x and
// /api/tree are distinct entries.
func EntryKey(method, requestURI string) string {
	return method + " " + requestURI
}

// --- Context keys ---

type contextKey int

const ctxKeyMeta contextKey = 0

// requestMeta bundles per-request values into a single context allocation.
type requestMeta struct {
	RequestID string
}

// metaFromContext returns the requestMeta stored in ctx, or nil.
func metaFromContext(ctx context.Context) *requestMeta {
	m, _ := ctx.Value(ctxKeyMeta).(*requestMeta)
	return m
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.RequestID
	}
	return ""
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{RequestID: id})
}

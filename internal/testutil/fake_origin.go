package testutil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	airlock "github.com/reodash/airlock/internal"
)

// FakeOrigin is a configurable origin client for testing. It records every
// call so tests can assert on fetch order and counts.
type FakeOrigin struct {
	SnapshotFn func(ctx context.Context, requestURI string) (*airlock.StoredResponse, error)
	DoFn       func(ctx context.Context, method, requestURI string, hdr http.Header) (*http.Response, error)

	mu        sync.Mutex
	snapshots []string
	requests  []string
}

// Snapshot delegates to SnapshotFn or returns a canned success.
func (o *FakeOrigin) Snapshot(ctx context.Context, requestURI string) (*airlock.StoredResponse, error) {
	o.mu.Lock()
	o.snapshots = append(o.snapshots, requestURI)
	o.mu.Unlock()
	if o.SnapshotFn != nil {
		return o.SnapshotFn(ctx, requestURI)
	}
	return Stored(http.StatusOK, "origin body for "+requestURI), nil
}

// Do delegates to DoFn or returns a canned success.
func (o *FakeOrigin) Do(ctx context.Context, method, requestURI string, hdr http.Header) (*http.Response, error) {
	o.mu.Lock()
	o.requests = append(o.requests, method+" "+requestURI)
	o.mu.Unlock()
	if o.DoFn != nil {
		return o.DoFn(ctx, method, requestURI, hdr)
	}
	return Live(http.StatusOK, `{"ok":true}`), nil
}

// Snapshots returns the URIs passed to Snapshot, in call order.
func (o *FakeOrigin) Snapshots() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.snapshots...)
}

// Requests returns "METHOD uri" for each Do call, in call order.
func (o *FakeOrigin) Requests() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.requests...)
}

// Stored builds a cached response with the given status and body.
func Stored(status int, body string) *airlock.StoredResponse {
	return &airlock.StoredResponse{
		Status:   status,
		Header:   http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:     []byte(body),
		StoredAt: time.Now().UTC(),
	}
}

// Live builds a live *http.Response with the given status and body, shaped
// like what the origin client's Do returns.
func Live(status int, body string) *http.Response {
	return &http.Response{
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode: status,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

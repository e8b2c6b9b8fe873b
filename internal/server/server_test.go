package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/reodash/airlock/internal/lifecycle"
	"github.com/reodash/airlock/internal/strategy"
)

// fakeLifecycle reports a fixed install state.
type fakeLifecycle struct {
	state    lifecycle.State
	degraded bool
}

func (f *fakeLifecycle) State() lifecycle.State { return f.state }
func (f *fakeLifecycle) IsActive() bool         { return f.state == lifecycle.StateActive }
func (f *fakeLifecycle) Degraded() bool         { return f.degraded }

func activeLifecycle() *fakeLifecycle {
	return &fakeLifecycle{state: lifecycle.StateActive}
}

// fakeStrategy dispatches to per-class functions. A class without a function
// fails the request, so a misrouted class shows up in assertions.
type fakeStrategy struct {
	APIFn   func(ctx context.Context, method, requestURI string, hdr http.Header) (strategy.Result, error)
	NavFn   func(ctx context.Context, requestURI string, hdr http.Header) (strategy.Result, error)
	AssetFn func(ctx context.Context, requestURI string) (strategy.Result, error)
}

func (f *fakeStrategy) ServeAPI(ctx context.Context, method, requestURI string, hdr http.Header) (strategy.Result, error) {
	if f.APIFn == nil {
		return strategy.Result{}, errors.New("unexpected api request")
	}
	return f.APIFn(ctx, method, requestURI, hdr)
}

func (f *fakeStrategy) ServeNavigation(ctx context.Context, requestURI string, hdr http.Header) (strategy.Result, error) {
	if f.NavFn == nil {
		return strategy.Result{}, errors.New("unexpected navigation request")
	}
	return f.NavFn(ctx, requestURI, hdr)
}

func (f *fakeStrategy) ServeAsset(ctx context.Context, requestURI string) (strategy.Result, error) {
	if f.AssetFn == nil {
		return strategy.Result{}, errors.New("unexpected asset request")
	}
	return f.AssetFn(ctx, requestURI)
}

// fakeForwarder records forwarded requests and answers 200 "forwarded".
type fakeForwarder struct {
	mu       sync.Mutex
	calls    []string
	payloads []string
	err      error
}

func (f *fakeForwarder) Forward(w http.ResponseWriter, r *http.Request) error {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.calls = append(f.calls, r.Method+" "+r.URL.RequestURI())
	f.payloads = append(f.payloads, string(body))
	f.mu.Unlock()
	if f.err != nil {
		http.Error(w, "origin unreachable", http.StatusBadGateway)
		return f.err
	}
	w.Header()["Content-Type"] = []string{"text/plain"}
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "forwarded")
	return nil
}

func (f *fakeForwarder) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestHandler(strat *fakeStrategy, fwd *fakeForwarder) http.Handler {
	return New(Deps{
		Lifecycle: activeLifecycle(),
		Strategy:  strat,
		Origin:    fwd,
	})
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	h := newTestHandler(&fakeStrategy{}, &fakeForwarder{})

	req := httptest.NewRequest(http.MethodGet, "/_airlock/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "ok")
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()
	h := newTestHandler(&fakeStrategy{}, &fakeForwarder{})

	req := httptest.NewRequest(http.MethodGet, "/_airlock/readyz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "ok")
	}
}

func TestReadyzNotActive(t *testing.T) {
	t.Parallel()
	h := New(Deps{
		Lifecycle: &fakeLifecycle{state: lifecycle.StateInstalling},
		Strategy:  &fakeStrategy{},
		Origin:    &fakeForwarder{},
	})

	req := httptest.NewRequest(http.MethodGet, "/_airlock/readyz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if rec.Body.String() != "not ready" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "not ready")
	}
}

func TestReadyzStoreDown(t *testing.T) {
	t.Parallel()
	h := New(Deps{
		Lifecycle: activeLifecycle(),
		Strategy:  &fakeStrategy{},
		Origin:    &fakeForwarder{},
		ReadyCheck: func(context.Context) error {
			return errors.New("store down")
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/_airlock/readyz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()
	h := newTestHandler(&fakeStrategy{}, &fakeForwarder{})

	req := httptest.NewRequest(http.MethodGet, "/_airlock/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("X-Request-Id header should be set")
	}
}

func TestReservedPrefixNotForwarded(t *testing.T) {
	t.Parallel()
	fwd := &fakeForwarder{}
	h := newTestHandler(&fakeStrategy{}, fwd)

	req := httptest.NewRequest(http.MethodGet, "/_airlock/nope", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if got := len(fwd.Calls()); got != 0 {
		t.Errorf("forwarded %d requests under the reserved prefix, want 0", got)
	}
}

// Package server implements the HTTP transport layer for the Airlock gateway.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	airlock "github.com/reodash/airlock/internal"
	"github.com/reodash/airlock/internal/lifecycle"
	"github.com/reodash/airlock/internal/strategy"
	"github.com/reodash/airlock/internal/telemetry"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// Lifecycle reports the install state that gates interception.
type Lifecycle interface {
	State() lifecycle.State
	IsActive() bool
	Degraded() bool
}

// Strategist serves classified requests from cache or from the origin.
type Strategist interface {
	ServeAPI(ctx context.Context, method, requestURI string, hdr http.Header) (strategy.Result, error)
	ServeNavigation(ctx context.Context, requestURI string, hdr http.Header) (strategy.Result, error)
	ServeAsset(ctx context.Context, requestURI string) (strategy.Result, error)
}

// Forwarder streams unmanaged requests straight to the origin.
type Forwarder interface {
	Forward(w http.ResponseWriter, r *http.Request) error
}

// StatsSource reports serving-generation statistics.
type StatsSource interface {
	Stats(ctx context.Context) (airlock.GenerationStats, error)
}

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Lifecycle      Lifecycle
	Strategy       Strategist
	Origin         Forwarder
	Stats          StatsSource        // nil = status reports lifecycle only
	ReadyCheck     ReadyChecker       // nil = lifecycle state alone decides readiness
	Metrics        *telemetry.Metrics // nil = no request metrics
	MetricsHandler http.Handler       // nil = metrics endpoint not mounted
	Version        string
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps, started: time.Now()}

	r := chi.NewRouter()

	// Global middleware
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	// Gateway self-endpoints live under one reserved prefix so they can
	// never shadow an origin route.
	r.Route("/_airlock", func(r chi.Router) {
		r.Get("/healthz", s.handleHealthz)
		r.Get("/readyz", s.handleReadyz)
		r.Get("/status", s.handleStatus)
		if deps.MetricsHandler != nil {
			r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
		}
		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
		})
	})

	// Everything else is origin traffic.
	r.NotFound(s.handleIntercept)

	return r
}

type server struct {
	deps    Deps
	started time.Time
}

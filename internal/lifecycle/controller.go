// Package lifecycle drives the install and activation sequence that gates
// the interception boundary. Until the controller reports active, the
// transport streams every request through to the origin untouched.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/reodash/airlock/internal/telemetry"
)

// State is a phase of the gateway lifecycle. The zero value is
// StateUninstalled; states only ever advance.
type State int32

const (
	StateUninstalled State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActive
)

// String returns the state name for logs and the status endpoint.
func (s State) String() string {
	switch s {
	case StateUninstalled:
		return "uninstalled"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Manager is the generation surface the controller drives.
type Manager interface {
	Populate(ctx context.Context) error
	PruneOthers(ctx context.Context) error
	AdoptLatest(ctx context.Context) (string, error)
	Active() string
}

// Controller owns the lifecycle state machine. Exactly one Run drives it;
// any number of request goroutines may read it.
type Controller struct {
	mgr     Manager
	metrics *telemetry.Metrics

	state     atomic.Int32
	degraded  atomic.Bool
	activated chan struct{}
}

// NewController creates a Controller in StateUninstalled. metrics may be nil.
func NewController(mgr Manager, m *telemetry.Metrics) *Controller {
	return &Controller{
		mgr:       mgr,
		metrics:   m,
		activated: make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State { return State(c.state.Load()) }

// IsActive reports whether activation has completed and the gateway owns
// traffic. The transport checks this on every request.
func (c *Controller) IsActive() bool { return c.State() == StateActive }

// Degraded reports whether the gateway is serving an adopted prior
// generation because population failed.
func (c *Controller) Degraded() bool { return c.degraded.Load() }

// Activated returns a channel closed when the gateway goes active. Workers
// that must wait for a populated generation block on it.
func (c *Controller) Activated() <-chan struct{} { return c.activated }

// Name returns the worker identifier.
func (c *Controller) Name() string { return "lifecycle" }

// Run installs and activates, then holds until ctx is cancelled.
//
// A failed population falls back to the newest complete generation already
// on disk: a stale shell beats no shell for an offline gateway. Pruning is
// skipped in that case so nothing is deleted out from under the adopted
// generation. With nothing to adopt the error is returned and the process
// comes down.
func (c *Controller) Run(ctx context.Context) error {
	c.setState(StateInstalling)
	slog.Info("installing generation", "generation", c.mgr.Active())

	if err := c.mgr.Populate(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		name, adoptErr := c.mgr.AdoptLatest(ctx)
		if adoptErr != nil {
			return fmt.Errorf("install: %w", err)
		}
		c.degraded.Store(true)
		slog.Warn("population failed, adopted prior generation",
			"generation", name, "error", err)

		c.setState(StateInstalled)
		c.setState(StateActivating)
		c.activate()
		<-ctx.Done()
		return nil
	}
	c.setState(StateInstalled)

	c.setState(StateActivating)
	if err := c.mgr.PruneOthers(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		// A store that cannot delete is a store about to fail writes too.
		return fmt.Errorf("activate: %w", err)
	}
	c.activate()

	<-ctx.Done()
	return nil
}

func (c *Controller) activate() {
	c.setState(StateActive)
	close(c.activated)
	slog.Info("activation complete, claiming traffic",
		"generation", c.mgr.Active(), "degraded", c.Degraded())
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
	if c.metrics != nil {
		c.metrics.LifecycleState.Set(float64(s))
	}
	slog.Debug("lifecycle transition", "state", s.String())
}

package worker

import (
	"context"
	"time"

	"github.com/rs/dnscache"
)

const dnsRefreshInterval = 5 * time.Minute

// refresher is the refresh surface of the cached DNS resolver.
type refresher interface {
	Refresh(clearUnused bool)
}

// DNSRefreshWorker periodically re-resolves cached DNS entries so origin
// failover is picked up without a restart.
type DNSRefreshWorker struct {
	resolver refresher
	interval time.Duration
}

// NewDNSRefreshWorker creates a DNSRefreshWorker. interval <= 0 selects the
// default.
func NewDNSRefreshWorker(resolver *dnscache.Resolver, interval time.Duration) *DNSRefreshWorker {
	if interval <= 0 {
		interval = dnsRefreshInterval
	}
	return &DNSRefreshWorker{resolver: resolver, interval: interval}
}

// Name returns the worker identifier.
func (w *DNSRefreshWorker) Name() string { return "dns_refresh" }

// Run refreshes on every tick until ctx is cancelled.
func (w *DNSRefreshWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.resolver.Refresh(true)
		case <-ctx.Done():
			return nil
		}
	}
}

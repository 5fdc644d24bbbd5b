/*
Copyright © 2025 Denis Khalturin
All rights reserved.

Redistribution and use in source and binary forms, with or without
modification, are permitted provided that the following conditions are met:

1. Redistributions of source code must retain the above copyright notice,
   this list of conditions and the following disclaimer.

2. Redistributions in binary form must reproduce the above copyright notice,
   this list of conditions and the following disclaimer in the documentation
   and/or other materials provided with the distribution.

3. Neither the name of the copyright holder nor the names of its contributors
   may be used to endorse or promote products derived from this software
   without specific prior written permission.

THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
POSSIBILITY OF SUCH DAMAGE.
*/
// prettier-ignore-end
package daemon

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"schemapin/internal/config"
	"schemapin/internal/discovery"
	"schemapin/internal/metrics"
	"schemapin/internal/pin"
	"schemapin/internal/resolver"
)

// DomainState is the cached discovery/revocation state for one watched
// domain, refreshed periodically by a background worker.
type DomainState struct {
	Domain      string
	Discovery   *discovery.WellKnownResponse
	Revocation  *discovery.RevocationDocument
	LastChecked *time.Time
	LastError   string
}

// WithTimeout sets the per-fetch timeout used both to build each domain's
// HTTPS resolver and to bound each discovery-refresh tick.
func WithTimeout(d time.Duration) Option {
	return func(daemon *Daemon) {
		daemon.timeout = d
	}
}

// WithCollector sets the Prometheus metrics collector for tracking
// pin-store size and revocation-cache age.
func WithCollector(c *metrics.Collector) Option {
	return func(daemon *Daemon) {
		daemon.collector = c
	}
}

// WithDumpInterval sets the interval for periodic persistence of the pin
// store to storage.
func WithDumpInterval(d time.Duration) Option {
	return func(daemon *Daemon) {
		daemon.dumpInterval = d
	}
}

// WithFlushFunc sets the callback function used to persist pinned tools to
// storage during periodic dumps.
func WithFlushFunc(f func(map[string]pin.PinnedTool) error) Option {
	return func(daemon *Daemon) {
		daemon.flushFunc = f
	}
}

// WithPinStore sets the TOFU pin store whose contents are snapshotted on
// every periodic flush.
func WithPinStore(s *pin.Store) Option {
	return func(daemon *Daemon) {
		daemon.pinStore = s
	}
}

// Option is a functional option type for configuring a Daemon instance.
type Option func(*Daemon)

// Daemon manages a collection of watched domains with concurrent access
// and automatic discovery/revocation refresh. It maintains a cached
// DomainState per domain, runs a background worker per domain to refresh
// that state via a resolver, collects metrics, and periodically flushes
// the pin store to storage.
type Daemon struct {
	ctx context.Context
	mu  sync.RWMutex

	store     map[string]*DomainState
	resolvers map[string]resolver.Resolver
	workers   map[string]context.CancelFunc

	collector    *metrics.Collector
	dumpInterval time.Duration
	flushFunc    func(map[string]pin.PinnedTool) error
	pinStore     *pin.Store
	timeout      time.Duration
}

// New creates and initializes a new Daemon instance with domain discovery
// management. It accepts a context for lifecycle management, a list of
// watched domains, and optional configuration via functional options.
// Automatically starts a discovery-refresh worker for each domain.
func New(ctx context.Context, domains []config.ConfigDomain, opts ...Option) *Daemon {
	d := &Daemon{
		ctx:       ctx,
		store:     make(map[string]*DomainState),
		resolvers: make(map[string]resolver.Resolver),
		workers:   make(map[string]context.CancelFunc),
	}

	for _, opt := range opts {
		opt(d)
	}

	for _, cd := range domains {
		d.AddDomain(cd)
	}

	slog.Debug("domains list", "domains", d.store)

	return d
}

// buildResolver assembles the chain a watched domain resolves discovery
// and revocation documents through: an optional trust bundle, an optional
// local discovery directory, and HTTPS well-known discovery as the final
// fallback.
func buildResolver(cd config.ConfigDomain, timeout time.Duration) (resolver.Resolver, error) {
	var chain []resolver.Resolver

	if cd.TrustBundle != "" {
		data, err := os.ReadFile(cd.TrustBundle)
		if err != nil {
			return nil, err
		}

		bundle, err := resolver.NewTrustBundleFromJSON(data)
		if err != nil {
			return nil, err
		}

		chain = append(chain, bundle)
	}

	if cd.DiscoveryDir != "" {
		chain = append(chain, resolver.NewLocalDirectory(cd.DiscoveryDir, ""))
	}

	chain = append(chain, resolver.NewHTTPSWellKnown(timeout))

	return resolver.NewChain(chain...), nil
}

// Set stores or updates a domain's cached state with thread-safe write access.
func (d *Daemon) Set(domain string, v DomainState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	slog.Debug("set domain state", "domain", domain)

	d.store[domain] = &v
}

// Get retrieves a domain's cached state with thread-safe read access.
// Returns the state and a boolean indicating whether the domain was found.
func (d *Daemon) Get(domain string) (DomainState, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	v, ok := d.store[domain]
	if !ok || v == nil {
		return DomainState{}, false
	}

	return *v, ok
}

// Snapshot creates a thread-safe copy of every domain's cached state.
func (d *Daemon) Snapshot() map[string]DomainState {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]DomainState, len(d.store))
	for domain, ptr := range d.store {
		out[domain] = *ptr
	}
	return out
}

// Resolver returns the resolver chain configured for domain, if any.
// Application code uses this to verify against the same resolver the
// daemon refreshes discovery through, rather than rebuilding one.
func (d *Daemon) Resolver(domain string) (resolver.Resolver, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.resolvers[domain]
	return r, ok
}

// AddDomain registers a watched domain and starts a background worker for
// it. If a worker for this domain already exists, it skips worker creation.
func (d *Daemon) AddDomain(cd config.ConfigDomain) {
	r, err := buildResolver(cd, d.timeout)
	if err != nil {
		slog.Error("failed to build resolver for domain, falling back to HTTPS well-known", "domain", cd.Name, "err", err)
		r = resolver.NewHTTPSWellKnown(d.timeout)
	}

	d.mu.Lock()
	d.resolvers[cd.Name] = r
	_, exists := d.workers[cd.Name]
	d.mu.Unlock()

	d.Set(cd.Name, DomainState{Domain: cd.Name})

	if exists {
		return
	}

	ctx, cancel := context.WithCancel(d.ctx)

	d.mu.Lock()
	d.workers[cd.Name] = cancel
	d.mu.Unlock()

	go d.worker(ctx, cd.Name, r)
}

// worker is a background goroutine that periodically refreshes the
// discovery and revocation documents for a domain. It runs every second,
// resolves the domain's discovery document, updates the cached state with
// the result or the error, and continues until the context is cancelled.
func (d *Daemon) worker(ctx context.Context, domain string, r resolver.Resolver) {
	slog.Info("starting discovery worker", "domain", domain)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("discovery worker stopping", "domain", domain)
			return
		case <-ticker.C:
			cur := time.Now()

			val, _ := d.Get(domain)
			val.LastChecked = &cur

			fetchCtx, cancel := context.WithTimeout(ctx, d.timeout)

			disc, err := r.ResolveDiscovery(fetchCtx, domain)
			if err != nil {
				slog.Error("failed to resolve discovery", "domain", domain, "err", err)
				val.LastError = err.Error()
				cancel()
				d.Set(domain, val)
				continue
			}

			val.Discovery = disc
			val.LastError = ""

			if rev, err := r.ResolveRevocation(fetchCtx, domain, disc); err == nil {
				val.Revocation = rev

				if d.collector != nil {
					d.collector.SetRevocationCacheAge(domain, "resolver", 0)
				}
			}

			cancel()

			d.Set(domain, val)

			slog.Debug("updated domain state", "domain", domain)
		}
	}
}

// StartPeriodicFlush runs a background loop that periodically persists the
// pin store's contents to storage. It snapshots the pin store and calls
// the configured flush function at intervals specified by dumpInterval.
// Continues until the context is cancelled.
func (d *Daemon) StartPeriodicFlush() {
	slog.Info("starting periodic flush", "interval", d.dumpInterval.Seconds())

	ticker := time.NewTicker(d.dumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			slog.Info("stopping periodic flush")
			return
		case <-ticker.C:
			tools := make(map[string]pin.PinnedTool)

			if d.pinStore != nil {
				for _, t := range d.pinStore.Snapshot() {
					tools[t.ToolID+"@"+t.Domain] = t
				}

				if d.collector != nil {
					d.collector.SetPinStoreSize(float64(len(tools)))
				}
			}

			slog.Debug("StartPeriodicFlush", "tools_count", len(tools), "tools", tools)

			if d.flushFunc == nil {
				continue
			}

			if err := d.flushFunc(tools); err != nil {
				slog.Error("failed to flush pinned tools", "err", err)
			} else {
				slog.Debug("successfully flushed pinned tools")
			}
		}
	}
}

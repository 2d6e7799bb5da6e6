// Package facade is the cache engine's public read-side surface: the thin
// layer a host process actually calls, wiring together the registry,
// refresh worker, transport and persistence packages behind the handful of
// operations an embedder needs (spec.md §4.7).
//
// Grounded on the teacher's internal/app/application.go: a single struct
// built once at startup from already-constructed collaborators, exposing
// Start/Stop plus narrow read accessors rather than leaking its internals.
package facade

import (
	"context"
	"encoding/json"
	"math/rand/v2"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"mastermindcache/internal/domain"
	"mastermindcache/internal/persistence"
	"mastermindcache/internal/refresh"
	"mastermindcache/internal/registry"
	"mastermindcache/internal/snapshot"
	"mastermindcache/internal/telemetry"
	"mastermindcache/internal/transport"
)

// randFloat64 adapts math/rand/v2's package-level generator to
// domain.RandomSource; no pack example wraps an RNG behind a third-party
// library (see DESIGN.md), so this stays on the stdlib injection seam.
type randFloat64 struct{}

func (randFloat64) Float64() float64 { return rand.Float64() }

// Cache is the constructed cache engine: a registry kept current by a
// background refresh worker, with optional disk persistence and metrics.
type Cache struct {
	opts     domain.Options
	registry *registry.Registry
	worker   *refresh.Worker
	store    *persistence.Store
	metrics  *telemetry.Metrics
	logger   *zap.Logger
}

// New validates opts, rehydrates any persisted state, and builds a Cache
// ready for Start. dialer may be nil, in which case a transport.TCPDialer
// is used; logger and registerer may both be nil.
func New(opts domain.Options, dialer domain.Dialer, logger *zap.Logger, registerer prometheus.Registerer) (*Cache, error) {
	opts = opts.WithDefaults()
	if opts.Random == nil {
		opts.Random = randFloat64{}
	}

	remotes, err := domain.ParseRemotes(opts.Remotes)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("mastermindcache")

	if dialer == nil {
		dialer = &transport.TCPDialer{Logger: logger}
	}

	store, err := persistence.Open(opts.CachePath)
	if err != nil {
		return nil, domain.E(domain.CodeInternal, "facade.New", "open persistence store", err)
	}

	reg := registry.New()
	if err := rehydrate(reg, store, opts); err != nil {
		logger.Warn("rehydrating cache from disk failed", zap.Error(err))
	}

	metrics := telemetry.New(registerer)

	worker := refresh.New(refresh.Config{
		Registry: reg,
		Dialer:   dialer,
		Remotes:  remotes,
		Options:  opts,
		Store:    store,
		Metrics:  metrics,
		Logger:   logger,
	})

	return &Cache{opts: opts, registry: reg, worker: worker, store: store, metrics: metrics, logger: logger}, nil
}

// rehydrate rebuilds snapshots from whatever the persistence store held
// before this process started, so GetNamespaceState can serve
// stale-but-valid data before the first successful refresh (spec.md §5).
func rehydrate(reg *registry.Registry, store *persistence.Store, opts domain.Options) error {
	records, err := store.LoadNamespaces()
	if err != nil {
		return err
	}
	for name, rec := range records {
		var raw map[string]any
		if err := json.Unmarshal(rec.Raw, &raw); err != nil {
			continue
		}
		if snapshot.IsDeleted(raw) {
			continue
		}
		snap, err := snapshot.Build(name, raw, opts.NamespaceFilter, opts.UserSettingsFactory)
		if err != nil {
			continue
		}
		reg.Replace(domain.CacheEntry{
			Name:           name,
			Snapshot:       snap,
			LastUpdateTime: rec.LastUpdateTime,
			Raw:            raw,
		})
	}
	return nil
}

// Start begins the background refresh loop. See domain.ErrUpdateLoopAlreadyStarted.
func (c *Cache) Start(ctx context.Context) error {
	return c.worker.Start(ctx)
}

// Stop halts the background refresh loop. See domain.ErrUpdateLoopAlreadyStopped.
func (c *Cache) Stop() error {
	return c.worker.Stop()
}

// IsRunning reports whether the refresh worker has been started and not
// yet stopped.
func (c *Cache) IsRunning() bool {
	switch c.worker.State() {
	case refresh.StateInit, refresh.StateStopped:
		return false
	default:
		return true
	}
}

// GetNamespaceState returns the current published snapshot for name,
// wrapped in the scoped accessors of spec.md §4.7. Returns
// domain.ErrNamespaceNotFound or domain.ErrCacheIsExpired.
func (c *Cache) GetNamespaceState(name string) (*NamespaceView, error) {
	entry, ok := c.registry.Get(name)
	if !ok {
		return nil, domain.E(domain.CodeNotFound, "facade.GetNamespaceState", "", domain.ErrNamespaceNotFound)
	}
	if entry.Expired {
		return nil, domain.E(domain.CodeExpired, "facade.GetNamespaceState", "", domain.ErrCacheIsExpired)
	}
	sampler, _ := c.worker.Sampler(name)
	return &NamespaceView{snapshot: entry.Snapshot, sampler: sampler, metrics: c.metrics}, nil
}

// FindNamespaceState is GetNamespaceState without the error: ok is false
// for any reason GetNamespaceState would have failed.
func (c *Cache) FindNamespaceState(name string) (*NamespaceView, bool) {
	view, err := c.GetNamespaceState(name)
	return view, err == nil
}

// FindNamespaceStateByGroup resolves groupID to its owning namespace via the
// registry's group→namespace back-reference and returns that namespace's
// current state ("find_namespace_state(group_id)", spec.md §4.7). Returns a
// *domain.UnknownGroupError (see domain.IsUnknownGroup) if no known namespace
// currently owns groupID, otherwise the same errors as GetNamespaceState.
func (c *Cache) FindNamespaceStateByGroup(groupID int) (*NamespaceView, error) {
	name, ok := c.registry.NameForGroup(groupID)
	if !ok {
		return nil, domain.E(domain.CodeNotFound, "facade.FindNamespaceStateByGroup", "", &domain.UnknownGroupError{Group: groupID})
	}
	return c.GetNamespaceState(name)
}

// IsValid reports whether name has a fresh, non-expired entry that the
// embedder's UserSettingsFactory accepted (spec.md §4.7; a namespace with a
// nil UserSettings is cached but ignored by IsValid).
func (c *Cache) IsValid(name string) bool {
	entry, ok := c.registry.Get(name)
	if !ok || entry.Expired || entry.Snapshot == nil {
		return false
	}
	return entry.Snapshot.Settings.UserSettings != nil
}

// Namespaces lists every namespace currently held in the registry,
// regardless of staleness.
func (c *Cache) Namespaces() []string {
	return c.registry.Names()
}

// Close releases the persistence store's file handle. It does not stop the
// refresh worker; call Stop first.
func (c *Cache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

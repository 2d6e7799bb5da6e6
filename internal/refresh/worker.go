// Package refresh runs the background worker that keeps a Registry
// current: on a ticker, it fetches namespace state from the control
// service, rebuilds each namespace's snapshot, publishes it, persists it,
// and classifies staleness (spec.md §4.4).
//
// Grounded on wibus-wee-mcpv/internal/infra/scheduler/basic.go's
// StartIdleManager/StartPingManager idiom: a ticker plus a stop channel
// owned by a mutex-guarded start/stop pair, so Start and Stop are each
// idempotent and safe to call from any goroutine.
package refresh

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"mastermindcache/internal/domain"
	"mastermindcache/internal/persistence"
	"mastermindcache/internal/registry"
	"mastermindcache/internal/snapshot"
	"mastermindcache/internal/telemetry"
	"mastermindcache/internal/transport"
	"mastermindcache/internal/weights"
)

// Config wires a Worker to its collaborators. Metrics and Store may be nil
// (telemetry and persistence are both optional per spec.md's construction
// parameters).
type Config struct {
	Registry *registry.Registry
	Dialer   domain.Dialer
	Remotes  []domain.Remote
	Options  domain.Options // already defaulted, see domain.Options.WithDefaults
	Store    *persistence.Store
	Metrics  *telemetry.Metrics
	Logger   *zap.Logger
	Callback domain.RefreshCallback
}

// Worker runs the periodic refresh tick described in spec.md §4.4.
type Worker struct {
	registry *registry.Registry
	cursor   *transport.Cursor
	dialer   domain.Dialer
	opts     domain.Options
	store    *persistence.Store
	metrics  *telemetry.Metrics
	logger   *zap.Logger
	callback domain.RefreshCallback

	mu       sync.Mutex
	state    State
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}
	samplers map[string]*weights.Sampler
}

// New builds a Worker. Call Start to begin ticking.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cursor := transport.NewCursor(cfg.Remotes)
	metrics := cfg.Metrics
	cursor.OnReconnect = func() {
		if metrics != nil {
			metrics.IncReconnect()
		}
	}
	return &Worker{
		registry: cfg.Registry,
		cursor:   cursor,
		dialer:   cfg.Dialer,
		opts:     cfg.Options,
		store:    cfg.Store,
		metrics:  metrics,
		logger:   logger.Named("refresh"),
		callback: cfg.Callback,
		state:    StateInit,
		samplers: make(map[string]*weights.Sampler),
	}
}

// State reports the worker's current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Start begins the background ticker, running one tick immediately before
// the first wait. Returns domain.ErrUpdateLoopAlreadyStarted if already
// running.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return domain.ErrUpdateLoopAlreadyStarted
	}
	w.started = true
	w.state = StateConnecting
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	go w.run(runCtx, done)
	return nil
}

// Stop cancels the ticker and waits for the in-flight tick, if any, to
// finish. Returns domain.ErrUpdateLoopAlreadyStopped if not running.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return domain.ErrUpdateLoopAlreadyStopped
	}
	w.started = false
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.setState(StateStopped)
	return nil
}

func (w *Worker) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.opts.UpdatePeriod)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	start := w.opts.Clock.Now()
	err := w.fetchAndApply(ctx)
	if w.metrics != nil {
		w.metrics.ObserveTick(w.opts.Clock.Now().Sub(start))
	}

	if err != nil {
		w.logger.Warn("refresh tick failed", zap.Error(err))
		if w.metrics != nil {
			w.metrics.ObserveTickFailure("fetch")
		}
		w.setState(StateReconnecting)
	} else {
		w.setState(StateActive)
	}

	w.sweepStaleness()

	if w.metrics != nil {
		all := w.registry.All()
		expired := 0
		for _, entry := range all {
			if entry.Expired {
				expired++
			}
		}
		w.metrics.SetRegistrySize(len(all))
		w.metrics.SetExpiredNamespaces(expired)
	}

	if w.callback != nil {
		w.callback(w.registry.AnyExpired())
	}
}

// sweepStaleness reclassifies every registry entry as fresh, warning or
// expired based on its age against opts.WarningTime/ExpireTime (spec.md
// §4.4 step 3, §5's staleness classification), independent of whether this
// tick's fetch succeeded. Expired entries get their Expired flag set;
// warning-age entries are logged at Warn level. A zero threshold disables
// that class.
func (w *Worker) sweepStaleness() {
	if w.opts.ExpireTime <= 0 && w.opts.WarningTime <= 0 {
		return
	}
	now := w.opts.Clock.Now()
	for name, entry := range w.registry.All() {
		age := now.Sub(entry.LastUpdateTime)
		expired := w.opts.ExpireTime > 0 && age >= w.opts.ExpireTime
		if !expired && w.opts.WarningTime > 0 && age >= w.opts.WarningTime {
			w.logger.Warn("namespace cache is stale", zap.String("namespace", name), zap.Duration("age", age))
		}
		if w.opts.ExpireTime > 0 {
			w.registry.MarkExpired(name, expired)
		}
	}
}

func (w *Worker) fetchAndApply(ctx context.Context) error {
	enqueueCtx, cancel := context.WithTimeout(ctx, w.opts.EnqueueTimeout)
	defer cancel()

	result, err := transport.EnqueueWithReconnect(enqueueCtx, w.cursor, w.dialer, w.opts.ReconnectTimeout, "get_namespaces_states", nil)
	if err != nil {
		return err
	}

	namespaces, ok := result.(map[string]any)
	if !ok {
		return domain.E(domain.CodeInternal, "refresh.fetchAndApply", "get_namespaces_states: unexpected reply shape", nil)
	}

	for name, rawAny := range namespaces {
		w.applyNamespace(name, rawAny)
	}

	w.fetchSideTable(enqueueCtx, "get_cached_keys", persistence.CachedKeysKey)
	w.fetchSideTable(enqueueCtx, "get_config_remotes", persistence.RemotesKey)

	return nil
}

func (w *Worker) applyNamespace(name string, rawAny any) {
	raw, ok := rawAny.(map[string]any)
	if !ok {
		w.logger.Warn("skipping namespace with unexpected payload shape", zap.String("namespace", name))
		return
	}

	if snapshot.IsDeleted(raw) {
		w.forgetNamespace(name)
		return
	}

	snap, err := snapshot.Build(name, raw, w.opts.NamespaceFilter, w.opts.UserSettingsFactory)
	if err != nil {
		w.logger.Warn("snapshot build failed", zap.String("namespace", name), zap.Error(err))
		if w.metrics != nil {
			w.metrics.ObserveTickFailure("build")
		}
		return
	}

	sampler := weights.NewSampler(snap, w.opts.Random)
	w.mu.Lock()
	w.samplers[name] = sampler
	w.mu.Unlock()

	entry := domain.CacheEntry{
		Name:           name,
		Snapshot:       snap,
		LastUpdateTime: w.opts.Clock.Now(),
		Expired:        false,
		Raw:            raw,
	}
	previous, had := w.registry.Replace(entry)
	if had && previous.Snapshot != nil {
		w.releaseAfterGrace(previous.Snapshot.Settings.UserSettings)
	}

	if w.store != nil {
		payload, err := json.Marshal(raw)
		if err != nil {
			w.logger.Warn("marshal namespace for persistence failed", zap.String("namespace", name), zap.Error(err))
			return
		}
		if err := w.store.SaveNamespace(name, payload, entry.LastUpdateTime); err != nil {
			w.logger.Warn("persist namespace failed", zap.String("namespace", name), zap.Error(err))
			return
		}
		if w.metrics != nil {
			w.metrics.IncPersistedSnapshot()
		}
	}
}

func (w *Worker) forgetNamespace(name string) {
	previous, had := w.registry.Remove(name)
	if had && previous.Snapshot != nil {
		w.releaseAfterGrace(previous.Snapshot.Settings.UserSettings)
	}
	w.mu.Lock()
	delete(w.samplers, name)
	w.mu.Unlock()
	if w.store != nil {
		if err := w.store.DeleteNamespace(name); err != nil {
			w.logger.Warn("delete persisted namespace failed", zap.String("namespace", name), zap.Error(err))
		}
	}
}

// settingsReleaseGrace bounds how long a superseded snapshot's
// UserSettingsHandle is kept alive after a swap before its embedder-owned
// resource is actually released. GetNamespaceState hands out the exact
// *domain.NamespaceSnapshot pointer held in the registry (spec.md:149, "a
// reader that has captured a snapshot reference observes that snapshot in
// entirety regardless of later refreshes"), so a caller that captured the
// previous generation just before this swap may still be reading it;
// without this window Release could run underneath it.
const settingsReleaseGrace = 5 * time.Second

// releaseAfterGrace schedules handle's release instead of running it
// synchronously, so a reader that captured the snapshot this handle belongs
// to immediately before a registry swap has settingsReleaseGrace to finish
// using it.
func (w *Worker) releaseAfterGrace(handle *domain.UserSettingsHandle) {
	if handle == nil {
		return
	}
	time.AfterFunc(settingsReleaseGrace, handle.Release)
}

func (w *Worker) fetchSideTable(ctx context.Context, event, persistKey string) {
	if w.store == nil {
		return
	}
	result, err := transport.EnqueueWithReconnect(ctx, w.cursor, w.dialer, w.opts.ReconnectTimeout, event, nil)
	if err != nil {
		w.logger.Warn("side table fetch failed", zap.String("event", event), zap.Error(err))
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		w.logger.Warn("side table marshal failed", zap.String("event", event), zap.Error(err))
		return
	}
	if err := w.store.SaveSideTable(persistKey, payload); err != nil {
		w.logger.Warn("side table persist failed", zap.String("event", event), zap.Error(err))
	}
}

// Sampler returns the current weight sampler for namespace, if a snapshot
// has been built for it.
func (w *Worker) Sampler(namespace string) (*weights.Sampler, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.samplers[namespace]
	return s, ok
}

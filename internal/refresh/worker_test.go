package refresh

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mastermindcache/internal/domain"
	"mastermindcache/internal/persistence"
	"mastermindcache/internal/registry"
)

func storagePayload() map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"groups-count": float64(2),
		},
		"couples": []any{
			map[string]any{
				"groups":               []any{float64(1), float64(2)},
				"free_effective_space": float64(1000),
			},
		},
		"weights": map[string]any{
			"2": []any{
				map[string]any{
					"couples": []any{float64(1), float64(2)},
					"weight":  float64(10),
				},
			},
		},
		"statistics": map[string]any{
			"is_full": true,
		},
	}
}

func deletedPayload() map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"__service": map[string]any{"is_deleted": true},
		},
	}
}

// fakeSession hands back whatever responses is keyed by event, one at a
// time, falling back to the event's zero value once the queue runs dry so
// later ticks degrade to empty-namespace responses instead of erroring.
type fakeSession struct {
	mu        sync.Mutex
	responses map[string][]any
}

func (s *fakeSession) Enqueue(ctx context.Context, event string, args any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.responses[event]
	if len(queue) == 0 {
		return map[string]any{}, nil
	}
	next := queue[0]
	s.responses[event] = queue[1:]
	return next, nil
}

func (s *fakeSession) Close() error { return nil }

type fakeDialer struct{ session *fakeSession }

func (d *fakeDialer) Dial(ctx context.Context, remote domain.Remote) (domain.Session, error) {
	return d.session, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fixedRandom struct{ value float64 }

func (r fixedRandom) Float64() float64 { return r.value }

func newTestWorker(t *testing.T, session *fakeSession, clock domain.Clock) (*Worker, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	w := New(Config{
		Registry: reg,
		Dialer:   &fakeDialer{session: session},
		Remotes:  []domain.Remote{{Host: "127.0.0.1", Port: 10053}},
		Options: domain.Options{
			UpdatePeriod:     time.Hour,
			EnqueueTimeout:   time.Second,
			ReconnectTimeout: time.Second,
			ExpireTime:       time.Minute,
			Clock:            clock,
			Random:           fixedRandom{value: 0},
		},
	})
	return w, reg
}

func TestTickPublishesNamespaceIntoRegistry(t *testing.T) {
	session := &fakeSession{responses: map[string][]any{
		"get_namespaces_states": {map[string]any{"storage": storagePayload()}},
	}}
	clock := fixedClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	w, reg := newTestWorker(t, session, clock)

	w.tick(context.Background())

	entry, ok := reg.Get("storage")
	require.True(t, ok)
	require.Equal(t, "storage", entry.Snapshot.Name)
	require.True(t, clock.now.Equal(entry.LastUpdateTime))
	require.Equal(t, StateActive, w.State())

	sampler, ok := w.Sampler("storage")
	require.True(t, ok)
	require.NotNil(t, sampler)
}

func TestTickRemovesTombstonedNamespace(t *testing.T) {
	session := &fakeSession{responses: map[string][]any{
		"get_namespaces_states": {
			map[string]any{"storage": storagePayload()},
			map[string]any{"storage": deletedPayload()},
		},
	}}
	clock := fixedClock{now: time.Now()}
	w, reg := newTestWorker(t, session, clock)

	w.tick(context.Background())
	_, ok := reg.Get("storage")
	require.True(t, ok)

	w.tick(context.Background())
	_, ok = reg.Get("storage")
	require.False(t, ok)

	_, ok = w.Sampler("storage")
	require.False(t, ok)
}

func TestSweepStalenessMarksExpiredByAge(t *testing.T) {
	session := &fakeSession{responses: map[string][]any{
		"get_namespaces_states": {map[string]any{"storage": storagePayload()}},
	}}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &mutableClock{now: start}
	w, reg := newTestWorker(t, session, clock)

	w.tick(context.Background())
	require.False(t, reg.AnyExpired())

	clock.now = start.Add(2 * time.Minute)
	w.sweepStaleness()
	require.True(t, reg.AnyExpired())
}

type mutableClock struct{ now time.Time }

func (c *mutableClock) Now() time.Time { return c.now }

func TestStartStopIsIdempotentAndErrorsOnMisuse(t *testing.T) {
	session := &fakeSession{responses: map[string][]any{
		"get_namespaces_states": {map[string]any{}},
	}}
	clock := fixedClock{now: time.Now()}
	w, _ := newTestWorker(t, session, clock)

	require.NoError(t, w.Start(context.Background()))
	require.ErrorIs(t, w.Start(context.Background()), domain.ErrUpdateLoopAlreadyStarted)

	require.NoError(t, w.Stop())
	require.ErrorIs(t, w.Stop(), domain.ErrUpdateLoopAlreadyStopped)
	require.Equal(t, StateStopped, w.State())
}

func TestTickWithDisabledStorePersistsNothing(t *testing.T) {
	session := &fakeSession{responses: map[string][]any{
		"get_namespaces_states": {map[string]any{"storage": storagePayload()}},
	}}
	clock := fixedClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	reg := registry.New()
	store, err := persistence.Open("")
	require.NoError(t, err)

	w := New(Config{
		Registry: reg,
		Dialer:   &fakeDialer{session: session},
		Remotes:  []domain.Remote{{Host: "127.0.0.1", Port: 10053}},
		Store:    store,
		Options: domain.Options{
			UpdatePeriod:     time.Hour,
			EnqueueTimeout:   time.Second,
			ReconnectTimeout: time.Second,
			Clock:            clock,
			Random:           fixedRandom{value: 0},
		},
	})

	w.tick(context.Background())

	loaded, err := store.LoadNamespaces()
	require.NoError(t, err)
	require.Empty(t, loaded, "disabled store is a no-op regardless of tick activity")
}

func TestRefreshCallbackReceivesAnyExpiredFlag(t *testing.T) {
	session := &fakeSession{responses: map[string][]any{
		"get_namespaces_states": {map[string]any{"storage": storagePayload()}},
	}}
	clock := &mutableClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	reg := registry.New()

	var mu sync.Mutex
	var calls []bool
	w := New(Config{
		Registry: reg,
		Dialer:   &fakeDialer{session: session},
		Remotes:  []domain.Remote{{Host: "127.0.0.1", Port: 10053}},
		Options: domain.Options{
			UpdatePeriod:     time.Hour,
			EnqueueTimeout:   time.Second,
			ReconnectTimeout: time.Second,
			ExpireTime:       time.Minute,
			Clock:            clock,
			Random:           fixedRandom{value: 0},
		},
		Callback: func(anyExpired bool) {
			mu.Lock()
			calls = append(calls, anyExpired)
			mu.Unlock()
		},
	})

	w.tick(context.Background())
	mu.Lock()
	require.Equal(t, []bool{false}, calls)
	mu.Unlock()

	clock.now = clock.now.Add(2 * time.Minute)
	w.tick(context.Background())
	mu.Lock()
	require.Equal(t, []bool{false, true}, calls)
	mu.Unlock()
}

package facade

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"mastermindcache/internal/domain"
)

func storagePayload() map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"groups-count":       float64(2),
			"success-copies-num": "quorum",
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
		"statistics": map[string]any{"is_full": true},
	}
}

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

type fixedRandom struct{}

func (fixedRandom) Float64() float64 { return 0 }

// TestCacheServesNamespaceStateAfterRefresh exercises the end-to-end path a
// real embedder takes: construct, start, wait for one tick, read state,
// draw a couple, apply feedback, stop.
func TestCacheServesNamespaceStateAfterRefresh(t *testing.T) {
	session := &fakeSession{responses: map[string][]any{
		"get_namespaces_states": {map[string]any{"storage": storagePayload()}},
	}}

	cache, err := New(domain.Options{
		Remotes:          "127.0.0.1:10053",
		UpdatePeriod:     time.Hour,
		EnqueueTimeout:   time.Second,
		ReconnectTimeout: time.Second,
		Random:           fixedRandom{},
	}, &fakeDialer{session: session}, nil, prometheus.NewRegistry())
	require.NoError(t, err)
	require.False(t, cache.IsRunning())

	require.NoError(t, cache.Start(context.Background()))
	defer func() { require.NoError(t, cache.Stop()) }()

	require.Eventually(t, func() bool {
		_, ok := cache.FindNamespaceState("storage")
		return ok
	}, time.Second, 10*time.Millisecond)

	require.True(t, cache.IsRunning())

	view, err := cache.GetNamespaceState("storage")
	require.NoError(t, err)
	require.Equal(t, "storage", view.Name())
	require.Equal(t, 2, view.GroupsCount())

	groups, err := view.CoupleGroups(view.Couples()[0].ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []int{1, 2}, groups)

	info, err := view.PickGroups(500)
	require.NoError(t, err)
	require.NotEmpty(t, info.ID)

	require.NoError(t, view.SetFeedback(info.ID, "partly_unavailable"))
	require.Contains(t, cache.Namespaces(), "storage")

	byGroup, err := cache.FindNamespaceStateByGroup(1)
	require.NoError(t, err)
	require.Equal(t, "storage", byGroup.Name())

	_, err = cache.FindNamespaceStateByGroup(999)
	require.True(t, domain.IsUnknownGroup(err))
}

func TestGetNamespaceStateReportsNotFound(t *testing.T) {
	session := &fakeSession{responses: map[string][]any{
		"get_namespaces_states": {map[string]any{}},
	}}
	cache, err := New(domain.Options{
		Remotes:          "127.0.0.1:10053",
		UpdatePeriod:     time.Hour,
		EnqueueTimeout:   time.Second,
		ReconnectTimeout: time.Second,
		Random:           fixedRandom{},
	}, &fakeDialer{session: session}, nil, prometheus.NewRegistry())
	require.NoError(t, err)

	_, err = cache.GetNamespaceState("missing")
	require.ErrorIs(t, err, domain.ErrNamespaceNotFound)
	require.False(t, cache.IsValid("missing"))
}

func TestNewRejectsEmptyRemotes(t *testing.T) {
	_, err := New(domain.Options{}, nil, nil, nil)
	require.ErrorIs(t, err, domain.ErrRemotesEmpty)
}

package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mastermindcache/internal/domain"
)

func TestReplaceReturnsPreviousEntry(t *testing.T) {
	r := New()

	_, had := r.Replace(domain.CacheEntry{Name: "storage", LastUpdateTime: time.Unix(1, 0)})
	require.False(t, had)

	prev, had := r.Replace(domain.CacheEntry{Name: "storage", LastUpdateTime: time.Unix(2, 0)})
	require.True(t, had)
	require.Equal(t, time.Unix(1, 0), prev.LastUpdateTime)

	current, ok := r.Get("storage")
	require.True(t, ok)
	require.Equal(t, time.Unix(2, 0), current.LastUpdateTime)
}

func TestRemoveDeletesEntry(t *testing.T) {
	r := New()
	r.Replace(domain.CacheEntry{Name: "storage"})

	removed, ok := r.Remove("storage")
	require.True(t, ok)
	require.Equal(t, "storage", removed.Name)

	_, ok = r.Get("storage")
	require.False(t, ok)

	_, ok = r.Remove("storage")
	require.False(t, ok)
}

func TestAllReturnsIndependentCopy(t *testing.T) {
	r := New()
	r.Replace(domain.CacheEntry{Name: "a"})
	r.Replace(domain.CacheEntry{Name: "b"})

	all := r.All()
	require.Len(t, all, 2)
	delete(all, "a")

	require.Len(t, r.All(), 2, "mutating the returned map must not affect the registry")
}

func TestAnyExpiredAndMarkExpired(t *testing.T) {
	r := New()
	r.Replace(domain.CacheEntry{Name: "storage", Expired: false})
	require.False(t, r.AnyExpired())

	r.MarkExpired("storage", true)
	require.True(t, r.AnyExpired())

	entry, ok := r.Get("storage")
	require.True(t, ok)
	require.True(t, entry.Expired)

	r.MarkExpired("storage", false)
	require.False(t, r.AnyExpired())
}

func TestMarkExpiredIgnoresUnknownNamespace(t *testing.T) {
	r := New()
	r.MarkExpired("ghost", true)
	require.False(t, r.AnyExpired())
}

func TestNameForGroupResolvesAndFollowsReplace(t *testing.T) {
	r := New()
	r.Replace(domain.CacheEntry{
		Name: "storage",
		Snapshot: &domain.NamespaceSnapshot{
			Groups: []domain.Group{{ID: 1}, {ID: 2}},
		},
	})

	name, ok := r.NameForGroup(1)
	require.True(t, ok)
	require.Equal(t, "storage", name)

	_, ok = r.NameForGroup(99)
	require.False(t, ok)

	// A later refresh that drops group 1 from the namespace's snapshot must
	// also drop it from the reverse index.
	r.Replace(domain.CacheEntry{
		Name: "storage",
		Snapshot: &domain.NamespaceSnapshot{
			Groups: []domain.Group{{ID: 2}},
		},
	})
	_, ok = r.NameForGroup(1)
	require.False(t, ok)
	name, ok = r.NameForGroup(2)
	require.True(t, ok)
	require.Equal(t, "storage", name)
}

func TestNameForGroupClearedOnRemove(t *testing.T) {
	r := New()
	r.Replace(domain.CacheEntry{
		Name:     "storage",
		Snapshot: &domain.NamespaceSnapshot{Groups: []domain.Group{{ID: 5}}},
	})
	r.Remove("storage")

	_, ok := r.NameForGroup(5)
	require.False(t, ok)
}

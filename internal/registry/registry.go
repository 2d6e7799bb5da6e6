// Package registry holds the published, per-namespace cache state: the
// latest successfully-built snapshot for each namespace plus its Expired
// flag, which the refresh worker's staleness sweep sets (spec.md §4.4,
// §5).
//
// Grounded on the registry mutex/map shape in
// wibus-wee-mcpv/internal/app/controlplane/registry/client_registry.go:
// a single mutex guards a name-keyed map, reads take a snapshot of the
// current value under lock and release it immediately, and writes replace
// one entry atomically rather than mutating it in place.
package registry

import (
	"sync"

	"mastermindcache/internal/domain"
)

// Registry is the cache engine's read-side state: one domain.CacheEntry per
// known namespace, safe for concurrent reads from many goroutines and
// concurrent writes from the refresh worker. groupIndex is the reverse
// mapping from group id to owning namespace name, kept in step with entries
// so find_namespace_state(group_id) (spec.md §4.7's "find_namespace_state")
// never has to scan every namespace's snapshot.
type Registry struct {
	mu         sync.RWMutex
	entries    map[string]domain.CacheEntry
	groupIndex map[int]string
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		entries:    make(map[string]domain.CacheEntry),
		groupIndex: make(map[int]string),
	}
}

// Replace publishes entry as the current state for entry.Name, atomically
// superseding whatever was there before. The caller is responsible for
// releasing the previous entry's UserSettingsHandle, if any (spec.md §4.4
// step 6's swap-then-release ordering); Replace returns the previous entry
// so callers can do so.
func (r *Registry) Replace(entry domain.CacheEntry) (previous domain.CacheEntry, hadPrevious bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous, hadPrevious = r.entries[entry.Name]
	r.entries[entry.Name] = entry

	if hadPrevious && previous.Snapshot != nil {
		for _, g := range previous.Snapshot.Groups {
			delete(r.groupIndex, g.ID)
		}
	}
	if entry.Snapshot != nil {
		for _, g := range entry.Snapshot.Groups {
			r.groupIndex[g.ID] = entry.Name
		}
	}
	return previous, hadPrevious
}

// Remove deletes namespace's entry (control service tombstone, spec.md
// §4.4 step 1), returning the removed entry if one existed so the caller
// can release its resources.
func (r *Registry) Remove(name string) (domain.CacheEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[name]
	if ok {
		delete(r.entries, name)
		if entry.Snapshot != nil {
			for _, g := range entry.Snapshot.Groups {
				delete(r.groupIndex, g.ID)
			}
		}
	}
	return entry, ok
}

// NameForGroup resolves the namespace currently owning groupID, for
// find_namespace_state(group_id) (spec.md §4.7).
func (r *Registry) NameForGroup(groupID int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.groupIndex[groupID]
	return name, ok
}

// Get returns namespace's current entry, if any.
func (r *Registry) Get(name string) (domain.CacheEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	return entry, ok
}

// All returns a shallow copy of every known namespace's current entry.
func (r *Registry) All() map[string]domain.CacheEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]domain.CacheEntry, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out
}

// Names returns the set of currently known namespace names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// AnyExpired reports whether any entry in the registry is currently marked
// expired, for the refresh worker's post-tick RefreshCallback (spec.md
// §4.4 step 7).
func (r *Registry) AnyExpired() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, entry := range r.entries {
		if entry.Expired {
			return true
		}
	}
	return false
}

// MarkExpired updates namespace's Expired flag in place without touching
// its snapshot, for the staleness sweep that runs at the end of every
// refresh tick (spec.md §4.4 step 3, "age crosses expire_time with no new
// payload arriving").
func (r *Registry) MarkExpired(name string, expired bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[name]
	if !ok || entry.Expired == expired {
		return
	}
	entry.Expired = expired
	r.entries[name] = entry
}

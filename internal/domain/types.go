// Package domain holds the core data model for the namespace state cache
// engine: groups, couples, weight entries, namespace settings and the
// immutable per-namespace snapshot built from them.
//
// Couples and groups live in two parallel slices inside a snapshot and refer
// to each other by index rather than by pointer (see DESIGN.md, "cyclic
// references between couple and group entries"), so a snapshot has no
// internal reference cycles and can be freely shared across goroutines once
// published.
package domain

import (
	"sync"
	"time"
)

// GroupStatus is the health status of a single storage replica identity.
type GroupStatus string

const (
	GroupStatusUnknown GroupStatus = "UNKNOWN"
	GroupStatusCoupled GroupStatus = "COUPLED"
)

// CoupleStatus is the health status of a couple (a replica set).
type CoupleStatus string

const (
	CoupleStatusUnknown CoupleStatus = "UNKNOWN"
	CoupleStatusBad     CoupleStatus = "BAD"
)

// Group is a single storage replica's identity within the cluster.
type Group struct {
	ID     int
	Status GroupStatus
	// CoupleIndex points into NamespaceSnapshot.Couples; -1 if unassigned.
	CoupleIndex int
}

// Couple is an ordered set of groups that together store one replica of data
// for a namespace.
type Couple struct {
	ID                 string
	Groups             []int // group ids, ordered
	Status             CoupleStatus
	FreeEffectiveSpace uint64
	Hosts              HostTree
	// GroupIndices mirrors Groups but holds indices into NamespaceSnapshot.Groups.
	GroupIndices []int
}

// HostTree is an opaque per-couple host topology payload forwarded verbatim
// from the control service. Its internal shape is never interpreted by the
// cache engine.
type HostTree struct {
	Raw any
}

// WeightEntry is one couple's entry in the weight sampler's ordered table.
type WeightEntry struct {
	CoupleIndex int // index into NamespaceSnapshot.Couples
	ID          string
	BaseWeight  uint64
	Memory      uint64
	// Coefficient starts at 1 and is only ever reduced (via SetFeedback)
	// within the lifetime of one snapshot; it resets on the next refresh.
	Coefficient float64
}

// NamespaceSettings describes a namespace's replication policy and any
// embedder-supplied configuration.
type NamespaceSettings struct {
	Name                string
	GroupsCount         int
	SuccessCopiesPolicy string
	StaticGroups        []int
	AuthKeys            AuthKeys
	// UserSettings is an opaque handle produced by the embedder's
	// UserSettingsFactory. A nil UserSettings means the namespace was
	// accepted into the cache but the embedder declined to interpret it;
	// IsValid() ignores such namespaces.
	UserSettings *UserSettingsHandle
}

// AuthKeys holds optional namespace read/write authentication tokens.
type AuthKeys struct {
	Read  string
	Write string
}

// UserSettingsHandle is a scoped, embedder-owned resource. The cache engine
// guarantees exactly one handle per snapshot per namespace, that it outlives
// the snapshot, and that Release is called exactly once, before the
// snapshot is discarded.
type UserSettingsHandle struct {
	Value   any
	release func()
	once    sync.Once
}

// NewUserSettingsHandle wraps value with a release callback. release may be
// nil if the embedder's factory has nothing to free.
func NewUserSettingsHandle(value any, release func()) *UserSettingsHandle {
	return &UserSettingsHandle{Value: value, release: release}
}

// Release invokes the embedder's deleter exactly once. Safe to call on a nil
// handle or one with no release callback.
func (h *UserSettingsHandle) Release() {
	if h == nil || h.release == nil {
		return
	}
	h.once.Do(h.release)
}

// Statistics carries aggregate health flags for a namespace.
type Statistics struct {
	IsFull bool
}

// NamespaceSnapshot is a fully-constructed, internally consistent namespace
// state produced from one refresh. It is immutable except for weight
// coefficients, which are guarded by the owning Sampler's own lock.
type NamespaceSnapshot struct {
	Name       string
	Settings   NamespaceSettings
	Groups     []Group
	Couples    []Couple
	Weights    []WeightEntry // ordered by Memory desc
	Statistics Statistics
	Extract    string

	groupByID  map[int]int
	coupleByID map[string]int
}

// GroupIndex resolves a group id to its index in Groups.
func (s *NamespaceSnapshot) GroupIndex(groupID int) (int, bool) {
	idx, ok := s.groupByID[groupID]
	return idx, ok
}

// CoupleIndex resolves a couple id to its index in Couples.
func (s *NamespaceSnapshot) CoupleIndex(coupleID string) (int, bool) {
	idx, ok := s.coupleByID[coupleID]
	return idx, ok
}

// CoupleOfGroup returns the couple containing groupID.
func (s *NamespaceSnapshot) CoupleOfGroup(groupID int) (*Couple, bool) {
	gi, ok := s.groupByID[groupID]
	if !ok {
		return nil, false
	}
	ci := s.Groups[gi].CoupleIndex
	if ci < 0 || ci >= len(s.Couples) {
		return nil, false
	}
	return &s.Couples[ci], true
}

// BuildIndex populates the group/couple id lookup maps. Called once by the
// snapshot builder after Groups/Couples are finalized; a snapshot assembled
// any other way must call this before use.
func (s *NamespaceSnapshot) BuildIndex() {
	s.groupByID = make(map[int]int, len(s.Groups))
	for i, g := range s.Groups {
		s.groupByID[g.ID] = i
	}
	s.coupleByID = make(map[string]int, len(s.Couples))
	for i, c := range s.Couples {
		s.coupleByID[c.ID] = i
	}
}

// CacheEntry is a registry slot: a published snapshot plus staleness
// bookkeeping and the as-fetched raw payload needed for verbatim
// re-serialization to disk.
type CacheEntry struct {
	Name           string
	Snapshot       *NamespaceSnapshot
	LastUpdateTime time.Time
	Expired        bool
	Raw            any
}

// CoupleInfo is the value returned by the weight sampler's Pick/Sequence
// operations: just enough to route a write.
type CoupleInfo struct {
	ID     string
	Groups []int
}

// KeyOverride is one entry in the cached_keys fallback table: a per-key
// override of which groups to use for a given couple id.
type KeyOverride struct {
	CacheGroups []int
}

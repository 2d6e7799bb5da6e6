// Package weights implements the weighted couple sampler described in
// spec.md §4.2: given a snapshot's weight table, pick one couple able to
// hold size bytes, with probability proportional to its
// administrator-assigned weight, while letting per-couple feedback
// (SetFeedback) temporarily damp candidates without mutating the snapshot
// itself.
//
// Grounded on original_source/src/couple_weights.cpp: weight entries are
// sorted by descending free memory, a cumulative-weight table is built over
// the prefix that can still hold size bytes, and a uniform draw is mapped to
// an entry via the first cumulative sum greater than or equal to the draw
// (std::lower_bound).
package weights

import (
	"sort"
	"strconv"
	"sync"

	"mastermindcache/internal/domain"
)

// feedbackCoefficients mirrors the original's feedback tag table.
var feedbackCoefficients = map[string]float64{
	"available":               1.0,
	"partly_unavailable":      0.1,
	"temporary_unavailable":   0.01,
	"permanently_unavailable": 0.0,
}

// entry is one couple's sampling record: the weight table row plus the group
// list needed to answer a Pick/Sequence draw without reaching back into the
// snapshot.
type entry struct {
	id          string
	groups      []int
	baseWeight  uint64
	memory      uint64
	coefficient float64
}

// Sampler draws couples from one namespace snapshot's weight table. Safe for
// concurrent use; SetFeedback only ever lowers a couple's effective
// coefficient, and every reader takes a consistent view of the cumulative
// table under the same mutex.
type Sampler struct {
	mu      sync.Mutex
	entries []entry // descending by memory, owned copy
	random  domain.RandomSource
}

// NewSampler copies snap's weight table (descending by Memory, per
// snapshot.Build) so coefficient feedback on this sampler never mutates the
// snapshot shared with other readers.
func NewSampler(snap *domain.NamespaceSnapshot, random domain.RandomSource) *Sampler {
	entries := make([]entry, len(snap.Weights))
	for i, w := range snap.Weights {
		var groups []int
		if w.CoupleIndex >= 0 && w.CoupleIndex < len(snap.Couples) {
			groups = append(groups, snap.Couples[w.CoupleIndex].Groups...)
		}
		entries[i] = entry{
			id:          w.ID,
			groups:      groups,
			baseWeight:  w.BaseWeight,
			memory:      w.Memory,
			coefficient: w.Coefficient,
		}
	}
	return &Sampler{entries: entries, random: random}
}

// SetFeedback lowers the coefficient of the couple containing group coupleID,
// never raising it; it resets only when a new refresh produces a new
// Sampler. coupleID is matched by group membership, not by the entry's own
// id (spec.md:60, couple_weights.cpp:151-161's set_coefficient: any group id
// belonging to the couple resolves it). Returns *domain.UnknownFeedbackError
// if tag is not a recognized feedback value, and domain.ErrCoupleNotFound if
// coupleID does not parse as a group id or matches no entry's groups.
func (s *Sampler) SetFeedback(coupleID, tag string) error {
	coefficient, ok := feedbackCoefficients[tag]
	if !ok {
		return &domain.UnknownFeedbackError{CoupleID: coupleID, Feedback: tag}
	}

	groupID, err := strconv.Atoi(coupleID)
	if err != nil {
		return domain.ErrCoupleNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if containsGroup(s.entries[i].groups, groupID) {
			if coefficient < s.entries[i].coefficient {
				s.entries[i].coefficient = coefficient
			}
			return nil
		}
	}
	return domain.ErrCoupleNotFound
}

func containsGroup(groups []int, groupID int) bool {
	for _, g := range groups {
		if g == groupID {
			return true
		}
	}
	return false
}

type weightedEntry struct {
	cumulative uint64
	entry      entry
}

// buildCandidates walks entries (already sorted descending by memory) and
// builds the cumulative-weight table over the prefix able to hold size
// bytes, stopping at the first entry too small to qualify.
func buildCandidates(entries []entry, size uint64) ([]weightedEntry, error) {
	candidates := make([]weightedEntry, 0, len(entries))
	var total uint64
	for _, e := range entries {
		if e.memory < size {
			break
		}
		weight := uint64(float64(e.baseWeight) * e.coefficient)
		if weight == 0 {
			continue
		}
		total += weight
		candidates = append(candidates, weightedEntry{cumulative: total, entry: e})
	}

	if len(candidates) == 0 {
		if len(entries) == 0 {
			return nil, domain.ErrCoupleNotFound
		}
		return nil, domain.ErrNotEnoughMemory
	}
	return candidates, nil
}

func pickOne(candidates []weightedEntry, random domain.RandomSource) entry {
	total := candidates[len(candidates)-1].cumulative
	shoot := uint64(random.Float64() * float64(total))
	idx := sort.Search(len(candidates), func(i int) bool {
		return candidates[i].cumulative >= shoot
	})
	if idx == len(candidates) {
		idx = len(candidates) - 1
	}
	return candidates[idx].entry
}

// Pick draws one couple able to hold size bytes, with probability
// proportional to base_weight * coefficient among couples with enough free
// memory. Returns domain.ErrNotEnoughMemory if none qualify, or
// domain.ErrCoupleNotFound if the snapshot carries no weight entries at all.
func (s *Sampler) Pick(size uint64) (domain.CoupleInfo, error) {
	s.mu.Lock()
	entries := append([]entry(nil), s.entries...)
	s.mu.Unlock()

	candidates, err := buildCandidates(entries, size)
	if err != nil {
		return domain.CoupleInfo{}, err
	}
	picked := pickOne(candidates, s.random)
	return domain.CoupleInfo{ID: picked.id, Groups: append([]int(nil), picked.groups...)}, nil
}

package weights

import "mastermindcache/internal/domain"

// Sequence draws couples able to hold size bytes without repeats, for
// callers that need several distinct couples from one namespace (spec.md
// §4.2's "non-repeating weighted sequence").
//
// Grounded on original_source/src/couple_sequence_p.hpp for the candidate
// pool and qualification rules, but spec.md §4.2 ("after each draw the
// chosen entry is removed from the working set and prefix sums are
// recomputed") is authoritative over the original's try_extract_next, which
// leaves surviving cumulative sums stale after a removal: Next rebuilds the
// cumulative table over the remaining candidates after every draw.
type Sequence struct {
	candidates []weightedEntry
	random     domain.RandomSource
}

// Sequence starts a non-repeating draw sequence over couples able to hold
// size bytes. The returned Sequence is independent of the Sampler once
// created: concurrent SetFeedback calls on the Sampler do not affect an
// in-flight Sequence.
func (s *Sampler) Sequence(size uint64) (*Sequence, error) {
	s.mu.Lock()
	entries := append([]entry(nil), s.entries...)
	random := s.random
	s.mu.Unlock()

	candidates, err := buildCandidates(entries, size)
	if err != nil {
		return nil, err
	}
	return &Sequence{candidates: candidates, random: random}, nil
}

// Next draws one more couple from the sequence, removing it from the pool
// and recomputing the remaining candidates' cumulative sums so the next
// draw stays correctly weighted over what's left.
// ok is false once the pool is exhausted.
func (seq *Sequence) Next() (domain.CoupleInfo, bool) {
	if len(seq.candidates) == 0 {
		return domain.CoupleInfo{}, false
	}
	picked := pickOne(seq.candidates, seq.random)

	idx := -1
	for i, c := range seq.candidates {
		if c.entry.id == picked.id {
			idx = i
			break
		}
	}
	remaining := append(seq.candidates[:idx], seq.candidates[idx+1:]...)

	var total uint64
	for i := range remaining {
		weight := uint64(float64(remaining[i].entry.baseWeight) * remaining[i].entry.coefficient)
		total += weight
		remaining[i].cumulative = total
	}
	seq.candidates = remaining

	return domain.CoupleInfo{ID: picked.id, Groups: append([]int(nil), picked.groups...)}, true
}

// Remaining reports how many couples are still available to draw.
func (seq *Sequence) Remaining() int {
	return len(seq.candidates)
}

package snapshot

import (
	"fmt"
	"sort"

	"mastermindcache/internal/domain"
)

// parseWeights builds the WeightEntry table from raw["weights"][groupsCount],
// an array of {"weight": <base weight>, "couples": [group ids...]} payloads
// (original_source/src/couple_weights.cpp reads the analogous per-size
// bucket). Entries are sorted by descending free memory so internal/weights
// can stop building its cumulative sum at the first couple too small for a
// request, mirroring the original's memory_comparator.
func parseWeights(raw map[string]any, groupsCount int, couples []domain.Couple) ([]domain.WeightEntry, error) {
	weightsRoot, _ := raw["weights"].(map[string]any)
	if weightsRoot == nil {
		return nil, nil
	}

	key := fmt.Sprintf("%d", groupsCount)
	bucket, ok := weightsRoot[key].([]any)
	if !ok {
		return nil, nil
	}

	coupleIndexByGroups := make(map[string]int, len(couples))
	for i, c := range couples {
		coupleIndexByGroups[groupsKey(c.Groups)] = i
	}

	entries := make([]domain.WeightEntry, 0, len(bucket))
	for _, item := range bucket {
		entryRaw, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("weight entry is not an object")
		}

		groupIDs, err := parseGroupList(entryRaw["couples"])
		if err != nil {
			return nil, fmt.Errorf("weight couples: %w", err)
		}

		idx, ok := coupleIndexByGroups[groupsKey(groupIDs)]
		if !ok {
			return nil, fmt.Errorf("weight entry references unknown couple %v", groupIDs)
		}

		baseWeight, err := asUint64(entryRaw["weight"])
		if err != nil {
			return nil, fmt.Errorf("weight value: %w", err)
		}

		// The weight entry's id is always min(groups), recomputed here and
		// never read from the couple's own payload id (couple_weights.cpp:85).
		entries = append(entries, domain.WeightEntry{
			CoupleIndex: idx,
			ID:          coupleIDFromGroups(groupIDs),
			BaseWeight:  baseWeight,
			Memory:      couples[idx].FreeEffectiveSpace,
			Coefficient: 1.0,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Memory > entries[j].Memory
	})

	return entries, nil
}

func groupsKey(groupIDs []int) string {
	sorted := append([]int(nil), groupIDs...)
	sort.Ints(sorted)
	key := ""
	for _, g := range sorted {
		key += fmt.Sprintf("%d,", g)
	}
	return key
}

package snapshot

import "mastermindcache/internal/domain"

// parseStatistics reads the namespace's is_full flag, defaulting to false
// when the statistics object is absent (spec.md §3's "statistics" field).
func parseStatistics(raw map[string]any) domain.Statistics {
	statsRaw, _ := raw["statistics"].(map[string]any)
	if statsRaw == nil {
		return domain.Statistics{}
	}
	isFull, _ := statsRaw["is_full"].(bool)
	return domain.Statistics{IsFull: isFull}
}

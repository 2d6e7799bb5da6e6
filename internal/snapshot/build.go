// Package snapshot builds immutable domain.NamespaceSnapshot values from the
// dynamic payloads returned by the control service's get_namespaces_states
// RPC. Construction runs in one pass: settings -> couples -> weights ->
// statistics -> consistency check, aborting at the first failure with a
// structured error naming the namespace and cause (spec.md §4.1).
package snapshot

import (
	"fmt"
	"sort"
	"strings"

	"mastermindcache/internal/domain"
)

// Build parses raw (the decoded per-namespace payload from
// get_namespaces_states) into a fully-consistent snapshot. factory may be
// nil (no embedder interpretation of user settings). filter may be nil (no
// namespace rejection).
func Build(name string, raw map[string]any, filter domain.NamespaceFilter, factory domain.UserSettingsFactory) (*domain.NamespaceSnapshot, error) {
	if filter != nil && !filter(name, raw) {
		return nil, domain.E(domain.CodeFailedPrecond, "snapshot.Build", "namespace rejected by filter", nil)
	}

	settings, err := parseSettings(name, raw, factory)
	if err != nil {
		return nil, wrapf(name, "parse settings", err)
	}

	groups, couples, err := parseCouples(raw, settings.GroupsCount)
	if err != nil {
		return nil, wrapf(name, "parse couples", err)
	}
	if len(couples) == 0 {
		return nil, wrapf(name, "parse couples", fmt.Errorf("couples list is empty"))
	}

	weights, err := parseWeights(raw, settings.GroupsCount, couples)
	if err != nil {
		return nil, wrapf(name, "parse weights", err)
	}

	stats := parseStatistics(raw)

	snap := &domain.NamespaceSnapshot{
		Name:       name,
		Settings:   settings,
		Groups:     groups,
		Couples:    couples,
		Weights:    weights,
		Statistics: stats,
	}
	snap.BuildIndex()

	if err := checkConsistency(snap); err != nil {
		return nil, wrapf(name, "consistency check", err)
	}

	snap.Extract = extract(snap)
	return snap, nil
}

// IsDeleted reports whether raw carries the control service's tombstone
// marker settings.__service.is_deleted = true (spec.md §4.4 step 1).
func IsDeleted(raw map[string]any) bool {
	settings, _ := raw["settings"].(map[string]any)
	if settings == nil {
		return false
	}
	service, _ := settings["__service"].(map[string]any)
	if service == nil {
		return false
	}
	deleted, _ := service["is_deleted"].(bool)
	return deleted
}

func wrapf(namespace, stage string, err error) error {
	return domain.E(domain.CodeInvalidArgument, "snapshot.Build",
		fmt.Sprintf("namespace %q: %s: %v", namespace, stage, err), err)
}

// checkConsistency enforces spec.md §3's construction invariants:
//   - every weighted couple's group list has length groups_count and points
//     to the same couple record in the couples map;
//   - couples list is non-empty (checked by the caller before weights);
//   - if every weight is zero and statistics.is_full is false and there are
//     no static_groups, construction fails.
func checkConsistency(snap *domain.NamespaceSnapshot) error {
	groupsCount := snap.Settings.GroupsCount
	for _, w := range snap.Weights {
		if w.CoupleIndex < 0 || w.CoupleIndex >= len(snap.Couples) {
			return fmt.Errorf("weight entry %q references unknown couple", w.ID)
		}
		couple := snap.Couples[w.CoupleIndex]
		if len(couple.Groups) != groupsCount {
			return fmt.Errorf("couple %q has %d groups, want %d", couple.ID, len(couple.Groups), groupsCount)
		}
	}

	if len(snap.Couples) == 0 {
		return fmt.Errorf("couples map is empty")
	}

	allZero := true
	for _, w := range snap.Weights {
		if w.BaseWeight > 0 {
			allZero = false
			break
		}
	}
	if allZero && !snap.Statistics.IsFull && len(snap.Settings.StaticGroups) == 0 {
		return fmt.Errorf("all weights are zero, namespace is not full, and no static groups are configured")
	}
	return nil
}

// extract produces the short human summary carried on the snapshot (spec.md
// §3). Deterministic given the same inputs, so two refreshes with
// identical payloads yield identical extracts (property 7).
func extract(snap *domain.NamespaceSnapshot) string {
	ids := make([]string, 0, len(snap.Couples))
	for _, c := range snap.Couples {
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	return fmt.Sprintf("%s: %d couples [%s], %d groups, groups_count=%d",
		snap.Name, len(snap.Couples), strings.Join(ids, ","), len(snap.Groups), snap.Settings.GroupsCount)
}

package snapshot

import (
	"fmt"

	"mastermindcache/internal/domain"
)

// parseCouples builds the Groups/Couples arenas from raw["couples"], an
// array of couple payloads. Each couple must carry groupsCount groups;
// groups not already seen are created with status COUPLED and wired back
// to their couple by index (spec.md §9, "cyclic references... resolved
// with an arena").
func parseCouples(raw map[string]any, groupsCount int) ([]domain.Group, []domain.Couple, error) {
	couplesRaw, _ := raw["couples"].([]any)

	var groups []domain.Group
	var couples []domain.Couple
	groupIndex := make(map[int]int)

	for _, item := range couplesRaw {
		couplePayload, ok := item.(map[string]any)
		if !ok {
			return nil, nil, fmt.Errorf("couple entry is not an object")
		}

		groupIDs, err := parseGroupList(couplePayload["groups"])
		if err != nil {
			return nil, nil, fmt.Errorf("couple groups: %w", err)
		}
		if len(groupIDs) != groupsCount {
			return nil, nil, fmt.Errorf("couple %v has %d groups, want %d", groupIDs, len(groupIDs), groupsCount)
		}

		id, _ := couplePayload["id"].(string)
		if id == "" {
			id = coupleIDFromGroups(groupIDs)
		}

		status := domain.CoupleStatusUnknown
		if statusRaw, ok := couplePayload["status"].(string); ok && statusRaw == "BAD" {
			status = domain.CoupleStatusBad
		}

		freeSpace, _ := asUint64(couplePayload["free_effective_space"])

		coupleIdx := len(couples)
		groupIndices := make([]int, len(groupIDs))
		for i, gid := range groupIDs {
			gi, exists := groupIndex[gid]
			if !exists {
				gi = len(groups)
				groups = append(groups, domain.Group{ID: gid, Status: domain.GroupStatusCoupled, CoupleIndex: coupleIdx})
				groupIndex[gid] = gi
			} else {
				groups[gi].CoupleIndex = coupleIdx
			}
			groupIndices[i] = gi
		}

		couples = append(couples, domain.Couple{
			ID:                 id,
			Groups:             groupIDs,
			Status:             status,
			FreeEffectiveSpace: freeSpace,
			Hosts:              domain.HostTree{Raw: couplePayload["hosts"]},
			GroupIndices:       groupIndices,
		})
	}

	return groups, couples, nil
}

func parseGroupList(v any) ([]int, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("groups is not an array")
	}
	ids := make([]int, 0, len(arr))
	for _, item := range arr {
		gid, err := asInt(item)
		if err != nil {
			return nil, err
		}
		ids = append(ids, gid)
	}
	return ids, nil
}

// coupleIDFromGroups mirrors the original source's fallback couple id,
// which is the minimum group id in the couple (see couple_weights.cpp).
func coupleIDFromGroups(groupIDs []int) string {
	if len(groupIDs) == 0 {
		return ""
	}
	min := groupIDs[0]
	for _, g := range groupIDs[1:] {
		if g < min {
			min = g
		}
	}
	return fmt.Sprintf("%d", min)
}

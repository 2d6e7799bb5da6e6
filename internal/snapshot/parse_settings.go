package snapshot

import (
	"fmt"

	"mastermindcache/internal/domain"
)

// parseSettings builds NamespaceSettings from raw["settings"], invoking the
// embedder's UserSettingsFactory once. A nil factory result ("not
// interested in this namespace") is preserved, not treated as an error.
func parseSettings(name string, raw map[string]any, factory domain.UserSettingsFactory) (domain.NamespaceSettings, error) {
	settingsRaw, _ := raw["settings"].(map[string]any)
	if settingsRaw == nil {
		return domain.NamespaceSettings{}, fmt.Errorf("missing settings object")
	}

	groupsCount, err := asInt(settingsRaw["groups-count"])
	if err != nil {
		groupsCount, err = asInt(settingsRaw["groupsCount"])
	}
	if err != nil || groupsCount <= 0 {
		return domain.NamespaceSettings{}, domain.E(domain.CodeInvalidArgument, "parseSettings", "invalid groups count", domain.ErrInvalidGroupsCount)
	}

	policy, _ := settingsRaw["success-copies-num"].(string)
	if policy == "" {
		policy, _ = settingsRaw["successCopiesNum"].(string)
	}

	var staticGroups []int
	if arr, ok := settingsRaw["static-couple"].([]any); ok {
		for _, v := range arr {
			if gid, err := asInt(v); err == nil {
				staticGroups = append(staticGroups, gid)
			}
		}
	}

	var auth domain.AuthKeys
	if authRaw, ok := settingsRaw["auth-keys"].(map[string]any); ok {
		auth.Read, _ = authRaw["read"].(string)
		auth.Write, _ = authRaw["write"].(string)
	}

	settings := domain.NamespaceSettings{
		Name:                name,
		GroupsCount:         groupsCount,
		SuccessCopiesPolicy: policy,
		StaticGroups:        staticGroups,
		AuthKeys:            auth,
	}

	if factory != nil {
		handle, err := factory(name, settingsRaw)
		if err != nil {
			return domain.NamespaceSettings{}, fmt.Errorf("user settings factory: %w", err)
		}
		settings.UserSettings = handle
	}

	return settings, nil
}

func asInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

func asUint64(v any) (uint64, error) {
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

package snapshot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mastermindcache/internal/domain"
)

func validPayload() map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"groups-count":        float64(2),
			"success-copies-num":  "quorum",
			"static-couple":       []any{float64(1), float64(2)},
			"auth-keys": map[string]any{
				"read":  "r-key",
				"write": "w-key",
			},
		},
		"couples": []any{
			map[string]any{
				"groups":               []any{float64(1), float64(2)},
				"free_effective_space": float64(1000),
			},
			map[string]any{
				"groups":               []any{float64(3), float64(4)},
				"free_effective_space": float64(2000),
			},
		},
		"weights": map[string]any{
			"2": []any{
				map[string]any{
					"couples": []any{float64(1), float64(2)},
					"weight":  float64(10),
				},
				map[string]any{
					"couples": []any{float64(3), float64(4)},
					"weight":  float64(20),
				},
			},
		},
		"statistics": map[string]any{
			"is_full": true,
		},
	}
}

func TestBuildProducesConsistentSnapshot(t *testing.T) {
	snap, err := Build("storage", validPayload(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, "storage", snap.Name)
	require.Len(t, snap.Couples, 2)
	require.Len(t, snap.Groups, 4)
	require.Len(t, snap.Weights, 2)

	// Weights ordered by descending free memory.
	require.Equal(t, uint64(2000), snap.Weights[0].Memory)
	require.Equal(t, uint64(1000), snap.Weights[1].Memory)

	idx, ok := snap.CoupleIndex(snap.Couples[0].ID)
	require.True(t, ok)
	require.Equal(t, 0, idx)

	couple, ok := snap.CoupleOfGroup(1)
	require.True(t, ok)
	require.Contains(t, couple.Groups, 1)
	require.Contains(t, couple.Groups, 2)
}

func TestBuildRejectsMismatchedGroupsCount(t *testing.T) {
	payload := validPayload()
	couples := payload["couples"].([]any)
	bad := couples[0].(map[string]any)
	bad["groups"] = []any{float64(1), float64(2), float64(3)}

	_, err := Build("storage", payload, nil, nil)
	require.Error(t, err)
}

func TestBuildRejectsEmptyCouples(t *testing.T) {
	payload := validPayload()
	payload["couples"] = []any{}

	_, err := Build("storage", payload, nil, nil)
	require.Error(t, err)
}

func TestBuildRejectsAllZeroWeightsWithoutStaticGroupsOrFull(t *testing.T) {
	payload := validPayload()
	payload["statistics"] = map[string]any{"is_full": false}
	payload["settings"].(map[string]any)["static-couple"] = []any{}
	weights := payload["weights"].(map[string]any)["2"].([]any)
	for _, w := range weights {
		w.(map[string]any)["weight"] = float64(0)
	}

	_, err := Build("storage", payload, nil, nil)
	require.Error(t, err)
}

func TestBuildHonorsNamespaceFilter(t *testing.T) {
	reject := func(name string, raw any) bool { return false }
	_, err := Build("storage", validPayload(), reject, nil)
	require.Error(t, err)

	var asErr *domain.Error
	require.ErrorAs(t, err, &asErr)
	require.Equal(t, domain.CodeFailedPrecond, asErr.Code)
}

func TestBuildInvokesUserSettingsFactory(t *testing.T) {
	released := false
	factory := func(namespace string, raw any) (*domain.UserSettingsHandle, error) {
		return domain.NewUserSettingsHandle("custom", func() { released = true }), nil
	}

	snap, err := Build("storage", validPayload(), nil, factory)
	require.NoError(t, err)
	require.NotNil(t, snap.Settings.UserSettings)
	require.Equal(t, "custom", snap.Settings.UserSettings.Value)

	snap.Settings.UserSettings.Release()
	require.True(t, released)
}

func TestIsDeletedTombstone(t *testing.T) {
	payload := validPayload()
	require.False(t, IsDeleted(payload))

	payload["settings"].(map[string]any)["__service"] = map[string]any{"is_deleted": true}
	require.True(t, IsDeleted(payload))
}

func TestExtractIsDeterministic(t *testing.T) {
	a, err := Build("storage", validPayload(), nil, nil)
	require.NoError(t, err)
	b, err := Build("storage", validPayload(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, a.Extract, b.Extract)
}

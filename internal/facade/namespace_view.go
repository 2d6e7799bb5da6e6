package facade

import (
	"mastermindcache/internal/domain"
	"mastermindcache/internal/telemetry"
	"mastermindcache/internal/weights"
)

// NamespaceView is a published snapshot bundled with the weight sampler
// built from it, exposing spec.md §4.7's snapshot-scoped accessors as
// methods so callers never touch internal/domain or internal/weights
// directly.
type NamespaceView struct {
	snapshot *domain.NamespaceSnapshot
	sampler  *weights.Sampler
	metrics  *telemetry.Metrics
}

func (v *NamespaceView) Name() string { return v.snapshot.Name }

func (v *NamespaceView) GroupsCount() int { return v.snapshot.Settings.GroupsCount }

func (v *NamespaceView) SuccessCopiesPolicy() string { return v.snapshot.Settings.SuccessCopiesPolicy }

func (v *NamespaceView) StaticGroups() []int {
	out := make([]int, len(v.snapshot.Settings.StaticGroups))
	copy(out, v.snapshot.Settings.StaticGroups)
	return out
}

func (v *NamespaceView) AuthKeys() domain.AuthKeys { return v.snapshot.Settings.AuthKeys }

// UserSettings returns the embedder-interpreted settings value, or nil if
// the namespace's UserSettingsFactory declined to interpret it.
func (v *NamespaceView) UserSettings() any {
	if v.snapshot.Settings.UserSettings == nil {
		return nil
	}
	return v.snapshot.Settings.UserSettings.Value
}

func (v *NamespaceView) Statistics() domain.Statistics { return v.snapshot.Statistics }

func (v *NamespaceView) Extract() string { return v.snapshot.Extract }

// Groups returns every group known to this snapshot.
func (v *NamespaceView) Groups() []domain.Group {
	out := make([]domain.Group, len(v.snapshot.Groups))
	copy(out, v.snapshot.Groups)
	return out
}

// Couples returns every couple known to this snapshot.
func (v *NamespaceView) Couples() []domain.Couple {
	out := make([]domain.Couple, len(v.snapshot.Couples))
	copy(out, v.snapshot.Couples)
	return out
}

// CoupleGroups returns the group ids making up coupleID ("couples.get_groups").
func (v *NamespaceView) CoupleGroups(coupleID string) ([]int, error) {
	idx, ok := v.snapshot.CoupleIndex(coupleID)
	if !ok {
		return nil, domain.ErrCoupleNotFound
	}
	groups := v.snapshot.Couples[idx].Groups
	out := make([]int, len(groups))
	copy(out, groups)
	return out, nil
}

// FreeEffectiveSpace returns coupleID's free effective storage space.
func (v *NamespaceView) FreeEffectiveSpace(coupleID string) (uint64, error) {
	idx, ok := v.snapshot.CoupleIndex(coupleID)
	if !ok {
		return 0, domain.ErrCoupleNotFound
	}
	return v.snapshot.Couples[idx].FreeEffectiveSpace, nil
}

// Hosts returns coupleID's opaque host topology ("couples.hosts").
func (v *NamespaceView) Hosts(coupleID string) (domain.HostTree, error) {
	idx, ok := v.snapshot.CoupleIndex(coupleID)
	if !ok {
		return domain.HostTree{}, domain.ErrCoupleNotFound
	}
	return v.snapshot.Couples[idx].Hosts, nil
}

// CoupleGroupset returns the groupset identifier for coupleID. A couple
// and its groupset coincide in this cache (spec.md §9 open question: kept
// opaque, no separate groupset type), so this forwards the couple id
// itself.
func (v *NamespaceView) CoupleGroupset(coupleID string) (string, error) {
	if _, ok := v.snapshot.CoupleIndex(coupleID); !ok {
		return "", domain.ErrCoupleNotFound
	}
	return coupleID, nil
}

// CoupleOfGroup resolves the couple containing groupID.
func (v *NamespaceView) CoupleOfGroup(groupID int) (*domain.Couple, error) {
	couple, ok := v.snapshot.CoupleOfGroup(groupID)
	if !ok {
		return nil, &domain.UnknownGroupError{Group: groupID}
	}
	return couple, nil
}

// PickGroups draws one couple able to hold size bytes ("weights.groups").
func (v *NamespaceView) PickGroups(size uint64) (domain.CoupleInfo, error) {
	if v.sampler == nil {
		return domain.CoupleInfo{}, domain.ErrNotInitialized
	}
	return v.sampler.Pick(size)
}

// CoupleSequence starts a non-repeating draw sequence ("weights.couple_sequence").
func (v *NamespaceView) CoupleSequence(size uint64) (*weights.Sequence, error) {
	if v.sampler == nil {
		return nil, domain.ErrNotInitialized
	}
	return v.sampler.Sequence(size)
}

// SetFeedback applies a feedback tag to coupleID's sampling weight
// ("weights.set_feedback").
func (v *NamespaceView) SetFeedback(coupleID, tag string) error {
	if v.sampler == nil {
		return domain.ErrNotInitialized
	}
	err := v.sampler.SetFeedback(coupleID, tag)
	if v.metrics != nil {
		v.metrics.ObserveFeedback(err)
	}
	return err
}

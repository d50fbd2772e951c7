package service

import (
	"sort"

	"github.com/Strob0t/leadgate/internal/domain"
	"github.com/Strob0t/leadgate/internal/domain/actor"
	"github.com/Strob0t/leadgate/internal/domain/lead"
)

// FieldGuard decides whether an actor may write a set of lead fields.
type FieldGuard struct {
	policy actor.Policy
}

// NewFieldGuard creates a FieldGuard for the given role mapping.
func NewFieldGuard(policy actor.Policy) *FieldGuard {
	return &FieldGuard{policy: policy}
}

// CheckMutation validates a save. existing is nil on create. Privileged
// actors and trusted callers passing bypass are always allowed. A rejection
// is a *domain.LockedFieldsError naming every offending field.
func (g *FieldGuard) CheckMutation(existing *lead.Lead, changes lead.Changes, a actor.Actor, bypass bool) error {
	if bypass || g.policy.Privileged(a) {
		return nil
	}

	creating := existing == nil
	var blocked []string

	for _, f := range lead.LockedFields {
		if !changed(existing, changes, f) {
			continue
		}
		if creating && g.policy.TeamLead(a) {
			continue
		}
		blocked = append(blocked, string(f))
	}

	if g.policy.Agent(a) && changed(existing, changes, lead.FieldOwner) {
		blocked = append(blocked, string(lead.FieldOwner))
	}

	if len(blocked) == 0 {
		return nil
	}
	sort.Strings(blocked)
	return &domain.LockedFieldsError{Fields: blocked}
}

// changed reports whether the save alters f. On create any non-empty value
// counts; on update the value must differ from the persisted one.
func changed(existing *lead.Lead, changes lead.Changes, f lead.Field) bool {
	v, ok := changes[f]
	if !ok {
		return false
	}
	if existing == nil {
		return v != ""
	}
	return v != existing.Value(f)
}

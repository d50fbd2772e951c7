package service

import (
	"context"

	"github.com/Strob0t/leadgate/internal/domain/actor"
	"github.com/Strob0t/leadgate/internal/domain/lead"
	"github.com/Strob0t/leadgate/internal/domain/visibility"
)

// AssignmentChecker answers open-assignment questions for the single-record check.
type AssignmentChecker interface {
	HasOpenAssignment(ctx context.Context, leadID, userID string) (bool, error)
}

// VisibilityFilter produces the list predicate and the single-record check.
// Check evaluates the same predicate, so the two always agree.
type VisibilityFilter struct {
	policy      actor.Policy
	assignments AssignmentChecker
}

// NewVisibilityFilter creates a VisibilityFilter.
func NewVisibilityFilter(policy actor.Policy, assignments AssignmentChecker) *VisibilityFilter {
	return &VisibilityFilter{policy: policy, assignments: assignments}
}

// Predicate returns the row filter for a's bulk listings.
func (v *VisibilityFilter) Predicate(a actor.Actor) visibility.Expr {
	switch {
	case v.policy.Privileged(a), v.policy.TeamLead(a):
		return visibility.All{}
	case v.policy.Agent(a):
		pipelines := a.PipelineList()
		if len(pipelines) == 0 {
			return visibility.None{}
		}
		return visibility.And{Terms: []visibility.Expr{
			visibility.OpenAssignment{UserID: a.ID},
			visibility.PipelineIn{Values: pipelines},
		}}
	default:
		return visibility.None{}
	}
}

// Check reports whether a may see l.
func (v *VisibilityFilter) Check(ctx context.Context, l *lead.Lead, a actor.Actor) (bool, error) {
	return visibility.Eval(v.Predicate(a), l, func(leadID, userID string) (bool, error) {
		return v.assignments.HasOpenAssignment(ctx, leadID, userID)
	})
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	cfotel "github.com/Strob0t/leadgate/internal/adapter/otel"
	"github.com/Strob0t/leadgate/internal/domain"
	"github.com/Strob0t/leadgate/internal/domain/actor"
	"github.com/Strob0t/leadgate/internal/domain/assignment"
	"github.com/Strob0t/leadgate/internal/domain/lead"
	"github.com/Strob0t/leadgate/internal/port/database"
)

// AssignmentGateway is the only path for manual assign, unassign and clear.
// Every call is authorized before any state changes.
type AssignmentGateway struct {
	store   database.Store
	binder  *AssignmentBinder
	policy  actor.Policy
	metrics *cfotel.Metrics
}

// NewAssignmentGateway creates an AssignmentGateway and registers its
// share cleanup on the store's assignment-deleted hook.
func NewAssignmentGateway(store database.Store, binder *AssignmentBinder, policy actor.Policy) *AssignmentGateway {
	g := &AssignmentGateway{store: store, binder: binder, policy: policy}
	store.OnAssignmentDeleted(g.AssignmentDeleted)
	return g
}

// SetMetrics attaches metric instruments.
func (g *AssignmentGateway) SetMetrics(m *cfotel.Metrics) { g.metrics = m }

func (g *AssignmentGateway) authorize(a actor.Actor) error {
	if !g.policy.CanManageAssignments(a) {
		return fmt.Errorf("only team leaders can assign or unassign leads: %w", domain.ErrForbidden)
	}
	return nil
}

// Assign makes userID the lead's owner and rebuilds its assignment and
// share from that.
func (g *AssignmentGateway) Assign(ctx context.Context, a actor.Actor, leadID, userID string) (*lead.Lead, error) {
	if err := g.authorize(a); err != nil {
		return nil, err
	}
	req := assignment.AssignRequest{UserID: userID}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := cfotel.StartGatewaySpan(ctx, "assign", leadID, a.ID)
	defer span.End()

	updated, err := g.store.UpdateLeadFields(ctx, leadID, lead.Changes{lead.FieldOwner: userID})
	if err != nil {
		return nil, err
	}
	// The owner field is already saved; binder failures are logged like any
	// other save and the caller gets the stored lead.
	if err := g.binder.SyncOwner(ctx, updated); err != nil {
		slog.Warn("owner sync failed", "lead_id", leadID, "user_id", userID, "error", err)
	}
	return updated, nil
}

// Unassign closes userID's open assignment, removes their share and clears
// the owner field if it still names them.
func (g *AssignmentGateway) Unassign(ctx context.Context, a actor.Actor, leadID, userID string) error {
	if err := g.authorize(a); err != nil {
		return err
	}

	ctx, span := cfotel.StartGatewaySpan(ctx, "unassign", leadID, a.ID)
	defer span.End()

	l, err := g.store.GetLead(ctx, leadID)
	if err != nil {
		return err
	}

	open, err := g.store.ListOpenAssignments(ctx, leadID)
	if err != nil {
		return fmt.Errorf("list open assignments for %s: %w", leadID, err)
	}
	for i := range open {
		if open[i].UserID != userID {
			continue
		}
		if err := g.store.CloseAssignment(ctx, open[i].ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("close assignment %s: %w", open[i].ID, err)
		}
	}

	g.removeShare(ctx, leadID, userID)

	if l.OwnerUserID == userID {
		if _, err := g.store.UpdateLeadFields(ctx, leadID, lead.Changes{lead.FieldOwner: ""}); err != nil {
			return fmt.Errorf("clear owner of %s: %w", leadID, err)
		}
	}
	return nil
}

// Clear closes every open assignment on the lead, removes every share and
// clears the owner field.
func (g *AssignmentGateway) Clear(ctx context.Context, a actor.Actor, leadID string) error {
	if err := g.authorize(a); err != nil {
		return err
	}

	ctx, span := cfotel.StartGatewaySpan(ctx, "clear", leadID, a.ID)
	defer span.End()

	l, err := g.store.GetLead(ctx, leadID)
	if err != nil {
		return err
	}

	open, err := g.store.ListOpenAssignments(ctx, leadID)
	if err != nil {
		return fmt.Errorf("list open assignments for %s: %w", leadID, err)
	}
	for i := range open {
		if err := g.store.CloseAssignment(ctx, open[i].ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("close assignment %s: %w", open[i].ID, err)
		}
	}

	shares, err := g.store.ListShares(ctx, leadID)
	if err != nil {
		g.shareCleanupFailed(ctx, leadID, "", err)
	}
	for i := range shares {
		g.removeShare(ctx, leadID, shares[i].UserID)
	}

	if l.OwnerUserID != "" {
		if _, err := g.store.UpdateLeadFields(ctx, leadID, lead.Changes{lead.FieldOwner: ""}); err != nil {
			return fmt.Errorf("clear owner of %s: %w", leadID, err)
		}
	}
	return nil
}

// DeleteRecord hard-deletes an assignment through the store's lifecycle
// path. The store then fires AssignmentDeleted.
func (g *AssignmentGateway) DeleteRecord(ctx context.Context, a actor.Actor, assignmentID string) error {
	if !g.policy.Privileged(a) {
		return fmt.Errorf("deleting assignment records requires an administrator: %w", domain.ErrForbidden)
	}
	return g.store.DeleteAssignment(ctx, assignmentID)
}

// AssignmentDeleted removes the share held by the deleted assignment's
// user. A user who still holds an open assignment on the lead keeps it.
// It is safe to run after Unassign already removed the share.
func (g *AssignmentGateway) AssignmentDeleted(ctx context.Context, asg assignment.Assignment) {
	if asg.UserID == "" {
		return
	}
	stillOpen, err := g.store.HasOpenAssignment(ctx, asg.LeadID, asg.UserID)
	if err != nil {
		slog.Warn("open assignment lookup failed, removing share",
			"lead_id", asg.LeadID, "user_id", asg.UserID, "error", err)
	}
	if stillOpen {
		return
	}
	g.removeShare(ctx, asg.LeadID, asg.UserID)
}

func (g *AssignmentGateway) removeShare(ctx context.Context, leadID, userID string) {
	if err := g.store.DeleteShare(ctx, leadID, userID); err != nil {
		g.shareCleanupFailed(ctx, leadID, userID, err)
	}
}

func (g *AssignmentGateway) shareCleanupFailed(ctx context.Context, leadID, userID string, err error) {
	slog.Warn("share cleanup failed", "lead_id", leadID, "user_id", userID, "error", err)
	if g.metrics != nil {
		g.metrics.ShareCleanupFailure.Add(ctx, 1)
	}
}

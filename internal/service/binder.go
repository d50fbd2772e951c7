package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/Strob0t/leadgate/internal/adapter/otel"
	"github.com/Strob0t/leadgate/internal/domain"
	"github.com/Strob0t/leadgate/internal/domain/assignment"
	"github.com/Strob0t/leadgate/internal/domain/lead"
	"github.com/Strob0t/leadgate/internal/port/database"
	"github.com/Strob0t/leadgate/internal/workpool"
)

// AssignmentBinder derives a lead's open assignment and share grant from
// its owner field.
type AssignmentBinder struct {
	store   database.Store
	pool    *workpool.Pool
	metrics *cfotel.Metrics
}

// NewAssignmentBinder creates an AssignmentBinder. pool bounds ResyncAll.
func NewAssignmentBinder(store database.Store, pool *workpool.Pool) *AssignmentBinder {
	return &AssignmentBinder{store: store, pool: pool}
}

// SetMetrics attaches metric instruments.
func (b *AssignmentBinder) SetMetrics(m *cfotel.Metrics) { b.metrics = m }

// SyncOwner closes every open assignment, drops every share grant, then
// issues one open assignment and one read/write grant to the owner, if
// any. Running it twice yields the same state.
func (b *AssignmentBinder) SyncOwner(ctx context.Context, l *lead.Lead) error {
	ctx, span := cfotel.StartOwnerSyncSpan(ctx, l.ID, l.OwnerUserID)
	defer span.End()

	err := b.syncOwner(ctx, l)
	if b.metrics != nil {
		attrs := metric.WithAttributes(attribute.Bool("owned", l.OwnerUserID != ""))
		b.metrics.OwnerSyncs.Add(ctx, 1, attrs)
		if err != nil {
			b.metrics.OwnerSyncFailures.Add(ctx, 1, attrs)
		}
	}
	return err
}

func (b *AssignmentBinder) syncOwner(ctx context.Context, l *lead.Lead) error {
	open, err := b.store.ListOpenAssignments(ctx, l.ID)
	if err != nil {
		return fmt.Errorf("list open assignments for %s: %w", l.ID, err)
	}
	for i := range open {
		if err := b.store.CloseAssignment(ctx, open[i].ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("close assignment %s: %w", open[i].ID, err)
		}
	}

	if err := b.store.DeleteShares(ctx, l.ID); err != nil {
		return fmt.Errorf("delete shares for %s: %w", l.ID, err)
	}

	if l.OwnerUserID == "" {
		return nil
	}

	if _, err := b.store.CreateAssignment(ctx, l.ID, l.OwnerUserID); err != nil {
		return fmt.Errorf("assign %s to %s: %w", l.ID, l.OwnerUserID, err)
	}
	if _, err := b.store.CreateShare(ctx, assignment.OwnerGrant(l.ID, l.OwnerUserID)); err != nil {
		return fmt.Errorf("share %s with %s: %w", l.ID, l.OwnerUserID, err)
	}
	return nil
}

// ResyncAll reruns SyncOwner for every non-deleted lead and returns how
// many synced. Individual failures are logged and skipped.
func (b *AssignmentBinder) ResyncAll(ctx context.Context) (int, error) {
	ids, err := b.store.ListLeadIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list leads: %w", err)
	}

	n := workpool.Each(ctx, b.pool, ids, func(ctx context.Context, id string) error {
		l, err := b.store.GetLead(ctx, id)
		if err != nil {
			return err
		}
		return b.SyncOwner(ctx, l)
	}, func(id string, err error) {
		slog.Error("owner resync failed", "lead_id", id, "error", err)
	})

	slog.Info("owner resync complete", "total", len(ids), "synced", n)
	return n, nil
}

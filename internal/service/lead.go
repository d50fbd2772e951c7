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
	"github.com/Strob0t/leadgate/internal/domain/actor"
	"github.com/Strob0t/leadgate/internal/domain/lead"
	"github.com/Strob0t/leadgate/internal/port/database"
)

// SaveOptions tunes a single save.
type SaveOptions struct {
	// BypassGuard skips the field guard. Only trusted in-process callers
	// (imports, normalizers) set it; it is never read from a request.
	BypassGuard bool
}

// LeadService is the save and read pipeline for leads: guard, persist,
// dedup and owner binding on write; predicate and check on read.
type LeadService struct {
	store      database.Store
	policy     actor.Policy
	guard      *FieldGuard
	visibility *VisibilityFilter
	dedup      *DedupIndexer
	binder     *AssignmentBinder
	metrics    *cfotel.Metrics
}

// NewLeadService wires the pipeline.
func NewLeadService(
	store database.Store,
	policy actor.Policy,
	guard *FieldGuard,
	vis *VisibilityFilter,
	dedup *DedupIndexer,
	binder *AssignmentBinder,
) *LeadService {
	return &LeadService{
		store:      store,
		policy:     policy,
		guard:      guard,
		visibility: vis,
		dedup:      dedup,
		binder:     binder,
	}
}

// SetMetrics attaches metric instruments.
func (s *LeadService) SetMetrics(m *cfotel.Metrics) { s.metrics = m }

// List returns the leads a may see, newest first.
func (s *LeadService) List(ctx context.Context, a actor.Actor, opts database.ListOptions) ([]lead.Lead, error) {
	return s.store.ListLeads(ctx, s.visibility.Predicate(a), opts)
}

// Get returns a lead if a may see it. Invisible leads are reported as
// domain.ErrNotFound so their existence does not leak.
func (s *LeadService) Get(ctx context.Context, a actor.Actor, id string) (*lead.Lead, error) {
	l, err := s.store.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.visibility.Check(ctx, l, a)
	if err != nil {
		return nil, fmt.Errorf("check visibility of %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("lead %s: %w", id, domain.ErrNotFound)
	}
	return l, nil
}

// Create runs the full save pipeline for a new lead. The stored row is
// echoed back to its creator even when the visibility filter would hide it
// from them on a later read, as with an agent creating an unassigned lead.
func (s *LeadService) Create(ctx context.Context, a actor.Actor, changes lead.Changes, opts SaveOptions) (*lead.Lead, error) {
	if err := changes.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, err.Error())
	}
	changes.Normalize()

	if err := s.checkGuard(ctx, nil, changes, a, opts); err != nil {
		return nil, err
	}

	l := &lead.Lead{CreatedBy: a.ID}
	l.Apply(changes)
	created, err := s.store.CreateLead(ctx, l)
	if err != nil {
		return nil, fmt.Errorf("create lead: %w", err)
	}

	s.reindex(ctx, created.ContactKey)
	s.syncOwner(ctx, created)

	return s.store.GetLead(ctx, created.ID)
}

// Update runs the save pipeline against an existing lead. The guard sees
// the persisted values, not the caller's view of them.
func (s *LeadService) Update(ctx context.Context, a actor.Actor, id string, changes lead.Changes, opts SaveOptions) (*lead.Lead, error) {
	if err := changes.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, err.Error())
	}
	changes.Normalize()

	existing, err := s.Get(ctx, a, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkGuard(ctx, existing, changes, a, opts); err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return existing, nil
	}

	updated, err := s.store.UpdateLeadFields(ctx, id, changes)
	if err != nil {
		return nil, fmt.Errorf("update lead %s: %w", id, err)
	}

	if updated.ContactKey != existing.ContactKey {
		s.reindex(ctx, updated.ContactKey)
		s.enqueueRepair(ctx, existing.ContactKey)
	}
	if changes.Has(lead.FieldOwner) {
		s.syncOwner(ctx, updated)
	}

	return s.store.GetLead(ctx, id)
}

// Delete soft-deletes a lead and schedules a repair of its group.
func (s *LeadService) Delete(ctx context.Context, a actor.Actor, id string) error {
	if !s.policy.CanManageAssignments(a) {
		return fmt.Errorf("deleting leads requires a team leader: %w", domain.ErrForbidden)
	}
	deleted, err := s.store.SoftDeleteLead(ctx, id)
	if err != nil {
		return err
	}
	s.enqueueRepair(ctx, deleted.ContactKey)
	return nil
}

// DuplicateSummary returns the badge data for a lead a may see.
func (s *LeadService) DuplicateSummary(ctx context.Context, a actor.Actor, id string) (lead.DuplicateSummary, error) {
	if _, err := s.Get(ctx, a, id); err != nil {
		return lead.DuplicateSummary{}, err
	}
	return s.dedup.Summary(ctx, id)
}

// Duplicates returns the archived siblings of a lead a may see.
func (s *LeadService) Duplicates(ctx context.Context, a actor.Actor, id string) (lead.DuplicateList, error) {
	if _, err := s.Get(ctx, a, id); err != nil {
		return lead.DuplicateList{}, err
	}
	return s.dedup.DuplicatesOf(ctx, id)
}

func (s *LeadService) checkGuard(ctx context.Context, existing *lead.Lead, changes lead.Changes, a actor.Actor, opts SaveOptions) error {
	err := s.guard.CheckMutation(existing, changes, a, opts.BypassGuard)
	if err == nil {
		return nil
	}
	var locked *domain.LockedFieldsError
	if s.metrics != nil && errors.As(err, &locked) {
		s.metrics.GuardRejections.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("create", existing == nil),
			attribute.Int("fields", len(locked.Fields)),
		))
	}
	return err
}

// reindex settles the group synchronously and falls back to a queued
// repair when that fails.
func (s *LeadService) reindex(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.dedup.Reindex(ctx, key); err != nil {
		slog.Error("reindex failed, queueing repair", "contact_key", key, "error", err)
		s.enqueueRepair(ctx, key)
	}
}

func (s *LeadService) enqueueRepair(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.dedup.EnqueueRepair(ctx, key); err != nil {
		slog.Error("repair could not be scheduled", "contact_key", key, "error", err)
	}
}

func (s *LeadService) syncOwner(ctx context.Context, l *lead.Lead) {
	if err := s.binder.SyncOwner(ctx, l); err != nil {
		slog.Warn("owner sync failed", "lead_id", l.ID, "user_id", l.OwnerUserID, "error", err)
	}
}

// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/Strob0t/leadgate/internal/domain/assignment"
	"github.com/Strob0t/leadgate/internal/domain/lead"
	"github.com/Strob0t/leadgate/internal/domain/visibility"
)

// ListOptions pages a lead listing. Zero Limit means the store default.
type ListOptions struct {
	Limit  int
	Offset int
}

// AssignmentDeletedHook runs after an assignment record is hard-deleted.
type AssignmentDeletedHook func(ctx context.Context, a assignment.Assignment)

// LeadStore persists leads.
type LeadStore interface {
	// CreateLead inserts l. ID and CreatedAt are filled in when empty.
	CreateLead(ctx context.Context, l *lead.Lead) (*lead.Lead, error)
	// GetLead returns a non-deleted lead or domain.ErrNotFound.
	GetLead(ctx context.Context, id string) (*lead.Lead, error)
	// UpdateLeadFields writes only the carried fields and returns the stored row.
	UpdateLeadFields(ctx context.Context, id string, changes lead.Changes) (*lead.Lead, error)
	// UpdateLeadDedup writes only the dedup bookkeeping columns.
	UpdateLeadDedup(ctx context.Context, id string, st lead.DedupState) error
	// SoftDeleteLead marks the lead deleted and returns its last state.
	SoftDeleteLead(ctx context.Context, id string) (*lead.Lead, error)
	// ListLeadsByContactKey returns non-deleted leads with exactly key, newest first.
	ListLeadsByContactKey(ctx context.Context, key string) ([]lead.Lead, error)
	// ListLeads returns non-deleted leads matching filter, newest first.
	ListLeads(ctx context.Context, filter visibility.Expr, opts ListOptions) ([]lead.Lead, error)
	// ListLeadIDs returns the ids of every non-deleted lead.
	ListLeadIDs(ctx context.Context) ([]string, error)
}

// AssignmentStore persists lead assignments.
type AssignmentStore interface {
	ListOpenAssignments(ctx context.Context, leadID string) ([]assignment.Assignment, error)
	CreateAssignment(ctx context.Context, leadID, userID string) (*assignment.Assignment, error)
	CloseAssignment(ctx context.Context, id string) error
	GetAssignment(ctx context.Context, id string) (*assignment.Assignment, error)
	HasOpenAssignment(ctx context.Context, leadID, userID string) (bool, error)

	// DeleteAssignment hard-deletes the record and then runs every
	// registered AssignmentDeletedHook.
	DeleteAssignment(ctx context.Context, id string) error
	OnAssignmentDeleted(hook AssignmentDeletedHook)
}

// ShareStore persists per-user share grants.
type ShareStore interface {
	// CreateShare replaces any grant for the same (lead, user) pair.
	CreateShare(ctx context.Context, g assignment.ShareGrant) (*assignment.ShareGrant, error)
	// DeleteShare removes the grant for (lead, user). Missing grants are not an error.
	DeleteShare(ctx context.Context, leadID, userID string) error
	DeleteShares(ctx context.Context, leadID string) error
	ListShares(ctx context.Context, leadID string) ([]assignment.ShareGrant, error)
}

// Store is the port interface for database operations.
type Store interface {
	LeadStore
	AssignmentStore
	ShareStore
}

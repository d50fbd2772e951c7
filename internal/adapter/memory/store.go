// Package memory implements the database and directory ports in process.
// It backs the "memory" store driver and the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/leadgate/internal/domain"
	"github.com/Strob0t/leadgate/internal/domain/assignment"
	"github.com/Strob0t/leadgate/internal/domain/lead"
	"github.com/Strob0t/leadgate/internal/domain/visibility"
	"github.com/Strob0t/leadgate/internal/port/database"
)

const defaultListLimit = 100

type leadRow struct {
	lead.Lead
	seq uint64
}

// Store implements database.Store with maps guarded by a RWMutex.
type Store struct {
	mu          sync.RWMutex
	seq         uint64
	leads       map[string]*leadRow
	assignments map[string]*assignment.Assignment
	shares      map[string]*assignment.ShareGrant

	hookMu sync.RWMutex
	hooks  []database.AssignmentDeletedHook
}

var _ database.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		leads:       make(map[string]*leadRow),
		assignments: make(map[string]*assignment.Assignment),
		shares:      make(map[string]*assignment.ShareGrant),
	}
}

// --- Leads ---

func (s *Store) CreateLead(_ context.Context, l *lead.Lead) (*lead.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := &leadRow{Lead: *l}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if _, exists := s.leads[row.ID]; exists {
		return nil, fmt.Errorf("create lead %s: %w", row.ID, domain.ErrConflict)
	}
	now := time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	s.seq++
	row.seq = s.seq
	s.leads[row.ID] = row

	out := row.Lead
	return &out, nil
}

func (s *Store) GetLead(_ context.Context, id string) (*lead.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.leads[id]
	if !ok || row.DeletedAt != nil {
		return nil, fmt.Errorf("get lead %s: %w", id, domain.ErrNotFound)
	}
	out := row.Lead
	return &out, nil
}

func (s *Store) UpdateLeadFields(_ context.Context, id string, changes lead.Changes) (*lead.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.leads[id]
	if !ok || row.DeletedAt != nil {
		return nil, fmt.Errorf("update lead %s: %w", id, domain.ErrNotFound)
	}
	row.Apply(changes)
	row.UpdatedAt = time.Now().UTC()
	out := row.Lead
	return &out, nil
}

func (s *Store) UpdateLeadDedup(_ context.Context, id string, st lead.DedupState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.leads[id]
	if !ok || row.DeletedAt != nil {
		return fmt.Errorf("update lead dedup %s: %w", id, domain.ErrNotFound)
	}
	row.IsLatest = st.IsLatest
	row.IsArchived = st.IsArchived
	row.DuplicateCount = st.DuplicateCount
	row.PrimaryLeadID = st.PrimaryLeadID
	return nil
}

func (s *Store) SoftDeleteLead(_ context.Context, id string) (*lead.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.leads[id]
	if !ok || row.DeletedAt != nil {
		return nil, fmt.Errorf("delete lead %s: %w", id, domain.ErrNotFound)
	}
	now := time.Now().UTC()
	row.DeletedAt = &now
	out := row.Lead
	return &out, nil
}

func (s *Store) ListLeadsByContactKey(_ context.Context, key string) ([]lead.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(func(l *leadRow) bool { return l.ContactKey == key }), nil
}

func (s *Store) ListLeads(_ context.Context, filter visibility.Expr, opts database.ListOptions) ([]lead.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var evalErr error
	rows := s.collect(func(l *leadRow) bool {
		ok, err := visibility.Eval(filter, &l.Lead, s.hasOpenLocked)
		if err != nil {
			evalErr = err
		}
		return ok
	})
	if evalErr != nil {
		return nil, fmt.Errorf("list leads: %w", evalErr)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if opts.Offset >= len(rows) {
		return []lead.Lead{}, nil
	}
	rows = rows[opts.Offset:]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *Store) ListLeadIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.collect(func(*leadRow) bool { return true })
	ids := make([]string, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	return ids, nil
}

// collect returns matching non-deleted leads newest first. Caller holds s.mu.
func (s *Store) collect(match func(*leadRow) bool) []lead.Lead {
	rows := make([]*leadRow, 0, len(s.leads))
	for _, r := range s.leads {
		if r.DeletedAt == nil && match(r) {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})
	out := make([]lead.Lead, len(rows))
	for i, r := range rows {
		out[i] = r.Lead
	}
	return out
}

// --- Assignments ---

func (s *Store) ListOpenAssignments(_ context.Context, leadID string) ([]assignment.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []assignment.Assignment
	for _, a := range s.assignments {
		if a.LeadID == leadID && a.Open() {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateAssignment(_ context.Context, leadID, userID string) (*assignment.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := &assignment.Assignment{
		ID:        uuid.NewString(),
		LeadID:    leadID,
		UserID:    userID,
		Status:    assignment.StatusOpen,
		CreatedAt: time.Now().UTC(),
	}
	s.assignments[a.ID] = a
	out := *a
	return &out, nil
}

func (s *Store) CloseAssignment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assignments[id]
	if !ok {
		return fmt.Errorf("close assignment %s: %w", id, domain.ErrNotFound)
	}
	if a.Open() {
		a.Status = assignment.StatusClosed
		a.ClosedAt = time.Now().UTC()
	}
	return nil
}

func (s *Store) GetAssignment(_ context.Context, id string) (*assignment.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assignments[id]
	if !ok {
		return nil, fmt.Errorf("get assignment %s: %w", id, domain.ErrNotFound)
	}
	out := *a
	return &out, nil
}

func (s *Store) HasOpenAssignment(_ context.Context, leadID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasOpenLocked(leadID, userID)
}

func (s *Store) hasOpenLocked(leadID, userID string) (bool, error) {
	for _, a := range s.assignments {
		if a.LeadID == leadID && a.UserID == userID && a.Open() {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) DeleteAssignment(ctx context.Context, id string) error {
	s.mu.Lock()
	a, ok := s.assignments[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("delete assignment %s: %w", id, domain.ErrNotFound)
	}
	deleted := *a
	delete(s.assignments, id)
	s.mu.Unlock()

	s.hookMu.RLock()
	hooks := append([]database.AssignmentDeletedHook(nil), s.hooks...)
	s.hookMu.RUnlock()
	for _, h := range hooks {
		h(ctx, deleted)
	}
	return nil
}

func (s *Store) OnAssignmentDeleted(hook database.AssignmentDeletedHook) {
	s.hookMu.Lock()
	s.hooks = append(s.hooks, hook)
	s.hookMu.Unlock()
}

// --- Shares ---

func (s *Store) CreateShare(_ context.Context, g assignment.ShareGrant) (*assignment.ShareGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteShareLocked(g.LeadID, g.UserID)
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	g.CreatedAt = time.Now().UTC()
	s.shares[g.ID] = &g
	out := g
	return &out, nil
}

func (s *Store) DeleteShare(_ context.Context, leadID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteShareLocked(leadID, userID)
	return nil
}

func (s *Store) deleteShareLocked(leadID, userID string) {
	for id, g := range s.shares {
		if g.LeadID == leadID && g.UserID == userID {
			delete(s.shares, id)
		}
	}
}

func (s *Store) DeleteShares(_ context.Context, leadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, g := range s.shares {
		if g.LeadID == leadID {
			delete(s.shares, id)
		}
	}
	return nil
}

func (s *Store) ListShares(_ context.Context, leadID string) ([]assignment.ShareGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []assignment.ShareGrant
	for _, g := range s.shares {
		if g.LeadID == leadID {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/leadgate/internal/domain/assignment"
	"github.com/Strob0t/leadgate/internal/port/database"
)

const assignmentColumns = `id, lead_id, user_id, status, created_at, closed_at`

func scanAssignment(row scannable) (assignment.Assignment, error) {
	var (
		a        assignment.Assignment
		status   string
		closedAt *time.Time
	)
	if err := row.Scan(&a.ID, &a.LeadID, &a.UserID, &status, &a.CreatedAt, &closedAt); err != nil {
		return a, err
	}
	a.Status = assignment.Status(status)
	if closedAt != nil {
		a.ClosedAt = *closedAt
	}
	return a, nil
}

func (s *Store) ListOpenAssignments(ctx context.Context, leadID string) ([]assignment.Assignment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+assignmentColumns+` FROM assignments
		 WHERE lead_id = $1 AND status = 'open' ORDER BY created_at, id`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list open assignments: %w", err)
	}
	defer rows.Close()

	var out []assignment.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return orEmpty(out), rows.Err()
}

func (s *Store) CreateAssignment(ctx context.Context, leadID, userID string) (*assignment.Assignment, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO assignments (id, lead_id, user_id, status, created_at)
		VALUES ($1, $2, $3, 'open', $4)
		RETURNING `+assignmentColumns,
		uuid.NewString(), leadID, userID, time.Now().UTC())
	a, err := scanAssignment(row)
	if err != nil {
		return nil, fmt.Errorf("create assignment on %s: %w", leadID, err)
	}
	return &a, nil
}

func (s *Store) CloseAssignment(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE assignments SET status = 'closed', closed_at = now() WHERE id = $1 AND status = 'open'`, id)
	return execExpectOne(tag, err, "close assignment %s", id)
}

func (s *Store) GetAssignment(ctx context.Context, id string) (*assignment.Assignment, error) {
	a, err := scanAssignment(s.pool.QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get assignment %s", id)
	}
	return &a, nil
}

func (s *Store) HasOpenAssignment(ctx context.Context, leadID, userID string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM assignments WHERE lead_id = $1 AND user_id = $2 AND status = 'open')`,
		leadID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check assignment on %s: %w", leadID, err)
	}
	return ok, nil
}

// DeleteAssignment removes the record and then runs the registered hooks
// with its last state.
func (s *Store) DeleteAssignment(ctx context.Context, id string) error {
	a, err := scanAssignment(s.pool.QueryRow(ctx,
		`DELETE FROM assignments WHERE id = $1 RETURNING `+assignmentColumns, id))
	if err != nil {
		return notFoundWrap(err, "delete assignment %s", id)
	}

	s.hookMu.RLock()
	hooks := append([]database.AssignmentDeletedHook(nil), s.hooks...)
	s.hookMu.RUnlock()
	for _, h := range hooks {
		h(ctx, a)
	}
	return nil
}

func (s *Store) OnAssignmentDeleted(hook database.AssignmentDeletedHook) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hooks = append(s.hooks, hook)
}

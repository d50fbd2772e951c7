package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/leadgate/internal/domain/assignment"
)

const shareColumns = `id, lead_id, user_id, can_read, can_write, can_share, created_at`

func scanShare(row scannable) (assignment.ShareGrant, error) {
	var g assignment.ShareGrant
	err := row.Scan(&g.ID, &g.LeadID, &g.UserID, &g.CanRead, &g.CanWrite, &g.CanShare, &g.CreatedAt)
	return g, err
}

// CreateShare replaces any grant held for the same (lead, user) pair.
func (s *Store) CreateShare(ctx context.Context, g assignment.ShareGrant) (*assignment.ShareGrant, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO share_grants (id, lead_id, user_id, can_read, can_write, can_share, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (lead_id, user_id) DO UPDATE SET
			id = EXCLUDED.id,
			can_read = EXCLUDED.can_read,
			can_write = EXCLUDED.can_write,
			can_share = EXCLUDED.can_share,
			created_at = EXCLUDED.created_at
		RETURNING `+shareColumns,
		uuid.NewString(), g.LeadID, g.UserID, g.CanRead, g.CanWrite, g.CanShare, time.Now().UTC())
	out, err := scanShare(row)
	if err != nil {
		return nil, fmt.Errorf("share %s with %s: %w", g.LeadID, g.UserID, err)
	}
	return &out, nil
}

func (s *Store) DeleteShare(ctx context.Context, leadID, userID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM share_grants WHERE lead_id = $1 AND user_id = $2`, leadID, userID); err != nil {
		return fmt.Errorf("unshare %s from %s: %w", leadID, userID, err)
	}
	return nil
}

func (s *Store) DeleteShares(ctx context.Context, leadID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM share_grants WHERE lead_id = $1`, leadID); err != nil {
		return fmt.Errorf("delete shares of %s: %w", leadID, err)
	}
	return nil
}

func (s *Store) ListShares(ctx context.Context, leadID string) ([]assignment.ShareGrant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+shareColumns+` FROM share_grants WHERE lead_id = $1 ORDER BY user_id`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list shares of %s: %w", leadID, err)
	}
	defer rows.Close()

	var out []assignment.ShareGrant
	for rows.Next() {
		g, err := scanShare(rows)
		if err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		out = append(out, g)
	}
	return orEmpty(out), rows.Err()
}

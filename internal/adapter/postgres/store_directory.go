package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/leadgate/internal/domain"
	"github.com/Strob0t/leadgate/internal/domain/actor"
	"github.com/Strob0t/leadgate/internal/port/directory"
)

// Directory resolves users from the users, user_roles and user_permissions
// tables. Only permission rows under pipelineKey feed the allow-list.
type Directory struct {
	pool        *pgxpool.Pool
	pipelineKey string
}

var _ directory.Directory = (*Directory)(nil)

// NewDirectory creates a Directory reading pipeline permissions stored
// under pipelineKey.
func NewDirectory(pool *pgxpool.Pool, pipelineKey string) *Directory {
	return &Directory{pool: pool, pipelineKey: pipelineKey}
}

// Lookup returns the user's roles and normalized pipeline allow-list.
// Unknown and disabled users are domain.ErrNotFound.
func (d *Directory) Lookup(ctx context.Context, userID string) (actor.Actor, error) {
	var enabled bool
	if err := d.pool.QueryRow(ctx, `SELECT enabled FROM users WHERE id = $1`, userID).Scan(&enabled); err != nil {
		return actor.Actor{}, notFoundWrap(err, "lookup user %s", userID)
	}
	if !enabled {
		return actor.Actor{}, fmt.Errorf("lookup user %s: disabled: %w", userID, domain.ErrNotFound)
	}

	roles, err := d.roles(ctx, userID)
	if err != nil {
		return actor.Actor{}, err
	}
	raw, err := d.pipelineRows(ctx, userID)
	if err != nil {
		return actor.Actor{}, err
	}

	return actor.Actor{
		ID:        userID,
		Roles:     roles,
		Pipelines: actor.NormalizePipelines(raw),
	}, nil
}

func (d *Directory) roles(ctx context.Context, userID string) ([]string, error) {
	rows, err := d.pool.Query(ctx, `SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`, userID)
	if err != nil {
		return nil, fmt.Errorf("roles of %s: %w", userID, err)
	}
	roles, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("roles of %s: %w", userID, err)
	}
	return roles, nil
}

func (d *Directory) pipelineRows(ctx context.Context, userID string) ([]any, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT value FROM user_permissions WHERE user_id = $1 AND allow = $2 ORDER BY id`,
		userID, d.pipelineKey)
	if err != nil {
		return nil, fmt.Errorf("permissions of %s: %w", userID, err)
	}
	blobs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("permissions of %s: %w", userID, err)
	}

	out := make([]any, 0, len(blobs))
	for _, b := range blobs {
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, fmt.Errorf("permission value of %s: %w", userID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// PutUser creates or replaces a user's roles and pipeline permissions.
func (d *Directory) PutUser(ctx context.Context, userID string, roles []string, pipelines []any) error {
	return pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO users (id, enabled) VALUES ($1, TRUE) ON CONFLICT (id) DO UPDATE SET enabled = TRUE`,
			userID); err != nil {
			return fmt.Errorf("upsert user %s: %w", userID, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("clear roles of %s: %w", userID, err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM user_permissions WHERE user_id = $1 AND allow = $2`, userID, d.pipelineKey); err != nil {
			return fmt.Errorf("clear permissions of %s: %w", userID, err)
		}
		for _, r := range roles {
			if _, err := tx.Exec(ctx,
				`INSERT INTO user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, r); err != nil {
				return fmt.Errorf("add role %s to %s: %w", r, userID, err)
			}
		}
		for _, p := range pipelines {
			b, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("encode permission for %s: %w", userID, err)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO user_permissions (user_id, allow, value) VALUES ($1, $2, $3)`,
				userID, d.pipelineKey, b); err != nil {
				return fmt.Errorf("add permission to %s: %w", userID, err)
			}
		}
		return nil
	})
}

package postgres

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/leadgate/internal/domain/lead"
	"github.com/Strob0t/leadgate/internal/domain/visibility"
	"github.com/Strob0t/leadgate/internal/port/database"
)

const defaultListLimit = 100

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool

	hookMu sync.RWMutex
	hooks  []database.AssignmentDeletedHook
}

var _ database.Store = (*Store)(nil)

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping checks the pool.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const leadColumns = `l.id, l.contact_key, l.pipeline, l.platform, l.source, l.owner_user_id,
	l.is_latest, l.is_archived, l.duplicate_count, l.primary_lead_id,
	l.stage, l.name, l.email, l.message, l.notes, l.country, l.landing_page,
	l.vpn_status, l.ip_address, l.remote_location, l.user_agent,
	l.created_by, l.created_at, l.updated_at, l.deleted_at`

// newestFirst orders a group so the canonical record comes first. seq
// breaks ties between identical timestamps in insert order.
const newestFirst = `ORDER BY l.created_at DESC, l.seq DESC`

// fieldColumns maps writable fields to their column. Field names double as
// column names, the map keeps the SET clause closed over known columns.
var fieldColumns = map[lead.Field]string{
	lead.FieldContactKey:     "contact_key",
	lead.FieldPipeline:       "pipeline",
	lead.FieldPlatform:       "platform",
	lead.FieldSource:         "source",
	lead.FieldOwner:          "owner_user_id",
	lead.FieldStage:          "stage",
	lead.FieldName:           "name",
	lead.FieldEmail:          "email",
	lead.FieldMessage:        "message",
	lead.FieldNotes:          "notes",
	lead.FieldCountry:        "country",
	lead.FieldLandingPage:    "landing_page",
	lead.FieldVPNStatus:      "vpn_status",
	lead.FieldIPAddress:      "ip_address",
	lead.FieldRemoteLocation: "remote_location",
	lead.FieldUserAgent:      "user_agent",
}

func scanLead(row scannable) (lead.Lead, error) {
	var l lead.Lead
	err := row.Scan(
		&l.ID, &l.ContactKey, &l.Pipeline, &l.Platform, &l.Source, &l.OwnerUserID,
		&l.IsLatest, &l.IsArchived, &l.DuplicateCount, &l.PrimaryLeadID,
		&l.Stage, &l.Name, &l.Email, &l.Message, &l.Notes, &l.Country, &l.LandingPage,
		&l.VPNStatus, &l.IPAddress, &l.RemoteLocation, &l.UserAgent,
		&l.CreatedBy, &l.CreatedAt, &l.UpdatedAt, &l.DeletedAt,
	)
	return l, err
}

// --- Leads ---

func (s *Store) CreateLead(ctx context.Context, l *lead.Lead) (*lead.Lead, error) {
	id := l.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := l.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO leads AS l (id, contact_key, pipeline, platform, source, owner_user_id,
			is_latest, is_archived, duplicate_count, primary_lead_id,
			stage, name, email, message, notes, country, landing_page,
			vpn_status, ip_address, remote_location, user_agent,
			created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, now())
		RETURNING `+leadColumns,
		id, l.ContactKey, l.Pipeline, l.Platform, l.Source, l.OwnerUserID,
		l.IsLatest, l.IsArchived, l.DuplicateCount, l.PrimaryLeadID,
		l.Stage, l.Name, l.Email, l.Message, l.Notes, l.Country, l.LandingPage,
		l.VPNStatus, l.IPAddress, l.RemoteLocation, l.UserAgent,
		l.CreatedBy, createdAt,
	)
	out, err := scanLead(row)
	if err != nil {
		return nil, conflictWrap(err, "create lead %s", id)
	}
	return &out, nil
}

func (s *Store) GetLead(ctx context.Context, id string) (*lead.Lead, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads l WHERE l.id = $1 AND l.deleted_at IS NULL`, id)
	l, err := scanLead(row)
	if err != nil {
		return nil, notFoundWrap(err, "get lead %s", id)
	}
	return &l, nil
}

func (s *Store) UpdateLeadFields(ctx context.Context, id string, changes lead.Changes) (*lead.Lead, error) {
	if len(changes) == 0 {
		return s.GetLead(ctx, id)
	}

	var args argList
	sets := make([]string, 0, len(changes)+1)
	for _, f := range changes.Fields() {
		col, ok := fieldColumns[f]
		if !ok {
			return nil, fmt.Errorf("update lead %s: unknown field %s", id, f)
		}
		sets = append(sets, col+" = "+args.add(changes[f]))
	}
	sets = append(sets, "updated_at = now()")

	row := s.pool.QueryRow(ctx,
		`UPDATE leads AS l SET `+strings.Join(sets, ", ")+
			` WHERE l.id = `+args.add(id)+` AND l.deleted_at IS NULL RETURNING `+leadColumns,
		args...)
	l, err := scanLead(row)
	if err != nil {
		return nil, notFoundWrap(err, "update lead %s", id)
	}
	return &l, nil
}

// UpdateLeadDedup touches only the bookkeeping columns so it never races
// a concurrent field edit.
func (s *Store) UpdateLeadDedup(ctx context.Context, id string, st lead.DedupState) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE leads SET is_latest = $2, is_archived = $3, duplicate_count = $4, primary_lead_id = $5
		WHERE id = $1 AND deleted_at IS NULL`,
		id, st.IsLatest, st.IsArchived, st.DuplicateCount, st.PrimaryLeadID)
	return execExpectOne(tag, err, "update dedup state of %s", id)
}

func (s *Store) SoftDeleteLead(ctx context.Context, id string) (*lead.Lead, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE leads AS l SET deleted_at = now(), updated_at = now()
		WHERE l.id = $1 AND l.deleted_at IS NULL
		RETURNING `+leadColumns, id)
	l, err := scanLead(row)
	if err != nil {
		return nil, notFoundWrap(err, "delete lead %s", id)
	}
	return &l, nil
}

func (s *Store) ListLeadsByContactKey(ctx context.Context, key string) ([]lead.Lead, error) {
	if key == "" {
		return []lead.Lead{}, nil
	}
	return s.queryLeads(ctx, "list leads by contact key",
		`SELECT `+leadColumns+` FROM leads l
		 WHERE l.contact_key = $1 AND l.deleted_at IS NULL `+newestFirst, key)
}

func (s *Store) ListLeads(ctx context.Context, filter visibility.Expr, opts database.ListOptions) ([]lead.Lead, error) {
	var args argList
	where, err := compileFilter(filter, &args)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	q := `SELECT ` + leadColumns + ` FROM leads l
		WHERE l.deleted_at IS NULL AND ` + where + ` ` + newestFirst +
		` LIMIT ` + args.add(limit) + ` OFFSET ` + args.add(max(opts.Offset, 0))
	return s.queryLeads(ctx, "list leads", q, args...)
}

func (s *Store) ListLeadIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM leads WHERE deleted_at IS NULL ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list lead ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan lead id: %w", err)
		}
		ids = append(ids, id)
	}
	return orEmpty(ids), rows.Err()
}

func (s *Store) queryLeads(ctx context.Context, op, q string, args ...any) ([]lead.Lead, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []lead.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orEmpty(out), nil
}

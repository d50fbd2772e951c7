package postgres_test

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/leadgate/internal/adapter/postgres"
	"github.com/Strob0t/leadgate/internal/domain"
	"github.com/Strob0t/leadgate/internal/domain/actor"
	"github.com/Strob0t/leadgate/internal/domain/assignment"
	"github.com/Strob0t/leadgate/internal/domain/lead"
	"github.com/Strob0t/leadgate/internal/domain/visibility"
	"github.com/Strob0t/leadgate/internal/port/database"
)

// setupPool runs all migrations and returns a pool closed via t.Cleanup.
func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// uniqueKey keeps tests independent of rows left by earlier runs.
func uniqueKey() string { return "key-" + uuid.NewString() }

func TestLeadGroupOrdering(t *testing.T) {
	store := postgres.NewStore(setupPool(t))
	ctx := context.Background()
	key := uniqueKey()
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)

	old, err := store.CreateLead(ctx, &lead.Lead{ContactKey: key, CreatedAt: base})
	if err != nil {
		t.Fatal(err)
	}
	tieA, _ := store.CreateLead(ctx, &lead.Lead{ContactKey: key, CreatedAt: base.Add(time.Minute)})
	tieB, _ := store.CreateLead(ctx, &lead.Lead{ContactKey: key, CreatedAt: base.Add(time.Minute)})

	group, err := store.ListLeadsByContactKey(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	got := []string{group[0].ID, group[1].ID, group[2].ID}
	want := []string{tieB.ID, tieA.ID, old.ID}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}

	if _, err := store.SoftDeleteLead(ctx, tieB.ID); err != nil {
		t.Fatal(err)
	}
	group, _ = store.ListLeadsByContactKey(ctx, key)
	if len(group) != 2 || group[0].ID != tieA.ID {
		t.Fatalf("deleted lead still grouped: %v", group)
	}
	if _, err := store.GetLead(ctx, tieB.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for deleted lead, got %v", err)
	}
}

func TestLeadNarrowUpdates(t *testing.T) {
	store := postgres.NewStore(setupPool(t))
	ctx := context.Background()

	l, err := store.CreateLead(ctx, &lead.Lead{ContactKey: uniqueKey(), Name: "Ada", Pipeline: "Sales"})
	if err != nil {
		t.Fatal(err)
	}

	if err := store.UpdateLeadDedup(ctx, l.ID, lead.Canonical(l.ID, 3)); err != nil {
		t.Fatal(err)
	}
	updated, err := store.UpdateLeadFields(ctx, l.ID, lead.Changes{lead.FieldNotes: "called", lead.FieldOwner: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Name != "Ada" || updated.Notes != "called" || updated.OwnerUserID != "alice" {
		t.Fatalf("fields = %+v", updated)
	}
	if updated.DuplicateCount != 2 || !updated.IsLatest {
		t.Fatalf("field update clobbered dedup state: %+v", updated.DedupState())
	}

	if _, err := store.UpdateLeadFields(ctx, "missing", lead.Changes{lead.FieldNotes: "x"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.CreateLead(ctx, &lead.Lead{ID: l.ID}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestListLeadsVisibility(t *testing.T) {
	store := postgres.NewStore(setupPool(t))
	ctx := context.Background()
	user := "agent-" + uuid.NewString()

	sales, _ := store.CreateLead(ctx, &lead.Lead{Pipeline: "Sales"})
	support, _ := store.CreateLead(ctx, &lead.Lead{Pipeline: "Support"})
	unassigned, _ := store.CreateLead(ctx, &lead.Lead{Pipeline: "Sales"})
	for _, id := range []string{sales.ID, support.ID} {
		if _, err := store.CreateAssignment(ctx, id, user); err != nil {
			t.Fatal(err)
		}
	}

	filter := visibility.And{Terms: []visibility.Expr{
		visibility.OpenAssignment{UserID: user},
		visibility.PipelineIn{Values: []string{"Sales"}},
	}}
	got, err := store.ListLeads(ctx, filter, database.ListOptions{Limit: 50})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != sales.ID {
		t.Fatalf("visible = %v, want only %s", got, sales.ID)
	}
	_ = unassigned

	none, err := store.ListLeads(ctx, visibility.None{}, database.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Fatalf("None matched %d leads", len(none))
	}
}

func TestAssignmentsAndShares(t *testing.T) {
	store := postgres.NewStore(setupPool(t))
	ctx := context.Background()
	l, _ := store.CreateLead(ctx, &lead.Lead{})

	var deleted []assignment.Assignment
	store.OnAssignmentDeleted(func(_ context.Context, a assignment.Assignment) {
		deleted = append(deleted, a)
	})

	a, err := store.CreateAssignment(ctx, l.ID, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := store.HasOpenAssignment(ctx, l.ID, "alice"); !ok {
		t.Fatal("expected open assignment")
	}
	if err := store.CloseAssignment(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if err := store.CloseAssignment(ctx, a.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("closing twice: %v", err)
	}
	closed, _ := store.GetAssignment(ctx, a.ID)
	if closed.Open() || closed.ClosedAt.IsZero() {
		t.Fatalf("assignment = %+v", closed)
	}

	if err := store.DeleteAssignment(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if len(deleted) != 1 || deleted[0].UserID != "alice" || deleted[0].LeadID != l.ID {
		t.Fatalf("hook saw %+v", deleted)
	}

	if _, err := store.CreateShare(ctx, assignment.ShareGrant{LeadID: l.ID, UserID: "alice", CanRead: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.CreateShare(ctx, assignment.OwnerGrant(l.ID, "alice")); err != nil {
		t.Fatal(err)
	}
	shares, _ := store.ListShares(ctx, l.ID)
	if len(shares) != 1 || !shares[0].CanWrite {
		t.Fatalf("shares = %+v", shares)
	}
	if err := store.DeleteShare(ctx, l.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteShare(ctx, l.ID, "alice"); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
}

func TestDirectoryLookup(t *testing.T) {
	pool := setupPool(t)
	dir := postgres.NewDirectory(pool, "CRM Pipeline")
	ctx := context.Background()
	user := "user-" + uuid.NewString()

	err := dir.PutUser(ctx, user, []string{actor.RoleAgent}, []any{
		"Sales",
		map[string]any{"doc": "Support"},
		map[string]any{"name": "Renewals"},
	})
	if err != nil {
		t.Fatal(err)
	}

	a, err := dir.Lookup(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if !a.HasRole(actor.RoleAgent) {
		t.Fatalf("roles = %v", a.Roles)
	}
	if got := a.PipelineList(); !reflect.DeepEqual(got, []string{"Renewals", "Sales", "Support"}) {
		t.Fatalf("pipelines = %v", got)
	}

	if _, err := dir.Lookup(ctx, "nobody-"+uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

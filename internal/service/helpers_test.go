package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/leadgate/internal/adapter/memory"
	"github.com/Strob0t/leadgate/internal/domain/actor"
	"github.com/Strob0t/leadgate/internal/domain/assignment"
	"github.com/Strob0t/leadgate/internal/domain/lead"
	"github.com/Strob0t/leadgate/internal/port/messagequeue"
	"github.com/Strob0t/leadgate/internal/workpool"
)

var (
	admin    = actor.Actor{ID: actor.UserAdministrator}
	manager  = actor.Actor{ID: "sm", Roles: []string{actor.RoleSystemManager}}
	teamLead = actor.Actor{ID: "tl", Roles: []string{actor.RoleTeamLead}}
	outsider = actor.Actor{ID: "guest"}
)

func agent(id string, pipelines ...any) actor.Actor {
	return actor.Actor{ID: id, Roles: []string{actor.RoleAgent}, Pipelines: actor.NormalizePipelines(pipelines)}
}

// mockQueue records publishes so tests can drain them into the worker.
type mockQueue struct {
	mu         sync.Mutex
	published  [][]byte
	publishErr error
}

var _ messagequeue.Queue = (*mockQueue)(nil)

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.publishErr != nil {
		return q.publishErr
	}
	if subject == messagequeue.SubjectDedupRepair {
		q.published = append(q.published, data)
	}
	return nil
}

func (q *mockQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

// keys returns the contact keys of every queued repair.
func (q *mockQueue) keys(t *testing.T) []string {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.published))
	for _, d := range q.published {
		var p messagequeue.RepairGroupPayload
		if err := json.Unmarshal(d, &p); err != nil {
			t.Fatalf("bad payload %s: %v", d, err)
		}
		out = append(out, p.ContactKey)
	}
	return out
}

// drain hands every queued message to h and empties the queue.
func (q *mockQueue) drain(t *testing.T, h messagequeue.Handler) {
	t.Helper()
	q.mu.Lock()
	msgs := q.published
	q.published = nil
	q.mu.Unlock()
	for _, d := range msgs {
		if err := h(context.Background(), messagequeue.SubjectDedupRepair, d); err != nil {
			t.Fatalf("repair handler: %v", err)
		}
	}
}

// flakyStore wraps the memory store with injectable failures.
type flakyStore struct {
	*memory.Store

	listByKeyFails int // fail this many ListLeadsByContactKey calls
	createShareErr error
	deleteShareErr error
}

func (s *flakyStore) ListLeadsByContactKey(ctx context.Context, key string) ([]lead.Lead, error) {
	if s.listByKeyFails > 0 {
		s.listByKeyFails--
		return nil, errFlaky
	}
	return s.Store.ListLeadsByContactKey(ctx, key)
}

func (s *flakyStore) CreateShare(ctx context.Context, g assignment.ShareGrant) (*assignment.ShareGrant, error) {
	if s.createShareErr != nil {
		return nil, s.createShareErr
	}
	return s.Store.CreateShare(ctx, g)
}

func (s *flakyStore) DeleteShare(ctx context.Context, leadID, userID string) error {
	if s.deleteShareErr != nil {
		return s.deleteShareErr
	}
	return s.Store.DeleteShare(ctx, leadID, userID)
}

type errString string

func (e errString) Error() string { return string(e) }

const errFlaky = errString("store unavailable")

// env bundles the services over one store and queue.
type env struct {
	store   *flakyStore
	queue   *mockQueue
	dedup   *DedupIndexer
	binder  *AssignmentBinder
	gateway *AssignmentGateway
	vis     *VisibilityFilter
	leads   *LeadService
	worker  *RepairWorker
}

func newEnv(t *testing.T) *env {
	t.Helper()
	policy := actor.DefaultPolicy()
	store := &flakyStore{Store: memory.NewStore()}
	q := &mockQueue{}

	dedup := NewDedupIndexer(store, q)
	binder := NewAssignmentBinder(store, workpool.New(4))
	vis := NewVisibilityFilter(policy, store)
	return &env{
		store:   store,
		queue:   q,
		dedup:   dedup,
		binder:  binder,
		gateway: NewAssignmentGateway(store, binder, policy),
		vis:     vis,
		leads:   NewLeadService(store, policy, NewFieldGuard(policy), vis, dedup, binder),
		worker:  NewRepairWorker(q, dedup, RetryPolicy{Attempts: 2, Base: time.Millisecond, Max: time.Millisecond}),
	}
}

// seed inserts a lead directly, bypassing the save pipeline.
func (e *env) seed(t *testing.T, l lead.Lead) *lead.Lead {
	t.Helper()
	out, err := e.store.CreateLead(context.Background(), &l)
	if err != nil {
		t.Fatalf("seed %s: %v", l.ID, err)
	}
	return out
}

func (e *env) lead(t *testing.T, id string) *lead.Lead {
	t.Helper()
	l, err := e.store.GetLead(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return l
}

// assertGroupSettled checks the dedup invariant for key.
func (e *env) assertGroupSettled(t *testing.T, key string) {
	t.Helper()
	group, err := e.store.ListLeadsByContactKey(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	latest := 0
	for i := range group {
		l := group[i]
		if l.IsLatest {
			latest++
		}
		if l.PrimaryLeadID != group[0].ID {
			t.Errorf("%s: primary = %q, want %q", l.ID, l.PrimaryLeadID, group[0].ID)
		}
		if i == 0 {
			if !l.IsLatest || l.IsArchived || l.DuplicateCount != len(group)-1 {
				t.Errorf("canonical %s: %+v", l.ID, l.DedupState())
			}
			continue
		}
		if l.IsLatest || !l.IsArchived || l.DuplicateCount != 0 {
			t.Errorf("archived %s: %+v", l.ID, l.DedupState())
		}
	}
	if len(group) > 0 && latest != 1 {
		t.Errorf("group %q has %d latest members, want 1", key, latest)
	}
}

// bindings returns the users holding open assignments and shares on a lead.
func (e *env) bindings(t *testing.T, leadID string) (open, shares []string) {
	t.Helper()
	ctx := context.Background()
	as, err := e.store.ListOpenAssignments(ctx, leadID)
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range as {
		open = append(open, a.UserID)
	}
	gs, err := e.store.ListShares(ctx, leadID)
	if err != nil {
		t.Fatal(err)
	}
	for _, g := range gs {
		shares = append(shares, g.UserID)
	}
	return open, shares
}

package service

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/leadgate/internal/domain"
	"github.com/Strob0t/leadgate/internal/domain/lead"
)

const key = "9999999999"

// seedGroup inserts L1..L3 a minute apart and reindexes them.
func seedGroup(t *testing.T, e *env) {
	t.Helper()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"L1", "L2", "L3"} {
		e.seed(t, lead.Lead{ID: id, ContactKey: key, CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	if err := e.dedup.Reindex(context.Background(), key); err != nil {
		t.Fatal(err)
	}
}

func TestDedup_ReindexSettlesGroup(t *testing.T) {
	e := newEnv(t)
	seedGroup(t, e)

	e.assertGroupSettled(t, key)
	if l3 := e.lead(t, "L3"); l3.DuplicateCount != 2 || !l3.IsLatest {
		t.Fatalf("L3 = %+v", l3.DedupState())
	}
}

func TestDedup_ReindexIsIdempotent(t *testing.T) {
	e := newEnv(t)
	seedGroup(t, e)
	before := []lead.DedupState{e.lead(t, "L1").DedupState(), e.lead(t, "L2").DedupState(), e.lead(t, "L3").DedupState()}

	for range 3 {
		if err := e.dedup.Reindex(context.Background(), key); err != nil {
			t.Fatal(err)
		}
	}
	after := []lead.DedupState{e.lead(t, "L1").DedupState(), e.lead(t, "L2").DedupState(), e.lead(t, "L3").DedupState()}
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("state drifted: %+v -> %+v", before, after)
	}
}

func TestDedup_EmptyKeyIsNoop(t *testing.T) {
	e := newEnv(t)
	e.seed(t, lead.Lead{ID: "A"})
	if err := e.dedup.Reindex(context.Background(), "   "); err != nil {
		t.Fatal(err)
	}
	if a := e.lead(t, "A"); a.IsLatest || a.IsArchived || a.PrimaryLeadID != "" {
		t.Fatalf("keyless lead was touched: %+v", a.DedupState())
	}
}

func TestDedup_RepairOnDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedGroup(t, e)

	if err := e.leads.Delete(ctx, teamLead, "L3"); err != nil {
		t.Fatal(err)
	}
	if got := e.queue.keys(t); !reflect.DeepEqual(got, []string{key}) {
		t.Fatalf("queued repairs = %v", got)
	}

	// Until the repair runs the survivors still point at L3.
	if l2 := e.lead(t, "L2"); l2.PrimaryLeadID != "L3" {
		t.Fatalf("L2 settled before repair: %+v", l2.DedupState())
	}

	e.queue.drain(t, e.worker.Handle)

	l2, l1 := e.lead(t, "L2"), e.lead(t, "L1")
	if !l2.IsLatest || l2.IsArchived || l2.DuplicateCount != 1 || l2.PrimaryLeadID != "L2" {
		t.Errorf("L2 = %+v", l2.DedupState())
	}
	if l1.IsLatest || !l1.IsArchived || l1.DuplicateCount != 0 || l1.PrimaryLeadID != "L2" {
		t.Errorf("L1 = %+v", l1.DedupState())
	}
}

func TestDedup_RepairRedeliveryIsHarmless(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedGroup(t, e)
	_ = e.leads.Delete(ctx, teamLead, "L3")

	msgs := e.queue.published
	for range 2 {
		for _, m := range msgs {
			if err := e.worker.Handle(ctx, "", m); err != nil {
				t.Fatal(err)
			}
		}
	}
	e.assertGroupSettled(t, key)
}

func TestDedup_EnqueueFallsBackInline(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedGroup(t, e)
	e.queue.publishErr = errors.New("broker down")

	if err := e.leads.Delete(ctx, teamLead, "L3"); err != nil {
		t.Fatal(err)
	}
	e.assertGroupSettled(t, key)
	if l2 := e.lead(t, "L2"); !l2.IsLatest {
		t.Fatalf("inline repair did not promote L2: %+v", l2.DedupState())
	}
}

func TestDedup_NilQueueRepairsInline(t *testing.T) {
	e := newEnv(t)
	seedGroup(t, e)
	d := NewDedupIndexer(e.store, nil)

	if _, err := e.store.SoftDeleteLead(context.Background(), "L3"); err != nil {
		t.Fatal(err)
	}
	if err := d.EnqueueRepair(context.Background(), key); err != nil {
		t.Fatal(err)
	}
	e.assertGroupSettled(t, key)
}

func TestDedup_SummaryAndDuplicates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seedGroup(t, e)

	for _, id := range []string{"L1", "L2", "L3"} {
		sum, err := e.dedup.Summary(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if sum.DuplicateCount != 2 || sum.CanonicalID != "L3" {
			t.Errorf("summary(%s) = %+v", id, sum)
		}
	}

	list, err := e.dedup.DuplicatesOf(ctx, "L3")
	if err != nil {
		t.Fatal(err)
	}
	if list.CanonicalID != "L3" || len(list.Rows) != 2 || list.Rows[0].LeadID != "L2" || list.Rows[1].LeadID != "L1" {
		t.Fatalf("duplicates = %+v", list)
	}
}

func TestDedup_SummaryWithoutKey(t *testing.T) {
	e := newEnv(t)
	e.seed(t, lead.Lead{ID: "solo"})
	sum, err := e.dedup.Summary(context.Background(), "solo")
	if err != nil {
		t.Fatal(err)
	}
	if sum.DuplicateCount != 0 || sum.CanonicalID != "" {
		t.Fatalf("summary = %+v", sum)
	}
	if _, err := e.dedup.Summary(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDedup_ReindexFailureIsQueued(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.store.listByKeyFails = 1

	created, err := e.leads.Create(ctx, teamLead, lead.Changes{lead.FieldContactKey: key}, SaveOptions{})
	if err != nil {
		t.Fatalf("save must not fail on reindex error: %v", err)
	}
	if created.IsLatest {
		t.Fatal("group should not be settled yet")
	}
	if got := e.queue.keys(t); !reflect.DeepEqual(got, []string{key}) {
		t.Fatalf("queued repairs = %v", got)
	}
	e.queue.drain(t, e.worker.Handle)
	e.assertGroupSettled(t, key)
}

func TestRepairWorker_RetriesThenSucceeds(t *testing.T) {
	e := newEnv(t)
	seedGroup(t, e)
	e.store.listByKeyFails = 2

	if err := e.worker.Handle(context.Background(), "", []byte(`{"contact_key":"`+key+`"}`)); err != nil {
		t.Fatalf("expected retries to recover, got %v", err)
	}
}

func TestRepairWorker_ExhaustedRetriesReturnError(t *testing.T) {
	e := newEnv(t)
	seedGroup(t, e)
	e.store.listByKeyFails = 10

	err := e.worker.Handle(context.Background(), "", []byte(`{"contact_key":"`+key+`"}`))
	if !errors.Is(err, errFlaky) {
		t.Fatalf("expected store error after retries, got %v", err)
	}
	if e.store.listByKeyFails != 7 {
		t.Errorf("attempts = %d, want 3", 10-e.store.listByKeyFails)
	}
}

func TestRepairWorker_BadPayload(t *testing.T) {
	e := newEnv(t)
	if err := e.worker.Handle(context.Background(), "", []byte(`not-json`)); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDedup_ConcurrentCreatesAndReindexSettle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	const writers = 8

	var wg sync.WaitGroup
	errs := make(chan error, 2*writers)
	for range writers {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := e.leads.Create(ctx, teamLead, lead.Changes{lead.FieldContactKey: key}, SaveOptions{})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			errs <- e.dedup.Reindex(ctx, key)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	if err := e.dedup.Reindex(ctx, key); err != nil {
		t.Fatal(err)
	}
	group, err := e.store.ListLeadsByContactKey(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if len(group) != writers {
		t.Fatalf("group size = %d, want %d", len(group), writers)
	}
	e.assertGroupSettled(t, key)
}

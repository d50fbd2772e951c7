package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	cfotel "github.com/Strob0t/leadgate/internal/adapter/otel"
	"github.com/Strob0t/leadgate/internal/domain"
	"github.com/Strob0t/leadgate/internal/domain/lead"
	"github.com/Strob0t/leadgate/internal/port/database"
	"github.com/Strob0t/leadgate/internal/port/messagequeue"
	"github.com/Strob0t/leadgate/internal/resilience"
)

// DedupIndexer keeps contact-key groups settled: the newest member is
// canonical, every older member is archived and points at it.
type DedupIndexer struct {
	store   database.LeadStore
	queue   messagequeue.Queue
	breaker *resilience.Breaker
	metrics *cfotel.Metrics
}

// NewDedupIndexer creates a DedupIndexer. queue may be nil, in which case
// repairs run inline.
func NewDedupIndexer(store database.LeadStore, queue messagequeue.Queue) *DedupIndexer {
	return &DedupIndexer{store: store, queue: queue}
}

// SetBreaker guards repair publishing with a circuit breaker.
func (d *DedupIndexer) SetBreaker(b *resilience.Breaker) { d.breaker = b }

// SetMetrics attaches metric instruments.
func (d *DedupIndexer) SetMetrics(m *cfotel.Metrics) { d.metrics = m }

// Reindex recomputes the group for contactKey from persisted state. It
// writes only rows whose bookkeeping differs, so repeating it is cheap and
// concurrent runs converge.
func (d *DedupIndexer) Reindex(ctx context.Context, contactKey string) error {
	key := strings.TrimSpace(contactKey)
	if key == "" {
		return nil
	}

	ctx, span := cfotel.StartReindexSpan(ctx, key)
	defer span.End()
	start := time.Now()

	group, err := d.store.ListLeadsByContactKey(ctx, key)
	if err != nil {
		return fmt.Errorf("reindex %q: %w", key, err)
	}
	if len(group) == 0 {
		return nil
	}

	canonical := group[0].ID
	for i := range group {
		want := lead.Archived(canonical)
		if i == 0 {
			want = lead.Canonical(canonical, len(group))
		}
		if group[i].DedupState() == want {
			continue
		}
		if err := d.store.UpdateLeadDedup(ctx, group[i].ID, want); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Deleted since the listing; its own repair will settle the group.
				continue
			}
			return fmt.Errorf("reindex %q: lead %s: %w", key, group[i].ID, err)
		}
	}

	if d.metrics != nil {
		d.metrics.Reindexed.Add(ctx, 1)
		d.metrics.ReindexDuration.Record(ctx, time.Since(start).Seconds())
	}
	return nil
}

// RepairGroup is the queue-consumed entry point. It is Reindex under
// another name so the worker never depends on the triggering save.
func (d *DedupIndexer) RepairGroup(ctx context.Context, contactKey string) error {
	return d.Reindex(ctx, contactKey)
}

// EnqueueRepair schedules RepairGroup for contactKey. When the queue is
// missing or the publish fails, the repair runs inline instead.
func (d *DedupIndexer) EnqueueRepair(ctx context.Context, contactKey string) error {
	key := strings.TrimSpace(contactKey)
	if key == "" {
		return nil
	}
	if d.queue == nil {
		return d.RepairGroup(ctx, key)
	}

	data, err := json.Marshal(messagequeue.RepairGroupPayload{ContactKey: key})
	if err != nil {
		return fmt.Errorf("marshal repair payload: %w", err)
	}

	err = d.breaker.Do(ctx, func(ctx context.Context) error {
		return d.queue.Publish(ctx, messagequeue.SubjectDedupRepair, data)
	})
	if err != nil {
		slog.Warn("repair enqueue failed, repairing inline", "contact_key", key, "error", err)
		return d.RepairGroup(ctx, key)
	}

	if d.metrics != nil {
		d.metrics.RepairsEnqueued.Add(ctx, 1)
	}
	return nil
}

// Summary returns the duplicate count and canonical id for leadID's group.
func (d *DedupIndexer) Summary(ctx context.Context, leadID string) (lead.DuplicateSummary, error) {
	group, err := d.groupOf(ctx, leadID)
	if err != nil {
		return lead.DuplicateSummary{}, err
	}
	return lead.Summarize(group), nil
}

// DuplicatesOf returns the archived siblings of leadID's group, newest first.
func (d *DedupIndexer) DuplicatesOf(ctx context.Context, leadID string) (lead.DuplicateList, error) {
	group, err := d.groupOf(ctx, leadID)
	if err != nil {
		return lead.DuplicateList{}, err
	}
	return lead.Siblings(group), nil
}

func (d *DedupIndexer) groupOf(ctx context.Context, leadID string) ([]lead.Lead, error) {
	l, err := d.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if l.ContactKey == "" {
		return nil, nil
	}
	group, err := d.store.ListLeadsByContactKey(ctx, l.ContactKey)
	if err != nil {
		return nil, fmt.Errorf("list group %q: %w", l.ContactKey, err)
	}
	return group, nil
}

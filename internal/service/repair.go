package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	cfotel "github.com/Strob0t/leadgate/internal/adapter/otel"
	"github.com/Strob0t/leadgate/internal/logger"
	"github.com/Strob0t/leadgate/internal/port/messagequeue"
)

// RetryPolicy bounds the in-worker retries of one repair message before it
// is handed back to the queue for redelivery.
type RetryPolicy struct {
	Attempts uint64
	Base     time.Duration
	Max      time.Duration
}

// RepairWorker consumes leads.dedup.repair and settles the named group.
type RepairWorker struct {
	queue   messagequeue.Queue
	dedup   *DedupIndexer
	policy  RetryPolicy
	metrics *cfotel.Metrics
}

// NewRepairWorker creates a RepairWorker.
func NewRepairWorker(queue messagequeue.Queue, dedup *DedupIndexer, policy RetryPolicy) *RepairWorker {
	if policy.Base <= 0 {
		policy.Base = 100 * time.Millisecond
	}
	if policy.Max < policy.Base {
		policy.Max = policy.Base
	}
	return &RepairWorker{queue: queue, dedup: dedup, policy: policy}
}

// SetMetrics attaches metric instruments.
func (w *RepairWorker) SetMetrics(m *cfotel.Metrics) { w.metrics = m }

// Start subscribes the worker. The returned function stops it.
func (w *RepairWorker) Start(ctx context.Context) (func(), error) {
	stop, err := w.queue.Subscribe(ctx, messagequeue.SubjectDedupRepair, w.Handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", messagequeue.SubjectDedupRepair, err)
	}
	slog.Info("repair worker started", "subject", messagequeue.SubjectDedupRepair)
	return stop, nil
}

// Handle processes one repair message. A returned error makes the queue
// redeliver and, once deliveries run out, dead-letter the message.
func (w *RepairWorker) Handle(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.RepairGroupPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode repair payload: %w", err)
	}

	b := retry.NewExponential(w.policy.Base)
	b = retry.WithCappedDuration(w.policy.Max, b)
	b = retry.WithMaxRetries(w.policy.Attempts, b)

	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := w.dedup.RepairGroup(ctx, p.ContactKey); err != nil {
			slog.Warn("repair attempt failed",
				"contact_key", p.ContactKey,
				"attempt", attempt,
				"request_id", logger.RequestID(ctx),
				"error", err,
			)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		if w.metrics != nil {
			w.metrics.RepairsFailed.Add(ctx, 1)
		}
		return fmt.Errorf("repair %q after %d attempts: %w", p.ContactKey, attempt, err)
	}

	slog.Debug("group repaired", "contact_key", p.ContactKey, "request_id", logger.RequestID(ctx))
	return nil
}

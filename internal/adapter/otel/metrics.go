package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "leadgate"

// Metrics holds all leadgate metric instruments.
type Metrics struct {
	Reindexed           metric.Int64Counter
	RepairsEnqueued     metric.Int64Counter
	RepairsFailed       metric.Int64Counter
	GuardRejections     metric.Int64Counter
	OwnerSyncs          metric.Int64Counter
	OwnerSyncFailures   metric.Int64Counter
	ShareCleanupFailure metric.Int64Counter
	ReindexDuration     metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Reindexed, err = meter.Int64Counter("leadgate.dedup.reindexed",
		metric.WithDescription("Number of contact-key groups reindexed"))
	if err != nil {
		return nil, err
	}

	m.RepairsEnqueued, err = meter.Int64Counter("leadgate.dedup.repairs_enqueued",
		metric.WithDescription("Number of group repairs put on the queue"))
	if err != nil {
		return nil, err
	}

	m.RepairsFailed, err = meter.Int64Counter("leadgate.dedup.repairs_failed",
		metric.WithDescription("Number of group repairs that exhausted in-worker retries"))
	if err != nil {
		return nil, err
	}

	m.GuardRejections, err = meter.Int64Counter("leadgate.guard.rejections",
		metric.WithDescription("Number of saves rejected by the field guard"))
	if err != nil {
		return nil, err
	}

	m.OwnerSyncs, err = meter.Int64Counter("leadgate.binder.syncs",
		metric.WithDescription("Number of owner syncs run"))
	if err != nil {
		return nil, err
	}

	m.OwnerSyncFailures, err = meter.Int64Counter("leadgate.binder.sync_failures",
		metric.WithDescription("Number of owner syncs that failed"))
	if err != nil {
		return nil, err
	}

	m.ShareCleanupFailure, err = meter.Int64Counter("leadgate.shares.cleanup_failures",
		metric.WithDescription("Number of share grant removals that failed"))
	if err != nil {
		return nil, err
	}

	m.ReindexDuration, err = meter.Float64Histogram("leadgate.dedup.reindex_duration_seconds",
		metric.WithDescription("Reindex duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

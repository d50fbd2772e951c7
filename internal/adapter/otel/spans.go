package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "leadgate"

// StartReindexSpan starts a span for a contact-key group reindex.
func StartReindexSpan(ctx context.Context, contactKey string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "dedup.reindex",
		trace.WithAttributes(attribute.String("lead.contact_key", contactKey)),
	)
}

// StartOwnerSyncSpan starts a span for rebuilding a lead's assignment and share.
func StartOwnerSyncSpan(ctx context.Context, leadID, ownerID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "binder.sync_owner",
		trace.WithAttributes(
			attribute.String("lead.id", leadID),
			attribute.String("lead.owner", ownerID),
		),
	)
}

// StartGatewaySpan starts a span for an assignment gateway call.
func StartGatewaySpan(ctx context.Context, op, leadID, actorID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "gateway."+op,
		trace.WithAttributes(
			attribute.String("lead.id", leadID),
			attribute.String("actor.id", actorID),
		),
	)
}

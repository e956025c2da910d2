package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "backoffice"

// StartRowQuerySpan starts a span for a row listing.
func StartRowQuerySpan(ctx context.Context, entityName, tenantID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "rows.list",
		trace.WithAttributes(
			attribute.String("entity.name", entityName),
			attribute.String("tenant.id", tenantID),
		),
	)
}

// StartRowMutationSpan starts a span for a row create, update or delete.
func StartRowMutationSpan(ctx context.Context, op, entityName, rowID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "rows."+op,
		trace.WithAttributes(
			attribute.String("entity.name", entityName),
			attribute.String("row.id", rowID),
		),
	)
}

// StartPermissionSpan starts a span for resolving an actor's permissions.
func StartPermissionSpan(ctx context.Context, userID, tenantID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "permissions.resolve",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("tenant.id", tenantID),
		),
	)
}

// StartTaskSpan starts a span for a queue task.
func StartTaskSpan(ctx context.Context, subject string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "task",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("messaging.destination", subject)),
	)
}

package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "loom"

// StartOpenSpan starts a span covering a workspace initialization.
func StartOpenSpan(ctx context.Context, workspaceID, providerID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "workspace.open",
		trace.WithAttributes(
			attribute.String("workspace.id", workspaceID),
			attribute.String("workspace.provider", providerID),
		),
	)
}

// StartEraseSpan starts a span covering a workspace erase.
func StartEraseSpan(ctx context.Context, workspaceID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "workspace.erase",
		trace.WithAttributes(
			attribute.String("workspace.id", workspaceID),
		),
	)
}

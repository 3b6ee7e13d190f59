package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "craftd"

// StartEmitSpan starts a span for one bus emission.
func StartEmitSpan(ctx context.Context, eventType, workspaceID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "emit",
		trace.WithAttributes(
			attribute.String("event.type", eventType),
			attribute.String("workspace.id", workspaceID),
		),
	)
}

// StartPromptSpan starts a span for prompt expansion of one event.
func StartPromptSpan(ctx context.Context, eventType string, matcherCount int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "prompts",
		trace.WithAttributes(
			attribute.String("event.type", eventType),
			attribute.Int("matcher.count", matcherCount),
		),
	)
}

// StartDiffSpan starts a span for one session metadata diff.
func StartDiffSpan(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "metadata_diff",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
		),
	)
}

package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "relaydesk"

// StartProcessSpan starts a span for processing one inbound message.
func StartProcessSpan(ctx context.Context, providerID, channel string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "message.process",
		trace.WithAttributes(
			attribute.String("message.provider_id", providerID),
			attribute.String("message.channel", channel),
		),
	)
}

// StartTriggerSpan starts a span for an automation trigger call.
func StartTriggerSpan(ctx context.Context, conversationID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "automation.trigger",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
		),
	)
}

package orchestrator

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "content-agent-service"

func startJobSpan(ctx context.Context, jobID string, agents int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "job",
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.Int("job.agents", agents),
		),
	)
}

func startAgentSpan(ctx context.Context, jobID, agentID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "agent",
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.String("agent.id", agentID),
		),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "tripartite/arbitration"

// Span attribute keys for registry operations.
const (
	OperationKey   = attribute.Key("arbitration.operation")
	AgreementIDKey = attribute.Key("arbitration.agreement_id")
	OutcomeKey     = attribute.Key("arbitration.outcome")
)

// StartOperation opens a span for one registry operation on the global
// tracer provider.
func StartOperation(ctx context.Context, operation string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "arbitration."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(OperationKey.String(operation)))
}

// AnnotateAgreement tags the span in ctx with the agreement it touches.
func AnnotateAgreement(ctx context.Context, id uint64) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(AgreementIDKey.Int64(int64(id)))
}

// EndOperation records the outcome and closes span. Precondition failures
// are expected client errors and leave the span status unset.
func EndOperation(span trace.Span, outcome string, err error, precondition bool) {
	span.SetAttributes(OutcomeKey.String(outcome))
	if err != nil && !precondition {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.End()
}

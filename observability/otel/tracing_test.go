package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func useRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})
	return recorder
}

func attrs(span sdktrace.ReadOnlySpan) map[string]string {
	out := map[string]string{}
	for _, kv := range span.Attributes() {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

func TestOperationSpanCarriesAgreementAndOutcome(t *testing.T) {
	recorder := useRecorder(t)

	ctx, span := StartOperation(context.Background(), "release")
	AnnotateAgreement(ctx, 7)
	EndOperation(span, "ok", nil, false)

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, "arbitration.release", ended[0].Name())
	require.Equal(t, codes.Unset, ended[0].Status().Code)
	require.Equal(t, map[string]string{
		"arbitration.operation":    "release",
		"arbitration.agreement_id": "7",
		"arbitration.outcome":      "ok",
	}, attrs(ended[0]))
}

func TestOperationSpanStatus(t *testing.T) {
	recorder := useRecorder(t)

	_, span := StartOperation(context.Background(), "release")
	EndOperation(span, "timing", errors.New("too early"), true)
	_, span = StartOperation(context.Background(), "accept_partial_settlement")
	EndOperation(span, "transfer", errors.New("payout rejected"), false)

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	require.Equal(t, codes.Unset, ended[0].Status().Code)
	require.Empty(t, ended[0].Events())
	require.Equal(t, codes.Error, ended[1].Status().Code)
	require.Equal(t, "transfer", ended[1].Status().Description)
	require.NotEmpty(t, ended[1].Events())
}

func TestAnnotateWithoutSpanIsNoop(t *testing.T) {
	require.NotPanics(t, func() { AnnotateAgreement(context.Background(), 1) })
}

package tracing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func useRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	prevProvider := otel.GetTracerProvider()
	prevPropagator := otel.GetTextMapPropagator()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
	})
	return recorder
}

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSampleRatio(t *testing.T) {
	assert.Equal(t, 1.0, sampleRatio(0))
	assert.Equal(t, 1.0, sampleRatio(-0.5))
	assert.Equal(t, 1.0, sampleRatio(3))
	assert.Equal(t, 0.25, sampleRatio(0.25))
}

func TestStartEnd_RecordsSpans(t *testing.T) {
	recorder := useRecorder(t)

	_, ok := Start(context.Background(), "giftcards.ok", attribute.String("event.type", "cards.minted"))
	End(ok, nil)
	_, failed := Start(context.Background(), "giftcards.failed")
	End(failed, errors.New("journal down"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "giftcards.ok", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("event.type", "cards.minted"))

	assert.Equal(t, "giftcards.failed", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "journal down", spans[1].Status().Description)
}

func TestInjectHTTP(t *testing.T) {
	useRecorder(t)

	ctx, span := Start(context.Background(), "oracle.fetch")
	defer span.End()

	header := http.Header{}
	InjectHTTP(ctx, header)
	assert.Contains(t, header.Get("traceparent"), span.SpanContext().TraceID().String())
}

package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"
	billingeventdomain "github.com/smallbiznis/portbilling/internal/billingevent/domain"
	"github.com/smallbiznis/portbilling/internal/observability/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisherWritesKeyedEnvelope(t *testing.T) {
	w := &fakeWriter{}
	pub := NewKafkaPublisherWithWriter(w, zap.NewNop())

	event := billingeventdomain.BillingEvent{
		ID:        42,
		EventType: billingeventdomain.EventTypeInvoiceIssued,
		EventKey:  "INV-202403-07-CR-001",
		DedupeKey: "invoice.issued:INV-202403-07-CR-001",
		Payload:   map[string]any{"grand_total": "3600.00"},
		CreatedAt: time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, pub.Publish(context.Background(), event))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "INV-202403-07-CR-001", string(msg.Key))

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, "invoice.issued", body["type"])
	assert.Equal(t, "42", body["id"])
	assert.Equal(t, "3600.00", body["data"].(map[string]any)["grand_total"])
}

func TestKafkaPublisherReturnsWriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	pub := NewKafkaPublisherWithWriter(w, zap.NewNop())

	err := pub.Publish(context.Background(), billingeventdomain.BillingEvent{ID: 1, EventKey: "k"})
	assert.EqualError(t, err, "broker down")
}

func TestKafkaPublisherCarriesTraceContext(t *testing.T) {
	previous := otel.GetTracerProvider()
	provider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(provider)
	tracing.SetPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})

	w := &fakeWriter{}
	pub := NewKafkaPublisherWithWriter(w, zap.NewNop())

	ctx, run := provider.Tracer("test").Start(context.Background(), "billing.run")
	defer run.End()
	require.NoError(t, pub.Publish(ctx, billingeventdomain.BillingEvent{
		ID:        7,
		EventType: billingeventdomain.EventTypeInvoiceIssued,
		EventKey:  "INV-202403-07-CR-001",
		DedupeKey: "invoice.issued:INV-202403-07-CR-001",
	}))
	require.Len(t, w.msgs, 1)

	headers := w.msgs[0].Headers
	carrier := tracing.KafkaHeaderCarrier{Headers: &headers}
	assert.Equal(t, "invoice.issued", carrier.Get("event_type"))
	assert.Equal(t, "invoice.issued:INV-202403-07-CR-001", carrier.Get("dedupe_key"))

	traceparent := carrier.Get("traceparent")
	require.NotEmpty(t, traceparent)
	assert.Contains(t, traceparent, run.SpanContext().TraceID().String())

	remote := tracing.ExtractContext(context.Background(), carrier)
	assert.Equal(t, run.SpanContext().TraceID(), trace.SpanContextFromContext(remote).TraceID())
}

package tracing

import (
	"errors"
	"testing"

	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsPayerIdentity(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("customer_code", "CR-001"),
		attribute.String("invoice_number", "INV-202403-07-CR-001"),
		attribute.String("customer.iban", "TR00"),
		attribute.String("customer_tax_number", "1234567890"),
		attribute.String("db.dsn", "host=db password=x"),
		attribute.String("Authorization", "Bearer x"),
	)

	keys := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		keys = append(keys, string(attr.Key))
	}
	assert.Equal(t, []string{"customer_code", "invoice_number"}, keys)
}

func TestSafeErrorKeepsOnlyType(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	assert.EqualError(t, SafeError(errors.New("customer CR-001 iban TR00")), "*errors.errorString")
}

func TestKafkaHeaderCarrierReplacesExistingKey(t *testing.T) {
	headers := []kafka.Header{{Key: "event_type", Value: []byte("invoice.issued")}}
	carrier := KafkaHeaderCarrier{Headers: &headers}

	carrier.Set("traceparent", "a")
	carrier.Set("traceparent", "b")

	assert.Equal(t, "b", carrier.Get("traceparent"))
	assert.Equal(t, "", carrier.Get("tracestate"))
	assert.Equal(t, []string{"event_type", "traceparent"}, carrier.Keys())
	assert.Len(t, headers, 2)
}

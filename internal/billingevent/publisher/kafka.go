package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafka "github.com/segmentio/kafka-go"
	billingeventdomain "github.com/smallbiznis/portbilling/internal/billingevent/domain"
	"github.com/smallbiznis/portbilling/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Writer is the subset of kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type envelope struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Key       string         `json:"key"`
	CreatedAt time.Time      `json:"created_at"`
	Data      map[string]any `json:"data"`
}

// KafkaPublisher writes outbox events keyed by invoice number so every
// event of one invoice lands on the same partition.
type KafkaPublisher struct {
	writer Writer
	log    *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return NewKafkaPublisherWithWriter(w, log)
}

func NewKafkaPublisherWithWriter(w Writer, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, log: log.Named("billingevent.kafka")}
}

// Publish writes one event. The relay's trace context rides in the message
// headers next to event_type and dedupe_key.
func (p *KafkaPublisher) Publish(ctx context.Context, event billingeventdomain.BillingEvent) error {
	ctx, span := tracing.StartSpan(ctx, "billingevent.publish",
		attribute.String("messaging.system", "kafka"),
		attribute.String("event_type", event.EventType),
		attribute.String("event_key", event.EventKey),
	)
	defer span.End()

	body, err := json.Marshal(envelope{
		ID:        event.ID.String(),
		Type:      event.EventType,
		Key:       event.EventKey,
		CreatedAt: event.CreatedAt.UTC(),
		Data:      event.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal billing event %s: %w", event.ID, err)
	}

	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(event.EventType)},
		{Key: "dedupe_key", Value: []byte(event.DedupeKey)},
	}
	tracing.InjectContext(ctx, tracing.KafkaHeaderCarrier{Headers: &headers})

	msg := kafka.Message{
		Key:     []byte(event.EventKey),
		Value:   body,
		Headers: headers,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "kafka write")
		p.log.Warn("kafka write failed", zap.String("event_id", event.ID.String()), zap.Error(err))
		return err
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

package publisher

import (
	"context"

	billingeventdomain "github.com/smallbiznis/portbilling/internal/billingevent/domain"
	"go.uber.org/zap"
)

// LogPublisher is used when no broker is configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log.Named("billingevent.log")}
}

func (p *LogPublisher) Publish(ctx context.Context, event billingeventdomain.BillingEvent) error {
	p.log.Info("billing_event.published",
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", event.EventType),
		zap.String("event_key", event.EventKey),
		zap.Any("payload", map[string]any(event.Payload)),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

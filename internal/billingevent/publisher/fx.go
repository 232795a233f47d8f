package publisher

import (
	"context"

	billingeventdomain "github.com/smallbiznis/portbilling/internal/billingevent/domain"
	"github.com/smallbiznis/portbilling/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// New picks Kafka when brokers are configured.
func New(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) billingeventdomain.Publisher {
	var pub billingeventdomain.Publisher
	if cfg.Kafka.Enabled() {
		log.Info("billingevent.publisher", zap.String("mode", "kafka"), zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
		pub = NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
	} else {
		log.Info("billingevent.publisher", zap.String("mode", "log"))
		pub = NewLogPublisher(log)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return pub.Close()
		},
	})
	return pub
}

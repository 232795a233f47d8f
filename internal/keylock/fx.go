package keylock

import (
	"context"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/portbilling/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("keylock",
	fx.Provide(NewRedisClient),
	fx.Provide(New),
)

// NewRedisClient returns nil when no Redis address is configured.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	if !cfg.Redis.Enabled() {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.Redis.Addr),
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

// New always serializes in-process and adds the Redis lock when a client exists.
func New(client *redis.Client, holder *config.BillingConfigHolder, log *zap.Logger) Locker {
	local := NewLocal()
	if client == nil {
		log.Info("keylock.mode", zap.String("mode", "local"))
		return local
	}
	log.Info("keylock.mode", zap.String("mode", "redis"))
	return Chain{local, NewRedis(client, func() time.Duration { return holder.Get().LockTTL }, log)}
}

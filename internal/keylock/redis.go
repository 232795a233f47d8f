package keylock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const (
	redisKeyPrefix    = "portbill:lock:"
	redisPollInterval = 50 * time.Millisecond
	redisReleaseLimit = 2 * time.Second
)

// Redis is a SET NX lock shared by every process pointed at the same server.
type Redis struct {
	client *redis.Client
	script *redis.Script
	ttl    func() time.Duration
	log    *zap.Logger
}

// NewRedis builds a Redis lock; ttl is read on every acquire so hot reloads apply.
func NewRedis(client *redis.Client, ttl func() time.Duration, log *zap.Logger) *Redis {
	if client == nil {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{
		client: client,
		script: redis.NewScript(lockReleaseScript),
		ttl:    ttl,
		log:    log.Named("keylock.redis"),
	}
}

// TryLock makes a single attempt and returns the owner token on success.
func (l *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, redisKeyPrefix+key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	ttl := 30 * time.Second
	if l != nil && l.ttl != nil {
		if v := l.ttl(); v > 0 {
			ttl = v
		}
	}

	ticker := time.NewTicker(redisPollInterval)
	defer ticker.Stop()
	for {
		token, ok, err := l.TryLock(ctx, key, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return l.releaser(key, token, ttl), nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrLockBusy, ctx.Err())
		case <-ticker.C:
		}
	}
}

// releaser drops the lock; a failed release leaves the key held until ttl.
func (l *Redis) releaser(key, token string, ttl time.Duration) Release {
	return func() {
		if err := l.release(key, token); err != nil {
			l.log.Warn("keylock.release_failed",
				zap.String("key", key),
				zap.Duration("held_until_ttl", ttl),
				zap.Error(err),
			)
		}
	}
}

func (l *Redis) release(key, token string) error {
	if l == nil || l.client == nil || key == "" || token == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisReleaseLimit)
	defer cancel()
	return l.script.Run(ctx, l.client, []string{redisKeyPrefix + key}, token).Err()
}

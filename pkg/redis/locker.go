package redis

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/subsync/pkg/logger"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a subscription.Locker shared by every process talking to the
// same Redis. Locks expire after the configured TTL.
type Locker struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
	prefix string
	logger *slog.Logger
}

var _ subscription.Locker = (*Locker)(nil)

// NewLocker creates a Locker. Zero lock settings in cfg fall back to a 30s
// TTL, 50ms polling and the "subsync:lock:" prefix.
func NewLocker(client redis.UniversalClient, cfg Config, log *slog.Logger) *Locker {
	if client == nil {
		panic("redis: client is required")
	}
	l := &Locker{
		client: client,
		ttl:    cfg.LockTTL,
		retry:  cfg.LockRetryInterval,
		prefix: cfg.LockPrefix,
		logger: log,
	}
	if l.ttl <= 0 {
		l.ttl = 30 * time.Second
	}
	if l.retry <= 0 {
		l.retry = 50 * time.Millisecond
	}
	if l.prefix == "" {
		l.prefix = "subsync:lock:"
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Lock polls SET NX until the key is free or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.unlock(key, redisKey, token) })
	}, nil
}

func (l *Locker) unlock(key, redisKey, token string) {
	if err := l.release(redisKey, token); err != nil {
		l.logger.LogAttrs(context.Background(), slog.LevelWarn, "release subscription lock",
			logger.Component("redis_locker"),
			slog.String("key", key),
			logger.Error(err),
		)
	}
}

func (l *Locker) release(key, token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

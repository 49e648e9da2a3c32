package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// Redis is a distributed try-lock. A holder that never releases loses the key after ttl.
type Redis struct {
	client *redislock.Client
	prefix string
	ttl    time.Duration
	log    *slog.Logger
}

func NewRedis(rdb *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{
		client: redislock.New(rdb),
		prefix: prefix,
		ttl:    ttl,
		log:    slog.Default(),
	}
}

func (r *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	l, err := r.client.Obtain(ctx, r.prefix+key, r.ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrHeld
		}

		return nil, fmt.Errorf("obtain lock: %w", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			err := l.Release(ctx)
			if err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				r.log.Warn("failed to release lock", "key", key, "error", err)
			}
		})
	}, nil
}

package otc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Redis struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(rdb *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *Redis) CreateCode(ctx context.Context, e Entry) (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("serialize entry: %w", err)
	}

	for range 3 {
		code := generateCode()
		ok, err := r.rdb.SetNX(ctx, r.prefix+code, b, r.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("store code in redis: %w", err)
		}
		if ok {
			return code, nil
		}
	}

	return "", errors.New("failed to generate unique code")
}

func (r *Redis) RedeemCode(ctx context.Context, code string) (Entry, error) {
	val, err := r.rdb.GetDel(ctx, r.prefix+code).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, ErrCodeNotFound
		}

		return Entry{}, fmt.Errorf("retrieve code from redis: %w", err)
	}

	var e Entry
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return Entry{}, fmt.Errorf("deserialize code entry: %w", err)
	}

	return e, nil
}

package store

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis is a Store backed by a Redis instance. Every operation that fails
// against Redis is served from an embedded in-process fallback instead of
// failing the caller.
type Redis struct {
	client   *redis.Client
	fallback *Memory
	logger   zerolog.Logger
	degraded atomic.Bool
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

func NewRedis(opts RedisOptions, logger zerolog.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &Redis{
		client:   client,
		fallback: NewMemory(),
		logger:   logger.With().Str("component", "store.redis").Logger(),
	}
}

// Degraded reports whether the most recent Redis operation had to fall
// back to the in-process store.
func (r *Redis) Degraded() bool {
	return r.degraded.Load()
}

// Close releases the underlying Redis connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.fellBack("set", key, err)
		return r.fallback.Set(ctx, key, value, ttl)
	}
	r.recovered()
	// Mirror into the fallback so a later Redis outage still sees the entry.
	_ = r.fallback.Set(ctx, key, value, ttl)
	return nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.recovered()
			_ = r.fallback.Delete(ctx, key)
			return nil, false, nil
		}
		r.fellBack("get", key, err)
		return r.fallback.Get(ctx, key)
	}
	r.recovered()
	return value, true, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.fellBack("delete", key, err)
	} else {
		r.recovered()
	}
	return r.fallback.Delete(ctx, key)
}

func (r *Redis) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		r.fellBack("list", prefix, err)
		return r.fallback.ListKeys(ctx, prefix)
	}
	r.recovered()
	return keys, nil
}

func (r *Redis) fellBack(op, key string, err error) {
	if r.degraded.CompareAndSwap(false, true) {
		r.logger.Warn().Err(err).Str("op", op).Str("key", key).
			Msg("redis unavailable, serving from in-process fallback")
	}
}

func (r *Redis) recovered() {
	if r.degraded.CompareAndSwap(true, false) {
		r.logger.Info().Msg("redis reachable again")
	}
}

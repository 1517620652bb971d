package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
)

var incrementScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

var compareAndSwapScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == ARGV[1] then
  redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
  return 1
end
return 0
`)

// RedisCache implementa Cache sobre go-redis con reintentos explicitos.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	policy BackoffPolicy
}

func NewRedisCache(client redis.UniversalClient, prefix string, policy BackoffPolicy) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: prefix,
		policy: policy,
	}
}

func (c *RedisCache) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if c == nil || c.client == nil {
		return 0, fmt.Errorf("%w: redis client not configured", ErrUnavailable)
	}
	return retry(ctx, c.policy, func() (int64, error) {
		n, err := incrementScript.Run(ctx, c.client, []string{c.prefix + key}, ttlMillis(ttl)).Int64()
		if err != nil {
			return 0, classify(ctx, err)
		}
		return n, nil
	})
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("%w: redis client not configured", ErrUnavailable)
	}
	return retry(ctx, c.policy, func() ([]byte, error) {
		val, err := c.client.Get(ctx, c.prefix+key).Bytes()
		if err != nil {
			return nil, classify(ctx, err)
		}
		return val, nil
	})
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("%w: redis client not configured", ErrUnavailable)
	}
	_, err := retry(ctx, c.policy, func() (struct{}, error) {
		if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
			return struct{}{}, classify(ctx, err)
		}
		return struct{}{}, nil
	})
	return err
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("%w: redis client not configured", ErrUnavailable)
	}
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, c.prefix+k)
	}
	_, err := retry(ctx, c.policy, func() (struct{}, error) {
		if err := c.client.Del(ctx, full...).Err(); err != nil {
			return struct{}{}, classify(ctx, err)
		}
		return struct{}{}, nil
	})
	return err
}

func (c *RedisCache) CompareAndSwap(ctx context.Context, key string, old, value []byte, ttl time.Duration) (bool, error) {
	if c == nil || c.client == nil {
		return false, fmt.Errorf("%w: redis client not configured", ErrUnavailable)
	}
	return retry(ctx, c.policy, func() (bool, error) {
		n, err := compareAndSwapScript.Run(ctx, c.client, []string{c.prefix + key}, string(old), string(value), ttlMillis(ttl)).Int64()
		if err != nil {
			return false, classify(ctx, err)
		}
		return n == 1, nil
	})
}

func (c *RedisCache) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("%w: redis client not configured", ErrUnavailable)
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// classify traduce errores de redis. Miss y cancelacion no se reintentan.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, redis.Nil) {
		return backoff.Permanent(ErrMiss)
	}
	wrapped := fmt.Errorf("%w: %w", ErrUnavailable, err)
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return backoff.Permanent(wrapped)
	}
	return wrapped
}

func ttlMillis(ttl time.Duration) int64 {
	ms := ttl.Milliseconds()
	if ms <= 0 {
		return 1000
	}
	return ms
}

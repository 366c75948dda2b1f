package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// keyspace lays out the Redis keys for one idempotent ledger request. The hash
// tag keeps the cached response and its in-flight hold in one cluster slot so a
// single MULTI can write the response and drop the hold.
type keyspace string

const idemKeys keyspace = "ledger:idem:"

func (k keyspace) response(key string) string { return string(k) + "{" + key + "}" }
func (k keyspace) hold(key string) string     { return string(k) + "{" + key + "}:hold" }

// IdempotencyCache implements ports.IdempotencyCache. It only speeds up
// replays; idempotency_logs in Postgres stays the source of truth.
type IdempotencyCache struct {
	client *goredis.Client
}

func NewIdempotencyCache(client *goredis.Client) *IdempotencyCache {
	return &IdempotencyCache{client: client}
}

// Get returns the committed response for key, or nil when none is cached.
func (c *IdempotencyCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, idemKeys.response(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis idempotency get: %w", err)
	}
	return val, nil
}

// Set publishes the committed response and frees the request's in-flight hold
// in one transaction, so a retry never waits on a request that already finished.
func (c *IdempotencyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, idemKeys.response(key), value, ttl)
		pipe.Del(ctx, idemKeys.hold(key))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis idempotency set: %w", err)
	}
	return nil
}

// InFlightGuard implements ports.InFlightGuard with SET NX on the hold key.
// The TTL bounds how long a crashed holder can block retries.
type InFlightGuard struct {
	client *goredis.Client
}

func NewInFlightGuard(client *goredis.Client) *InFlightGuard {
	return &InFlightGuard{client: client}
}

// Acquire reports whether key was free and is now held by the caller.
func (g *InFlightGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	result, err := g.client.SetArgs(ctx, idemKeys.hold(key), time.Now().UnixMilli(), goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis in-flight acquire: %w", err)
	}
	return result == "OK", nil
}

// Release frees key so a later retry can run and replay from the log.
func (g *InFlightGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, idemKeys.hold(key)).Err(); err != nil {
		return fmt.Errorf("redis in-flight release: %w", err)
	}
	return nil
}

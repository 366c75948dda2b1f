package redis

import (
	"context"
	"fmt"
	"time"

	"surplus-ledger/config"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewClient creates a Redis client and verifies connectivity.
func NewClient(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	log.Info().
		Str("addr", cfg.Addr()).
		Int("db", cfg.DB).
		Msg("Redis connection established")

	return client, nil
}

// WriteCheck reports Redis on GET /health. It writes a short-lived key instead
// of a PING because the in-flight guard needs a writable primary, and a
// failed-over read-only replica still answers PING.
type WriteCheck struct {
	client  *goredis.Client
	timeout time.Duration
}

func NewWriteCheck(client *goredis.Client, timeout time.Duration) *WriteCheck {
	return &WriteCheck{client: client, timeout: timeout}
}

func (c *WriteCheck) Name() string { return "redis" }

func (c *WriteCheck) Ping(ctx context.Context) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := c.client.Set(ctx, "ledger:health", time.Now().Unix(), 30*time.Second).Err(); err != nil {
		return fmt.Errorf("redis write: %w", err)
	}
	return nil
}

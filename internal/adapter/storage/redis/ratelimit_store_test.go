package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitStore_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRateLimitStore(client)
	clock := time.Unix(1_700_000_040, 0)
	store.now = func() time.Time { return clock }
	ctx := context.Background()

	t.Run("allows requests within limit", func(t *testing.T) {
		for i := int64(1); i <= 3; i++ {
			result, err := store.Allow(ctx, "user-1:wallet", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, result.Allowed, "request %d should be allowed", i)
			assert.Equal(t, int64(3), result.Limit)
			assert.Equal(t, 3-i, result.Remaining)
		}
	})

	t.Run("blocks requests over limit", func(t *testing.T) {
		result, err := store.Allow(ctx, "user-1:wallet", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, result.Allowed)
		assert.Equal(t, int64(0), result.Remaining)
	})

	t.Run("different keys are independent", func(t *testing.T) {
		result, err := store.Allow(ctx, "user-2:wallet", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, int64(4), result.Remaining)
	})

	t.Run("next window starts fresh", func(t *testing.T) {
		clock = clock.Add(time.Minute)
		result, err := store.Allow(ctx, "user-1:wallet", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, int64(2), result.Remaining)
	})

	t.Run("reports window end and sets a TTL", func(t *testing.T) {
		result, err := store.Allow(ctx, "user-3:admin", 10, time.Minute)
		require.NoError(t, err)
		windowID := clock.Unix() / 60
		assert.Equal(t, (windowID+1)*60, result.ResetAt)

		ttl := mr.TTL(fmtKey("user-3:admin", windowID))
		assert.Greater(t, ttl, time.Duration(0))
	})
}

func fmtKey(key string, windowID int64) string {
	return "ledger:ratelimit:" + key + ":" + strconv.FormatInt(windowID, 10)
}

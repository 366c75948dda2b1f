package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"surplus-ledger/config"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	s := miniredis.RunT(t)
	cfg := config.RedisConfig{Host: s.Host(), Port: mustPort(t, s)}

	client, err := NewClient(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()

	hc := NewWriteCheck(client, time.Second)
	assert.Equal(t, "redis", hc.Name())
	assert.NoError(t, hc.Ping(context.Background()))
	assert.True(t, s.Exists("ledger:health"))

	s.Close()
	assert.Error(t, hc.Ping(context.Background()))
}

func TestWriteCheck_ReadOnlyReplica(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr(), MaxRetries: -1})
	defer client.Close()

	s.SetError("READONLY You can't write against a read only replica.")
	err := NewWriteCheck(client, time.Second).Ping(context.Background())
	assert.ErrorContains(t, err, "READONLY")
}

func TestNewClient_Unreachable(t *testing.T) {
	s := miniredis.RunT(t)
	cfg := config.RedisConfig{Host: s.Host(), Port: mustPort(t, s)}
	s.Close()

	client, err := NewClient(context.Background(), cfg, zerolog.Nop())
	assert.Nil(t, client)
	assert.ErrorContains(t, err, "pinging redis")
}

func mustPort(t *testing.T, s *miniredis.Miniredis) int {
	t.Helper()
	port, err := strconv.Atoi(s.Port())
	require.NoError(t, err)
	return port
}

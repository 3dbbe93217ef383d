package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisadapter "github.com/rendezvous-io/rendezvous/pkg/adapters/redis"
	"github.com/rendezvous-io/rendezvous/pkg/domain"
	"github.com/rendezvous-io/rendezvous/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, opts ...redisadapter.Option) (*miniredis.Miniredis, *redisadapter.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err, "Failed to start miniredis")
	t.Cleanup(mr.Close)

	rdb := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	return mr, redisadapter.NewFromClient(rdb, opts...)
}

func TestRedisClient_Contract(t *testing.T) {
	_, client := setup(t)
	ports.RunStateClientContract(t, client)
}

func TestRedisClient_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	mr, client := setup(t)

	require.NoError(t, client.Set(ctx, "conn:ws-1", []byte("{}"), 30*time.Second))
	require.NoError(t, client.AddToSet(ctx, "sess:s1:connections", "ws-1", 30*time.Second))

	mr.FastForward(31 * time.Second)

	_, err := client.Get(ctx, "conn:ws-1")
	assert.ErrorIs(t, err, domain.ErrKeyNotFound, "expired key must not be served")

	members, err := client.Members(ctx, "sess:s1:connections")
	require.NoError(t, err)
	assert.Empty(t, members, "expired index must not be served")
}

func TestRedisClient_ExpireExtends(t *testing.T) {
	ctx := context.Background()
	mr, client := setup(t)

	require.NoError(t, client.Set(ctx, "conn:ws-1", []byte("{}"), 10*time.Second))
	ok, err := client.Expire(ctx, "conn:ws-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(30 * time.Second)

	_, err = client.Get(ctx, "conn:ws-1")
	assert.NoError(t, err, "renewed key must survive the original TTL")
}

func TestRedisClient_Prefix(t *testing.T) {
	ctx := context.Background()
	mr, client := setup(t, redisadapter.WithPrefix("app:"))

	require.NoError(t, client.Set(ctx, "session:s1", []byte("v"), 0))
	assert.True(t, mr.Exists("app:session:s1"), "keys must be namespaced under the prefix")
}

func TestRedisClient_StoreUnavailable(t *testing.T) {
	ctx := context.Background()
	mr, client := setup(t)
	mr.Close()

	_, err := client.Get(ctx, "conn:ws-1")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	err = client.Set(ctx, "conn:ws-1", []byte("{}"), time.Minute)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

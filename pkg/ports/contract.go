package ports

import (
	"context"
	"testing"
	"time"

	"github.com/rendezvous-io/rendezvous/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateClientContract runs a suite of tests to verify that a StateClient
// implementation adheres to the defined interface contract.
//
// TTL expiry is deliberately not exercised here because clock control is
// adapter-specific; each adapter covers it in its own tests.
func RunStateClientContract(t *testing.T, client StateClient) {
	ctx := context.Background()
	key := "contract-" + time.Now().Format("20060102150405")

	t.Run("Set and Get", func(t *testing.T) {
		err := client.Set(ctx, key, []byte(`{"hello":"world"}`), time.Minute)
		require.NoError(t, err, "Set should not return error")

		val, err := client.Get(ctx, key)
		require.NoError(t, err, "Get should not return error")
		assert.Equal(t, []byte(`{"hello":"world"}`), val)
	})

	t.Run("Get Missing", func(t *testing.T) {
		_, err := client.Get(ctx, "missing-"+key)
		assert.ErrorIs(t, err, domain.ErrKeyNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, key, []byte("x"), time.Minute))
		require.NoError(t, client.Delete(ctx, key))

		_, err := client.Get(ctx, key)
		assert.ErrorIs(t, err, domain.ErrKeyNotFound, "Get after Delete should miss")

		// Deleting again is harmless.
		assert.NoError(t, client.Delete(ctx, key))
	})

	t.Run("Set Operations", func(t *testing.T) {
		setKey := key + ":members"
		require.NoError(t, client.AddToSet(ctx, setKey, "a", time.Minute))
		require.NoError(t, client.AddToSet(ctx, setKey, "b", time.Minute))
		// Re-adding an existing member is idempotent.
		require.NoError(t, client.AddToSet(ctx, setKey, "a", time.Minute))

		members, err := client.Members(ctx, setKey)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "b"}, members)

		require.NoError(t, client.RemoveFromSet(ctx, setKey, "a"))
		members, err = client.Members(ctx, setKey)
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, members)

		// Removing a missing member is harmless.
		assert.NoError(t, client.RemoveFromSet(ctx, setKey, "zzz"))
	})

	t.Run("Members of Missing Set", func(t *testing.T) {
		members, err := client.Members(ctx, "missing-set-"+key)
		require.NoError(t, err)
		assert.Empty(t, members)
	})

	t.Run("Expire", func(t *testing.T) {
		expKey := key + ":exp"
		require.NoError(t, client.Set(ctx, expKey, []byte("x"), time.Minute))

		ok, err := client.Expire(ctx, expKey, time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = client.Expire(ctx, "missing-"+expKey, time.Hour)
		require.NoError(t, err)
		assert.False(t, ok, "Expire on a missing key should report false")
	})
}

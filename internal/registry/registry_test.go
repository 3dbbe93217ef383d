package registry_test

import (
	"context"
	"testing"
	"time"

	"github.com/rendezvous-io/rendezvous/pkg/adapters/memory"
	"github.com/rendezvous-io/rendezvous/internal/registry"
	"github.com/rendezvous-io/rendezvous/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T, opts ...registry.Option) (*memory.Client, *registry.Registry) {
	t.Helper()
	client := memory.New()
	return client, registry.New(client, opts...)
}

func register(t *testing.T, r *registry.Registry, websocketID, sessionID, agentType, pillar string) {
	t.Helper()
	err := r.Register(context.Background(), &domain.ConnectionRecord{
		WebsocketID: websocketID,
		SessionID:   sessionID,
		AgentType:   agentType,
		Pillar:      pillar,
	})
	require.NoError(t, err)
}

func TestRegister_Get(t *testing.T) {
	ctx := context.Background()
	_, r := newRegistry(t)

	register(t, r, "ws-1", "sess-1", "guide", "")

	rec, err := r.Get(ctx, "ws-1", "")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "sess-1", rec.SessionID)
	assert.Equal(t, "guide", rec.AgentType)
	assert.False(t, rec.RegisteredAt.IsZero())
	assert.False(t, rec.LastSeenAt.IsZero())
}

func TestGet_Miss(t *testing.T) {
	ctx := context.Background()
	_, r := newRegistry(t)

	rec, err := r.Get(ctx, "ws-unknown", "")
	require.NoError(t, err, "a miss is not an error")
	assert.Nil(t, rec)
}

func TestRegister_Validation(t *testing.T) {
	ctx := context.Background()
	_, r := newRegistry(t)

	err := r.Register(ctx, &domain.ConnectionRecord{WebsocketID: "ws-1"})
	assert.Error(t, err, "session id is mandatory")
}

func TestRegister_Idempotent(t *testing.T) {
	ctx := context.Background()
	_, r := newRegistry(t)

	register(t, r, "ws-1", "sess-1", "guide", "")
	register(t, r, "ws-1", "sess-1", "liaison", "content")

	rec, err := r.Get(ctx, "ws-1", "")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "liaison", rec.AgentType, "last write wins")

	conns, err := r.SessionConnections(ctx, "sess-1", domain.ConnectionFilter{})
	require.NoError(t, err)
	assert.Len(t, conns, 1, "re-registration must not duplicate index entries")
}

func TestSessionConnections_Filter(t *testing.T) {
	ctx := context.Background()
	_, r := newRegistry(t)

	register(t, r, "ws-a", "sess-1", "guide", "")
	register(t, r, "ws-b", "sess-1", "liaison", "content")
	register(t, r, "ws-c", "sess-2", "liaison", "insights")

	liaison, err := r.SessionConnections(ctx, "sess-1", domain.ConnectionFilter{AgentType: "liaison"})
	require.NoError(t, err)
	require.Len(t, liaison, 1)
	assert.Equal(t, "ws-b", liaison[0].WebsocketID)

	all, err := r.SessionConnections(ctx, "sess-1", domain.ConnectionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byPillar, err := r.SessionConnections(ctx, "sess-1", domain.ConnectionFilter{Pillar: "content"})
	require.NoError(t, err)
	require.Len(t, byPillar, 1)
	assert.Equal(t, "ws-b", byPillar[0].WebsocketID)
}

func TestSessionConnections_SelfHealsStaleIndex(t *testing.T) {
	ctx := context.Background()
	client, r := newRegistry(t)

	register(t, r, "ws-a", "sess-1", "guide", "")
	register(t, r, "ws-b", "sess-1", "liaison", "content")

	// Simulate a primary record lost behind the index (instance crash between
	// the two writes, or TTL eviction racing an index read).
	require.NoError(t, client.Delete(ctx, "conn:ws-a"))

	conns, err := r.SessionConnections(ctx, "sess-1", domain.ConnectionFilter{})
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, "ws-b", conns[0].WebsocketID)

	// The dangling entry was evicted, not just skipped.
	members, err := client.Members(ctx, "sess:sess-1:connections")
	require.NoError(t, err)
	assert.Equal(t, []string{"ws-b"}, members)
}

func TestGet_SessionHintPrunesStaleEntry(t *testing.T) {
	ctx := context.Background()
	client, r := newRegistry(t)

	register(t, r, "ws-a", "sess-1", "guide", "")
	require.NoError(t, client.Delete(ctx, "conn:ws-a"))

	rec, err := r.Get(ctx, "ws-a", "sess-1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	members, err := client.Members(ctx, "sess:sess-1:connections")
	require.NoError(t, err)
	assert.Empty(t, members, "hint-assisted miss should prune the index")
}

func TestUnregister(t *testing.T) {
	ctx := context.Background()
	_, r := newRegistry(t)

	register(t, r, "ws-1", "sess-1", "guide", "")

	require.NoError(t, r.Unregister(ctx, "ws-1"))

	rec, err := r.Get(ctx, "ws-1", "")
	require.NoError(t, err)
	assert.Nil(t, rec)

	// Unregistering twice is harmless.
	assert.NoError(t, r.Unregister(ctx, "ws-1"))

	conns, err := r.SessionConnections(ctx, "sess-1", domain.ConnectionFilter{})
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestRenew(t *testing.T) {
	ctx := context.Background()

	now := time.Now()
	client := memory.New(memory.WithClock(func() time.Time { return now }))
	r := registry.New(client,
		registry.WithTTL(time.Minute),
		registry.WithClock(func() time.Time { return now }),
	)

	require.NoError(t, r.Register(ctx, &domain.ConnectionRecord{
		WebsocketID: "ws-1",
		SessionID:   "sess-1",
		AgentType:   "guide",
	}))

	before, err := r.Get(ctx, "ws-1", "")
	require.NoError(t, err)

	// Heartbeat 40s in keeps the connection alive past the original minute.
	now = now.Add(40 * time.Second)
	ok, err := r.Renew(ctx, "ws-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(50 * time.Second)
	rec, err := r.Get(ctx, "ws-1", "")
	require.NoError(t, err)
	require.NotNil(t, rec, "renewed connection must outlive the original TTL")
	assert.True(t, rec.LastSeenAt.After(before.LastSeenAt))
	assert.Equal(t, before.RegisteredAt, rec.RegisteredAt, "renewal must not rewrite RegisteredAt")
}

func TestRenew_MissingConnection(t *testing.T) {
	ctx := context.Background()
	_, r := newRegistry(t)

	ok, err := r.Renew(ctx, "ws-ghost", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpiredConnectionsNotServed(t *testing.T) {
	ctx := context.Background()

	now := time.Now()
	client := memory.New(memory.WithClock(func() time.Time { return now }))
	r := registry.New(client,
		registry.WithTTL(30*time.Second),
		registry.WithClock(func() time.Time { return now }),
	)

	require.NoError(t, r.Register(ctx, &domain.ConnectionRecord{
		WebsocketID: "ws-1",
		SessionID:   "sess-1",
	}))

	now = now.Add(31 * time.Second)

	rec, err := r.Get(ctx, "ws-1", "")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

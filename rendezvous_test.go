package rendezvous_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rendezvous "github.com/rendezvous-io/rendezvous"
	redisAdapter "github.com/rendezvous-io/rendezvous/pkg/adapters/redis"
	"github.com/rendezvous-io/rendezvous/pkg/domain"
)

func setup(t *testing.T) (*rendezvous.Coordinator, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redisAdapter.New(mr.Addr(), "", 0)
	t.Cleanup(func() { client.Close() })

	return rendezvous.New(client), mr
}

func TestConnectionDiscovery(t *testing.T) {
	coord, _ := setup(t)
	ctx := context.Background()

	ok := coord.RegisterConnection(ctx, rendezvous.RegisterParams{
		WebsocketID: "ws-1",
		SessionID:   "sess-1",
		AgentType:   "guide",
	})
	require.True(t, ok)

	rec, err := coord.GetConnection(ctx, "ws-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "sess-1", rec.SessionID)
	assert.Equal(t, "guide", rec.AgentType)
}

// Any instance sharing the state store can answer for a connection another
// instance registered.
func TestCrossInstanceVisibility(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	clientA := redisAdapter.New(mr.Addr(), "", 0)
	t.Cleanup(func() { clientA.Close() })
	clientB := redisAdapter.New(mr.Addr(), "", 0)
	t.Cleanup(func() { clientB.Close() })

	instanceA := rendezvous.New(clientA)
	instanceB := rendezvous.New(clientB)
	ctx := context.Background()

	require.True(t, instanceA.RegisterConnection(ctx, rendezvous.RegisterParams{
		WebsocketID: "ws-1",
		SessionID:   "sess-1",
	}))

	rec, err := instanceB.GetConnection(ctx, "ws-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "sess-1", rec.SessionID)

	require.True(t, instanceB.UnregisterConnection(ctx, "ws-1"))
	rec, err = instanceA.GetConnection(ctx, "ws-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestTenantIsolation(t *testing.T) {
	coord, _ := setup(t)
	ctx := context.Background()

	session, err := coord.CreateSession(ctx, rendezvous.CreateSessionParams{
		UserID:   "user-1",
		TenantID: "tenant-a",
	})
	require.NoError(t, err)

	owner := &domain.Principal{UserID: "user-1", TenantID: "tenant-a"}
	outsider := &domain.Principal{UserID: "user-2", TenantID: "tenant-b"}

	got, err := coord.GetSession(ctx, session.SessionID, owner)
	require.NoError(t, err)
	require.NotNil(t, got)

	_, err = coord.GetSession(ctx, session.SessionID, outsider)
	assert.ErrorIs(t, err, domain.ErrTenantIsolation)

	// The denial must not disturb the record.
	got, err = coord.GetSession(ctx, session.SessionID, owner)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestCrossTenantGrant(t *testing.T) {
	coord, _ := setup(t)
	ctx := context.Background()

	session, err := coord.CreateSession(ctx, rendezvous.CreateSessionParams{
		UserID:   "user-1",
		TenantID: "tenant-a",
	})
	require.NoError(t, err)

	granted := &domain.Principal{
		UserID:            "auditor",
		TenantID:          "tenant-b",
		CrossTenantGrants: []string{"tenant-a"},
	}
	got, err := coord.GetSession(ctx, session.SessionID, granted)
	require.NoError(t, err)
	require.NotNil(t, got)

	wildcarded := &domain.Principal{
		UserID:            "auditor",
		TenantID:          "tenant-b",
		CrossTenantGrants: []string{"*"},
	}
	_, err = coord.GetSession(ctx, session.SessionID, wildcarded)
	assert.ErrorIs(t, err, domain.ErrTenantIsolation)
}

func TestSessionConnectionFanout(t *testing.T) {
	coord, _ := setup(t)
	ctx := context.Background()

	for _, reg := range []rendezvous.RegisterParams{
		{WebsocketID: "ws-1", SessionID: "sess-1", AgentType: "guide", Pillar: "wellness"},
		{WebsocketID: "ws-2", SessionID: "sess-1", AgentType: "liaison", Pillar: "wellness"},
		{WebsocketID: "ws-3", SessionID: "sess-1", AgentType: "liaison", Pillar: "finance"},
		{WebsocketID: "ws-4", SessionID: "sess-2", AgentType: "liaison", Pillar: "wellness"},
	} {
		require.True(t, coord.RegisterConnection(ctx, reg))
	}

	recs, err := coord.GetSessionConnections(ctx, "sess-1", domain.ConnectionFilter{AgentType: "liaison"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, "liaison", rec.AgentType)
		assert.Equal(t, "sess-1", rec.SessionID)
	}

	recs, err = coord.GetSessionConnections(ctx, "sess-1", domain.ConnectionFilter{AgentType: "liaison", Pillar: "wellness"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "ws-2", recs[0].WebsocketID)
}

func TestUnregisterIdempotent(t *testing.T) {
	coord, _ := setup(t)
	ctx := context.Background()

	require.True(t, coord.RegisterConnection(ctx, rendezvous.RegisterParams{
		WebsocketID: "ws-1",
		SessionID:   "sess-1",
	}))

	assert.True(t, coord.UnregisterConnection(ctx, "ws-1"))
	assert.True(t, coord.UnregisterConnection(ctx, "ws-1"))
	assert.True(t, coord.UnregisterConnection(ctx, "never-registered"))
}

func TestConnectionExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redisAdapter.New(mr.Addr(), "", 0)
	t.Cleanup(func() { client.Close() })

	coord := rendezvous.New(client, rendezvous.WithConnectionTTL(30*time.Second))
	ctx := context.Background()

	require.True(t, coord.RegisterConnection(ctx, rendezvous.RegisterParams{
		WebsocketID: "ws-1",
		SessionID:   "sess-1",
	}))

	mr.FastForward(31 * time.Second)

	rec, err := coord.GetConnection(ctx, "ws-1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	recs, err := coord.GetSessionConnections(ctx, "sess-1", domain.ConnectionFilter{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRenewOutlivesTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redisAdapter.New(mr.Addr(), "", 0)
	t.Cleanup(func() { client.Close() })

	coord := rendezvous.New(client, rendezvous.WithConnectionTTL(30*time.Second))
	ctx := context.Background()

	require.True(t, coord.RegisterConnection(ctx, rendezvous.RegisterParams{
		WebsocketID: "ws-1",
		SessionID:   "sess-1",
	}))

	mr.FastForward(20 * time.Second)
	require.True(t, coord.RenewConnection(ctx, "ws-1", 0))
	mr.FastForward(20 * time.Second)

	rec, err := coord.GetConnection(ctx, "ws-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
}

func TestRegisterDegradesWhenStoreDown(t *testing.T) {
	coord, mr := setup(t)
	mr.Close()

	ok := coord.RegisterConnection(context.Background(), rendezvous.RegisterParams{
		WebsocketID: "ws-1",
		SessionID:   "sess-1",
	})
	assert.False(t, ok)
}

func TestSessionExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redisAdapter.New(mr.Addr(), "", 0)
	t.Cleanup(func() { client.Close() })

	coord := rendezvous.New(client, rendezvous.WithSessionTTL(time.Minute))
	ctx := context.Background()

	session, err := coord.CreateSession(ctx, rendezvous.CreateSessionParams{
		UserID:   "user-1",
		TenantID: "tenant-a",
	})
	require.NoError(t, err)

	mr.FastForward(61 * time.Second)

	owner := &domain.Principal{UserID: "user-1", TenantID: "tenant-a"}
	rec, err := coord.GetSession(ctx, session.SessionID, owner)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestListUserSessionsDropsForeignTenants(t *testing.T) {
	coord, _ := setup(t)
	ctx := context.Background()

	_, err := coord.CreateSession(ctx, rendezvous.CreateSessionParams{
		UserID: "user-1", TenantID: "tenant-a",
	})
	require.NoError(t, err)
	_, err = coord.CreateSession(ctx, rendezvous.CreateSessionParams{
		UserID: "user-1", TenantID: "tenant-b",
	})
	require.NoError(t, err)

	recs, err := coord.ListUserSessions(ctx, "user-1", &domain.Principal{UserID: "user-1", TenantID: "tenant-a"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "tenant-a", recs[0].TenantID)
}

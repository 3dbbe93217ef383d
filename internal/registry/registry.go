package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rendezvous-io/rendezvous/internal/logging"
	"github.com/rendezvous-io/rendezvous/pkg/domain"
	"github.com/rendezvous-io/rendezvous/pkg/ports"
)

// DefaultTTL is the connection lifetime applied when no TTL is configured.
// Heartbeats are expected to renew well inside this window.
const DefaultTTL = 5 * time.Minute

// Registry tracks live WebSocket connections in the shared state store.
//
// It holds no authoritative in-process state: every read and write is a
// round-trip to the StateClient, so any instance behind the load balancer can
// answer for any connection. The primary record at conn:{websocket_id} and
// the secondary index at sess:{session_id}:connections are two separate keys
// with no cross-key transaction; reads tolerate and self-heal the resulting
// races.
type Registry struct {
	client ports.StateClient
	ttl    time.Duration
	logger *slog.Logger
	sink   ports.EventSink
	now    func() time.Time
}

type Option func(*Registry)

// WithTTL sets the connection record TTL.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		r.ttl = ttl
	}
}

// WithLogger configures a logger for self-healing and degraded-path events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithEventSink configures where self-healing events are recorded.
func WithEventSink(sink ports.EventSink) Option {
	return func(r *Registry) {
		r.sink = sink
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New creates a connection registry over the given state client.
func New(client ports.StateClient, opts ...Option) *Registry {
	r := &Registry{
		client: client,
		ttl:    DefaultTTL,
		logger: logging.NewNop(),
		sink:   ports.NopSink{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func connKey(websocketID string) string {
	return "conn:" + websocketID
}

func indexKey(sessionID string) string {
	return "sess:" + sessionID + ":connections"
}

// Register writes the primary connection record, then adds the websocket id
// to the session's secondary index. Re-registering an existing id overwrites
// it (last-write-wins); the operation is idempotent.
func (r *Registry) Register(ctx context.Context, rec *domain.ConnectionRecord) error {
	if rec.WebsocketID == "" || rec.SessionID == "" {
		return errors.New("websocket id and session id are required")
	}

	now := r.now().UTC()
	if rec.RegisteredAt.IsZero() {
		rec.RegisteredAt = now
	}
	rec.LastSeenAt = now

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal connection record: %w", err)
	}

	// Primary first, index second. A crash between the two leaves a primary
	// record whose index add has not landed; the next Register or index read
	// converges it.
	if err := r.client.Set(ctx, connKey(rec.WebsocketID), data, r.ttl); err != nil {
		return err
	}
	if err := r.client.AddToSet(ctx, indexKey(rec.SessionID), rec.WebsocketID, r.ttl); err != nil {
		return err
	}
	return nil
}

// Get looks up a connection by its primary key. A miss returns (nil, nil).
//
// sessionHint is purely a lookup-side optimization: when the primary record
// is gone and the owning session is known, the stale index member is pruned
// on the spot. The hint never changes result semantics.
func (r *Registry) Get(ctx context.Context, websocketID, sessionHint string) (*domain.ConnectionRecord, error) {
	data, err := r.client.Get(ctx, connKey(websocketID))
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			if sessionHint != "" {
				r.evictStale(ctx, sessionHint, websocketID)
			}
			return nil, nil
		}
		return nil, err
	}

	var rec domain.ConnectionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal connection record: %w", err)
	}
	return &rec, nil
}

// SessionConnections resolves the secondary index, fetches each primary
// record, drops (and evicts) index entries whose primary record is missing,
// then applies the filter.
func (r *Registry) SessionConnections(ctx context.Context, sessionID string, filter domain.ConnectionFilter) ([]*domain.ConnectionRecord, error) {
	members, err := r.client.Members(ctx, indexKey(sessionID))
	if err != nil {
		return nil, err
	}

	records := make([]*domain.ConnectionRecord, 0, len(members))
	for _, websocketID := range members {
		rec, err := r.Get(ctx, websocketID, sessionID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			// Get already pruned the stale entry via the session hint.
			continue
		}
		if filter.Matches(rec) {
			records = append(records, rec)
		}
	}
	return records, nil
}

// Unregister deletes the primary record. Removal from the secondary index is
// best-effort: a lagging index entry is tolerated and self-heals on the next
// indexed read. Unregistering a missing connection is harmless.
func (r *Registry) Unregister(ctx context.Context, websocketID string) error {
	rec, err := r.Get(ctx, websocketID, "")
	if err != nil {
		return err
	}

	if err := r.client.Delete(ctx, connKey(websocketID)); err != nil {
		return err
	}

	if rec != nil {
		if err := r.client.RemoveFromSet(ctx, indexKey(rec.SessionID), websocketID); err != nil {
			r.logger.Debug("index removal lagging, will self-heal on read",
				"websocket_id", websocketID,
				"session_id", rec.SessionID,
				"err", err,
			)
		}
	}
	return nil
}

// Renew extends the connection's lifetime on heartbeat and stamps LastSeenAt.
// It returns false when the connection is no longer registered.
func (r *Registry) Renew(ctx context.Context, websocketID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = r.ttl
	}

	rec, err := r.Get(ctx, websocketID, "")
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}

	rec.LastSeenAt = r.now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshal connection record: %w", err)
	}
	if err := r.client.Set(ctx, connKey(websocketID), data, ttl); err != nil {
		return false, err
	}

	// Keep the index at least as long-lived as the record. Concurrent renewals
	// racing is harmless: the longest observed TTL wins.
	if _, err := r.client.Expire(ctx, indexKey(rec.SessionID), ttl); err != nil {
		r.logger.Debug("index ttl refresh failed",
			"session_id", rec.SessionID,
			"err", err,
		)
	}
	return true, nil
}

func (r *Registry) evictStale(ctx context.Context, sessionID, websocketID string) {
	if err := r.client.RemoveFromSet(ctx, indexKey(sessionID), websocketID); err != nil {
		r.logger.Debug("stale index eviction failed",
			"session_id", sessionID,
			"websocket_id", websocketID,
			"err", err,
		)
		return
	}
	r.logger.Debug("dropped stale index entry",
		"session_id", sessionID,
		"websocket_id", websocketID,
	)
	r.sink.RecordEvent(ctx, domain.EventStaleIndexHealed, map[string]any{
		"index":        "session_connections",
		"session_id":   sessionID,
		"websocket_id": websocketID,
	})
}

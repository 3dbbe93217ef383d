package rendezvous

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rendezvous-io/rendezvous/internal/guard"
	"github.com/rendezvous-io/rendezvous/internal/logging"
	"github.com/rendezvous-io/rendezvous/internal/registry"
	"github.com/rendezvous-io/rendezvous/internal/sessions"
	"github.com/rendezvous-io/rendezvous/pkg/domain"
	"github.com/rendezvous-io/rendezvous/pkg/ports"
)

// Version is the library version.
const Version = "0.1.0"

// Coordinator is the only externally visible API of the registry. It
// sequences the connection registry, the session store, and the tenant
// isolation guard, and is the single place where store failures are
// translated into typed outcomes.
//
// A Coordinator holds no authoritative state of its own; construct one per
// process instance via explicit dependency injection and share nothing. Any
// instance can answer any query because the shared state client is the
// serialization point.
//
// Two failure philosophies coexist here deliberately: connection/session
// tracking is best-effort (bool results, degraded mode on store trouble),
// while tenant isolation is hard-deny always.
type Coordinator struct {
	registry *registry.Registry
	sessions *sessions.Store
	guard    *guard.Guard
	logger   *slog.Logger
	sink     ports.EventSink

	connectionTTL    time.Duration
	sessionTTL       time.Duration
	registerAttempts int
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithLogger sets a structured logger for degraded-path and audit logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithEventSink sets the observability sink receiving registry events.
func WithEventSink(sink ports.EventSink) Option {
	return func(c *Coordinator) {
		c.sink = sink
	}
}

// WithConnectionTTL sets the connection record lifetime (default 5m).
func WithConnectionTTL(ttl time.Duration) Option {
	return func(c *Coordinator) {
		c.connectionTTL = ttl
	}
}

// WithSessionTTL sets the default session lifetime (default 1h).
func WithSessionTTL(ttl time.Duration) Option {
	return func(c *Coordinator) {
		c.sessionTTL = ttl
	}
}

// WithRegisterAttempts bounds the retries for connection registration before
// degrading (default 2).
func WithRegisterAttempts(attempts int) Option {
	return func(c *Coordinator) {
		if attempts > 0 {
			c.registerAttempts = attempts
		}
	}
}

// New creates a Coordinator over the given shared state client.
func New(client ports.StateClient, opts ...Option) *Coordinator {
	c := &Coordinator{
		logger:           logging.NewNop(),
		sink:             ports.NopSink{},
		connectionTTL:    registry.DefaultTTL,
		sessionTTL:       sessions.DefaultTTL,
		registerAttempts: 2,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.registry = registry.New(client,
		registry.WithTTL(c.connectionTTL),
		registry.WithLogger(c.logger),
		registry.WithEventSink(c.sink),
	)
	c.sessions = sessions.New(client,
		sessions.WithTTL(c.sessionTTL),
		sessions.WithLogger(c.logger),
		sessions.WithEventSink(c.sink),
	)
	c.guard = guard.New(c.sessions,
		guard.WithLogger(c.logger),
		guard.WithEventSink(c.sink),
	)
	return c
}

// LookupOption tunes a connection lookup.
type LookupOption func(*lookupConfig)

type lookupConfig struct {
	sessionHint string
}

// WithSessionHint passes the owning session id as a lookup-side optimization.
// It never changes result semantics; it only lets a miss prune the session's
// stale index entry on the spot.
func WithSessionHint(sessionID string) LookupOption {
	return func(l *lookupConfig) {
		l.sessionHint = sessionID
	}
}

// RegisterParams carries the inputs for RegisterConnection.
type RegisterParams struct {
	WebsocketID string
	SessionID   string
	AgentType   string
	Pillar      string
	Metadata    map[string]string
}

// RegisterConnection makes the connection globally discoverable. It retries a
// bounded number of times on store trouble and then degrades: a false return
// means the connection stays usable for the accepting instance but is not
// visible to its peers. Re-registration is idempotent last-write-wins.
func (c *Coordinator) RegisterConnection(ctx context.Context, p RegisterParams) bool {
	rec := &domain.ConnectionRecord{
		WebsocketID: p.WebsocketID,
		SessionID:   p.SessionID,
		AgentType:   p.AgentType,
		Pillar:      p.Pillar,
		Metadata:    p.Metadata,
	}

	var err error
	for attempt := 0; attempt < c.registerAttempts; attempt++ {
		if err = c.registry.Register(ctx, rec); err == nil {
			c.sink.RecordEvent(ctx, domain.EventConnectionRegistered, map[string]any{
				"websocket_id": p.WebsocketID,
				"session_id":   p.SessionID,
				"agent_type":   p.AgentType,
			})
			return true
		}
		if !errors.Is(err, domain.ErrStoreUnavailable) && !errors.Is(err, domain.ErrTimeout) {
			break
		}
	}

	c.logger.Warn("connection registration degraded",
		"websocket_id", p.WebsocketID,
		"session_id", p.SessionID,
		"err", err,
	)
	c.sink.RecordEvent(ctx, domain.EventRegistryDegraded, map[string]any{
		"op":           "register",
		"websocket_id": p.WebsocketID,
	})
	return false
}

// GetConnection looks up a connection for in-process (trusted) callers such
// as the WebSocket handler that owns the socket. A miss returns (nil, nil).
// Boundary adapters must use GetConnectionAs instead.
func (c *Coordinator) GetConnection(ctx context.Context, websocketID string, opts ...LookupOption) (*domain.ConnectionRecord, error) {
	var cfg lookupConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return c.registry.Get(ctx, websocketID, cfg.sessionHint)
}

// GetConnectionAs looks up a connection on behalf of a principal, resolving
// the owning session and invoking the isolation guard before the record is
// returned. A denial yields domain.ErrTenantIsolation; boundary adapters
// must render it indistinguishably from a miss.
func (c *Coordinator) GetConnectionAs(ctx context.Context, websocketID string, p *domain.Principal, opts ...LookupOption) (*domain.ConnectionRecord, error) {
	rec, err := c.GetConnection(ctx, websocketID, opts...)
	if err != nil || rec == nil {
		return nil, err
	}
	if !c.guard.AuthorizeConnection(ctx, rec, p).Authorized() {
		return nil, domain.ErrTenantIsolation
	}
	return rec, nil
}

// GetSessionConnections lists the non-expired connections under a session,
// optionally filtered, for in-process (trusted) callers.
func (c *Coordinator) GetSessionConnections(ctx context.Context, sessionID string, filter domain.ConnectionFilter) ([]*domain.ConnectionRecord, error) {
	return c.registry.SessionConnections(ctx, sessionID, filter)
}

// GetSessionConnectionsAs is the guard-checked variant for boundary callers:
// the session's tenancy is authorized before any connection fan-out happens.
func (c *Coordinator) GetSessionConnectionsAs(ctx context.Context, sessionID string, p *domain.Principal, filter domain.ConnectionFilter) ([]*domain.ConnectionRecord, error) {
	session, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}
	if !c.guard.AuthorizeSession(ctx, session, p).Authorized() {
		return nil, domain.ErrTenantIsolation
	}
	return c.registry.SessionConnections(ctx, sessionID, filter)
}

// UnregisterConnection removes the connection from global visibility.
// Unregistering a missing or already-removed connection is harmless.
func (c *Coordinator) UnregisterConnection(ctx context.Context, websocketID string) bool {
	if err := c.registry.Unregister(ctx, websocketID); err != nil {
		c.logger.Warn("connection unregister degraded",
			"websocket_id", websocketID,
			"err", err,
		)
		c.sink.RecordEvent(ctx, domain.EventRegistryDegraded, map[string]any{
			"op":           "unregister",
			"websocket_id": websocketID,
		})
		return false
	}
	c.sink.RecordEvent(ctx, domain.EventConnectionUnregistered, map[string]any{
		"websocket_id": websocketID,
	})
	return true
}

// RenewConnection extends a connection's lifetime on heartbeat. A false
// return means the connection is no longer registered (or the store is
// unreachable); the caller should re-register on the next opportunity.
func (c *Coordinator) RenewConnection(ctx context.Context, websocketID string, ttl time.Duration) bool {
	ok, err := c.registry.Renew(ctx, websocketID, ttl)
	if err != nil {
		c.logger.Warn("connection renew degraded",
			"websocket_id", websocketID,
			"err", err,
		)
		return false
	}
	if ok {
		c.sink.RecordEvent(ctx, domain.EventConnectionRenewed, map[string]any{
			"websocket_id": websocketID,
		})
	}
	return ok
}

// CreateSessionParams carries the inputs for CreateSession. TenantID is
// mandatory and immutable afterwards. SessionID is optional.
type CreateSessionParams struct {
	UserID      string
	TenantID    string
	SessionType string
	Context     map[string]any
	TTL         time.Duration
	SessionID   string
}

// CreateSession persists a new session record and returns it. Unlike the
// registry paths, session creation surfaces store failures as errors: a
// session the caller believes exists but doesn't is not a degraded mode,
// it is a broken contract.
func (c *Coordinator) CreateSession(ctx context.Context, p CreateSessionParams) (*domain.SessionRecord, error) {
	rec, err := c.sessions.Create(ctx, sessions.CreateParams{
		UserID:      p.UserID,
		TenantID:    p.TenantID,
		SessionType: p.SessionType,
		Context:     p.Context,
		TTL:         p.TTL,
		SessionID:   p.SessionID,
	})
	if err != nil {
		return nil, err
	}
	c.sink.RecordEvent(ctx, domain.EventSessionCreated, map[string]any{
		"session_id": rec.SessionID,
		"tenant_id":  rec.TenantID,
		"user_id":    rec.UserID,
	})
	return rec, nil
}

// GetSession retrieves a session on behalf of a principal. The guard runs
// before the record crosses the trust boundary; a denial yields
// domain.ErrTenantIsolation. A miss returns (nil, nil).
func (c *Coordinator) GetSession(ctx context.Context, sessionID string, p *domain.Principal) (*domain.SessionRecord, error) {
	rec, err := c.sessions.Get(ctx, sessionID)
	if err != nil || rec == nil {
		return nil, err
	}
	if !c.guard.AuthorizeSession(ctx, rec, p).Authorized() {
		return nil, domain.ErrTenantIsolation
	}
	return rec, nil
}

// TouchSession extends the session's expiry without mutating its content.
func (c *Coordinator) TouchSession(ctx context.Context, sessionID string, ttl time.Duration) bool {
	ok, err := c.sessions.Touch(ctx, sessionID, ttl)
	if err != nil {
		c.logger.Warn("session touch degraded",
			"session_id", sessionID,
			"err", err,
		)
		return false
	}
	return ok
}

// DeleteSession removes a session on behalf of a principal. The guard runs
// before the delete; a denial yields domain.ErrTenantIsolation so a
// cross-tenant caller can neither remove nor confirm the session.
func (c *Coordinator) DeleteSession(ctx context.Context, sessionID string, p *domain.Principal) (bool, error) {
	rec, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	if !c.guard.AuthorizeSession(ctx, rec, p).Authorized() {
		return false, domain.ErrTenantIsolation
	}

	existed, err := c.sessions.Delete(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if existed {
		c.sink.RecordEvent(ctx, domain.EventSessionDeleted, map[string]any{
			"session_id": sessionID,
			"tenant_id":  rec.TenantID,
		})
	}
	return existed, nil
}

// ListUserSessions returns the user's live sessions visible to the principal.
// Sessions the principal is not authorized for are silently dropped (and
// audited), never surfaced.
func (c *Coordinator) ListUserSessions(ctx context.Context, userID string, p *domain.Principal) ([]*domain.SessionRecord, error) {
	all, err := c.sessions.UserSessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	visible := make([]*domain.SessionRecord, 0, len(all))
	for _, rec := range all {
		if c.guard.AuthorizeSession(ctx, rec, p).Authorized() {
			visible = append(visible, rec)
		}
	}
	return visible, nil
}

package guard

import (
	"context"
	"log/slog"

	"github.com/rendezvous-io/rendezvous/internal/logging"
	"github.com/rendezvous-io/rendezvous/internal/sessions"
	"github.com/rendezvous-io/rendezvous/pkg/domain"
	"github.com/rendezvous-io/rendezvous/pkg/ports"
)

// Guard is the single choke point for multi-tenant safety. Every record that
// crosses the trust boundary passes through it; the registry and session
// store live under internal/ precisely so no external caller can reach them
// around the guard.
//
// Failure philosophy: registry and session tracking are best-effort, but
// isolation is hard-deny always. Any ambiguity during an authorization
// decision (store failure, missing session) resolves to denial.
type Guard struct {
	sessions *sessions.Store
	logger   *slog.Logger
	sink     ports.EventSink
}

type Option func(*Guard)

// WithLogger configures the audit logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

// WithEventSink configures where violation audit events are recorded.
func WithEventSink(sink ports.EventSink) Option {
	return func(g *Guard) {
		g.sink = sink
	}
}

// New creates a guard that resolves connection ownership via the given
// session store.
func New(store *sessions.Store, opts ...Option) *Guard {
	g := &Guard{
		sessions: store,
		logger:   logging.NewNop(),
		sink:     ports.NopSink{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AuthorizeSession decides whether the principal may access the session.
// The rule is tenant equality, or an explicit per-tenant grant carried by the
// principal; wildcards are never honored. Every denial is audited.
func (g *Guard) AuthorizeSession(ctx context.Context, rec *domain.SessionRecord, p *domain.Principal) domain.AccessDecision {
	if rec == nil || p == nil {
		return domain.AccessDecision{}
	}

	decision := domain.AccessDecision{
		TenantMatch:      p.TenantID != "" && p.TenantID == rec.TenantID,
		CrossTenantGrant: p.HasGrantFor(rec.TenantID),
	}
	if !decision.Authorized() {
		g.audit(ctx, rec, p)
	}
	return decision
}

// AuthorizeConnection resolves the connection's owning session and delegates
// to AuthorizeSession. A connection whose session cannot be resolved, for any
// reason, is denied: tenancy lives only on the session, so an unresolvable
// session means an unanswerable question.
func (g *Guard) AuthorizeConnection(ctx context.Context, rec *domain.ConnectionRecord, p *domain.Principal) domain.AccessDecision {
	if rec == nil || p == nil {
		return domain.AccessDecision{}
	}

	session, err := g.sessions.Get(ctx, rec.SessionID)
	if err != nil {
		g.logger.Warn("denying connection access, session resolution failed",
			"websocket_id", rec.WebsocketID,
			"session_id", rec.SessionID,
			"err", err,
		)
		return domain.AccessDecision{}
	}
	if session == nil {
		return domain.AccessDecision{}
	}
	return g.AuthorizeSession(ctx, session, p)
}

func (g *Guard) audit(ctx context.Context, rec *domain.SessionRecord, p *domain.Principal) {
	g.logger.Warn("tenant isolation violation",
		"session_id", rec.SessionID,
		"session_tenant", rec.TenantID,
		"principal_tenant", p.TenantID,
		"principal_user", p.UserID,
	)
	g.sink.RecordEvent(ctx, domain.EventIsolationViolation, map[string]any{
		"session_id":       rec.SessionID,
		"session_tenant":   rec.TenantID,
		"principal_tenant": p.TenantID,
		"principal_user":   p.UserID,
	})
}

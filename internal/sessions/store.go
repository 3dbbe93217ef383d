package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rendezvous-io/rendezvous/internal/logging"
	"github.com/rendezvous-io/rendezvous/pkg/domain"
	"github.com/rendezvous-io/rendezvous/pkg/ports"
)

// DefaultTTL is the session lifetime applied when the caller supplies none.
const DefaultTTL = time.Hour

// ErrTenantRequired is returned when a session is created without a tenant.
// The tenant is baked into the record at creation and never inferred later.
var ErrTenantRequired = errors.New("tenant id is required")

// Store persists session records in the shared state store.
//
// A session created by one process instance is fully readable by any other:
// the store keeps no in-process state of its own. The store performs no
// authorization; tenant scoping is done by the guard, never inline here.
type Store struct {
	client ports.StateClient
	ttl    time.Duration
	logger *slog.Logger
	sink   ports.EventSink
	now    func() time.Time
}

type Option func(*Store)

// WithTTL sets the default session TTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithLogger configures a logger for degraded-path events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithEventSink configures where self-healing events are recorded.
func WithEventSink(sink ports.EventSink) Option {
	return func(s *Store) {
		s.sink = sink
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a session store over the given state client.
func New(client ports.StateClient, opts ...Option) *Store {
	s := &Store{
		client: client,
		ttl:    DefaultTTL,
		logger: logging.NewNop(),
		sink:   ports.NopSink{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

func userKey(userID string) string {
	return "user:" + userID + ":sessions"
}

// CreateParams carries the inputs for Create. SessionID is optional; an id is
// generated when absent.
type CreateParams struct {
	UserID      string
	TenantID    string
	SessionType string
	Context     map[string]any
	TTL         time.Duration
	SessionID   string
}

// Create persists a new session record and indexes it under its user.
func (s *Store) Create(ctx context.Context, p CreateParams) (*domain.SessionRecord, error) {
	if p.TenantID == "" {
		return nil, ErrTenantRequired
	}

	ttl := p.TTL
	if ttl <= 0 {
		ttl = s.ttl
	}

	id := p.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	now := s.now().UTC()
	rec := &domain.SessionRecord{
		SessionID:   id,
		UserID:      p.UserID,
		TenantID:    p.TenantID,
		SessionType: p.SessionType,
		Context:     p.Context,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal session record: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(id), data, ttl); err != nil {
		return nil, err
	}

	if p.UserID != "" {
		if err := s.client.AddToSet(ctx, userKey(p.UserID), id, ttl); err != nil {
			// The session itself is durable; the per-user index is a
			// secondary view that self-heals on read.
			s.logger.Debug("user session index write failed",
				"session_id", id,
				"user_id", p.UserID,
				"err", err,
			)
		}
	}
	return rec, nil
}

// Get retrieves a session by id. A miss returns (nil, nil). A record that is
// physically present but past its expiry is treated as a miss.
func (s *Store) Get(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	data, err := s.client.Get(ctx, sessionKey(sessionID))
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var rec domain.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal session record: %w", err)
	}
	if rec.Expired(s.now().UTC()) {
		return nil, nil
	}
	return &rec, nil
}

// Touch extends the session's expiry, leaving its content untouched. It
// returns false when the session does not exist (or has expired).
func (s *Store) Touch(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}

	rec, err := s.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}

	rec.ExpiresAt = s.now().UTC().Add(ttl)
	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshal session record: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sessionID), data, ttl); err != nil {
		return false, err
	}

	if rec.UserID != "" {
		if _, err := s.client.Expire(ctx, userKey(rec.UserID), ttl); err != nil {
			s.logger.Debug("user session index ttl refresh failed",
				"user_id", rec.UserID,
				"err", err,
			)
		}
	}
	return true, nil
}

// Delete removes the session. It reports whether a live record existed.
// Deleting a missing session is harmless.
func (s *Store) Delete(ctx context.Context, sessionID string) (bool, error) {
	rec, err := s.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}

	if err := s.client.Delete(ctx, sessionKey(sessionID)); err != nil {
		return false, err
	}

	if rec != nil && rec.UserID != "" {
		if err := s.client.RemoveFromSet(ctx, userKey(rec.UserID), sessionID); err != nil {
			s.logger.Debug("user session index removal lagging",
				"session_id", sessionID,
				"user_id", rec.UserID,
				"err", err,
			)
		}
	}
	return rec != nil, nil
}

// UserSessions resolves the per-user index, dropping (and evicting) entries
// whose session record is gone.
func (s *Store) UserSessions(ctx context.Context, userID string) ([]*domain.SessionRecord, error) {
	ids, err := s.client.Members(ctx, userKey(userID))
	if err != nil {
		return nil, err
	}

	records := make([]*domain.SessionRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			if err := s.client.RemoveFromSet(ctx, userKey(userID), id); err != nil {
				s.logger.Debug("stale user index eviction failed",
					"user_id", userID,
					"session_id", id,
					"err", err,
				)
				continue
			}
			s.sink.RecordEvent(ctx, domain.EventStaleIndexHealed, map[string]any{
				"index":      "user_sessions",
				"user_id":    userID,
				"session_id": id,
			})
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

package domain

import (
	"time"

	"github.com/mitchellh/mapstructure"
)

// ConnectionRecord describes one live WebSocket connection.
//
// The record deliberately carries no tenant id: tenancy is always resolved
// transitively through the owning session, so a connection can never be
// authorized independently of its session.
type ConnectionRecord struct {
	// WebsocketID uniquely identifies the socket across all instances.
	WebsocketID string `json:"websocket_id"`

	// SessionID is the owning session. Every connection belongs to exactly one.
	SessionID string `json:"session_id"`

	// AgentType is an optional routing tag (e.g. "guide", "liaison").
	AgentType string `json:"agent_type,omitempty"`

	// Pillar is an optional routing tag naming the frontend pillar.
	Pillar string `json:"pillar,omitempty"`

	// Metadata holds opaque key/value pairs supplied at registration.
	Metadata map[string]string `json:"metadata,omitempty"`

	RegisteredAt time.Time `json:"registered_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

// SessionRecord is a TTL-bounded interaction context bound to exactly one
// tenant and one user. TenantID is immutable after creation.
type SessionRecord struct {
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	TenantID    string `json:"tenant_id"`
	SessionType string `json:"session_type,omitempty"`

	// Context holds arbitrary session state. Nothing in it overrides TenantID.
	Context map[string]any `json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the record is past its expiry at the given instant.
// Stores must never serve an expired record, even if it is physically still
// present due to a race between expiry and read.
func (s *SessionRecord) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// DecodeContext decodes the session context blob into a typed struct.
func (s *SessionRecord) DecodeContext(out any) error {
	return mapstructure.Decode(s.Context, out)
}

// ConnectionFilter narrows a session-connection listing. Zero fields match all.
type ConnectionFilter struct {
	AgentType string
	Pillar    string
}

// Matches reports whether the record satisfies the filter.
func (f ConnectionFilter) Matches(rec *ConnectionRecord) bool {
	if f.AgentType != "" && rec.AgentType != f.AgentType {
		return false
	}
	if f.Pillar != "" && rec.Pillar != f.Pillar {
		return false
	}
	return true
}

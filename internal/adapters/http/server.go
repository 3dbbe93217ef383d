// Package http exposes the Coordinator over a small JSON API.
//
// Every route except /healthz requires a bearer credential resolved into a
// principal; the isolation guard runs underneath, and a denied cross-tenant
// access is rendered exactly like a miss so the API leaks nothing about
// other tenants' resources.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	rendezvous "github.com/rendezvous-io/rendezvous"
	"github.com/rendezvous-io/rendezvous/internal/logging"
	"github.com/rendezvous-io/rendezvous/pkg/domain"
	"github.com/rendezvous-io/rendezvous/pkg/ports"
)

type principalKey struct{}

// Server routes API requests to a Coordinator.
type Server struct {
	coord    *rendezvous.Coordinator
	resolver ports.PrincipalResolver
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler builds the HTTP handler for the given Coordinator.
func NewHandler(coord *rendezvous.Coordinator, resolver ports.PrincipalResolver, opts ...Option) http.Handler {
	s := &Server{coord: coord, resolver: resolver, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/healthz", s.health)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/v1/sessions", s.createSession)
		r.Get("/v1/sessions/{id}", s.getSession)
		r.Delete("/v1/sessions/{id}", s.deleteSession)
		r.Post("/v1/sessions/{id}/touch", s.touchSession)
		r.Get("/v1/sessions/{id}/connections", s.sessionConnections)
		r.Get("/v1/users/{id}/sessions", s.userSessions)

		r.Post("/v1/connections", s.registerConnection)
		r.Get("/v1/connections/{id}", s.getConnection)
		r.Delete("/v1/connections/{id}", s.unregisterConnection)
		r.Post("/v1/connections/{id}/renew", s.renewConnection)
	})

	return r
}

// authenticate resolves the bearer credential into a principal and stashes it
// in the request context. Requests without a valid credential never reach a
// handler.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || credential == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer credential")
			return
		}
		principal, err := s.resolver.Resolve(r.Context(), credential)
		if err != nil {
			s.logger.Warn("credential rejected", "err", err)
			writeError(w, http.StatusUnauthorized, "invalid credential")
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func principalFrom(r *http.Request) *domain.Principal {
	p, _ := r.Context().Value(principalKey{}).(*domain.Principal)
	return p
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": rendezvous.Version})
}

type createSessionRequest struct {
	UserID      string         `json:"user_id"`
	SessionType string         `json:"session_type"`
	Context     map[string]any `json:"context,omitempty"`
	TTLSeconds  int            `json:"ttl_seconds,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	var body createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.UserID == "" {
		body.UserID = p.UserID
	}

	// The session tenant always comes from the verified principal, never
	// from the request body.
	rec, err := s.coord.CreateSession(r.Context(), rendezvous.CreateSessionParams{
		UserID:      body.UserID,
		TenantID:    p.TenantID,
		SessionType: body.SessionType,
		Context:     body.Context,
		TTL:         time.Duration(body.TTLSeconds) * time.Second,
		SessionID:   body.SessionID,
	})
	if err != nil {
		s.logger.Error("session create failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, "session store unavailable")
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	rec, err := s.coord.GetSession(r.Context(), chi.URLParam(r, "id"), principalFrom(r))
	if err != nil {
		s.respondLookupError(w, err)
		return
	}
	if rec == nil {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	existed, err := s.coord.DeleteSession(r.Context(), chi.URLParam(r, "id"), principalFrom(r))
	if err != nil {
		s.respondLookupError(w, err)
		return
	}
	if !existed {
		writeNotFound(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type touchSessionRequest struct {
	TTLSeconds int `json:"ttl_seconds,omitempty"`
}

func (s *Server) touchSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Touch is reachable only for sessions the principal may see.
	rec, err := s.coord.GetSession(r.Context(), id, principalFrom(r))
	if err != nil {
		s.respondLookupError(w, err)
		return
	}
	if rec == nil {
		writeNotFound(w)
		return
	}

	var body touchSessionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if !s.coord.TouchSession(r.Context(), id, time.Duration(body.TTLSeconds)*time.Second) {
		writeNotFound(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sessionConnections(w http.ResponseWriter, r *http.Request) {
	filter := domain.ConnectionFilter{
		AgentType: r.URL.Query().Get("agent_type"),
		Pillar:    r.URL.Query().Get("pillar"),
	}
	recs, err := s.coord.GetSessionConnectionsAs(r.Context(), chi.URLParam(r, "id"), principalFrom(r), filter)
	if err != nil {
		s.respondLookupError(w, err)
		return
	}
	if recs == nil {
		recs = []*domain.ConnectionRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) userSessions(w http.ResponseWriter, r *http.Request) {
	recs, err := s.coord.ListUserSessions(r.Context(), chi.URLParam(r, "id"), principalFrom(r))
	if err != nil {
		s.respondLookupError(w, err)
		return
	}
	if recs == nil {
		recs = []*domain.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

type registerConnectionRequest struct {
	WebsocketID string            `json:"websocket_id"`
	SessionID   string            `json:"session_id"`
	AgentType   string            `json:"agent_type,omitempty"`
	Pillar      string            `json:"pillar,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (s *Server) registerConnection(w http.ResponseWriter, r *http.Request) {
	var body registerConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.WebsocketID == "" || body.SessionID == "" {
		writeError(w, http.StatusBadRequest, "websocket_id and session_id are required")
		return
	}

	// Registration on behalf of a session the principal may not see is a
	// cross-tenant write; deny it like a miss.
	session, err := s.coord.GetSession(r.Context(), body.SessionID, principalFrom(r))
	if err != nil {
		s.respondLookupError(w, err)
		return
	}
	if session == nil {
		writeNotFound(w)
		return
	}

	registered := s.coord.RegisterConnection(r.Context(), rendezvous.RegisterParams{
		WebsocketID: body.WebsocketID,
		SessionID:   body.SessionID,
		AgentType:   body.AgentType,
		Pillar:      body.Pillar,
		Metadata:    body.Metadata,
	})
	writeJSON(w, http.StatusOK, map[string]any{"registered": registered})
}

func (s *Server) getConnection(w http.ResponseWriter, r *http.Request) {
	var opts []rendezvous.LookupOption
	if hint := r.URL.Query().Get("session_hint"); hint != "" {
		opts = append(opts, rendezvous.WithSessionHint(hint))
	}
	rec, err := s.coord.GetConnectionAs(r.Context(), chi.URLParam(r, "id"), principalFrom(r), opts...)
	if err != nil {
		s.respondLookupError(w, err)
		return
	}
	if rec == nil {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) unregisterConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.coord.GetConnectionAs(r.Context(), id, principalFrom(r))
	if err != nil {
		s.respondLookupError(w, err)
		return
	}
	if rec == nil {
		writeNotFound(w)
		return
	}

	s.coord.UnregisterConnection(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

type renewConnectionRequest struct {
	TTLSeconds int `json:"ttl_seconds,omitempty"`
}

func (s *Server) renewConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.coord.GetConnectionAs(r.Context(), id, principalFrom(r))
	if err != nil {
		s.respondLookupError(w, err)
		return
	}
	if rec == nil {
		writeNotFound(w)
		return
	}

	var body renewConnectionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	renewed := s.coord.RenewConnection(r.Context(), id, time.Duration(body.TTLSeconds)*time.Second)
	writeJSON(w, http.StatusOK, map[string]any{"renewed": renewed})
}

// respondLookupError maps lookup failures onto responses. A tenant isolation
// denial deliberately produces the same 404 as a genuine miss.
func (s *Server) respondLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrTenantIsolation):
		writeNotFound(w)
	case errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, domain.ErrTimeout):
		s.logger.Error("state store unreachable", "err", err)
		writeError(w, http.StatusServiceUnavailable, "state store unavailable")
	default:
		s.logger.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeNotFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}

// Package authn provides a PrincipalResolver backed by HMAC-signed JWTs.
//
// Tokens carry the caller identity the authorization guard consumes:
// subject, tenant, permissions, and explicit cross-tenant grants. The
// resolver verifies the signature and expiry; it never widens access
// based on claim contents.
package authn

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rendezvous-io/rendezvous/pkg/domain"
	"github.com/rendezvous-io/rendezvous/pkg/ports"
)

// ErrInvalidToken is returned when a credential cannot be verified.
var ErrInvalidToken = errors.New("authn: invalid token")

// JWTResolver resolves bearer tokens into principals.
type JWTResolver struct {
	key []byte
}

// NewJWTResolver builds a resolver that verifies HMAC signatures with key.
func NewJWTResolver(key []byte) *JWTResolver {
	return &JWTResolver{key: key}
}

// Resolve verifies the token and extracts the principal. Expired or
// malformed tokens fail with ErrInvalidToken; claims carrying wildcard
// grants are kept verbatim and simply never match during authorization.
func (r *JWTResolver) Resolve(_ context.Context, credential string) (*domain.Principal, error) {
	token, err := jwt.Parse(credential, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return r.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	tenant, _ := claims["tenant_id"].(string)
	if sub == "" || tenant == "" {
		return nil, fmt.Errorf("%w: missing sub or tenant_id claim", ErrInvalidToken)
	}

	return &domain.Principal{
		UserID:            sub,
		TenantID:          tenant,
		Permissions:       stringSlice(claims["permissions"]),
		CrossTenantGrants: stringSlice(claims["cross_tenant_grants"]),
	}, nil
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

var _ ports.PrincipalResolver = (*JWTResolver)(nil)

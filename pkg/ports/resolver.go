package ports

import (
	"context"

	"github.com/rendezvous-io/rendezvous/pkg/domain"
)

// PrincipalResolver turns a bearer credential into a resolved principal.
// Token issuance and verification policy live outside this module; the
// resolver is consumed as a black box by boundary adapters.
type PrincipalResolver interface {
	Resolve(ctx context.Context, credential string) (*domain.Principal, error)
}

package port

import (
	"context"

	"github.com/Maryam-Bagia/StudyNest/internal/core/domain"
)

// IdentityBackend is the remote identity service the session controller talks to.
// Expected failures are reported as *domain.BackendError so the message can be shown verbatim.
type IdentityBackend interface {
	VerifyCredentials(ctx context.Context, identifier, credential string) (domain.Identity, error)
	CreateAccount(ctx context.Context, identifier, credential string) (domain.Identity, error)
	ClearSession(ctx context.Context) error
}

// SessionResumer is optionally implemented by backends that remember a signed-in
// account across restarts. CurrentIdentity returns domain.ErrNoSession when nothing
// is remembered or the remembered session is no longer valid.
type SessionResumer interface {
	CurrentIdentity(ctx context.Context) (domain.Identity, error)
}

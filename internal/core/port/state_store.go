package port

import (
	"context"

	"github.com/Maryam-Bagia/StudyNest/internal/core/domain"
)

// CredentialStore persists the credentials of the signed-in account for a device.
// LoadCredentials returns repository.ErrNotFound when nothing is stored.
type CredentialStore interface {
	SaveCredentials(ctx context.Context, creds domain.Credentials) error
	LoadCredentials(ctx context.Context) (domain.Credentials, error)
	DeleteCredentials(ctx context.Context) error
}

// BackStackStore persists the encoded back-stack, bottom first.
type BackStackStore interface {
	SaveBackStack(ctx context.Context, entries []string) error
	LoadBackStack(ctx context.Context) ([]string, error)
}

// DeviceStateStore is the full persistence surface selected by store.driver.
type DeviceStateStore interface {
	CredentialStore
	BackStackStore
	HealthCheck(ctx context.Context) error
}

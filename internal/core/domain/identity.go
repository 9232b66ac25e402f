package domain

import "time"

// Identity is the opaque reference to an authenticated account.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// IsZero reports whether the identity carries no account reference.
func (i Identity) IsZero() bool {
	return i.ID == ""
}

// Credentials is what a device remembers about a signed-in account so the
// session can be resumed after a restart.
type Credentials struct {
	Identity     Identity
	SessionID    string
	AccessToken  string
	RefreshToken string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the access token is past its expiry at the supplied moment.
// A zero expiry never expires.
func (c Credentials) Expired(at time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !c.ExpiresAt.After(at)
}

package sessync

import (
	"context"
	"time"
)

// Session is the live credential pair plus its owning user. Immutable
// value: refresh and profile updates replace it wholesale, never mutate it.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// User is the identity attached to a session. Metadata is open-ended
// provider-specific payload carried through untouched.
type User struct {
	ID            string         `json:"id"`
	Email         string         `json:"email,omitempty"`
	Name          string         `json:"name,omitempty"`
	EmailVerified bool           `json:"email_verified,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Credentials is the sign-in/sign-up input.
type Credentials struct {
	Email    string
	Password string
}

// UserUpdate is a partial profile update; nil fields are left unchanged.
type UserUpdate struct {
	Email    *string
	Name     *string
	Metadata map[string]any
}

// Backend is the upstream collaborator: the single network surface this
// core needs from an identity provider. Field mapping from concrete
// provider responses into Session/User happens behind this interface,
// which keeps the cache/dedup/broadcast core backend-agnostic.
//
// Implementations return (nil, nil) from GetSession when no session exists
// upstream (signed out is not an error).
type Backend interface {
	SignIn(ctx context.Context, creds Credentials) (*Session, error)
	SignUp(ctx context.Context, creds Credentials) (*Session, error)
	GetSession(ctx context.Context) (*Session, error)
	UpdateUser(ctx context.Context, update UserUpdate) (*Session, error)
	SignOut(ctx context.Context) error

	// RefreshAccess is the lightweight endpoint: exchanges a valid refresh
	// credential for a fresh access credential without refetching the user.
	RefreshAccess(ctx context.Context, refreshToken string) (string, error)
}

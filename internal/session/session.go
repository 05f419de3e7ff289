package session

import (
	"context"
	"time"

	"github.com/diagnosis/autoescola/internal/accounts"
)

type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// Session is an authenticated identity plus its opaque token.
type Session struct {
	User      User       `json:"user"`
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Event names an auth state transition reported by a Provider.
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
)

// Listener receives auth state changes. sess is nil after sign-out.
type Listener func(event Event, sess *Session)

// Provider owns the remote session. Implementations must invoke listeners
// outside their own locks.
type Provider interface {
	GetSession(ctx context.Context) (*Session, error)
	OnAuthStateChange(fn Listener) (unsubscribe func())
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context) error
}

// RoleLookup resolves the role of a user id.
type RoleLookup interface {
	LookupRole(ctx context.Context, userID string) (accounts.Role, error)
}

// Registrar submits registrations to the auth backend.
type Registrar interface {
	Register(ctx context.Context, reg *accounts.Registration) error
}

// State is a snapshot of the manager.
type State struct {
	User    *User
	Session *Session
	Role    accounts.Role
	Loading bool
}

func (s State) SignedIn() bool {
	return s.Session != nil
}

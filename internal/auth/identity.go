// ABOUTME: Identity value type and the capabilities consumed by the auth core
// ABOUTME: Role lookup, read checks, rights checks and session resolution are interfaces

package auth

import (
	"context"

	"github.com/labki-org/mwassistant-gateway/internal/wiki"
)

// Identity is the subject an assertion or permission check is about.
// The zero value is the anonymous visitor.
type Identity struct {
	Name string
	ID   int64
}

// Anonymous returns the identity of a visitor without an account.
func Anonymous() Identity { return Identity{} }

// IsAnonymous reports whether the identity has no account behind it.
func (i Identity) IsAnonymous() bool { return i.ID == 0 }

// RoleLookup returns the explicit groups of an identity. Callers resolve
// roles once and pass them to Mint.
type RoleLookup interface {
	Groups(ctx context.Context, who Identity) ([]string, error)
}

// ReadChecker answers whether who may read title.
type ReadChecker interface {
	CanRead(ctx context.Context, who Identity, title wiki.Title) (bool, error)
}

// RightChecker answers whether who holds a named right.
type RightChecker interface {
	HasRight(ctx context.Context, who Identity, right string) (bool, error)
}

// SessionResolver maps a session cookie value to the identity behind it.
type SessionResolver interface {
	SessionIdentity(ctx context.Context, sessionID string) (Identity, error)
}

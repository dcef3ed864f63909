// ABOUTME: Authentication context for tracking the gate's decision through request handlers
// ABOUTME: Provides WithAuth/FromContext for propagating auth info via context

package auth

import (
	"context"
)

// Method says which gate path authorized a request.
type Method string

const (
	MethodBearer  Method = "bearer"
	MethodSession Method = "session"
)

// AuthContext holds the outcome of a successful gate decision.
// This is populated by the gate middleware and can be retrieved from context in handlers.
type AuthContext struct {
	Method   Method
	Identity Identity // session path only; anonymous on the bearer path
	Claims   Claims   // bearer path only
	Scopes   []string // scopes the bearer token carried
}

// IsBearer returns true if the request was authorized by a backend assertion.
// Such requests have no implicit subject.
func (a *AuthContext) IsBearer() bool {
	return a.Method == MethodBearer
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	auth, _ := ctx.Value(authContextKey{}).(*AuthContext)
	return auth
}

// MustFromContext retrieves the AuthContext from the context, panicking if not present.
func MustFromContext(ctx context.Context) *AuthContext {
	auth := FromContext(ctx)
	if auth == nil {
		panic("auth: AuthContext not found in context")
	}
	return auth
}

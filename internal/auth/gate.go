// ABOUTME: Per-request access gate: bearer assertions or a local session with the assistant-use right
// ABOUTME: Rejections surface as an opaque 403; reason codes go to logs and the auth event log

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/labki-org/mwassistant-gateway/internal/config"
	"github.com/labki-org/mwassistant-gateway/internal/store"
)

// RightAssistantUse is the right a session identity needs to use the gated
// operations.
const RightAssistantUse = store.RightAssistantUse

// DefaultSessionCookie is the cookie read on the session path.
const DefaultSessionCookie = config.DefaultSessionCookie

const bearerPrefix = "bearer "

// Gate reasons that are not token verification reasons.
const (
	reasonMissingRight      = "missing_right"
	reasonRightsCheckFailed = "rights_check_failed"
	reasonBearerNotAccepted = "bearer_not_accepted"
)

// AuditRecorder persists rejected decisions.
type AuditRecorder interface {
	AppendAuthEvent(ctx context.Context, e *store.AuthEvent) error
}

// Gate makes one authorization decision per request. Nothing is cached.
type Gate struct {
	verifier TokenVerifier
	sessions SessionResolver
	rights   RightChecker
	logger   *slog.Logger
	audit    AuditRecorder
	cookie   string
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithAuditRecorder stores every rejection as an auth event.
func WithAuditRecorder(rec AuditRecorder) GateOption {
	return func(g *Gate) { g.audit = rec }
}

// WithSessionCookie sets the session cookie name.
func WithSessionCookie(name string) GateOption {
	return func(g *Gate) {
		if name != "" {
			g.cookie = name
		}
	}
}

// NewGate creates a gate. sessions may be nil, in which case every session
// request is evaluated as anonymous.
func NewGate(verifier TokenVerifier, sessions SessionResolver, rights RightChecker, logger *slog.Logger, opts ...GateOption) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gate{
		verifier: verifier,
		sessions: sessions,
		rights:   rights,
		logger:   logger.With("component", "gate"),
		cookie:   DefaultSessionCookie,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// bearerToken returns the token when the Authorization header uses the
// Bearer scheme, matched case-insensitively.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < len(bearerPrefix) || !strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(bearerPrefix):]), true
}

// Authorize decides a request that may arrive with a bearer token or a
// session. Bearer requests are checked against requiredScopes only; session
// requests need the assistant-use right.
func (g *Gate) Authorize(r *http.Request, requiredScopes []string) (*AuthContext, error) {
	if token, ok := bearerToken(r); ok {
		return g.authorizeBearer(r, token, requiredScopes)
	}
	return g.authorizeSession(r)
}

// AuthorizeSession decides a browser-only request. Bearer tokens are not
// accepted here.
func (g *Gate) AuthorizeSession(r *http.Request) (*AuthContext, error) {
	if _, ok := bearerToken(r); ok {
		g.reject(r, MethodBearer, reasonBearerNotAccepted)
		return nil, ErrAuthenticationRejected
	}
	return g.authorizeSession(r)
}

func (g *Gate) authorizeBearer(r *http.Request, token string, requiredScopes []string) (*AuthContext, error) {
	res := g.verifier.Verify(token, requiredScopes)
	if !res.OK() {
		g.reject(r, MethodBearer, string(res.Reason))
		return nil, ErrAuthenticationRejected
	}
	return &AuthContext{
		Method:   MethodBearer,
		Identity: Anonymous(),
		Claims:   res.Claims,
		Scopes:   res.Claims.Scopes(),
	}, nil
}

func (g *Gate) authorizeSession(r *http.Request) (*AuthContext, error) {
	ctx := r.Context()
	who := g.sessionIdentity(r)

	allowed, err := g.rights.HasRight(ctx, who, RightAssistantUse)
	if err != nil {
		g.logger.Warn("rights check failed, denying", "error", err)
		g.reject(r, MethodSession, reasonRightsCheckFailed)
		return nil, ErrAuthorizationDenied
	}
	if !allowed {
		g.reject(r, MethodSession, reasonMissingRight)
		return nil, ErrAuthorizationDenied
	}
	return &AuthContext{Method: MethodSession, Identity: who}, nil
}

// sessionIdentity resolves the session cookie. Missing, expired or
// unresolvable sessions are anonymous.
func (g *Gate) sessionIdentity(r *http.Request) Identity {
	if g.sessions == nil {
		return Anonymous()
	}
	c, err := r.Cookie(g.cookie)
	if err != nil || c.Value == "" {
		return Anonymous()
	}
	who, err := g.sessions.SessionIdentity(r.Context(), c.Value)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			g.logger.Warn("session lookup failed", "error", err)
		}
		return Anonymous()
	}
	return who
}

// reject logs the decision like other auth failures and records it.
func (g *Gate) reject(r *http.Request, method Method, reason string) {
	remote := remoteHost(r.RemoteAddr)
	g.logger.Warn("auth failure",
		"reason", reason,
		"method", string(method),
		"path", r.URL.Path,
		"remote_addr", remote,
	)
	if g.audit == nil {
		return
	}
	err := g.audit.AppendAuthEvent(context.WithoutCancel(r.Context()), &store.AuthEvent{
		Reason:     reason,
		Method:     string(method),
		Path:       r.URL.Path,
		RemoteAddr: remote,
	})
	if err != nil {
		g.logger.Error("failed to record auth event", "error", err)
	}
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// Require returns middleware that authorizes with Authorize and stores the
// AuthContext in the request context.
func (g *Gate) Require(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, err := g.Authorize(r, scopes)
			if err != nil {
				writeDenied(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

// RequireSession returns middleware for browser-only operations.
func (g *Gate) RequireSession() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, err := g.AuthorizeSession(r)
			if err != nil {
				writeDenied(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

// writeDenied sends the same body for every rejection kind.
func writeDenied(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "access denied"})
}

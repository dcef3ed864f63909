// ABOUTME: Permission-decision engine over the store: rights, namespace restrictions and page protections
// ABOUTME: Implements the read, right and role capabilities consumed by the auth package

package permissions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/labki-org/mwassistant-gateway/internal/auth"
	"github.com/labki-org/mwassistant-gateway/internal/store"
	"github.com/labki-org/mwassistant-gateway/internal/wiki"
)

// Store is the subset of the store the engine reads.
type Store interface {
	GetUserByName(ctx context.Context, name string) (*store.User, error)
	UserGroups(ctx context.Context, userID int64) ([]string, error)
	GroupsWithRight(ctx context.Context, right string) ([]string, error)
	NamespaceRestrictions(ctx context.Context, namespace int, action string) ([]string, error)
	PageRestrictions(ctx context.Context, title wiki.Title, action string) ([]string, error)
	LookupSession(ctx context.Context, id string) (*store.Session, error)
}

// Engine answers permission questions. It holds no state besides the store
// and is safe for concurrent use.
type Engine struct {
	store  Store
	logger *slog.Logger
}

// New creates an engine backed by st.
func New(st Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, logger: logger.With("component", "permissions")}
}

// Groups returns the explicit groups of who. These are the roles embedded in
// host→backend tokens. Anonymous visitors have none.
func (e *Engine) Groups(ctx context.Context, who auth.Identity) ([]string, error) {
	if who.IsAnonymous() {
		return []string{}, nil
	}
	groups, err := e.store.UserGroups(ctx, who.ID)
	if err != nil {
		return nil, fmt.Errorf("loading groups: %w", err)
	}
	return groups, nil
}

// EffectiveGroups adds the implicit groups: everyone is in "*", registered
// users are also in "user".
func (e *Engine) EffectiveGroups(ctx context.Context, who auth.Identity) ([]string, error) {
	groups := []string{store.GroupAll}
	if who.IsAnonymous() {
		return groups, nil
	}
	groups = append(groups, store.GroupUser)
	explicit, err := e.Groups(ctx, who)
	if err != nil {
		return nil, err
	}
	for _, g := range explicit {
		if !slices.Contains(groups, g) {
			groups = append(groups, g)
		}
	}
	return groups, nil
}

// HasRight reports whether any of who's groups holds right.
func (e *Engine) HasRight(ctx context.Context, who auth.Identity, right string) (bool, error) {
	groups, err := e.EffectiveGroups(ctx, who)
	if err != nil {
		return false, err
	}
	return e.hasRight(ctx, groups, right)
}

func (e *Engine) hasRight(ctx context.Context, groups []string, right string) (bool, error) {
	holders, err := e.store.GroupsWithRight(ctx, right)
	if err != nil {
		return false, fmt.Errorf("loading holders of %q: %w", right, err)
	}
	return intersects(groups, holders), nil
}

// CanRead reports whether who may read title.
func (e *Engine) CanRead(ctx context.Context, who auth.Identity, title wiki.Title) (bool, error) {
	return e.can(ctx, who, store.RightRead, title)
}

// CanEdit reports whether who may edit title. Editing also requires read
// access.
func (e *Engine) CanEdit(ctx context.Context, who auth.Identity, title wiki.Title) (bool, error) {
	ok, err := e.CanRead(ctx, who, title)
	if err != nil || !ok {
		return false, err
	}
	return e.can(ctx, who, store.RightEdit, title)
}

// can requires the right itself, then every namespace restriction and page
// protection for the action to name one of who's groups.
func (e *Engine) can(ctx context.Context, who auth.Identity, action string, title wiki.Title) (bool, error) {
	if title.Namespace < 0 {
		return false, nil
	}

	groups, err := e.EffectiveGroups(ctx, who)
	if err != nil {
		return false, err
	}
	ok, err := e.hasRight(ctx, groups, action)
	if err != nil || !ok {
		return false, err
	}

	nsGroups, err := e.store.NamespaceRestrictions(ctx, title.Namespace, action)
	if err != nil {
		return false, fmt.Errorf("loading namespace restrictions: %w", err)
	}
	if len(nsGroups) > 0 && !intersects(groups, nsGroups) {
		return false, nil
	}

	pageGroups, err := e.store.PageRestrictions(ctx, title, action)
	if err != nil {
		return false, fmt.Errorf("loading page restrictions: %w", err)
	}
	if len(pageGroups) > 0 && !intersects(groups, pageGroups) {
		return false, nil
	}
	return true, nil
}

// ResolveUser maps a username parameter to an identity. Empty and unknown
// names resolve to the anonymous identity; lookup failures are returned.
func (e *Engine) ResolveUser(ctx context.Context, name string) (auth.Identity, error) {
	if name == "" {
		return auth.Anonymous(), nil
	}
	u, err := e.store.GetUserByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		e.logger.Debug("unknown user treated as anonymous", "user", name)
		return auth.Anonymous(), nil
	}
	if err != nil {
		return auth.Anonymous(), fmt.Errorf("resolving user: %w", err)
	}
	return auth.Identity{Name: u.Name, ID: u.ID}, nil
}

// SessionIdentity maps a session id to its user.
// Returns store.ErrNotFound for missing or expired sessions.
func (e *Engine) SessionIdentity(ctx context.Context, sessionID string) (auth.Identity, error) {
	sess, err := e.store.LookupSession(ctx, sessionID)
	if err != nil {
		return auth.Anonymous(), err
	}
	return auth.Identity{Name: sess.UserName, ID: sess.UserID}, nil
}

func intersects(a, b []string) bool {
	for _, x := range a {
		if slices.Contains(b, x) {
			return true
		}
	}
	return false
}

var (
	_ auth.ReadChecker     = (*Engine)(nil)
	_ auth.RightChecker    = (*Engine)(nil)
	_ auth.RoleLookup      = (*Engine)(nil)
	_ auth.SessionResolver = (*Engine)(nil)
)

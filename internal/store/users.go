// ABOUTME: Users, group memberships, group rights and read/edit restrictions
// ABOUTME: Group and restriction writes are idempotent, like role grants

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/labki-org/mwassistant-gateway/internal/wiki"
)

// CreateUser registers a user. Names are trimmed and compared exactly.
// Returns ErrDuplicate if the name is taken.
func (s *SQLiteStore) CreateUser(ctx context.Context, name string) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("creating user: empty name")
	}

	u := &User{Name: name, CreatedAt: s.now()}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (name, created_at) VALUES (?, ?)`,
		u.Name, formatTime(u.CreatedAt))
	if err != nil {
		if isConstraintViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("reading user id: %w", err)
	}

	s.logger.Debug("created user", "id", u.ID, "name", u.Name)
	return u, nil
}

// GetUser retrieves a user by id.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM users WHERE id = ?`, id))
}

// GetUserByName retrieves a user by exact name.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUserByName(ctx context.Context, name string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM users WHERE name = ?`, strings.TrimSpace(name)))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*User, error) {
	var u User
	var created string
	err := row.Scan(&u.ID, &u.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	if u.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &u, nil
}

// AddUserGroup adds a user to a group. Adding an existing membership
// succeeds silently.
func (s *SQLiteStore) AddUserGroup(ctx context.Context, userID int64, group string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_groups (user_id, grp) VALUES (?, ?)`, userID, group)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("adding user group: %w", err)
	}
	s.logger.Debug("added user group", "user_id", userID, "group", group)
	return nil
}

// RemoveUserGroup removes a user from a group. Removing a missing membership
// succeeds silently.
func (s *SQLiteStore) RemoveUserGroup(ctx context.Context, userID int64, group string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_groups WHERE user_id = ? AND grp = ?`, userID, group)
	if err != nil {
		return fmt.Errorf("removing user group: %w", err)
	}
	s.logger.Debug("removed user group", "user_id", userID, "group", group)
	return nil
}

// UserGroups returns the explicit groups of a user, sorted. Implicit groups
// ("*" and "user") are not stored.
func (s *SQLiteStore) UserGroups(ctx context.Context, userID int64) ([]string, error) {
	return s.queryStrings(ctx, "user groups",
		`SELECT grp FROM user_groups WHERE user_id = ? ORDER BY grp`, userID)
}

// GrantRight gives a right to every member of group. Idempotent.
func (s *SQLiteStore) GrantRight(ctx context.Context, group, right string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_rights (grp, right_name) VALUES (?, ?)`, group, right)
	if err != nil {
		return fmt.Errorf("granting right: %w", err)
	}
	s.logger.Debug("granted right", "group", group, "right", right)
	return nil
}

// RevokeRight takes a right away from group. Idempotent.
func (s *SQLiteStore) RevokeRight(ctx context.Context, group, right string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM group_rights WHERE grp = ? AND right_name = ?`, group, right)
	if err != nil {
		return fmt.Errorf("revoking right: %w", err)
	}
	s.logger.Debug("revoked right", "group", group, "right", right)
	return nil
}

// GroupsWithRight lists the groups that hold right, sorted.
func (s *SQLiteStore) GroupsWithRight(ctx context.Context, right string) ([]string, error) {
	return s.queryStrings(ctx, "group rights",
		`SELECT grp FROM group_rights WHERE right_name = ? ORDER BY grp`, right)
}

// RestrictNamespace limits action in a whole namespace to members of group.
// Several groups may be allowed; membership in any one of them suffices.
func (s *SQLiteStore) RestrictNamespace(ctx context.Context, namespace int, action, group string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO namespace_restrictions (namespace, action, grp) VALUES (?, ?, ?)`,
		namespace, action, group)
	if err != nil {
		return fmt.Errorf("restricting namespace: %w", err)
	}
	s.logger.Debug("restricted namespace", "namespace", namespace, "action", action, "group", group)
	return nil
}

// NamespaceRestrictions returns the groups allowed to perform action in a
// namespace. An empty list means the namespace is unrestricted.
func (s *SQLiteStore) NamespaceRestrictions(ctx context.Context, namespace int, action string) ([]string, error) {
	return s.queryStrings(ctx, "namespace restrictions",
		`SELECT grp FROM namespace_restrictions WHERE namespace = ? AND action = ? ORDER BY grp`,
		namespace, action)
}

// ProtectPage limits action on a single page to members of group. The page
// does not need to exist.
func (s *SQLiteStore) ProtectPage(ctx context.Context, title wiki.Title, action, group string) error {
	if title.IsProbe() {
		return fmt.Errorf("%w: reserved page name", wiki.ErrInvalidTitle)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO page_restrictions (namespace, title, action, grp) VALUES (?, ?, ?, ?)`,
		title.Namespace, title.DBKey(), action, group)
	if err != nil {
		return fmt.Errorf("protecting page: %w", err)
	}
	s.logger.Debug("protected page", "title", title.String(), "action", action, "group", group)
	return nil
}

// PageRestrictions returns the groups allowed to perform action on a page.
// An empty list means the page carries no protection.
func (s *SQLiteStore) PageRestrictions(ctx context.Context, title wiki.Title, action string) ([]string, error) {
	return s.queryStrings(ctx, "page restrictions",
		`SELECT grp FROM page_restrictions WHERE namespace = ? AND title = ? AND action = ? ORDER BY grp`,
		title.Namespace, title.DBKey(), action)
}

func (s *SQLiteStore) queryStrings(ctx context.Context, what, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", what, err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", what, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", what, err)
	}
	return out, nil
}

// ABOUTME: Browser sessions keyed by an opaque random id
// ABOUTME: Expired sessions are treated as missing and pruned on lookup

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateSession opens a session for userID lasting ttl.
func (s *SQLiteStore) CreateSession(ctx context.Context, userID int64, ttl time.Duration) (*Session, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("creating session: ttl must be positive")
	}
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := &Session{
		ID:        uuid.New().String(),
		UserID:    u.ID,
		UserName:  u.Name,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.UserID, formatTime(sess.CreatedAt), formatTime(sess.ExpiresAt))
	if err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}

	s.logger.Debug("created session", "user_id", userID)
	return sess, nil
}

// LookupSession returns the live session with id.
// Returns ErrNotFound if it doesn't exist or has expired.
func (s *SQLiteStore) LookupSession(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}

	var sess Session
	var created, expires string
	err := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.user_id, u.name, s.created_at, s.expires_at
		FROM sessions s JOIN users u ON u.id = s.user_id
		WHERE s.id = ?
	`, id).Scan(&sess.ID, &sess.UserID, &sess.UserName, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	if sess.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if sess.ExpiresAt, err = parseTime(expires); err != nil {
		return nil, err
	}
	if !s.now().Before(sess.ExpiresAt) {
		if err := s.DeleteSession(ctx, id); err != nil {
			s.logger.Warn("failed to prune expired session", "error", err)
		}
		return nil, ErrNotFound
	}
	return &sess, nil
}

// DeleteSession removes a session. Deleting a missing session succeeds.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// ABOUTME: Page repository backed by SQLite: latest content, revisions and keyword search
// ABOUTME: Every PutContent writes a new revision and moves the page's touched time

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/labki-org/mwassistant-gateway/internal/wiki"
)

// snippetRadius is the number of bytes of context kept on each side of a
// search match.
const snippetRadius = 80

// GetContent returns the latest text of a page. The bool is false when the
// page does not exist.
func (s *SQLiteStore) GetContent(ctx context.Context, title wiki.Title) (string, bool, error) {
	var content string
	err := s.db.QueryRowContext(ctx, `
		SELECT r.content
		FROM pages p JOIN revisions r ON r.id = p.latest_rev
		WHERE p.namespace = ? AND p.title = ?
	`, title.Namespace, title.DBKey()).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying page content: %w", err)
	}
	return content, true, nil
}

// GetLastModified returns the touched time of a page.
// Returns ErrNotFound if the page doesn't exist.
func (s *SQLiteStore) GetLastModified(ctx context.Context, title wiki.Title) (time.Time, error) {
	var touched string
	err := s.db.QueryRowContext(ctx,
		`SELECT touched FROM pages WHERE namespace = ? AND title = ?`,
		title.Namespace, title.DBKey()).Scan(&touched)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("querying page: %w", err)
	}
	return parseTime(touched)
}

// Exists reports whether a page has at least one revision.
func (s *SQLiteStore) Exists(ctx context.Context, title wiki.Title) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pages WHERE namespace = ? AND title = ?`,
		title.Namespace, title.DBKey()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying page: %w", err)
	}
	return n > 0, nil
}

// PutContent stores text as the new latest revision of title, creating the
// page if needed. A nil author records the edit without attribution.
func (s *SQLiteStore) PutContent(ctx context.Context, title wiki.Title, text, summary string, flags EditFlags, author *User) (*EditResult, error) {
	if title.Namespace < 0 {
		return nil, fmt.Errorf("%w: namespace %d cannot hold pages", wiki.ErrInvalidTitle, title.Namespace)
	}
	if title.IsProbe() {
		return nil, fmt.Errorf("%w: reserved page name", wiki.ErrInvalidTitle)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := s.now()
	revID := uuid.New().String()
	result := &EditResult{RevisionID: revID, Touched: now}

	err = tx.QueryRowContext(ctx,
		`SELECT id FROM pages WHERE namespace = ? AND title = ?`,
		title.Namespace, title.DBKey()).Scan(&result.PageID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx,
			`INSERT INTO pages (namespace, title, latest_rev, touched) VALUES (?, ?, ?, ?)`,
			title.Namespace, title.DBKey(), revID, formatTime(now))
		if err != nil {
			return nil, fmt.Errorf("inserting page: %w", err)
		}
		if result.PageID, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("reading page id: %w", err)
		}
		result.New = true
	case err != nil:
		return nil, fmt.Errorf("querying page: %w", err)
	default:
		_, err := tx.ExecContext(ctx,
			`UPDATE pages SET latest_rev = ?, touched = ? WHERE id = ?`,
			revID, formatTime(now), result.PageID)
		if err != nil {
			return nil, fmt.Errorf("updating page: %w", err)
		}
	}

	var authorID any
	if author != nil && author.ID > 0 {
		authorID = author.ID
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO revisions (id, page_id, content, summary, minor, internal, author_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, revID, result.PageID, text, summary,
		boolInt(flags&EditMinor != 0), boolInt(flags&EditInternal != 0), authorID, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("inserting revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing edit: %w", err)
	}

	s.logger.Debug("saved page", "title", title.String(), "revision", revID, "new", result.New)
	return result, nil
}

// DeletePage removes a page and all of its revisions. Title restrictions
// are kept. Returns ErrNotFound if the page doesn't exist.
func (s *SQLiteStore) DeletePage(ctx context.Context, title wiki.Title) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pages WHERE namespace = ? AND title = ?`,
		title.Namespace, title.DBKey())
	if err != nil {
		return fmt.Errorf("deleting page: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	s.logger.Debug("deleted page", "title", title.String())
	return nil
}

// RevisionCount returns how many revisions a page has.
func (s *SQLiteStore) RevisionCount(ctx context.Context, title wiki.Title) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM revisions r JOIN pages p ON p.id = r.page_id
		WHERE p.namespace = ? AND p.title = ?
	`, title.Namespace, title.DBKey()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting revisions: %w", err)
	}
	return n, nil
}

// ListPages returns every page in a namespace with its latest content,
// ordered by title.
func (s *SQLiteStore) ListPages(ctx context.Context, namespace int) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.namespace, p.title, r.content, p.touched
		FROM pages p JOIN revisions r ON r.id = p.latest_rev
		WHERE p.namespace = ?
		ORDER BY p.title
	`, namespace)
	if err != nil {
		return nil, fmt.Errorf("querying pages: %w", err)
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		var p Page
		var dbKey, touched string
		if err := rows.Scan(&p.ID, &p.Title.Namespace, &dbKey, &p.Content, &touched); err != nil {
			return nil, fmt.Errorf("scanning page: %w", err)
		}
		p.Title.Text = strings.ReplaceAll(dbKey, "_", " ")
		if p.Touched, err = parseTime(touched); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// SearchText finds pages in namespaces whose title or latest content contains
// query, case-insensitively. Title matches rank first.
func (s *SQLiteStore) SearchText(ctx context.Context, query string, namespaces []int, limit int) ([]SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" || len(namespaces) == 0 || limit <= 0 {
		return nil, nil
	}

	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(namespaces)), ",")

	args := []any{pattern}
	for _, ns := range namespaces {
		args = append(args, ns)
	}
	args = append(args, pattern, pattern, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.namespace, p.title, r.content, p.touched,
			CASE WHEN lower(replace(p.title, '_', ' ')) LIKE ? ESCAPE '\' THEN 0 ELSE 1 END AS rank
		FROM pages p JOIN revisions r ON r.id = p.latest_rev
		WHERE p.namespace IN (`+placeholders+`)
		  AND (lower(replace(p.title, '_', ' ')) LIKE ? ESCAPE '\' OR lower(r.content) LIKE ? ESCAPE '\')
		ORDER BY rank, p.touched DESC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("searching pages: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		var dbKey, content, touched string
		var rank int
		if err := rows.Scan(&h.Title.Namespace, &dbKey, &content, &touched, &rank); err != nil {
			return nil, fmt.Errorf("scanning search hit: %w", err)
		}
		h.Title.Text = strings.ReplaceAll(dbKey, "_", " ")
		h.Size = len(content)
		h.WordCount = len(strings.Fields(content))
		h.Snippet = snippet(content, query)
		if h.Touched, err = parseTime(touched); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// snippet cuts a window of content around the first case-insensitive match
// of query, or the start of content when only the title matched.
func snippet(content, query string) string {
	idx := strings.Index(strings.ToLower(content), strings.ToLower(query))
	if idx < 0 {
		idx = 0
	}
	start := max(idx-snippetRadius, 0)
	end := min(idx+len(query)+snippetRadius, len(content))
	for start > 0 && !utf8.RuneStart(content[start]) {
		start--
	}
	for end < len(content) && !utf8.RuneStart(content[end]) {
		end++
	}

	out := strings.Join(strings.Fields(content[start:end]), " ")
	if start > 0 {
		out = "..." + out
	}
	if end < len(content) {
		out += "..."
	}
	return out
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Creates the schema and seeds canonical namespaces and default group rights

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/labki-org/mwassistant-gateway/internal/wiki"
)

// Well-known rights checked by the permission engine.
const (
	RightRead         = "read"
	RightEdit         = "edit"
	RightProtect      = "protect"
	RightAssistantUse = "assistant-use"
)

// Implicit and built-in groups.
const (
	GroupAll   = "*"
	GroupUser  = "user"
	GroupSysop = "sysop"
)

// defaultGroupRights is seeded on first start. Existing grants are left alone.
var defaultGroupRights = map[string][]string{
	GroupAll:   {RightRead},
	GroupUser:  {RightRead, RightEdit, RightAssistantUse},
	GroupSysop: {RightRead, RightEdit, RightAssistantUse, RightProtect},
}

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is created and seeded if it doesn't exist.
// Parent directories are created if needed. ":memory:" opens a private
// in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	inMemory := path == ":memory:"
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if inMemory {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	if err := s.seed(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("seeding defaults: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS namespaces (
			id   INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS pages (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			namespace  INTEGER NOT NULL,
			title      TEXT NOT NULL,
			latest_rev TEXT NOT NULL,
			touched    TEXT NOT NULL,
			UNIQUE (namespace, title)
		);

		CREATE TABLE IF NOT EXISTS revisions (
			id        TEXT PRIMARY KEY,
			page_id   INTEGER NOT NULL,
			content   TEXT NOT NULL,
			summary   TEXT NOT NULL DEFAULT '',
			minor     INTEGER NOT NULL DEFAULT 0,
			internal  INTEGER NOT NULL DEFAULT 0,
			author_id INTEGER,
			created_at TEXT NOT NULL,
			FOREIGN KEY (page_id) REFERENCES pages(id) ON DELETE CASCADE,
			FOREIGN KEY (author_id) REFERENCES users(id) ON DELETE SET NULL
		);

		CREATE INDEX IF NOT EXISTS idx_revisions_page ON revisions(page_id, created_at);

		CREATE TABLE IF NOT EXISTS users (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS user_groups (
			user_id INTEGER NOT NULL,
			grp     TEXT NOT NULL,
			PRIMARY KEY (user_id, grp),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS group_rights (
			grp   TEXT NOT NULL,
			right_name TEXT NOT NULL,
			PRIMARY KEY (grp, right_name)
		);

		CREATE TABLE IF NOT EXISTS namespace_restrictions (
			namespace INTEGER NOT NULL,
			action    TEXT NOT NULL,
			grp       TEXT NOT NULL,
			PRIMARY KEY (namespace, action, grp)
		);

		CREATE TABLE IF NOT EXISTS page_restrictions (
			namespace INTEGER NOT NULL,
			title     TEXT NOT NULL,
			action    TEXT NOT NULL,
			grp       TEXT NOT NULL,
			PRIMARY KEY (namespace, title, action, grp)
		);

		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			user_id    INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS auth_events (
			id          TEXT PRIMARY KEY,
			reason      TEXT NOT NULL,
			method      TEXT NOT NULL,
			path        TEXT NOT NULL,
			remote_addr TEXT NOT NULL,
			detail_json TEXT,
			ts          TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_auth_events_ts ON auth_events(ts);
	`
	_, err := s.db.Exec(schema)
	return err
}

// seed inserts the canonical namespace table and default group rights.
// It is idempotent.
func (s *SQLiteStore) seed(ctx context.Context) error {
	for _, id := range wiki.DefaultNamespaces.IDs() {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO namespaces (id, name) VALUES (?, ?)`,
			id, wiki.DefaultNamespaces[id])
		if err != nil {
			return fmt.Errorf("seeding namespace %d: %w", id, err)
		}
	}

	var grants int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM group_rights`).Scan(&grants); err != nil {
		return fmt.Errorf("counting group rights: %w", err)
	}
	if grants > 0 {
		return nil
	}
	for group, rights := range defaultGroupRights {
		for _, right := range rights {
			if err := s.GrantRight(ctx, group, right); err != nil {
				return err
			}
		}
	}
	s.logger.Debug("seeded default group rights")
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Namespaces returns every known namespace id in ascending order, including
// virtual ones.
func (s *SQLiteStore) Namespaces(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM namespaces ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying namespaces: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning namespace: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// NamespaceNames returns the namespace table.
func (s *SQLiteStore) NamespaceNames(ctx context.Context) (wiki.NamespaceNames, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM namespaces`)
	if err != nil {
		return nil, fmt.Errorf("querying namespaces: %w", err)
	}
	defer rows.Close()

	names := wiki.NamespaceNames{}
	for rows.Next() {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scanning namespace: %w", err)
		}
		names[id] = name
	}
	return names, rows.Err()
}

// AddNamespace registers a custom namespace.
func (s *SQLiteStore) AddNamespace(ctx context.Context, id int, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO namespaces (id, name) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`, id, name)
	if err != nil {
		return fmt.Errorf("adding namespace: %w", err)
	}
	return nil
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

var _ Store = (*SQLiteStore)(nil)

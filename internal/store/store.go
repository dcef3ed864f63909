// ABOUTME: Store interface and data types for mwassistant-gateway persistence
// ABOUTME: Defines pages, users, restrictions, sessions and auth events

package store

import (
	"context"
	"errors"
	"time"

	"github.com/labki-org/mwassistant-gateway/internal/wiki"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when creating an entity that already exists
var ErrDuplicate = errors.New("already exists")

// EditFlags modify how a revision is recorded.
type EditFlags uint8

const (
	EditMinor    EditFlags = 1 << iota // minor change
	EditInternal                       // written by the system, not a person
)

// User is a registered account. Anonymous visitors have no row.
type User struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Page is the latest state of a page.
type Page struct {
	ID      int64
	Title   wiki.Title
	Content string
	Touched time.Time
}

// EditResult reports the revision written by PutContent.
type EditResult struct {
	PageID     int64
	RevisionID string
	New        bool // the page did not exist before this edit
	Touched    time.Time
}

// SearchHit is one keyword search match.
type SearchHit struct {
	Title     wiki.Title
	Snippet   string
	Size      int
	WordCount int
	Touched   time.Time
}

// Session binds a browser cookie to a user.
type Session struct {
	ID        string
	UserID    int64
	UserName  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// AuthEvent records one rejected authentication or authorization decision.
// It carries a reason code and request metadata, never token material.
type AuthEvent struct {
	ID         string
	Reason     string
	Method     string // "bearer" or "session"
	Path       string
	RemoteAddr string
	Timestamp  time.Time
	Detail     map[string]any
}

// PageRepository reads and writes page text.
type PageRepository interface {
	GetContent(ctx context.Context, title wiki.Title) (string, bool, error)
	GetLastModified(ctx context.Context, title wiki.Title) (time.Time, error)
	PutContent(ctx context.Context, title wiki.Title, text, summary string, flags EditFlags, author *User) (*EditResult, error)
	DeletePage(ctx context.Context, title wiki.Title) error
	Exists(ctx context.Context, title wiki.Title) (bool, error)
	ListPages(ctx context.Context, namespace int) ([]Page, error)
	SearchText(ctx context.Context, query string, namespaces []int, limit int) ([]SearchHit, error)
}

// Store is the full persistence surface used by the gateway.
type Store interface {
	PageRepository

	Namespaces(ctx context.Context) ([]int, error)
	NamespaceNames(ctx context.Context) (wiki.NamespaceNames, error)

	CreateUser(ctx context.Context, name string) (*User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByName(ctx context.Context, name string) (*User, error)
	AddUserGroup(ctx context.Context, userID int64, group string) error
	RemoveUserGroup(ctx context.Context, userID int64, group string) error
	UserGroups(ctx context.Context, userID int64) ([]string, error)
	GrantRight(ctx context.Context, group, right string) error
	GroupsWithRight(ctx context.Context, right string) ([]string, error)

	RestrictNamespace(ctx context.Context, namespace int, action, group string) error
	NamespaceRestrictions(ctx context.Context, namespace int, action string) ([]string, error)
	ProtectPage(ctx context.Context, title wiki.Title, action, group string) error
	PageRestrictions(ctx context.Context, title wiki.Title, action string) ([]string, error)

	CreateSession(ctx context.Context, userID int64, ttl time.Duration) (*Session, error)
	LookupSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error

	AppendAuthEvent(ctx context.Context, e *AuthEvent) error
	ListAuthEvents(ctx context.Context, f AuthEventFilter) ([]AuthEvent, error)

	Close() error
}

// Package store provides persistent storage for the gateway using SQLite.
//
// # Data Models
//
//   - Page and revisions: the latest text of each page plus its edit history
//   - User: registered accounts; anonymous visitors have no row
//   - Group memberships and group rights ("read", "edit", "assistant-use", ...)
//   - Namespace restrictions and page protections, per action
//   - Session: browser sessions resolved from the session cookie
//   - AuthEvent: rejected bearer tokens and denied sessions
//
// Permission decisions are not made here; see package permissions.
//
// # Defaults
//
// A fresh database is seeded with the canonical namespace table and these
// group rights:
//
//	*      read
//	user   read, edit, assistant-use
//	sysop  read, edit, assistant-use, protect
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Timestamps are stored as fixed-width UTC text. Use NewSQLiteStore(":memory:")
// or a file under t.TempDir() in tests.
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist (or the session expired)
//   - ErrDuplicate: user name already taken
//
// All methods accept context.Context for cancellation support.
package store

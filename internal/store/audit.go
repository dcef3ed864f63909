// ABOUTME: Auth event log: one row per rejected bearer token or denied session
// ABOUTME: Stores reason codes and request metadata only, never token material

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuthEventFilter specifies filtering options for listing auth events.
type AuthEventFilter struct {
	Since  *time.Time // events at or after this time
	Reason *string    // exact reason code
	Method *string    // "bearer" or "session"
	Limit  int        // max results (default 100, max 1000)
}

// AppendAuthEvent appends a new event to the auth log.
// Generates ID and Timestamp if not set.
func (s *SQLiteStore) AppendAuthEvent(ctx context.Context, e *AuthEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}

	var detailJSON *string
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling auth event detail: %w", err)
		}
		str := string(data)
		detailJSON = &str
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_events (id, reason, method, path, remote_addr, detail_json, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Reason, e.Method, e.Path, e.RemoteAddr, detailJSON, formatTime(e.Timestamp))
	if err != nil {
		return fmt.Errorf("inserting auth event: %w", err)
	}

	s.logger.Debug("appended auth event", "id", e.ID, "reason", e.Reason, "method", e.Method)
	return nil
}

// normalizeEventLimit applies default (100) and cap (1000) to the list limit.
func normalizeEventLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

func scanAuthEvent(scanner interface{ Scan(dest ...any) error }) (AuthEvent, error) {
	var e AuthEvent
	var ts string
	var detailJSON *string

	if err := scanner.Scan(&e.ID, &e.Reason, &e.Method, &e.Path, &e.RemoteAddr, &detailJSON, &ts); err != nil {
		return e, fmt.Errorf("scanning auth event: %w", err)
	}

	var err error
	if e.Timestamp, err = parseTime(ts); err != nil {
		return e, err
	}
	if detailJSON != nil {
		if err := json.Unmarshal([]byte(*detailJSON), &e.Detail); err != nil {
			return e, fmt.Errorf("unmarshaling detail: %w", err)
		}
	}
	return e, nil
}

const authEventQuery = `
	SELECT id, reason, method, path, remote_addr, detail_json, ts
	FROM auth_events
	WHERE (? IS NULL OR ts >= ?)
	  AND (? IS NULL OR reason = ?)
	  AND (? IS NULL OR method = ?)
	ORDER BY ts DESC
	LIMIT ?
`

// ListAuthEvents returns events matching the filter, newest first.
func (s *SQLiteStore) ListAuthEvents(ctx context.Context, f AuthEventFilter) ([]AuthEvent, error) {
	var since *string
	if f.Since != nil {
		str := formatTime(*f.Since)
		since = &str
	}

	rows, err := s.db.QueryContext(ctx, authEventQuery,
		since, since,
		f.Reason, f.Reason,
		f.Method, f.Method,
		normalizeEventLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying auth events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := []AuthEvent{}
	for rows.Next() {
		e, err := scanAuthEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating auth events: %w", err)
	}
	return events, nil
}

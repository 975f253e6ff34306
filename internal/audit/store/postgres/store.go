package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"alloggiati/internal/audit"
)

// uniqueViolation is the SQLSTATE for a duplicate primary key.
const uniqueViolation = "23505"

// Schema creates the audit table. Applied by Migrate.
const Schema = `
CREATE TABLE IF NOT EXISTS portal_audit_events (
	id          TEXT PRIMARY KEY,
	occurred_at TIMESTAMPTZ NOT NULL,
	batch_id    TEXT NOT NULL,
	username    TEXT NOT NULL,
	action      TEXT NOT NULL,
	state       TEXT NOT NULL,
	success     BOOLEAN NOT NULL,
	accepted    INTEGER NOT NULL,
	total       INTEGER NOT NULL,
	error_kind  TEXT NOT NULL DEFAULT '',
	error_code  TEXT NOT NULL DEFAULT '',
	request_id  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS portal_audit_events_batch_idx ON portal_audit_events (batch_id);
`

// Store persists audit events in PostgreSQL.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the audit table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}
	return nil
}

// Append inserts event. Re-appending an event with the same ID is a no-op.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO portal_audit_events (
			id, occurred_at, batch_id, username, action, state,
			success, accepted, total, error_kind, error_code, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Timestamp,
		event.BatchID,
		event.Username,
		string(event.Action),
		event.State,
		event.Success,
		event.Accepted,
		event.Total,
		event.ErrorKind,
		event.ErrorCode,
		event.RequestID,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil
		}
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByBatch returns the events of one batch, oldest first.
func (s *Store) ListByBatch(ctx context.Context, batchID string) ([]audit.Event, error) {
	query := `
		SELECT id, occurred_at, batch_id, username, action, state,
			   success, accepted, total, error_kind, error_code, request_id
		FROM portal_audit_events
		WHERE batch_id = $1
		ORDER BY occurred_at ASC
	`
	return s.query(ctx, query, batchID)
}

// ListByStates returns up to limit most recent events whose state is in states.
func (s *Store) ListByStates(ctx context.Context, states []string, limit int) ([]audit.Event, error) {
	query := `
		SELECT id, occurred_at, batch_id, username, action, state,
			   success, accepted, total, error_kind, error_code, request_id
		FROM portal_audit_events
		WHERE state = ANY($1)
		ORDER BY occurred_at DESC
		LIMIT $2
	`
	return s.query(ctx, query, pq.Array(states), limit)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var e audit.Event
		var action string
		if err := rows.Scan(
			&e.ID, &e.Timestamp, &e.BatchID, &e.Username, &action, &e.State,
			&e.Success, &e.Accepted, &e.Total, &e.ErrorKind, &e.ErrorCode, &e.RequestID,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Action = audit.Action(action)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

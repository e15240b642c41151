package repository

import (
	"context"
	"database/sql"
	"time"

	"authsession/internal/telemetry/domain"
)

// PostgresRepository keeps a local audit trail of session events in the session_events table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a repository that uses db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Save persists the event and sets e.ID on success.
func (r *PostgresRepository) Save(ctx context.Context, e *domain.Event) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return r.db.QueryRowContext(ctx,
		`INSERT INTO session_events (event_type, user_id, device_id, session_id, reason, source, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		string(e.Type), nullString(e.UserID), nullString(e.DeviceID), nullString(e.SessionID),
		nullString(e.Reason), e.Source, createdAt,
	).Scan(&e.ID)
}

// Emit implements telemetry.EventEmitter.
func (r *PostgresRepository) Emit(ctx context.Context, e *domain.Event) error {
	if e == nil {
		return nil
	}
	return r.Save(ctx, e)
}

// ListByDevice returns the newest events for deviceID, newest first.
func (r *PostgresRepository) ListByDevice(ctx context.Context, deviceID string, limit int32) ([]*domain.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event_type, user_id, device_id, session_id, reason, source, created_at
		 FROM session_events WHERE device_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2`,
		deviceID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Event
	for rows.Next() {
		var (
			e                                domain.Event
			eventType                        string
			userID, devID, sessionID, reason sql.NullString
		)
		if err := rows.Scan(&e.ID, &eventType, &userID, &devID, &sessionID, &reason, &e.Source, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = domain.EventType(eventType)
		e.UserID, e.DeviceID, e.SessionID, e.Reason = userID.String, devID.String, sessionID.String, reason.String
		out = append(out, &e)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

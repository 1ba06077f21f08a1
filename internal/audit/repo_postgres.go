package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepo writes to the call_events table. UPDATE and DELETE are rejected by a trigger.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO call_events (id, call_sid, type, actor, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::jsonb, $7)
`
	if _, err := r.db.ExecContext(ctx, q, e.ID, e.CallSID, string(e.Type), e.Actor, e.Message, e.Metadata, e.CreatedAt); err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

func (r *PostgresRepo) ListByCallSID(ctx context.Context, callSID string) ([]Event, error) {
	const q = `
SELECT id, call_sid, type, actor, message, COALESCE(metadata::text, ''), created_at
FROM call_events
WHERE call_sid = $1
ORDER BY created_at
`
	rows, err := r.db.QueryContext(ctx, q, callSID)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var (
			e   Event
			typ string
		)
		if err := rows.Scan(&e.ID, &e.CallSID, &typ, &e.Actor, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}

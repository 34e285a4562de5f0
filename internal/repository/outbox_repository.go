package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// OutboxEvent is a notification waiting to be forwarded to the broker.
type OutboxEvent struct {
	ID        uint64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// OutboxRepo stores events in the same transaction as the state change
// they describe.
type OutboxRepo struct{ db *sql.DB }

func NewOutboxRepo(db *sql.DB) *OutboxRepo { return &OutboxRepo{db: db} }

// Append encodes payload as JSON and stores it as an unpublished event.
func (r *OutboxRepo) Append(ctx context.Context, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	_, err = conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO outbox_events (event_type, payload) VALUES (?, ?)`, eventType, body)
	return err
}

// Pending returns up to limit unpublished events in insertion order.
func (r *OutboxRepo) Pending(ctx context.Context, limit int) ([]OutboxEvent, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT id, event_type, payload, created_at FROM outbox_events
		 WHERE published_at IS NULL ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.ID, &e.Type, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkPublished stamps the given events as delivered to the broker.
func (r *OutboxRepo) MarkPublished(ctx context.Context, ids ...uint64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE outbox_events SET published_at = UTC_TIMESTAMP(3) WHERE id IN (`+placeholders(len(ids))+`)`,
		args...)
	return err
}

package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

type WebhookRepository struct {
	DB *sql.DB
}

func NewWebhookRepository(db *sql.DB) *WebhookRepository { return &WebhookRepository{DB: db} }

// IsProcessed reports whether (provider, eventID) was already handled.
func (r *WebhookRepository) IsProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM processed_webhooks WHERE provider = $1 AND event_id = $2)`,
		provider, eventID).Scan(&exists)
	return exists, err
}

// MarkProcessed records the event. Returns false when another delivery of
// the same event won the insert race; the unique constraint on
// (provider, event_id) is the source of truth, not the preceding read.
func (r *WebhookRepository) MarkProcessed(ctx context.Context, provider, eventID string, payload json.RawMessage) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO processed_webhooks (provider, event_id, payload) VALUES ($1, $2, $3)
		ON CONFLICT (provider, event_id) DO NOTHING`, provider, eventID, payload)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("mark webhook processed: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

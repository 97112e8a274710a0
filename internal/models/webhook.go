package models

import (
	"encoding/json"
	"time"
)

// ProcessedWebhook marks an external event as handled. Rows are append-only;
// the unique (provider, event_id) pair is the idempotency key.
type ProcessedWebhook struct {
	ID          int64           `json:"id"`
	Provider    string          `json:"provider"`
	EventID     string          `json:"event_id"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	ProcessedAt time.Time       `json:"processed_at"`
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
)

// WebhookLedger is the slice of the webhook repository the idempotency
// gate needs.
type WebhookLedger interface {
	IsProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string, payload json.RawMessage) (bool, error)
}

// IdempotencyService dedups external events by (provider, eventId).
type IdempotencyService struct {
	Webhooks WebhookLedger
}

func NewIdempotencyService(webhooks WebhookLedger) *IdempotencyService {
	return &IdempotencyService{Webhooks: webhooks}
}

func (s *IdempotencyService) IsProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	return s.Webhooks.IsProcessed(ctx, provider, eventID)
}

// ProcessWithIdempotency runs fn at most once per (provider, eventID).
// Returns alreadyProcessed=true with no side effects for duplicates. The
// preceding read is only a fast path; losing the concurrent insert race is
// also reported as already processed, never as an error.
func (s *IdempotencyService) ProcessWithIdempotency(ctx context.Context, provider, eventID string, payload json.RawMessage, fn func(context.Context) error) (alreadyProcessed bool, err error) {
	done, err := s.Webhooks.IsProcessed(ctx, provider, eventID)
	if err != nil {
		return false, fmt.Errorf("idempotency check: %w", err)
	}
	if done {
		return true, nil
	}

	if err := fn(ctx); err != nil {
		// not marked: the delivery mechanism is expected to retry
		return false, err
	}

	inserted, err := s.Webhooks.MarkProcessed(ctx, provider, eventID, payload)
	if err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}
	if !inserted {
		// a concurrent delivery won the insert; treat our attempt as the
		// duplicate
		return true, nil
	}
	return false, nil
}

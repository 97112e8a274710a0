package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"paydesk/internal/gateway"
	"paydesk/internal/models"
	"paydesk/internal/services"
)

const maxWebhookBody = 1 << 20

// SettlementCoordinator is the slice of the settlement service the ingress
// needs.
type SettlementCoordinator interface {
	Settle(ctx context.Context, invoiceID int64, sig services.Signal) (bool, error)
	RecordFailure(ctx context.Context, invoiceID int64, reason string) error
}

// WebhookHandler is the PSP ingress. Signature first, then the idempotency
// gate, then settlement. Anything the provider should retry gets a non-2xx.
type WebhookHandler struct {
	Gateways    *gateway.Factory
	Idempotency *services.IdempotencyService
	Settlement  SettlementCoordinator
	Logger      *slog.Logger
}

func (h *WebhookHandler) HandleProviderWebhook(w http.ResponseWriter, r *http.Request) {
	provider := getParam(r, "provider")
	gw, err := h.Gateways.Gateway(provider)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}

	event, err := gw.VerifyWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.Logger.Warn("webhook signature rejected", "provider", provider, "error", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	switch {
	case gateway.IsSuccessEvent(event.Type):
		h.handleSuccess(w, r, gw.Provider(), event, payload)
	case gateway.IsFailureEvent(event.Type):
		h.handleFailure(w, r, gw.Provider(), event, payload)
	default:
		// Unknown event types are acknowledged so the provider stops
		// redelivering them.
		h.Logger.Info("ignoring webhook event", "provider", provider, "type", event.Type)
		_ = json.NewEncoder(w).Encode(map[string]any{"received": true, "ignored": true})
	}
}

func (h *WebhookHandler) handleSuccess(w http.ResponseWriter, r *http.Request, provider string, event *gateway.WebhookEvent, payload []byte) {
	invoiceID, err := strconv.ParseInt(event.Data.Metadata.InvoiceID, 10, 64)
	if err != nil || invoiceID <= 0 {
		http.Error(w, "missing invoice id in event metadata", http.StatusBadRequest)
		return
	}

	providerPaymentID := event.Data.PaymentID
	if providerPaymentID == "" {
		providerPaymentID = event.Data.CheckoutSessionID
	}
	sig := services.Signal{
		Kind:              models.PaymentTypeFiat,
		Provider:          provider,
		ProviderPaymentID: providerPaymentID,
		Amount:            event.Data.Amount,
	}

	duplicate, err := h.Idempotency.ProcessWithIdempotency(r.Context(), provider, event.ID, payload, func(ctx context.Context) error {
		_, serr := h.Settlement.Settle(ctx, invoiceID, sig)
		return serr
	})
	if err != nil {
		if errors.Is(err, models.ErrInvoiceNotFound) {
			http.Error(w, "invoice not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, models.ErrInvoiceCancelled) || errors.Is(err, models.ErrInvoiceNotPayable) {
			// Permanent condition; a retry can never succeed.
			h.Logger.Warn("webhook for unpayable invoice", "invoice_id", invoiceID, "error", err)
			_ = json.NewEncoder(w).Encode(map[string]any{"received": true, "rejected": err.Error()})
			return
		}
		h.Logger.Error("settlement failed", "invoice_id", invoiceID, "event_id", event.ID, "error", err)
		http.Error(w, "settlement failed", http.StatusInternalServerError)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{"received": true, "duplicate": duplicate})
}

func (h *WebhookHandler) handleFailure(w http.ResponseWriter, r *http.Request, provider string, event *gateway.WebhookEvent, payload []byte) {
	invoiceID, err := strconv.ParseInt(event.Data.Metadata.InvoiceID, 10, 64)
	if err != nil || invoiceID <= 0 {
		// Failure events without our metadata are not ours to track.
		_ = json.NewEncoder(w).Encode(map[string]any{"received": true, "ignored": true})
		return
	}

	duplicate, err := h.Idempotency.ProcessWithIdempotency(r.Context(), provider, event.ID, payload, func(ctx context.Context) error {
		return h.Settlement.RecordFailure(ctx, invoiceID, event.Type)
	})
	if err != nil {
		h.Logger.Error("record payment failure", "invoice_id", invoiceID, "error", err)
		http.Error(w, "record failure", http.StatusInternalServerError)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{"received": true, "duplicate": duplicate})
}

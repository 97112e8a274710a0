package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"paydesk/internal/gateway"
	"paydesk/internal/models"
	"paydesk/internal/services"
)

type InvoiceHandler struct {
	Service  *services.InvoiceService
	Gateways *gateway.Factory
}

func (h *InvoiceHandler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(w, r)
	if !ok {
		return
	}

	var req services.CreateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.UserID = userID

	inv, err := h.Service.Create(r.Context(), req)
	if err != nil {
		if errors.Is(err, models.ErrClientNotFound) {
			http.Error(w, "client not found", http.StatusNotFound)
			return
		}
		http.Error(w, "create invoice: "+err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(inv)
}

func (h *InvoiceHandler) GetInvoiceByID(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.ownedInvoice(w, r)
	if !ok {
		return
	}
	_ = json.NewEncoder(w).Encode(inv)
}

func (h *InvoiceHandler) GetInvoices(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(w, r)
	if !ok {
		return
	}
	invoices, err := h.Service.List(r.Context(), userID)
	if err != nil {
		http.Error(w, "list invoices: "+err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"invoices": invoices})
}

// SendInvoice moves a draft to sent and mints its payment token. Repeating
// the call on an already sent invoice is rejected.
func (h *InvoiceHandler) SendInvoice(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.ownedInvoice(w, r)
	if !ok {
		return
	}
	sent, err := h.Service.Send(r.Context(), inv.ID)
	if err != nil {
		if errors.Is(err, models.ErrInvoiceNotDraft) {
			http.Error(w, "invoice is not a draft", http.StatusConflict)
			return
		}
		http.Error(w, "send invoice: "+err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(sent)
}

func (h *InvoiceHandler) CancelInvoice(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.ownedInvoice(w, r)
	if !ok {
		return
	}
	cancelled, err := h.Service.Cancel(r.Context(), inv.ID)
	if err != nil {
		if errors.Is(err, models.ErrAlreadyPaid) {
			http.Error(w, "paid invoices cannot be cancelled", http.StatusConflict)
			return
		}
		http.Error(w, "cancel invoice: "+err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(cancelled)
}

// CreateCheckout opens a hosted checkout session at the configured provider
// for a payable invoice.
func (h *InvoiceHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.ownedInvoice(w, r)
	if !ok {
		return
	}
	if !inv.IsPayable() {
		http.Error(w, "invoice is not payable", http.StatusConflict)
		return
	}

	provider := r.URL.Query().Get("provider")
	if provider == "" {
		provider = gateway.ProviderStripe
	}
	gw, err := h.Gateways.Gateway(provider)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	checkout, err := gw.CreateCheckout(r.Context(), inv.ID, inv.Number, inv.Total, inv.Currency)
	if err != nil {
		http.Error(w, "create checkout: "+err.Error(), gatewayErrorStatus(err))
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"provider":            provider,
		"provider_payment_id": checkout.ProviderPaymentID,
		"checkout_url":        checkout.CheckoutURL,
		"expires_at":          checkout.ExpiresAt,
	})
}

func (h *InvoiceHandler) ownedInvoice(w http.ResponseWriter, r *http.Request) (models.Invoice, bool) {
	userID, ok := authedUserID(w, r)
	if !ok {
		return models.Invoice{}, false
	}
	id, err := parseIDParam(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return models.Invoice{}, false
	}
	inv, err := h.Service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrInvoiceNotFound) {
			http.Error(w, "invoice not found", http.StatusNotFound)
			return models.Invoice{}, false
		}
		http.Error(w, "get invoice: "+err.Error(), http.StatusInternalServerError)
		return models.Invoice{}, false
	}
	if inv.UserID != userID {
		// Hide other users' invoices entirely.
		http.Error(w, "invoice not found", http.StatusNotFound)
		return models.Invoice{}, false
	}
	return inv, true
}

func gatewayErrorStatus(err error) int {
	var gwErr *gateway.GatewayError
	if errors.As(err, &gwErr) {
		if gwErr.StatusCode >= 400 && gwErr.StatusCode < 500 {
			return gwErr.StatusCode
		}
	}
	return http.StatusBadGateway
}

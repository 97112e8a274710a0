package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"paydesk/internal/models"
	"paydesk/internal/services"
)

// StatusHandler serves the unauthenticated payer status endpoint, addressed
// by payment token only.
type StatusHandler struct {
	Status *services.StatusService
}

func (h *StatusHandler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	token := getParam(r, "token")
	if token == "" {
		http.Error(w, "missing payment token", http.StatusBadRequest)
		return
	}

	st, err := h.Status.ForToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, models.ErrTokenNotFound) {
			http.Error(w, "unknown payment token", http.StatusNotFound)
			return
		}
		http.Error(w, "payment status: "+err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(st)
}

package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"paydesk/internal/models"
	"paydesk/internal/services"
)

// ChainHandler takes on-chain activity deliveries and hands out receiving
// addresses.
type ChainHandler struct {
	Activity *services.ChainActivityService
	Wallets  *services.WalletService
	// SigningKey authenticates activity deliveries. Empty disables the
	// check, for local development only.
	SigningKey string
	Logger     *slog.Logger
}

// HandleActivity ingests a transfer-activity delivery from the chain data
// provider. Deliveries are acknowledged even when no transfer in them could
// be attributed; the provider must not retry those.
func (h *ChainHandler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if h.SigningKey != "" && !validActivitySignature(payload, r.Header.Get("X-Alchemy-Signature"), h.SigningKey) {
		h.Logger.Warn("activity delivery signature rejected")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var delivery services.ActivityDelivery
	if err := json.Unmarshal(payload, &delivery); err != nil {
		http.Error(w, "decode delivery: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Activity.HandleDelivery(r.Context(), delivery, payload); err != nil {
		h.Logger.Error("activity delivery failed", "delivery_id", delivery.ID, "error", err)
		http.Error(w, "delivery processing failed", http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"received": true})
}

func validActivitySignature(payload []byte, signature, key string) bool {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(payload)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}

// GenerateWalletAddress issues (or returns) the caller's receiving address
// for a chain and asset.
func (h *ChainHandler) GenerateWalletAddress(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(w, r)
	if !ok {
		return
	}

	var req struct {
		Chain string `json:"chain"`
		Asset string `json:"asset"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	addr, err := h.Wallets.GenerateAddress(r.Context(), userID, req.Chain, req.Asset)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUnknownChain), errors.Is(err, models.ErrUnknownAsset):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, services.ErrAddressPoolExhausted):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			http.Error(w, "issue address: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}
	_ = json.NewEncoder(w).Encode(addr)
}

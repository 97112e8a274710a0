package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"paydesk/internal/services"
)

const defaultTopClients = 5

// StatsHandler serves the income dashboard. Every figure is computed from a
// single ledger snapshot so the numbers in one response agree with each
// other.
type StatsHandler struct {
	Stats *services.StatsService
}

func (h *StatsHandler) GetOverview(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(w, r)
	if !ok {
		return
	}
	from, to, err := parseDateRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	granularity := r.URL.Query().Get("granularity")
	if granularity == "" {
		granularity = services.GranularityMonth
	}
	topN := defaultTopClients
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid top parameter", http.StatusBadRequest)
			return
		}
		topN = n
	}

	entries, err := h.Stats.Entries(r.Context(), userID, from, to)
	if err != nil {
		http.Error(w, "load ledger: "+err.Error(), http.StatusInternalServerError)
		return
	}
	byPeriod, err := services.AggregateByPeriod(entries, granularity)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"total_income": services.TotalIncome(entries),
		"by_period":    byPeriod,
		"top_clients":  services.ClientRankings(entries, topN),
		"by_method":    services.PaymentMethodDistribution(entries),
		"stablecoins":  services.StablecoinAggregation(entries),
	})
}

func (h *StatsHandler) GetTaxReserve(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(w, r)
	if !ok {
		return
	}
	total, reserve, err := h.Stats.TaxReserveFor(r.Context(), userID)
	if err != nil {
		http.Error(w, "tax reserve: "+err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"total_income": total,
		"tax_reserve":  reserve,
	})
}

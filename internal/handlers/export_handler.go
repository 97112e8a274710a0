package handlers

import (
	"fmt"
	"net/http"

	"paydesk/internal/services"
)

type ExportHandler struct {
	Export *services.ExportService
}

// ExportCSV streams the ledger as a CSV download.
func (h *ExportHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(w, r)
	if !ok {
		return
	}
	from, to, err := parseDateRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", services.Filename(from, to)))
	if err := h.Export.WriteCSV(r.Context(), w, userID, from, to); err != nil {
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
}

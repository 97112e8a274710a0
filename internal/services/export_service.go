package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"paydesk/internal/models"
	"paydesk/internal/money"
	"paydesk/internal/repositories"
)

var exportHeader = []string{
	"Date",
	"Invoice Number",
	"Client Name",
	"Client Email",
	"Project",
	"Amount",
	"Currency",
	"Amount (Default Currency)",
	"Payment Method",
	"Client Country",
}

// ExportService streams the income ledger as CSV for accountants. Rows come
// out in the repository's order, one line per ledger entry.
type ExportService struct {
	Ledger *repositories.LedgerRepository
}

// WriteCSV writes the user's ledger for the optional date range to w. An
// empty ledger still produces the header row.
func (s *ExportService) WriteCSV(ctx context.Context, w io.Writer, userID int64, from, to *time.Time) error {
	entries, err := s.Ledger.ListByUser(ctx, userID, from, to)
	if err != nil {
		return err
	}
	return WriteEntriesCSV(w, entries)
}

// WriteEntriesCSV renders ledger entries as CSV, header first.
func WriteEntriesCSV(w io.Writer, entries []models.LedgerEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range entries {
		row := []string{
			e.CreatedAt.UTC().Format("2006-01-02"),
			e.Metadata[models.MetaInvoiceNumber],
			e.ClientName,
			e.ClientEmail,
			e.ProjectName,
			e.Amount.StringFixed(money.Scale(e.Currency)),
			e.Currency,
			e.AmountInDefaultCurrency.String(),
			e.PaymentMethod,
			e.ClientCountry,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Filename names the download after the range, e.g. income_2026-01-01_2026-03-31.csv.
func Filename(from, to *time.Time) string {
	switch {
	case from != nil && to != nil:
		return fmt.Sprintf("income_%s_%s.csv", from.UTC().Format("2006-01-02"), to.UTC().Format("2006-01-02"))
	case from != nil:
		return fmt.Sprintf("income_from_%s.csv", from.UTC().Format("2006-01-02"))
	case to != nil:
		return fmt.Sprintf("income_until_%s.csv", to.UTC().Format("2006-01-02"))
	default:
		return "income_all.csv"
	}
}

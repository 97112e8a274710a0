package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"paydesk/internal/models"
)

type LedgerRepository struct {
	DB *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository { return &LedgerRepository{DB: db} }

// InsertTx creates the single ledger entry for an invoice inside the
// settlement transaction. The unique index on invoice_id is the real
// at-most-one guarantee; a duplicate surfaces as ErrLedgerEntryExists.
func (r *LedgerRepository) InsertTx(ctx context.Context, tx *sql.Tx, e *models.LedgerEntry) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal ledger metadata: %w", err)
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (user_id, invoice_id, client_id, project_id, amount, currency,
			amount_in_default_currency, payment_method, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		e.UserID, e.InvoiceID, e.ClientID, e.ProjectID, e.Amount, e.Currency,
		e.AmountInDefaultCurrency, e.PaymentMethod, meta,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrLedgerEntryExists
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// ExistsForInvoice reports whether the invoice already has its ledger entry.
func (r *LedgerRepository) ExistsForInvoice(ctx context.Context, invoiceID int64) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE invoice_id = $1)`, invoiceID).Scan(&exists)
	return exists, err
}

// ListByUser returns the user's ledger entries joined with client and project
// references, newest first. This is the read-side snapshot every aggregate
// and the CSV export consume.
func (r *LedgerRepository) ListByUser(ctx context.Context, userID int64, from, to *time.Time) ([]models.LedgerEntry, error) {
	query := `
		SELECT le.id, le.user_id, le.invoice_id, le.client_id, le.project_id, le.amount, le.currency,
		       le.amount_in_default_currency, le.payment_method, le.metadata, le.created_at,
		       c.name, c.email, c.country, COALESCE(p.name, '')
		FROM ledger_entries le
		JOIN clients c ON c.id = le.client_id
		LEFT JOIN projects p ON p.id = le.project_id
		WHERE le.user_id = $1`
	args := []any{userID}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND le.created_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND le.created_at < $%d", len(args))
	}
	query += " ORDER BY le.created_at DESC"

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanLedgerEntry(scanner interface{ Scan(dest ...any) error }) (models.LedgerEntry, error) {
	var e models.LedgerEntry
	var projectID sql.NullInt64
	var meta []byte
	err := scanner.Scan(&e.ID, &e.UserID, &e.InvoiceID, &e.ClientID, &projectID, &e.Amount, &e.Currency,
		&e.AmountInDefaultCurrency, &e.PaymentMethod, &meta, &e.CreatedAt,
		&e.ClientName, &e.ClientEmail, &e.ClientCountry, &e.ProjectName)
	if err != nil {
		return models.LedgerEntry{}, err
	}
	if projectID.Valid {
		v := projectID.Int64
		e.ProjectID = &v
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return models.LedgerEntry{}, fmt.Errorf("unmarshal ledger metadata: %w", err)
		}
	}
	return e, nil
}

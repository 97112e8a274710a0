package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"paydesk/internal/models"
)

type InvoiceRepository struct {
	DB *sql.DB
}

func NewInvoiceRepository(db *sql.DB) *InvoiceRepository { return &InvoiceRepository{DB: db} }

const invoiceColumns = `id, user_id, client_id, project_id, number, currency, issue_date, due_date,
	line_items, subtotal, tax_rate, tax_amount, total, status, allow_crypto_payment,
	payment_token, sent_at, paid_at, created_at, updated_at`

// NextNumber increments the per-user-per-month counter and formats the
// invoice number. Runs inside the caller's transaction so concurrent creates
// cannot observe the same sequence value.
func (r *InvoiceRepository) NextNumber(ctx context.Context, tx *sql.Tx, userID int64, issueDate time.Time) (string, error) {
	period := issueDate.UTC().Format("200601")
	var seq int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO invoice_counters (user_id, period, last_seq) VALUES ($1, $2, 1)
		ON CONFLICT (user_id, period) DO UPDATE SET last_seq = invoice_counters.last_seq + 1
		RETURNING last_seq`, userID, period).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("next invoice number: %w", err)
	}
	return fmt.Sprintf("INV-%s-%04d", period, seq), nil
}

// Create inserts a draft invoice, assigning its number from the counter.
func (r *InvoiceRepository) Create(ctx context.Context, inv *models.Invoice) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	inv.Number, err = r.NextNumber(ctx, tx, inv.UserID, inv.IssueDate)
	if err != nil {
		return err
	}

	items, err := json.Marshal(inv.LineItems)
	if err != nil {
		return fmt.Errorf("marshal line items: %w", err)
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO invoices (user_id, client_id, project_id, number, currency, issue_date, due_date,
			line_items, subtotal, tax_rate, tax_amount, total, status, allow_crypto_payment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 'draft', $13)
		RETURNING id, status, created_at, updated_at`,
		inv.UserID, inv.ClientID, inv.ProjectID, inv.Number, inv.Currency, inv.IssueDate, inv.DueDate,
		items, inv.Subtotal, inv.TaxRate, inv.TaxAmount, inv.Total, inv.AllowCryptoPayment,
	).Scan(&inv.ID, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return tx.Commit()
}

func (r *InvoiceRepository) GetByID(ctx context.Context, id int64) (models.Invoice, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	return scanInvoice(row)
}

// GetByIDTx reads the invoice inside a transaction with a row lock, so the
// settlement transition is serialized per invoice across instances.
func (r *InvoiceRepository) GetByIDTx(ctx context.Context, tx *sql.Tx, id int64) (models.Invoice, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
	return scanInvoice(row)
}

func (r *InvoiceRepository) GetByToken(ctx context.Context, token string) (models.Invoice, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE payment_token = $1`, token)
	inv, err := scanInvoice(row)
	if errors.Is(err, models.ErrInvoiceNotFound) {
		return models.Invoice{}, models.ErrTokenNotFound
	}
	return inv, err
}

func (r *InvoiceRepository) ListByUser(ctx context.Context, userID int64) ([]models.Invoice, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// MarkSent flips a draft to sent, minting the payment token. The status
// guard in the WHERE clause rejects non-drafts.
func (r *InvoiceRepository) MarkSent(ctx context.Context, id int64, token string, sentAt time.Time) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE invoices SET status = 'sent', payment_token = $1, sent_at = $2, updated_at = NOW()
		WHERE id = $3 AND status = 'draft'`, token, sentAt, id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrInvoiceNotDraft
	}
	return nil
}

// Cancel moves a non-paid invoice to cancelled and clears its payment token.
func (r *InvoiceRepository) Cancel(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE invoices SET status = 'cancelled', payment_token = NULL, updated_at = NOW()
		WHERE id = $1 AND status IN ('draft', 'sent', 'overdue')`, id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrAlreadyPaid
	}
	return nil
}

// MarkOverdueBefore transitions all sent invoices past their due date to
// overdue and returns how many rows moved. Used by the daily sweep.
func (r *InvoiceRepository) MarkOverdueBefore(ctx context.Context, today time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE invoices SET status = 'overdue', updated_at = NOW()
		WHERE status = 'sent' AND due_date < $1`, today)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListPayableByAmount finds invoices of the user that a crypto transfer of
// the given amount could settle: payable status, crypto allowed, total within
// the tolerance. Oldest first, so the first unpaid invoice wins.
func (r *InvoiceRepository) ListPayableByAmount(ctx context.Context, userID int64, amount, tolerance decimal.Decimal) ([]models.Invoice, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE user_id = $1 AND status IN ('sent', 'overdue') AND allow_crypto_payment
		  AND ABS(total - $2::numeric) <= $3::numeric
		ORDER BY created_at ASC`, userID, amount, tolerance)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func scanInvoice(scanner interface{ Scan(dest ...any) error }) (models.Invoice, error) {
	var inv models.Invoice
	var projectID sql.NullInt64
	var items []byte
	var token sql.NullString
	var sentAt, paidAt sql.NullTime
	err := scanner.Scan(
		&inv.ID, &inv.UserID, &inv.ClientID, &projectID, &inv.Number, &inv.Currency,
		&inv.IssueDate, &inv.DueDate, &items, &inv.Subtotal, &inv.TaxRate, &inv.TaxAmount,
		&inv.Total, &inv.Status, &inv.AllowCryptoPayment, &token, &sentAt, &paidAt,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Invoice{}, models.ErrInvoiceNotFound
	}
	if err != nil {
		return models.Invoice{}, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &inv.LineItems); err != nil {
			return models.Invoice{}, fmt.Errorf("unmarshal line items: %w", err)
		}
	}
	if projectID.Valid {
		v := projectID.Int64
		inv.ProjectID = &v
	}
	if token.Valid {
		v := token.String
		inv.PaymentToken = &v
	}
	if sentAt.Valid {
		t := sentAt.Time
		inv.SentAt = &t
	}
	if paidAt.Valid {
		t := paidAt.Time
		inv.PaidAt = &t
	}
	return inv, nil
}

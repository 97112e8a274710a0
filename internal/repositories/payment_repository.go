package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"paydesk/internal/models"
)

type PaymentRepository struct {
	DB *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository { return &PaymentRepository{DB: db} }

// CreatePending records the payment row when a checkout or an incoming
// transfer is first observed, before settlement.
func (r *PaymentRepository) CreatePending(ctx context.Context, p *models.Payment) error {
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO payments (invoice_id, type, status, amount, currency, provider, provider_payment_id)
		VALUES ($1, $2, 'pending', $3, $4, $5, $6)
		ON CONFLICT (invoice_id) DO UPDATE SET
			type = EXCLUDED.type,
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			provider = EXCLUDED.provider,
			provider_payment_id = EXCLUDED.provider_payment_id,
			updated_at = NOW()
		RETURNING id, status, created_at, updated_at`,
		p.InvoiceID, p.Type, p.Amount, p.Currency, p.Provider, p.ProviderPaymentID,
	).Scan(&p.ID, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create pending payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByInvoiceID(ctx context.Context, invoiceID int64) (models.Payment, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, invoice_id, type, status, amount, currency, provider, provider_payment_id,
		       failure_reason, completed_at, created_at, updated_at
		FROM payments WHERE invoice_id = $1`, invoiceID)
	return scanPayment(row)
}

// UpsertSucceededTx writes the succeeded payment row as part of the
// settlement transaction. Creates the row when the signal arrived without a
// prior checkout.
func (r *PaymentRepository) UpsertSucceededTx(ctx context.Context, tx *sql.Tx, p *models.Payment, completedAt time.Time) error {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO payments (invoice_id, type, status, amount, currency, provider, provider_payment_id, completed_at)
		VALUES ($1, $2, 'succeeded', $3, $4, $5, $6, $7)
		ON CONFLICT (invoice_id) DO UPDATE SET
			type = EXCLUDED.type,
			status = 'succeeded',
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			provider = EXCLUDED.provider,
			provider_payment_id = EXCLUDED.provider_payment_id,
			failure_reason = NULL,
			completed_at = EXCLUDED.completed_at,
			updated_at = NOW()
		RETURNING id`,
		p.InvoiceID, p.Type, p.Amount, p.Currency, p.Provider, p.ProviderPaymentID, completedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("upsert succeeded payment: %w", err)
	}
	p.Status = models.PaymentStatusSucceeded
	p.CompletedAt = &completedAt
	return nil
}

// UpsertCryptoTx writes the crypto payment details inside the settlement
// transaction. Confirmations are not touched here; the tracker owns them.
func (r *PaymentRepository) UpsertCryptoTx(ctx context.Context, tx *sql.Tx, cp *models.CryptoPayment) error {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO crypto_payments (payment_id, chain, asset, tx_hash, from_address, to_address)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (payment_id) DO UPDATE SET
			chain = EXCLUDED.chain,
			asset = EXCLUDED.asset,
			tx_hash = EXCLUDED.tx_hash,
			from_address = EXCLUDED.from_address,
			to_address = EXCLUDED.to_address,
			updated_at = NOW()
		RETURNING id, confirmations`,
		cp.PaymentID, cp.Chain, cp.Asset, cp.TxHash, cp.FromAddress, cp.ToAddress,
	).Scan(&cp.ID, &cp.Confirmations)
	if err != nil {
		return fmt.Errorf("upsert crypto payment: %w", err)
	}
	return nil
}

// UpsertCrypto is the non-transactional variant used when an incoming
// transfer is first recorded as pending.
func (r *PaymentRepository) UpsertCrypto(ctx context.Context, cp *models.CryptoPayment) error {
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO crypto_payments (payment_id, chain, asset, tx_hash, from_address, to_address)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (payment_id) DO UPDATE SET
			chain = EXCLUDED.chain,
			asset = EXCLUDED.asset,
			tx_hash = EXCLUDED.tx_hash,
			from_address = EXCLUDED.from_address,
			to_address = EXCLUDED.to_address,
			updated_at = NOW()
		RETURNING id, confirmations`,
		cp.PaymentID, cp.Chain, cp.Asset, cp.TxHash, cp.FromAddress, cp.ToAddress,
	).Scan(&cp.ID, &cp.Confirmations)
	if err != nil {
		return fmt.Errorf("upsert crypto payment: %w", err)
	}
	return nil
}

// GetCryptoByPaymentID returns the crypto extension row for a payment.
func (r *PaymentRepository) GetCryptoByPaymentID(ctx context.Context, paymentID int64) (models.CryptoPayment, error) {
	var cp models.CryptoPayment
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, payment_id, chain, asset, tx_hash, from_address, to_address, confirmations, created_at, updated_at
		FROM crypto_payments WHERE payment_id = $1`, paymentID).Scan(
		&cp.ID, &cp.PaymentID, &cp.Chain, &cp.Asset, &cp.TxHash, &cp.FromAddress, &cp.ToAddress,
		&cp.Confirmations, &cp.CreatedAt, &cp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CryptoPayment{}, models.ErrPaymentNotFound
	}
	return cp, err
}

// ListPendingCrypto returns outstanding crypto payments the tracker should
// re-verify, oldest first.
func (r *PaymentRepository) ListPendingCrypto(ctx context.Context, limit int) ([]models.CryptoPaymentDue, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT p.id, p.invoice_id, cp.chain, cp.asset, cp.tx_hash, cp.from_address, cp.to_address, cp.confirmations
		FROM payments p
		JOIN crypto_payments cp ON cp.payment_id = p.id
		WHERE p.type = 'crypto' AND p.status IN ('pending', 'processing')
		ORDER BY p.created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []models.CryptoPaymentDue
	for rows.Next() {
		var d models.CryptoPaymentDue
		if err := rows.Scan(&d.PaymentID, &d.InvoiceID, &d.Chain, &d.Asset, &d.TxHash, &d.FromAddress, &d.ToAddress, &d.Confirmations); err != nil {
			return nil, err
		}
		due = append(due, d)
	}
	return due, rows.Err()
}

// RaiseConfirmations writes max(current, observed) so reordered poll results
// can never decrease the count.
func (r *PaymentRepository) RaiseConfirmations(ctx context.Context, paymentID, observed int64) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE crypto_payments SET confirmations = GREATEST(confirmations, $1), updated_at = NOW()
		WHERE payment_id = $2`, observed, paymentID)
	return err
}

// MarkFailed records a failure on the payment row only. Invoice status is
// never touched by failure signals; a late failure must not revert a state a
// concurrent success already advanced.
func (r *PaymentRepository) MarkFailed(ctx context.Context, paymentID int64, reason string) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE payments SET status = 'failed', failure_reason = $1, updated_at = NOW()
		WHERE id = $2 AND status NOT IN ('succeeded', 'cancelled')`, reason, paymentID)
	return err
}

// MarkFailedByInvoice is the webhook-side variant keyed by invoice.
func (r *PaymentRepository) MarkFailedByInvoice(ctx context.Context, invoiceID int64, reason string) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE payments SET status = 'failed', failure_reason = $1, updated_at = NOW()
		WHERE invoice_id = $2 AND status NOT IN ('succeeded', 'cancelled')`, reason, invoiceID)
	return err
}

func scanPayment(scanner interface{ Scan(dest ...any) error }) (models.Payment, error) {
	var p models.Payment
	var provider, providerPaymentID sql.NullString
	var failureReason sql.NullString
	var completedAt sql.NullTime
	err := scanner.Scan(&p.ID, &p.InvoiceID, &p.Type, &p.Status, &p.Amount, &p.Currency,
		&provider, &providerPaymentID, &failureReason, &completedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Payment{}, models.ErrPaymentNotFound
	}
	if err != nil {
		return models.Payment{}, err
	}
	p.Provider = provider.String
	p.ProviderPaymentID = providerPaymentID.String
	if failureReason.Valid {
		v := failureReason.String
		p.FailureReason = &v
	}
	if completedAt.Valid {
		t := completedAt.Time
		p.CompletedAt = &t
	}
	return p, nil
}

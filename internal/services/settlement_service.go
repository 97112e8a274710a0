package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"paydesk/internal/chain"
	"paydesk/internal/fsm"
	"paydesk/internal/models"
	"paydesk/internal/money"
	"paydesk/internal/repositories"
)

// Signal is a verified payment success, fiat or crypto.
type Signal struct {
	Kind string // models.PaymentTypeFiat or models.PaymentTypeCrypto

	// fiat
	Provider          string
	ProviderPaymentID string
	Method            string // defaults to card

	// crypto
	Chain       string
	Asset       string
	TxHash      string
	FromAddress string
	ToAddress   string
	BlockNumber int64

	Amount decimal.Decimal
}

// StatusNotifier pushes payment-status transitions to subscribed payer pages.
type StatusNotifier interface {
	PublishStatus(paymentToken, status string)
}

// SettlementService is the only writer of invoice.status=paid, Payment,
// CryptoPayment and LedgerEntry. All four writes commit together or not at
// all.
type SettlementService struct {
	DB       *sql.DB
	Invoices *repositories.InvoiceRepository
	Payments *repositories.PaymentRepository
	Ledger   *repositories.LedgerRepository
	Users    *repositories.UserRepository
	Notifier StatusNotifier
	Logger   *slog.Logger
}

// Settle atomically applies a verified payment signal to the invoice.
// Settling an already-paid invoice is an idempotent no-op success; a
// cancelled invoice rejects the signal.
func (s *SettlementService) Settle(ctx context.Context, invoiceID int64, sig Signal) (settled bool, err error) {
	logger := s.logger().With("op", "Settle", "invoice", invoiceID, "kind", sig.Kind)

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	inv, err := s.Invoices.GetByIDTx(ctx, tx, invoiceID)
	if err != nil {
		return false, err
	}
	switch inv.Status {
	case fsm.StatusCancelled:
		return false, models.ErrInvoiceCancelled
	case fsm.StatusPaid:
		// duplicate confirmed-transaction or webhook after settlement
		logger.Info("invoice already paid, no-op")
		return false, nil
	}
	if !inv.IsPayable() {
		return false, models.ErrInvoiceNotPayable
	}

	now := time.Now().UTC()
	if err := fsm.Apply(ctx, tx, inv.ID, inv.Status, fsm.StatusPaid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// lost a concurrent settlement despite the row lock; the winner
			// already produced the ledger entry
			return false, nil
		}
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE invoices SET paid_at = $1 WHERE id = $2`, now, inv.ID); err != nil {
		return false, fmt.Errorf("set paid_at: %w", err)
	}

	payment := buildPaymentRow(inv, sig)
	if err := s.Payments.UpsertSucceededTx(ctx, tx, &payment, now); err != nil {
		return false, err
	}

	if sig.Kind == models.PaymentTypeCrypto {
		cp := models.CryptoPayment{
			PaymentID:   payment.ID,
			Chain:       strings.ToLower(sig.Chain),
			Asset:       strings.ToUpper(sig.Asset),
			TxHash:      sig.TxHash,
			FromAddress: sig.FromAddress,
			ToAddress:   sig.ToAddress,
		}
		if err := s.Payments.UpsertCryptoTx(ctx, tx, &cp); err != nil {
			return false, err
		}
	}

	user, err := s.Users.GetByID(ctx, inv.UserID)
	if err != nil {
		return false, err
	}
	entry, err := buildLedgerEntry(inv, user, sig)
	if err != nil {
		return false, err
	}
	if err := s.Ledger.InsertTx(ctx, tx, &entry); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	logger.Info("invoice settled", "method", entry.PaymentMethod, "amount", entry.Amount.String(), "currency", entry.Currency)
	if s.Notifier != nil && inv.PaymentToken != nil {
		s.Notifier.PublishStatus(*inv.PaymentToken, "paid")
	}
	return true, nil
}

// SettleConfirmed implements chain.Settler for the confirmation tracker.
func (s *SettlementService) SettleConfirmed(ctx context.Context, due models.CryptoPaymentDue, info *chain.TransferInfo) error {
	_, err := s.Settle(ctx, due.InvoiceID, Signal{
		Kind:        models.PaymentTypeCrypto,
		Chain:       info.Chain,
		Asset:       info.Asset,
		TxHash:      info.TxHash,
		FromAddress: info.From,
		ToAddress:   info.To,
		BlockNumber: info.BlockNumber,
		Amount:      info.Amount,
	})
	if errors.Is(err, models.ErrInvoiceCancelled) {
		// the invoice was cancelled while the transfer confirmed; keep the
		// payment row for manual reconciliation
		s.logger().Warn("confirmed transfer against cancelled invoice", "invoice", due.InvoiceID, "tx", info.TxHash)
		return nil
	}
	return err
}

// RecordFailure logs a payment failure on the payment row only. Invoice
// status is never changed by failure signals, so a late or duplicate failure
// can not revert a concurrent success.
func (s *SettlementService) RecordFailure(ctx context.Context, invoiceID int64, reason string) error {
	s.logger().Info("payment failure recorded", "invoice", invoiceID, "reason", reason)
	return s.Payments.MarkFailedByInvoice(ctx, invoiceID, reason)
}

func (s *SettlementService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// buildPaymentRow derives the payment row from the signal. The row records
// what was actually received: the observed amount can differ from the
// invoiced total within the matching tolerance, and the ledger entry alone
// carries the invoiced amount.
func buildPaymentRow(inv models.Invoice, sig Signal) models.Payment {
	p := models.Payment{
		InvoiceID:         inv.ID,
		Type:              sig.Kind,
		Amount:            inv.Total,
		Currency:          inv.Currency,
		Provider:          sig.Provider,
		ProviderPaymentID: sig.ProviderPaymentID,
	}
	if sig.Amount.IsPositive() {
		p.Amount = sig.Amount
	}
	if sig.Kind == models.PaymentTypeCrypto {
		p.Provider = strings.ToLower(sig.Chain)
		p.ProviderPaymentID = sig.TxHash
		if sig.Asset != "" {
			p.Currency = strings.ToUpper(sig.Asset)
		}
	}
	return p
}

// buildLedgerEntry derives the immutable income record from the settled
// invoice: amount as invoiced, the default-currency conversion, the payment
// method from the signal, and the metadata bag.
func buildLedgerEntry(inv models.Invoice, user models.User, sig Signal) (models.LedgerEntry, error) {
	converted, err := money.Convert(inv.Total, inv.Currency, user.DefaultCurrency)
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("convert to default currency: %w", err)
	}

	method := sig.Method
	if sig.Kind == models.PaymentTypeCrypto {
		method = models.MethodForAsset(sig.Asset)
	} else if method == "" {
		method = models.MethodCard
	}

	meta := map[string]string{
		models.MetaInvoiceNumber: inv.Number,
	}
	if sig.Kind == models.PaymentTypeCrypto {
		meta[models.MetaChain] = strings.ToLower(sig.Chain)
		meta[models.MetaAsset] = strings.ToUpper(sig.Asset)
		meta[models.MetaTxHash] = sig.TxHash
	}

	return models.LedgerEntry{
		UserID:                  inv.UserID,
		InvoiceID:               inv.ID,
		ClientID:                inv.ClientID,
		ProjectID:               inv.ProjectID,
		Amount:                  inv.Total,
		Currency:                inv.Currency,
		AmountInDefaultCurrency: converted,
		PaymentMethod:           method,
		Metadata:                meta,
	}, nil
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"paydesk/internal/chain"
	"paydesk/internal/fsm"
	"paydesk/internal/models"
	"paydesk/internal/repositories"
)

// Payer-facing payment states, derived from invoice and payment rows. They
// only move forward for one payment attempt; a failed attempt drops back to
// waiting so the payer can retry.
const (
	PayStatusWaiting    = "waiting"
	PayStatusPending    = "pending"
	PayStatusConfirming = "confirming"
	PayStatusConfirmed  = "confirmed"
	PayStatusPaid       = "paid"
)

const (
	statusCachePrefix = "paystatus:"
	statusCacheTTL    = 2 * time.Second
)

type PaymentStatus struct {
	Status        string `json:"status"`
	Confirmations int64  `json:"confirmations,omitempty"`
	Required      int64  `json:"required,omitempty"`
	TxHash        string `json:"tx_hash,omitempty"`
}

// StatusService answers the polled payer status endpoint. Responses are
// cached briefly in redis so aggressive polling never reaches postgres.
type StatusService struct {
	Invoices *repositories.InvoiceRepository
	Payments *repositories.PaymentRepository
	Redis    *redis.Client
	Logger   *slog.Logger
}

// ForToken resolves a payment token to the payer-visible status.
func (s *StatusService) ForToken(ctx context.Context, token string) (PaymentStatus, error) {
	if cached, ok := s.fromCache(ctx, token); ok {
		return cached, nil
	}

	inv, err := s.Invoices.GetByToken(ctx, token)
	if err != nil {
		return PaymentStatus{}, err
	}

	var payment *models.Payment
	var cryptoInfo *models.CryptoPayment
	p, err := s.Payments.GetByInvoiceID(ctx, inv.ID)
	switch {
	case err == nil:
		payment = &p
		if p.Type == models.PaymentTypeCrypto {
			cp, cerr := s.Payments.GetCryptoByPaymentID(ctx, p.ID)
			if cerr == nil {
				cryptoInfo = &cp
			} else if !errors.Is(cerr, models.ErrPaymentNotFound) {
				return PaymentStatus{}, cerr
			}
		}
	case errors.Is(err, models.ErrPaymentNotFound):
		// No attempt yet.
	default:
		return PaymentStatus{}, err
	}

	status, err := DerivePaymentStatus(inv.Status, payment, cryptoInfo)
	if err != nil {
		return PaymentStatus{}, err
	}
	s.toCache(ctx, token, status)
	return status, nil
}

// DerivePaymentStatus maps an invoice and its payment attempt to the payer
// state. The invoice being paid wins over everything else.
func DerivePaymentStatus(invoiceStatus string, payment *models.Payment, crypto *models.CryptoPayment) (PaymentStatus, error) {
	if invoiceStatus == fsm.StatusPaid {
		return PaymentStatus{Status: PayStatusPaid}, nil
	}
	if payment == nil || payment.Status == models.PaymentStatusFailed || payment.Status == models.PaymentStatusCancelled {
		return PaymentStatus{Status: PayStatusWaiting}, nil
	}
	if payment.Status == models.PaymentStatusSucceeded {
		// Settlement landed but the invoice row read raced the commit.
		return PaymentStatus{Status: PayStatusPaid}, nil
	}
	if crypto == nil {
		return PaymentStatus{Status: PayStatusPending}, nil
	}

	required, err := chain.RequiredConfirmations(crypto.Chain)
	if err != nil {
		return PaymentStatus{}, fmt.Errorf("derive status: %w", err)
	}
	st := PaymentStatus{
		Confirmations: crypto.Confirmations,
		Required:      required,
		TxHash:        crypto.TxHash,
	}
	switch {
	case crypto.Confirmations >= required:
		st.Status = PayStatusConfirmed
	case crypto.Confirmations > 0:
		st.Status = PayStatusConfirming
	default:
		st.Status = PayStatusPending
	}
	return st, nil
}

func (s *StatusService) fromCache(ctx context.Context, token string) (PaymentStatus, bool) {
	if s.Redis == nil {
		return PaymentStatus{}, false
	}
	raw, err := s.Redis.Get(ctx, statusCachePrefix+token).Bytes()
	if err != nil {
		return PaymentStatus{}, false
	}
	var st PaymentStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return PaymentStatus{}, false
	}
	return st, true
}

func (s *StatusService) toCache(ctx context.Context, token string, st PaymentStatus) {
	if s.Redis == nil {
		return
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := s.Redis.Set(ctx, statusCachePrefix+token, raw, statusCacheTTL).Err(); err != nil {
		s.logger().Warn("status cache write failed", "error", err)
	}
}

func (s *StatusService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

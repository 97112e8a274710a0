package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"paydesk/internal/models"
	"paydesk/internal/money"
	"paydesk/internal/repositories"
)

// InvoiceService owns the draft/sent/overdue/cancelled side of the invoice
// lifecycle. The paid transition belongs to the settlement coordinator.
type InvoiceService struct {
	InvoiceRepo *repositories.InvoiceRepository
	UserRepo    *repositories.UserRepository
}

// CreateInvoiceRequest carries the caller-supplied fields of a new draft.
type CreateInvoiceRequest struct {
	UserID             int64             `json:"user_id"`
	ClientID           int64             `json:"client_id"`
	ProjectID          *int64            `json:"project_id,omitempty"`
	Currency           string            `json:"currency"`
	IssueDate          time.Time         `json:"issue_date"`
	DueDate            time.Time         `json:"due_date"`
	TaxRate            decimal.Decimal   `json:"tax_rate"`
	AllowCryptoPayment bool              `json:"allow_crypto_payment"`
	LineItems          []models.LineItem `json:"line_items"`
}

// Create validates the request, computes totals and persists a draft.
func (s *InvoiceService) Create(ctx context.Context, req CreateInvoiceRequest) (models.Invoice, error) {
	if !money.Known(req.Currency) {
		return models.Invoice{}, fmt.Errorf("unsupported currency %q", req.Currency)
	}
	if len(req.LineItems) == 0 {
		return models.Invoice{}, fmt.Errorf("invoice requires at least one line item")
	}
	if req.TaxRate.IsNegative() {
		return models.Invoice{}, fmt.Errorf("tax rate must not be negative")
	}
	if _, err := s.UserRepo.GetClient(ctx, req.ClientID); err != nil {
		return models.Invoice{}, err
	}

	inv := models.Invoice{
		UserID:             req.UserID,
		ClientID:           req.ClientID,
		ProjectID:          req.ProjectID,
		Currency:           req.Currency,
		IssueDate:          req.IssueDate,
		DueDate:            req.DueDate,
		TaxRate:            req.TaxRate,
		AllowCryptoPayment: req.AllowCryptoPayment,
		LineItems:          req.LineItems,
	}
	inv.Recalculate()

	if err := s.InvoiceRepo.Create(ctx, &inv); err != nil {
		return models.Invoice{}, err
	}
	return inv, nil
}

func (s *InvoiceService) Get(ctx context.Context, id int64) (models.Invoice, error) {
	return s.InvoiceRepo.GetByID(ctx, id)
}

func (s *InvoiceService) List(ctx context.Context, userID int64) ([]models.Invoice, error) {
	return s.InvoiceRepo.ListByUser(ctx, userID)
}

// Send transitions a draft to sent and mints its payment token.
func (s *InvoiceService) Send(ctx context.Context, id int64) (models.Invoice, error) {
	inv, err := s.InvoiceRepo.GetByID(ctx, id)
	if err != nil {
		return models.Invoice{}, err
	}
	if inv.Status != "draft" {
		return models.Invoice{}, models.ErrInvoiceNotDraft
	}
	token := MintPaymentToken()
	now := time.Now().UTC()
	if err := s.InvoiceRepo.MarkSent(ctx, id, token, now); err != nil {
		return models.Invoice{}, err
	}
	return s.InvoiceRepo.GetByID(ctx, id)
}

// Cancel rejects paid invoices and clears the payment token otherwise.
func (s *InvoiceService) Cancel(ctx context.Context, id int64) (models.Invoice, error) {
	if _, err := s.InvoiceRepo.GetByID(ctx, id); err != nil {
		return models.Invoice{}, err
	}
	if err := s.InvoiceRepo.Cancel(ctx, id); err != nil {
		return models.Invoice{}, err
	}
	return s.InvoiceRepo.GetByID(ctx, id)
}

// SweepOverdue moves sent invoices past their due date to overdue.
func (s *InvoiceService) SweepOverdue(ctx context.Context, today time.Time, infoLog *log.Logger) (int64, error) {
	n, err := s.InvoiceRepo.MarkOverdueBefore(ctx, today)
	if err != nil {
		return 0, err
	}
	if n > 0 && infoLog != nil {
		infoLog.Printf("overdue sweep: %d invoices moved to overdue", n)
	}
	return n, nil
}

// MintPaymentToken returns an unguessable token for the payer-facing page.
func MintPaymentToken() string {
	return "pay_" + uuid.NewString()
}

package models

import (
	"time"

	"github.com/shopspring/decimal"

	"paydesk/internal/money"
)

// LineItem is a single invoice position. Total is always derived from
// quantity and unit price, never stored independently.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

type Invoice struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	ClientID  int64  `json:"client_id"`
	ProjectID *int64 `json:"project_id,omitempty"`

	Number   string `json:"number"`
	Currency string `json:"currency"`

	IssueDate time.Time `json:"issue_date"`
	DueDate   time.Time `json:"due_date"`

	LineItems []LineItem      `json:"line_items"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
	Total     decimal.Decimal `json:"total"`

	Status             string  `json:"status"`
	AllowCryptoPayment bool    `json:"allow_crypto_payment"`
	PaymentToken       *string `json:"payment_token,omitempty"`

	SentAt    *time.Time `json:"sent_at,omitempty"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Recalculate recomputes line item totals, subtotal, tax amount and total.
// Called on every mutation of line items or tax rate; stored totals are
// never trusted to still match the line items.
func (inv *Invoice) Recalculate() {
	lineTotals := make([]decimal.Decimal, len(inv.LineItems))
	for i := range inv.LineItems {
		inv.LineItems[i].Total = money.LineItemTotal(inv.LineItems[i].Quantity, inv.LineItems[i].UnitPrice)
		lineTotals[i] = inv.LineItems[i].Total
	}
	inv.Subtotal, inv.TaxAmount, inv.Total = money.ComputeTotals(lineTotals, inv.TaxRate)
}

// IsPayable reports whether the invoice can still accept a payment.
func (inv *Invoice) IsPayable() bool {
	return inv.Status == "sent" || inv.Status == "overdue"
}

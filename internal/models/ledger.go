package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Metadata keys recorded on crypto-settled ledger entries.
const (
	MetaInvoiceNumber = "invoice_number"
	MetaChain         = "chain"
	MetaAsset         = "asset"
	MetaTxHash        = "tx_hash"
)

// LedgerEntry is the immutable record of realized income. At most one entry
// exists per invoice; the unique constraint on invoice_id is the guarantee.
type LedgerEntry struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	InvoiceID int64  `json:"invoice_id"`
	ClientID  int64  `json:"client_id"`
	ProjectID *int64 `json:"project_id,omitempty"`

	Amount                  decimal.Decimal `json:"amount"`
	Currency                string          `json:"currency"`
	AmountInDefaultCurrency decimal.Decimal `json:"amount_in_default_currency"`

	PaymentMethod string            `json:"payment_method"`
	Metadata      map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// Joined read-side fields, populated by list queries for export and
	// dashboards. Never written back.
	ClientName    string `json:"client_name,omitempty"`
	ClientEmail   string `json:"client_email,omitempty"`
	ClientCountry string `json:"client_country,omitempty"`
	ProjectName   string `json:"project_name,omitempty"`
}

package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentTypeFiat   = "fiat"
	PaymentTypeCrypto = "crypto"
)

const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusSucceeded  = "succeeded"
	PaymentStatusFailed     = "failed"
	PaymentStatusCancelled  = "cancelled"
)

// Payment method values stored on ledger entries.
const (
	MethodCard         = "card"
	MethodBankTransfer = "bank_transfer"
	MethodCryptoUSDC   = "crypto_usdc"
	MethodCryptoUSDT   = "crypto_usdt"
)

// Payment is the one-to-one payment record for an invoice. Only the
// settlement coordinator writes it.
type Payment struct {
	ID        int64 `json:"id"`
	InvoiceID int64 `json:"invoice_id"`

	Type   string `json:"type"`
	Status string `json:"status"`

	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	Provider          string  `json:"provider,omitempty"`
	ProviderPaymentID string  `json:"provider_payment_id,omitempty"`
	FailureReason     *string `json:"failure_reason,omitempty"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CryptoPayment extends a crypto Payment with on-chain details.
// Confirmations only ever grows until the payment reaches a terminal status.
type CryptoPayment struct {
	ID        int64 `json:"id"`
	PaymentID int64 `json:"payment_id"`

	Chain string `json:"chain"`
	Asset string `json:"asset"`

	TxHash      string `json:"tx_hash"`
	FromAddress string `json:"from_address"`
	ToAddress   string `json:"to_address"`

	Confirmations int64 `json:"confirmations"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CryptoPaymentDue is the projection the confirmation tracker polls on:
// a pending crypto payment joined with its invoice.
type CryptoPaymentDue struct {
	PaymentID     int64
	InvoiceID     int64
	Chain         string
	Asset         string
	TxHash        string
	FromAddress   string
	ToAddress     string
	Confirmations int64
}

// MethodForAsset maps a stablecoin asset to its ledger payment method.
func MethodForAsset(asset string) string {
	if strings.EqualFold(asset, "USDT") {
		return MethodCryptoUSDT
	}
	return MethodCryptoUSDC
}

// IsCryptoMethod reports whether a ledger payment method is chain-settled.
func IsCryptoMethod(method string) bool {
	return method == MethodCryptoUSDC || method == MethodCryptoUSDT
}

// AssetForMethod is the inverse of MethodForAsset, used by read-side
// aggregation when grouping ledger entries by asset.
func AssetForMethod(method string) string {
	if method == MethodCryptoUSDT {
		return "USDT"
	}
	return "USDC"
}

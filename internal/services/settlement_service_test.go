package services

import (
	"testing"

	"github.com/shopspring/decimal"

	"paydesk/internal/models"
)

func settledInvoice(currency, total string) models.Invoice {
	return models.Invoice{
		ID:       42,
		UserID:   1,
		ClientID: 9,
		Number:   "INV-202601-0042",
		Currency: currency,
		Total:    decimal.RequireFromString(total),
	}
}

func TestBuildLedgerEntryFiat(t *testing.T) {
	inv := settledInvoice("EUR", "500.00")
	user := models.User{ID: 1, DefaultCurrency: "USD"}
	sig := Signal{Kind: models.PaymentTypeFiat, Provider: "stripe", ProviderPaymentID: "pi_1"}

	entry, err := buildLedgerEntry(inv, user, sig)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !entry.Amount.Equal(decimal.RequireFromString("500.00")) || entry.Currency != "EUR" {
		t.Fatalf("original amount = %s %s", entry.Amount, entry.Currency)
	}
	if !entry.AmountInDefaultCurrency.Equal(decimal.RequireFromString("540.00")) {
		t.Fatalf("converted = %s; want 540.00", entry.AmountInDefaultCurrency)
	}
	if entry.PaymentMethod != models.MethodCard {
		t.Fatalf("method = %s; want card default", entry.PaymentMethod)
	}
	if entry.Metadata[models.MetaInvoiceNumber] != "INV-202601-0042" {
		t.Fatalf("metadata = %v", entry.Metadata)
	}
	if _, ok := entry.Metadata[models.MetaChain]; ok {
		t.Fatal("fiat entry must not carry chain metadata")
	}
}

func TestBuildLedgerEntryCrypto(t *testing.T) {
	inv := settledInvoice("USD", "143.00")
	user := models.User{ID: 1, DefaultCurrency: "USD"}
	sig := Signal{
		Kind:   models.PaymentTypeCrypto,
		Chain:  "Base",
		Asset:  "usdc",
		TxHash: "0xfeed",
	}

	entry, err := buildLedgerEntry(inv, user, sig)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if entry.PaymentMethod != models.MethodCryptoUSDC {
		t.Fatalf("method = %s; want crypto_usdc", entry.PaymentMethod)
	}
	if !entry.AmountInDefaultCurrency.Equal(decimal.RequireFromString("143.00")) {
		t.Fatalf("converted = %s; want 143.00", entry.AmountInDefaultCurrency)
	}
	meta := entry.Metadata
	if meta[models.MetaChain] != "base" || meta[models.MetaAsset] != "USDC" || meta[models.MetaTxHash] != "0xfeed" {
		t.Fatalf("metadata = %v", meta)
	}
}

func TestBuildPaymentRowKeepsObservedAmount(t *testing.T) {
	inv := settledInvoice("USDC", "143.00")
	sig := Signal{
		Kind:   models.PaymentTypeCrypto,
		Chain:  "Base",
		Asset:  "usdc",
		TxHash: "0xfeed",
		Amount: decimal.RequireFromString("142.995000"),
	}

	p := buildPaymentRow(inv, sig)
	if !p.Amount.Equal(decimal.RequireFromString("142.995000")) {
		t.Fatalf("payment amount = %s; want the observed transfer amount", p.Amount)
	}
	if p.Currency != "USDC" || p.Provider != "base" || p.ProviderPaymentID != "0xfeed" {
		t.Fatalf("payment row = %+v", p)
	}
}

func TestBuildPaymentRowFiatFallsBackToInvoiceTotal(t *testing.T) {
	inv := settledInvoice("EUR", "500.00")
	sig := Signal{Kind: models.PaymentTypeFiat, Provider: "stripe", ProviderPaymentID: "pi_1"}

	p := buildPaymentRow(inv, sig)
	if !p.Amount.Equal(decimal.RequireFromString("500.00")) || p.Currency != "EUR" {
		t.Fatalf("payment row = %s %s; want invoice total", p.Amount, p.Currency)
	}

	sig.Amount = decimal.RequireFromString("500.00")
	p = buildPaymentRow(inv, sig)
	if !p.Amount.Equal(decimal.RequireFromString("500.00")) {
		t.Fatalf("payment amount = %s", p.Amount)
	}
}

func TestBuildLedgerEntryUSDTMethod(t *testing.T) {
	inv := settledInvoice("USD", "75.00")
	user := models.User{ID: 1, DefaultCurrency: "USD"}
	sig := Signal{Kind: models.PaymentTypeCrypto, Chain: "polygon", Asset: "USDT", TxHash: "0x01"}

	entry, err := buildLedgerEntry(inv, user, sig)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if entry.PaymentMethod != models.MethodCryptoUSDT {
		t.Fatalf("method = %s; want crypto_usdt", entry.PaymentMethod)
	}
}

func TestBuildLedgerEntryUnknownCurrency(t *testing.T) {
	inv := settledInvoice("XXX", "10.00")
	user := models.User{ID: 1, DefaultCurrency: "USD"}
	if _, err := buildLedgerEntry(inv, user, Signal{Kind: models.PaymentTypeFiat}); err == nil {
		t.Fatal("expected error for unconvertible currency")
	}
}

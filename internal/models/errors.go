package models

import (
	"errors"
)

var (
	ErrInvoiceNotFound   = errors.New("models: invoice not found")
	ErrPaymentNotFound   = errors.New("models: payment not found")
	ErrClientNotFound    = errors.New("models: client not found")
	ErrUserNotFound      = errors.New("models: user not found")
	ErrInvoiceNotDraft   = errors.New("models: invoice is not a draft")
	ErrInvoiceNotPayable = errors.New("models: invoice is not payable")
	ErrInvoiceCancelled  = errors.New("models: invoice is cancelled")
	ErrAlreadyPaid       = errors.New("models: invoice is already paid")
	ErrLedgerEntryExists = errors.New("models: ledger entry already exists for invoice")
	ErrUnknownChain      = errors.New("models: unknown chain")
	ErrUnknownAsset      = errors.New("models: unknown asset")
	ErrTokenNotFound     = errors.New("models: payment token not found")
	ErrNoRecord          = errors.New("models: no matching record found")
)

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User carries only the fields the settlement core reads. Account
// management lives in an external collaborator.
type User struct {
	ID              int64           `json:"id"`
	Email           string          `json:"email"`
	DefaultCurrency string          `json:"default_currency"`
	TaxReserveRate  decimal.Decimal `json:"tax_reserve_rate"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Client is a read-only reference for ledger entries and exports.
type Client struct {
	ID      int64  `json:"id"`
	UserID  int64  `json:"user_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Country string `json:"country"`
}

// Project is a read-only reference for ledger entries and exports.
type Project struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}

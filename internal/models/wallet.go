package models

import "time"

// WalletAddress is a receiving address issued for a (user, chain, asset)
// triple. The triple is unique; repeat requests return the existing row.
type WalletAddress struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Chain     string    `json:"chain"`
	Asset     string    `json:"asset"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

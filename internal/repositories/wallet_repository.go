package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"paydesk/internal/models"
)

type WalletRepository struct {
	DB *sql.DB
}

func NewWalletRepository(db *sql.DB) *WalletRepository { return &WalletRepository{DB: db} }

// Get returns the address for a (user, chain, asset) triple if one exists.
func (r *WalletRepository) Get(ctx context.Context, userID int64, chain, asset string) (models.WalletAddress, error) {
	var w models.WalletAddress
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, user_id, chain, asset, address, created_at
		FROM wallet_addresses WHERE user_id = $1 AND chain = $2 AND asset = $3`,
		userID, strings.ToLower(chain), strings.ToUpper(asset)).Scan(
		&w.ID, &w.UserID, &w.Chain, &w.Asset, &w.Address, &w.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.WalletAddress{}, models.ErrNoRecord
	}
	return w, err
}

// Insert persists a new address for the triple. Two unique constraints can
// reject it: (user_id, chain, asset) when the same user raced itself, and
// (chain, address) when another user claimed the pool slot first. Either way
// the caller gets inserted=false and decides how to retry.
func (r *WalletRepository) Insert(ctx context.Context, w *models.WalletAddress) (bool, error) {
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO wallet_addresses (user_id, chain, asset, address)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, chain, asset) DO NOTHING
		RETURNING id, created_at`,
		w.UserID, strings.ToLower(w.Chain), strings.ToUpper(w.Asset), strings.ToLower(w.Address),
	).Scan(&w.ID, &w.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert wallet address: %w", err)
	}
	return true, nil
}

// FindByAddress resolves a receiving address back to its owner, used when an
// incoming transfer has to be attributed to a user.
func (r *WalletRepository) FindByAddress(ctx context.Context, chain, address string) (models.WalletAddress, error) {
	var w models.WalletAddress
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, user_id, chain, asset, address, created_at
		FROM wallet_addresses WHERE chain = $1 AND address = $2`,
		strings.ToLower(chain), strings.ToLower(address)).Scan(
		&w.ID, &w.UserID, &w.Chain, &w.Asset, &w.Address, &w.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.WalletAddress{}, models.ErrNoRecord
	}
	return w, err
}

// CountIssued returns how many addresses have been handed out on a chain,
// used to pick the next address from the configured pool.
func (r *WalletRepository) CountIssued(ctx context.Context, chain string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(DISTINCT address) FROM wallet_addresses WHERE chain = $1`,
		strings.ToLower(chain)).Scan(&n)
	return n, err
}

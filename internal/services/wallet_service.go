package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"paydesk/internal/chain"
	"paydesk/internal/models"
)

var ErrAddressPoolExhausted = errors.New("no receiving addresses left in pool")

// WalletStore is the persistence surface the wallet service needs.
type WalletStore interface {
	Get(ctx context.Context, userID int64, chain, asset string) (models.WalletAddress, error)
	Insert(ctx context.Context, w *models.WalletAddress) (bool, error)
	CountIssued(ctx context.Context, chain string) (int, error)
}

// WalletService hands out receiving addresses from the operator-configured
// pool. One address per (user, chain, asset); a repeated request returns the
// same address instead of burning another pool slot.
type WalletService struct {
	Wallets WalletStore
	// Pool maps chain name to configured receiving addresses, in issue order.
	Pool   map[string][]string
	Logger *slog.Logger
}

// GenerateAddress returns the user's receiving address for the chain and
// asset, minting one from the pool on first request.
//
// Concurrent first requests race on the pool: two users can read the same
// issued count and pick the same slot. The (chain, address) unique constraint
// rejects the loser, who recounts and moves to the next free slot. The loop
// is bounded by the pool size.
func (s *WalletService) GenerateAddress(ctx context.Context, userID int64, chainName, asset string) (models.WalletAddress, error) {
	chainName = strings.ToLower(chainName)
	asset = strings.ToUpper(asset)
	if !chain.KnownChain(chainName) {
		return models.WalletAddress{}, models.ErrUnknownChain
	}
	if _, err := chain.ContractFor(chainName, asset); err != nil {
		return models.WalletAddress{}, models.ErrUnknownAsset
	}

	existing, err := s.Wallets.Get(ctx, userID, chainName, asset)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, models.ErrNoRecord) {
		return models.WalletAddress{}, fmt.Errorf("lookup wallet address: %w", err)
	}

	pool := s.Pool[chainName]
	for attempt := 0; attempt <= len(pool); attempt++ {
		issued, err := s.Wallets.CountIssued(ctx, chainName)
		if err != nil {
			return models.WalletAddress{}, fmt.Errorf("count issued addresses: %w", err)
		}
		if issued >= len(pool) {
			s.logger().Warn("address pool exhausted", "chain", chainName, "pool_size", len(pool))
			return models.WalletAddress{}, ErrAddressPoolExhausted
		}

		w := models.WalletAddress{
			UserID:  userID,
			Chain:   chainName,
			Asset:   asset,
			Address: strings.ToLower(pool[issued]),
		}
		inserted, err := s.Wallets.Insert(ctx, &w)
		if err != nil {
			return models.WalletAddress{}, err
		}
		if inserted {
			s.logger().Info("issued receiving address", "user_id", userID, "chain", chainName, "asset", asset)
			return w, nil
		}

		// A concurrent request for the same triple already minted an
		// address for this user; return it. Otherwise another user took
		// the slot and the next iteration recounts.
		existing, err := s.Wallets.Get(ctx, userID, chainName, asset)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, models.ErrNoRecord) {
			return models.WalletAddress{}, fmt.Errorf("lookup wallet address: %w", err)
		}
	}
	return models.WalletAddress{}, ErrAddressPoolExhausted
}

func (s *WalletService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

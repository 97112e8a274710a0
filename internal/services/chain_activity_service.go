package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"paydesk/internal/chain"
	"paydesk/internal/models"
	"paydesk/internal/repositories"
)

// ChainFeedProvider is the idempotency-ledger provider key for address
// activity deliveries.
const ChainFeedProvider = "chainfeed"

// Transfer amounts within this absolute distance of an invoice total are
// considered a match for that invoice.
var matchTolerance = decimal.RequireFromString("0.01")

// ActivityDelivery is one push notification from the chain data provider.
type ActivityDelivery struct {
	ID    string `json:"id"`
	Event struct {
		Network  string         `json:"network"`
		Activity []ActivityItem `json:"activity"`
	} `json:"event"`
}

type ActivityItem struct {
	FromAddress string `json:"fromAddress"`
	ToAddress   string `json:"toAddress"`
	Hash        string `json:"hash"`
	Category    string `json:"category"`
	RawContract struct {
		Address  string `json:"address"`
		RawValue string `json:"rawValue"`
		Decimals int32  `json:"decimals"`
	} `json:"rawContract"`
}

var networkNames = map[string]string{
	"arb_mainnet":   chain.Arbitrum,
	"base_mainnet":  chain.Base,
	"matic_mainnet": chain.Polygon,
	chain.Arbitrum:  chain.Arbitrum,
	chain.Base:      chain.Base,
	chain.Polygon:   chain.Polygon,
}

// ChainActivityService matches incoming stablecoin transfers to pending
// invoices and records them as pending crypto payments for the tracker.
type ChainActivityService struct {
	Invoices    *repositories.InvoiceRepository
	Payments    *repositories.PaymentRepository
	Wallets     *repositories.WalletRepository
	Idempotency *IdempotencyService
	Logger      *slog.Logger
}

// HandleDelivery processes every eligible transfer in the delivery. Each
// transfer deduped independently under {deliveryId}-{txHash}.
func (s *ChainActivityService) HandleDelivery(ctx context.Context, delivery ActivityDelivery, raw json.RawMessage) error {
	chainName, ok := networkNames[strings.ToLower(delivery.Event.Network)]
	if !ok {
		return fmt.Errorf("chain activity: unknown network %q", delivery.Event.Network)
	}

	for _, item := range delivery.Event.Activity {
		if item.Category != "token" && item.Category != "erc20" {
			continue
		}
		asset := chain.AssetForContract(chainName, item.RawContract.Address)
		if asset == "" {
			continue
		}
		amount, err := scaleRawValue(item.RawContract.RawValue, item.RawContract.Decimals)
		if err != nil {
			s.logger().Error("chain activity: bad raw value", "tx", item.Hash, "err", err)
			continue
		}

		eventID := delivery.ID + "-" + item.Hash
		item := item
		_, err = s.Idempotency.ProcessWithIdempotency(ctx, ChainFeedProvider, eventID, raw, func(ctx context.Context) error {
			return s.recordTransfer(ctx, chainName, asset, amount, item)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// recordTransfer attributes a transfer to the oldest matching unpaid invoice
// and stores it as a pending crypto payment. A transfer matching nothing is
// accepted and logged for manual reconciliation rather than dropped.
func (s *ChainActivityService) recordTransfer(ctx context.Context, chainName, asset string, amount decimal.Decimal, item ActivityItem) error {
	wallet, err := s.Wallets.FindByAddress(ctx, chainName, item.ToAddress)
	if err != nil {
		if err == models.ErrNoRecord {
			s.logger().Warn("unattributed transfer: unknown receiving address",
				"chain", chainName, "asset", asset, "to", item.ToAddress, "tx", item.Hash, "amount", amount.String())
			return nil
		}
		return err
	}

	invoices, err := s.Invoices.ListPayableByAmount(ctx, wallet.UserID, amount, matchTolerance)
	if err != nil {
		return err
	}
	if len(invoices) == 0 {
		s.logger().Warn("unattributed transfer: no matching invoice",
			"chain", chainName, "asset", asset, "user", wallet.UserID, "tx", item.Hash, "amount", amount.String())
		return nil
	}
	// first-in-first-settled: the oldest unpaid invoice takes the transfer
	inv := invoices[0]

	payment := models.Payment{
		InvoiceID:         inv.ID,
		Type:              models.PaymentTypeCrypto,
		Amount:            amount,
		Currency:          asset,
		Provider:          chainName,
		ProviderPaymentID: item.Hash,
	}
	if err := s.Payments.CreatePending(ctx, &payment); err != nil {
		return err
	}
	cp := models.CryptoPayment{
		PaymentID:   payment.ID,
		Chain:       chainName,
		Asset:       asset,
		TxHash:      item.Hash,
		FromAddress: strings.ToLower(item.FromAddress),
		ToAddress:   strings.ToLower(item.ToAddress),
	}
	if err := s.Payments.UpsertCrypto(ctx, &cp); err != nil {
		return err
	}

	s.logger().Info("incoming transfer recorded",
		"invoice", inv.ID, "chain", chainName, "asset", asset, "tx", item.Hash, "amount", amount.String())
	return nil
}

func (s *ChainActivityService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// scaleRawValue converts a hex raw token value to an exact decimal using the
// token's decimal count.
func scaleRawValue(rawValue string, decimals int32) (decimal.Decimal, error) {
	v := strings.TrimPrefix(strings.TrimSpace(rawValue), "0x")
	if v == "" {
		return decimal.Decimal{}, fmt.Errorf("empty raw value")
	}
	n, ok := new(big.Int).SetString(v, 16)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("invalid raw value %q", rawValue)
	}
	if decimals <= 0 {
		decimals = chain.AssetDecimals
	}
	return decimal.NewFromBigInt(n, -decimals), nil
}

package chain

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"paydesk/internal/models"
)

// PaymentsRepository is the slice of the payments repo the tracker needs.
type PaymentsRepository interface {
	ListPendingCrypto(ctx context.Context, limit int) ([]models.CryptoPaymentDue, error)
	RaiseConfirmations(ctx context.Context, paymentID, observed int64) error
	MarkFailed(ctx context.Context, paymentID int64, reason string) error
}

// Settler applies a confirmed transfer to the invoice/payment/ledger state.
type Settler interface {
	SettleConfirmed(ctx context.Context, due models.CryptoPaymentDue, info *TransferInfo) error
}

// Tracker periodically re-verifies outstanding crypto payments and settles
// the ones that crossed their chain's confirmation threshold.
type Tracker struct {
	payments PaymentsRepository
	settler  Settler
	registry *Registry
	rdb      *redis.Client
	logger   *slog.Logger

	tick      time.Duration
	batchSize int
	lockTTL   time.Duration
}

// NewTracker creates a tracker instance.
func NewTracker(payments PaymentsRepository, settler Settler, registry *Registry, rdb *redis.Client, logger *slog.Logger, tick time.Duration) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if tick <= 0 {
		tick = 30 * time.Second
	}
	return &Tracker{
		payments:  payments,
		settler:   settler,
		registry:  registry,
		rdb:       rdb,
		logger:    logger,
		tick:      tick,
		batchSize: 100,
		lockTTL:   time.Minute,
	}
}

// Run starts the polling loop.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick(ctx)
		}
	}
}

// Tick performs one polling pass over outstanding pending crypto payments.
func (t *Tracker) Tick(ctx context.Context) {
	due, err := t.payments.ListPendingCrypto(ctx, t.batchSize)
	if err != nil {
		t.logger.Error("tracker: list pending crypto payments", "err", err)
		return
	}
	for _, d := range due {
		if err := t.check(ctx, d); err != nil {
			t.logger.Error("tracker: check transaction", "tx", d.TxHash, "chain", d.Chain, "err", err)
		}
	}
}

func (t *Tracker) check(ctx context.Context, due models.CryptoPaymentDue) error {
	// Only one poller may touch a given txHash at a time. The lock keeps
	// redundant RPC calls and out-of-order confirmation writes away when
	// multiple instances run.
	if t.rdb != nil {
		key := "chainpoll:" + due.TxHash
		ok, err := t.rdb.SetNX(ctx, key, 1, t.lockTTL).Result()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		defer t.rdb.Del(context.WithoutCancel(ctx), key)
	}

	verifier, err := t.registry.Verifier(due.Chain)
	if err != nil {
		return err
	}
	info, err := verifier.VerifyTransaction(ctx, due.TxHash)
	if err != nil {
		// verification failures are retried on the next tick, state untouched
		return err
	}

	switch info.Status {
	case TxFailed:
		return t.payments.MarkFailed(ctx, due.PaymentID, "transaction reverted on chain")
	case TxConfirmed:
		if err := t.payments.RaiseConfirmations(ctx, due.PaymentID, info.Confirmations); err != nil {
			return err
		}
		return t.settler.SettleConfirmed(ctx, due, info)
	default:
		// confirmations are written as max(current, observed) so a stale
		// read can never move the count backwards
		if info.Confirmations > 0 || info.BlockNumber > 0 {
			return t.payments.RaiseConfirmations(ctx, due.PaymentID, info.Confirmations)
		}
		return nil
	}
}

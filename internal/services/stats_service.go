package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"paydesk/internal/chain"
	"paydesk/internal/models"
	"paydesk/internal/repositories"
)

// The aggregation engine is a set of pure functions over caller-supplied
// ledger entries. Each aggregate conserves the total it partitions: bucket
// amounts, method amounts and per-asset chain breakdowns always sum back to
// the income they split.

const (
	GranularityMonth = "month"
	GranularityWeek  = "week"
)

type PeriodBucket struct {
	Period string          `json:"period"`
	Amount decimal.Decimal `json:"amount"`
	Count  int             `json:"count"`
}

type ClientRanking struct {
	ClientID   int64           `json:"client_id"`
	ClientName string          `json:"client_name"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage float64         `json:"percentage"`
	Invoices   int             `json:"invoices"`
}

type MethodShare struct {
	Method     string          `json:"method"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage float64         `json:"percentage"`
	Count      int             `json:"count"`
}

type ChainShare struct {
	Chain      string          `json:"chain"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage float64         `json:"percentage"`
}

type AssetBreakdown struct {
	Asset       string          `json:"asset"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Chains      []ChainShare    `json:"chains"`
}

type StablecoinStats struct {
	TotalStablecoinIncome decimal.Decimal  `json:"total_stablecoin_income"`
	ByAsset               []AssetBreakdown `json:"by_asset"`
}

// TotalIncome sums the default-currency amounts of all entries.
func TotalIncome(entries []models.LedgerEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.AmountInDefaultCurrency)
	}
	return total
}

// AggregateByPeriod buckets entries by ISO month or ISO week, ascending by
// period key. The bucket amounts sum to TotalIncome exactly.
func AggregateByPeriod(entries []models.LedgerEntry, granularity string) ([]PeriodBucket, error) {
	keyFor, err := periodKeyFunc(granularity)
	if err != nil {
		return nil, err
	}
	buckets := make(map[string]*PeriodBucket)
	for _, e := range entries {
		key := keyFor(e.CreatedAt)
		b, ok := buckets[key]
		if !ok {
			b = &PeriodBucket{Period: key, Amount: decimal.Zero}
			buckets[key] = b
		}
		b.Amount = b.Amount.Add(e.AmountInDefaultCurrency)
		b.Count++
	}
	out := make([]PeriodBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out, nil
}

func periodKeyFunc(granularity string) (func(time.Time) string, error) {
	switch granularity {
	case GranularityMonth:
		return func(t time.Time) string { return t.UTC().Format("2006-01") }, nil
	case GranularityWeek:
		return func(t time.Time) string {
			year, week := t.UTC().ISOWeek()
			return fmt.Sprintf("%d-W%02d", year, week)
		}, nil
	default:
		return nil, fmt.Errorf("unknown granularity %q", granularity)
	}
}

// ClientRankings groups entries by client, descending by amount, at most
// topN rows. Ties break on client id so the order is deterministic.
func ClientRankings(entries []models.LedgerEntry, topN int) []ClientRanking {
	total := TotalIncome(entries)
	byClient := make(map[int64]*ClientRanking)
	for _, e := range entries {
		r, ok := byClient[e.ClientID]
		if !ok {
			r = &ClientRanking{ClientID: e.ClientID, ClientName: e.ClientName, Amount: decimal.Zero}
			byClient[e.ClientID] = r
		}
		r.Amount = r.Amount.Add(e.AmountInDefaultCurrency)
		r.Invoices++
	}
	out := make([]ClientRanking, 0, len(byClient))
	for _, r := range byClient {
		if total.IsPositive() {
			r.Percentage, _ = r.Amount.Div(total).Mul(decimal.New(100, 0)).Float64()
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Amount.Equal(out[j].Amount) {
			return out[i].Amount.GreaterThan(out[j].Amount)
		}
		return out[i].ClientID < out[j].ClientID
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

// PaymentMethodDistribution groups entries by payment method, descending by
// amount. Amounts sum to TotalIncome exactly; percentages are display-only.
func PaymentMethodDistribution(entries []models.LedgerEntry) []MethodShare {
	total := TotalIncome(entries)
	byMethod := make(map[string]*MethodShare)
	for _, e := range entries {
		m, ok := byMethod[e.PaymentMethod]
		if !ok {
			m = &MethodShare{Method: e.PaymentMethod, Amount: decimal.Zero}
			byMethod[e.PaymentMethod] = m
		}
		m.Amount = m.Amount.Add(e.AmountInDefaultCurrency)
		m.Count++
	}
	out := make([]MethodShare, 0, len(byMethod))
	for _, m := range byMethod {
		if total.IsPositive() {
			m.Percentage, _ = m.Amount.Div(total).Mul(decimal.New(100, 0)).Float64()
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Amount.Equal(out[j].Amount) {
			return out[i].Amount.GreaterThan(out[j].Amount)
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// StablecoinAggregation filters to crypto-settled entries and groups by
// asset, then by chain within each asset. Entries without chain metadata
// fall back to arbitrum; that fallback mirrors historical data, it is not a
// guess about the actual chain.
func StablecoinAggregation(entries []models.LedgerEntry) StablecoinStats {
	stats := StablecoinStats{TotalStablecoinIncome: decimal.Zero}
	type chainAgg map[string]decimal.Decimal
	byAsset := make(map[string]chainAgg)

	for _, e := range entries {
		if !models.IsCryptoMethod(e.PaymentMethod) {
			continue
		}
		asset := e.Metadata[models.MetaAsset]
		if asset == "" {
			asset = models.AssetForMethod(e.PaymentMethod)
		}
		chainName := e.Metadata[models.MetaChain]
		if chainName == "" {
			chainName = chain.Arbitrum
		}
		if _, ok := byAsset[asset]; !ok {
			byAsset[asset] = make(chainAgg)
		}
		byAsset[asset][chainName] = byAsset[asset][chainName].Add(e.AmountInDefaultCurrency)
		stats.TotalStablecoinIncome = stats.TotalStablecoinIncome.Add(e.AmountInDefaultCurrency)
	}

	for asset, chains := range byAsset {
		breakdown := AssetBreakdown{Asset: asset, TotalAmount: decimal.Zero}
		for name, amount := range chains {
			breakdown.TotalAmount = breakdown.TotalAmount.Add(amount)
			breakdown.Chains = append(breakdown.Chains, ChainShare{Chain: name, Amount: amount})
		}
		for i := range breakdown.Chains {
			if breakdown.TotalAmount.IsPositive() {
				breakdown.Chains[i].Percentage, _ = breakdown.Chains[i].Amount.Div(breakdown.TotalAmount).Mul(decimal.New(100, 0)).Float64()
			}
		}
		sort.Slice(breakdown.Chains, func(i, j int) bool {
			if !breakdown.Chains[i].Amount.Equal(breakdown.Chains[j].Amount) {
				return breakdown.Chains[i].Amount.GreaterThan(breakdown.Chains[j].Amount)
			}
			return breakdown.Chains[i].Chain < breakdown.Chains[j].Chain
		})
		stats.ByAsset = append(stats.ByAsset, breakdown)
	}
	sort.Slice(stats.ByAsset, func(i, j int) bool {
		if !stats.ByAsset[i].TotalAmount.Equal(stats.ByAsset[j].TotalAmount) {
			return stats.ByAsset[i].TotalAmount.GreaterThan(stats.ByAsset[j].TotalAmount)
		}
		return stats.ByAsset[i].Asset < stats.ByAsset[j].Asset
	})
	return stats
}

// TaxReserve computes the amount to set aside at the given rate. No rounding
// beyond the scale already carried by the inputs.
func TaxReserve(totalIncome, taxRate decimal.Decimal) decimal.Decimal {
	return totalIncome.Mul(taxRate)
}

// StatsService serves the dashboard from a read-only ledger snapshot. It
// never mutates settlement state.
type StatsService struct {
	Ledger *repositories.LedgerRepository
	Users  *repositories.UserRepository
}

// Entries loads the user's ledger snapshot for the optional date range.
func (s *StatsService) Entries(ctx context.Context, userID int64, from, to *time.Time) ([]models.LedgerEntry, error) {
	return s.Ledger.ListByUser(ctx, userID, from, to)
}

// TaxReserveFor computes the reserve over the user's whole ledger at the
// user's configured rate.
func (s *StatsService) TaxReserveFor(ctx context.Context, userID int64) (decimal.Decimal, decimal.Decimal, error) {
	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}
	entries, err := s.Ledger.ListByUser(ctx, userID, nil, nil)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}
	total := TotalIncome(entries)
	return total, TaxReserve(total, user.TaxReserveRate), nil
}

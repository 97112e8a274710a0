package services

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"paydesk/internal/models"
)

func entry(clientID int64, amount string, method string, created time.Time) models.LedgerEntry {
	return models.LedgerEntry{
		ClientID:                clientID,
		ClientName:              "client",
		Amount:                  decimal.RequireFromString(amount),
		Currency:                "USD",
		AmountInDefaultCurrency: decimal.RequireFromString(amount),
		PaymentMethod:           method,
		CreatedAt:               created,
	}
}

func TestTotalIncome(t *testing.T) {
	jan := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	entries := []models.LedgerEntry{
		entry(1, "100.00", models.MethodCard, jan),
		entry(2, "250.50", models.MethodBankTransfer, jan),
		entry(1, "49.50", models.MethodCryptoUSDC, jan),
	}
	total := TotalIncome(entries)
	if !total.Equal(decimal.RequireFromString("400.00")) {
		t.Fatalf("total = %s; want 400.00", total)
	}
	if !TotalIncome(nil).Equal(decimal.Zero) {
		t.Fatalf("empty ledger total should be zero")
	}
}

func TestAggregateByPeriodMonth(t *testing.T) {
	entries := []models.LedgerEntry{
		entry(1, "100.00", models.MethodCard, time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC)),
		entry(1, "50.00", models.MethodCard, time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC)),
		entry(2, "25.00", models.MethodCard, time.Date(2026, 2, 28, 23, 0, 0, 0, time.UTC)),
	}
	buckets, err := AggregateByPeriod(entries, GranularityMonth)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("got %d buckets; want 2", len(buckets))
	}
	if buckets[0].Period != "2026-01" || buckets[1].Period != "2026-02" {
		t.Fatalf("periods not ascending: %s, %s", buckets[0].Period, buckets[1].Period)
	}
	if !buckets[1].Amount.Equal(decimal.RequireFromString("125.00")) || buckets[1].Count != 2 {
		t.Fatalf("feb bucket = %s/%d; want 125.00/2", buckets[1].Amount, buckets[1].Count)
	}

	sum := decimal.Zero
	for _, b := range buckets {
		sum = sum.Add(b.Amount)
	}
	if !sum.Equal(TotalIncome(entries)) {
		t.Fatalf("bucket sum %s != total %s", sum, TotalIncome(entries))
	}
}

func TestAggregateByPeriodWeek(t *testing.T) {
	// Jan 1 2026 falls in ISO week 2026-W01; Dec 29 2025 does too.
	entries := []models.LedgerEntry{
		entry(1, "10.00", models.MethodCard, time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC)),
		entry(1, "20.00", models.MethodCard, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	buckets, err := AggregateByPeriod(entries, GranularityWeek)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(buckets) != 1 {
		t.Fatalf("got %d buckets; want 1", len(buckets))
	}
	if buckets[0].Period != "2026-W01" {
		t.Fatalf("period = %s; want 2026-W01", buckets[0].Period)
	}
	if !buckets[0].Amount.Equal(decimal.RequireFromString("30.00")) {
		t.Fatalf("amount = %s; want 30.00", buckets[0].Amount)
	}
}

func TestAggregateByPeriodUnknownGranularity(t *testing.T) {
	if _, err := AggregateByPeriod(nil, "quarter"); err == nil {
		t.Fatal("expected error for unknown granularity")
	}
}

func TestClientRankings(t *testing.T) {
	jan := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	entries := []models.LedgerEntry{
		entry(1, "300.00", models.MethodCard, jan),
		entry(2, "500.00", models.MethodCard, jan),
		entry(2, "100.00", models.MethodCard, jan),
		entry(3, "200.00", models.MethodCard, jan),
	}
	rankings := ClientRankings(entries, 2)
	if len(rankings) != 2 {
		t.Fatalf("got %d rankings; want 2", len(rankings))
	}
	if rankings[0].ClientID != 2 || rankings[1].ClientID != 1 {
		t.Fatalf("ranking order = %d, %d; want 2, 1", rankings[0].ClientID, rankings[1].ClientID)
	}
	if rankings[0].Invoices != 2 {
		t.Fatalf("top client invoices = %d; want 2", rankings[0].Invoices)
	}
	// 600 of 1100 total.
	if math.Abs(rankings[0].Percentage-54.5454) > 0.01 {
		t.Fatalf("percentage = %f; want ~54.55", rankings[0].Percentage)
	}
}

func TestClientRankingsTieBreak(t *testing.T) {
	jan := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	entries := []models.LedgerEntry{
		entry(7, "100.00", models.MethodCard, jan),
		entry(3, "100.00", models.MethodCard, jan),
	}
	rankings := ClientRankings(entries, 10)
	if rankings[0].ClientID != 3 || rankings[1].ClientID != 7 {
		t.Fatalf("tie order = %d, %d; want 3, 7", rankings[0].ClientID, rankings[1].ClientID)
	}
}

func TestPaymentMethodDistribution(t *testing.T) {
	jan := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	entries := []models.LedgerEntry{
		entry(1, "100.00", models.MethodCard, jan),
		entry(1, "300.00", models.MethodCryptoUSDC, jan),
		entry(1, "100.00", models.MethodCard, jan),
	}
	shares := PaymentMethodDistribution(entries)
	if len(shares) != 2 {
		t.Fatalf("got %d shares; want 2", len(shares))
	}
	if shares[0].Method != models.MethodCryptoUSDC {
		t.Fatalf("top method = %s; want %s", shares[0].Method, models.MethodCryptoUSDC)
	}
	if shares[1].Count != 2 {
		t.Fatalf("card count = %d; want 2", shares[1].Count)
	}

	sum := decimal.Zero
	var pct float64
	for _, s := range shares {
		sum = sum.Add(s.Amount)
		pct += s.Percentage
	}
	if !sum.Equal(TotalIncome(entries)) {
		t.Fatalf("share sum %s != total %s", sum, TotalIncome(entries))
	}
	if math.Abs(pct-100) > 0.1 {
		t.Fatalf("percentages sum to %f; want ~100", pct)
	}
}

func TestStablecoinAggregation(t *testing.T) {
	jan := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	usdcBase := entry(1, "143.00", models.MethodCryptoUSDC, jan)
	usdcBase.Metadata = map[string]string{models.MetaChain: "base", models.MetaAsset: "USDC"}

	usdcArb := entry(2, "57.00", models.MethodCryptoUSDC, jan)
	usdcArb.Metadata = map[string]string{models.MetaChain: "arbitrum", models.MetaAsset: "USDC"}

	usdtPolygon := entry(3, "40.00", models.MethodCryptoUSDT, jan)
	usdtPolygon.Metadata = map[string]string{models.MetaChain: "polygon", models.MetaAsset: "USDT"}

	fiat := entry(4, "999.00", models.MethodCard, jan)

	stats := StablecoinAggregation([]models.LedgerEntry{usdcBase, usdcArb, usdtPolygon, fiat})
	if !stats.TotalStablecoinIncome.Equal(decimal.RequireFromString("240.00")) {
		t.Fatalf("stablecoin total = %s; want 240.00", stats.TotalStablecoinIncome)
	}
	if len(stats.ByAsset) != 2 {
		t.Fatalf("got %d assets; want 2", len(stats.ByAsset))
	}
	usdc := stats.ByAsset[0]
	if usdc.Asset != "USDC" || !usdc.TotalAmount.Equal(decimal.RequireFromString("200.00")) {
		t.Fatalf("first asset = %s/%s; want USDC/200.00", usdc.Asset, usdc.TotalAmount)
	}
	if len(usdc.Chains) != 2 || usdc.Chains[0].Chain != "base" {
		t.Fatalf("usdc chain breakdown unexpected: %+v", usdc.Chains)
	}

	sum := decimal.Zero
	for _, c := range usdc.Chains {
		sum = sum.Add(c.Amount)
	}
	if !sum.Equal(usdc.TotalAmount) {
		t.Fatalf("chain sum %s != asset total %s", sum, usdc.TotalAmount)
	}
}

func TestStablecoinAggregationChainFallback(t *testing.T) {
	jan := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	legacy := entry(1, "75.00", models.MethodCryptoUSDT, jan)
	// No metadata at all, as written before chain tracking existed.

	stats := StablecoinAggregation([]models.LedgerEntry{legacy})
	if len(stats.ByAsset) != 1 || stats.ByAsset[0].Asset != "USDT" {
		t.Fatalf("asset breakdown unexpected: %+v", stats.ByAsset)
	}
	if stats.ByAsset[0].Chains[0].Chain != "arbitrum" {
		t.Fatalf("fallback chain = %s; want arbitrum", stats.ByAsset[0].Chains[0].Chain)
	}
}

func TestTaxReserve(t *testing.T) {
	total := decimal.RequireFromString("1000.00")
	reserve := TaxReserve(total, decimal.RequireFromString("0.30"))
	if !reserve.Equal(decimal.RequireFromString("300.00")) {
		t.Fatalf("reserve = %s; want 300.00", reserve)
	}
	zero := TaxReserve(total, decimal.Zero)
	if !zero.Equal(decimal.Zero) {
		t.Fatalf("zero-rate reserve = %s; want 0", zero)
	}
}

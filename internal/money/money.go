package money

import (
	"fmt"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Supported fiat currencies and their fixed to-USD rates. A live FX feed is
// deliberately not used; the table is the source of truth for conversion.
var usdRates = map[string]decimal.Decimal{
	"USD": decimal.NewFromFloat(1.0),
	"EUR": decimal.NewFromFloat(1.08),
	"HKD": decimal.NewFromFloat(0.128),
	"GBP": decimal.NewFromFloat(1.27),
	"JPY": decimal.NewFromFloat(0.0067),
	// chain-native stablecoins, pegged
	"USDC": decimal.NewFromFloat(1.0),
	"USDT": decimal.NewFromFloat(1.0),
}

const (
	fiatScale       = 2
	stablecoinScale = 6
)

// IsStablecoin reports whether code is one of the supported chain assets.
func IsStablecoin(code string) bool {
	code = strings.ToUpper(code)
	return code == "USDC" || code == "USDT"
}

// Scale returns the decimal scale used to store amounts of the given currency.
func Scale(code string) int32 {
	if IsStablecoin(code) {
		return stablecoinScale
	}
	return fiatScale
}

// MinorUnits renders amount in the smallest unit of the given fiat currency,
// the form card processors expect. Zero-decimal currencies such as JPY are
// not shifted at all.
func MinorUnits(amount decimal.Decimal, code string) string {
	scale := int32(fiatScale)
	if cur := gomoney.GetCurrency(strings.ToUpper(code)); cur != nil {
		scale = int32(cur.Fraction)
	}
	return amount.Shift(scale).StringFixed(0)
}

// Known reports whether the currency code is supported. Fiat codes are also
// checked against the ISO currency table so typos fail early.
func Known(code string) bool {
	code = strings.ToUpper(code)
	if _, ok := usdRates[code]; !ok {
		return false
	}
	if IsStablecoin(code) {
		return true
	}
	return gomoney.GetCurrency(code) != nil
}

// Rate returns the fixed to-USD rate for a currency.
func Rate(code string) (decimal.Decimal, error) {
	r, ok := usdRates[strings.ToUpper(code)]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("money: unknown currency %q", code)
	}
	return r, nil
}

// Convert converts amount between two supported currencies using the fixed
// rate table. Identity conversions return the amount untouched.
func Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from = strings.ToUpper(from)
	to = strings.ToUpper(to)
	if from == to {
		return amount, nil
	}
	rf, err := Rate(from)
	if err != nil {
		return decimal.Decimal{}, err
	}
	rt, err := Rate(to)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return amount.Mul(rf).DivRound(rt, Scale(to)), nil
}

// LineItemTotal computes quantity x unitPrice.
func LineItemTotal(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitPrice)
}

// ComputeTotals derives subtotal, tax amount and total from line item totals
// and a tax rate. Always recomputed from scratch, never cached.
func ComputeTotals(lineTotals []decimal.Decimal, taxRate decimal.Decimal) (subtotal, taxAmount, total decimal.Decimal) {
	subtotal = decimal.Zero
	for _, lt := range lineTotals {
		subtotal = subtotal.Add(lt)
	}
	taxAmount = subtotal.Mul(taxRate)
	total = subtotal.Add(taxAmount)
	return subtotal, taxAmount, total
}

// Format renders an amount with its currency symbol for fiat currencies and
// as a plain decimal for stablecoins.
func Format(amount decimal.Decimal, code string) string {
	code = strings.ToUpper(code)
	if IsStablecoin(code) {
		return amount.StringFixed(stablecoinScale) + " " + code
	}
	cur := gomoney.GetCurrency(code)
	if cur == nil {
		return amount.StringFixed(fiatScale) + " " + code
	}
	minor := amount.Shift(int32(cur.Fraction))
	return cur.Formatter().Format(minor.IntPart())
}

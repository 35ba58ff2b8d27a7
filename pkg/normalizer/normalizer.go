// Package normalizer converts per-venue account balances and position
// notionals to a common USD denomination so cross-venue risk calculations
// never need to reason about quote-currency mismatches. It is a leaf
// package: callers (pkg/venue's Manager) convert their own venue-specific
// types into the plain inputs below, keeping normalizer free of any
// dependency that would cycle back to pkg/venue.
package normalizer

import "strings"

// BalanceInput is the minimal shape normalizer needs from a venue balance.
type BalanceInput struct {
	Currency         string
	TotalEquity      float64
	AvailableBalance float64
	MarginUsed       float64
	UnrealizedPnl    float64
}

// Normalized is a BalanceInput with USD-equivalent values attached. USDT is
// treated as 1:1 with USD — tracking sub-cent depegs adds no value for
// position sizing or risk math.
type Normalized struct {
	Original BalanceInput

	TotalEquityUSD      float64
	AvailableBalanceUSD float64
	MarginUsedUSD       float64
	UnrealizedPnlUSD    float64

	ConversionRate   float64
	ConversionSource string
}

// MarginRatio returns margin used as a fraction of equity, or 0 when equity
// is non-positive.
func (n Normalized) MarginRatio() float64 {
	if n.TotalEquityUSD <= 0 {
		return 0
	}
	return n.MarginUsedUSD / n.TotalEquityUSD
}

// NormalizedPosition is a notional value with USD-equivalent attached.
type NormalizedPosition struct {
	NotionalValueUSD float64
	ConversionRate   float64
	ConversionSource string
}

// Normalizer converts balances and position notionals to USD. It holds no
// state: every supported currency is a fixed 1:1 peg, so there is nothing to
// cache or refresh.
type Normalizer struct{}

// New constructs a Normalizer.
func New() *Normalizer { return &Normalizer{} }

// ConversionRate returns the USD conversion rate for a quote currency and a
// label describing how the rate was derived.
func (n *Normalizer) ConversionRate(currency string) (float64, string) {
	switch strings.ToUpper(currency) {
	case "USD", "USDT":
		return 1.0, "identity"
	default:
		return 1.0, "assumed"
	}
}

// Balance normalizes a balance to USD-equivalent values.
func (n *Normalizer) Balance(balance BalanceInput) Normalized {
	rate, source := n.ConversionRate(balance.Currency)
	return Normalized{
		Original:            balance,
		TotalEquityUSD:      balance.TotalEquity * rate,
		AvailableBalanceUSD: balance.AvailableBalance * rate,
		MarginUsedUSD:       balance.MarginUsed * rate,
		UnrealizedPnlUSD:    balance.UnrealizedPnl * rate,
		ConversionRate:      rate,
		ConversionSource:    source,
	}
}

// Position normalizes a notional value to USD-equivalent, given the quote
// currency it is denominated in.
func (n *Normalizer) Position(notionalValue float64, quoteCurrency string) NormalizedPosition {
	rate, source := n.ConversionRate(quoteCurrency)
	return NormalizedPosition{
		NotionalValueUSD: notionalValue * rate,
		ConversionRate:   rate,
		ConversionSource: source,
	}
}

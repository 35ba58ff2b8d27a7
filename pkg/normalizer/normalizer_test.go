package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversionRateTreatsUSDTAsUSD(t *testing.T) {
	n := New()

	rate, source := n.ConversionRate("USDT")
	assert.Equal(t, 1.0, rate)
	assert.Equal(t, "identity", source)

	rate, source = n.ConversionRate("usd")
	assert.Equal(t, 1.0, rate)
	assert.Equal(t, "identity", source)
}

func TestConversionRateAssumesParityForUnknownCurrency(t *testing.T) {
	n := New()
	rate, source := n.ConversionRate("EUR")
	assert.Equal(t, 1.0, rate)
	assert.Equal(t, "assumed", source)
}

func TestBalanceNormalizesAllFields(t *testing.T) {
	n := New()
	balance := BalanceInput{
		Currency:         "USDT",
		TotalEquity:      1000,
		AvailableBalance: 800,
		MarginUsed:       200,
		UnrealizedPnl:    50,
	}

	normalized := n.Balance(balance)
	assert.Equal(t, 1000.0, normalized.TotalEquityUSD)
	assert.Equal(t, 800.0, normalized.AvailableBalanceUSD)
	assert.Equal(t, 200.0, normalized.MarginUsedUSD)
	assert.Equal(t, 50.0, normalized.UnrealizedPnlUSD)
	assert.Equal(t, "identity", normalized.ConversionSource)
}

func TestMarginRatioIsZeroWhenEquityNonPositive(t *testing.T) {
	normalized := Normalized{TotalEquityUSD: 0, MarginUsedUSD: 100}
	assert.Equal(t, 0.0, normalized.MarginRatio())

	normalized = Normalized{TotalEquityUSD: 1000, MarginUsedUSD: 250}
	assert.Equal(t, 0.25, normalized.MarginRatio())
}

func TestPositionNormalizesNotionalValue(t *testing.T) {
	n := New()
	normalized := n.Position(6000.5, "USD")
	assert.Equal(t, 6000.5, normalized.NotionalValueUSD)
}

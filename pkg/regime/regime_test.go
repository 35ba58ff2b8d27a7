package regime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hivemind-decide/pkg/cost"
)

func TestParamsForKnownRegimesMatchConstants(t *testing.T) {
	assert.Equal(t, 1.2, ParamsFor(Trending).StopMultiplier)
	assert.Equal(t, 1.0, ParamsFor(Trending).KellyMultiplier)
	assert.Equal(t, 0.8, ParamsFor(Ranging).StopMultiplier)
	assert.Equal(t, 0.75, ParamsFor(Ranging).KellyMultiplier)
	assert.Equal(t, 1.5, ParamsFor(Volatile).StopMultiplier)
	assert.Equal(t, 0.5, ParamsFor(Volatile).KellyMultiplier)
	assert.Equal(t, 1.0, ParamsFor(Unknown).StopMultiplier)
	assert.Equal(t, 0.5, ParamsFor(Unknown).KellyMultiplier)
}

func TestParamsForUnrecognizedRegimeFallsBackToUnknown(t *testing.T) {
	assert.Equal(t, ParamsFor(Unknown), ParamsFor(Regime("bogus")))
}

type fakeCandleSource struct {
	candles []cost.Candle
}

func (f *fakeCandleSource) Candles(ctx context.Context, venueName, asset string, count int) ([]cost.Candle, error) {
	return f.candles, nil
}

func trendingCandles(n int, base time.Time) []cost.Candle {
	candles := make([]cost.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price += 0.8 // strong steady uptrend widens the MA spread
		candles[i] = cost.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      price, High: price + 0.3, Low: price - 0.3, Close: price,
		}
	}
	return candles
}

func flatCandles(n int, base time.Time) []cost.Candle {
	candles := make([]cost.Candle, n)
	for i := 0; i < n; i++ {
		candles[i] = cost.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open: 100, High: 100.05, Low: 99.95, Close: 100,
		}
	}
	return candles
}

func TestDetectReturnsUnknownWithInsufficientCandles(t *testing.T) {
	source := &fakeCandleSource{candles: flatCandles(10, time.Now())}
	d := NewDetector(Config{MinCandles: 50}, source)

	analysis, err := d.Detect(context.Background(), "BTC", "hyperliquid")
	require.NoError(t, err)
	assert.Equal(t, Unknown, analysis.Regime)
	assert.Equal(t, "fallback", analysis.Source)
}

func TestDetectClassifiesStrongTrendAsTrending(t *testing.T) {
	source := &fakeCandleSource{candles: trendingCandles(80, time.Now().Add(-80*time.Minute))}
	d := NewDetector(Config{MinCandles: 50}, source)

	analysis, err := d.Detect(context.Background(), "BTC", "hyperliquid")
	require.NoError(t, err)
	assert.Equal(t, Trending, analysis.Regime)
	require.NotNil(t, analysis.MASpreadPct)
	assert.Greater(t, *analysis.MASpreadPct, 0.0)
}

func TestDetectClassifiesFlatMarketAsRanging(t *testing.T) {
	source := &fakeCandleSource{candles: flatCandles(80, time.Now().Add(-80*time.Minute))}
	d := NewDetector(Config{MinCandles: 50}, source)

	analysis, err := d.Detect(context.Background(), "BTC", "hyperliquid")
	require.NoError(t, err)
	assert.Equal(t, Ranging, analysis.Regime)
}

func TestDetectCachesResultPerAssetExchange(t *testing.T) {
	source := &fakeCandleSource{candles: trendingCandles(80, time.Now().Add(-80*time.Minute))}
	d := NewDetector(Config{MinCandles: 50, CacheTTL: time.Minute}, source)

	first, err := d.Detect(context.Background(), "BTC", "hyperliquid")
	require.NoError(t, err)

	source.candles = nil // a cache hit should not re-evaluate against empty candles
	second, err := d.Detect(context.Background(), "BTC", "hyperliquid")
	require.NoError(t, err)
	assert.Equal(t, first.Regime, second.Regime)
}

func TestAdjustedKellyStopConfidence(t *testing.T) {
	assert.Equal(t, 0.5, AdjustedKelly(1.0, Volatile))
	assert.InDelta(t, 1.2, AdjustedStop(1.0, Trending), 1e-9)
	assert.Equal(t, 0.55, AdjustedConfidence(0.5, Ranging))
}

func TestAdjustedConfidenceCapsAt95(t *testing.T) {
	assert.Equal(t, 0.95, AdjustedConfidence(0.9, Volatile))
}

func TestCalculateMARequiresFullPeriod(t *testing.T) {
	_, ok := calculateMA(flatCandles(5, time.Now()), 20)
	assert.False(t, ok)
}

func TestCalculatePriceRangeSpansHighLow(t *testing.T) {
	candles := []cost.Candle{
		{High: 105, Low: 95},
		{High: 110, Low: 90},
	}
	r, ok := calculatePriceRange(candles, 2)
	require.True(t, ok)
	assert.Equal(t, 20.0, r)
}

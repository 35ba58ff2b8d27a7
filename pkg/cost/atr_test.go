package cost

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrueRangeFirstCandleIsHighMinusLow(t *testing.T) {
	tr := TrueRange(Candle{High: 110, Low: 100}, nil)
	assert.Equal(t, 10.0, tr)
}

func TestTrueRangeUsesPrevCloseWhenWider(t *testing.T) {
	prevClose := 95.0
	tr := TrueRange(Candle{High: 110, Low: 100}, &prevClose)
	assert.Equal(t, 15.0, tr) // |110-95| = 15 beats H-L=10
}

func buildCandles(n int, base time.Time) []Candle {
	candles := make([]Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		candles[i] = Candle{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      price,
			High:      price + 2,
			Low:       price - 2,
			Close:     price + 0.5,
		}
		price += 0.5
	}
	return candles
}

func TestWilderATRRequiresPeriodPlusOneCandles(t *testing.T) {
	candles := buildCandles(10, time.Now())
	_, ok := WilderATR(candles, 14)
	assert.False(t, ok)
}

func TestWilderATRComputesSmoothedValue(t *testing.T) {
	candles := buildCandles(20, time.Now())
	atr, ok := WilderATR(candles, 14)
	require.True(t, ok)
	assert.Greater(t, atr, 0.0)
}

func TestRealizedVolNeedsAtLeastTwoPrices(t *testing.T) {
	_, ok := RealizedVol([]float64{100})
	assert.False(t, ok)
}

func TestRealizedVolComputesMeanAbsLogReturn(t *testing.T) {
	pct, ok := RealizedVol([]float64{100, 101, 99, 100})
	require.True(t, ok)
	assert.Greater(t, pct, 0.0)
}

type fakeCandleSource struct {
	candles []Candle
	err     error
}

func (f *fakeCandleSource) Candles(ctx context.Context, venueName, asset string, count int) ([]Candle, error) {
	return f.candles, f.err
}

type fakeDBSource struct {
	value float64
	ok    bool
	err   error
}

func (f *fakeDBSource) ATR(ctx context.Context, venueName, asset string) (float64, bool, error) {
	return f.value, f.ok, f.err
}

type fakeHistorySource struct {
	prices []float64
	err    error
}

func (f *fakeHistorySource) RecentPrices(ctx context.Context, venueName, asset string, hours int) ([]float64, error) {
	return f.prices, f.err
}

func testATRConfig() ATRProviderConfig {
	return ATRProviderConfig{
		Period:             14,
		CacheTTL:           time.Minute,
		MaxStaleness:       5 * time.Minute,
		StrictMode:         true,
		DefaultMultiplier:  2.0,
		Multipliers:        map[string]float64{"BTC": 2.0, "ETH": 1.5},
		FallbackPctByAsset: map[string]float64{"BTC": 0.4, "ETH": 0.6},
		DefaultFallbackPct: 0.5,
	}
}

func TestATRProviderPrefersCandlesWhenAvailable(t *testing.T) {
	candles := buildCandles(20, time.Now())
	provider := NewATRProvider(testATRConfig(), &fakeCandleSource{candles: candles}, nil, nil)

	data, err := provider.Get(context.Background(), "hyperliquid", "BTC", 60000, false)
	require.NoError(t, err)
	assert.Equal(t, SourceCandles, data.Source)
	assert.False(t, data.IsStale(5*time.Minute))
}

func TestATRProviderFallsBackToDBWhenCandlesUnavailable(t *testing.T) {
	provider := NewATRProvider(testATRConfig(), &fakeCandleSource{err: errors.New("boom")}, &fakeDBSource{value: 500, ok: true}, nil)

	data, err := provider.Get(context.Background(), "aster", "BTC", 60000, false)
	require.NoError(t, err)
	assert.Equal(t, SourceDB, data.Source)
	assert.Equal(t, 500.0, data.ATR)
}

func TestATRProviderFallsBackToRealizedVol(t *testing.T) {
	provider := NewATRProvider(testATRConfig(), nil, nil, &fakeHistorySource{prices: []float64{100, 102, 99, 101}})

	data, err := provider.Get(context.Background(), "bybit", "ETH", 3000, false)
	require.NoError(t, err)
	assert.Equal(t, SourceRealizedVol, data.Source)
	assert.True(t, data.IsStale(5*time.Minute))
}

func TestATRProviderFallsBackToHardcodedDefault(t *testing.T) {
	provider := NewATRProvider(testATRConfig(), nil, nil, nil)

	data, err := provider.Get(context.Background(), "bybit", "BTC", 60000, false)
	require.NoError(t, err)
	assert.Equal(t, SourceFallbackHardcoded, data.Source)
	assert.Equal(t, 0.4, data.ATRPct)
	assert.True(t, data.IsStale(5*time.Minute))
}

func TestATRProviderCachesAcrossCalls(t *testing.T) {
	source := &fakeCandleSource{candles: buildCandles(20, time.Now())}
	provider := NewATRProvider(testATRConfig(), source, nil, nil)

	first, err := provider.Get(context.Background(), "hyperliquid", "BTC", 60000, false)
	require.NoError(t, err)

	source.candles = nil // if the cache weren't hit, this would force a fallback
	second, err := provider.Get(context.Background(), "hyperliquid", "BTC", 60000, false)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestATRProviderShouldBlockGateOnlyForHardcodedInStrictMode(t *testing.T) {
	provider := NewATRProvider(testATRConfig(), nil, nil, nil)

	hardcoded, _ := provider.Get(context.Background(), "bybit", "BTC", 60000, false)
	blocked, reason := provider.ShouldBlockGate(hardcoded)
	assert.True(t, blocked)
	assert.NotEmpty(t, reason)

	provider.cfg.StrictMode = false
	blocked, _ = provider.ShouldBlockGate(hardcoded)
	assert.False(t, blocked)
}

package cost

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeeConfigRoundTripCostBpsDefaultsToTaker(t *testing.T) {
	cfg := FeeConfig{MakerFeeBps: 2.5, TakerFeeBps: 5.0}
	assert.Equal(t, 10.0, cfg.RoundTripCostBps(false, false))
}

func TestFeeConfigRoundTripCostBpsHonorsMakerLegs(t *testing.T) {
	cfg := FeeConfig{MakerFeeBps: 2.5, TakerFeeBps: 5.0}
	assert.Equal(t, 5.0, cfg.RoundTripCostBps(true, true))
}

func TestStaticFeeConfigKnownVenues(t *testing.T) {
	assert.Equal(t, FeeConfig{MakerFeeBps: 10.0, TakerFeeBps: 6.0}, StaticFeeConfig("Bybit"))
	assert.Equal(t, FeeConfig{MakerFeeBps: 2.5, TakerFeeBps: 5.0}, StaticFeeConfig("hyperliquid"))
}

func TestStaticFeeConfigUnknownVenueIsZeroValue(t *testing.T) {
	assert.Equal(t, FeeConfig{}, StaticFeeConfig("unknown"))
}

type fakeLiveFeeFetcher struct {
	cfg FeeConfig
	err error
}

func (f *fakeLiveFeeFetcher) FetchFees(ctx context.Context, venueName string) (FeeConfig, error) {
	return f.cfg, f.err
}

func TestFeeProviderFallsBackToStaticWithoutFetcher(t *testing.T) {
	provider := NewFeeProvider(time.Minute, nil)
	cfg, source, err := provider.GetFees(context.Background(), "bybit", false)
	require.NoError(t, err)
	assert.Equal(t, "static", source)
	assert.Equal(t, StaticFeeConfig("bybit"), cfg)
}

func TestFeeProviderUsesLiveFetcherForBybit(t *testing.T) {
	fetcher := &fakeLiveFeeFetcher{cfg: FeeConfig{MakerFeeBps: 1, TakerFeeBps: 2}}
	provider := NewFeeProvider(time.Minute, fetcher)

	cfg, source, err := provider.GetFees(context.Background(), "bybit", false)
	require.NoError(t, err)
	assert.Equal(t, "api", source)
	assert.Equal(t, fetcher.cfg, cfg)
}

func TestFeeProviderFallsBackToStaticOnFetchError(t *testing.T) {
	fetcher := &fakeLiveFeeFetcher{err: errors.New("unauthorized")}
	provider := NewFeeProvider(time.Minute, fetcher)

	cfg, source, err := provider.GetFees(context.Background(), "bybit", false)
	require.NoError(t, err)
	assert.Equal(t, "static", source)
	assert.Equal(t, StaticFeeConfig("bybit"), cfg)
}

func TestFeeProviderCachesResult(t *testing.T) {
	calls := 0
	fetcher := &fakeLiveFeeFetcher{cfg: FeeConfig{MakerFeeBps: 1, TakerFeeBps: 2}}
	countingFetcher := fetcherFunc(func(ctx context.Context, venueName string) (FeeConfig, error) {
		calls++
		return fetcher.cfg, fetcher.err
	})
	provider := NewFeeProvider(time.Minute, countingFetcher)

	_, _, err := provider.GetFees(context.Background(), "bybit", false)
	require.NoError(t, err)
	_, source, err := provider.GetFees(context.Background(), "bybit", false)
	require.NoError(t, err)
	assert.Equal(t, "cached", source)
	assert.Equal(t, 1, calls)
}

func TestFeeProviderGetFeesBpsIsRoundTripTaker(t *testing.T) {
	provider := NewFeeProvider(time.Minute, nil)
	bps, err := provider.GetFeesBps(context.Background(), "hyperliquid", false)
	require.NoError(t, err)
	assert.Equal(t, 10.0, bps)
}

func TestFetchLiveBybitFeesReturnsNotConfigured(t *testing.T) {
	_, err := fetchLiveBybitFees(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

type fetcherFunc func(ctx context.Context, venueName string) (FeeConfig, error)

func (f fetcherFunc) FetchFees(ctx context.Context, venueName string) (FeeConfig, error) {
	return f(ctx, venueName)
}

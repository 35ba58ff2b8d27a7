package cost

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedianDurationEmptyIsFalse(t *testing.T) {
	_, ok := medianDuration(nil)
	assert.False(t, ok)
}

func TestMedianDurationOddCount(t *testing.T) {
	d, ok := medianDuration([]time.Duration{3 * time.Hour, 1 * time.Hour, 2 * time.Hour})
	require.True(t, ok)
	assert.Equal(t, 2*time.Hour, d)
}

func TestMedianDurationEvenCountAverages(t *testing.T) {
	d, ok := medianDuration([]time.Duration{1 * time.Hour, 2 * time.Hour, 3 * time.Hour, 4 * time.Hour})
	require.True(t, ok)
	assert.Equal(t, 150*time.Minute, d)
}

type fakeDurationSource struct {
	durations []time.Duration
	err       error
}

func (f *fakeDurationSource) RecentDurations(ctx context.Context, venueName, asset string) ([]time.Duration, error) {
	return f.durations, f.err
}

func TestHoldTimeProviderFallsBackToDefaultWithoutSource(t *testing.T) {
	provider := NewHoldTimeProvider(HoldTimeProviderConfig{Default: 4 * time.Hour}, nil)

	estimate, err := provider.Estimate(context.Background(), "hyperliquid", "BTC", "unknown")
	require.NoError(t, err)
	assert.Equal(t, "default", estimate.Source)
	assert.Equal(t, 4*time.Hour, estimate.Duration)
}

func TestHoldTimeProviderUsesHistoryMedianWhenAvailable(t *testing.T) {
	source := &fakeDurationSource{durations: []time.Duration{2 * time.Hour, 4 * time.Hour, 6 * time.Hour}}
	provider := NewHoldTimeProvider(HoldTimeProviderConfig{Default: 4 * time.Hour}, source)

	estimate, err := provider.Estimate(context.Background(), "hyperliquid", "BTC", "trending")
	require.NoError(t, err)
	assert.Equal(t, "history", estimate.Source)
	assert.Equal(t, 4*time.Hour, estimate.Duration)
}

func TestHoldTimeProviderAppliesRegimeMultiplier(t *testing.T) {
	provider := NewHoldTimeProvider(HoldTimeProviderConfig{
		Default:          4 * time.Hour,
		RegimeMultiplier: map[string]float64{"volatile": 0.5},
	}, nil)

	estimate, err := provider.Estimate(context.Background(), "hyperliquid", "BTC", "volatile")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, estimate.Duration)
}

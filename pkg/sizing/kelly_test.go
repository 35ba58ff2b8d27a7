package sizing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKellyFractionClampsInvalidWinRate(t *testing.T) {
	assert.Equal(t, 0.0, KellyFraction(1.5, 1, 1))
	assert.Equal(t, 0.0, KellyFraction(-0.1, 1, 1))
}

func TestKellyFractionZeroAvgLossIsZero(t *testing.T) {
	assert.Equal(t, 0.0, KellyFraction(0.6, 1, 0))
}

func TestKellyFractionComputesFullFormula(t *testing.T) {
	// p=0.6, R=2 -> kelly = 0.6 - 0.4/2 = 0.4
	f := KellyFraction(0.6, 2, 1)
	assert.InDelta(t, 0.4, f, 1e-9)
}

func TestExpectedValueSubtractsFeeCost(t *testing.T) {
	ev := ExpectedValue(0.6, 1.0, 0.3, 0.05)
	assert.InDelta(t, 0.6-0.12-0.05, ev, 1e-9)
}

func TestPositionSizeRejectsInvalidPrice(t *testing.T) {
	r := PositionSize(Input{CurrentPrice: 0}, Config{}, 1.0)
	assert.Equal(t, MethodError, r.Method)
}

func TestPositionSizeFallsBackOnInsufficientEpisodes(t *testing.T) {
	r := PositionSize(Input{CurrentPrice: 100, EpisodeCount: 5, AccountValue: 10000}, Config{MinEpisodes: 30, FallbackPct: 0.01}, 1.0)
	assert.Equal(t, MethodFallbackInsufficientData, r.Method)
	assert.Equal(t, 0.01, r.PositionPct)
	assert.Equal(t, 100.0, r.PositionSizeUSD)
}

func TestPositionSizeFallsBackOnNegativeEV(t *testing.T) {
	input := Input{
		WinRate: 0.4, AvgWinR: 0.5, AvgLossR: 1.0,
		EpisodeCount: 50, AccountValue: 10000, CurrentPrice: 100,
		StopDistancePct: 0.01, RoundTripFeePct: 0.001,
	}
	r := PositionSize(input, Config{MinEpisodes: 30, FallbackPct: 0.01}, 1.0)
	assert.Equal(t, MethodFallbackNegativeEV, r.Method)
	assert.Equal(t, 0.005, r.PositionPct) // half the fallback
}

func TestPositionSizeComputesKellySizeAndCap(t *testing.T) {
	input := Input{
		WinRate: 0.6, AvgWinR: 2.0, AvgLossR: 1.0,
		EpisodeCount: 50, AccountValue: 10000, CurrentPrice: 100,
		StopDistancePct: 0.01, RoundTripFeePct: 0.0,
	}
	cfg := Config{Fraction: 0.25, MinEpisodes: 30, MaxFraction: 0.50, MaxPositionPct: 0.10}
	r := PositionSize(input, cfg, 1.0)

	require.Equal(t, MethodKelly, r.Method)
	assert.InDelta(t, 0.4, r.FullKelly, 1e-9)
	assert.InDelta(t, 0.1, r.FractionalKelly, 1e-9) // 0.4 * 0.25
	// position_pct = 0.1 / 0.01 = 10.0, capped to MaxPositionPct 0.10
	assert.Equal(t, 0.10, r.PositionPct)
	assert.True(t, r.Capped)
	assert.Equal(t, 1000.0, r.PositionSizeUSD)
}

func TestPositionSizeAppliesRegimeMultiplierBeforeCap(t *testing.T) {
	input := Input{
		WinRate: 0.6, AvgWinR: 2.0, AvgLossR: 1.0,
		EpisodeCount: 50, AccountValue: 10000, CurrentPrice: 100,
		StopDistancePct: 2.0, // wide stop keeps position_pct under the hard cap
	}
	cfg := Config{Fraction: 0.25, MinEpisodes: 30, MaxFraction: 0.50, MaxPositionPct: 0.10}

	full := PositionSize(input, cfg, 1.0)
	half := PositionSize(input, cfg, 0.5)

	assert.InDelta(t, full.FractionalKelly/2, half.FractionalKelly, 1e-9)
	assert.False(t, full.Capped)
	assert.False(t, half.Capped)
}

type fakePerfSource struct {
	perfs map[string]TraderPerformance
	err   error
}

func (f *fakePerfSource) TraderPerformance(ctx context.Context, address string) (TraderPerformance, bool, error) {
	if f.err != nil {
		return TraderPerformance{}, false, f.err
	}
	p, ok := f.perfs[address]
	return p, ok, nil
}

func TestConsensusPositionSizeFallsBackWithNoQualifyingTraders(t *testing.T) {
	source := &fakePerfSource{perfs: map[string]TraderPerformance{}}
	r, err := ConsensusPositionSize(context.Background(), source, []string{"a", "b"}, 10000, 100, 0.01, Config{MinEpisodes: 30, FallbackPct: 0.01}, 1.0, 0.001)
	require.NoError(t, err)
	assert.Equal(t, MethodFallbackNoKellyTraders, r.Method)
}

func TestConsensusPositionSizeTakesMedianAcrossTraders(t *testing.T) {
	source := &fakePerfSource{perfs: map[string]TraderPerformance{
		"a": {EpisodeCount: 50, WinRate: 0.55, AvgWinR: 1.0, AvgLossR: 1.0},
		"b": {EpisodeCount: 50, WinRate: 0.65, AvgWinR: 1.0, AvgLossR: 1.0},
		"c": {EpisodeCount: 50, WinRate: 0.75, AvgWinR: 1.0, AvgLossR: 1.0},
	}}
	cfg := Config{Fraction: 0.25, MinEpisodes: 30, MaxFraction: 0.50, MaxPositionPct: 0.10}
	r, err := ConsensusPositionSize(context.Background(), source, []string{"a", "b", "c"}, 10000, 100, 0.05, cfg, 1.0, 0.0)
	require.NoError(t, err)
	assert.Equal(t, MethodConsensusKelly, r.Method)
	assert.Contains(t, r.Reasoning, "median of 3 traders")
}

func TestConsensusPositionSizePropagatesSourceError(t *testing.T) {
	source := &fakePerfSource{err: errors.New("db unavailable")}
	_, err := ConsensusPositionSize(context.Background(), source, []string{"a"}, 10000, 100, 0.01, Config{}, 1.0, 0.0)
	assert.Error(t, err)
}

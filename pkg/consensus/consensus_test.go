package consensus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hivemind-decide/pkg/correlation"
)

func TestFillSignedSizeAndDirection(t *testing.T) {
	long := Fill{Side: "long", Size: 5}
	assert.Equal(t, 5.0, long.SignedSize())
	assert.Equal(t, "long", long.Direction())

	short := Fill{Side: "sell", Size: 5}
	assert.Equal(t, -5.0, short.SignedSize())
	assert.Equal(t, "short", short.Direction())
}

func TestCollapseToVotesDropsZeroNetTrader(t *testing.T) {
	fills := []Fill{
		{Address: "0xA", Side: "long", Size: 3, Price: 100},
		{Address: "0xA", Side: "sell", Size: 3, Price: 101},
	}
	votes := collapseToVotes(fills, 1.0)
	assert.Empty(t, votes)
}

func TestCollapseToVotesWeightCappedAndPriceWeighted(t *testing.T) {
	base := time.Now()
	fills := []Fill{
		{Address: "0xA", Side: "long", Size: 2, Price: 100, Ts: base},
		{Address: "0xA", Side: "long", Size: 2, Price: 110, Ts: base.Add(time.Second)},
	}
	votes := collapseToVotes(fills, 1.0)
	require.Len(t, votes, 1)
	assert.Equal(t, "long", votes[0].Direction)
	assert.Equal(t, 1.0, votes[0].Weight) // 4 / cap(1) clamped to 1
	assert.Equal(t, 105.0, votes[0].Price)
	assert.Equal(t, base.Add(time.Second), votes[0].Ts)
}

func TestPassesConsensusGatesRequiresBothCountAndPct(t *testing.T) {
	passed, dir, pct := passesConsensusGates([]string{"long", "long", "long", "short"}, 3, 0.70)
	assert.True(t, passed)
	assert.Equal(t, "long", dir)
	assert.InDelta(t, 0.75, pct, 1e-9)

	passed, _, _ = passesConsensusGates([]string{"long", "long", "short"}, 3, 0.70)
	assert.False(t, passed) // majority count 2 < min_agreeing 3
}

func TestPassesConsensusGatesTieBreaksLong(t *testing.T) {
	_, dir, _ := passesConsensusGates([]string{"long", "short"}, 1, 0.0)
	assert.Equal(t, "long", dir)
}

func TestAdaptiveWindowSecondsBuckets(t *testing.T) {
	assert.Equal(t, 120, adaptiveWindowSeconds(0.1, 120))
	assert.Equal(t, 240, adaptiveWindowSeconds(0.5, 120))
	assert.Equal(t, 360, adaptiveWindowSeconds(0.9, 120))
}

func TestBpsToRConversion(t *testing.T) {
	r := bpsToR(100, 99, 50) // stop distance is 100 bps, cost is 50 bps -> 0.5R
	assert.InDelta(t, 0.5, r, 1e-9)
}

func TestCalculateEVSubtractsCost(t *testing.T) {
	gross, cost, net := calculateEV(0.6, 100, 99, 1.0, 0.3, 100)
	assert.InDelta(t, 0.48, gross, 1e-9)
	assert.InDelta(t, 1.0, cost, 1e-9)
	assert.InDelta(t, -0.52, net, 1e-9)
}

func TestCalibratedPWinClampedRange(t *testing.T) {
	p := calibratedPWin(nil, 0)
	assert.Equal(t, 0.5, p)

	votes := []Vote{{Weight: 1}, {Weight: 1}, {Weight: 1}}
	p = calibratedPWin(votes, 10.0) // effK bonus caps at 0.15, weight bonus 3*0.02 = 0.06
	assert.InDelta(t, 0.71, p, 1e-9)
}

func TestCalculateDispersionRequiresTwoVotes(t *testing.T) {
	assert.Equal(t, 0.0, calculateDispersion([]Vote{{Direction: "long", Weight: 1}}, "long"))

	d := calculateDispersion([]Vote{
		{Direction: "long", Weight: 1},
		{Direction: "short", Weight: 1},
	}, "long")
	assert.Greater(t, d, 0.0)
}

func TestEffKFromCorrSingleTraderReturnsOne(t *testing.T) {
	d := NewDetector(Config{}, nil, nil)
	effK := d.effKFromCorr(map[string]float64{"a": 1.0})
	assert.Equal(t, 1.0, effK)
}

func TestEffKFromCorrUsesDefaultWhenMissing(t *testing.T) {
	d := NewDetector(Config{DefaultCorrelation: 0.5}, nil, nil)
	effK := d.effKFromCorr(map[string]float64{"a": 1.0, "b": 1.0})
	// num=4, den = 1+1+2*(1*1*0.5)=3 -> effK = 4/3
	assert.InDelta(t, 4.0/3.0, effK, 1e-9)
}

func TestEffKFromCorrUsesStoredCorrelation(t *testing.T) {
	d := NewDetector(Config{DefaultCorrelation: 0.5}, nil, nil)
	d.UpdateCorrelation("a", "b", 0.0)
	effK := d.effKFromCorr(map[string]float64{"a": 1.0, "b": 1.0})
	// zero correlation between the only pair -> den = 2 -> effK = 4/2 = 2
	assert.InDelta(t, 2.0, effK, 1e-9)
}

func TestUpdateCorrelationClipsToUnitRange(t *testing.T) {
	d := NewDetector(Config{}, nil, nil)
	d.UpdateCorrelation("a", "b", 5.0)
	d.mu.Lock()
	v := d.correlations[correlation.NewPairKey("a", "b")]
	d.mu.Unlock()
	assert.Equal(t, 1.0, v)
}

func TestReasoningReportsFirstFailingGate(t *testing.T) {
	gates := []GateResult{
		{Name: "min_traders", Passed: true},
		{Name: "supermajority", Passed: false, Value: 0.5, Threshold: 0.7},
	}
	msg := Reasoning(gates)
	assert.Contains(t, msg, "supermajority")
}

type fakeStopSource struct {
	fraction float64
	source   string
	err      error
}

func (f *fakeStopSource) StopFraction(ctx context.Context, venueName, asset string, price float64) (float64, string, error) {
	return f.fraction, f.source, f.err
}

type fakeCostSource struct {
	feesBps, slipBps, fundingBps float64
	err                          error
}

func (f *fakeCostSource) CostBps(ctx context.Context, venueName, asset string, isBuy bool, holdHours, orderSizeUSD float64) (float64, float64, float64, error) {
	return f.feesBps, f.slipBps, f.fundingBps, f.err
}

func agreeingFills(n int, asset string, price float64, size float64) []Fill {
	now := time.Now()
	fills := make([]Fill, n)
	for i := 0; i < n; i++ {
		fills[i] = Fill{
			FillID: "f", Address: "0xTrader" + string(rune('A'+i)),
			Asset: asset, Side: "long", Size: size, Price: price, Ts: now,
		}
	}
	return fills
}

func TestProcessFillBelowMinTradersProducesNoSignal(t *testing.T) {
	cfg := Config{Symbols: []string{"BTC"}, MinTraders: 3}
	d := NewDetector(cfg, nil, nil)

	ctx := context.Background()
	var outcome *CheckOutcome
	for _, f := range agreeingFills(2, "BTC", 100, 2) {
		var err error
		outcome, err = d.ProcessFill(ctx, f, 0.5)
		require.NoError(t, err)
	}
	require.NotNil(t, outcome)
	assert.Nil(t, outcome.Signal)
	assert.Equal(t, "min_traders", outcome.Gates[0].Name)
}

func TestProcessFillConsensusFiresWithPositiveEV(t *testing.T) {
	cfg := Config{
		Symbols: []string{"BTC"}, MinTraders: 3, MinAgreeing: 3, MinPct: 0.7,
		MinEffectiveK: 2.0, DefaultCorrelation: 0.0, WeightCap: 1.0,
		AvgWinR: 1.0, AvgLossR: 0.3, EVMinR: 0.20, Venues: []string{"hyperliquid"},
	}
	stopSource := &fakeStopSource{fraction: 0.01, source: "calculated"}
	costSource := &fakeCostSource{feesBps: 10}
	d := NewDetector(cfg, stopSource, costSource)

	ctx := context.Background()
	var outcome *CheckOutcome
	for _, f := range agreeingFills(3, "BTC", 100, 2) {
		var err error
		outcome, err = d.ProcessFill(ctx, f, 0.5)
		require.NoError(t, err)
	}

	require.NotNil(t, outcome)
	require.NotNil(t, outcome.Signal)
	assert.Equal(t, "long", outcome.Signal.Direction)
	assert.Equal(t, "hyperliquid", outcome.Signal.TargetVenue)
	assert.InDelta(t, 99.0, outcome.Signal.StopPrice, 1e-9)
	assert.GreaterOrEqual(t, outcome.Signal.EVNetR, cfg.EVMinR)

	// window cleared: a fresh check with no new fills finds nothing.
	again, err := d.CheckConsensus(ctx, "BTC")
	require.NoError(t, err)
	assert.Nil(t, again)
}

type panicStopSource struct{}

func (panicStopSource) StopFraction(ctx context.Context, venueName, asset string, price float64) (float64, string, error) {
	panic("boom")
}

func TestProcessFillRecoversPanicInGateSequence(t *testing.T) {
	cfg := Config{
		Symbols: []string{"BTC"}, MinTraders: 3, MinAgreeing: 3, MinPct: 0.7,
		MinEffectiveK: 2.0, DefaultCorrelation: 0.0, WeightCap: 1.0,
		AvgWinR: 1.0, AvgLossR: 0.3, EVMinR: 0.20, Venues: []string{"hyperliquid"},
	}
	d := NewDetector(cfg, panicStopSource{}, &fakeCostSource{feesBps: 10})

	ctx := context.Background()
	var lastErr error
	for _, f := range agreeingFills(3, "BTC", 100, 2) {
		_, lastErr = d.ProcessFill(ctx, f, 0.5)
	}
	require.Error(t, lastErr)
	assert.Contains(t, lastErr.Error(), "BTC")
}

func TestCheckConsensusFailsPriceBandGateOnStaleMid(t *testing.T) {
	cfg := Config{
		Symbols: []string{"BTC"}, MinTraders: 3, MinAgreeing: 3, MinPct: 0.7,
		MinEffectiveK: 2.0, DefaultCorrelation: 0.0, MaxPriceBandBps: 8,
		EVMinR: 5.0, // unreachable EV floor: the third fill stops at the EV gate, so the window survives
	}
	d := NewDetector(cfg, nil, nil)
	ctx := context.Background()

	fills := agreeingFills(3, "BTC", 100, 2)
	for i := range fills {
		_, err := d.ProcessFill(ctx, fills[i], 0.5)
		require.NoError(t, err)
	}
	// Move the mid far away after the votes were collected.
	d.SetCurrentPrice("BTC", 200)

	outcome, err := d.CheckConsensus(ctx, "BTC")
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Nil(t, outcome.Signal)

	last := outcome.Gates[len(outcome.Gates)-1]
	assert.Equal(t, "price_band", last.Name)
	assert.False(t, last.Passed)
}

package svc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hivemind-decide/pkg/cost"
	"hivemind-decide/pkg/venue"
)

func TestAtrStopSourceErrorsWhenNoProviderConfigured(t *testing.T) {
	s := &atrStopSource{}
	_, _, err := s.StopFraction(context.Background(), "hyperliquid", "BTC", 100000)
	assert.Error(t, err)
}

func TestAtrStopSourceFallsBackToHardcodedATR(t *testing.T) {
	atr := cost.NewATRProvider(cost.ATRProviderConfig{}, nil, nil, nil)
	s := &atrStopSource{atr: atr}

	pct, source, err := s.StopFraction(context.Background(), "hyperliquid", "BTC", 50000)
	require.NoError(t, err)
	assert.Equal(t, cost.SourceFallbackHardcoded, source)
	assert.Greater(t, pct, 0.0)
}

func TestVenueCostSourceCombinesFeesAndSlippageWithoutLiveProviders(t *testing.T) {
	fees := cost.NewFeeProvider(0, nil)
	slippage := cost.NewSlippageProvider(cost.SlippageProviderConfig{}, nil)
	s := &venueCostSource{fees: fees, slippage: slippage}

	feesBps, slippageBps, fundingBps, err := s.CostBps(context.Background(), "hyperliquid", "BTC", true, 4, 5000)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, feesBps, 1e-9) // static hyperliquid taker 5.0 on both legs
	assert.Greater(t, slippageBps, 0.0)
	assert.Equal(t, 0.0, fundingBps) // no exchange wired: funding stays zero
}

func TestVenueCostSourceToleratesUnregisteredVenue(t *testing.T) {
	mgr := &venue.Manager{}
	s := &venueCostSource{exchange: mgr}

	_, _, fundingBps, err := s.CostBps(context.Background(), "hyperliquid", "BTC", false, 4, 5000)
	require.NoError(t, err)
	assert.Equal(t, 0.0, fundingBps)
}

package svc

import (
	"context"
	"fmt"

	"hivemind-decide/pkg/cost"
	"hivemind-decide/pkg/venue"
)

// atrStopSource adapts *cost.ATRProvider to pkg/consensus's
// StopFractionSource, so the consensus detector never imports pkg/cost
// directly.
type atrStopSource struct {
	atr *cost.ATRProvider
}

func (s *atrStopSource) StopFraction(ctx context.Context, venueName, asset string, price float64) (float64, string, error) {
	if s.atr == nil {
		return 0, "", fmt.Errorf("atrStopSource: no ATR provider configured")
	}
	data, err := s.atr.Get(ctx, venueName, asset, price, false)
	if err != nil {
		return 0, "", err
	}
	return data.StopDistancePct, data.Source, nil
}

// venueCostSource adapts the fee/slippage/funding providers to
// pkg/consensus's VenueCostSource, combining a live funding rate pulled
// from the venue's market data with the fee/slippage providers' estimates.
type venueCostSource struct {
	exchange *venue.Manager
	fees     *cost.FeeProvider
	slippage *cost.SlippageProvider
}

func (s *venueCostSource) CostBps(ctx context.Context, venueName, asset string, isBuy bool, holdHours, orderSizeUSD float64) (feesBps, slippageBps, fundingBps float64, err error) {
	if s.fees != nil {
		feesBps, err = s.fees.GetFeesBps(ctx, venueName, false)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("venueCostSource: fees: %w", err)
		}
	}

	if s.slippage != nil {
		estimate, err := s.slippage.Estimate(ctx, venueName, asset, orderSizeUSD, isBuy, false)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("venueCostSource: slippage: %w", err)
		}
		slippageBps = estimate.EstimatedSlippageBps
	}

	if s.exchange != nil {
		marketData, err := s.exchange.GetMarketData(ctx, asset, venueName)
		if err == nil && marketData != nil {
			fundingBps = cost.EstimateFundingBps(marketData.FundingRate, holdHours, isBuy)
		}
	}

	return feesBps, slippageBps, fundingBps, nil
}

package hyperliquid

import (
	"context"
	"fmt"
	"math"
	"strconv"
)

// RoundPriceToSigFigs rounds price to the given number of significant
// figures and renders it as a plain decimal string (no scientific
// notation, no trailing zeros) — the shape Hyperliquid's exchange endpoint
// expects for limitPx/triggerPx.
func RoundPriceToSigFigs(price float64, sigFigs int) string {
	if price <= 0 {
		return "0"
	}
	if sigFigs <= 0 {
		sigFigs = 5
	}
	magnitude := math.Floor(math.Log10(math.Abs(price))) + 1
	decimals := sigFigs - int(magnitude)
	if decimals < 0 {
		decimals = 0
	}
	factor := math.Pow(10, float64(decimals))
	rounded := math.Round(price*factor) / factor
	s := strconv.FormatFloat(rounded, 'f', decimals, 64)
	return trimTrailingZeros(s)
}

// FormatPrice validates the asset exists and rounds price to the client's
// configured significant figures (5 by default, matching Hyperliquid's
// tick-size convention).
func (c *Client) FormatPrice(ctx context.Context, coin string, price float64) (string, error) {
	if !isFinite(price) || !(price > 0) {
		return "", fmt.Errorf("hyperliquid: invalid price %v", price)
	}
	if _, err := c.GetAssetInfo(ctx, coin); err != nil {
		return "", err
	}
	sigs := c.priceSigFigs
	if sigs <= 0 {
		sigs = 5
	}
	return RoundPriceToSigFigs(price, sigs), nil
}

package aster

import (
	"context"
	"fmt"
)

// SetStopLoss places a reduce-only conditional stop-loss order covering the
// full position (size/side resolved server-side isn't available here, so
// the caller — Provider — supplies the position-derived size/side).
func (c *Client) SetStopLoss(ctx context.Context, symbol, side, size, triggerPrice string) error {
	return c.conditionalOrder(ctx, symbol, side, "stopLoss", size, triggerPrice)
}

// SetTakeProfit places a reduce-only conditional take-profit order.
func (c *Client) SetTakeProfit(ctx context.Context, symbol, side, size, triggerPrice string) error {
	return c.conditionalOrder(ctx, symbol, side, "takeProfit", size, triggerPrice)
}

func (c *Client) conditionalOrder(ctx context.Context, symbol, side, kind, size, triggerPrice string) error {
	canonical := FormatSymbol(symbol)
	body := map[string]interface{}{
		"symbol":       canonical,
		"side":         side,
		"type":         kind,
		"size":         size,
		"triggerPrice": triggerPrice,
		"reduceOnly":   true,
	}
	if err := c.post(ctx, "/v1/private/conditional-orders", body, nil); err != nil {
		return fmt.Errorf("aster: %s for %s: %w", kind, canonical, err)
	}
	return nil
}

// CancelStopOrders cancels every conditional (stop-loss/take-profit) order
// on a symbol. Aster has no single atomic bracket endpoint, so
// SetStopLossTakeProfit is composed from SetStopLoss+SetTakeProfit via
// venue.BaseAdapter at the Provider layer.
func (c *Client) CancelStopOrders(ctx context.Context, symbol string) error {
	return c.post(ctx, "/v1/private/conditional-orders/cancel-all", map[string]interface{}{
		"symbol": FormatSymbol(symbol),
	}, nil)
}

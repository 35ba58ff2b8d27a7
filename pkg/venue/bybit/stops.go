package bybit

import (
	"context"
	"fmt"
)

// SetStopLoss attaches a position-level stop-loss via set-trading-stop.
// stopPrice is already formatted; qty is omitted so the stop covers the
// full position.
func (c *Client) SetStopLoss(ctx context.Context, symbol, stopPrice string) error {
	return c.setTradingStop(ctx, symbol, map[string]interface{}{
		"stopLoss":    stopPrice,
		"slTriggerBy": "MarkPrice",
	})
}

// SetTakeProfit attaches a position-level take-profit via set-trading-stop.
func (c *Client) SetTakeProfit(ctx context.Context, symbol, takeProfitPrice string) error {
	return c.setTradingStop(ctx, symbol, map[string]interface{}{
		"takeProfit":  takeProfitPrice,
		"tpTriggerBy": "MarkPrice",
	})
}

// SetStopLossTakeProfit sets both legs in a single request — Bybit supports
// this natively, unlike venues that need BaseAdapter's two-call fallback.
func (c *Client) SetStopLossTakeProfit(ctx context.Context, symbol, stopPrice, takeProfitPrice string) error {
	return c.setTradingStop(ctx, symbol, map[string]interface{}{
		"stopLoss":    stopPrice,
		"slTriggerBy": "MarkPrice",
		"takeProfit":  takeProfitPrice,
		"tpTriggerBy": "MarkPrice",
	})
}

// CancelStopOrders clears both stop-loss and take-profit on a symbol by
// setting them to "0", Bybit's convention for "remove".
func (c *Client) CancelStopOrders(ctx context.Context, symbol string) error {
	err := c.setTradingStop(ctx, symbol, map[string]interface{}{
		"stopLoss":   "0",
		"takeProfit": "0",
	})
	if apiErr, ok := err.(*APIError); ok && apiErr.Code == 110020 {
		// 110020: nothing to cancel.
		return nil
	}
	return err
}

func (c *Client) setTradingStop(ctx context.Context, symbol string, extra map[string]interface{}) error {
	canonical := FormatSymbol(symbol)
	body := map[string]interface{}{
		"category":    category,
		"symbol":      canonical,
		"positionIdx": 0,
	}
	for k, v := range extra {
		body[k] = v
	}
	if err := c.post(ctx, "/v5/position/trading-stop", body, nil); err != nil {
		return fmt.Errorf("bybit: set trading stop for %s: %w", canonical, err)
	}
	return nil
}

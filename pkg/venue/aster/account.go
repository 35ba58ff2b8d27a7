package aster

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"hivemind-decide/pkg/venue"
)

type balanceData struct {
	Equity           string `json:"equity"`
	AvailableBalance string `json:"availableBalance"`
	MarginUsed       string `json:"marginUsed"`
	UnrealizedPnl    string `json:"unrealizedPnl"`
}

// GetBalance returns account balance. Aster quotes in USD, unlike Bybit's USDT.
func (c *Client) GetBalance(ctx context.Context) (*venue.Balance, error) {
	var data balanceData
	if err := c.get(ctx, "/v1/private/account", nil, &data); err != nil {
		return nil, err
	}
	return &venue.Balance{
		Currency:          "USD",
		TotalEquity:       parseFloatOrZero(data.Equity),
		AvailableBalance:  parseFloatOrZero(data.AvailableBalance),
		MarginUsed:        parseFloatOrZero(data.MarginUsed),
		UnrealizedPnl:     parseFloatOrZero(data.UnrealizedPnl),
		MaintenanceMargin: parseFloatOrZero(data.MarginUsed),
	}, nil
}

type rawPosition struct {
	Symbol           string `json:"symbol"`
	Size             string `json:"size"`
	EntryPrice       string `json:"entryPrice"`
	MarkPrice        string `json:"markPrice"`
	LiquidationPrice string `json:"liquidationPrice"`
	UnrealizedPnl    string `json:"unrealizedPnl"`
	Leverage         string `json:"leverage"`
	MarginMode       string `json:"marginMode"`
	Margin           string `json:"margin"`
}

// GetPositions returns all open positions, reconstructed from the venue's
// raw position snapshot (Aster has no separate position-history endpoint).
func (c *Client) GetPositions(ctx context.Context) ([]venue.Position, error) {
	var rows []rawPosition
	if err := c.get(ctx, "/v1/private/positions", nil, &rows); err != nil {
		return nil, err
	}

	positions := make([]venue.Position, 0, len(rows))
	for _, item := range rows {
		size := parseFloatOrZero(item.Size)
		if size == 0 {
			continue
		}
		marginType := "isolated"
		if strings.EqualFold(item.MarginMode, "cross") {
			marginType = "cross"
		}
		leverage := int(parseFloatOrZero(item.Leverage))
		if leverage == 0 {
			leverage = 1
		}
		positions = append(positions, venue.Position{
			Coin:          item.Symbol,
			EntryPx:       item.EntryPrice,
			Szi:           item.Size,
			UnrealizedPnl: item.UnrealizedPnl,
			Leverage:      venue.Leverage{Type: marginType, Value: leverage},
			LiquidationPx: item.LiquidationPrice,
		})
	}
	return positions, nil
}

// UpdateLeverage sets leverage for a symbol.
func (c *Client) UpdateLeverage(ctx context.Context, symbol string, leverage int) error {
	if leverage <= 0 {
		return fmt.Errorf("aster: leverage must be positive")
	}
	return c.post(ctx, "/v1/private/leverage", map[string]interface{}{
		"symbol":   FormatSymbol(symbol),
		"leverage": leverage,
	}, nil)
}

func parseFloatOrZero(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

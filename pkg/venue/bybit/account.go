package bybit

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"hivemind-decide/pkg/venue"
)

type walletBalanceResult struct {
	List []struct {
		Coin []struct {
			Coin               string `json:"coin"`
			Equity             string `json:"equity"`
			AvailableToWithdraw string `json:"availableToWithdraw"`
			TotalPositionMM    string `json:"totalPositionMM"`
			UnrealisedPnl      string `json:"unrealisedPnl"`
		} `json:"coin"`
	} `json:"list"`
}

// GetBalance returns the USDT unified-account balance.
func (c *Client) GetBalance(ctx context.Context) (*venue.Balance, error) {
	params := url.Values{"accountType": {"UNIFIED"}}
	var result walletBalanceResult
	if err := c.get(ctx, "/v5/account/wallet-balance", params, &result); err != nil {
		return nil, err
	}

	for _, account := range result.List {
		for _, coin := range account.Coin {
			if coin.Coin != "USDT" {
				continue
			}
			equity, _ := strconv.ParseFloat(coin.Equity, 64)
			available, _ := strconv.ParseFloat(coin.AvailableToWithdraw, 64)
			marginUsed, _ := strconv.ParseFloat(coin.TotalPositionMM, 64)
			unrealized, _ := strconv.ParseFloat(coin.UnrealisedPnl, 64)
			return &venue.Balance{
				Currency:          "USDT",
				TotalEquity:       equity,
				AvailableBalance:  available,
				MarginUsed:        marginUsed,
				UnrealizedPnl:     unrealized,
				MaintenanceMargin: marginUsed,
			}, nil
		}
	}
	return nil, fmt.Errorf("bybit: USDT balance not found in wallet response")
}

type positionListResult struct {
	List []bybitPosition `json:"list"`
}

type bybitPosition struct {
	Symbol         string `json:"symbol"`
	Side           string `json:"side"` // "Buy" (long) or "Sell" (short).
	Size           string `json:"size"`
	AvgPrice       string `json:"avgPrice"`
	MarkPrice      string `json:"markPrice"`
	LiqPrice       string `json:"liqPrice"`
	UnrealisedPnl  string `json:"unrealisedPnl"`
	Leverage       string `json:"leverage"`
	PositionMM     string `json:"positionMM"`
	TradeMode      int    `json:"tradeMode"` // 0 = cross, 1 = isolated.
}

// GetPositions returns all open Bybit linear-perpetual positions.
func (c *Client) GetPositions(ctx context.Context) ([]venue.Position, error) {
	params := url.Values{"category": {category}, "settleCoin": {"USDT"}}
	var result positionListResult
	if err := c.get(ctx, "/v5/position/list", params, &result); err != nil {
		return nil, err
	}

	positions := make([]venue.Position, 0, len(result.List))
	for _, item := range result.List {
		size, _ := strconv.ParseFloat(item.Size, 64)
		if size == 0 {
			continue
		}
		signedSize := size
		if strings.EqualFold(item.Side, "Sell") {
			signedSize = -size
		}
		leverage, _ := strconv.Atoi(strings.SplitN(item.Leverage, ".", 2)[0])
		marginType := "cross"
		if item.TradeMode == 1 {
			marginType = "isolated"
		}
		positions = append(positions, venue.Position{
			Coin:          item.Symbol,
			EntryPx:       item.AvgPrice,
			Szi:           strconv.FormatFloat(signedSize, 'f', -1, 64),
			UnrealizedPnl: item.UnrealisedPnl,
			Leverage:      venue.Leverage{Type: marginType, Value: leverage},
			LiquidationPx: item.LiqPrice,
		})
	}
	return positions, nil
}

// UpdateLeverage sets symbol leverage for both sides (one-way mode requires
// buyLeverage == sellLeverage). Skips the call if already at the target value.
func (c *Client) UpdateLeverage(ctx context.Context, symbol string, leverage int) error {
	if leverage <= 0 {
		return fmt.Errorf("bybit: leverage must be positive")
	}
	canonical := FormatSymbol(symbol)

	c.leverageMu.Lock()
	if c.lastLev[canonical] == leverage {
		c.leverageMu.Unlock()
		return nil
	}
	c.leverageMu.Unlock()

	body := map[string]interface{}{
		"category":     category,
		"symbol":       canonical,
		"buyLeverage":  strconv.Itoa(leverage),
		"sellLeverage": strconv.Itoa(leverage),
	}
	err := c.post(ctx, "/v5/position/set-leverage", body, nil)
	if apiErr, ok := err.(*APIError); ok && apiErr.Code == 110043 {
		// 110043: leverage not modified, already at requested value.
		err = nil
	}
	if err != nil {
		return err
	}

	c.leverageMu.Lock()
	c.lastLev[canonical] = leverage
	c.leverageMu.Unlock()
	return nil
}

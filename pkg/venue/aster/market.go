package aster

import (
	"context"

	"hivemind-decide/pkg/venue"
)

type tickerData struct {
	BestBid     string `json:"bestBid"`
	BestAsk     string `json:"bestAsk"`
	LastPrice   string `json:"lastPrice"`
	MarkPrice   string `json:"markPrice"`
	FundingRate string `json:"fundingRate"`
}

// GetMarketData returns bid/ask/last/mark and funding rate for symbol.
func (c *Client) GetMarketData(ctx context.Context, symbol string) (*venue.MarketData, error) {
	canonical := FormatSymbol(symbol)
	var data tickerData
	if err := c.get(ctx, "/v1/public/ticker", urlValuesOf("symbol", canonical), &data); err != nil {
		return nil, err
	}
	if data.BestBid == "" && data.BestAsk == "" && data.LastPrice == "" {
		return nil, nil
	}
	return &venue.MarketData{
		Symbol:      canonical,
		Bid:         parseFloatOrZero(data.BestBid),
		Ask:         parseFloatOrZero(data.BestAsk),
		Last:        parseFloatOrZero(data.LastPrice),
		Mark:        parseFloatOrZero(data.MarkPrice),
		FundingRate: parseFloatOrZero(data.FundingRate),
		Timestamp:   c.nowMillis(),
	}, nil
}

func (c *Client) nowMillis() int64 {
	return c.clock().UnixMilli()
}

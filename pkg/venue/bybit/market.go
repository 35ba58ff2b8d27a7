package bybit

import (
	"context"
	"net/url"
	"strconv"

	"hivemind-decide/pkg/venue"
)

type tickersResult struct {
	List []struct {
		Symbol       string `json:"symbol"`
		Bid1Price    string `json:"bid1Price"`
		Ask1Price    string `json:"ask1Price"`
		LastPrice    string `json:"lastPrice"`
		MarkPrice    string `json:"markPrice"`
		FundingRate  string `json:"fundingRate"`
	} `json:"list"`
}

// GetMarketData returns bid/ask/last/mark and the current funding rate for symbol.
func (c *Client) GetMarketData(ctx context.Context, symbol string) (*venue.MarketData, error) {
	canonical := FormatSymbol(symbol)
	params := url.Values{"category": {category}, "symbol": {canonical}}

	var result tickersResult
	if err := c.get(ctx, "/v5/market/tickers", params, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, nil
	}
	t := result.List[0]
	bid, _ := strconv.ParseFloat(t.Bid1Price, 64)
	ask, _ := strconv.ParseFloat(t.Ask1Price, 64)
	last, _ := strconv.ParseFloat(t.LastPrice, 64)
	mark, _ := strconv.ParseFloat(t.MarkPrice, 64)
	funding, _ := strconv.ParseFloat(t.FundingRate, 64)

	return &venue.MarketData{
		Symbol:      canonical,
		Bid:         bid,
		Ask:         ask,
		Last:        last,
		Mark:        mark,
		FundingRate: funding,
		Timestamp:   c.nowMillis(),
	}, nil
}

func (c *Client) nowMillis() int64 {
	return c.clock().UnixMilli()
}

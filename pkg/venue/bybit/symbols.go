package bybit

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// symbolInfo caches precision and step data derived from the instruments-info
// endpoint, keyed by canonical symbol (e.g. "BTCUSDT").
type symbolInfo struct {
	qtyStep    string
	tickSize   string
	qtyDigits  int
	priceDigits int
}

var defaultSymbolInfo = symbolInfo{qtyStep: "0.001", tickSize: "0.1", qtyDigits: 3, priceDigits: 1}

type instrumentsInfoResult struct {
	List []struct {
		Symbol        string `json:"symbol"`
		LotSizeFilter struct {
			QtyStep string `json:"qtyStep"`
		} `json:"lotSizeFilter"`
		PriceFilter struct {
			TickSize string `json:"tickSize"`
		} `json:"priceFilter"`
	} `json:"list"`
}

// FormatSymbol normalizes a generic symbol ("BTC", "BTC-PERP", "btcusdt") to
// Bybit's linear-perpetual convention, e.g. "BTCUSDT".
func FormatSymbol(symbol string) string {
	clean := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.HasSuffix(clean, "USDT") {
		return clean
	}
	for _, suffix := range []string{"-PERP", "-USD", "/USDT", "/USD"} {
		clean = strings.ReplaceAll(clean, suffix, "")
	}
	return clean + "USDT"
}

// ensureSymbolInfo loads and caches precision metadata for symbol, fetching
// the full instrument list on first use (mirrors the asset-directory caching
// pattern used by the Hyperliquid adapter).
func (c *Client) ensureSymbolInfo(ctx context.Context, symbol string) (symbolInfo, error) {
	c.symbolMu.RLock()
	info, ok := c.symbols[symbol]
	c.symbolMu.RUnlock()
	if ok {
		return info, nil
	}

	if err := c.loadInstruments(ctx); err != nil {
		return defaultSymbolInfo, err
	}

	c.symbolMu.RLock()
	info, ok = c.symbols[symbol]
	c.symbolMu.RUnlock()
	if ok {
		return info, nil
	}
	return defaultSymbolInfo, nil
}

func (c *Client) loadInstruments(ctx context.Context) error {
	params := url.Values{"category": {category}}
	var result instrumentsInfoResult
	if err := c.get(ctx, "/v5/market/instruments-info", params, &result); err != nil {
		return fmt.Errorf("bybit: load instruments: %w", err)
	}

	c.symbolMu.Lock()
	defer c.symbolMu.Unlock()
	for _, item := range result.List {
		qtyDigits := decimalsFromStep(item.LotSizeFilter.QtyStep)
		priceDigits := decimalsFromStep(item.PriceFilter.TickSize)
		c.symbols[item.Symbol] = symbolInfo{
			qtyStep:     item.LotSizeFilter.QtyStep,
			tickSize:    item.PriceFilter.TickSize,
			qtyDigits:   qtyDigits,
			priceDigits: priceDigits,
		}
		c.assignIndexLocked(item.Symbol)
	}
	return nil
}

// assignIndexLocked assigns the next sequential asset index to symbol if it
// doesn't already have one. Must be called with symbolMu held for writing.
func (c *Client) assignIndexLocked(symbol string) int {
	if idx, ok := c.indexOf[symbol]; ok {
		return idx
	}
	idx := c.nextIdx
	c.nextIdx++
	c.indexOf[symbol] = idx
	c.symbolOf[idx] = symbol
	return idx
}

// AssetIndex returns the stable per-symbol index Bybit's adapter hands out
// in place of Hyperliquid's exchange-native asset index (Bybit identifies
// instruments by symbol string, not integer index).
func (c *Client) AssetIndex(ctx context.Context, symbol string) (int, error) {
	canonical := FormatSymbol(symbol)
	c.symbolMu.RLock()
	idx, ok := c.indexOf[canonical]
	c.symbolMu.RUnlock()
	if ok {
		return idx, nil
	}

	if err := c.loadInstruments(ctx); err != nil {
		return 0, err
	}

	c.symbolMu.Lock()
	idx = c.assignIndexLocked(canonical)
	c.symbolMu.Unlock()
	return idx, nil
}

// symbolForIndex reverses AssetIndex. Returns false if the index is unknown.
func (c *Client) symbolForIndex(idx int) (string, bool) {
	c.symbolMu.RLock()
	defer c.symbolMu.RUnlock()
	symbol, ok := c.symbolOf[idx]
	return symbol, ok
}

func decimalsFromStep(step string) int {
	step = strings.TrimSpace(step)
	if step == "" || !strings.Contains(step, ".") {
		return 0
	}
	return len(strings.TrimRight(strings.SplitN(step, ".", 2)[1], "0"))
}

// FormatQuantity rounds qty to the symbol's lot-size precision.
func (c *Client) FormatQuantity(ctx context.Context, symbol string, qty float64) (string, error) {
	canonical := FormatSymbol(symbol)
	info, err := c.ensureSymbolInfo(ctx, canonical)
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(qty, 'f', info.qtyDigits, 64), nil
}

// FormatPrice rounds price to the symbol's tick-size precision.
func (c *Client) FormatPrice(ctx context.Context, symbol string, price float64) (string, error) {
	canonical := FormatSymbol(symbol)
	info, err := c.ensureSymbolInfo(ctx, canonical)
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(price, 'f', info.priceDigits, 64), nil
}

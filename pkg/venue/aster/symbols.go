package aster

import (
	"context"
	"math"
	"strconv"
	"strings"
)

// symbolPrecision caches per-symbol decimal precision, loaded from the
// public instruments endpoint (mirrors Bybit's symbolInfo cache, since Aster
// likewise has no native integer asset index).
type symbolPrecision struct {
	priceDigits int
	sizeDigits  int
}

var defaultPrecision = symbolPrecision{priceDigits: 2, sizeDigits: 4}

type instrumentsResult struct {
	Data []struct {
		Symbol         string `json:"symbol"`
		PricePrecision int    `json:"pricePrecision"`
		SizePrecision  int    `json:"sizePrecision"`
	} `json:"data"`
}

// FormatSymbol normalizes a generic symbol to Aster's perp convention by
// upper-casing it and appending "-PERP" when absent, e.g. "btc" -> "BTC-PERP".
func FormatSymbol(symbol string) string {
	clean := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.HasSuffix(clean, "-PERP") {
		return clean
	}
	return clean + "-PERP"
}

func (c *Client) ensurePrecision(ctx context.Context, symbol string) symbolPrecision {
	c.symbolMu.RLock()
	info, ok := c.precision[symbol]
	c.symbolMu.RUnlock()
	if ok {
		return info
	}

	if err := c.loadPrecision(ctx); err != nil {
		c.logf("aster: load precision data: %v", err)
		return defaultPrecision
	}

	c.symbolMu.RLock()
	info, ok = c.precision[symbol]
	c.symbolMu.RUnlock()
	if ok {
		return info
	}
	return defaultPrecision
}

func (c *Client) loadPrecision(ctx context.Context) error {
	var result instrumentsResult
	if err := c.get(ctx, "/v1/public/instruments", nil, &result); err != nil {
		return err
	}

	c.symbolMu.Lock()
	defer c.symbolMu.Unlock()
	for _, item := range result.Data {
		priceDigits := item.PricePrecision
		if priceDigits == 0 {
			priceDigits = defaultPrecision.priceDigits
		}
		sizeDigits := item.SizePrecision
		if sizeDigits == 0 {
			sizeDigits = defaultPrecision.sizeDigits
		}
		c.precision[item.Symbol] = symbolPrecision{priceDigits: priceDigits, sizeDigits: sizeDigits}
		c.assignIndexLocked(item.Symbol)
	}
	return nil
}

// assignIndexLocked assigns the next sequential asset index to symbol.
// Must be called with symbolMu held for writing.
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

// AssetIndex returns the stable per-symbol index this adapter hands out in
// place of a native integer asset index.
func (c *Client) AssetIndex(ctx context.Context, symbol string) (int, error) {
	canonical := FormatSymbol(symbol)
	c.symbolMu.RLock()
	idx, ok := c.indexOf[canonical]
	c.symbolMu.RUnlock()
	if ok {
		return idx, nil
	}

	if err := c.loadPrecision(ctx); err != nil {
		return 0, err
	}
	c.symbolMu.Lock()
	idx = c.assignIndexLocked(canonical)
	c.symbolMu.Unlock()
	return idx, nil
}

func (c *Client) symbolForIndex(idx int) (string, bool) {
	c.symbolMu.RLock()
	defer c.symbolMu.RUnlock()
	symbol, ok := c.symbolOf[idx]
	return symbol, ok
}

// FormatQuantity truncates (never rounds up) qty to the symbol's size
// precision, matching the reference adapter's int(qty*factor)/factor.
func (c *Client) FormatQuantity(ctx context.Context, symbol string, qty float64) (string, error) {
	canonical := FormatSymbol(symbol)
	info := c.ensurePrecision(ctx, canonical)
	return truncateDecimal(qty, info.sizeDigits), nil
}

// FormatPrice truncates price to the symbol's price precision.
func (c *Client) FormatPrice(ctx context.Context, symbol string, price float64) (string, error) {
	canonical := FormatSymbol(symbol)
	info := c.ensurePrecision(ctx, canonical)
	return truncateDecimal(price, info.priceDigits), nil
}

func truncateDecimal(value float64, digits int) string {
	factor := math.Pow(10, float64(digits))
	truncated := math.Trunc(value*factor) / factor
	return strconv.FormatFloat(truncated, 'f', digits, 64)
}

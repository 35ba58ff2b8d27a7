package cost

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"hivemind-decide/internal/ttlcache"
)

// OrderbookLevel is a single price/size level.
type OrderbookLevel struct {
	Price float64
	Size  float64 // base-asset units
}

// Orderbook is an L2 snapshot for one (venue, asset) pair. Bids are sorted
// best-first (descending price), asks best-first (ascending price).
type Orderbook struct {
	Asset     string
	Venue     string
	Bids      []OrderbookLevel
	Asks      []OrderbookLevel
	MidPrice  float64
	SpreadBps float64
	FetchedAt time.Time
}

// OrderbookFetcher fetches a live L2 snapshot. Only venues with a usable
// public orderbook endpoint need to implement this.
type OrderbookFetcher interface {
	Orderbook(ctx context.Context, venueName, asset string) (*Orderbook, error)
}

// SlippageEstimate is the result of estimating fill slippage for an order.
type SlippageEstimate struct {
	Asset               string
	Venue               string
	OrderSizeUSD        float64
	IsBuy               bool
	EstimatedSlippageBps float64
	ExpectedFillPrice   float64
	MidPrice            float64
	ImpactBps           float64
	IsWarning           bool
	Source              string // "orderbook" or "static"
}

// sizeBucket classifies an order into the static fallback's size buckets.
type sizeBucket string

const (
	bucketSmall  sizeBucket = "small"
	bucketMedium sizeBucket = "medium"
	bucketLarge  sizeBucket = "large"
)

func bucketFor(orderSizeUSD, smallThreshold, largeThreshold float64) sizeBucket {
	switch {
	case orderSizeUSD < smallThreshold:
		return bucketSmall
	case orderSizeUSD < largeThreshold:
		return bucketMedium
	default:
		return bucketLarge
	}
}

// staticSlippageBps mirrors DEFAULT_SLIPPAGE_BPS: conservative per-venue,
// per-asset, per-size-bucket estimates used when no orderbook is available.
var staticSlippageBps = map[string]map[string]map[sizeBucket]float64{
	"hyperliquid": {
		"BTC": {bucketSmall: 1.0, bucketMedium: 2.0, bucketLarge: 5.0},
		"ETH": {bucketSmall: 1.5, bucketMedium: 3.0, bucketLarge: 7.0},
	},
	"aster": {
		"BTC": {bucketSmall: 1.0, bucketMedium: 2.0, bucketLarge: 5.0},
		"ETH": {bucketSmall: 1.5, bucketMedium: 3.0, bucketLarge: 7.0},
	},
	"bybit": {
		"BTC": {bucketSmall: 0.5, bucketMedium: 1.5, bucketLarge: 3.0},
		"ETH": {bucketSmall: 1.0, bucketMedium: 2.0, bucketLarge: 5.0},
	},
}

// SlippageProviderConfig carries the size-bucket thresholds and warning
// threshold, all overridable from the defaults the Python provider used.
type SlippageProviderConfig struct {
	CacheTTLRaw string        `yaml:"cache_ttl"` // e.g. "30s"
	CacheTTL    time.Duration `yaml:"-"`

	SizeThresholdSmall  float64 `yaml:"size_threshold_small"`  // default 10_000
	SizeThresholdLarge  float64 `yaml:"size_threshold_large"`  // default 50_000
	WarningThresholdBps float64 `yaml:"warning_threshold_bps"` // default 10.0
}

// normalise parses CacheTTLRaw (set by YAML loading) into CacheTTL.
func (c *SlippageProviderConfig) normalise() error {
	if c.CacheTTLRaw == "" {
		return nil
	}
	d, err := time.ParseDuration(c.CacheTTLRaw)
	if err != nil {
		return fmt.Errorf("slippage config: invalid cache_ttl %q: %w", c.CacheTTLRaw, err)
	}
	c.CacheTTL = d
	return nil
}

// SlippageProvider estimates order slippage, preferring a live orderbook
// walk and falling back to a static size-bucket table.
type SlippageProvider struct {
	cfg     SlippageProviderConfig
	cache   *ttlcache.Cache[ttlcache.VenueAsset, Orderbook]
	fetcher OrderbookFetcher
}

// NewSlippageProvider constructs a SlippageProvider. fetcher may be nil, in
// which case every estimate falls straight to the static table.
func NewSlippageProvider(cfg SlippageProviderConfig, fetcher OrderbookFetcher) *SlippageProvider {
	if cfg.SizeThresholdSmall <= 0 {
		cfg.SizeThresholdSmall = 10000
	}
	if cfg.SizeThresholdLarge <= 0 {
		cfg.SizeThresholdLarge = 50000
	}
	if cfg.WarningThresholdBps <= 0 {
		cfg.WarningThresholdBps = 10.0
	}
	return &SlippageProvider{cfg: cfg, cache: ttlcache.New[ttlcache.VenueAsset, Orderbook](cfg.CacheTTL), fetcher: fetcher}
}

// GetOrderbook returns a cached or freshly fetched orderbook, or nil if
// unavailable.
func (p *SlippageProvider) GetOrderbook(ctx context.Context, venueName, asset string, forceRefresh bool) (*Orderbook, error) {
	key := ttlcache.VenueAsset{Venue: strings.ToLower(venueName), Asset: strings.ToUpper(asset)}
	if !forceRefresh {
		if cached, ok := p.cache.Get(key); ok {
			return &cached, nil
		}
	}
	if p.fetcher == nil {
		return nil, nil
	}
	ob, err := p.fetcher.Orderbook(ctx, venueName, asset)
	if err != nil || ob == nil {
		return nil, nil //nolint:nilerr // a fetch failure falls through to the static fallback
	}
	p.cache.Set(key, *ob)
	return ob, nil
}

// Estimate estimates slippage for an order, preferring a live orderbook walk.
func (p *SlippageProvider) Estimate(ctx context.Context, venueName, asset string, orderSizeUSD float64, isBuy bool, forceRefresh bool) (SlippageEstimate, error) {
	asset = strings.ToUpper(asset)
	venueLower := strings.ToLower(venueName)

	ob, err := p.GetOrderbook(ctx, venueLower, asset, forceRefresh)
	if err != nil {
		return SlippageEstimate{}, err
	}
	if ob != nil {
		return p.estimateFromOrderbook(*ob, orderSizeUSD, isBuy), nil
	}
	return p.estimateStatic(venueLower, asset, orderSizeUSD, isBuy), nil
}

func (p *SlippageProvider) estimateFromOrderbook(ob Orderbook, orderSizeUSD float64, isBuy bool) SlippageEstimate {
	levels := ob.Asks
	if !isBuy {
		levels = ob.Bids
	}

	if len(levels) == 0 {
		slippageBps := ob.SpreadBps / 2
		return SlippageEstimate{
			Asset: ob.Asset, Venue: ob.Venue, OrderSizeUSD: orderSizeUSD, IsBuy: isBuy,
			EstimatedSlippageBps: slippageBps,
			ExpectedFillPrice:    sidePrice(ob.MidPrice, slippageBps, isBuy),
			MidPrice:             ob.MidPrice,
			ImpactBps:            slippageBps,
			IsWarning:            slippageBps > p.cfg.WarningThresholdBps,
			Source:               "orderbook",
		}
	}

	remaining := orderSizeUSD
	var totalFilled, totalCost float64
	for _, level := range levels {
		if remaining <= 0 {
			break
		}
		levelUSD := level.Price * level.Size
		if levelUSD >= remaining {
			fillAmount := remaining / level.Price
			totalFilled += fillAmount
			totalCost += remaining
			remaining = 0
		} else {
			totalFilled += level.Size
			totalCost += levelUSD
			remaining -= levelUSD
		}
	}

	avgFillPrice := ob.MidPrice
	var impactBps float64
	if totalFilled > 0 {
		avgFillPrice = totalCost / totalFilled
		if ob.MidPrice > 0 {
			impactBps = math.Abs(avgFillPrice-ob.MidPrice) / ob.MidPrice * 10000
		}
	}
	slippageBps := impactBps + ob.SpreadBps/2

	return SlippageEstimate{
		Asset: ob.Asset, Venue: ob.Venue, OrderSizeUSD: orderSizeUSD, IsBuy: isBuy,
		EstimatedSlippageBps: slippageBps,
		ExpectedFillPrice:    avgFillPrice,
		MidPrice:             ob.MidPrice,
		ImpactBps:            impactBps,
		IsWarning:            slippageBps > p.cfg.WarningThresholdBps,
		Source:               "orderbook",
	}
}

func sidePrice(mid, slippageBps float64, isBuy bool) float64 {
	if isBuy {
		return mid * (1 + slippageBps/10000)
	}
	return mid * (1 - slippageBps/10000)
}

func (p *SlippageProvider) estimateStatic(venueLower, asset string, orderSizeUSD float64, isBuy bool) SlippageEstimate {
	bucket := bucketFor(orderSizeUSD, p.cfg.SizeThresholdSmall, p.cfg.SizeThresholdLarge)

	venueRates, ok := staticSlippageBps[venueLower]
	if !ok {
		venueRates = staticSlippageBps["hyperliquid"]
	}
	assetRates, ok := venueRates[asset]
	if !ok {
		assetRates, ok = venueRates["BTC"]
		if !ok {
			assetRates = map[sizeBucket]float64{bucketSmall: 2, bucketMedium: 4, bucketLarge: 10}
		}
	}
	slippageBps, ok := assetRates[bucket]
	if !ok {
		slippageBps = 5.0
	}

	return SlippageEstimate{
		Asset: asset, Venue: venueLower, OrderSizeUSD: orderSizeUSD, IsBuy: isBuy,
		EstimatedSlippageBps: slippageBps,
		ImpactBps:            slippageBps,
		IsWarning:            slippageBps > p.cfg.WarningThresholdBps,
		Source:               "static",
	}
}

// ClearCache drops all cached orderbook snapshots.
func (p *SlippageProvider) ClearCache() {
	p.cache.Clear()
}

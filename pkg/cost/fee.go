package cost

import (
	"context"
	"errors"
	"strings"
	"time"

	"hivemind-decide/internal/ttlcache"
)

// ErrNotConfigured is returned by a live fee/rate fetch path that has no
// credentials wired up yet. Callers fall back to the static table — this is
// a documented operational gap, not a TODO to silently paper over (the
// Bybit VIP-tier endpoint genuinely requires an authenticated account).
var ErrNotConfigured = errors.New("cost: live fetch not configured")

// FeeConfig is a venue's maker/taker fee schedule, in basis points.
// 1 bps = 0.01% = 0.0001.
type FeeConfig struct {
	MakerFeeBps          float64 `yaml:"maker_fee_bps"`
	TakerFeeBps          float64 `yaml:"taker_fee_bps"`
	FundingRateHourlyBps float64 `yaml:"funding_rate_hourly_bps"`
}

// RoundTripCostBps sums entry and exit fees. Most orders in this system are
// taker (market) orders; pass true for a leg placed as a maker (limit) order.
func (f FeeConfig) RoundTripCostBps(isMakerEntry, isMakerExit bool) float64 {
	entry := f.TakerFeeBps
	if isMakerEntry {
		entry = f.MakerFeeBps
	}
	exit := f.TakerFeeBps
	if isMakerExit {
		exit = f.MakerFeeBps
	}
	return entry + exit
}

// staticFeeTable mirrors exchanges.EXCHANGE_FEES: default schedules for the
// three supported venues, used whenever a live lookup is unavailable.
var staticFeeTable = map[string]FeeConfig{
	"hyperliquid": {MakerFeeBps: 2.5, TakerFeeBps: 5.0},
	"aster":       {MakerFeeBps: 2.5, TakerFeeBps: 5.0},
	"bybit":       {MakerFeeBps: 10.0, TakerFeeBps: 6.0}, // VIP0 retail rates
}

// StaticFeeConfig returns the default fee schedule for a venue, or a
// conservative zero-value config for an unrecognized venue name.
func StaticFeeConfig(venueName string) FeeConfig {
	if cfg, ok := staticFeeTable[strings.ToLower(venueName)]; ok {
		return cfg
	}
	return FeeConfig{}
}

// LiveFeeFetcher fetches a venue's current fee tier from its API. Only
// venues that expose an account-specific fee-tier endpoint need to
// implement this; others simply have no fetcher wired.
type LiveFeeFetcher interface {
	FetchFees(ctx context.Context, venueName string) (FeeConfig, error)
}

// CachedFee is a fee schedule tagged with where it came from.
type CachedFee struct {
	Config FeeConfig
	Source string // "api", "static", or "cached"
}

// FeeProvider looks up fee schedules with a short-TTL cache in front of a
// live API fetch, falling back to the static table.
type FeeProvider struct {
	cache *ttlcache.Cache[string, CachedFee]
	live  LiveFeeFetcher
}

// NewFeeProvider constructs a FeeProvider. live may be nil, in which case
// every lookup falls straight through to the static table.
func NewFeeProvider(cacheTTL time.Duration, live LiveFeeFetcher) *FeeProvider {
	return &FeeProvider{cache: ttlcache.New[string, CachedFee](cacheTTL), live: live}
}

// GetFees returns the fee config for a venue and a source label.
func (p *FeeProvider) GetFees(ctx context.Context, venueName string, forceRefresh bool) (FeeConfig, string, error) {
	key := strings.ToLower(venueName)
	if !forceRefresh {
		if cached, ok := p.cache.Get(key); ok {
			return cached.Config, "cached", nil
		}
	}

	source := "static"
	cfg, err := p.fetchLive(ctx, key)
	if err != nil {
		cfg = StaticFeeConfig(key)
	} else {
		source = "api"
	}

	p.cache.Set(key, CachedFee{Config: cfg, Source: source})
	return cfg, source, nil
}

// GetFeesBps is a convenience wrapper for EV calculations: round-trip taker
// fees in bps.
func (p *FeeProvider) GetFeesBps(ctx context.Context, venueName string, forceRefresh bool) (float64, error) {
	cfg, _, err := p.GetFees(ctx, venueName, forceRefresh)
	if err != nil {
		return 0, err
	}
	return cfg.RoundTripCostBps(false, false), nil
}

func (p *FeeProvider) fetchLive(ctx context.Context, venueName string) (FeeConfig, error) {
	if venueName != "bybit" || p.live == nil {
		return FeeConfig{}, ErrNotConfigured
	}
	return p.live.FetchFees(ctx, venueName)
}

// fetchLiveBybitFees documents the same gap as fee_provider.py's
// _fetch_bybit_fees: the v5/account/fee-rate endpoint requires an
// authenticated account, which this core does not carry credentials for
// today. A LiveFeeFetcher implementation can be wired in once that changes;
// until then every Bybit lookup resolves via the static table.
func fetchLiveBybitFees(ctx context.Context) (FeeConfig, error) {
	return FeeConfig{}, ErrNotConfigured
}

// ClearCache drops all cached fee schedules.
func (p *FeeProvider) ClearCache() {
	p.cache.Clear()
}

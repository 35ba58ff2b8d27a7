// Package cost provides the per-venue cost estimators the consensus and
// sizing stages need before a trade can be priced: ATR-derived stop
// distance, round-trip fees, slippage, hold-period funding, and expected
// hold time. The ATR, fee, slippage and hold-time providers each keep a
// short-TTL internal/ttlcache entry (keyed by venue for fees, by venue and
// asset otherwise) and stamp their result with a source tag so a caller can
// tell a live reading from a fallback; ATR, fee and slippage lookups also
// take a force-refresh flag. Funding is a pure function with no cache.
package cost

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"hivemind-decide/internal/ttlcache"
)

// Candle is a single OHLC bar.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
}

// TrueRange computes True Range = max(H-L, |H-prevClose|, |L-prevClose|).
// prevClose of nil (first candle in a series) collapses it to H-L.
func TrueRange(c Candle, prevClose *float64) float64 {
	hl := c.High - c.Low
	if prevClose == nil {
		return hl
	}
	hpc := math.Abs(c.High - *prevClose)
	lpc := math.Abs(c.Low - *prevClose)
	return math.Max(hl, math.Max(hpc, lpc))
}

// WilderATR computes ATR over candles using Wilder's smoothing: the initial
// value is a simple mean of the first `period` true ranges, then each
// subsequent true range is folded in as ((period-1)*prev + tr) / period.
// candles need not be sorted; ok is false when fewer than period+1 bars are
// available.
func WilderATR(candles []Candle, period int) (atr float64, ok bool) {
	if len(candles) < period+1 || period <= 0 {
		return 0, false
	}

	sorted := make([]Candle, len(candles))
	copy(sorted, candles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	trs := make([]float64, len(sorted))
	for i, c := range sorted {
		var prevClose *float64
		if i > 0 {
			pc := sorted[i-1].Close
			prevClose = &pc
		}
		trs[i] = TrueRange(c, prevClose)
	}
	if len(trs) < period {
		return 0, false
	}

	var sum float64
	for _, tr := range trs[:period] {
		sum += tr
	}
	atr = sum / float64(period)
	for _, tr := range trs[period:] {
		atr = (float64(period-1)*atr + tr) / float64(period)
	}
	return atr, true
}

// RealizedVol estimates a volatility proxy from a price series as the mean
// absolute log return, expressed as a percentage (mean |log(p_n/p_n-1)| *
// 100). Used as the third fallback rung when candles and DB-precomputed ATR
// are both unavailable.
func RealizedVol(prices []float64) (pct float64, ok bool) {
	if len(prices) < 2 {
		return 0, false
	}
	var sum float64
	n := 0
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			continue
		}
		sum += math.Abs(math.Log(prices[i] / prices[i-1]))
		n++
	}
	if n == 0 {
		return 0, false
	}
	return (sum / float64(n)) * 100, true
}

// Source labels for ATRData.Source, identifying how an ATRData value was
// produced, in order of preference.
const (
	SourceCandles           = "calculated"
	SourceDB                = "db"
	SourceRealizedVol       = "realized_vol"
	SourceFallbackHardcoded = "fallback_hardcoded"
)

// ATRData is a point-in-time ATR reading for one (venue, asset) pair.
type ATRData struct {
	Asset           string
	Venue           string
	ATR             float64 // raw ATR in price units
	ATRPct          float64 // ATR as a percentage of price
	Price           float64
	Multiplier      float64 // stop multiplier for this asset
	StopDistancePct float64 // ATRPct * Multiplier
	Timestamp       time.Time
	Source          string
}

// IsStale reports whether the reading should be treated as stale: the two
// fallback-only sources are always stale, everything else ages out after
// maxStaleness.
func (d ATRData) IsStale(maxStaleness time.Duration) bool {
	if d.Source == SourceFallbackHardcoded || d.Source == SourceRealizedVol {
		return true
	}
	return time.Since(d.Timestamp) > maxStaleness
}

// StopFraction returns stop distance as a fraction of price (0.01 = 1%).
func (d ATRData) StopFraction() float64 {
	return d.StopDistancePct / 100.0
}

// CandleSource fetches recent OHLC candles for an asset on a venue, newest
// data included, in any order. The ATR provider only asks for what it needs
// to compute a period-length ATR.
type CandleSource interface {
	Candles(ctx context.Context, venue, asset string, count int) ([]Candle, error)
}

// PrecomputedATRSource reads a previously computed ATR value from storage
// (e.g. a nightly batch job), used as the second fallback rung.
type PrecomputedATRSource interface {
	ATR(ctx context.Context, venue, asset string) (value float64, ok bool, err error)
}

// PriceHistorySource returns a recent price series for realized-vol
// fallback, oldest first.
type PriceHistorySource interface {
	RecentPrices(ctx context.Context, venue, asset string, hours int) ([]float64, error)
}

// ATRProviderConfig carries the per-asset fallback table and strictness
// knobs, mirroring ATR_STRICT_MODE / ATR_FALLBACK_BY_ASSET / ATR_MULTIPLIERS.
type ATRProviderConfig struct {
	Period int `yaml:"period"`

	CacheTTLRaw string        `yaml:"cache_ttl"` // e.g. "30s"
	CacheTTL    time.Duration `yaml:"-"`

	MaxStalenessRaw string        `yaml:"max_staleness"` // e.g. "10m"
	MaxStaleness    time.Duration `yaml:"-"`

	StrictMode         bool               `yaml:"strict_mode"`
	DefaultMultiplier  float64            `yaml:"default_multiplier"`
	Multipliers        map[string]float64 `yaml:"multipliers"`           // asset -> stop multiplier
	FallbackPctByAsset map[string]float64 `yaml:"fallback_pct_by_asset"` // asset -> hardcoded ATR%
	DefaultFallbackPct float64            `yaml:"default_fallback_pct"`
}

// normalise parses CacheTTLRaw/MaxStalenessRaw (set by YAML loading) into
// their time.Duration counterparts.
func (c *ATRProviderConfig) normalise() error {
	if c.CacheTTLRaw != "" {
		d, err := time.ParseDuration(c.CacheTTLRaw)
		if err != nil {
			return fmt.Errorf("atr config: invalid cache_ttl %q: %w", c.CacheTTLRaw, err)
		}
		c.CacheTTL = d
	}
	if c.MaxStalenessRaw != "" {
		d, err := time.ParseDuration(c.MaxStalenessRaw)
		if err != nil {
			return fmt.Errorf("atr config: invalid max_staleness %q: %w", c.MaxStalenessRaw, err)
		}
		c.MaxStaleness = d
	}
	return nil
}

// ATRProvider computes ATR with a four-rung fallback chain: venue-native
// candles, DB-precomputed value, 24h realized volatility, hardcoded default.
type ATRProvider struct {
	cfg     ATRProviderConfig
	cache   *ttlcache.Cache[ttlcache.VenueAsset, ATRData]
	candles CandleSource
	db      PrecomputedATRSource
	history PriceHistorySource
}

// NewATRProvider constructs a provider. candles, db, and history may each be
// nil — a nil source is skipped and the next fallback rung is tried.
func NewATRProvider(cfg ATRProviderConfig, candles CandleSource, db PrecomputedATRSource, history PriceHistorySource) *ATRProvider {
	if cfg.Period <= 0 {
		cfg.Period = 14
	}
	return &ATRProvider{
		cfg:     cfg,
		cache:   ttlcache.New[ttlcache.VenueAsset, ATRData](cfg.CacheTTL),
		candles: candles,
		db:      db,
		history: history,
	}
}

func (p *ATRProvider) multiplier(asset string) float64 {
	if m, ok := p.cfg.Multipliers[asset]; ok {
		return m
	}
	return p.cfg.DefaultMultiplier
}

func (p *ATRProvider) fallbackPct(asset string) float64 {
	if pct, ok := p.cfg.FallbackPctByAsset[asset]; ok {
		return pct
	}
	return p.cfg.DefaultFallbackPct
}

// Get returns ATR data for (venue, asset), walking the fallback chain until
// a rung succeeds. price, when non-zero, is used to convert the ATR into a
// percentage and is carried through to the hardcoded fallback as the
// reference price.
func (p *ATRProvider) Get(ctx context.Context, venueName, asset string, price float64, forceRefresh bool) (ATRData, error) {
	key := ttlcache.VenueAsset{Venue: venueName, Asset: asset}
	if !forceRefresh {
		if cached, ok := p.cache.Get(key); ok {
			return cached, nil
		}
	}

	data, err := p.fromCandles(ctx, venueName, asset, price)
	if err != nil {
		return ATRData{}, err
	}
	if data == nil {
		data = p.fromDB(ctx, venueName, asset, price)
	}
	if data == nil {
		data = p.fromRealizedVol(ctx, venueName, asset, price)
	}
	if data == nil {
		fallback := p.fallbackATR(venueName, asset, price)
		data = &fallback
	}

	p.cache.Set(key, *data)
	return *data, nil
}

func (p *ATRProvider) fromCandles(ctx context.Context, venueName, asset string, price float64) (*ATRData, error) {
	if p.candles == nil {
		return nil, nil
	}
	candles, err := p.candles.Candles(ctx, venueName, asset, p.cfg.Period+5)
	if err != nil {
		return nil, nil //nolint:nilerr // a candle-fetch failure falls through to the next rung, not an error
	}
	atr, ok := WilderATR(candles, p.cfg.Period)
	if !ok {
		return nil, nil
	}
	refPrice := price
	if refPrice <= 0 && len(candles) > 0 {
		refPrice = candles[len(candles)-1].Close
	}
	return p.buildATRData(venueName, asset, atr, refPrice, SourceCandles, time.Now()), nil
}

func (p *ATRProvider) fromDB(ctx context.Context, venueName, asset string, price float64) *ATRData {
	if p.db == nil {
		return nil
	}
	atr, ok, err := p.db.ATR(ctx, venueName, asset)
	if err != nil || !ok {
		return nil
	}
	return p.buildATRData(venueName, asset, atr, price, SourceDB, time.Now())
}

func (p *ATRProvider) fromRealizedVol(ctx context.Context, venueName, asset string, price float64) *ATRData {
	if p.history == nil {
		return nil
	}
	prices, err := p.history.RecentPrices(ctx, venueName, asset, 24)
	if err != nil {
		return nil
	}
	pct, ok := RealizedVol(prices)
	if !ok {
		return nil
	}
	mult := p.multiplier(asset)
	refPrice := price
	if refPrice <= 0 {
		refPrice = 100000.0
	}
	return &ATRData{
		Asset:           asset,
		Venue:           venueName,
		ATR:             refPrice * pct / 100,
		ATRPct:          pct,
		Price:           refPrice,
		Multiplier:      mult,
		StopDistancePct: pct * mult,
		Timestamp:       time.Now(),
		Source:          SourceRealizedVol,
	}
}

func (p *ATRProvider) fallbackATR(venueName, asset string, price float64) ATRData {
	mult := p.multiplier(asset)
	pct := p.fallbackPct(asset)
	refPrice := price
	if refPrice <= 0 {
		refPrice = 100000.0
	}
	return ATRData{
		Asset:           asset,
		Venue:           venueName,
		ATR:             refPrice * pct / 100,
		ATRPct:          pct,
		Price:           refPrice,
		Multiplier:      mult,
		StopDistancePct: pct * mult,
		Timestamp:       time.Now(),
		Source:          SourceFallbackHardcoded,
	}
}

func (p *ATRProvider) buildATRData(venueName, asset string, atr, price float64, source string, ts time.Time) *ATRData {
	mult := p.multiplier(asset)
	var atrPct float64
	if price > 0 {
		atrPct = atr / price * 100
	}
	return &ATRData{
		Asset:           asset,
		Venue:           venueName,
		ATR:             atr,
		ATRPct:          atrPct,
		Price:           price,
		Multiplier:      mult,
		StopDistancePct: atrPct * mult,
		Timestamp:       ts,
		Source:          source,
	}
}

// ShouldBlockGate reports whether strict mode should block a consensus gate
// due to ATR data quality: only a hardcoded fallback blocks, and only when
// strict mode is on.
func (p *ATRProvider) ShouldBlockGate(data ATRData) (bool, string) {
	if !p.cfg.StrictMode {
		return false, ""
	}
	if data.Source == SourceFallbackHardcoded {
		return true, "strict mode: no fresh ATR for " + data.Asset + " on " + data.Venue
	}
	return false, ""
}

// ClearCache drops all cached ATR readings.
func (p *ATRProvider) ClearCache() {
	p.cache.Clear()
}

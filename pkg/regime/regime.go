// Package regime classifies the current market regime for an asset
// (trending, ranging, volatile, or unknown) from recent candles, and
// exposes per-regime adjustment multipliers for stop distance, Kelly
// fraction, and minimum confidence threshold. Constants are taken verbatim
// from the source system's REGIME_PARAMS table, which is authoritative over
// looser ranges elsewhere.
package regime

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"hivemind-decide/internal/ttlcache"
	"hivemind-decide/pkg/cost"
)

// Regime is a classified market state.
type Regime string

const (
	Trending Regime = "trending"
	Ranging  Regime = "ranging"
	Volatile Regime = "volatile"
	Unknown  Regime = "unknown"
)

// Params are the strategy adjustments associated with a regime.
type Params struct {
	StopMultiplier          float64
	KellyMultiplier         float64
	MinConfidenceAdjustment float64
	MaxPositionFraction     float64
	Description             string
}

// regimeParams holds the authoritative per-regime presets.
var regimeParams = map[Regime]Params{
	Trending: {StopMultiplier: 1.2, KellyMultiplier: 1.0, MinConfidenceAdjustment: 0.0, MaxPositionFraction: 1.0, Description: "trending: wider stops, full sizing"},
	Ranging:  {StopMultiplier: 0.8, KellyMultiplier: 0.75, MinConfidenceAdjustment: 0.05, MaxPositionFraction: 0.75, Description: "ranging: tighter stops, reduced sizing"},
	Volatile: {StopMultiplier: 1.5, KellyMultiplier: 0.5, MinConfidenceAdjustment: 0.10, MaxPositionFraction: 0.5, Description: "volatile: conservative sizing, wide stops"},
	Unknown:  {StopMultiplier: 1.0, KellyMultiplier: 0.5, MinConfidenceAdjustment: 0.05, MaxPositionFraction: 0.5, Description: "unknown: conservative defaults"},
}

// ParamsFor returns the preset for a regime, defaulting to Unknown's preset
// for an unrecognized value.
func ParamsFor(r Regime) Params {
	if p, ok := regimeParams[r]; ok {
		return p
	}
	return regimeParams[Unknown]
}

// Analysis is a complete regime classification for one (asset, exchange)
// pair.
type Analysis struct {
	Asset    string
	Exchange string
	Regime   Regime
	Params   Params
	Confidence float64

	MASpreadPct      *float64
	VolatilityRatio  *float64
	PriceRangePct    *float64

	Timestamp   time.Time
	CandlesUsed int
	Source      string // "full", "partial", "fallback"
}

// IsValid reports whether the analysis had enough data to be meaningful.
func (a Analysis) IsValid(minCandles int) bool {
	return a.CandlesUsed >= minCandles && a.Regime != Unknown
}

// Config carries the detection window, thresholds, and cache TTL, mirroring
// REGIME_LOOKBACK_MINUTES / REGIME_MA_SHORT / REGIME_MA_LONG /
// REGIME_TREND_THRESHOLD / REGIME_VOLATILITY_HIGH_MULT /
// REGIME_VOLATILITY_LOW_MULT / REGIME_CACHE_TTL_SECONDS / REGIME_MIN_CANDLES.
type Config struct {
	LookbackMinutes    int           `yaml:"lookback_minutes"`
	MAShort            int           `yaml:"ma_short"`
	MALong             int           `yaml:"ma_long"`
	TrendThreshold     float64       `yaml:"trend_threshold"`
	VolatilityHighMult float64       `yaml:"volatility_high_mult"`
	VolatilityLowMult  float64       `yaml:"volatility_low_mult"`
	CacheTTLRaw        string        `yaml:"cache_ttl"` // e.g. "60s"
	CacheTTL           time.Duration `yaml:"-"`
	MinCandles         int           `yaml:"min_candles"`
	DefaultExchange    string        `yaml:"default_exchange"`
}

func (c Config) withDefaults() Config {
	if c.LookbackMinutes <= 0 {
		c.LookbackMinutes = 60
	}
	if c.MAShort <= 0 {
		c.MAShort = 20
	}
	if c.MALong <= 0 {
		c.MALong = 50
	}
	if c.TrendThreshold <= 0 {
		c.TrendThreshold = 0.02
	}
	if c.VolatilityHighMult <= 0 {
		c.VolatilityHighMult = 1.5
	}
	if c.VolatilityLowMult <= 0 {
		c.VolatilityLowMult = 0.7
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 60 * time.Second
	}
	if c.MinCandles <= 0 {
		c.MinCandles = 50
	}
	if c.DefaultExchange == "" {
		c.DefaultExchange = "hyperliquid"
	}
	return c
}

// normalise parses CacheTTLRaw (set by YAML loading) into CacheTTL.
func (c *Config) normalise() error {
	if c.CacheTTLRaw == "" {
		return nil
	}
	d, err := time.ParseDuration(c.CacheTTLRaw)
	if err != nil {
		return fmt.Errorf("regime config: invalid cache_ttl %q: %w", c.CacheTTLRaw, err)
	}
	c.CacheTTL = d
	return nil
}

// Detector classifies market regime from recent candles, with a short-TTL
// cache keyed by (asset, exchange). Candle fetching is delegated to a
// cost.CandleSource so the same per-venue wiring feeds both ATR and regime
// detection.
type Detector struct {
	cfg     Config
	candles cost.CandleSource
	cache   *ttlcache.Cache[string, Analysis]
}

// NewDetector constructs a Detector.
func NewDetector(cfg Config, candles cost.CandleSource) *Detector {
	cfg = cfg.withDefaults()
	return &Detector{cfg: cfg, candles: candles, cache: ttlcache.New[string, Analysis](cfg.CacheTTL)}
}

func cacheKey(asset, exchangeName string) string {
	return strings.ToUpper(asset) + ":" + strings.ToLower(exchangeName)
}

// Detect classifies the current regime for an asset, using exchangeName if
// non-empty or the configured default exchange otherwise.
func (d *Detector) Detect(ctx context.Context, asset, exchangeName string) (Analysis, error) {
	target := strings.ToLower(exchangeName)
	if target == "" {
		target = d.cfg.DefaultExchange
	}

	key := cacheKey(asset, target)
	if cached, ok := d.cache.Get(key); ok {
		return cached, nil
	}

	count := d.cfg.MALong + 10
	if d.cfg.LookbackMinutes > count {
		count = d.cfg.LookbackMinutes
	}

	var candles []cost.Candle
	if d.candles != nil {
		fetched, err := d.candles.Candles(ctx, target, asset, count)
		if err == nil {
			candles = fetched
		}
	}

	if len(candles) < d.cfg.MinCandles {
		analysis := d.unknownAnalysis(asset, target, len(candles))
		d.cache.Set(key, analysis)
		return analysis, nil
	}

	sorted := make([]cost.Candle, len(candles))
	copy(sorted, candles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	maShort, okShort := calculateMA(sorted, d.cfg.MAShort)
	maLong, okLong := calculateMA(sorted, d.cfg.MALong)
	currentVol, okCurVol := calculateVolatility(sorted, 14)
	histLookback := d.cfg.MALong
	if len(sorted) < histLookback {
		histLookback = len(sorted)
	}
	historicalVol, okHistVol := calculateVolatility(sorted, histLookback)
	priceRange, okRange := calculatePriceRange(sorted, 20)
	currentPrice := sorted[len(sorted)-1].Close

	var maSpreadPct, volatilityRatio, priceRangePct *float64
	if okShort && okLong && maLong > 0 {
		v := (maShort - maLong) / maLong
		maSpreadPct = &v
	}
	if okCurVol && okHistVol && historicalVol > 0 {
		v := currentVol / historicalVol
		volatilityRatio = &v
	}
	if okRange && currentPrice > 0 {
		v := priceRange / currentPrice
		priceRangePct = &v
	}

	regimeKind, confidence := d.classify(maSpreadPct, volatilityRatio, priceRangePct)

	source := "partial"
	if len(sorted) >= d.cfg.MALong {
		source = "full"
	}

	analysis := Analysis{
		Asset: asset, Exchange: target, Regime: regimeKind, Params: ParamsFor(regimeKind),
		Confidence: confidence,
		MASpreadPct: maSpreadPct, VolatilityRatio: volatilityRatio, PriceRangePct: priceRangePct,
		Timestamp: time.Now(), CandlesUsed: len(sorted), Source: source,
	}
	d.cache.Set(key, analysis)
	return analysis, nil
}

func (d *Detector) unknownAnalysis(asset, exchangeName string, candlesUsed int) Analysis {
	return Analysis{
		Asset: asset, Exchange: exchangeName, Regime: Unknown, Params: ParamsFor(Unknown),
		Confidence: 0.0, Timestamp: time.Now(), CandlesUsed: candlesUsed, Source: "fallback",
	}
}

func (d *Detector) classify(maSpreadPct, volatilityRatio, priceRangePct *float64) (Regime, float64) {
	scores := map[Regime]float64{Trending: 0, Ranging: 0, Volatile: 0}

	if maSpreadPct != nil {
		absSpread := math.Abs(*maSpreadPct)
		switch {
		case absSpread > d.cfg.TrendThreshold:
			scores[Trending] += 0.4
		case absSpread < d.cfg.TrendThreshold*0.5:
			scores[Ranging] += 0.3
		}
	}

	if volatilityRatio != nil {
		switch {
		case *volatilityRatio > d.cfg.VolatilityHighMult:
			scores[Volatile] += 0.4
		case *volatilityRatio < d.cfg.VolatilityLowMult:
			scores[Ranging] += 0.2
			scores[Trending] += 0.1
		default:
			scores[Trending] += 0.15
			scores[Ranging] += 0.15
		}
	}

	if priceRangePct != nil {
		switch {
		case *priceRangePct > 0.03:
			scores[Trending] += 0.2
			scores[Volatile] += 0.2
		case *priceRangePct < 0.01:
			scores[Ranging] += 0.3
		}
	}

	if volatilityRatio != nil && *volatilityRatio > 2.0 {
		return Volatile, 0.9
	}

	maxRegime, maxScore := Trending, scores[Trending]
	for r, s := range scores {
		if s > maxScore {
			maxRegime, maxScore = r, s
		}
	}

	var total float64
	for _, s := range scores {
		total += s
	}
	if total == 0 {
		return Unknown, 0.0
	}

	confidence := maxScore / total
	if maxScore < 0.3 {
		return Unknown, confidence
	}
	if confidence > 0.95 {
		confidence = 0.95
	}
	return maxRegime, confidence
}

func calculateMA(candles []cost.Candle, period int) (float64, bool) {
	if len(candles) < period {
		return 0, false
	}
	window := candles[len(candles)-period:]
	var sum float64
	for _, c := range window {
		sum += c.Close
	}
	return sum / float64(period), true
}

func calculateVolatility(candles []cost.Candle, lookback int) (float64, bool) {
	if len(candles) < lookback+1 {
		return 0, false
	}
	recent := candles[len(candles)-lookback:]
	var trs []float64
	for i := 1; i < len(recent); i++ {
		curr, prev := recent[i], recent[i-1]
		tr := math.Max(curr.High-curr.Low, math.Max(math.Abs(curr.High-prev.Close), math.Abs(curr.Low-prev.Close)))
		if curr.Close > 0 {
			trs = append(trs, tr/curr.Close)
		}
	}
	if len(trs) < lookback/2 {
		return 0, false
	}
	var sum float64
	for _, tr := range trs {
		sum += tr
	}
	return sum / float64(len(trs)), true
}

func calculatePriceRange(candles []cost.Candle, lookback int) (float64, bool) {
	if len(candles) < lookback {
		return 0, false
	}
	recent := candles[len(candles)-lookback:]
	high, low := recent[0].High, recent[0].Low
	for _, c := range recent[1:] {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	return high - low, true
}

// AdjustedKelly scales a base Kelly fraction by the regime's multiplier.
func AdjustedKelly(baseKelly float64, r Regime) float64 {
	return baseKelly * ParamsFor(r).KellyMultiplier
}

// AdjustedStop scales a base stop distance percentage by the regime's
// multiplier.
func AdjustedStop(baseStopPct float64, r Regime) float64 {
	return baseStopPct * ParamsFor(r).StopMultiplier
}

// AdjustedConfidence raises a minimum confidence threshold by the regime's
// adjustment, capped at 0.95.
func AdjustedConfidence(minConfidence float64, r Regime) float64 {
	adjusted := minConfidence + ParamsFor(r).MinConfidenceAdjustment
	if adjusted > 0.95 {
		return 0.95
	}
	return adjusted
}

// ClearCache drops every cached analysis.
func (d *Detector) ClearCache() {
	d.cache.Clear()
}

// ClearCacheFor drops the cached analysis for one (asset, exchange) pair.
func (d *Detector) ClearCacheFor(asset, exchangeName string) {
	d.cache.Delete(cacheKey(asset, exchangeName))
}

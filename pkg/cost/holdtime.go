package cost

import (
	"context"
	"fmt"
	"sort"
	"time"

	"hivemind-decide/internal/ttlcache"
)

// EpisodeDurationSource returns recent realized position-hold durations for
// an asset on a venue, used to estimate the expected hold horizon for a new
// position. An empty slice (no error) means "no history yet" and falls
// through to the configured default.
type EpisodeDurationSource interface {
	RecentDurations(ctx context.Context, venueName, asset string) ([]time.Duration, error)
}

// HoldTimeProviderConfig carries the default horizon and the per-regime
// multiplier table (a volatile regime shortens the expected hold, a
// trending regime lengthens it).
type HoldTimeProviderConfig struct {
	CacheTTLRaw string        `yaml:"cache_ttl"` // e.g. "30s"
	CacheTTL    time.Duration `yaml:"-"`

	DefaultRaw string        `yaml:"default"` // e.g. "4h"
	Default    time.Duration `yaml:"-"`

	RegimeMultiplier map[string]float64 `yaml:"regime_multiplier"` // regime name -> multiplier, default 1.0
}

// normalise parses CacheTTLRaw/DefaultRaw (set by YAML loading) into their
// time.Duration counterparts.
func (c *HoldTimeProviderConfig) normalise() error {
	if c.CacheTTLRaw != "" {
		d, err := time.ParseDuration(c.CacheTTLRaw)
		if err != nil {
			return fmt.Errorf("hold time config: invalid cache_ttl %q: %w", c.CacheTTLRaw, err)
		}
		c.CacheTTL = d
	}
	if c.DefaultRaw != "" {
		d, err := time.ParseDuration(c.DefaultRaw)
		if err != nil {
			return fmt.Errorf("hold time config: invalid default %q: %w", c.DefaultRaw, err)
		}
		c.Default = d
	}
	return nil
}

// HoldTimeEstimate is the estimated hold horizon with its provenance.
type HoldTimeEstimate struct {
	Duration time.Duration
	Regime   string
	Source   string // "history" or "default"
}

// HoldTimeProvider estimates the expected hold duration for a new position
// from historical episode durations, median-based, regime-adjusted.
type HoldTimeProvider struct {
	cfg    HoldTimeProviderConfig
	cache  *ttlcache.Cache[ttlcache.VenueAsset, HoldTimeEstimate]
	source EpisodeDurationSource
}

// NewHoldTimeProvider constructs a HoldTimeProvider. source may be nil, in
// which case every estimate falls straight to the configured default.
func NewHoldTimeProvider(cfg HoldTimeProviderConfig, source EpisodeDurationSource) *HoldTimeProvider {
	if cfg.Default <= 0 {
		cfg.Default = 4 * time.Hour
	}
	return &HoldTimeProvider{cfg: cfg, cache: ttlcache.New[ttlcache.VenueAsset, HoldTimeEstimate](cfg.CacheTTL), source: source}
}

// Estimate returns the expected hold duration for (venue, asset), adjusted
// by the current regime.
func (p *HoldTimeProvider) Estimate(ctx context.Context, venueName, asset, regime string) (HoldTimeEstimate, error) {
	key := ttlcache.VenueAsset{Venue: venueName, Asset: asset}
	if cached, ok := p.cache.Get(key); ok && cached.Regime == regime {
		return cached, nil
	}

	base := p.cfg.Default
	src := "default"
	if p.source != nil {
		durations, err := p.source.RecentDurations(ctx, venueName, asset)
		if err != nil {
			return HoldTimeEstimate{}, err
		}
		if median, ok := medianDuration(durations); ok {
			base = median
			src = "history"
		}
	}

	mult := p.cfg.RegimeMultiplier[regime]
	if mult <= 0 {
		mult = 1.0
	}
	estimate := HoldTimeEstimate{
		Duration: time.Duration(float64(base) * mult),
		Regime:   regime,
		Source:   src,
	}
	p.cache.Set(key, estimate)
	return estimate, nil
}

func medianDuration(durations []time.Duration) (time.Duration, bool) {
	if len(durations) == 0 {
		return 0, false
	}
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], true
	}
	return (sorted[mid-1] + sorted[mid]) / 2, true
}

// ClearCache drops all cached hold-time estimates.
func (p *HoldTimeProvider) ClearCache() {
	p.cache.Clear()
}

// Package correlation provides decayed pairwise trader correlations to the
// consensus detector's effective-K calculation. The phi-correlation
// computation itself (building sign vectors from fills and computing
// pairwise phi coefficients) is owned by an external daily batch job per
// spec.md — this package only loads the precomputed `trader_corr` table and
// applies time-decay on read, mirroring CorrelationProvider.load/
// get_with_decay, not build_sign_vectors's producer side.
package correlation

import (
	"context"
	"math"
	"strings"
	"time"
)

// Config carries the decay/staleness knobs, verbatim defaults from
// correlation.py: DEFAULT_CORRELATION, NON_HL_DEFAULT_CORRELATION,
// CORR_MAX_STALENESS_DAYS, CORR_DECAY_HALFLIFE_DAYS.
type Config struct {
	DefaultCorrelation      float64 `yaml:"default_correlation"`        // default 0.3
	NonHLDefaultCorrelation float64 `yaml:"non_hl_default_correlation"` // default 0.5, conservative for non-HL venues
	MaxStalenessDays        int     `yaml:"max_staleness_days"`         // default 7
	DecayHalfLifeDays       float64 `yaml:"decay_half_life_days"`       // default 3.0
}

func (c Config) withDefaults() Config {
	if c.DefaultCorrelation == 0 {
		c.DefaultCorrelation = 0.3
	}
	if c.NonHLDefaultCorrelation == 0 {
		c.NonHLDefaultCorrelation = 0.5
	}
	if c.MaxStalenessDays == 0 {
		c.MaxStalenessDays = 7
	}
	if c.DecayHalfLifeDays == 0 {
		c.DecayHalfLifeDays = 3.0
	}
	return c
}

// PairKey is the canonical (sorted, lowercased) lookup key for an unordered
// address pair.
type PairKey struct {
	AddrA string
	AddrB string
}

// NewPairKey normalizes two addresses into their canonical sorted-pair key.
func NewPairKey(addrA, addrB string) PairKey {
	a := strings.ToLower(addrA)
	b := strings.ToLower(addrB)
	if a > b {
		a, b = b, a
	}
	return PairKey{AddrA: a, AddrB: b}
}

// Loader loads stored correlations as of a given date (zero time.Time means
// "latest"). Implemented by internal/repo's trader_corr accessor.
type Loader interface {
	LoadCorrelations(ctx context.Context, asOf time.Time) (map[PairKey]float64, error)
}

// DetectorReceiver is the narrow slice of pkg/consensus.Detector that
// hydration needs, so correlation does not import consensus.
type DetectorReceiver interface {
	UpdateCorrelation(addrA, addrB string, rho float64)
}

// Provider loads and decays pairwise correlations for the consensus
// detector's effective-K calculation. It never computes correlations
// itself.
type Provider struct {
	cfg          Config
	loader       Loader
	correlations map[PairKey]float64
	loadedDate   time.Time
	hasLoaded    bool
	defaultUsed  int
}

// NewProvider constructs a Provider. loader may be nil in tests; Load then
// always returns zero pairs.
func NewProvider(cfg Config, loader Loader) *Provider {
	return &Provider{cfg: cfg.withDefaults(), loader: loader, correlations: map[PairKey]float64{}}
}

// AgeDays returns how many days old the loaded snapshot is, or a very large
// sentinel if nothing has been loaded yet.
func (p *Provider) AgeDays() int {
	if !p.hasLoaded {
		return math.MaxInt32
	}
	return int(time.Since(p.loadedDate).Hours() / 24)
}

// IsStale reports whether the loaded snapshot exceeds MaxStalenessDays.
func (p *Provider) IsStale() bool {
	if !p.hasLoaded {
		return true
	}
	return p.AgeDays() > p.cfg.MaxStalenessDays
}

// decayFactor implements exponential decay: 2^(-age/halflife). Age 0 -> 1.0
// (no decay), age == halflife -> 0.5, age >> halflife -> ~0.
func (p *Provider) decayFactor() float64 {
	if !p.hasLoaded {
		return 0.0
	}
	age := p.AgeDays()
	if age <= 0 {
		return 1.0
	}
	return math.Pow(2, -float64(age)/p.cfg.DecayHalfLifeDays)
}

// Load reads the correlation snapshot as of the given date (zero value for
// "latest") into memory. Returns the number of pairs loaded.
func (p *Provider) Load(ctx context.Context, asOf time.Time) (int, error) {
	if p.loader == nil {
		return 0, nil
	}
	correlations, err := p.loader.LoadCorrelations(ctx, asOf)
	if err != nil {
		return 0, err
	}
	p.correlations = correlations
	if asOf.IsZero() {
		p.loadedDate = time.Now()
	} else {
		p.loadedDate = asOf
	}
	p.hasLoaded = true
	p.defaultUsed = 0
	return len(p.correlations), nil
}

// Get returns the raw stored correlation for a pair, with no decay applied.
func (p *Provider) Get(addrA, addrB string) (float64, bool) {
	rho, ok := p.correlations[NewPairKey(addrA, addrB)]
	return rho, ok
}

func (p *Provider) defaultFor(targetExchange string) float64 {
	if strings.ToLower(targetExchange) == "hyperliquid" {
		return p.cfg.DefaultCorrelation
	}
	return p.cfg.NonHLDefaultCorrelation
}

// GetWithDecay returns a correlation blended toward the exchange-aware
// default based on data age: fresh data uses the stored value unmodified,
// fully-decayed data returns the default, and partial decay linearly blends
// the two. Always returns a usable value, never a miss.
func (p *Provider) GetWithDecay(addrA, addrB, targetExchange string) float64 {
	defaultRho := p.defaultFor(targetExchange)

	raw, ok := p.Get(addrA, addrB)
	if !ok {
		p.defaultUsed++
		return defaultRho
	}

	decay := p.decayFactor()
	if decay >= 0.99 {
		return raw
	}
	return raw*decay + defaultRho*(1-decay)
}

// DefaultUsedCount returns how many GetWithDecay calls fell back to the
// default correlation since the last Load.
func (p *Provider) DefaultUsedCount() int {
	return p.defaultUsed
}

// CheckFreshness reports whether the loaded snapshot is fresh and a
// human-readable status message for logging.
func (p *Provider) CheckFreshness() (bool, string) {
	if !p.hasLoaded {
		return false, "no correlation data loaded"
	}
	if p.IsStale() {
		return false, "correlations stale"
	}
	return true, "correlations fresh"
}

// HydrateDetector pushes every loaded (and optionally decayed) correlation
// into a consensus detector. Returns the number of pairs pushed.
func (p *Provider) HydrateDetector(detector DetectorReceiver, applyDecay bool, targetExchange string) int {
	decay := 1.0
	if applyDecay {
		decay = p.decayFactor()
	}
	defaultRho := p.defaultFor(targetExchange)

	count := 0
	for key, rho := range p.correlations {
		value := rho
		if applyDecay && decay < 0.99 {
			value = rho*decay + defaultRho*(1-decay)
		}
		detector.UpdateCorrelation(key.AddrA, key.AddrB, value)
		count++
	}
	return count
}

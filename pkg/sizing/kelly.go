// Package sizing implements fractional Kelly position sizing: the optimal
// bet fraction scaled down for edge-estimate uncertainty and capped by hard
// equity limits, plus a consensus variant that aggregates several traders'
// individual Kelly sizes into one position.
package sizing

import (
	"context"
	"fmt"
	"sort"
)

const (
	MethodKelly                  = "kelly"
	MethodConsensusKelly          = "kelly_consensus"
	MethodFallbackInsufficientData = "fallback_insufficient_data"
	MethodFallbackNegativeEV      = "fallback_negative_ev"
	MethodFallbackNoKellyTraders  = "fallback_no_kelly_traders"
	MethodError                   = "error"
)

// Config carries the Kelly sizing knobs, verbatim defaults from kelly.py's
// KELLY_* constants.
type Config struct {
	Fraction       float64 `yaml:"fraction"`         // fractional Kelly multiplier, default 0.25
	MinEpisodes    int     `yaml:"min_episodes"`     // default 30
	FallbackPct    float64 `yaml:"fallback_pct"`     // default 0.01
	MaxFraction    float64 `yaml:"max_fraction"`     // hard cap on fractional Kelly, default 0.50
	MaxPositionPct float64 `yaml:"max_position_pct"` // hard cap on position size as % of equity, default 0.10
}

func (c Config) withDefaults() Config {
	if c.Fraction == 0 {
		c.Fraction = 0.25
	}
	if c.MinEpisodes == 0 {
		c.MinEpisodes = 30
	}
	if c.FallbackPct == 0 {
		c.FallbackPct = 0.01
	}
	if c.MaxFraction == 0 {
		c.MaxFraction = 0.50
	}
	if c.MaxPositionPct == 0 {
		c.MaxPositionPct = 0.10
	}
	return c
}

// Input is the per-trader (or consensus) statistics feeding one Kelly
// calculation.
type Input struct {
	WinRate         float64
	AvgWinR         float64
	AvgLossR        float64 // always stored positive
	EpisodeCount    int
	AccountValue    float64
	CurrentPrice    float64
	StopDistancePct float64
	RoundTripFeePct float64
}

// Result is the outcome of one Kelly sizing calculation.
type Result struct {
	FullKelly        float64
	FractionalKelly  float64
	PositionPct      float64
	PositionSizeUSD  float64
	PositionSizeCoin float64
	Method           string
	Reasoning        string
	Capped           bool
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// KellyFraction computes the full (unscaled) Kelly fraction f* = p - (1-p)/R
// where R = avg_win/avg_loss, clamped to [0, 1]. Returns 0 for an invalid
// win rate or non-positive avg_loss_r.
func KellyFraction(winRate, avgWinR, avgLossR float64) float64 {
	if winRate < 0 || winRate > 1 {
		return 0
	}
	avgLossR = abs(avgLossR)
	if avgLossR <= 0 {
		return 0
	}
	r := avgWinR / avgLossR
	kelly := winRate - (1-winRate)/r
	return clamp(kelly, 0, 1)
}

// ExpectedValue computes fee-adjusted expected value per trade in
// R-multiples: (p*avg_win) - ((1-p)*avg_loss) - fee_cost_r.
func ExpectedValue(winRate, avgWinR, avgLossR, feeCostR float64) float64 {
	avgLossR = abs(avgLossR)
	raw := winRate*avgWinR - (1-winRate)*avgLossR
	return raw - feeCostR
}

// PositionSize runs the full fractional-Kelly sizing procedure: insufficient
// data and negative-EV fallbacks, fee-to-R conversion, full Kelly, the
// regime multiplier applied before the hard fraction cap (regimeKellyMult
// multiplies before capping at MaxFraction — capping first would let a
// regime multiplier above 1.0 silently defeat the cap), conversion to
// position percentage via the stop distance, and the hard position cap.
// regimeKellyMult should be 1.0 when no regime adjustment applies.
func PositionSize(input Input, cfg Config, regimeKellyMult float64) Result {
	cfg = cfg.withDefaults()
	if regimeKellyMult <= 0 {
		regimeKellyMult = 1.0
	}

	if input.CurrentPrice <= 0 {
		return Result{Method: MethodError, Reasoning: "invalid price (<=0)"}
	}

	if input.EpisodeCount < cfg.MinEpisodes {
		positionPct := cfg.FallbackPct
		sizeUSD := input.AccountValue * positionPct
		return Result{
			PositionPct: positionPct, PositionSizeUSD: sizeUSD,
			PositionSizeCoin: sizeUSD / input.CurrentPrice,
			Method:           MethodFallbackInsufficientData,
			Reasoning:        fmt.Sprintf("only %d episodes, need %d", input.EpisodeCount, cfg.MinEpisodes),
		}
	}

	feeCostR := 0.0
	if input.StopDistancePct > 0 && input.RoundTripFeePct > 0 {
		feeCostR = input.RoundTripFeePct / input.StopDistancePct
	}

	ev := ExpectedValue(input.WinRate, input.AvgWinR, input.AvgLossR, feeCostR)
	if ev <= 0 {
		positionPct := cfg.FallbackPct * 0.5
		sizeUSD := input.AccountValue * positionPct
		feeMsg := ""
		if feeCostR > 0 {
			feeMsg = fmt.Sprintf(" (incl %.3fR fees)", feeCostR)
		}
		return Result{
			PositionPct: positionPct, PositionSizeUSD: sizeUSD,
			PositionSizeCoin: sizeUSD / input.CurrentPrice,
			Method:           MethodFallbackNegativeEV,
			Reasoning:        fmt.Sprintf("negative EV: %.3fR per trade%s", ev, feeMsg),
		}
	}

	fullKelly := KellyFraction(input.WinRate, input.AvgWinR, input.AvgLossR)
	fractionalKelly := fullKelly * cfg.Fraction * regimeKellyMult
	fractionalKelly = clamp(fractionalKelly, 0, cfg.MaxFraction)

	var positionPct float64
	if input.StopDistancePct > 0 {
		positionPct = fractionalKelly / input.StopDistancePct
	} else {
		positionPct = fractionalKelly
	}

	capped := positionPct > cfg.MaxPositionPct
	positionPct = clamp(positionPct, 0, cfg.MaxPositionPct)

	sizeUSD := input.AccountValue * positionPct
	sizeCoin := sizeUSD / input.CurrentPrice

	feeMsg := ""
	if feeCostR > 0 {
		feeMsg = fmt.Sprintf(", fees=%.2fR", feeCostR)
	}
	reasoning := fmt.Sprintf("kelly=%.1f%%, fractional=%.1f%%, ev=%.3fR, win=%.1f%%%s",
		fullKelly*100, fractionalKelly*100, ev, input.WinRate*100, feeMsg)

	return Result{
		FullKelly: fullKelly, FractionalKelly: fractionalKelly,
		PositionPct: positionPct, PositionSizeUSD: sizeUSD, PositionSizeCoin: sizeCoin,
		Method: MethodKelly, Reasoning: reasoning, Capped: capped,
	}
}

// TraderPerformance is the subset of a trader's recorded statistics needed
// to build a Kelly Input.
type TraderPerformance struct {
	Address      string
	EpisodeCount int
	WinRate      float64
	AvgWinR      float64
	AvgLossR     float64
}

// TraderPerformanceSource supplies recorded per-trader statistics.
// Implemented by internal/repo's trader_performance accessor.
type TraderPerformanceSource interface {
	TraderPerformance(ctx context.Context, address string) (TraderPerformance, bool, error)
}

// ConsensusPositionSize computes a Kelly size for a consensus signal by
// sizing each agreeing trader independently and taking the position-percent
// median across those with enough episodes to qualify, matching
// get_consensus_kelly_size's sort-then-middle-index selection (not an
// average of the two middle values when the count is even — the result
// carries a whole trader's reasoning, which cannot be meaningfully
// averaged). Falls back to FallbackPct when no trader qualifies.
func ConsensusPositionSize(ctx context.Context, source TraderPerformanceSource, addresses []string, accountValue, currentPrice, stopDistancePct float64, cfg Config, regimeKellyMult, roundTripFeePct float64) (Result, error) {
	cfg = cfg.withDefaults()

	var qualifying []Result
	for _, addr := range addresses {
		perf, ok, err := source.TraderPerformance(ctx, addr)
		if err != nil {
			return Result{}, err
		}
		if !ok || perf.EpisodeCount < cfg.MinEpisodes {
			continue
		}

		result := PositionSize(Input{
			WinRate: perf.WinRate, AvgWinR: perf.AvgWinR, AvgLossR: perf.AvgLossR,
			EpisodeCount: perf.EpisodeCount, AccountValue: accountValue, CurrentPrice: currentPrice,
			StopDistancePct: stopDistancePct, RoundTripFeePct: roundTripFeePct,
		}, cfg, regimeKellyMult)

		if result.Method == MethodKelly {
			qualifying = append(qualifying, result)
		}
	}

	if len(qualifying) == 0 {
		positionPct := cfg.FallbackPct
		sizeUSD := accountValue * positionPct
		sizeCoin := 0.0
		if currentPrice > 0 {
			sizeCoin = sizeUSD / currentPrice
		}
		return Result{
			PositionPct: positionPct, PositionSizeUSD: sizeUSD, PositionSizeCoin: sizeCoin,
			Method:    MethodFallbackNoKellyTraders,
			Reasoning: fmt.Sprintf("no traders with %d+ episodes", cfg.MinEpisodes),
		}, nil
	}

	sort.Slice(qualifying, func(i, j int) bool { return qualifying[i].PositionPct < qualifying[j].PositionPct })
	median := qualifying[len(qualifying)/2]

	return Result{
		FullKelly: median.FullKelly, FractionalKelly: median.FractionalKelly,
		PositionPct: median.PositionPct, PositionSizeUSD: median.PositionSizeUSD, PositionSizeCoin: median.PositionSizeCoin,
		Method:    MethodConsensusKelly,
		Reasoning: fmt.Sprintf("median of %d traders: %s", len(qualifying), median.Reasoning),
		Capped:    median.Capped,
	}, nil
}

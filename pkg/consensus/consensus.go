// Package consensus detects statistically defensible directional agreement
// among a tracked set of traders and turns it into a cost-gated trading
// signal. It runs a fixed sequence of gates per asset — supermajority,
// correlation-adjusted effective-K, latency/price-band, and per-venue
// expected value — short-circuiting on the first failure so every check
// records exactly what was computed before the signal died.
package consensus

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"

	"hivemind-decide/pkg/correlation"
)

// Fill is a single trade execution reported for a tracked trader.
type Fill struct {
	FillID  string
	Address string
	Asset   string
	Side    string // "long", "short", "buy", or "sell"
	Size    float64
	Price   float64
	Ts      time.Time
}

func isLongSide(side string) bool {
	s := strings.ToLower(side)
	return s == "long" || s == "buy"
}

// SignedSize is positive for buys/longs, negative for sells/shorts.
func (f Fill) SignedSize() float64 {
	if isLongSide(f.Side) {
		return f.Size
	}
	return -f.Size
}

// Direction infers "long" or "short" from Side.
func (f Fill) Direction() string {
	if isLongSide(f.Side) {
		return "long"
	}
	return "short"
}

// Vote is a single trader's collapsed contribution to a consensus window —
// one trader contributes at most one vote.
type Vote struct {
	Address   string
	Direction string
	Weight    float64
	Price     float64
	Ts        time.Time
}

// Window is a sliding per-asset buffer of fills awaiting a consensus check.
type Window struct {
	Asset         string
	Start         time.Time
	WindowSeconds int
	Fills         []Fill
}

// IsExpired reports whether the window has outlived its configured duration.
func (w *Window) IsExpired() bool {
	return time.Since(w.Start) > time.Duration(w.WindowSeconds)*time.Second
}

// VenueCost is one venue's cost breakdown and resulting EV in a per-venue
// comparison.
type VenueCost struct {
	Venue       string
	FeesBps     float64
	SlippageBps float64
	FundingBps  float64
	TotalBps    float64
	GrossEVR    float64
	CostEVR     float64
	NetEVR      float64
	Err         error
}

// Signal is a fully-gated consensus decision ready for the executor.
type Signal struct {
	ID         string
	Symbol     string
	Direction  string
	EntryPrice float64
	StopPrice  float64

	NTraders   int
	NAgreeing  int
	EffK       float64
	Dispersion float64

	PWin     float64
	EVGrossR float64
	EVCostR  float64
	EVNetR   float64

	TargetVenue string
	VenueCosts  []VenueCost

	LatencyMS        int64
	MedianVoterPrice float64
	MidDeltaBps      float64

	CreatedAt        time.Time
	TriggerAddresses []string
}

// GateResult records one gate's evaluation for the decision log, whether it
// passed or short-circuited the check.
type GateResult struct {
	Name      string
	Passed    bool
	Value     float64
	Threshold float64
	Detail    string
}

// CheckOutcome is the result of one check_consensus evaluation: a signal when
// every gate passed, otherwise the gates computed before the first failure.
type CheckOutcome struct {
	Symbol    string
	Signal    *Signal
	Gates     []GateResult
	Reasoning string
}

// StopFractionSource supplies the ATR/regime-derived stop distance (as a
// fraction of price) for a venue+asset. Implemented by whatever wires the
// ATR provider and regime detector together (internal/svc) — consensus
// stays decoupled from pkg/cost and pkg/regime's concrete types.
type StopFractionSource interface {
	StopFraction(ctx context.Context, venueName, asset string, price float64) (fraction float64, source string, err error)
}

// VenueCostSource supplies the fees/slippage/funding bps for one venue, for
// a hypothetical order of the given size and direction. Implemented by
// whatever wires pkg/cost's fee/slippage/funding providers per venue.
type VenueCostSource interface {
	CostBps(ctx context.Context, venueName, asset string, isBuy bool, holdHours, orderSizeUSD float64) (feesBps, slippageBps, fundingBps float64, err error)
}

// Config carries the consensus thresholds, verbatim defaults from
// consensus.py's module-level CONSENSUS_* constants.
type Config struct {
	MinTraders         int      `yaml:"min_traders"`
	MinAgreeing        int      `yaml:"min_agreeing"`
	MinPct             float64  `yaml:"min_pct"`
	MinEffectiveK      float64  `yaml:"min_effective_k"`
	BaseWindowSeconds  int      `yaml:"base_window_seconds"`
	MaxStalenessFactor float64  `yaml:"max_staleness_factor"`
	MaxPriceBandBps    float64  `yaml:"max_price_band_bps"`
	EVMinR             float64  `yaml:"ev_min_r"`
	Symbols            []string `yaml:"symbols"`

	DefaultCorrelation float64 `yaml:"default_correlation"`
	WeightCap          float64 `yaml:"weight_cap"`

	AvgWinR  float64 `yaml:"avg_win_r"`
	AvgLossR float64 `yaml:"avg_loss_r"`

	NominalOrderSizeUSD float64 `yaml:"nominal_order_size_usd"`
	DefaultHoldHours    float64 `yaml:"default_hold_hours"`
	DefaultStopFraction float64 `yaml:"default_stop_fraction"`

	Venues []string `yaml:"venues"`
}

func (c Config) withDefaults() Config {
	if c.MinTraders == 0 {
		c.MinTraders = 3
	}
	if c.MinAgreeing == 0 {
		c.MinAgreeing = 3
	}
	if c.MinPct == 0 {
		c.MinPct = 0.70
	}
	if c.MinEffectiveK == 0 {
		c.MinEffectiveK = 2.0
	}
	if c.BaseWindowSeconds == 0 {
		c.BaseWindowSeconds = 120
	}
	if c.MaxStalenessFactor == 0 {
		c.MaxStalenessFactor = 1.25
	}
	if c.MaxPriceBandBps == 0 {
		c.MaxPriceBandBps = 8.0
	}
	if c.EVMinR == 0 {
		c.EVMinR = 0.20
	}
	if len(c.Symbols) == 0 {
		c.Symbols = []string{"BTC", "ETH"}
	}
	if c.DefaultCorrelation == 0 {
		c.DefaultCorrelation = 0.3
	}
	if c.WeightCap == 0 {
		c.WeightCap = 1.0
	}
	if c.AvgWinR == 0 {
		c.AvgWinR = 0.5
	}
	if c.AvgLossR == 0 {
		c.AvgLossR = 0.3
	}
	if c.NominalOrderSizeUSD == 0 {
		c.NominalOrderSizeUSD = 10000
	}
	if c.DefaultHoldHours == 0 {
		c.DefaultHoldHours = 4
	}
	if c.DefaultStopFraction == 0 {
		c.DefaultStopFraction = 0.01
	}
	if len(c.Venues) == 0 {
		c.Venues = []string{"hyperliquid"}
	}
	return c
}

func symbolTracked(symbols []string, asset string) bool {
	for _, s := range symbols {
		if s == asset {
			return true
		}
	}
	return false
}

// Detector tracks per-asset consensus windows, a pairwise correlation
// matrix, and the last known mid price per asset.
type Detector struct {
	mu sync.Mutex

	cfg Config

	windows      map[string]*Window
	correlations map[correlation.PairKey]float64
	prices       map[string]float64

	stopSource StopFractionSource
	costSource VenueCostSource
}

// NewDetector constructs a Detector. stopSource/costSource may be nil; the
// gates then fall back to Config.DefaultStopFraction and zero-cost venues
// respectively (useful in tests and before internal/svc wiring exists).
func NewDetector(cfg Config, stopSource StopFractionSource, costSource VenueCostSource) *Detector {
	return &Detector{
		cfg:          cfg.withDefaults(),
		windows:      map[string]*Window{},
		correlations: map[correlation.PairKey]float64{},
		prices:       map[string]float64{},
		stopSource:   stopSource,
		costSource:   costSource,
	}
}

// SetCurrentPrice updates the cached mid price for an asset.
func (d *Detector) SetCurrentPrice(asset string, price float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prices[asset] = price
}

// CurrentMid returns the cached mid price for an asset, or 0 if unknown.
func (d *Detector) CurrentMid(asset string) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prices[asset]
}

// UpdateCorrelation sets the pairwise correlation for two trader addresses,
// clipped to [0,1]. Satisfies pkg/correlation.DetectorReceiver.
func (d *Detector) UpdateCorrelation(addrA, addrB string, rho float64) {
	if rho < 0 {
		rho = 0
	}
	if rho > 1 {
		rho = 1
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.correlations[correlation.NewPairKey(addrA, addrB)] = rho
}

// ProcessFill appends a fill to its asset's window (opening a fresh one if
// expired or absent), updates the cached mid, and runs check_consensus. A
// panic anywhere in the gate sequence for this symbol is recovered and
// reported as an error rather than taking down the fill-processing loop —
// one bad window never stops every other symbol from being evaluated.
func (d *Detector) ProcessFill(ctx context.Context, fill Fill, atrPercentile float64) (outcome *CheckOutcome, err error) {
	if !symbolTracked(d.cfg.Symbols, fill.Asset) {
		return nil, nil
	}

	defer func() {
		if r := recover(); r != nil {
			logx.WithContext(ctx).Errorf("consensus: recovered panic evaluating %s: %v", fill.Asset, r)
			outcome, err = nil, fmt.Errorf("consensus: panic evaluating %s: %v", fill.Asset, r)
		}
	}()

	windowSeconds := adaptiveWindowSeconds(atrPercentile, d.cfg.BaseWindowSeconds)

	d.mu.Lock()
	window := d.windows[fill.Asset]
	if window == nil || window.IsExpired() {
		window = &Window{Asset: fill.Asset, Start: time.Now(), WindowSeconds: windowSeconds}
		d.windows[fill.Asset] = window
	}
	window.Fills = append(window.Fills, fill)
	d.prices[fill.Asset] = fill.Price
	d.mu.Unlock()

	return d.CheckConsensus(ctx, fill.Asset)
}

// CheckConsensus runs the fixed 9-step gate sequence for an asset's current
// window. Returns nil if there is no window or it holds no fills.
func (d *Detector) CheckConsensus(ctx context.Context, symbol string) (*CheckOutcome, error) {
	d.mu.Lock()
	window := d.windows[symbol]
	d.mu.Unlock()
	if window == nil || len(window.Fills) == 0 {
		return nil, nil
	}

	outcome := &CheckOutcome{Symbol: symbol}

	// Step 1: collapse to one vote per trader.
	votes := collapseToVotes(window.Fills, d.cfg.WeightCap)

	minTradersPassed := len(votes) >= d.cfg.MinTraders
	outcome.Gates = append(outcome.Gates, GateResult{
		Name: "min_traders", Passed: minTradersPassed,
		Value: float64(len(votes)), Threshold: float64(d.cfg.MinTraders),
	})
	if !minTradersPassed {
		outcome.Reasoning = Reasoning(outcome.Gates)
		return outcome, nil
	}

	// Step 2: supermajority gate.
	directions := make([]string, len(votes))
	for i, v := range votes {
		directions[i] = v.Direction
	}
	passes, majorityDir, majorityPct := passesConsensusGates(directions, d.cfg.MinAgreeing, d.cfg.MinPct)
	outcome.Gates = append(outcome.Gates, GateResult{
		Name: "supermajority", Passed: passes,
		Value: majorityPct, Threshold: d.cfg.MinPct,
		Detail: fmt.Sprintf("direction=%s", majorityDir),
	})
	if !passes {
		outcome.Reasoning = Reasoning(outcome.Gates)
		return outcome, nil
	}

	// Step 3: correlation-adjusted effective-K.
	var agreeing []Vote
	var addresses []string
	weights := map[string]float64{}
	for _, v := range votes {
		if v.Direction == majorityDir {
			agreeing = append(agreeing, v)
			addresses = append(addresses, v.Address)
			weights[v.Address] = v.Weight
		}
	}
	effK := d.effKFromCorr(weights)
	effKPassed := effK >= d.cfg.MinEffectiveK
	outcome.Gates = append(outcome.Gates, GateResult{
		Name: "effective_k", Passed: effKPassed,
		Value: effK, Threshold: d.cfg.MinEffectiveK,
	})
	if !effKPassed {
		outcome.Reasoning = Reasoning(outcome.Gates)
		return outcome, nil
	}

	// Step 4: latency + price-band gates.
	mid := d.CurrentMid(symbol)
	medianEntry := median(pricesOf(agreeing))

	oldestTs := agreeing[0].Ts
	for _, v := range agreeing {
		if v.Ts.Before(oldestTs) {
			oldestTs = v.Ts
		}
	}
	stalenessS := time.Since(oldestTs).Seconds()
	maxStaleness := float64(window.WindowSeconds) * d.cfg.MaxStalenessFactor
	latencyPassed := stalenessS <= maxStaleness
	outcome.Gates = append(outcome.Gates, GateResult{
		Name: "latency", Passed: latencyPassed,
		Value: stalenessS, Threshold: maxStaleness,
	})
	if !latencyPassed {
		outcome.Reasoning = Reasoning(outcome.Gates)
		return outcome, nil
	}

	bandPassed := medianEntry > 0 && mid > 0
	bandBps := 0.0
	if bandPassed {
		bandBps = math.Abs(mid-medianEntry) / medianEntry * 10000
		bandPassed = bandBps <= d.cfg.MaxPriceBandBps
	}
	outcome.Gates = append(outcome.Gates, GateResult{
		Name: "price_band", Passed: bandPassed,
		Value: bandBps, Threshold: d.cfg.MaxPriceBandBps,
	})
	if !bandPassed {
		outcome.Reasoning = Reasoning(outcome.Gates)
		return outcome, nil
	}

	// Step 5: stop price.
	stopFraction, stopSrc := d.stopFractionFor(ctx, symbol, medianEntry)
	var stopPrice float64
	isBuy := majorityDir == "long"
	if isBuy {
		stopPrice = medianEntry * (1 - stopFraction)
	} else {
		stopPrice = medianEntry * (1 + stopFraction)
	}

	// Step 6: calibrated p-win.
	pWin := calibratedPWin(agreeing, effK)

	// Step 7: per-venue EV comparison.
	venueCosts := d.venueEVComparison(ctx, symbol, isBuy, pWin, medianEntry, stopPrice)
	best := bestVenue(venueCosts)

	// Step 8: EV gate.
	evPassed := best.NetEVR >= d.cfg.EVMinR
	outcome.Gates = append(outcome.Gates, GateResult{
		Name: "ev", Passed: evPassed,
		Value: best.NetEVR, Threshold: d.cfg.EVMinR,
		Detail: fmt.Sprintf("venue=%s stop_source=%s", best.Venue, stopSrc),
	})
	if !evPassed {
		outcome.Reasoning = Reasoning(outcome.Gates)
		return outcome, nil
	}

	// Step 9: emit signal, clear window.
	now := time.Now()
	dispersion := calculateDispersion(votes, majorityDir)

	signal := &Signal{
		ID:               uuid.NewString(),
		Symbol:           symbol,
		Direction:        majorityDir,
		EntryPrice:       medianEntry,
		StopPrice:        stopPrice,
		NTraders:         len(votes),
		NAgreeing:        len(agreeing),
		EffK:             effK,
		Dispersion:       dispersion,
		PWin:             pWin,
		EVGrossR:         best.GrossEVR,
		EVCostR:          best.CostEVR,
		EVNetR:           best.NetEVR,
		TargetVenue:      best.Venue,
		VenueCosts:       venueCosts,
		LatencyMS:        int64(time.Since(oldestTs) / time.Millisecond),
		MedianVoterPrice: medianEntry,
		MidDeltaBps:      bandBps,
		CreatedAt:        now,
		TriggerAddresses: addresses,
	}
	outcome.Signal = signal

	d.mu.Lock()
	delete(d.windows, symbol)
	d.mu.Unlock()

	return outcome, nil
}

func pricesOf(votes []Vote) []float64 {
	out := make([]float64, len(votes))
	for i, v := range votes {
		out[i] = v.Price
	}
	return out
}

// collapseToVotes groups fills by trader address (case-insensitive), sums
// signed sizes, and drops traders whose net position change is ~zero.
func collapseToVotes(fills []Fill, weightCap float64) []Vote {
	byTrader := map[string][]Fill{}
	order := []string{}
	for _, f := range fills {
		addr := strings.ToLower(f.Address)
		if _, ok := byTrader[addr]; !ok {
			order = append(order, addr)
		}
		byTrader[addr] = append(byTrader[addr], f)
	}

	var votes []Vote
	for _, addr := range order {
		traderFills := byTrader[addr]
		var netDelta float64
		for _, f := range traderFills {
			netDelta += f.SignedSize()
		}
		if math.Abs(netDelta) < 1e-9 {
			continue
		}

		direction := "short"
		if netDelta > 0 {
			direction = "long"
		}
		weight := math.Min(math.Abs(netDelta)/weightCap, 1.0)

		var totalSize, weightedPrice float64
		for _, f := range traderFills {
			totalSize += math.Abs(f.Size)
			weightedPrice += f.Price * math.Abs(f.Size)
		}
		avgPrice := traderFills[len(traderFills)-1].Price
		if totalSize > 0 {
			avgPrice = weightedPrice / totalSize
		}

		latestTs := traderFills[0].Ts
		for _, f := range traderFills {
			if f.Ts.After(latestTs) {
				latestTs = f.Ts
			}
		}

		votes = append(votes, Vote{Address: addr, Direction: direction, Weight: weight, Price: avgPrice, Ts: latestTs})
	}
	return votes
}

// effKFromCorr computes effK = (Σwᵢ)² / ΣᵢΣⱼ wᵢwⱼρᵢⱼ over the agreeing
// subset; ρ for i==j is 1, for pairs is the stored correlation (default
// DefaultCorrelation when missing), clipped to [0,1].
func (d *Detector) effKFromCorr(weights map[string]float64) float64 {
	addrs := make([]string, 0, len(weights))
	for a := range weights {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	if len(addrs) <= 1 {
		return float64(len(addrs))
	}

	var sumW float64
	for _, w := range weights {
		sumW += w
	}
	num := sumW * sumW

	d.mu.Lock()
	defer d.mu.Unlock()

	var den float64
	for _, a := range addrs {
		for _, b := range addrs {
			var rho float64
			if a == b {
				rho = 1.0
			} else {
				rho = d.cfg.DefaultCorrelation
				if v, ok := d.correlations[correlation.NewPairKey(a, b)]; ok {
					rho = v
				}
				if rho < 0 {
					rho = 0
				}
				if rho > 1 {
					rho = 1
				}
			}
			den += weights[a] * weights[b] * rho
		}
	}
	return num / math.Max(den, 1e-9)
}

func (d *Detector) stopFractionFor(ctx context.Context, asset string, price float64) (float64, string) {
	if d.stopSource == nil {
		return d.cfg.DefaultStopFraction, "fallback_default"
	}
	fraction, source, err := d.stopSource.StopFraction(ctx, d.cfg.Venues[0], asset, price)
	if err != nil || fraction <= 0 {
		return d.cfg.DefaultStopFraction, "fallback_default"
	}
	return fraction, source
}

func (d *Detector) venueEVComparison(ctx context.Context, asset string, isBuy bool, pWin, entryPx, stopPx float64) []VenueCost {
	results := make([]VenueCost, 0, len(d.cfg.Venues))
	for _, venueName := range d.cfg.Venues {
		var feesBps, slipBps, fundingBps float64
		var err error
		if d.costSource != nil {
			feesBps, slipBps, fundingBps, err = d.costSource.CostBps(ctx, venueName, asset, isBuy, d.cfg.DefaultHoldHours, d.cfg.NominalOrderSizeUSD)
		}

		totalBps := feesBps + slipBps + fundingBps
		gross, cost, net := calculateEV(pWin, entryPx, stopPx, d.cfg.AvgWinR, d.cfg.AvgLossR, totalBps)

		results = append(results, VenueCost{
			Venue: venueName, FeesBps: feesBps, SlippageBps: slipBps, FundingBps: fundingBps,
			TotalBps: totalBps, GrossEVR: gross, CostEVR: cost, NetEVR: net, Err: err,
		})
	}
	return results
}

// bestVenue picks the venue with maximum net EV among those that priced
// successfully, defaulting to the first configured venue if all failed.
func bestVenue(costs []VenueCost) VenueCost {
	var best *VenueCost
	for i := range costs {
		if costs[i].Err != nil {
			continue
		}
		if best == nil || costs[i].NetEVR > best.NetEVR {
			best = &costs[i]
		}
	}
	if best == nil {
		if len(costs) > 0 {
			return costs[0]
		}
		return VenueCost{}
	}
	return *best
}

// passesConsensusGates requires both a minimum agreeing-trader count and
// minimum agreeing fraction in the majority direction. Ties break long.
func passesConsensusGates(directions []string, minAgreeing int, minPct float64) (passed bool, majorityDir string, majorityPct float64) {
	if len(directions) == 0 {
		return false, "", 0
	}

	longCount := 0
	for _, d := range directions {
		if d == "long" {
			longCount++
		}
	}
	shortCount := len(directions) - longCount

	var majorityCount int
	if longCount >= shortCount {
		majorityCount, majorityDir = longCount, "long"
	} else {
		majorityCount, majorityDir = shortCount, "short"
	}
	majorityPct = float64(majorityCount) / float64(len(directions))

	if majorityCount < minAgreeing {
		return false, majorityDir, majorityPct
	}
	if majorityPct < minPct {
		return false, majorityDir, majorityPct
	}
	return true, majorityDir, majorityPct
}

// adaptiveWindowSeconds sizes the consensus window by volatility: shorter
// windows in low vol for quick signals, longer in high vol to allow
// gathering, clamped to [60, 360].
func adaptiveWindowSeconds(atrPercentile float64, base int) int {
	const lo, hi = 60, 360
	switch {
	case atrPercentile < 0.3:
		return maxInt(lo, base)
	case atrPercentile < 0.7:
		return minInt(hi, base*2)
	default:
		return minInt(hi, base*3)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// calibratedPWin is a simple heuristic: a base probability plus bonuses for
// effective-K diversity and total agreeing weight, clamped to [0.30, 0.80].
func calibratedPWin(votes []Vote, effK float64) float64 {
	if len(votes) == 0 {
		return 0.5
	}
	base := 0.5
	kBonus := math.Min(0.15, (effK-1)*0.05)

	var totalWeight float64
	for _, v := range votes {
		totalWeight += v.Weight
	}
	weightBonus := math.Min(0.1, totalWeight*0.02)

	p := base + kBonus + weightBonus
	return math.Max(0.30, math.Min(0.80, p))
}

// calculateDispersion is the sample standard deviation of signed vote
// weights (+weight for long, -weight for short). Lower dispersion means
// stronger agreement.
func calculateDispersion(votes []Vote, majorityDir string) float64 {
	_ = majorityDir
	if len(votes) < 2 {
		return 0
	}
	signed := make([]float64, len(votes))
	for i, v := range votes {
		sign := 1.0
		if v.Direction != "long" {
			sign = -1.0
		}
		signed[i] = sign * v.Weight
	}
	return sampleStdev(signed)
}

func sampleStdev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n-1))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// bpsToR converts a bps cost to R-units based on the stop distance: a cost
// of stop_bps itself equals exactly 1R.
func bpsToR(entryPx, stopPx, bps float64) float64 {
	if entryPx <= 0 {
		return 0
	}
	stopBps := math.Abs(entryPx-stopPx) / entryPx * 10000
	return bps / math.Max(stopBps, 1.0)
}

// calculateEV computes gross/cost/net expected value in R-multiples.
func calculateEV(pWin, entryPx, stopPx, avgWinR, avgLossR, totalCostBps float64) (gross, cost, net float64) {
	gross = pWin*avgWinR - (1-pWin)*avgLossR
	cost = bpsToR(entryPx, stopPx, totalCostBps)
	net = gross - cost
	return gross, cost, net
}

// Reasoning derives a human-readable sentence from the first failing gate,
// or a pass summary if every gate recorded so far passed.
func Reasoning(gates []GateResult) string {
	for _, g := range gates {
		if !g.Passed {
			return fmt.Sprintf("failed gate %q: value=%.4f threshold=%.4f %s", g.Name, g.Value, g.Threshold, g.Detail)
		}
	}
	if len(gates) == 0 {
		return "no gates evaluated"
	}
	return "all evaluated gates passed"
}

// Package risk implements the hard safety limits that gate every trade:
// liquidation-distance and daily-drawdown kill switches, equity/position/
// exposure ceilings, and circuit breakers for API errors and loss streaks.
// These checks are the last line of defense before capital destruction and
// are never bypassable by config.
package risk

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// Config carries the hard risk limits, verbatim defaults from
// risk_governor.py's module-level constants. These are intentionally
// conservative and are not meant to be loosened casually.
type Config struct {
	LiquidationDistanceMin float64 `yaml:"liquidation_distance_min"` // default 1.5
	DailyDrawdownKillPct   float64 `yaml:"daily_drawdown_kill_pct"`  // default 0.05
	MinEquityFloor         float64 `yaml:"min_equity_floor"`         // default 10000
	MaxPositionSizePct     float64 `yaml:"max_position_size_pct"`    // default 0.10
	MaxTotalExposurePct    float64 `yaml:"max_total_exposure_pct"`   // default 0.50

	KillSwitchCooldownRaw string        `yaml:"kill_switch_cooldown"` // e.g. "24h"
	KillSwitchCooldown    time.Duration `yaml:"-"`                    // default 24h

	MaxConcurrentPositions int `yaml:"max_concurrent_positions"` // default 3
	MaxPositionPerSymbol   int `yaml:"max_position_per_symbol"`  // default 1

	APIErrorThreshold int    `yaml:"api_error_threshold"` // default 3
	APIErrorPauseRaw  string `yaml:"api_error_pause"`      // e.g. "5m"
	APIErrorPause     time.Duration `yaml:"-"`             // default 5m

	MaxConsecutiveLosses int    `yaml:"max_consecutive_losses"` // default 5
	LossStreakPauseRaw   string `yaml:"loss_streak_pause"`       // e.g. "1h"
	LossStreakPause      time.Duration `yaml:"-"`                // default 1h
}

// normalise parses the Raw duration strings set by YAML loading into their
// time.Duration counterparts. A zero Raw value leaves the field untouched so
// Go-constructed Configs (tests, defaults) are unaffected.
func (c *Config) normalise() error {
	parse := func(raw string, dst *time.Duration, field string) error {
		if raw == "" {
			return nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("risk config: invalid %s %q: %w", field, raw, err)
		}
		*dst = d
		return nil
	}
	if err := parse(c.KillSwitchCooldownRaw, &c.KillSwitchCooldown, "kill_switch_cooldown"); err != nil {
		return err
	}
	if err := parse(c.APIErrorPauseRaw, &c.APIErrorPause, "api_error_pause"); err != nil {
		return err
	}
	if err := parse(c.LossStreakPauseRaw, &c.LossStreakPause, "loss_streak_pause"); err != nil {
		return err
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.LiquidationDistanceMin == 0 {
		c.LiquidationDistanceMin = 1.5
	}
	if c.DailyDrawdownKillPct == 0 {
		c.DailyDrawdownKillPct = 0.05
	}
	if c.MinEquityFloor == 0 {
		c.MinEquityFloor = 10000
	}
	if c.MaxPositionSizePct == 0 {
		c.MaxPositionSizePct = 0.10
	}
	if c.MaxTotalExposurePct == 0 {
		c.MaxTotalExposurePct = 0.50
	}
	if c.KillSwitchCooldown == 0 {
		c.KillSwitchCooldown = 24 * time.Hour
	}
	if c.MaxConcurrentPositions == 0 {
		c.MaxConcurrentPositions = 3
	}
	if c.MaxPositionPerSymbol == 0 {
		c.MaxPositionPerSymbol = 1
	}
	if c.APIErrorThreshold == 0 {
		c.APIErrorThreshold = 3
	}
	if c.APIErrorPause == 0 {
		c.APIErrorPause = 5 * time.Minute
	}
	if c.MaxConsecutiveLosses == 0 {
		c.MaxConsecutiveLosses = 5
	}
	if c.LossStreakPause == 0 {
		c.LossStreakPause = time.Hour
	}
	return c
}

// State is a point-in-time snapshot of account risk metrics, always in
// USD-normalized terms.
type State struct {
	Timestamp            time.Time
	AccountValue         float64
	MarginUsed           float64
	MaintenanceMargin    float64
	TotalExposure        float64
	MarginRatio          float64
	DailyPnL             float64
	DailyStartingEquity  float64
	DailyDrawdownPct     float64
	Exchange             string
}

// AggregatedState combines risk state across every connected exchange.
type AggregatedState struct {
	Timestamp        time.Time
	TotalEquity      float64
	TotalMarginUsed  float64
	TotalExposure    float64
	PerExchange      map[string]State
	DailyPnL         float64
	DailyDrawdownPct float64
}

// CheckResult is the outcome of one or more risk checks.
type CheckResult struct {
	Allowed   bool
	Reason    string
	State     *State
	Warnings  []string
}

// PositionExposure is one open position's notional contribution to total
// exposure.
type PositionExposure struct {
	Symbol    string
	Size      float64
	EntryPrice float64
}

// AccountSnapshot is the USD-normalized account data pulled from a venue
// before a risk check.
type AccountSnapshot struct {
	AccountValue      float64
	MarginUsed        float64
	MaintenanceMargin float64
	Positions         []PositionExposure
}

// TotalExposure sums |size|*entryPrice across positions.
func (s AccountSnapshot) TotalExposure() float64 {
	var total float64
	for _, p := range s.Positions {
		total += math.Abs(p.Size) * p.EntryPrice
	}
	return total
}

// StateStore persists kill-switch/daily-equity state across restarts.
// Implemented by internal/repo's risk_governor_state accessor.
type StateStore interface {
	SaveState(ctx context.Context, key, value string) error
	LoadState(ctx context.Context) (map[string]string, error)
}

// DailyPnLStore computes daily PnL from equity deltas (not realized-only),
// so the kill switch reacts to unrealized stress too. Implemented by
// internal/repo's risk_daily_pnl accessor.
type DailyPnLStore interface {
	DailyPnL(ctx context.Context, date time.Time, currentEquity float64) (float64, error)
}

// Governor enforces hard safety limits before any trade is allowed. All
// methods are safe for concurrent use.
type Governor struct {
	mu    sync.Mutex
	cfg   Config
	store StateStore

	killSwitchActive     bool
	killSwitchTriggeredAt time.Time

	dailyStartingEquity float64
	dailyStartDate      string

	consecutiveAPIErrors int
	apiPauseUntil        time.Time

	consecutiveLosses  int
	lossStreakPauseUntil time.Time

	currentPositionCount int
	positionsBySymbol     map[string]int
	positionsByExchange    map[string]map[string]int
	riskStateByExchange    map[string]State
}

// NewGovernor constructs a Governor. store may be nil; state then lives only
// in process memory.
func NewGovernor(cfg Config, store StateStore) *Governor {
	return &Governor{
		cfg:                cfg.withDefaults(),
		store:              store,
		positionsBySymbol:  map[string]int{},
		positionsByExchange: map[string]map[string]int{},
		riskStateByExchange: map[string]State{},
	}
}

// LoadState restores kill-switch and daily-equity state from the store, if
// configured. Missing or unreadable state is silently ignored — the table
// may not exist yet.
func (g *Governor) LoadState(ctx context.Context) error {
	if g.store == nil {
		return nil
	}
	values, err := g.store.LoadState(ctx)
	if err != nil || values == nil {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if values["kill_switch_active"] == "true" {
		g.killSwitchActive = true
	}
	if ts, ok := values["kill_switch_triggered_at"]; ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			g.killSwitchTriggeredAt = parsed
		}
	}
	return nil
}

// SaveState persists the kill-switch flag. Errors are swallowed — risk
// state is best-effort durable, not transactionally required for safety
// (the in-memory state is authoritative for the life of the process).
func (g *Governor) SaveState(ctx context.Context) error {
	if g.store == nil {
		return nil
	}
	g.mu.Lock()
	active := g.killSwitchActive
	g.mu.Unlock()

	_ = g.store.SaveState(ctx, "kill_switch_active", fmt.Sprintf("%v", active))
	return nil
}

// UpdateDailyStartingEquity captures the day's starting equity once, on the
// first call of each UTC date.
func (g *Governor) UpdateDailyStartingEquity(equity float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updateDailyStartingEquityLocked(equity)
}

func (g *Governor) updateDailyStartingEquityLocked(equity float64) {
	today := time.Now().UTC().Format("2006-01-02")
	if g.dailyStartDate != today {
		g.dailyStartingEquity = equity
		g.dailyStartDate = today
	}
}

// IsKillSwitchActive is a lightweight check for early bailout. It does not
// mutate cooldown state — use CheckKillSwitch for the full check.
func (g *Governor) IsKillSwitchActive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.killSwitchActive {
		return false
	}
	if !g.killSwitchTriggeredAt.IsZero() && time.Since(g.killSwitchTriggeredAt) >= g.cfg.KillSwitchCooldown {
		return false
	}
	return true
}

// CheckKillSwitch reports whether the kill switch is active, resetting it
// once the cooldown has elapsed.
func (g *Governor) CheckKillSwitch() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.killSwitchActive {
		return false, ""
	}
	if !g.killSwitchTriggeredAt.IsZero() {
		elapsed := time.Since(g.killSwitchTriggeredAt)
		if elapsed >= g.cfg.KillSwitchCooldown {
			g.killSwitchActive = false
			g.killSwitchTriggeredAt = time.Time{}
			return false, ""
		}
		remaining := g.cfg.KillSwitchCooldown - elapsed
		return true, fmt.Sprintf("kill switch active, %.1fh remaining", remaining.Hours())
	}
	return true, "kill switch active"
}

// TriggerKillSwitch halts all trading for the configured cooldown.
func (g *Governor) TriggerKillSwitch(reason string) {
	g.mu.Lock()
	g.killSwitchActive = true
	g.killSwitchTriggeredAt = time.Now()
	g.mu.Unlock()
}

// ResetKillSwitch manually clears the kill switch. Should only be called
// after human review.
func (g *Governor) ResetKillSwitch() {
	g.mu.Lock()
	g.killSwitchActive = false
	g.killSwitchTriggeredAt = time.Time{}
	g.mu.Unlock()
}

// ComputeRiskState derives margin ratio and daily drawdown from current
// account data, updating the daily starting-equity tracker as a side
// effect.
func (g *Governor) ComputeRiskState(accountValue, marginUsed, maintenanceMargin, totalExposure, dailyPnL float64) State {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.updateDailyStartingEquityLocked(accountValue - dailyPnL)

	marginRatio := math.Inf(1)
	if maintenanceMargin > 0 {
		marginRatio = accountValue / maintenanceMargin
	}

	starting := g.dailyStartingEquity
	if starting == 0 {
		starting = accountValue
	}
	drawdownPct := 0.0
	if starting > 0 && dailyPnL < 0 {
		drawdownPct = -dailyPnL / starting
	}

	return State{
		Timestamp: time.Now(), AccountValue: accountValue, MarginUsed: marginUsed,
		MaintenanceMargin: maintenanceMargin, TotalExposure: totalExposure,
		MarginRatio: marginRatio, DailyPnL: dailyPnL, DailyStartingEquity: starting,
		DailyDrawdownPct: drawdownPct, Exchange: "hyperliquid",
	}
}

// CheckLiquidationDistance is a hard limit: trades are blocked if the
// margin ratio is too low.
func (g *Governor) CheckLiquidationDistance(state State) CheckResult {
	if state.MarginRatio < g.cfg.LiquidationDistanceMin {
		return CheckResult{
			Allowed: false,
			Reason:  fmt.Sprintf("margin ratio %.2f < %.2f (too close to liquidation)", state.MarginRatio, g.cfg.LiquidationDistanceMin),
			State:   &state,
		}
	}
	var warnings []string
	if state.MarginRatio < g.cfg.LiquidationDistanceMin*1.5 {
		warnings = append(warnings, fmt.Sprintf("margin ratio %.2f approaching limit", state.MarginRatio))
	}
	return CheckResult{Allowed: true, Reason: "liquidation distance OK", State: &state, Warnings: warnings}
}

// CheckDailyDrawdown triggers the kill switch when daily drawdown reaches
// the kill threshold.
func (g *Governor) CheckDailyDrawdown(state State) CheckResult {
	if state.DailyDrawdownPct >= g.cfg.DailyDrawdownKillPct {
		g.TriggerKillSwitch(fmt.Sprintf("daily drawdown %.1f%% >= %.1f%%", state.DailyDrawdownPct*100, g.cfg.DailyDrawdownKillPct*100))
		return CheckResult{
			Allowed: false,
			Reason:  fmt.Sprintf("kill switch: daily drawdown %.1f%% >= %.1f%%", state.DailyDrawdownPct*100, g.cfg.DailyDrawdownKillPct*100),
			State:   &state,
		}
	}
	var warnings []string
	if state.DailyDrawdownPct >= g.cfg.DailyDrawdownKillPct*0.5 {
		warnings = append(warnings, fmt.Sprintf("daily drawdown %.1f%% at %.0f%% of kill threshold", state.DailyDrawdownPct*100, state.DailyDrawdownPct/g.cfg.DailyDrawdownKillPct*100))
	}
	return CheckResult{Allowed: true, Reason: "daily drawdown OK", State: &state, Warnings: warnings}
}

// CheckEquityFloor blocks trading below the absolute minimum equity floor.
func (g *Governor) CheckEquityFloor(state State) CheckResult {
	if state.AccountValue < g.cfg.MinEquityFloor {
		return CheckResult{
			Allowed: false,
			Reason:  fmt.Sprintf("account value $%.0f < $%.0f floor", state.AccountValue, g.cfg.MinEquityFloor),
			State:   &state,
		}
	}
	return CheckResult{Allowed: true, Reason: "equity floor OK", State: &state}
}

// CheckPositionSize blocks a proposed position above MaxPositionSizePct of
// equity.
func (g *Governor) CheckPositionSize(state State, proposedSizeUSD float64) CheckResult {
	maxSize := state.AccountValue * g.cfg.MaxPositionSizePct
	if proposedSizeUSD > maxSize {
		return CheckResult{
			Allowed: false,
			Reason:  fmt.Sprintf("position size $%.0f > $%.0f max (%.0f%% of equity)", proposedSizeUSD, maxSize, g.cfg.MaxPositionSizePct*100),
			State:   &state,
		}
	}
	return CheckResult{Allowed: true, Reason: "position size OK", State: &state}
}

// CheckTotalExposure blocks a trade that would push total exposure above
// MaxTotalExposurePct of equity.
func (g *Governor) CheckTotalExposure(state State, proposedAdditionalExposure float64) CheckResult {
	newExposure := state.TotalExposure + proposedAdditionalExposure
	maxExposure := state.AccountValue * g.cfg.MaxTotalExposurePct
	if newExposure > maxExposure {
		return CheckResult{
			Allowed: false,
			Reason:  fmt.Sprintf("total exposure $%.0f > $%.0f max (%.0f%% of equity)", newExposure, maxExposure, g.cfg.MaxTotalExposurePct*100),
			State:   &state,
		}
	}
	return CheckResult{Allowed: true, Reason: "total exposure OK", State: &state}
}

// RunAllChecks is the main entry point: kill switch, equity floor,
// liquidation distance, daily drawdown, position size, total exposure — in
// that order, short-circuiting on the first failure.
func (g *Governor) RunAllChecks(accountValue, marginUsed, maintenanceMargin, totalExposure, dailyPnL, proposedSizeUSD float64) CheckResult {
	if active, reason := g.CheckKillSwitch(); active {
		return CheckResult{Allowed: false, Reason: reason}
	}

	state := g.ComputeRiskState(accountValue, marginUsed, maintenanceMargin, totalExposure, dailyPnL)
	var warnings []string

	if r := g.CheckEquityFloor(state); !r.Allowed {
		return r
	} else {
		warnings = append(warnings, r.Warnings...)
	}

	if r := g.CheckLiquidationDistance(state); !r.Allowed {
		return r
	} else {
		warnings = append(warnings, r.Warnings...)
	}

	if r := g.CheckDailyDrawdown(state); !r.Allowed {
		return r
	} else {
		warnings = append(warnings, r.Warnings...)
	}

	if proposedSizeUSD > 0 {
		if r := g.CheckPositionSize(state, proposedSizeUSD); !r.Allowed {
			return r
		} else {
			warnings = append(warnings, r.Warnings...)
		}
	}

	if r := g.CheckTotalExposure(state, proposedSizeUSD); !r.Allowed {
		return r
	} else {
		warnings = append(warnings, r.Warnings...)
	}

	return CheckResult{Allowed: true, Reason: "all risk checks passed", State: &state, Warnings: warnings}
}

// --- Circuit breakers ---

// CheckConcurrentPositions blocks a new position once at the concurrent
// position ceiling.
func (g *Governor) CheckConcurrentPositions(currentCount int) CheckResult {
	if currentCount >= g.cfg.MaxConcurrentPositions {
		return CheckResult{Allowed: false, Reason: fmt.Sprintf("at max concurrent positions (%d/%d)", currentCount, g.cfg.MaxConcurrentPositions)}
	}
	var warnings []string
	if currentCount >= g.cfg.MaxConcurrentPositions-1 {
		warnings = append(warnings, fmt.Sprintf("near position limit (%d/%d)", currentCount, g.cfg.MaxConcurrentPositions))
	}
	return CheckResult{Allowed: true, Reason: "concurrent positions OK", Warnings: warnings}
}

// CheckSymbolPosition blocks opening a second position in the same symbol
// when MaxPositionPerSymbol is 1.
func (g *Governor) CheckSymbolPosition(symbol string, hasPosition bool) CheckResult {
	if hasPosition && g.cfg.MaxPositionPerSymbol == 1 {
		return CheckResult{Allowed: false, Reason: fmt.Sprintf("already have position in %s", symbol)}
	}
	return CheckResult{Allowed: true, Reason: "symbol position OK"}
}

// ReportAPIError records a venue API failure, triggering a pause once
// consecutive failures reach the threshold.
func (g *Governor) ReportAPIError() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.consecutiveAPIErrors++
	if g.consecutiveAPIErrors >= g.cfg.APIErrorThreshold {
		g.apiPauseUntil = time.Now().Add(g.cfg.APIErrorPause)
	}
}

// ReportAPISuccess resets the consecutive-error counter.
func (g *Governor) ReportAPISuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.consecutiveAPIErrors = 0
}

// CheckAPIPause reports whether trading is paused due to API errors,
// clearing the pause once it expires.
func (g *Governor) CheckAPIPause() CheckResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.apiPauseUntil.IsZero() {
		if time.Now().Before(g.apiPauseUntil) {
			remaining := time.Until(g.apiPauseUntil)
			return CheckResult{Allowed: false, Reason: fmt.Sprintf("API error pause, %.0fs remaining", remaining.Seconds())}
		}
		g.apiPauseUntil = time.Time{}
		g.consecutiveAPIErrors = 0
	}
	return CheckResult{Allowed: true, Reason: "no API pause"}
}

// ReportTradeResult records a closed trade's outcome, triggering a pause
// once consecutive losses reach the threshold.
func (g *Governor) ReportTradeResult(isWin bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if isWin {
		g.consecutiveLosses = 0
		return
	}
	g.consecutiveLosses++
	if g.consecutiveLosses >= g.cfg.MaxConsecutiveLosses {
		g.lossStreakPauseUntil = time.Now().Add(g.cfg.LossStreakPause)
	}
}

// CheckLossStreakPause reports whether trading is paused due to a losing
// streak, clearing the pause once it expires.
func (g *Governor) CheckLossStreakPause() CheckResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.lossStreakPauseUntil.IsZero() {
		if time.Now().Before(g.lossStreakPauseUntil) {
			remaining := time.Until(g.lossStreakPauseUntil)
			return CheckResult{Allowed: false, Reason: fmt.Sprintf("loss streak pause (%d losses), %.0fs remaining", g.consecutiveLosses, remaining.Seconds())}
		}
		g.lossStreakPauseUntil = time.Time{}
		g.consecutiveLosses = 0
	}
	return CheckResult{Allowed: true, Reason: "no loss streak pause"}
}

// UpdatePositionCount adjusts the in-memory position tracker incrementally
// (+1 on open, -1 on close).
func (g *Governor) UpdatePositionCount(symbol string, delta int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.currentPositionCount = maxInt(0, g.currentPositionCount+delta)
	g.positionsBySymbol[symbol] = maxInt(0, g.positionsBySymbol[symbol]+delta)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// UpdatePositionsFromAccountState derives per-symbol position counts from a
// venue's reported positions and re-aggregates across exchanges — the
// preferred way to sync the governor's tracker with actual account state.
func (g *Governor) UpdatePositionsFromAccountState(exchange string, positions []PositionExposure) {
	bySymbol := map[string]int{}
	for _, p := range positions {
		if p.Size != 0 && p.Symbol != "" {
			bySymbol[p.Symbol]++
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.positionsByExchange[exchange] = bySymbol
	g.updateAggregatedPositionsLocked()
}

func (g *Governor) updateAggregatedPositionsLocked() {
	aggregated := map[string]int{}
	for _, bySymbol := range g.positionsByExchange {
		for symbol, count := range bySymbol {
			aggregated[symbol] += count
		}
	}
	g.positionsBySymbol = aggregated
	total := 0
	for _, count := range aggregated {
		total += count
	}
	g.currentPositionCount = total
}

// UpdateRiskStateForExchange records a per-exchange risk snapshot for later
// aggregation.
func (g *Governor) UpdateRiskStateForExchange(exchange string, accountValue, marginUsed, maintenanceMargin, totalExposure, dailyPnL float64) State {
	state := g.ComputeRiskState(accountValue, marginUsed, maintenanceMargin, totalExposure, dailyPnL)
	state.Exchange = exchange

	g.mu.Lock()
	g.riskStateByExchange[exchange] = state
	g.mu.Unlock()
	return state
}

// GetAggregatedRiskState sums every tracked exchange's risk state. Returns
// false if no exchange data has been recorded yet.
func (g *Governor) GetAggregatedRiskState() (AggregatedState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.riskStateByExchange) == 0 {
		return AggregatedState{}, false
	}

	var totalEquity, totalMargin, totalExposure, dailyPnL float64
	perExchange := make(map[string]State, len(g.riskStateByExchange))
	for exchange, s := range g.riskStateByExchange {
		totalEquity += s.AccountValue
		totalMargin += s.MarginUsed
		totalExposure += s.TotalExposure
		dailyPnL += s.DailyPnL
		perExchange[exchange] = s
	}

	starting := g.dailyStartingEquity
	if starting == 0 {
		starting = totalEquity
	}
	drawdownPct := 0.0
	if starting > 0 && dailyPnL < 0 {
		drawdownPct = -dailyPnL / starting
	}

	return AggregatedState{
		Timestamp: time.Now(), TotalEquity: totalEquity, TotalMarginUsed: totalMargin,
		TotalExposure: totalExposure, PerExchange: perExchange, DailyPnL: dailyPnL,
		DailyDrawdownPct: drawdownPct,
	}, true
}

// GetPositionsForExchange returns the symbol->count map for one exchange.
func (g *Governor) GetPositionsForExchange(exchange string) map[string]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.positionsByExchange[exchange]
}

// GetSymbolPositionCount returns the aggregated position count for a
// symbol, 0 if none.
func (g *Governor) GetSymbolPositionCount(symbol string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.positionsBySymbol[symbol]
}

// RunCircuitBreakerChecks runs the API-pause, loss-streak-pause, concurrent-
// position, and symbol-position checks in that order.
func (g *Governor) RunCircuitBreakerChecks(symbol string, symbolPositionCount int) CheckResult {
	if r := g.CheckAPIPause(); !r.Allowed {
		return r
	}
	if r := g.CheckLossStreakPause(); !r.Allowed {
		return r
	}

	g.mu.Lock()
	currentCount := g.currentPositionCount
	g.mu.Unlock()

	var warnings []string
	if r := g.CheckConcurrentPositions(currentCount); !r.Allowed {
		return r
	} else {
		warnings = append(warnings, r.Warnings...)
	}

	if r := g.CheckSymbolPosition(symbol, symbolPositionCount > 0); !r.Allowed {
		return r
	}

	return CheckResult{Allowed: true, Reason: "circuit breaker checks passed", Warnings: warnings}
}

// GetDailyPnL computes today's PnL from the equity-delta tracker, creating
// today's starting-equity record on the first call of the day. This is
// equity-based, not realized-only: the kill switch must react to
// unrealized stress, not just closed losses.
func GetDailyPnL(ctx context.Context, store DailyPnLStore, currentEquity float64) float64 {
	if store == nil {
		return 0
	}
	pnl, err := store.DailyPnL(ctx, time.Now().UTC(), currentEquity)
	if err != nil {
		return 0
	}
	return pnl
}

// CheckRiskBeforeTrade is the convenience entry point wiring an account
// snapshot and the daily PnL store into RunAllChecks.
func CheckRiskBeforeTrade(ctx context.Context, governor *Governor, pnlStore DailyPnLStore, snapshot AccountSnapshot, proposedSizeUSD float64) CheckResult {
	dailyPnL := GetDailyPnL(ctx, pnlStore, snapshot.AccountValue)
	return governor.RunAllChecks(snapshot.AccountValue, snapshot.MarginUsed, snapshot.MaintenanceMargin, snapshot.TotalExposure(), dailyPnL, proposedSizeUSD)
}

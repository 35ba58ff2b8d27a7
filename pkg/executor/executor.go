// Package executor turns a gated consensus signal into an order. It runs a
// fixed validate-then-execute pipeline — master enable, exchange
// resolution, account-state fetch, kill switch, exposure limits, position
// sizing, a slippage/EV recheck against the actual sized order, a second
// exposure check, the full risk-governor pass, and circuit breakers — before
// ever placing (or simulating) a trade. Disabled by default; real order
// placement requires Config.RealExecutionEnabled.
package executor

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"hivemind-decide/pkg/consensus"
	"hivemind-decide/pkg/normalizer"
	"hivemind-decide/pkg/outcome"
	"hivemind-decide/pkg/regime"
	"hivemind-decide/pkg/risk"
	"hivemind-decide/pkg/sizing"
	"hivemind-decide/pkg/venue"
)

// Executor validates and (optionally) executes consensus signals.
type Executor struct {
	cfg  Config
	deps Deps
	norm *normalizer.Normalizer
}

// New constructs an Executor.
func New(cfg Config, deps Deps) *Executor {
	return &Executor{cfg: cfg.withDefaults(), deps: deps, norm: normalizer.New()}
}

// executionContext carries state threaded through steps 3-11 so the
// account snapshot is fetched exactly once per attempt.
type executionContext struct {
	exchange        string
	isBuy           bool
	account         AccountSnapshot
	exposureBefore  float64
	price           float64
	sizeUSD         float64
	sizeCoin        float64
	positionPct     float64
	kelly           *sizing.Result
	stopDistancePct float64
}

// MaybeExecuteSignal is the main entry point: executes sig if auto-trading
// is enabled, returns nil without error if it is not. decisionID ties the
// attempt back to the decision_logs row that produced the signal.
func (e *Executor) MaybeExecuteSignal(ctx context.Context, decisionID string, sig *consensus.Signal) (*ExecutionResult, error) {
	// Step 1: master enable check.
	if !e.cfg.Enabled {
		return nil, nil
	}
	if sig == nil {
		return nil, outcome.Wrap(outcome.ErrInvariant, "executor: nil signal", nil)
	}

	ec, reason := e.validate(ctx, sig)
	if reason != "" {
		result := &ExecutionResult{Status: StatusRejected, ErrorMessage: reason, Exchange: ec.exchange}
		if ec.account.AccountValue > 0 {
			result.ExposureBefore = ec.exposureBefore
		}
		e.logExecution(ctx, decisionID, sig, result)
		return result, nil
	}

	return e.execute(ctx, decisionID, sig, ec)
}

// validate runs steps 2-12. An empty reason means every gate passed.
func (e *Executor) validate(ctx context.Context, sig *consensus.Signal) (executionContext, string) {
	var ec executionContext
	ec.isBuy = sig.Direction == "long"

	// Step 2: resolve exchange, verify connected.
	ec.exchange = sig.TargetVenue
	if ec.exchange == "" {
		ec.exchange = e.cfg.Exchange
	}
	if ec.exchange == "" || !e.deps.Venues.IsConnected(ec.exchange) {
		return ec, fmt.Sprintf("exchange %q not connected", ec.exchange)
	}

	// Step 3: fetch account state (balance + positions), once.
	account, err := e.fetchAccountStateWithRetry(ctx, ec.exchange)
	if err != nil {
		incrementSafetyBlock(GuardAccountState)
		return ec, fmt.Sprintf("account state unavailable: %v", err)
	}
	ec.account = account
	if account.AccountValue <= 0 {
		return ec, fmt.Sprintf("no account value on %s", ec.exchange)
	}

	// Step 4: kill switch.
	if e.deps.Governor != nil && e.deps.Governor.IsKillSwitchActive() {
		incrementSafetyBlock(GuardKillSwitch)
		return ec, "risk governor: kill switch active"
	}

	// Step 5: sync risk governor positions from account state.
	if e.deps.Governor != nil {
		e.deps.Governor.UpdatePositionsFromAccountState(ec.exchange, toPositionExposures(account.Positions))
	}

	// Step 6: exposure limit (current exposure vs. max, pre-sizing).
	ec.exposureBefore = currentExposure(account)
	if ec.exposureBefore >= e.cfg.MaxExposurePct {
		return ec, fmt.Sprintf("exposure %.1f%% >= %.1f%% limit on %s", ec.exposureBefore*100, e.cfg.MaxExposurePct*100, ec.exchange)
	}

	// Step 7: price.
	price, err := e.deps.Venues.GetMarketPrice(ctx, sig.Symbol, ec.exchange)
	if err != nil || price <= 0 {
		return ec, fmt.Sprintf("could not get price for %s on %s", sig.Symbol, ec.exchange)
	}
	ec.price = price

	ec.stopDistancePct = stopDistanceFraction(sig.EntryPrice, sig.StopPrice)
	if ec.stopDistancePct <= 0 {
		ec.stopDistancePct = 0.02
	}

	// Step 8: position sizing (Kelly or fixed).
	e.sizePosition(ctx, sig, ec.exchange, account.AccountValue, price, ec.stopDistancePct, &ec)

	// Step 9: slippage/EV recheck against the actual sized order.
	if reason := e.recheckEV(ctx, sig, ec); reason != "" {
		return ec, reason
	}

	// Step 10: post-sizing exposure check.
	newExposure := ec.exposureBefore + ec.sizeUSD/account.AccountValue
	if newExposure > e.cfg.MaxExposurePct {
		return ec, fmt.Sprintf("trade would exceed exposure limit (%.1f%% > %.1f%%)", newExposure*100, e.cfg.MaxExposurePct*100)
	}

	// Step 11: full risk-governor pass with the actual proposed size.
	if e.deps.Governor != nil {
		snapshot := risk.AccountSnapshot{
			AccountValue: account.AccountValue, MarginUsed: account.MarginUsed,
			MaintenanceMargin: account.MaintenanceMargin, Positions: toPositionExposures(account.Positions),
		}
		result := risk.CheckRiskBeforeTrade(ctx, e.deps.Governor, e.deps.DailyPnL, snapshot, ec.sizeUSD)
		if !result.Allowed {
			incrementSafetyBlock(GuardRiskGovernor)
			return ec, fmt.Sprintf("risk governor: %s", result.Reason)
		}

		// Step 12: circuit breakers.
		cb := e.deps.Governor.RunCircuitBreakerChecks(sig.Symbol, e.deps.Governor.GetSymbolPositionCount(sig.Symbol))
		if !cb.Allowed {
			incrementSafetyBlock(GuardCircuitBreaker)
			return ec, fmt.Sprintf("circuit breaker: %s", cb.Reason)
		}
	}

	return ec, ""
}

func (e *Executor) fetchAccountStateWithRetry(ctx context.Context, exchange string) (AccountSnapshot, error) {
	var lastErr error
	for attempt := 0; attempt < e.cfg.AccountStateMaxRetries; attempt++ {
		snapshot, err := e.fetchAccountState(ctx, exchange)
		if err == nil {
			if e.deps.Governor != nil {
				e.deps.Governor.ReportAPISuccess()
			}
			return snapshot, nil
		}
		lastErr = err
		if e.deps.Governor != nil {
			e.deps.Governor.ReportAPIError()
		}
		if attempt < e.cfg.AccountStateMaxRetries-1 {
			delay := e.cfg.AccountStateBaseDelay * time.Duration(1<<uint(attempt))
			logx.WithContext(ctx).Infof("executor: account state fetch from %s attempt %d failed, retrying in %s: %v", exchange, attempt+1, delay, err)
			select {
			case <-ctx.Done():
				return AccountSnapshot{}, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return AccountSnapshot{}, outcome.Wrap(outcome.ErrTransient, fmt.Sprintf("account state fetch failed after %d attempts", e.cfg.AccountStateMaxRetries), lastErr)
}

func (e *Executor) fetchAccountState(ctx context.Context, exchange string) (AccountSnapshot, error) {
	balance, err := e.deps.Venues.GetAggregatedBalance(ctx)
	if err != nil {
		return AccountSnapshot{}, err
	}
	if balance == nil {
		return AccountSnapshot{}, outcome.Wrap(outcome.ErrDataQuality, "no balance data", nil)
	}
	b, ok := balance.PerVenue[exchange]
	if !ok {
		return AccountSnapshot{}, outcome.Wrap(outcome.ErrDataQuality, fmt.Sprintf("no balance for %s", exchange), nil)
	}
	// PerVenue balances are raw, venue-native quote-currency values — unlike
	// the cross-venue aggregate totals, they are not USD-normalized yet.
	normalized := e.norm.Balance(normalizer.BalanceInput{
		Currency: b.Currency, TotalEquity: b.TotalEquity,
		AvailableBalance: b.AvailableBalance, MarginUsed: b.MarginUsed, UnrealizedPnl: b.UnrealizedPnl,
	})
	rate, _ := e.norm.ConversionRate(b.Currency)

	positions, err := e.deps.Venues.GetAllPositions(ctx)
	if err != nil {
		return AccountSnapshot{}, err
	}
	var venuePositions []venue.Position
	if positions != nil {
		venuePositions = positions.PerVenue[exchange]
	}

	return AccountSnapshot{
		AccountValue:      normalized.TotalEquityUSD,
		MarginUsed:        normalized.MarginUsedUSD,
		MaintenanceMargin: b.MaintenanceMargin * rate,
		Positions:         venuePositions,
	}, nil
}

func currentExposure(account AccountSnapshot) float64 {
	if account.AccountValue <= 0 {
		return 0
	}
	var notional float64
	for _, p := range account.Positions {
		size, _ := strconv.ParseFloat(p.Szi, 64)
		entry, _ := strconv.ParseFloat(p.EntryPx, 64)
		notional += math.Abs(size) * entry
	}
	return notional / account.AccountValue
}

func toPositionExposures(positions []venue.Position) []risk.PositionExposure {
	out := make([]risk.PositionExposure, 0, len(positions))
	for _, p := range positions {
		size, _ := strconv.ParseFloat(p.Szi, 64)
		entry, _ := strconv.ParseFloat(p.EntryPx, 64)
		out = append(out, risk.PositionExposure{Symbol: p.Coin, Size: size, EntryPrice: entry})
	}
	return out
}

func stopDistanceFraction(entryPrice, stopPrice float64) float64 {
	if entryPrice <= 0 {
		return 0
	}
	d := entryPrice - stopPrice
	if d < 0 {
		d = -d
	}
	return d / entryPrice
}

func (e *Executor) sizePosition(ctx context.Context, sig *consensus.Signal, exchange string, accountValue, price, stopDistancePct float64, ec *executionContext) {
	if e.cfg.KellyEnabled && len(sig.TriggerAddresses) > 0 && e.deps.Performance != nil {
		regimeMult := 1.0
		if e.deps.Regime != nil {
			if analysis, err := e.deps.Regime.Detect(ctx, sig.Symbol, exchange); err == nil {
				regimeMult = regime.AdjustedKelly(1.0, analysis.Regime)
			}
		}

		roundTripFeePct := 0.0
		if e.deps.Costs != nil {
			if feesBps, _, _, err := e.deps.Costs.CostBps(ctx, exchange, sig.Symbol, ec.isBuy, 4, 10000); err == nil {
				roundTripFeePct = feesBps / 10000
			}
		}

		sizingCfg := sizing.Config{Fraction: e.cfg.KellyFraction}
		result, err := sizing.ConsensusPositionSize(ctx, e.deps.Performance, sig.TriggerAddresses, accountValue, price, stopDistancePct, sizingCfg, regimeMult, roundTripFeePct)
		if err == nil {
			ec.kelly = &result
			ec.positionPct = result.PositionPct
			ec.sizeUSD = result.PositionSizeUSD
			ec.sizeCoin = result.PositionSizeCoin
			return
		}
		logx.WithContext(ctx).Errorf("executor: kelly sizing failed, falling back to fixed: %v", err)
	}

	ec.positionPct = e.cfg.MaxPositionPct
	ec.sizeUSD = accountValue * ec.positionPct
	ec.sizeCoin = ec.sizeUSD / price
}

// recheckEV recalculates expected value with the actual sized order's
// slippage/funding cost and rejects the trade if it no longer clears the EV
// floor. Consensus detection used a nominal reference size; by now the real
// size is known. Reuses sig.PWin (already calibrated by consensus) rather
// than re-deriving a win probability from the Kelly result.
func (e *Executor) recheckEV(ctx context.Context, sig *consensus.Signal, ec executionContext) string {
	if e.deps.Costs == nil {
		return ""
	}
	feesBps, slippageBps, fundingBps, err := e.deps.Costs.CostBps(ctx, ec.exchange, sig.Symbol, ec.isBuy, 4, ec.sizeUSD)
	if err != nil {
		logx.WithContext(ctx).Errorf("executor: slippage recalculation failed (non-fatal): %v", err)
		return ""
	}
	totalBps := feesBps + slippageBps + fundingBps
	costR := bpsToR(totalBps, ec.stopDistancePct)

	avgWinR, avgLossR := 0.5, 0.3
	net := sizing.ExpectedValue(sig.PWin, avgWinR, avgLossR, costR)
	if net < e.cfg.EVMinR {
		return fmt.Sprintf("EV %.3fR < minimum %.3fR after sizing (slippage=%.1fbps)", net, e.cfg.EVMinR, slippageBps)
	}
	return ""
}

func bpsToR(bps, stopDistancePct float64) float64 {
	if stopDistancePct <= 0 {
		return 0
	}
	return (bps / 10000) / stopDistancePct
}

func (e *Executor) execute(ctx context.Context, decisionID string, sig *consensus.Signal, ec executionContext) (*ExecutionResult, error) {
	if !e.cfg.RealExecutionEnabled {
		result := &ExecutionResult{
			Status: StatusSimulated, FillPrice: ec.price, FillSize: ec.sizeCoin,
			ExposureBefore: ec.exposureBefore, ExposureAfter: ec.exposureBefore + ec.sizeUSD/ec.account.AccountValue,
			PositionPct: ec.positionPct, KellySizing: ec.kelly, ErrorMessage: "dry run - real execution disabled",
			Exchange: ec.exchange,
		}
		logx.WithContext(ctx).Infof("executor: simulated %s %s: size=%.4f price=%.2f exposure=%.1f%%->%.1f%%",
			sig.Direction, sig.Symbol, ec.sizeCoin, ec.price, result.ExposureBefore*100, result.ExposureAfter*100)
		e.logExecution(ctx, decisionID, sig, result)
		return result, nil
	}

	// Step 13: real execution.
	formatted := e.deps.Venues.FormatSymbol(sig.Symbol, ec.exchange)
	resp, err := e.deps.Venues.OpenPosition(ctx, ec.exchange, formatted, ec.isBuy, ec.sizeUSD, false)
	if err != nil || resp == nil || resp.Status != "ok" {
		msg := "order rejected"
		if err != nil {
			msg = err.Error()
		} else if resp != nil && resp.ErrorMessage != "" {
			msg = resp.ErrorMessage
		}
		result := &ExecutionResult{Status: StatusFailed, ErrorMessage: msg, ExposureBefore: ec.exposureBefore, KellySizing: ec.kelly, Exchange: ec.exchange}
		logx.WithContext(ctx).Errorf("executor: FAILED %s %s on %s: %s", sig.Direction, sig.Symbol, ec.exchange, msg)
		e.logExecution(ctx, decisionID, sig, result)
		return result, nil
	}

	fillPrice, fillSize := fillFromResponse(resp, ec.price, ec.sizeCoin)
	result := &ExecutionResult{
		Status: StatusFilled, FillPrice: fillPrice, FillSize: fillSize,
		ExposureBefore: ec.exposureBefore, ExposureAfter: ec.exposureBefore + ec.sizeUSD/ec.account.AccountValue,
		PositionPct: ec.positionPct, KellySizing: ec.kelly, Exchange: ec.exchange,
	}
	logx.WithContext(ctx).Infof("executor: FILLED %s %s on %s: size=%.4f @ %.2f", sig.Direction, sig.Symbol, ec.exchange, fillSize, fillPrice)

	if e.deps.Stops != nil {
		if _, err := e.deps.Stops.RegisterStop(ctx, decisionID, sig.Symbol, sig.Direction, fillPrice, fillSize, ec.stopDistancePct, ec.exchange); err != nil {
			logx.WithContext(ctx).Errorf("executor: failed to register stop: %v", err)
		}
	}

	e.logExecution(ctx, decisionID, sig, result)
	return result, nil
}

// fillFromResponse extracts the actual filled price/size from an order
// response when available, falling back to the pre-trade estimate — real
// venue adapters populate OrderResponseDataDetail.Statuses[].Filled when
// the fill detail is known synchronously.
func fillFromResponse(resp *venue.OrderResponse, estPrice, estSize float64) (float64, float64) {
	for _, status := range resp.Response.Data.Statuses {
		if status.Filled != nil {
			px, _ := strconv.ParseFloat(status.Filled.AvgPx, 64)
			sz, _ := strconv.ParseFloat(status.Filled.TotalSz, 64)
			if px > 0 && sz > 0 {
				return px, sz
			}
		}
	}
	return estPrice, estSize
}

func (e *Executor) logExecution(ctx context.Context, decisionID string, sig *consensus.Signal, result *ExecutionResult) {
	if e.deps.Executions == nil {
		return
	}
	side := "sell"
	if sig != nil && sig.Direction == "long" {
		side = "buy"
	}
	record := ExecutionLogRecord{
		DecisionID: decisionID, Exchange: result.Exchange, Side: side,
		Size: result.FillSize, Status: result.Status, FillPrice: result.FillPrice,
		FillSize: result.FillSize, ErrorMessage: result.ErrorMessage,
		PositionPct: result.PositionPct, ExposureBefore: result.ExposureBefore,
		ExposureAfter: result.ExposureAfter, Kelly: result.KellySizing, CreatedAt: time.Now(),
	}
	if sig != nil {
		record.Symbol = sig.Symbol
	}
	if err := e.deps.Executions.InsertExecution(ctx, record); err != nil {
		logx.WithContext(ctx).Errorf("executor: failed to log execution: %v", err)
	}
}

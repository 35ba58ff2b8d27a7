package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"hivemind-decide/pkg/consensus"
)

// openTrade is one backtest-local position opened off a fired Signal,
// tracked until a stop touch, a timeout, or end of feed closes it.
type openTrade struct {
	signal   *consensus.Signal
	qty      float64
	openedAt time.Time
}

// Engine replays a Feeder through a consensus.Detector, simulating the PnL
// of every fired signal with a simple stop/timeout exit rule. It exists to
// validate the selection logic end to end, not to model exchange mechanics:
// there is no order book, no partial fills, one open trade per symbol.
type Engine struct {
	Detector *consensus.Detector
	Feeder   Feeder

	// AtrPercentile supplies the window-sizing input ProcessFill expects,
	// per fill. Defaults to a constant 0.5 (mid-regime) when nil.
	AtrPercentile func(consensus.Fill) float64

	InitialEquity float64 // defaults to 100000 if zero
	FeeBps        float64 // per-trade fee in basis points
	SlippageBps   float64 // execution slippage in bps applied to entry/exit

	PositionQty  float64 // base-unit size per fired signal, default 1
	MaxHoldHours float64 // force-close an open trade after this many hours, default 24

	// Optional: write JSON report to this path.
	OutputPath string
}

// TradeDetail records one simulated fill (open or close) for analysis.
type TradeDetail struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"` // open-long, open-short, close-long, close-short
	Price    float64 `json:"price"`
	Qty      float64 `json:"qty"`
	Fee      float64 `json:"fee"`
	Realized float64 `json:"realized"`
}

// Result summarizes a replay run.
type Result struct {
	FillsProcessed int
	SignalsFired   int
	Trades         int
	Wins           int
	WinRate        float64
	RealizedPNL    float64
	UnrealizedPNL  float64
	TotalPNL       float64
	MaxDDPct       float64
	Sharpe         float64
	EquityCurve    []float64
	Details        []TradeDetail

	// GateRejections counts, per gate name, how many ProcessFill calls
	// died at that gate without producing a signal.
	GateRejections map[string]int
}

func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if e.Detector == nil || e.Feeder == nil {
		return nil, fmt.Errorf("backtest: engine not fully configured")
	}
	qty := e.PositionQty
	if qty <= 0 {
		qty = 1
	}
	maxHold := e.MaxHoldHours
	if maxHold <= 0 {
		maxHold = 24
	}
	atrPercentile := e.AtrPercentile
	if atrPercentile == nil {
		atrPercentile = func(consensus.Fill) float64 { return 0.5 }
	}
	eq0 := e.InitialEquity
	if eq0 <= 0 {
		eq0 = 100000
	}

	res := &Result{GateRejections: map[string]int{}}
	portfolios := map[string]*portfolio{}
	open := map[string]*openTrade{}
	lastPrice := map[string]float64{}

	closeTrade := func(symbol string, execPx float64) {
		tr := open[symbol]
		pf := portfolios[symbol]
		if tr == nil || pf == nil {
			return
		}
		isBuy := tr.signal.Direction != "long" // sell a long to close, buy back a short
		realized, fee, completed := pf.apply(isBuy, applySlippage(execPx, e.SlippageBps, isBuy), tr.qty)
		if completed {
			res.Trades++
			if realized > 0 {
				res.Wins++
			}
		}
		res.Details = append(res.Details, TradeDetail{
			Symbol: symbol, Side: "close-" + tr.signal.Direction,
			Price: execPx, Qty: tr.qty, Fee: fee, Realized: realized,
		})
		delete(open, symbol)
	}

	for {
		fill, ok, err := e.Feeder.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		res.FillsProcessed++
		lastPrice[fill.Asset] = fill.Price

		if tr, has := open[fill.Asset]; has {
			stopHit := (tr.signal.Direction == "long" && fill.Price <= tr.signal.StopPrice) ||
				(tr.signal.Direction == "short" && fill.Price >= tr.signal.StopPrice)
			timedOut := fill.Ts.Sub(tr.openedAt) >= time.Duration(maxHold*float64(time.Hour))
			if stopHit || timedOut {
				closeTrade(fill.Asset, fill.Price)
			}
		}

		outcome, err := e.Detector.ProcessFill(ctx, fill, atrPercentile(fill))
		if err != nil {
			return nil, err
		}
		if outcome != nil {
			for _, g := range outcome.Gates {
				if !g.Passed {
					res.GateRejections[g.Name]++
				}
			}
			if sig := outcome.Signal; sig != nil {
				res.SignalsFired++
				if _, has := open[outcome.Symbol]; !has {
					pf, ok := portfolios[outcome.Symbol]
					if !ok {
						pf = &portfolio{feeBps: e.FeeBps, slippageBps: e.SlippageBps}
						portfolios[outcome.Symbol] = pf
					}
					isBuy := sig.Direction == "long"
					execPx := applySlippage(sig.EntryPrice, e.SlippageBps, isBuy)
					_, fee, _ := pf.apply(isBuy, execPx, qty)
					open[outcome.Symbol] = &openTrade{signal: sig, qty: qty, openedAt: fill.Ts}
					res.Details = append(res.Details, TradeDetail{
						Symbol: outcome.Symbol, Side: "open-" + sig.Direction,
						Price: execPx, Qty: qty, Fee: fee,
					})
				}
			}
		}

		equity := eq0
		for symbol, pf := range portfolios {
			equity += pf.equity(lastPrice[symbol])
		}
		res.EquityCurve = append(res.EquityCurve, equity)
	}

	for _, pf := range portfolios {
		res.RealizedPNL += pf.realized
		res.UnrealizedPNL += pf.unrealized
	}
	res.TotalPNL = res.RealizedPNL + res.UnrealizedPNL
	if res.Trades > 0 {
		res.WinRate = float64(res.Wins) / float64(res.Trades)
	}
	if len(res.EquityCurve) > 0 {
		res.MaxDDPct = maxDrawdownPct(append([]float64{eq0}, res.EquityCurve...))
		res.Sharpe = sharpe(res.EquityCurve)
	}

	if e.OutputPath != "" {
		if err := writeReport(e.OutputPath, res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func applySlippage(px, bps float64, isBuy bool) float64 {
	if bps == 0 {
		return px
	}
	m := 1 + bps/10000.0
	if isBuy {
		return px * m
	}
	return px / m
}

func maxDrawdownPct(series []float64) float64 {
	peak := series[0]
	mdd := 0.0
	for _, v := range series {
		if v > peak {
			peak = v
		}
		if peak == 0 {
			continue
		}
		dd := (peak - v) / peak
		if dd > mdd {
			mdd = dd
		}
	}
	return mdd * 100
}

func sharpe(equity []float64) float64 {
	if len(equity) < 2 {
		return 0
	}
	rets := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			continue
		}
		rets = append(rets, equity[i]/equity[i-1]-1)
	}
	if len(rets) == 0 {
		return 0
	}
	m := 0.0
	for _, r := range rets {
		m += r
	}
	m /= float64(len(rets))
	v := 0.0
	for _, r := range rets {
		d := r - m
		v += d * d
	}
	v /= float64(len(rets))
	sd := math.Sqrt(v)
	if sd == 0 {
		return 0
	}
	return m / sd * math.Sqrt(float64(len(rets)))
}

func writeReport(path string, r *Result) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

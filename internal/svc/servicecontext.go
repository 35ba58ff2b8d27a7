package svc

import (
	"fmt"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib" // register the "pgx" database/sql driver
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"hivemind-decide/internal/config"
	"hivemind-decide/internal/repo"
	"hivemind-decide/pkg/consensus"
	"hivemind-decide/pkg/correlation"
	"hivemind-decide/pkg/cost"
	"hivemind-decide/pkg/decisionlog"
	"hivemind-decide/pkg/executor"
	"hivemind-decide/pkg/journal"
	"hivemind-decide/pkg/regime"
	"hivemind-decide/pkg/risk"
	"hivemind-decide/pkg/sizing"
	"hivemind-decide/pkg/stopmanager"
	"hivemind-decide/pkg/venue"
	_ "hivemind-decide/pkg/venue/aster"
	_ "hivemind-decide/pkg/venue/bybit"
	_ "hivemind-decide/pkg/venue/hyperliquid"
)

// ServiceContext wires every domain package into the one dependency graph
// the decision loop drives: venue connections at the bottom, cost/regime/
// correlation providers above them, consensus in the middle, and risk/
// sizing/stops/execution/decision-logging consuming consensus's output.
type ServiceContext struct {
	Config config.Config

	DB sqlx.SqlConn // nil when Postgres.DataSource is unset (dry-run/backtest mode)

	Exchange *venue.Manager

	ATR      *cost.ATRProvider
	Fees     *cost.FeeProvider
	Slippage *cost.SlippageProvider
	HoldTime *cost.HoldTimeProvider

	Correlation *correlation.Provider
	Regime      *regime.Detector
	Consensus   *consensus.Detector
	Risk        *risk.Governor
	Stops       *stopmanager.Manager
	DecisionLog *decisionlog.Logger
	Executor    *executor.Executor

	// AlphaPool, ExchangeConnections, and ExchangeBalances have no
	// consumer-side interface to sit behind: callers use the concrete
	// type directly and must check for nil when Postgres.DataSource is
	// unset, the same way they'd check DB itself.
	AlphaPool           *repo.AlphaPoolAddressesRepo
	ExchangeConnections *repo.ExchangeConnectionsRepo
	ExchangeBalances    *repo.ExchangeBalancesRepo

	repos repoSet
}

// repoSet holds every internal/repo accessor built over DB, so
// NewServiceContext constructs each exactly once and hands it to whichever
// domain package consumes it. Fields are the consumer-side interface types,
// not the concrete *repo.XxxRepo types: assigning a concrete nil pointer
// into an interface-typed field produces a non-nil interface that panics
// on first use, so when DB is unset these fields must stay the untyped nil
// every dependent package's nil-check already expects.
type repoSet struct {
	decisionLogs  decisionlog.Store
	activeStops   stopmanager.Store
	traderPerf    sizing.TraderPerformanceSource
	traderCorr    correlation.Loader
	governorState risk.StateStore
	dailyPnL      risk.DailyPnLStore
	executionLogs executor.ExecutionLogStore
	candles       cost.CandleSource
	priceHistory  cost.PriceHistorySource
}

// NewServiceContext wires config into a fully constructed ServiceContext.
// c must already have every confkit.Section hydrated (config.Load does
// this via hydrateSections before returning).
func NewServiceContext(c config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{Config: c}

	if c.Postgres.DataSource != "" {
		sc.DB = sqlx.NewSqlConn("pgx", c.Postgres.DataSource)
		sc.AlphaPool = repo.NewAlphaPoolAddressesRepo(sc.DB)
		sc.ExchangeConnections = repo.NewExchangeConnectionsRepo(sc.DB)
		sc.ExchangeBalances = repo.NewExchangeBalancesRepo(sc.DB)
		marks1m := repo.NewMarks1mRepo(sc.DB)
		sc.repos = repoSet{
			decisionLogs:  repo.NewDecisionLogRepo(sc.DB),
			activeStops:   repo.NewActiveStopsRepo(sc.DB),
			traderPerf:    repo.NewTraderPerformanceRepo(sc.DB),
			traderCorr:    repo.NewTraderCorrRepo(sc.DB),
			governorState: repo.NewRiskGovernorStateRepo(sc.DB),
			dailyPnL:      repo.NewRiskDailyPnLRepo(sc.DB),
			executionLogs: repo.NewExecutionLogRepo(sc.DB),
			candles:       marks1m,
			priceHistory:  marks1m,
		}
	}

	if c.Exchange.Value == nil {
		return nil, fmt.Errorf("servicecontext: exchange config not hydrated (Exchange.File unset?)")
	}
	if c.IsTestEnv() {
		for _, provider := range c.Exchange.Value.Providers {
			if provider != nil {
				provider.Testnet = true
			}
		}
	}
	exchangeMgr, err := venue.NewManager(c.Exchange.Value)
	if err != nil {
		return nil, fmt.Errorf("servicecontext: build exchange manager: %w", err)
	}
	sc.Exchange = exchangeMgr

	if c.ATR.Value == nil {
		return nil, fmt.Errorf("servicecontext: atr config not hydrated (ATR.File unset?)")
	}
	costCfg := c.ATR.Value
	sc.ATR = cost.NewATRProvider(costCfg.ATR, sc.repos.candles, nil, sc.repos.priceHistory)
	sc.Fees = cost.NewFeeProvider(costCfg.FeeCacheTTL, nil)
	sc.Slippage = cost.NewSlippageProvider(costCfg.Slippage, nil)
	sc.HoldTime = cost.NewHoldTimeProvider(costCfg.HoldTime, nil)

	if c.Correlation.Value == nil {
		return nil, fmt.Errorf("servicecontext: correlation config not hydrated (Correlation.File unset?)")
	}
	sc.Correlation = correlation.NewProvider(*c.Correlation.Value, sc.repos.traderCorr)

	if c.Regime.Value == nil {
		return nil, fmt.Errorf("servicecontext: regime config not hydrated (Regime.File unset?)")
	}
	sc.Regime = regime.NewDetector(*c.Regime.Value, sc.ATR)

	costSource := &venueCostSource{exchange: sc.Exchange, fees: sc.Fees, slippage: sc.Slippage}
	stopSource := &atrStopSource{atr: sc.ATR}

	if c.Consensus.Value == nil {
		return nil, fmt.Errorf("servicecontext: consensus config not hydrated (Consensus.File unset?)")
	}
	sc.Consensus = consensus.NewDetector(*c.Consensus.Value, stopSource, costSource)

	if c.Risk.Value == nil {
		return nil, fmt.Errorf("servicecontext: risk config not hydrated (Risk.File unset?)")
	}
	sc.Risk = risk.NewGovernor(*c.Risk.Value, sc.repos.governorState)

	if c.Stops.Value == nil {
		return nil, fmt.Errorf("servicecontext: stops config not hydrated (Stops.File unset?)")
	}
	sc.Stops = stopmanager.NewManager(*c.Stops.Value, sc.repos.activeStops, sc.Exchange)

	sc.DecisionLog = decisionlog.NewLogger(sc.repos.decisionLogs).
		WithDump(journal.NewWriter(filepath.Join(c.DataPath, "decisions")))

	if c.Execution.Value == nil {
		return nil, fmt.Errorf("servicecontext: execution config not hydrated (Execution.File unset?)")
	}
	deps := executor.Deps{
		Venues:      sc.Exchange,
		Governor:    sc.Risk,
		DailyPnL:    sc.repos.dailyPnL,
		Performance: sc.repos.traderPerf,
		Regime:      sc.Regime,
		Costs:       costSource,
		Stops:       sc.Stops,
		Executions:  sc.repos.executionLogs,
	}
	sc.Executor = executor.New(*c.Execution.Value, deps)

	logx.Infow("servicecontext wired", logx.Field("defaultExchange", c.Exchange.Value.Default))

	return sc, nil
}

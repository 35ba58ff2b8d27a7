package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/zeromicro/go-zero/core/logx"

	"hivemind-decide/internal/cli"
	"hivemind-decide/internal/config"
	"hivemind-decide/internal/fillfeed"
	"hivemind-decide/internal/svc"
	"hivemind-decide/pkg/consensus"
	"hivemind-decide/pkg/decisionlog"
	"hivemind-decide/pkg/outbound"
	"hivemind-decide/pkg/stopmanager"
)

const healthCheckInterval = 10 * time.Minute

func main() {
	_ = godotenv.Load()
	flag.Parse()

	cfg := config.MustLoad()
	for _, line := range cli.ConfigSummaryLines(cfg) {
		logx.Info(line)
	}

	sc, err := svc.NewServiceContext(*cfg)
	if err != nil {
		logx.Errorf("decide: failed to build service context: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sc.Exchange.ConnectAll(ctx); err != nil {
		logx.Errorf("decide: one or more venues failed to connect: %v", err)
	}
	defer sc.Exchange.DisconnectAll(ctx)

	pub := outbound.NewPublisher(outboundConfigFromEnv())
	defer pub.Close()
	sc.Stops.OnTrigger = func(ctx context.Context, result stopmanager.TriggerResult) {
		publishOutcome(ctx, sc, pub, result)
	}

	go sc.Stops.Run(ctx)
	go runHealthCheckLoop(ctx, sc)

	subscriber := fillfeed.NewSubscriber(fillfeedConfigFromEnv())
	defer subscriber.Close()

	logx.Info("decide: listening for fills")
	err = subscriber.Run(ctx, func(fill consensus.Fill) {
		handleFill(ctx, sc, pub, fill)
	})
	if err != nil && ctx.Err() == nil {
		logx.Errorf("decide: fill subscriber exited: %v", err)
	}

	logx.Info("decide: shutting down")
	sc.Stops.Stop()
}

// handleFill feeds one fill into the consensus detector and, on a gated
// signal, logs the decision, publishes it downstream, and hands it to the
// executor.
func handleFill(ctx context.Context, sc *svc.ServiceContext, pub *outbound.Publisher, fill consensus.Fill) {
	atrPercentile := 0.5
	if analysis, err := sc.Regime.Detect(ctx, fill.Asset, sc.Config.Exchange.Value.Default); err == nil && analysis.VolatilityRatio != nil {
		atrPercentile = volatilityRatioToPercentile(*analysis.VolatilityRatio)
	}

	outcome, err := sc.Consensus.ProcessFill(ctx, fill, atrPercentile)
	if err != nil {
		logx.WithContext(ctx).Errorf("decide: process fill %s failed: %v", fill.FillID, err)
		return
	}
	if outcome == nil {
		return
	}

	record := decisionlog.FromOutcome(outcome, nil)
	id, err := sc.DecisionLog.Log(ctx, record)
	if err != nil {
		logx.WithContext(ctx).Errorf("decide: failed to log decision for %s: %v", outcome.Symbol, err)
	}

	if outcome.Signal == nil {
		return
	}

	decisionID := strconv.FormatInt(id, 10)
	if err := pub.PublishSignal(ctx, outbound.SignalFromOutcome(decisionID, outcome.Signal)); err != nil {
		logx.WithContext(ctx).Errorf("decide: publish signal %s failed: %v", outcome.Signal.ID, err)
	}

	result, err := sc.Executor.MaybeExecuteSignal(ctx, decisionID, outcome.Signal)
	if err != nil {
		logx.WithContext(ctx).Errorf("decide: execution of signal %s failed: %v", outcome.Signal.ID, err)
		return
	}
	if result != nil {
		logx.WithContext(ctx).Infof("decide: signal %s on %s -> %s", outcome.Signal.ID, outcome.Symbol, result.Status)
	}
}

// publishOutcome records a triggered stop's realized PnL/R against the
// decision log and publishes it downstream. Called from stopmanager's
// OnTrigger hook, once per stop the poll loop closes.
func publishOutcome(ctx context.Context, sc *svc.ServiceContext, pub *outbound.Publisher, result stopmanager.TriggerResult) {
	decisionID, err := strconv.ParseInt(result.DecisionID, 10, 64)
	if err != nil {
		logx.WithContext(ctx).Errorf("decide: outcome for %s has non-numeric decision id %q: %v", result.Symbol, result.DecisionID, err)
		return
	}

	if err := sc.DecisionLog.CloseOutcome(ctx, decisionID, result.PnL, result.RMultiple, time.Now()); err != nil {
		logx.WithContext(ctx).Errorf("decide: close outcome for decision %d failed: %v", decisionID, err)
	}

	env := outbound.OutcomeEnvelope{
		DecisionID: result.DecisionID,
		Symbol:     result.Symbol,
		PnL:        result.PnL,
		RMultiple:  result.RMultiple,
		Reason:     result.TriggerReason,
		ClosedAt:   time.Now(),
	}
	if err := pub.PublishOutcome(ctx, env); err != nil {
		logx.WithContext(ctx).Errorf("decide: publish outcome for decision %d failed: %v", decisionID, err)
	}
}

// volatilityRatioToPercentile maps a short/long volatility ratio onto the
// [0,1] window-sizing scale adaptiveWindowSeconds expects, clamping to the
// same low/high volatility-ratio thresholds the regime classifier uses by
// default (VolatilityLowMult 0.7, VolatilityHighMult 1.5).
func volatilityRatioToPercentile(ratio float64) float64 {
	const low, high = 0.7, 1.5
	if ratio <= low {
		return 0
	}
	if ratio >= high {
		return 1
	}
	return (ratio - low) / (high - low)
}

func runHealthCheckLoop(ctx context.Context, sc *svc.ServiceContext) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	runHealthCheck(ctx, sc)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runHealthCheck(ctx, sc)
		}
	}
}

// runHealthCheck pings every connected venue and records its balance and
// connection status for the audit tables, mirroring exchanges/manager.py's
// periodic reconnect/record-balance sweep.
func runHealthCheck(ctx context.Context, sc *svc.ServiceContext) {
	report := sc.Exchange.HealthCheck(ctx, 0)
	for venueName, health := range report.Venues {
		if sc.ExchangeConnections != nil {
			if err := sc.ExchangeConnections.RecordConnection(ctx, venueName, sc.Config.IsTestEnv(), health.Healthy, health.Error); err != nil {
				logx.WithContext(ctx).Errorf("decide: record connection for %s: %v", venueName, err)
			}
		}
		if !health.Healthy || sc.ExchangeBalances == nil {
			continue
		}
		balance, err := sc.Exchange.GetAggregatedBalance(ctx)
		if err != nil || balance == nil {
			continue
		}
		b, ok := balance.PerVenue[venueName]
		if !ok {
			continue
		}
		if err := sc.ExchangeBalances.RecordBalance(ctx, venueName, b.TotalEquity, b.AvailableBalance, b.MarginUsed, b.UnrealizedPnl); err != nil {
			logx.WithContext(ctx).Errorf("decide: record balance for %s: %v", venueName, err)
		}
	}
}

func fillfeedConfigFromEnv() fillfeed.Config {
	cfg := fillfeed.Config{
		Addr:     os.Getenv("FILLFEED_REDIS_ADDR"),
		Password: os.Getenv("FILLFEED_REDIS_PASSWORD"),
		Channel:  os.Getenv("FILLFEED_CHANNEL"),
	}
	if raw := os.Getenv("FILLFEED_REDIS_DB"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			cfg.DB = n
		}
	}
	return cfg
}

func outboundConfigFromEnv() outbound.Config {
	cfg := outbound.Config{
		Addr:           os.Getenv("OUTBOUND_REDIS_ADDR"),
		Password:       os.Getenv("OUTBOUND_REDIS_PASSWORD"),
		SignalChannel:  os.Getenv("OUTBOUND_SIGNAL_CHANNEL"),
		OutcomeChannel: os.Getenv("OUTBOUND_OUTCOME_CHANNEL"),
	}
	if raw := os.Getenv("OUTBOUND_REDIS_DB"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			cfg.DB = n
		}
	}
	return cfg
}

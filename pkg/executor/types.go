package executor

import (
	"context"
	"fmt"
	"time"

	"hivemind-decide/pkg/consensus"
	"hivemind-decide/pkg/regime"
	"hivemind-decide/pkg/risk"
	"hivemind-decide/pkg/sizing"
	"hivemind-decide/pkg/stopmanager"
	"hivemind-decide/pkg/venue"
)

// Config carries the execution knobs, verbatim defaults from executor.py's
// module-level constants plus portfolio config fields.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Exchange string `yaml:"exchange"` // fallback venue when a signal carries none

	MaxExposurePct float64 `yaml:"max_exposure_pct"` // default 0.10
	MaxPositionPct float64 `yaml:"max_position_pct"` // fixed-sizing fallback (Kelly disabled), default 0.02

	KellyEnabled  bool    `yaml:"kelly_enabled"`
	KellyFraction float64 `yaml:"kelly_fraction"` // 0 uses sizing.Config's own default

	RealExecutionEnabled bool `yaml:"real_execution_enabled"` // dry-run unless explicitly set

	AccountStateMaxRetries   int    `yaml:"account_state_max_retries"`  // default 3
	AccountStateBaseDelayRaw string `yaml:"account_state_base_delay"`   // e.g. "500ms"
	AccountStateBaseDelay    time.Duration `yaml:"-"`                   // default 500ms

	EVMinR float64 `yaml:"ev_min_r"` // default 0.20, reject after-sizing EV below this
}

func (c Config) withDefaults() Config {
	if c.MaxExposurePct == 0 {
		c.MaxExposurePct = 0.10
	}
	if c.MaxPositionPct == 0 {
		c.MaxPositionPct = 0.02
	}
	if c.AccountStateMaxRetries == 0 {
		c.AccountStateMaxRetries = 3
	}
	if c.AccountStateBaseDelay == 0 {
		c.AccountStateBaseDelay = 500 * time.Millisecond
	}
	if c.EVMinR == 0 {
		c.EVMinR = 0.20
	}
	return c
}

// normalise parses AccountStateBaseDelayRaw (set by YAML loading) into
// AccountStateBaseDelay.
func (c *Config) normalise() error {
	if c.AccountStateBaseDelayRaw == "" {
		return nil
	}
	d, err := time.ParseDuration(c.AccountStateBaseDelayRaw)
	if err != nil {
		return fmt.Errorf("execution config: invalid account_state_base_delay %q: %w", c.AccountStateBaseDelayRaw, err)
	}
	c.AccountStateBaseDelay = d
	return nil
}

// Status values for ExecutionResult.
const (
	StatusFilled    = "filled"
	StatusRejected  = "rejected"
	StatusFailed    = "failed"
	StatusSimulated = "simulated"
)

// ExecutionResult is the outcome of one execute-signal attempt.
type ExecutionResult struct {
	Status        string
	FillPrice     float64
	FillSize      float64
	ErrorMessage  string
	ExposureBefore float64
	ExposureAfter  float64
	PositionPct    float64
	KellySizing    *sizing.Result
	Exchange       string
}

// AccountSnapshot is the per-venue account state pulled at step 3, reused
// through the rest of the pipeline instead of being re-fetched (TOCTOU
// invariant by construction: no second fetch call site exists).
type AccountSnapshot struct {
	AccountValue      float64
	MarginUsed        float64
	MaintenanceMargin float64
	Positions         []venue.Position
}

// VenueActions is the subset of venue routing execution needs. Its method
// set mirrors pkg/venue.Manager's signatures exactly so a *venue.Manager
// satisfies it directly in production, as pkg/stopmanager's VenueActions
// does for the stop-loss/take-profit path.
type VenueActions interface {
	IsConnected(venueName string) bool
	FormatSymbol(symbol, venueName string) string
	GetAggregatedBalance(ctx context.Context) (*venue.AggregatedBalance, error)
	GetAllPositions(ctx context.Context) (*venue.AggregatedPositions, error)
	GetMarketPrice(ctx context.Context, symbol, venueName string) (float64, error)
	OpenPosition(ctx context.Context, venueName, symbol string, isBuy bool, usdSize float64, reduceOnly bool) (*venue.OrderResponse, error)
}

// StopRegistrar registers the stop-loss/take-profit bracket for a newly
// filled position. Satisfied directly by *stopmanager.Manager.
type StopRegistrar interface {
	RegisterStop(ctx context.Context, decisionID, symbol, direction string, entryPrice, entrySize, stopDistancePct float64, exchange string) (stopmanager.StopConfig, error)
}

// RegimeSource supplies the current market regime for a Kelly-fraction
// adjustment. Satisfied directly by *regime.Detector.
type RegimeSource interface {
	Detect(ctx context.Context, asset, exchangeName string) (regime.Analysis, error)
}

// ExecutionLogStore persists one execution attempt. Implemented by
// internal/repo's execution_logs.go (sqlx-backed).
type ExecutionLogStore interface {
	InsertExecution(ctx context.Context, record ExecutionLogRecord) error
}

// ExecutionLogRecord is one row of the execution_logs table.
type ExecutionLogRecord struct {
	DecisionID     string
	Exchange       string
	Symbol         string
	Side           string
	Size           float64
	Status         string
	FillPrice      float64
	FillSize       float64
	ErrorMessage   string
	PositionPct    float64
	ExposureBefore float64
	ExposureAfter  float64
	Kelly          *sizing.Result
	CreatedAt      time.Time
}

// Deps bundles the narrow collaborator interfaces an Executor needs,
// mirroring the teacher's constructor-injection style (pkg/venue.Manager's
// own NewManager, pkg/stopmanager.NewManager).
type Deps struct {
	Venues      VenueActions
	Governor    *risk.Governor
	DailyPnL    risk.DailyPnLStore
	Performance sizing.TraderPerformanceSource
	Regime      RegimeSource
	Costs       consensus.VenueCostSource
	Stops       StopRegistrar
	Executions  ExecutionLogStore
}

// Package stopmanager tracks stop-loss/take-profit levels for open
// positions. Native stops (placed on the exchange) are preferred for lower
// latency; the local poll loop falls back to market closes when a venue
// lacks native stop support, or when a stop is trailing or time-limited.
package stopmanager

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/sync/errgroup"

	"hivemind-decide/pkg/venue"
)

// Trigger reasons.
const (
	TriggerStopLoss   = "stop_loss"
	TriggerTakeProfit = "take_profit"
	TriggerTimeout    = "timeout"
	TriggerNativeStop = "native_stop"
	TriggerManual     = "manual"
)

// Status values for a stop's lifecycle.
const (
	StatusActive    = "active"
	StatusTriggered = "triggered"
	StatusCancelled = "cancelled"
)

// Config carries the stop-manager knobs, verbatim defaults from
// stop_manager.py's module-level constants.
type Config struct {
	PollIntervalRaw string        `yaml:"poll_interval"` // e.g. "5s"
	PollInterval    time.Duration `yaml:"-"`              // default 5s

	DefaultRR       float64 `yaml:"default_rr"`       // default 2.0 (reward:risk)
	MaxHoldHours    int     `yaml:"max_hold_hours"`   // default 168 (7 days)
	TrailingEnabled bool    `yaml:"trailing_enabled"` // default false
	UseNativeStops  bool    `yaml:"use_native_stops"` // default true
}

func (c Config) withDefaults() Config {
	if c.PollInterval == 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.DefaultRR == 0 {
		c.DefaultRR = 2.0
	}
	if c.MaxHoldHours == 0 {
		c.MaxHoldHours = 168
	}
	return c
}

// normalise parses PollIntervalRaw (set by YAML loading) into PollInterval.
func (c *Config) normalise() error {
	if c.PollIntervalRaw == "" {
		return nil
	}
	d, err := time.ParseDuration(c.PollIntervalRaw)
	if err != nil {
		return fmt.Errorf("stops config: invalid poll_interval %q: %w", c.PollIntervalRaw, err)
	}
	c.PollInterval = d
	return nil
}

// StopConfig is one open position's stop/take-profit configuration.
type StopConfig struct {
	DecisionID       string
	Symbol           string
	Direction        string // "long" or "short"
	EntryPrice       float64
	EntrySize        float64
	StopPrice        float64
	TakeProfitPrice  *float64
	TrailingEnabled  bool
	TrailDistancePct float64
	TimeoutAt        *time.Time
	CreatedAt        time.Time
	Exchange         string
	NativeStopPlaced bool
	Status           string
}

// TriggerResult is the outcome of one triggered stop.
type TriggerResult struct {
	DecisionID    string
	Symbol        string
	Direction     string
	TriggerReason string
	TriggerPrice  float64
	OrderSuccess  bool
	OrderError    string

	// PnL and RMultiple are computed against the entry price and the risk
	// distance (|EntryPrice-StopPrice|) registered for this stop, so every
	// trigger carries the same outcome metrics decisionlog.Record persists.
	PnL      float64
	RMultiple float64
}

func isLong(direction string) bool { return direction == "long" }

// calculateStopPrice derives the stop-loss price from entry price, direction,
// and distance.
func calculateStopPrice(entryPrice float64, direction string, stopDistancePct float64) float64 {
	if isLong(direction) {
		return entryPrice * (1 - stopDistancePct)
	}
	return entryPrice * (1 + stopDistancePct)
}

// calculateTakeProfit derives the take-profit price from the stop distance
// scaled by the reward:risk ratio. Returns nil when rrRatio <= 0 (no
// take-profit configured).
func calculateTakeProfit(entryPrice, stopPrice float64, direction string, rrRatio float64) *float64 {
	if rrRatio <= 0 {
		return nil
	}
	stopDistance := stopPrice - entryPrice
	if stopDistance < 0 {
		stopDistance = -stopDistance
	}
	profitDistance := stopDistance * rrRatio

	var tp float64
	if isLong(direction) {
		tp = entryPrice + profitDistance
	} else {
		tp = entryPrice - profitDistance
	}
	return &tp
}

// Store persists stop configurations across restarts. Implemented by
// internal/repo's active_stops.go (sqlx-backed).
type Store interface {
	SaveStop(ctx context.Context, cfg StopConfig) error
	ActiveStops(ctx context.Context) ([]StopConfig, error)
	UpdateTrailingStop(ctx context.Context, decisionID, symbol string, newStop float64) error
	MarkTriggered(ctx context.Context, decisionID, symbol, reason string, price float64) error
	CancelStop(ctx context.Context, decisionID, symbol string) (bool, error)
}

// VenueActions is the subset of venue routing a stop manager needs. Its
// method set mirrors pkg/venue.Manager's signatures exactly so a *venue.Manager
// satisfies it directly in production, while tests can supply a lightweight
// fake with no network or real adapters involved.
type VenueActions interface {
	IsConnected(venueName string) bool
	SupportsNativeStops(venueName string) bool
	FormatSymbol(symbol, venueName string) string
	SetStopLossTakeProfit(ctx context.Context, venueName, symbol string, isBuy bool, slPrice, tpPrice float64) error
	CancelStopOrders(ctx context.Context, venueName, symbol string) error
	GetPosition(ctx context.Context, symbol, venueName string) (*venue.Position, bool, error)
	GetMarketPrice(ctx context.Context, symbol, venueName string) (float64, error)
	ClosePosition(ctx context.Context, venueName, symbol string, size *float64) (*venue.OrderResponse, error)
}

// Manager monitors open positions and triggers exits when a stop, take
// profit, or timeout condition is met. Safe for concurrent use.
type Manager struct {
	cfg    Config
	store  Store
	venues VenueActions

	// OnTrigger, if set, is called once per triggered stop at the end of
	// every tick — the hook the decision logger and outbound publisher use
	// to record the closed trade's outcome without this package importing
	// either of them.
	OnTrigger func(ctx context.Context, result TriggerResult)

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewManager constructs a Manager.
func NewManager(cfg Config, store Store, venues VenueActions) *Manager {
	return &Manager{cfg: cfg.withDefaults(), store: store, venues: venues}
}

// RegisterStop computes stop/take-profit prices and a timeout for a newly
// opened position, attempts to place native exchange-side stops when
// configured and not trailing, and persists the result.
func (m *Manager) RegisterStop(ctx context.Context, decisionID, symbol, direction string, entryPrice, entrySize, stopDistancePct float64, exchange string) (StopConfig, error) {
	stopPrice := calculateStopPrice(entryPrice, direction, stopDistancePct)
	takeProfitPrice := calculateTakeProfit(entryPrice, stopPrice, direction, m.cfg.DefaultRR)
	timeout := time.Now().Add(time.Duration(m.cfg.MaxHoldHours) * time.Hour)

	trailingEnabled := m.cfg.TrailingEnabled
	nativePlaced := false
	if m.cfg.UseNativeStops && !trailingEnabled {
		nativePlaced = m.placeNativeStops(ctx, exchange, symbol, direction, stopPrice, takeProfitPrice, entrySize)
	}

	cfg := StopConfig{
		DecisionID: decisionID, Symbol: symbol, Direction: direction,
		EntryPrice: entryPrice, EntrySize: entrySize, StopPrice: stopPrice,
		TakeProfitPrice: takeProfitPrice, TrailingEnabled: trailingEnabled,
		TrailDistancePct: stopDistancePct, TimeoutAt: &timeout, CreatedAt: time.Now(),
		Exchange: exchange, NativeStopPlaced: nativePlaced, Status: StatusActive,
	}

	if m.store != nil {
		if err := m.store.SaveStop(ctx, cfg); err != nil {
			logx.WithContext(ctx).Errorf("stop manager: save stop %s: %v", decisionID, err)
		}
	}
	return cfg, nil
}

func (m *Manager) placeNativeStops(ctx context.Context, exchange, symbol, direction string, stopPrice float64, takeProfitPrice *float64, entrySize float64) bool {
	if !m.venues.IsConnected(exchange) {
		logx.WithContext(ctx).Infof("stop manager: %s not connected, using polling", exchange)
		return false
	}
	if !m.venues.SupportsNativeStops(exchange) {
		logx.WithContext(ctx).Infof("stop manager: %s doesn't support native stops", exchange)
		return false
	}

	tp := 0.0
	if takeProfitPrice != nil {
		tp = *takeProfitPrice
	}
	formatted := m.venues.FormatSymbol(symbol, exchange)
	if err := m.venues.SetStopLossTakeProfit(ctx, exchange, formatted, isLong(direction), stopPrice, tp); err != nil {
		logx.WithContext(ctx).Errorf("stop manager: native SL/TP failed on %s: %v", exchange, err)
		return false
	}
	return true
}

// checkConcurrency bounds how many positions' stop checks (market price
// fetches, native-stop disappearance checks, trigger-time close orders) run
// at once within one tick, so a slow or hung venue call on one symbol can't
// stall every other position's check.
const checkConcurrency = 8

type priceKey struct{ exchange, symbol string }

// CheckStops polls every active stop against current prices, triggering
// exits for stops that have hit their stop-loss, take-profit, timeout, or
// (for native stops) disappeared from the venue's position list. Distinct
// (exchange, symbol) price fetches and per-position evaluations both run
// concurrently, bounded by checkConcurrency.
func (m *Manager) CheckStops(ctx context.Context) ([]TriggerResult, error) {
	if m.store == nil {
		return nil, nil
	}
	stops, err := m.store.ActiveStops(ctx)
	if err != nil {
		return nil, fmt.Errorf("stop manager: load active stops: %w", err)
	}
	if len(stops) == 0 {
		return nil, nil
	}

	prices := m.fetchPrices(ctx, stops)

	now := time.Now()
	var mu sync.Mutex
	var triggered []TriggerResult

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(checkConcurrency)

	for _, stop := range stops {
		stop := stop
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					logx.WithContext(gctx).Errorf("stop manager: recovered panic checking %s: %v", stop.Symbol, r)
				}
			}()
			reason, triggerPrice := m.evaluateStop(gctx, stop, prices, now)
			if reason == "" {
				return nil
			}
			result := m.triggerStop(gctx, stop, reason, triggerPrice)
			mu.Lock()
			triggered = append(triggered, result)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // per-position checks never return an error; panics are recovered inside each check

	return triggered, nil
}

// fetchPrices fetches the current market price for every distinct
// (exchange, symbol) pair among stops that need one, concurrently.
func (m *Manager) fetchPrices(ctx context.Context, stops []StopConfig) map[priceKey]float64 {
	needed := map[priceKey]struct{}{}
	for _, stop := range stops {
		if stop.NativeStopPlaced && !stop.TrailingEnabled {
			continue
		}
		needed[priceKey{stop.Exchange, stop.Symbol}] = struct{}{}
	}

	var mu sync.Mutex
	prices := map[priceKey]float64{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(checkConcurrency)
	for k := range needed {
		k := k
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					logx.WithContext(gctx).Errorf("stop manager: recovered panic fetching price for %s: %v", k.symbol, r)
				}
			}()
			price, err := m.venues.GetMarketPrice(gctx, k.symbol, k.exchange)
			if err != nil || price <= 0 {
				return nil
			}
			mu.Lock()
			prices[k] = price
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return prices
}

// evaluateStop decides whether stop should trigger given the prefetched
// prices and the current time, returning its trigger reason ("" if none)
// and the price to record against the trigger.
func (m *Manager) evaluateStop(ctx context.Context, stop StopConfig, prices map[priceKey]float64, now time.Time) (reason string, triggerPrice float64) {
	price, havePrice := prices[priceKey{stop.Exchange, stop.Symbol}]
	triggerPrice = price

	switch {
	case stop.TimeoutAt != nil && !now.Before(*stop.TimeoutAt):
		if stop.NativeStopPlaced {
			m.cancelNativeStops(ctx, stop)
		}
		reason = TriggerTimeout

	case stop.NativeStopPlaced && !stop.TrailingEnabled:
		if m.positionClosed(ctx, stop) {
			reason = TriggerNativeStop
			if !havePrice {
				triggerPrice = 0
			}
		}

	case havePrice:
		if m.isStopHit(stop, price) {
			reason = TriggerStopLoss
		} else if stop.TakeProfitPrice != nil && m.isTakeProfitHit(stop, price) {
			reason = TriggerTakeProfit
		} else if stop.TrailingEnabled {
			m.maybeUpdateTrailing(ctx, stop, price)
		}
	}

	return reason, triggerPrice
}

func (m *Manager) cancelNativeStops(ctx context.Context, stop StopConfig) {
	formatted := m.venues.FormatSymbol(stop.Symbol, stop.Exchange)
	if err := m.venues.CancelStopOrders(ctx, stop.Exchange, formatted); err != nil {
		logx.WithContext(ctx).Errorf("stop manager: cancel native stops for %s: %v", stop.Symbol, err)
	}
}

func (m *Manager) positionClosed(ctx context.Context, stop StopConfig) bool {
	if !m.venues.IsConnected(stop.Exchange) {
		return false
	}
	formatted := m.venues.FormatSymbol(stop.Symbol, stop.Exchange)
	pos, exists, err := m.venues.GetPosition(ctx, formatted, stop.Exchange)
	if err != nil {
		logx.WithContext(ctx).Errorf("stop manager: check position %s: %v", stop.Symbol, err)
		return false
	}
	if !exists || pos == nil {
		return true
	}
	size, parseErr := strconv.ParseFloat(pos.Szi, 64)
	return parseErr != nil || size == 0
}

func (m *Manager) isStopHit(stop StopConfig, price float64) bool {
	if isLong(stop.Direction) {
		return price <= stop.StopPrice
	}
	return price >= stop.StopPrice
}

func (m *Manager) isTakeProfitHit(stop StopConfig, price float64) bool {
	if stop.TakeProfitPrice == nil {
		return false
	}
	if isLong(stop.Direction) {
		return price >= *stop.TakeProfitPrice
	}
	return price <= *stop.TakeProfitPrice
}

// maybeUpdateTrailing moves a trailing stop in the favorable direction only
// — it never loosens.
func (m *Manager) maybeUpdateTrailing(ctx context.Context, stop StopConfig, price float64) {
	newStop := calculateStopPrice(price, stop.Direction, stop.TrailDistancePct)

	favorable := (isLong(stop.Direction) && newStop > stop.StopPrice) ||
		(!isLong(stop.Direction) && newStop < stop.StopPrice)
	if !favorable {
		return
	}

	if m.store == nil {
		return
	}
	if err := m.store.UpdateTrailingStop(ctx, stop.DecisionID, stop.Symbol, newStop); err != nil {
		logx.WithContext(ctx).Errorf("stop manager: update trailing stop %s: %v", stop.DecisionID, err)
	}
}

func (m *Manager) triggerStop(ctx context.Context, stop StopConfig, reason string, triggerPrice float64) TriggerResult {
	logx.WithContext(ctx).Infof("stop manager: triggered %s %s on %s reason=%s price=%.2f",
		stop.Symbol, stop.Direction, stop.Exchange, reason, triggerPrice)

	formatted := m.venues.FormatSymbol(stop.Symbol, stop.Exchange)
	resp, err := m.venues.ClosePosition(ctx, stop.Exchange, formatted, nil)

	result := TriggerResult{
		DecisionID: stop.DecisionID, Symbol: stop.Symbol, Direction: stop.Direction,
		TriggerReason: reason, TriggerPrice: triggerPrice,
	}
	result.PnL, result.RMultiple = tradeOutcome(stop, triggerPrice)
	switch {
	case err != nil:
		result.OrderError = err.Error()
	case resp != nil:
		result.OrderSuccess = resp.Status == "ok"
		result.OrderError = resp.ErrorMessage
	}

	if m.store != nil {
		if err := m.store.MarkTriggered(ctx, stop.DecisionID, stop.Symbol, reason, triggerPrice); err != nil {
			logx.WithContext(ctx).Errorf("stop manager: mark triggered %s: %v", stop.DecisionID, err)
		}
	}
	return result
}

// tradeOutcome converts a trigger price into realized PnL (USD) and its
// R-multiple, using the risk distance the stop was registered with
// (|EntryPrice-StopPrice|) as the unit of R.
func tradeOutcome(stop StopConfig, triggerPrice float64) (pnl, rMultiple float64) {
	signedMove := triggerPrice - stop.EntryPrice
	if !isLong(stop.Direction) {
		signedMove = -signedMove
	}
	pnl = signedMove * stop.EntrySize

	risk := math.Abs(stop.EntryPrice - stop.StopPrice)
	if risk == 0 {
		return pnl, 0
	}
	return pnl, signedMove / risk
}

// CancelStop cancels an active stop, e.g. when a position is closed
// manually outside the poll loop.
func (m *Manager) CancelStop(ctx context.Context, decisionID, symbol string) (bool, error) {
	if m.store == nil {
		return false, nil
	}
	return m.store.CancelStop(ctx, decisionID, symbol)
}

// Run drives the poll loop until ctx is cancelled or Stop is called. A panic
// inside one check is recovered and logged so the loop never dies from a
// single bad tick.
func (m *Manager) Run(ctx context.Context) {
	m.mu.Lock()
	m.running = true
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Manager) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logx.WithContext(ctx).Errorf("stop manager: recovered panic in check loop: %v", r)
		}
	}()
	triggered, err := m.CheckStops(ctx)
	if err != nil {
		logx.WithContext(ctx).Errorf("stop manager: check loop error: %v", err)
		return
	}
	if len(triggered) > 0 {
		logx.WithContext(ctx).Infof("stop manager: %d stops triggered", len(triggered))
	}
	if m.OnTrigger != nil {
		for _, result := range triggered {
			m.OnTrigger(ctx, result)
		}
	}
}

// Stop halts the poll loop started by Run.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running && m.stopCh != nil {
		close(m.stopCh)
		m.running = false
	}
}

package venue

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"hivemind-decide/pkg/normalizer"
)

// rateLimitDelays staggers health-check probes so a sweep across every venue
// never exceeds any single venue's own rate limit. Bybit's public/private
// limits (10/20 req/s) are the tightest in the pack, hence the longer delay.
var rateLimitDelays = map[string]time.Duration{
	"hyperliquid": 300 * time.Millisecond,
	"aster":       500 * time.Millisecond,
	"bybit":       750 * time.Millisecond,
}

func defaultRateLimitDelay() time.Duration {
	if raw := strings.TrimSpace(os.Getenv("EXCHANGE_RATE_LIMIT_DELAY_MS")); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return 500 * time.Millisecond
}

// AggregatedBalance is account balance summed across every connected venue,
// USD-normalized via pkg/normalizer.
type AggregatedBalance struct {
	TotalEquityUSD      float64
	AvailableBalanceUSD float64
	MarginUsedUSD       float64
	UnrealizedPnlUSD    float64
	PerVenue            map[string]Balance
	Timestamp           time.Time
}

// AggregatedPositions is every open position across every connected venue.
type AggregatedPositions struct {
	Positions     []Position
	PerVenue      map[string][]Position
	TotalNotional float64
	Timestamp     time.Time
}

// VenueHealth is the health-check result for a single venue.
type VenueHealth struct {
	Connected bool
	Healthy   bool
	Error     string
}

// HealthReport is a point-in-time health sweep across every registered venue.
type HealthReport struct {
	Venues      map[string]VenueHealth
	Reconnected []string
	Timestamp   time.Time
}

// Manager owns a set of connected venue adapters and routes account queries
// and order execution to a named venue (or the configured default).
type Manager struct {
	mu         sync.RWMutex
	adapters   map[string]Adapter
	defaultVen string
	normalizer *normalizer.Normalizer
}

// NewManager builds every provider described by cfg. Providers are
// constructed but not connected — call ConnectAll or Connect to dial out.
func NewManager(cfg *Config) (*Manager, error) {
	adapters, err := cfg.BuildProviders()
	if err != nil {
		return nil, err
	}
	return &Manager{
		adapters:   adapters,
		defaultVen: cfg.Default,
		normalizer: normalizer.New(),
	}, nil
}

// Default returns the configured default venue name.
func (m *Manager) Default() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultVen
}

// SetDefault changes the venue used when callers omit a venue name.
func (m *Manager) SetDefault(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.adapters[name]; !ok {
		return fmt.Errorf("venue manager: venue %q not registered", name)
	}
	m.defaultVen = name
	return nil
}

// Adapter returns the adapter registered under name.
func (m *Manager) Adapter(name string) (Adapter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.adapters[name]
	return a, ok
}

// ConnectedVenues lists every venue currently reporting IsConnected() true.
func (m *Manager) ConnectedVenues() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.adapters))
	for name, a := range m.adapters {
		if a.IsConnected() {
			names = append(names, name)
		}
	}
	return names
}

func (m *Manager) resolve(name string) (string, Adapter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if name == "" {
		name = m.defaultVen
	}
	if name == "" {
		return "", nil, fmt.Errorf("venue manager: no venue specified and no default set")
	}
	a, ok := m.adapters[name]
	if !ok {
		return "", nil, fmt.Errorf("venue manager: venue %q not registered", name)
	}
	return name, a, nil
}

// Connect dials a single venue.
func (m *Manager) Connect(ctx context.Context, name string) error {
	_, a, err := m.resolve(name)
	if err != nil {
		return err
	}
	if err := a.Connect(ctx); err != nil {
		return fmt.Errorf("venue manager: connect %s: %w", name, err)
	}
	logx.WithContext(ctx).Infof("venue manager: connected %s", name)
	return nil
}

// ConnectAll dials every registered venue, continuing past individual
// failures and returning the first error encountered (if any) after all
// venues have been attempted.
func (m *Manager) ConnectAll(ctx context.Context) error {
	m.mu.RLock()
	names := make([]string, 0, len(m.adapters))
	for name := range m.adapters {
		names = append(names, name)
	}
	m.mu.RUnlock()

	var firstErr error
	for _, name := range names {
		if err := m.Connect(ctx, name); err != nil {
			logx.WithContext(ctx).Errorf("venue manager: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// DisconnectAll disconnects every registered venue.
func (m *Manager) DisconnectAll(ctx context.Context) {
	m.mu.RLock()
	adapters := make(map[string]Adapter, len(m.adapters))
	for name, a := range m.adapters {
		adapters[name] = a
	}
	m.mu.RUnlock()

	for name, a := range adapters {
		if err := a.Disconnect(ctx); err != nil {
			logx.WithContext(ctx).Errorf("venue manager: disconnect %s: %v", name, err)
		}
	}
}

// GetAggregatedBalance sums USD-normalized balances across every connected
// venue. Returns nil when no venue is connected or no balance was readable.
func (m *Manager) GetAggregatedBalance(ctx context.Context) (*AggregatedBalance, error) {
	m.mu.RLock()
	adapters := make(map[string]Adapter, len(m.adapters))
	for name, a := range m.adapters {
		adapters[name] = a
	}
	m.mu.RUnlock()

	if len(adapters) == 0 {
		return nil, nil
	}

	perVenue := make(map[string]Balance)
	agg := &AggregatedBalance{PerVenue: perVenue, Timestamp: time.Now()}

	for name, a := range adapters {
		if !a.IsConnected() {
			continue
		}
		balance, err := a.GetBalance(ctx)
		if err != nil {
			logx.WithContext(ctx).Errorf("venue manager: get balance %s: %v", name, err)
			continue
		}
		if balance == nil {
			continue
		}
		perVenue[name] = *balance
		normalized := m.normalizer.Balance(normalizer.BalanceInput{
			Currency:         balance.Currency,
			TotalEquity:      balance.TotalEquity,
			AvailableBalance: balance.AvailableBalance,
			MarginUsed:       balance.MarginUsed,
			UnrealizedPnl:    balance.UnrealizedPnl,
		})
		agg.TotalEquityUSD += normalized.TotalEquityUSD
		agg.AvailableBalanceUSD += normalized.AvailableBalanceUSD
		agg.MarginUsedUSD += normalized.MarginUsedUSD
		agg.UnrealizedPnlUSD += normalized.UnrealizedPnlUSD
	}

	if len(perVenue) == 0 {
		return nil, nil
	}
	return agg, nil
}

// GetAllPositions collects positions across every connected venue.
func (m *Manager) GetAllPositions(ctx context.Context) (*AggregatedPositions, error) {
	m.mu.RLock()
	adapters := make(map[string]Adapter, len(m.adapters))
	for name, a := range m.adapters {
		adapters[name] = a
	}
	m.mu.RUnlock()

	result := &AggregatedPositions{PerVenue: make(map[string][]Position), Timestamp: time.Now()}
	for name, a := range adapters {
		if !a.IsConnected() {
			continue
		}
		positions, err := a.GetPositions(ctx)
		if err != nil {
			logx.WithContext(ctx).Errorf("venue manager: get positions %s: %v", name, err)
			continue
		}
		result.PerVenue[name] = positions
		result.Positions = append(result.Positions, positions...)
		for _, p := range positions {
			notional, _ := strconv.ParseFloat(p.PositionValue, 64)
			result.TotalNotional += notional
		}
	}
	return result, nil
}

// GetPosition looks up a symbol on venue (or the default venue when empty).
func (m *Manager) GetPosition(ctx context.Context, symbol, venueName string) (*Position, bool, error) {
	_, a, err := m.resolve(venueName)
	if err != nil {
		return nil, false, err
	}
	if !a.IsConnected() {
		return nil, false, fmt.Errorf("venue manager: venue not connected")
	}
	return a.GetPosition(ctx, symbol)
}

// GetMarketPrice fetches the mid price on venue (or the default venue).
func (m *Manager) GetMarketPrice(ctx context.Context, symbol, venueName string) (float64, error) {
	_, a, err := m.resolve(venueName)
	if err != nil {
		return 0, err
	}
	return a.GetMarketPrice(ctx, symbol)
}

// GetMarketData fetches full market data on venue (or the default venue).
func (m *Manager) GetMarketData(ctx context.Context, symbol, venueName string) (*MarketData, error) {
	_, a, err := m.resolve(venueName)
	if err != nil {
		return nil, err
	}
	return a.GetMarketData(ctx, symbol)
}

// PlaceOrder routes an order to venue (or the default venue).
func (m *Manager) PlaceOrder(ctx context.Context, venueName string, order Order) (*OrderResponse, error) {
	name, a, err := m.resolve(venueName)
	if err != nil {
		return nil, err
	}
	resp, err := a.PlaceOrder(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("venue manager: place order on %s: %w", name, err)
	}
	return resp, nil
}

// OpenPosition routes a position-opening order to venue (or the default venue).
func (m *Manager) OpenPosition(ctx context.Context, venueName, symbol string, isBuy bool, usdSize float64, reduceOnly bool) (*OrderResponse, error) {
	name, a, err := m.resolve(venueName)
	if err != nil {
		return nil, err
	}
	resp, err := a.OpenPosition(ctx, symbol, isBuy, usdSize, reduceOnly)
	if err != nil {
		return nil, fmt.Errorf("venue manager: open position on %s: %w", name, err)
	}
	return resp, nil
}

// ClosePosition routes a close request to venue (or the default venue).
func (m *Manager) ClosePosition(ctx context.Context, venueName, symbol string, size *float64) (*OrderResponse, error) {
	name, a, err := m.resolve(venueName)
	if err != nil {
		return nil, err
	}
	resp, err := a.ClosePosition(ctx, symbol, size)
	if err != nil {
		return nil, fmt.Errorf("venue manager: close position on %s: %w", name, err)
	}
	return resp, nil
}

// SetLeverage routes a leverage update to venue (or the default venue).
func (m *Manager) SetLeverage(ctx context.Context, venueName, symbol string, isCross bool, leverage int) error {
	name, a, err := m.resolve(venueName)
	if err != nil {
		return err
	}
	asset, err := a.GetAssetIndex(ctx, symbol)
	if err != nil {
		return fmt.Errorf("venue manager: resolve asset index on %s: %w", name, err)
	}
	return a.UpdateLeverage(ctx, asset, isCross, leverage)
}

// FormatSymbol formats symbol for venue (or the default venue). Returns
// symbol unchanged if no venue is resolvable.
func (m *Manager) FormatSymbol(symbol, venueName string) string {
	_, a, err := m.resolve(venueName)
	if err != nil {
		return symbol
	}
	return a.FormatSymbol(symbol)
}

// SetStopLossTakeProfit places a native SL/TP bracket on venue (or the
// default venue). Used by pkg/stopmanager when registering a new position.
func (m *Manager) SetStopLossTakeProfit(ctx context.Context, venueName, symbol string, isBuy bool, slPrice, tpPrice float64) error {
	name, a, err := m.resolve(venueName)
	if err != nil {
		return err
	}
	if err := a.SetStopLossTakeProfit(ctx, symbol, isBuy, slPrice, tpPrice); err != nil {
		return fmt.Errorf("venue manager: set stop loss/take profit on %s: %w", name, err)
	}
	return nil
}

// CancelStopOrders cancels resting stop orders for symbol on venue (or the
// default venue).
func (m *Manager) CancelStopOrders(ctx context.Context, venueName, symbol string) error {
	name, a, err := m.resolve(venueName)
	if err != nil {
		return err
	}
	if err := a.CancelStopOrders(ctx, symbol); err != nil {
		return fmt.Errorf("venue manager: cancel stop orders on %s: %w", name, err)
	}
	return nil
}

// SupportsNativeStops reports whether venue (or the default venue) executes
// SL/TP server-side. Returns false if the venue can't be resolved.
func (m *Manager) SupportsNativeStops(venueName string) bool {
	_, a, err := m.resolve(venueName)
	if err != nil {
		return false
	}
	return a.SupportsNativeStops()
}

// IsConnected reports whether venue (or the default venue) is currently
// connected. Returns false if the venue can't be resolved.
func (m *Manager) IsConnected(venueName string) bool {
	_, a, err := m.resolve(venueName)
	if err != nil {
		return false
	}
	return a.IsConnected()
}

// NormalizeSymbol strips venue-specific suffixes, returning the canonical
// generic symbol (e.g. "BTC-PERP" -> "BTC").
func NormalizeSymbol(symbol string) string {
	clean := strings.ToUpper(symbol)
	for _, suffix := range []string{"-PERP", "/USDT", "/USD", "-USD", "USDT"} {
		clean = strings.ReplaceAll(clean, suffix, "")
	}
	return clean
}

// HealthCheck probes every registered venue's connectivity, attempting
// reconnection where needed, and staggers the probes using each venue's own
// rate-limit delay so a sweep never bursts past any single venue's limit.
// staggerOverride, when non-zero, replaces every per-venue delay.
func (m *Manager) HealthCheck(ctx context.Context, staggerOverride time.Duration) HealthReport {
	m.mu.RLock()
	names := make([]string, 0, len(m.adapters))
	adapters := make(map[string]Adapter, len(m.adapters))
	for name, a := range m.adapters {
		names = append(names, name)
		adapters[name] = a
	}
	m.mu.RUnlock()

	report := HealthReport{Venues: make(map[string]VenueHealth, len(names)), Timestamp: time.Now()}

	for i, name := range names {
		if i > 0 {
			delay := staggerOverride
			if delay == 0 {
				delay = rateLimitDelays[strings.ToLower(name)]
			}
			if delay == 0 {
				delay = defaultRateLimitDelay()
			}
			if delay > 0 {
				select {
				case <-ctx.Done():
					return report
				case <-time.After(delay):
				}
			}
		}

		a := adapters[name]
		status := VenueHealth{Connected: a.IsConnected()}

		if !status.Connected {
			logx.WithContext(ctx).Infof("venue manager: health check %s disconnected, attempting reconnect", name)
			if err := a.Connect(ctx); err != nil {
				status.Error = err.Error()
			} else {
				status.Connected = true
				report.Reconnected = append(report.Reconnected, name)
			}
		}

		if status.Connected {
			balance, err := a.GetBalance(ctx)
			switch {
			case err != nil:
				status.Error = err.Error()
				status.Healthy = false
				logx.WithContext(ctx).Errorf("venue manager: health check %s probe failed: %v", name, err)

				// Probe failure may indicate a stale connection; cycle it.
				if reErr := a.Disconnect(ctx); reErr == nil {
					if a.Connect(ctx) == nil {
						status.Connected = true
						status.Healthy = true
						status.Error = ""
						report.Reconnected = append(report.Reconnected, name)
					}
				}
			case balance == nil:
				status.Error = "balance returned nil"
				status.Healthy = false
			default:
				status.Healthy = true
			}
		}

		report.Venues[name] = status
	}

	return report
}

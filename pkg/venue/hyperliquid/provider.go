package hyperliquid

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"hivemind-decide/pkg/venue"
)

// clientAPI captures the subset of Client behavior the adapter depends on,
// so tests can substitute a mock without hitting the network.
type clientAPI interface {
	PlaceOrder(ctx context.Context, order venue.Order) (*venue.OrderResponse, error)
	CancelOrder(ctx context.Context, asset int, oid int64) error
	CancelAllOrders(ctx context.Context, asset int) error
	GetOpenOrders(ctx context.Context) ([]venue.OrderStatus, error)
	GetPositions(ctx context.Context) ([]venue.Position, error)
	ClosePosition(ctx context.Context, coin string) (*venue.OrderResponse, error)
	UpdateLeverage(ctx context.Context, asset int, isCross bool, leverage int) error
	GetAccountState(ctx context.Context) (*venue.AccountState, error)
	GetAccountValue(ctx context.Context) (float64, error)
	GetAssetIndex(ctx context.Context, coin string) (int, error)
	GetAssetInfo(ctx context.Context, coin string) (*AssetInfo, error)

	IOCMarket(ctx context.Context, coin string, isBuy bool, qty float64, slippage float64, reduceOnly bool) (*venue.OrderResponse, error)
	PlaceTriggerReduceOnly(ctx context.Context, coin string, isBuy bool, qty float64, triggerPrice float64, tpsl string) error
	FormatSize(ctx context.Context, coin string, qty float64) (string, error)
	FormatPrice(ctx context.Context, coin string, price float64) (string, error)
}

// Provider adapts Client to the venue.Adapter contract. Hyperliquid has no
// persistent connection to establish: Connect probes the account once and
// then sets a flag, Disconnect just clears it, so callers can treat every
// venue uniformly.
type Provider struct {
	client clientAPI

	mu        sync.RWMutex
	connected bool
}

var _ venue.Adapter = (*Provider)(nil)

// NewProvider constructs a Hyperliquid exchange adapter.
func NewProvider(privateKeyHex string, isTestnet bool, opts ...ClientOption) (*Provider, error) {
	client, err := NewClient(privateKeyHex, isTestnet, opts...)
	if err != nil {
		return nil, err
	}
	return &Provider{client: client}, nil
}

func init() {
	venue.RegisterProvider("hyperliquid", func(name string, cfg *venue.ProviderConfig) (venue.Adapter, error) {
		opts := []ClientOption{}
		if cfg.Timeout > 0 {
			opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
		}
		if cfg.VaultAddress != "" {
			opts = append(opts, WithVaultAddress(cfg.VaultAddress))
		}
		if cfg.MainAddress != "" {
			opts = append(opts, WithMainAddress(cfg.MainAddress))
		}
		return NewProvider(cfg.PrivateKey, cfg.Testnet, opts...)
	})
}

// Connect marks the adapter as usable. Hyperliquid is a stateless REST/WS
// API keyed by wallet signature, so there is no handshake to perform; Connect
// instead probes GetAccountValue and stays disconnected if that call fails.
func (p *Provider) Connect(ctx context.Context) error {
	if _, err := p.client.GetAccountValue(ctx); err != nil {
		return fmt.Errorf("hyperliquid: connect probe failed: %w", err)
	}
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	return nil
}

// Disconnect clears the connected flag. No sockets are held open.
func (p *Provider) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	return nil
}

// IsConnected reports the last Connect/Disconnect outcome.
func (p *Provider) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// GetBalance returns the account's USD-denominated balance snapshot.
func (p *Provider) GetBalance(ctx context.Context) (*venue.Balance, error) {
	state, err := p.client.GetAccountState(ctx)
	if err != nil {
		return nil, err
	}
	equity, err := strconv.ParseFloat(state.MarginSummary.AccountValue, 64)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: parse account value: %w", err)
	}
	marginUsed, err := strconv.ParseFloat(state.MarginSummary.TotalMarginUsed, 64)
	if err != nil {
		marginUsed = 0
	}
	var unrealized float64
	for _, pos := range state.AssetPositions {
		if v, err := strconv.ParseFloat(pos.UnrealizedPnl, 64); err == nil {
			unrealized += v
		}
	}
	return &venue.Balance{
		Currency:          "USD",
		TotalEquity:       equity,
		AvailableBalance:  equity - marginUsed,
		MarginUsed:        marginUsed,
		UnrealizedPnl:     unrealized,
		MaintenanceMargin: marginUsed,
	}, nil
}

// GetAccountState returns the raw clearinghouse state.
func (p *Provider) GetAccountState(ctx context.Context) (*venue.AccountState, error) {
	return p.client.GetAccountState(ctx)
}

// GetAccountValue returns parsed account value.
func (p *Provider) GetAccountValue(ctx context.Context) (float64, error) {
	return p.client.GetAccountValue(ctx)
}

// GetPositions fetches all open positions.
func (p *Provider) GetPositions(ctx context.Context) ([]venue.Position, error) {
	return p.client.GetPositions(ctx)
}

// GetPosition finds a single position by symbol.
func (p *Provider) GetPosition(ctx context.Context, symbol string) (*venue.Position, bool, error) {
	positions, err := p.client.GetPositions(ctx)
	if err != nil {
		return nil, false, err
	}
	for i := range positions {
		if strings.EqualFold(positions[i].Coin, symbol) {
			return &positions[i], true, nil
		}
	}
	return nil, false, nil
}

// GetMarketPrice returns the mid price (falling back to mark/oracle) for symbol.
func (p *Provider) GetMarketPrice(ctx context.Context, symbol string) (float64, error) {
	data, err := p.GetMarketData(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return data.Mid(), nil
}

// GetMarketData returns a point-in-time snapshot built from the cached asset
// directory (mid/mark/oracle prices are refreshed alongside szDecimals by
// refreshAssetDirectory). Hyperliquid's metaAndAssetCtxs feed does not carry
// a standalone funding rate per asset context in the fields this adapter
// retains, so FundingRate is left at zero here; callers needing funding use
// pkg/cost's funding provider, which queries the dedicated fundingHistory
// info endpoint directly.
func (p *Provider) GetMarketData(ctx context.Context, symbol string) (*venue.MarketData, error) {
	info, err := p.client.GetAssetInfo(ctx, symbol)
	if err != nil {
		return nil, err
	}
	mid, _ := strconv.ParseFloat(info.MidPx, 64)
	mark, _ := strconv.ParseFloat(info.MarkPx, 64)
	oracle, _ := strconv.ParseFloat(info.OraclePx, 64)
	last := mid
	if last == 0 {
		last = oracle
	}
	return &venue.MarketData{
		Symbol: symbol,
		Bid:    mid,
		Ask:    mid,
		Last:   last,
		Mark:   mark,
	}, nil
}

// PlaceOrder delegates to the underlying client.
func (p *Provider) PlaceOrder(ctx context.Context, order venue.Order) (*venue.OrderResponse, error) {
	return p.client.PlaceOrder(ctx, order)
}

// OpenPosition opens a position sized in USD notional via an IOC order that
// simulates market execution with a small slippage allowance.
func (p *Provider) OpenPosition(ctx context.Context, symbol string, isBuy bool, usdSize float64, reduceOnly bool) (*venue.OrderResponse, error) {
	if !(usdSize > 0) {
		return nil, fmt.Errorf("hyperliquid: usdSize must be positive")
	}
	price, err := p.GetMarketPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if !(price > 0) {
		return nil, fmt.Errorf("hyperliquid: no reference price for %s", symbol)
	}
	qty := usdSize / price
	return p.client.IOCMarket(ctx, symbol, isBuy, qty, 0, reduceOnly)
}

// ClosePosition flattens the position for symbol. When size is non-nil only
// that portion is closed (partial close); nil closes the full position.
func (p *Provider) ClosePosition(ctx context.Context, symbol string, size *float64) (*venue.OrderResponse, error) {
	if size == nil {
		return p.client.ClosePosition(ctx, symbol)
	}
	pos, found, err := p.GetPosition(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	signedSize, err := strconv.ParseFloat(pos.Szi, 64)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: parse position size: %w", err)
	}
	isBuy := signedSize < 0 // buy to cover a short, sell to reduce a long
	return p.client.IOCMarket(ctx, symbol, isBuy, *size, 0, true)
}

// CancelOrder cancels a single resting order.
func (p *Provider) CancelOrder(ctx context.Context, asset int, oid int64) error {
	return p.client.CancelOrder(ctx, asset, oid)
}

// CancelAllOrders cancels all resting orders for symbol.
func (p *Provider) CancelAllOrders(ctx context.Context, symbol string) error {
	idx, err := p.client.GetAssetIndex(ctx, symbol)
	if err != nil {
		return err
	}
	return p.client.CancelAllOrders(ctx, idx)
}

// GetOpenOrders returns currently resting orders.
func (p *Provider) GetOpenOrders(ctx context.Context) ([]venue.OrderStatus, error) {
	return p.client.GetOpenOrders(ctx)
}

// GetOrderStatus finds a single resting order by oid among open orders.
// Hyperliquid's info endpoint does not expose a dedicated by-id lookup for
// non-resting (filled/cancelled) orders through the surface this client
// retains, so a miss here means the order already left the resting set.
func (p *Provider) GetOrderStatus(ctx context.Context, oid int64) (*venue.OrderStatus, error) {
	orders, err := p.client.GetOpenOrders(ctx)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i].Order.Oid == oid {
			return &orders[i], nil
		}
	}
	return nil, nil
}

// SetStopLoss places a reduce-only stop-loss trigger order against the
// position's opposite side (isBuy here is the position's own side: a long
// needs a sell-side stop, so isBuy=false triggers a sell; callers pass the
// position side they want to protect).
func (p *Provider) SetStopLoss(ctx context.Context, symbol string, isBuy bool, triggerPrice float64) error {
	pos, found, err := p.GetPosition(ctx, symbol)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("hyperliquid: no open position for %s", symbol)
	}
	qty, err := positionAbsSize(pos)
	if err != nil {
		return err
	}
	return p.client.PlaceTriggerReduceOnly(ctx, symbol, !isBuy, qty, triggerPrice, "sl")
}

// SetTakeProfit places a reduce-only take-profit trigger order.
func (p *Provider) SetTakeProfit(ctx context.Context, symbol string, isBuy bool, triggerPrice float64) error {
	pos, found, err := p.GetPosition(ctx, symbol)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("hyperliquid: no open position for %s", symbol)
	}
	qty, err := positionAbsSize(pos)
	if err != nil {
		return err
	}
	return p.client.PlaceTriggerReduceOnly(ctx, symbol, !isBuy, qty, triggerPrice, "tp")
}

// SetStopLossTakeProfit places both legs. Hyperliquid has no atomic bracket
// endpoint in this client's surface, so this is the default sequential
// composition (stop first, then take-profit) rather than an override.
func (p *Provider) SetStopLossTakeProfit(ctx context.Context, symbol string, isBuy bool, slPrice, tpPrice float64) error {
	if err := p.SetStopLoss(ctx, symbol, isBuy, slPrice); err != nil {
		return err
	}
	return p.SetTakeProfit(ctx, symbol, isBuy, tpPrice)
}

// CancelStopOrders cancels all resting orders for symbol, which on
// Hyperliquid includes trigger (stop/take-profit) orders since they share
// the same resting-order book as limit orders.
func (p *Provider) CancelStopOrders(ctx context.Context, symbol string) error {
	return p.CancelAllOrders(ctx, symbol)
}

// UpdateLeverage adjusts leverage for the given asset index.
func (p *Provider) UpdateLeverage(ctx context.Context, asset int, isCross bool, leverage int) error {
	return p.client.UpdateLeverage(ctx, asset, isCross, leverage)
}

// GetAssetIndex resolves asset index for a symbol.
func (p *Provider) GetAssetIndex(ctx context.Context, coin string) (int, error) {
	return p.client.GetAssetIndex(ctx, coin)
}

// FormatSymbol only trims and upper-cases: Hyperliquid coin symbols (e.g.
// "BTC", "ETH") carry no suffix, unlike venues that require one
// (Bybit's "BTCUSDT") or a different base-asset convention.
func (p *Provider) FormatSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// FormatQuantity rounds qty to the asset's szDecimals.
func (p *Provider) FormatQuantity(ctx context.Context, symbol string, qty float64) (string, error) {
	return p.client.FormatSize(ctx, symbol, qty)
}

// FormatPrice rounds price to 5 significant figures, Hyperliquid's tick rule.
func (p *Provider) FormatPrice(ctx context.Context, symbol string, price float64) (string, error) {
	return p.client.FormatPrice(ctx, symbol, price)
}

// SupportsNativeStops is true: trigger orders execute server-side on
// Hyperliquid once placed.
func (p *Provider) SupportsNativeStops() bool {
	return true
}

// Name identifies this adapter for logging and per-venue configuration.
func (p *Provider) Name() string {
	return "hyperliquid"
}

func positionAbsSize(pos *venue.Position) (float64, error) {
	v, err := strconv.ParseFloat(pos.Szi, 64)
	if err != nil {
		return 0, fmt.Errorf("hyperliquid: parse position size: %w", err)
	}
	if v < 0 {
		v = -v
	}
	return v, nil
}

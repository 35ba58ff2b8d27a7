package bybit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"hivemind-decide/pkg/venue"
)

// clientAPI captures the Client surface the adapter depends on, so tests can
// substitute a mock without hitting the network.
type clientAPI interface {
	GetBalance(ctx context.Context) (*venue.Balance, error)
	GetPositions(ctx context.Context) ([]venue.Position, error)
	UpdateLeverage(ctx context.Context, symbol string, leverage int) error
	PlaceOrder(ctx context.Context, order venue.Order) (*venue.OrderResponse, error)
	CancelOrder(ctx context.Context, asset int, oid int64) error
	CancelAllOrders(ctx context.Context, symbol string) error
	GetOpenOrders(ctx context.Context) ([]venue.OrderStatus, error)
	GetOrderStatus(ctx context.Context, oid int64) (*venue.OrderStatus, error)
	GetMarketData(ctx context.Context, symbol string) (*venue.MarketData, error)
	SetStopLoss(ctx context.Context, symbol, stopPrice string) error
	SetTakeProfit(ctx context.Context, symbol, takeProfitPrice string) error
	SetStopLossTakeProfit(ctx context.Context, symbol, stopPrice, takeProfitPrice string) error
	CancelStopOrders(ctx context.Context, symbol string) error
	AssetIndex(ctx context.Context, symbol string) (int, error)
	FormatQuantity(ctx context.Context, symbol string, qty float64) (string, error)
	FormatPrice(ctx context.Context, symbol string, price float64) (string, error)
}

// Provider adapts Client to the venue.Adapter contract.
type Provider struct {
	client clientAPI

	mu        sync.RWMutex
	connected bool
}

var _ venue.Adapter = (*Provider)(nil)

// NewProvider constructs a Bybit exchange adapter.
func NewProvider(apiKey, apiSecret string, isTestnet bool, opts ...ClientOption) (*Provider, error) {
	client, err := NewClient(apiKey, apiSecret, isTestnet, opts...)
	if err != nil {
		return nil, err
	}
	return &Provider{client: client}, nil
}

func init() {
	venue.RegisterProvider("bybit", func(name string, cfg *venue.ProviderConfig) (venue.Adapter, error) {
		opts := []ClientOption{}
		if cfg.Timeout > 0 {
			opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
		}
		return NewProvider(cfg.APIKey, cfg.APISecret, cfg.Testnet, opts...)
	})
}

// Connect probes the wallet-balance endpoint to verify credentials are live.
func (p *Provider) Connect(ctx context.Context) error {
	if _, err := p.client.GetBalance(ctx); err != nil {
		return fmt.Errorf("bybit: connect probe failed: %w", err)
	}
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	return nil
}

func (p *Provider) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	return nil
}

func (p *Provider) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

func (p *Provider) GetBalance(ctx context.Context) (*venue.Balance, error) {
	return p.client.GetBalance(ctx)
}

// GetAccountState synthesizes the cross-venue AccountState shape from
// balance + positions, since Bybit has no single endpoint returning both.
func (p *Provider) GetAccountState(ctx context.Context) (*venue.AccountState, error) {
	balance, err := p.client.GetBalance(ctx)
	if err != nil {
		return nil, err
	}
	positions, err := p.client.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	summary := venue.MarginSummary{
		AccountValue:    strconv.FormatFloat(balance.TotalEquity, 'f', -1, 64),
		TotalMarginUsed: strconv.FormatFloat(balance.MarginUsed, 'f', -1, 64),
	}
	return &venue.AccountState{
		MarginSummary:      summary,
		CrossMarginSummary: venue.CrossMarginSummary(summary),
		AssetPositions:     positions,
	}, nil
}

func (p *Provider) GetAccountValue(ctx context.Context) (float64, error) {
	balance, err := p.client.GetBalance(ctx)
	if err != nil {
		return 0, err
	}
	return balance.TotalEquity, nil
}

func (p *Provider) GetPositions(ctx context.Context) ([]venue.Position, error) {
	return p.client.GetPositions(ctx)
}

func (p *Provider) GetPosition(ctx context.Context, symbol string) (*venue.Position, bool, error) {
	canonical := FormatSymbol(symbol)
	positions, err := p.client.GetPositions(ctx)
	if err != nil {
		return nil, false, err
	}
	for i := range positions {
		if strings.EqualFold(positions[i].Coin, canonical) {
			return &positions[i], true, nil
		}
	}
	return nil, false, nil
}

func (p *Provider) GetMarketPrice(ctx context.Context, symbol string) (float64, error) {
	data, err := p.client.GetMarketData(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return data.Mid(), nil
}

func (p *Provider) GetMarketData(ctx context.Context, symbol string) (*venue.MarketData, error) {
	return p.client.GetMarketData(ctx, symbol)
}

func (p *Provider) PlaceOrder(ctx context.Context, order venue.Order) (*venue.OrderResponse, error) {
	return p.client.PlaceOrder(ctx, order)
}

func (p *Provider) OpenPosition(ctx context.Context, symbol string, isBuy bool, usdSize float64, reduceOnly bool) (*venue.OrderResponse, error) {
	if !(usdSize > 0) {
		return nil, fmt.Errorf("bybit: usdSize must be positive")
	}
	price, err := p.GetMarketPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if !(price > 0) {
		return nil, fmt.Errorf("bybit: no reference price for %s", symbol)
	}
	idx, err := p.client.AssetIndex(ctx, symbol)
	if err != nil {
		return nil, err
	}
	qtyStr, err := p.client.FormatQuantity(ctx, symbol, usdSize/price)
	if err != nil {
		return nil, err
	}
	return p.client.PlaceOrder(ctx, venue.Order{
		Asset:      idx,
		IsBuy:      isBuy,
		Sz:         qtyStr,
		ReduceOnly: reduceOnly,
		OrderType:  venue.OrderType{Limit: &venue.LimitOrderType{TIF: "Ioc"}},
	})
}

func (p *Provider) ClosePosition(ctx context.Context, symbol string, size *float64) (*venue.OrderResponse, error) {
	pos, found, err := p.GetPosition(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	signedSize, err := strconv.ParseFloat(pos.Szi, 64)
	if err != nil {
		return nil, fmt.Errorf("bybit: parse position size: %w", err)
	}
	closeSize := signedSize
	if closeSize < 0 {
		closeSize = -closeSize
	}
	if size != nil {
		closeSize = *size
		if closeSize < 0 {
			closeSize = -closeSize
		}
	}

	idx, err := p.client.AssetIndex(ctx, symbol)
	if err != nil {
		return nil, err
	}
	qtyStr, err := p.client.FormatQuantity(ctx, symbol, closeSize)
	if err != nil {
		return nil, err
	}
	return p.client.PlaceOrder(ctx, venue.Order{
		Asset:      idx,
		IsBuy:      signedSize < 0,
		Sz:         qtyStr,
		ReduceOnly: true,
		OrderType:  venue.OrderType{Limit: &venue.LimitOrderType{TIF: "Ioc"}},
	})
}

func (p *Provider) CancelOrder(ctx context.Context, asset int, oid int64) error {
	return p.client.CancelOrder(ctx, asset, oid)
}

func (p *Provider) CancelAllOrders(ctx context.Context, symbol string) error {
	return p.client.CancelAllOrders(ctx, symbol)
}

func (p *Provider) GetOpenOrders(ctx context.Context) ([]venue.OrderStatus, error) {
	return p.client.GetOpenOrders(ctx)
}

func (p *Provider) GetOrderStatus(ctx context.Context, oid int64) (*venue.OrderStatus, error) {
	return p.client.GetOrderStatus(ctx, oid)
}

func (p *Provider) SetStopLoss(ctx context.Context, symbol string, isBuy bool, triggerPrice float64) error {
	price, err := p.client.FormatPrice(ctx, symbol, triggerPrice)
	if err != nil {
		return err
	}
	return p.client.SetStopLoss(ctx, symbol, price)
}

func (p *Provider) SetTakeProfit(ctx context.Context, symbol string, isBuy bool, triggerPrice float64) error {
	price, err := p.client.FormatPrice(ctx, symbol, triggerPrice)
	if err != nil {
		return err
	}
	return p.client.SetTakeProfit(ctx, symbol, price)
}

func (p *Provider) SetStopLossTakeProfit(ctx context.Context, symbol string, isBuy bool, slPrice, tpPrice float64) error {
	sl, err := p.client.FormatPrice(ctx, symbol, slPrice)
	if err != nil {
		return err
	}
	tp, err := p.client.FormatPrice(ctx, symbol, tpPrice)
	if err != nil {
		return err
	}
	return p.client.SetStopLossTakeProfit(ctx, symbol, sl, tp)
}

func (p *Provider) CancelStopOrders(ctx context.Context, symbol string) error {
	return p.client.CancelStopOrders(ctx, symbol)
}

// UpdateLeverage ignores isCross: Bybit's margin mode is a separate
// account-level switch (switch-isolated), not part of set-leverage, and
// one-way mode requires symmetric buy/sell leverage regardless of mode.
func (p *Provider) UpdateLeverage(ctx context.Context, asset int, isCross bool, leverage int) error {
	symbol, ok := p.symbolForAsset(ctx, asset)
	if !ok {
		return fmt.Errorf("bybit: unknown asset index %d", asset)
	}
	return p.client.UpdateLeverage(ctx, symbol, leverage)
}

func (p *Provider) symbolForAsset(ctx context.Context, asset int) (string, bool) {
	if c, ok := p.client.(*Client); ok {
		return c.symbolForIndex(asset)
	}
	return "", false
}

func (p *Provider) GetAssetIndex(ctx context.Context, coin string) (int, error) {
	return p.client.AssetIndex(ctx, coin)
}

func (p *Provider) FormatSymbol(symbol string) string { return FormatSymbol(symbol) }

func (p *Provider) FormatQuantity(ctx context.Context, symbol string, qty float64) (string, error) {
	return p.client.FormatQuantity(ctx, symbol, qty)
}

func (p *Provider) FormatPrice(ctx context.Context, symbol string, price float64) (string, error) {
	return p.client.FormatPrice(ctx, symbol, price)
}

func (p *Provider) SupportsNativeStops() bool { return true }
func (p *Provider) Name() string              { return "bybit" }

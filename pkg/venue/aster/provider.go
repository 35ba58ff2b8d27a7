package aster

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
// substitute a mock without hitting the network or doing real ECDSA signing.
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
	SetStopLoss(ctx context.Context, symbol, side, size, triggerPrice string) error
	SetTakeProfit(ctx context.Context, symbol, side, size, triggerPrice string) error
	CancelStopOrders(ctx context.Context, symbol string) error
	AssetIndex(ctx context.Context, symbol string) (int, error)
	FormatQuantity(ctx context.Context, symbol string, qty float64) (string, error)
	FormatPrice(ctx context.Context, symbol string, price float64) (string, error)
}

// Provider adapts Client to the venue.Adapter contract. Aster has no atomic
// bracket-order endpoint, so SetStopLossTakeProfit is composed from the two
// halves via venue.BaseAdapter rather than implemented directly.
type Provider struct {
	venue.BaseAdapter
	client clientAPI

	mu        sync.RWMutex
	connected bool
}

var _ venue.Adapter = (*Provider)(nil)

// NewProvider constructs an Aster exchange adapter.
func NewProvider(privateKeyHex string, isTestnet bool, opts ...ClientOption) (*Provider, error) {
	client, err := NewClient(privateKeyHex, isTestnet, opts...)
	if err != nil {
		return nil, err
	}
	p := &Provider{client: client}
	p.BaseAdapter = venue.BaseAdapter{
		SetStopLossFn:   p.setStopLoss,
		SetTakeProfitFn: p.setTakeProfit,
	}
	return p, nil
}

func init() {
	venue.RegisterProvider("aster", func(name string, cfg *venue.ProviderConfig) (venue.Adapter, error) {
		opts := []ClientOption{}
		if cfg.Timeout > 0 {
			opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
		}
		if cfg.MainAddress != "" {
			opts = append(opts, WithAddress(cfg.MainAddress))
		}
		return NewProvider(cfg.PrivateKey, cfg.Testnet, opts...)
	})
}

func (p *Provider) Connect(ctx context.Context) error {
	if _, err := p.client.GetBalance(ctx); err != nil {
		return fmt.Errorf("aster: connect probe failed: %w", err)
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

// GetAccountState synthesizes the cross-venue AccountState shape, since
// Aster has no single endpoint returning balance and positions together.
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
		return nil, fmt.Errorf("aster: usdSize must be positive")
	}
	price, err := p.GetMarketPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if !(price > 0) {
		return nil, fmt.Errorf("aster: no reference price for %s", symbol)
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
		return nil, fmt.Errorf("aster: parse position size: %w", err)
	}
	closeSize := absFloat(signedSize)
	if size != nil {
		closeSize = absFloat(*size)
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

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
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

// setStopLoss resolves the current position's size/side and places a
// reduce-only conditional stop order — satisfies venue.BaseAdapter's
// SetStopLossFn signature.
func (p *Provider) setStopLoss(ctx context.Context, symbol string, isBuy bool, triggerPrice float64) error {
	return p.conditionalOrder(ctx, symbol, triggerPrice, p.client.SetStopLoss)
}

func (p *Provider) setTakeProfit(ctx context.Context, symbol string, isBuy bool, triggerPrice float64) error {
	return p.conditionalOrder(ctx, symbol, triggerPrice, p.client.SetTakeProfit)
}

func (p *Provider) conditionalOrder(ctx context.Context, symbol string, triggerPrice float64, place func(ctx context.Context, symbol, side, size, triggerPrice string) error) error {
	pos, found, err := p.GetPosition(ctx, symbol)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("aster: no position for %s", symbol)
	}
	signedSize, err := strconv.ParseFloat(pos.Szi, 64)
	if err != nil {
		return fmt.Errorf("aster: parse position size: %w", err)
	}
	side := "sell"
	if signedSize < 0 {
		side = "buy"
	}
	sizeStr, err := p.client.FormatQuantity(ctx, symbol, absFloat(signedSize))
	if err != nil {
		return err
	}
	priceStr, err := p.client.FormatPrice(ctx, symbol, triggerPrice)
	if err != nil {
		return err
	}
	return place(ctx, symbol, side, sizeStr, priceStr)
}

func (p *Provider) SetStopLoss(ctx context.Context, symbol string, isBuy bool, triggerPrice float64) error {
	return p.setStopLoss(ctx, symbol, isBuy, triggerPrice)
}

func (p *Provider) SetTakeProfit(ctx context.Context, symbol string, isBuy bool, triggerPrice float64) error {
	return p.setTakeProfit(ctx, symbol, isBuy, triggerPrice)
}

func (p *Provider) CancelStopOrders(ctx context.Context, symbol string) error {
	return p.client.CancelStopOrders(ctx, symbol)
}

// UpdateLeverage ignores isCross: the reference API has no per-request
// margin-mode parameter on its leverage endpoint.
func (p *Provider) UpdateLeverage(ctx context.Context, asset int, isCross bool, leverage int) error {
	symbol, ok := p.symbolForAsset(asset)
	if !ok {
		return fmt.Errorf("aster: unknown asset index %d", asset)
	}
	return p.client.UpdateLeverage(ctx, symbol, leverage)
}

func (p *Provider) symbolForAsset(asset int) (string, bool) {
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

// SupportsNativeStops is false: SetStopLossTakeProfit is composed from two
// requests via venue.BaseAdapter, not executed atomically server-side.
func (p *Provider) SupportsNativeStops() bool { return false }
func (p *Provider) Name() string              { return "aster" }

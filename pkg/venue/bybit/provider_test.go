package bybit

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hivemind-decide/pkg/venue"
)

// mockClient is a stand-in clientAPI implementation for Provider-level tests,
// avoiding network calls and the concrete *Client's index-caching side effects.
type mockClient struct {
	balance    *venue.Balance
	balanceErr error

	positions    []venue.Position
	positionsErr error

	marketData    map[string]*venue.MarketData
	placeOrderErr error
	lastOrder     venue.Order

	assetIndex map[string]int
}

func (m *mockClient) GetBalance(ctx context.Context) (*venue.Balance, error) {
	return m.balance, m.balanceErr
}
func (m *mockClient) GetPositions(ctx context.Context) ([]venue.Position, error) {
	return m.positions, m.positionsErr
}
func (m *mockClient) UpdateLeverage(ctx context.Context, symbol string, leverage int) error {
	return nil
}
func (m *mockClient) PlaceOrder(ctx context.Context, order venue.Order) (*venue.OrderResponse, error) {
	m.lastOrder = order
	if m.placeOrderErr != nil {
		return nil, m.placeOrderErr
	}
	return &venue.OrderResponse{Status: "ok"}, nil
}
func (m *mockClient) CancelOrder(ctx context.Context, asset int, oid int64) error { return nil }
func (m *mockClient) CancelAllOrders(ctx context.Context, symbol string) error    { return nil }
func (m *mockClient) GetOpenOrders(ctx context.Context) ([]venue.OrderStatus, error) {
	return nil, nil
}
func (m *mockClient) GetOrderStatus(ctx context.Context, oid int64) (*venue.OrderStatus, error) {
	return nil, nil
}
func (m *mockClient) GetMarketData(ctx context.Context, symbol string) (*venue.MarketData, error) {
	canonical := FormatSymbol(symbol)
	if data, ok := m.marketData[canonical]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("no market data for %s", canonical)
}
func (m *mockClient) SetStopLoss(ctx context.Context, symbol, stopPrice string) error { return nil }
func (m *mockClient) SetTakeProfit(ctx context.Context, symbol, takeProfitPrice string) error {
	return nil
}
func (m *mockClient) SetStopLossTakeProfit(ctx context.Context, symbol, stopPrice, takeProfitPrice string) error {
	return nil
}
func (m *mockClient) CancelStopOrders(ctx context.Context, symbol string) error { return nil }
func (m *mockClient) AssetIndex(ctx context.Context, symbol string) (int, error) {
	if idx, ok := m.assetIndex[FormatSymbol(symbol)]; ok {
		return idx, nil
	}
	return 0, fmt.Errorf("unknown symbol %s", symbol)
}
func (m *mockClient) FormatQuantity(ctx context.Context, symbol string, qty float64) (string, error) {
	return fmt.Sprintf("%.3f", qty), nil
}
func (m *mockClient) FormatPrice(ctx context.Context, symbol string, price float64) (string, error) {
	return fmt.Sprintf("%.1f", price), nil
}

func newTestProvider(m *mockClient) *Provider {
	return &Provider{client: m}
}

func TestProviderConnectProbesBalance(t *testing.T) {
	m := &mockClient{balance: &venue.Balance{Currency: "USDT", TotalEquity: 1000}}
	p := newTestProvider(m)

	assert.False(t, p.IsConnected())
	require.NoError(t, p.Connect(context.Background()))
	assert.True(t, p.IsConnected())

	require.NoError(t, p.Disconnect(context.Background()))
	assert.False(t, p.IsConnected())
}

func TestProviderConnectFailsOnBalanceError(t *testing.T) {
	m := &mockClient{balanceErr: fmt.Errorf("boom")}
	p := newTestProvider(m)

	err := p.Connect(context.Background())
	assert.Error(t, err)
	assert.False(t, p.IsConnected())
}

func TestProviderGetAccountState(t *testing.T) {
	m := &mockClient{
		balance:   &venue.Balance{TotalEquity: 5000, MarginUsed: 100},
		positions: []venue.Position{{Coin: "BTCUSDT"}},
	}
	p := newTestProvider(m)

	state, err := p.GetAccountState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5000", state.MarginSummary.AccountValue)
	assert.Equal(t, "100", state.MarginSummary.TotalMarginUsed)
	assert.Len(t, state.AssetPositions, 1)
}

func TestProviderGetPositionFindsMatch(t *testing.T) {
	m := &mockClient{positions: []venue.Position{{Coin: "BTCUSDT"}, {Coin: "ETHUSDT"}}}
	p := newTestProvider(m)

	pos, found, err := p.GetPosition(context.Background(), "eth")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ETHUSDT", pos.Coin)

	_, found, err = p.GetPosition(context.Background(), "SOL")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestProviderOpenPositionComputesQtyFromUSDSize(t *testing.T) {
	m := &mockClient{
		marketData: map[string]*venue.MarketData{"BTCUSDT": {Bid: 59990, Ask: 60010}},
		assetIndex: map[string]int{"BTCUSDT": 3},
	}
	p := newTestProvider(m)

	resp, err := p.OpenPosition(context.Background(), "BTC", true, 6000, false)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, m.lastOrder.Asset)
	assert.Equal(t, "0.100", m.lastOrder.Sz)
	assert.True(t, m.lastOrder.IsBuy)
}

func TestProviderOpenPositionRejectsNonPositiveSize(t *testing.T) {
	p := newTestProvider(&mockClient{})
	_, err := p.OpenPosition(context.Background(), "BTC", true, 0, false)
	assert.Error(t, err)
}

func TestProviderClosePositionUsesOppositeSideAndReduceOnly(t *testing.T) {
	m := &mockClient{
		positions:  []venue.Position{{Coin: "BTCUSDT", Szi: "0.5"}},
		assetIndex: map[string]int{"BTCUSDT": 1},
	}
	p := newTestProvider(m)

	resp, err := p.ClosePosition(context.Background(), "BTC", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.False(t, m.lastOrder.IsBuy) // long position closes with a sell.
	assert.True(t, m.lastOrder.ReduceOnly)
	assert.Equal(t, "0.500", m.lastOrder.Sz)
}

func TestProviderClosePositionReturnsNilWhenNoPosition(t *testing.T) {
	p := newTestProvider(&mockClient{positions: nil})
	resp, err := p.ClosePosition(context.Background(), "BTC", nil)
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestProviderClosePositionHonorsPartialSize(t *testing.T) {
	m := &mockClient{
		positions:  []venue.Position{{Coin: "ETHUSDT", Szi: "-4"}},
		assetIndex: map[string]int{"ETHUSDT": 2},
	}
	p := newTestProvider(m)

	partial := 1.5
	resp, err := p.ClosePosition(context.Background(), "ETH", &partial)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, m.lastOrder.IsBuy) // short position closes with a buy.
	assert.Equal(t, "1.500", m.lastOrder.Sz)
}

func TestProviderSetStopLossTakeProfitFormatsPrices(t *testing.T) {
	m := &mockClient{}
	p := newTestProvider(m)

	err := p.SetStopLossTakeProfit(context.Background(), "BTC", true, 58000, 65000)
	assert.NoError(t, err)
}

func TestProviderSupportsNativeStopsAndName(t *testing.T) {
	p := newTestProvider(&mockClient{})
	assert.True(t, p.SupportsNativeStops())
	assert.Equal(t, "bybit", p.Name())
}

func TestProviderFormatSymbolDelegates(t *testing.T) {
	p := newTestProvider(&mockClient{})
	assert.Equal(t, "BTCUSDT", p.FormatSymbol("btc"))
}

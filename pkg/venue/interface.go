package venue

import "context"

// Adapter is the uniform contract every venue (Hyperliquid, Bybit, Aster, ...)
// must satisfy. No method panics or throws across this boundary: every
// fallible call returns a typed result or a (possibly wrapped) error from
// pkg/outcome.
type Adapter interface {
	// Connection lifecycle.
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	// Account state.
	GetBalance(ctx context.Context) (*Balance, error)
	GetAccountState(ctx context.Context) (*AccountState, error)
	GetAccountValue(ctx context.Context) (float64, error)

	// Positions.
	GetPositions(ctx context.Context) ([]Position, error)
	GetPosition(ctx context.Context, symbol string) (*Position, bool, error)

	// Market data.
	GetMarketPrice(ctx context.Context, symbol string) (float64, error)
	GetMarketData(ctx context.Context, symbol string) (*MarketData, error)

	// Order lifecycle.
	PlaceOrder(ctx context.Context, order Order) (*OrderResponse, error)
	OpenPosition(ctx context.Context, symbol string, isBuy bool, usdSize float64, reduceOnly bool) (*OrderResponse, error)
	ClosePosition(ctx context.Context, symbol string, size *float64) (*OrderResponse, error)
	CancelOrder(ctx context.Context, asset int, oid int64) error
	CancelAllOrders(ctx context.Context, symbol string) error
	GetOpenOrders(ctx context.Context) ([]OrderStatus, error)
	GetOrderStatus(ctx context.Context, oid int64) (*OrderStatus, error)

	// Stops (see pkg/stopmanager for the orchestration around these).
	SetStopLoss(ctx context.Context, symbol string, isBuy bool, triggerPrice float64) error
	SetTakeProfit(ctx context.Context, symbol string, isBuy bool, triggerPrice float64) error
	SetStopLossTakeProfit(ctx context.Context, symbol string, isBuy bool, slPrice, tpPrice float64) error
	CancelStopOrders(ctx context.Context, symbol string) error

	// Account configuration.
	UpdateLeverage(ctx context.Context, asset int, isCross bool, leverage int) error
	GetAssetIndex(ctx context.Context, coin string) (int, error)

	// Symbol/quantity/price formatting, each venue enforces its own rules
	// (HL: 5 significant figures; Bybit/Aster: per-symbol tick tables).
	FormatSymbol(symbol string) string
	FormatQuantity(ctx context.Context, symbol string, qty float64) (string, error)
	FormatPrice(ctx context.Context, symbol string, price float64) (string, error)

	// SupportsNativeStops reports whether SetStopLossTakeProfit executes
	// server-side. Defaults to true; venues without the capability override it.
	SupportsNativeStops() bool

	// Name identifies the venue for logging, persistence keys, and per-venue
	// configuration lookups (rate-limit delays, default correlation, etc).
	Name() string
}

// BaseAdapter supplies the default bracket-order implementation
// (SetStopLossTakeProfit calling the two halves) so venue adapters only need
// to implement SetStopLoss/SetTakeProfit themselves. Embed it in a concrete
// adapter and it satisfies the remaining method via promotion.
type BaseAdapter struct {
	SetStopLossFn   func(ctx context.Context, symbol string, isBuy bool, price float64) error
	SetTakeProfitFn func(ctx context.Context, symbol string, isBuy bool, price float64) error
}

// SetStopLossTakeProfit is the default atomic-bracket implementation: it
// calls SetStopLoss then SetTakeProfit. A venue with a genuine atomic bracket
// endpoint should override this method on its own adapter type instead of
// embedding BaseAdapter.
func (b BaseAdapter) SetStopLossTakeProfit(ctx context.Context, symbol string, isBuy bool, slPrice, tpPrice float64) error {
	if err := b.SetStopLossFn(ctx, symbol, isBuy, slPrice); err != nil {
		return err
	}
	return b.SetTakeProfitFn(ctx, symbol, isBuy, tpPrice)
}

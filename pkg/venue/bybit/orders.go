package bybit

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"hivemind-decide/pkg/venue"
)

type placeOrderResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

// PlaceOrder submits a limit or market order. order.Asset is resolved back to
// a symbol via the index the adapter assigned in AssetIndex/ensureSymbolInfo.
func (c *Client) PlaceOrder(ctx context.Context, order venue.Order) (*venue.OrderResponse, error) {
	symbol, ok := c.symbolForIndex(order.Asset)
	if !ok {
		return nil, fmt.Errorf("bybit: unknown asset index %d", order.Asset)
	}

	side := "Sell"
	if order.IsBuy {
		side = "Buy"
	}
	orderType := "Limit"
	tif := "GTC"
	if order.OrderType.Limit != nil {
		tif = tifFromHL(order.OrderType.Limit.TIF)
	} else {
		orderType = "Market"
	}

	body := map[string]interface{}{
		"category":    category,
		"symbol":      symbol,
		"side":        side,
		"orderType":   orderType,
		"qty":         order.Sz,
		"positionIdx": 0, // one-way mode only.
		"timeInForce": tif,
	}
	if orderType == "Limit" {
		body["price"] = order.LimitPx
	}
	if order.ReduceOnly {
		body["reduceOnly"] = true
	}
	cloid := order.Cloid
	if cloid == "" {
		cloid = uuid.NewString()
	}
	body["orderLinkId"] = cloid

	var result placeOrderResult
	if err := c.post(ctx, "/v5/order/create", body, &result); err != nil {
		if apiErr, ok := err.(*APIError); ok {
			return &venue.OrderResponse{Status: "err", ErrorMessage: apiErr.Message}, nil
		}
		return nil, err
	}

	oid, _ := strconv.ParseInt(result.OrderID, 10, 64)
	return &venue.OrderResponse{
		Status: "ok",
		Response: venue.OrderResponseData{
			Type: "order",
			Data: venue.OrderResponseDataDetail{
				Statuses: []venue.OrderStatusResponse{{Resting: &venue.RestingOrder{Oid: oid}}},
			},
		},
	}, nil
}

func tifFromHL(tif string) string {
	switch tif {
	case "Ioc":
		return "IOC"
	case "Alo":
		return "PostOnly"
	default:
		return "GTC"
	}
}

// CancelOrder cancels a single order by exchange order id.
func (c *Client) CancelOrder(ctx context.Context, asset int, oid int64) error {
	symbol, ok := c.symbolForIndex(asset)
	if !ok {
		return fmt.Errorf("bybit: unknown asset index %d", asset)
	}
	body := map[string]interface{}{
		"category": category,
		"symbol":   symbol,
		"orderId":  strconv.FormatInt(oid, 10),
	}
	return c.post(ctx, "/v5/order/cancel", body, nil)
}

// CancelAllOrders cancels every resting order for symbol (or for every symbol
// in category when symbol is empty).
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) error {
	body := map[string]interface{}{"category": category}
	if symbol != "" {
		body["symbol"] = FormatSymbol(symbol)
	}
	return c.post(ctx, "/v5/order/cancel-all", body, nil)
}

type openOrderList struct {
	List []struct {
		Symbol      string `json:"symbol"`
		Side        string `json:"side"`
		Price       string `json:"price"`
		Qty         string `json:"qty"`
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
		OrderStatus string `json:"orderStatus"`
		CreatedTime string `json:"createdTime"`
	} `json:"list"`
}

// GetOpenOrders lists resting orders across the linear-perpetual category.
func (c *Client) GetOpenOrders(ctx context.Context) ([]venue.OrderStatus, error) {
	params := url.Values{"category": {category}, "settleCoin": {"USDT"}}
	var result openOrderList
	if err := c.get(ctx, "/v5/order/realtime", params, &result); err != nil {
		return nil, err
	}

	statuses := make([]venue.OrderStatus, 0, len(result.List))
	for _, item := range result.List {
		oid, _ := strconv.ParseInt(item.OrderID, 10, 64)
		created, _ := strconv.ParseInt(item.CreatedTime, 10, 64)
		statuses = append(statuses, venue.OrderStatus{
			Order: venue.OrderInfo{
				Coin:      item.Symbol,
				Side:      strings.ToLower(item.Side),
				LimitPx:   item.Price,
				Sz:        item.Qty,
				Oid:       oid,
				Timestamp: created,
				Cloid:     item.OrderLinkID,
			},
			Status:          strings.ToLower(item.OrderStatus),
			StatusTimestamp: created,
		})
	}
	return statuses, nil
}

// GetOrderStatus fetches order history for a single order id.
func (c *Client) GetOrderStatus(ctx context.Context, oid int64) (*venue.OrderStatus, error) {
	params := url.Values{"category": {category}, "orderId": {strconv.FormatInt(oid, 10)}}
	var result openOrderList
	if err := c.get(ctx, "/v5/order/history", params, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, nil
	}
	item := result.List[0]
	created, _ := strconv.ParseInt(item.CreatedTime, 10, 64)
	return &venue.OrderStatus{
		Order: venue.OrderInfo{
			Coin:      item.Symbol,
			Side:      strings.ToLower(item.Side),
			LimitPx:   item.Price,
			Sz:        item.Qty,
			Oid:       oid,
			Timestamp: created,
			Cloid:     item.OrderLinkID,
		},
		Status:          strings.ToLower(item.OrderStatus),
		StatusTimestamp: created,
	}, nil
}

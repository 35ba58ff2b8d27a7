package aster

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"hivemind-decide/pkg/venue"
)

type orderResultData struct {
	OrderID       string `json:"orderId"`
	Status        string `json:"status"`
	AvgPrice      string `json:"avgPrice"`
	FilledSize    string `json:"filledSize"`
	FilledPercent string `json:"filledPercent"`
}

// PlaceOrder submits a limit or market order. order.Asset is resolved back
// to a symbol via the index assigned in AssetIndex.
func (c *Client) PlaceOrder(ctx context.Context, order venue.Order) (*venue.OrderResponse, error) {
	symbol, ok := c.symbolForIndex(order.Asset)
	if !ok {
		return nil, fmt.Errorf("aster: unknown asset index %d", order.Asset)
	}

	side := "sell"
	if order.IsBuy {
		side = "buy"
	}
	body := map[string]interface{}{
		"symbol":     symbol,
		"side":       side,
		"size":       order.Sz,
		"reduceOnly": order.ReduceOnly,
	}
	if order.OrderType.Limit != nil && order.LimitPx != "" {
		body["type"] = "limit"
		body["price"] = order.LimitPx
		body["timeInForce"] = tifFromHL(order.OrderType.Limit.TIF)
	} else {
		body["type"] = "market"
		body["timeInForce"] = "IOC"
	}

	var data orderResultData
	if err := c.post(ctx, "/v1/private/orders", body, &data); err != nil {
		if apiErr, ok := err.(*APIError); ok {
			return &venue.OrderResponse{Status: "err", ErrorMessage: apiErr.Message}, nil
		}
		return nil, err
	}
	return parseOrderResponse(data), nil
}

func parseOrderResponse(data orderResultData) *venue.OrderResponse {
	oid, _ := strconv.ParseInt(data.OrderID, 10, 64)
	switch data.Status {
	case "filled", "partiallyFilled":
		avgPx, _ := strconv.ParseFloat(data.AvgPrice, 64)
		return &venue.OrderResponse{
			Status: "ok",
			Response: venue.OrderResponseData{
				Type: "order",
				Data: venue.OrderResponseDataDetail{
					Statuses: []venue.OrderStatusResponse{{
						Filled: &venue.FilledOrder{
							Oid:     oid,
							TotalSz: data.FilledSize,
							AvgPx:   strconv.FormatFloat(avgPx, 'f', -1, 64),
						},
					}},
				},
			},
		}
	case "pending", "":
		return &venue.OrderResponse{
			Status: "ok",
			Response: venue.OrderResponseData{
				Type: "order",
				Data: venue.OrderResponseDataDetail{
					Statuses: []venue.OrderStatusResponse{{Resting: &venue.RestingOrder{Oid: oid}}},
				},
			},
		}
	default:
		return &venue.OrderResponse{Status: "err", ErrorMessage: fmt.Sprintf("unexpected status: %s", data.Status)}
	}
}

func tifFromHL(tif string) string {
	switch tif {
	case "Ioc":
		return "IOC"
	case "Alo":
		return "GTC"
	default:
		return "GTC"
	}
}

// CancelOrder cancels a single order by exchange order id.
func (c *Client) CancelOrder(ctx context.Context, asset int, oid int64) error {
	return c.post(ctx, "/v1/private/orders/cancel", map[string]interface{}{
		"orderId": strconv.FormatInt(oid, 10),
	}, nil)
}

// CancelAllOrders cancels every resting order, optionally scoped to symbol.
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) error {
	body := map[string]interface{}{}
	if symbol != "" {
		body["symbol"] = FormatSymbol(symbol)
	}
	return c.post(ctx, "/v1/private/orders/cancel-all", body, nil)
}

type rawOrderStatus struct {
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	Size        string `json:"size"`
	OrderID     string `json:"orderId"`
	Status      string `json:"status"`
	CreatedTime int64  `json:"createdTime"`
}

// GetOpenOrders is not exposed as a bulk listing by the reference API; Aster
// callers poll individual orders via GetOrderStatus instead. Returning an
// empty slice here keeps the adapter satisfying venue.Adapter without
// fabricating an endpoint the upstream service doesn't document.
func (c *Client) GetOpenOrders(ctx context.Context) ([]venue.OrderStatus, error) {
	return nil, nil
}

// GetOrderStatus fetches the status of a single order.
func (c *Client) GetOrderStatus(ctx context.Context, oid int64) (*venue.OrderStatus, error) {
	var data rawOrderStatus
	if err := c.get(ctx, "/v1/private/orders", urlValuesOf("orderId", strconv.FormatInt(oid, 10)), &data); err != nil {
		return nil, err
	}
	if data.OrderID == "" {
		return nil, nil
	}
	return &venue.OrderStatus{
		Order: venue.OrderInfo{
			Coin:      data.Symbol,
			Side:      strings.ToLower(data.Side),
			LimitPx:   data.Price,
			Sz:        data.Size,
			Oid:       oid,
			Timestamp: data.CreatedTime,
		},
		Status:          strings.ToLower(data.Status),
		StatusTimestamp: data.CreatedTime,
	}, nil
}

package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fvgbot/internal/exchange"
	"fvgbot/internal/models"
)

var sides = map[models.OrderSide]string{
	models.OrderSideBuy:  "Buy",
	models.OrderSideSell: "Sell",
}

var orderTypes = map[models.OrderType]string{
	models.OrderTypeMarket: "Market",
	models.OrderTypeLimit:  "Limit",
}

func toStatus(status string) models.OrderStatus {
	switch status {
	case "Filled":
		return models.OrderStatusFilled
	case "PartiallyFilled":
		return models.OrderStatusPartiallyFilled
	case "Cancelled", "PartiallyFilledCanceled", "Deactivated":
		return models.OrderStatusCanceled
	case "Rejected":
		return models.OrderStatusRejected
	default:
		return models.OrderStatusNew
	}
}

func toOrder(item orderItem) models.Order {
	price, _ := parseFloatOrZero(item.Price)
	qty, _ := parseFloatOrZero(item.Qty)
	filled, _ := parseFloatOrZero(item.CumExecQty)
	avg, _ := parseFloatOrZero(item.AvgPrice)

	side := models.OrderSideBuy
	if strings.EqualFold(item.Side, "Sell") {
		side = models.OrderSideSell
	}
	orderType := models.OrderTypeMarket
	if strings.EqualFold(item.OrderType, "Limit") {
		orderType = models.OrderTypeLimit
	}

	return models.Order{
		ID:          item.OrderID,
		LinkID:      item.OrderLinkID,
		Symbol:      item.Symbol,
		Side:        side,
		Type:        orderType,
		Price:       price,
		Qty:         qty,
		FilledQty:   filled,
		AvgPrice:    avg,
		Status:      toStatus(item.OrderStatus),
		TimeInForce: item.TimeInForce,
		CreateTime:  time.UnixMilli(parseMillis(item.CreatedTime)).UTC(),
		UpdateTime:  time.UnixMilli(parseMillis(item.UpdatedTime)).UTC(),
	}
}

// PlaceOrder submits a spot order. A resubmitted orderLinkId resolves to the order already on the book.
func (c *Client) PlaceOrder(ctx context.Context, order models.Order) (models.Order, error) {
	side, ok := sides[order.Side]
	if !ok {
		return models.Order{}, fmt.Errorf("%w: неизвестная сторона ордера %q", exchange.ErrRejected, order.Side)
	}
	orderType, ok := orderTypes[order.Type]
	if !ok {
		return models.Order{}, fmt.Errorf("%w: неизвестный тип ордера %q", exchange.ErrRejected, order.Type)
	}

	rules, err := c.GetInstrumentRules(ctx, order.Symbol)
	if err != nil {
		return models.Order{}, err
	}

	qty := formatWithStep(order.Qty, rules.QtyStep)
	if q, _ := parseFloatOrZero(qty); q <= 0 || (rules.MinQty > 0 && q < rules.MinQty) {
		return models.Order{}, fmt.Errorf("%w: объём %s меньше минимального %v", exchange.ErrRejected, qty, rules.MinQty)
	}

	body := map[string]any{
		"category":    "spot",
		"symbol":      order.Symbol,
		"side":        side,
		"orderType":   orderType,
		"qty":         qty,
		"orderLinkId": order.LinkID,
	}
	if order.Type == models.OrderTypeMarket {
		body["marketUnit"] = "baseCoin"
	} else {
		body["price"] = formatWithStep(order.Price, rules.TickSize)
		tif := order.TimeInForce
		if tif == "" {
			tif = "GTC"
		}
		body["timeInForce"] = tif
	}

	var resp bybitResponse[struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}]

	if err := c.doRequest(ctx, http.MethodPost, "/v5/order/create", nil, body, true, &resp); err != nil {
		if errors.Is(err, errDuplicateLinkID) && order.LinkID != "" {
			c.log.WithComponent("bybit_rest").WithField("order_link_id", order.LinkID).
				Warn("Ордер с таким orderLinkId уже существует, используем его.")
			return c.GetOrderByLinkID(ctx, order.Symbol, order.LinkID)
		}
		return models.Order{}, err
	}

	order.ID = resp.Result.OrderID
	order.Status = models.OrderStatusNew
	order.CreateTime = c.now().UTC()
	return order, nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	body := map[string]any{
		"category": "spot",
		"symbol":   symbol,
		"orderId":  orderID,
	}

	var resp bybitResponse[struct{}]
	return c.doRequest(ctx, http.MethodPost, "/v5/order/cancel", nil, body, true, &resp)
}

// GetOrder looks the order up among open orders first, then in history.
func (c *Client) GetOrder(ctx context.Context, symbol, orderID string) (models.Order, error) {
	return c.findOrder(ctx, symbol, "orderId", orderID)
}

func (c *Client) GetOrderByLinkID(ctx context.Context, symbol, linkID string) (models.Order, error) {
	return c.findOrder(ctx, symbol, "orderLinkId", linkID)
}

func (c *Client) findOrder(ctx context.Context, symbol, key, value string) (models.Order, error) {
	params := url.Values{}
	params.Set("category", "spot")
	params.Set("symbol", symbol)
	params.Set(key, value)

	for _, path := range []string{"/v5/order/realtime", "/v5/order/history"} {
		var resp bybitResponse[orderList]
		if err := c.doRequest(ctx, http.MethodGet, path, params, nil, true, &resp); err != nil {
			return models.Order{}, err
		}
		if len(resp.Result.List) > 0 {
			return toOrder(resp.Result.List[0]), nil
		}
	}
	return models.Order{}, fmt.Errorf("%w: %s=%s", exchange.ErrOrderNotFound, key, value)
}

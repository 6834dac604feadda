package bitfinex

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"time"

	"fvgbot/internal/exchange"
	"fvgbot/internal/models"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

var orderTypes = map[models.OrderType]string{
	models.OrderTypeMarket: "EXCHANGE MARKET",
	models.OrderTypeLimit:  "EXCHANGE LIMIT",
}

// cid derives the numeric client order id Bitfinex expects from the link id.
func cid(linkID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(linkID))
	return int64(h.Sum64() & (1<<45 - 1))
}

func toStatus(raw string) models.OrderStatus {
	s := strings.ToUpper(raw)
	switch {
	case strings.HasPrefix(s, "EXECUTED"):
		return models.OrderStatusFilled
	case strings.Contains(s, "CANCELED"):
		return models.OrderStatusCanceled
	case strings.HasPrefix(s, "PARTIALLY FILLED"):
		return models.OrderStatusPartiallyFilled
	case strings.HasPrefix(s, "ACTIVE"):
		return models.OrderStatusNew
	case s == "":
		return models.OrderStatusNew
	default:
		return models.OrderStatusRejected
	}
}

// parseOrder reads the v2 order array: [ID, GID, CID, SYMBOL, MTS_CREATE, MTS_UPDATE, AMOUNT, AMOUNT_ORIG,
// TYPE, ..., STATUS(13), ..., PRICE(16), PRICE_AVG(17), ...].
func parseOrder(row gjson.Result, symbol string) models.Order {
	remaining := row.Get("6").Float()
	orig := row.Get("7").Float()

	side := models.OrderSideBuy
	if orig < 0 {
		side = models.OrderSideSell
	}
	orderType := models.OrderTypeMarket
	if strings.Contains(strings.ToUpper(row.Get("8").String()), "LIMIT") {
		orderType = models.OrderTypeLimit
	}

	return models.Order{
		ID:         strconv.FormatInt(row.Get("0").Int(), 10),
		Symbol:     symbol,
		Side:       side,
		Type:       orderType,
		Price:      row.Get("16").Float(),
		Qty:        math.Abs(orig),
		FilledQty:  math.Abs(orig) - math.Abs(remaining),
		AvgPrice:   row.Get("17").Float(),
		Status:     toStatus(row.Get("13").String()),
		CreateTime: time.UnixMilli(row.Get("4").Int()).UTC(),
		UpdateTime: time.UnixMilli(row.Get("5").Int()).UTC(),
	}
}

// notification unpacks [MTS, TYPE, MSG_ID, null, DATA, CODE, STATUS, TEXT].
func notification(res gjson.Result) (gjson.Result, error) {
	status := strings.ToUpper(res.Get("6").String())
	if status == "ERROR" || status == "FAILURE" {
		err := classify(int(res.Get("5").Int()), res.Get("7").String())
		if !exchange.IsPermanent(err) && !strings.Contains(strings.ToLower(res.Get("7").String()), "nonce") {
			err = fmt.Errorf("%w: %w", exchange.ErrRejected, err)
		}
		return gjson.Result{}, err
	}
	return res.Get("4"), nil
}

func (g *Gateway) PlaceOrder(ctx context.Context, order models.Order) (models.Order, error) {
	orderType, ok := orderTypes[order.Type]
	if !ok {
		return models.Order{}, fmt.Errorf("%w: неизвестный тип ордера %q", exchange.ErrRejected, order.Type)
	}
	if order.Qty <= 0 {
		return models.Order{}, fmt.Errorf("%w: объём ордера должен быть > 0: %v", exchange.ErrRejected, order.Qty)
	}

	sym := g.exchangeSymbol(order.Symbol)
	clientID := cid(order.LinkID)

	if order.LinkID != "" && g.markAttempt(order.LinkID) {
		if existing, err := g.findByCID(ctx, sym, order.Symbol, clientID); err == nil {
			g.log.WithComponent("bitfinex").WithField("order_link_id", order.LinkID).
				Warn("Ордер с таким cid уже существует, используем его.")
			existing.LinkID = order.LinkID
			return existing, nil
		}
	}

	amount := decimal.NewFromFloat(order.Qty).Round(8)
	if order.Side == models.OrderSideSell {
		amount = amount.Neg()
	}
	body := map[string]any{
		"type":   orderType,
		"symbol": sym,
		"amount": amount.String(),
		"cid":    clientID,
	}
	if order.Type == models.OrderTypeLimit {
		body["price"] = decimal.NewFromFloat(order.Price).String()
	}

	res, err := g.post(ctx, "/v2/auth/w/order/submit", body)
	if err != nil {
		return models.Order{}, err
	}
	data, err := notification(res)
	if err != nil {
		return models.Order{}, err
	}
	row := data
	if data.Get("0").IsArray() {
		row = data.Get("0")
	}

	placed := parseOrder(row, order.Symbol)
	placed.LinkID = order.LinkID
	return placed, nil
}

// markAttempt records the link id and reports whether it was submitted before.
func (g *Gateway) markAttempt(linkID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	seen := g.attempted[linkID]
	g.attempted[linkID] = true
	return seen
}

func (g *Gateway) findByCID(ctx context.Context, sym, symbol string, clientID int64) (models.Order, error) {
	for _, path := range []string{"/v2/auth/r/orders/" + sym, "/v2/auth/r/orders/" + sym + "/hist"} {
		res, err := g.post(ctx, path, nil)
		if err != nil {
			return models.Order{}, err
		}
		var found *models.Order
		res.ForEach(func(_, row gjson.Result) bool {
			if row.Get("2").Int() == clientID {
				o := parseOrder(row, symbol)
				found = &o
				return false
			}
			return true
		})
		if found != nil {
			return *found, nil
		}
	}
	return models.Order{}, fmt.Errorf("%w: cid=%d", exchange.ErrOrderNotFound, clientID)
}

func (g *Gateway) CancelOrder(ctx context.Context, symbol, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: некорректный id ордера %q", exchange.ErrOrderNotFound, orderID)
	}
	res, err := g.post(ctx, "/v2/auth/w/order/cancel", map[string]any{"id": id})
	if err != nil {
		return err
	}
	_, err = notification(res)
	return err
}

// FetchOrder searches active orders first, then order history.
func (g *Gateway) FetchOrder(ctx context.Context, symbol, orderID string) (models.Order, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return models.Order{}, fmt.Errorf("%w: некорректный id ордера %q", exchange.ErrOrderNotFound, orderID)
	}
	sym := g.exchangeSymbol(symbol)
	body := map[string]any{"id": []int64{id}}

	for _, path := range []string{"/v2/auth/r/orders/" + sym, "/v2/auth/r/orders/" + sym + "/hist"} {
		res, err := g.post(ctx, path, body)
		if err != nil {
			return models.Order{}, err
		}
		if row := res.Get("0"); row.Exists() {
			return parseOrder(row, symbol), nil
		}
	}
	return models.Order{}, fmt.Errorf("%w: %s", exchange.ErrOrderNotFound, orderID)
}

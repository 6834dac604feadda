package simulated

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"fvgbot/internal/exchange"
	"fvgbot/internal/models"
)

type Option func(*Gateway)

// WithMarketData delegates candles and tickers to another gateway (dry-run against a real feed).
func WithMarketData(feed exchange.Gateway) Option {
	return func(g *Gateway) { g.feed = feed }
}

func WithBalance(currency string, amount float64) Option {
	return func(g *Gateway) { g.balances[currency] = amount }
}

func WithCandles(candles []models.Candle) Option {
	return func(g *Gateway) { g.candles = append([]models.Candle(nil), candles...) }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// Gateway fills every order immediately and deterministically:
// limit orders at their limit price, market orders at the price hint or the last known price.
type Gateway struct {
	mu       sync.Mutex
	feed     exchange.Gateway
	candles  []models.Candle
	balances map[string]float64
	orders   map[string]models.Order
	byLink   map[string]string
	seq      int64
	last     map[string]float64
	now      func() time.Time
}

func New(opts ...Option) *Gateway {
	g := &Gateway{
		balances: map[string]float64{},
		orders:   map[string]models.Order{},
		byLink:   map[string]string{},
		last:     map[string]float64{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Name() string {
	if g.feed != nil {
		return "simulated+" + g.feed.Name()
	}
	return "simulated"
}

// SetLastPrice feeds the price used for market orders without a price hint.
func (g *Gateway) SetLastPrice(symbol string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last[symbol] = price
}

func (g *Gateway) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	if g.feed != nil {
		candles, err := g.feed.FetchCandles(ctx, symbol, timeframe, limit)
		if err == nil && len(candles) > 0 {
			g.SetLastPrice(symbol, candles[len(candles)-1].Close)
		}
		return candles, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	candles := g.candles
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	if len(candles) > 0 {
		g.last[symbol] = candles[len(candles)-1].Close
	}
	return append([]models.Candle(nil), candles...), nil
}

func (g *Gateway) FetchBalance(ctx context.Context) (map[string]float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]float64, len(g.balances))
	for k, v := range g.balances {
		out[k] = v
	}
	return out, nil
}

func (g *Gateway) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	if g.feed != nil {
		ticker, err := g.feed.FetchTicker(ctx, symbol)
		if err == nil {
			g.SetLastPrice(symbol, ticker.LastPrice)
		}
		return ticker, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	price, ok := g.last[symbol]
	if !ok || price <= 0 {
		return models.Ticker{}, fmt.Errorf("нет цены для %s", symbol)
	}
	return models.Ticker{Symbol: symbol, LastPrice: price, Timestamp: g.now()}, nil
}

func (g *Gateway) PlaceOrder(ctx context.Context, order models.Order) (models.Order, error) {
	if err := ctx.Err(); err != nil {
		return models.Order{}, err
	}
	if order.Qty <= 0 {
		return models.Order{}, fmt.Errorf("%w: объём ордера должен быть > 0: %v", exchange.ErrRejected, order.Qty)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if order.LinkID != "" {
		if id, ok := g.byLink[order.LinkID]; ok {
			return g.orders[id], nil
		}
	}

	price := order.Price
	if order.Type == models.OrderTypeMarket && price <= 0 {
		price = g.last[order.Symbol]
	}
	if price <= 0 {
		return models.Order{}, fmt.Errorf("%w: нет цены для исполнения %s", exchange.ErrRejected, order.Symbol)
	}

	base, quote, err := exchange.SplitSymbol(order.Symbol)
	if err != nil {
		return models.Order{}, err
	}
	notional := price * order.Qty
	if order.Side == models.OrderSideBuy {
		g.balances[quote] -= notional
		g.balances[base] += order.Qty
	} else {
		g.balances[quote] += notional
		g.balances[base] -= order.Qty
	}

	g.seq++
	now := g.now()
	order.ID = "sim-" + strconv.FormatInt(g.seq, 10)
	order.FilledQty = order.Qty
	order.AvgPrice = price
	order.Status = models.OrderStatusFilled
	order.CreateTime = now
	order.UpdateTime = now

	g.orders[order.ID] = order
	if order.LinkID != "" {
		g.byLink[order.LinkID] = order.ID
	}
	return order, nil
}

func (g *Gateway) CancelOrder(ctx context.Context, symbol, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	order, ok := g.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", exchange.ErrOrderNotFound, orderID)
	}
	if order.Closed() {
		return nil
	}
	order.Status = models.OrderStatusCanceled
	g.orders[orderID] = order
	return nil
}

func (g *Gateway) FetchOrder(ctx context.Context, symbol, orderID string) (models.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	order, ok := g.orders[orderID]
	if !ok {
		return models.Order{}, fmt.Errorf("%w: %s", exchange.ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (g *Gateway) StreamTickers(ctx context.Context, symbol string) (<-chan models.Ticker, error) {
	if streamer, ok := g.feed.(exchange.TickerStreamer); ok {
		return streamer.StreamTickers(ctx, symbol)
	}
	return nil, exchange.ErrNotSupported
}

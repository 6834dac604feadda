package bybit

import (
	"context"

	"fvgbot/internal/exchange"
	"fvgbot/internal/exchange/bybit/rest"
	"fvgbot/internal/exchange/bybit/ws"
	"fvgbot/internal/logger"
	"fvgbot/internal/models"
)

type Config struct {
	BaseURL     string
	WSURL       string
	ApiKey      string
	Secret      string
	AccountType string
	RateLimit   float64
	RateBurst   int
}

// Gateway adapts the Bybit v5 spot API to exchange.Gateway. Symbols are BASE/QUOTE on the outside.
type Gateway struct {
	rest  *rest.Client
	wsURL string
	log   *logger.Logger
}

func New(cfg Config, log *logger.Logger) *Gateway {
	return &Gateway{
		rest: rest.New(rest.Options{
			BaseURL:     cfg.BaseURL,
			AccountType: cfg.AccountType,
			ApiKey:      cfg.ApiKey,
			Secret:      cfg.Secret,
			RateLimit:   cfg.RateLimit,
			RateBurst:   cfg.RateBurst,
		}, log),
		wsURL: cfg.WSURL,
		log:   log,
	}
}

func (g *Gateway) Name() string {
	return "bybit"
}

func (g *Gateway) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	return g.rest.GetKlines(ctx, exchange.CompactSymbol(symbol), timeframe, limit)
}

func (g *Gateway) FetchBalance(ctx context.Context) (map[string]float64, error) {
	return g.rest.GetBalances(ctx)
}

func (g *Gateway) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	ticker, err := g.rest.GetTicker(ctx, exchange.CompactSymbol(symbol))
	if err != nil {
		return models.Ticker{}, err
	}
	ticker.Symbol = symbol
	return ticker, nil
}

func (g *Gateway) PlaceOrder(ctx context.Context, order models.Order) (models.Order, error) {
	req := order
	req.Symbol = exchange.CompactSymbol(order.Symbol)
	placed, err := g.rest.PlaceOrder(ctx, req)
	if err != nil {
		return models.Order{}, err
	}
	placed.Symbol = order.Symbol
	return placed, nil
}

func (g *Gateway) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return g.rest.CancelOrder(ctx, exchange.CompactSymbol(symbol), orderID)
}

func (g *Gateway) FetchOrder(ctx context.Context, symbol, orderID string) (models.Order, error) {
	order, err := g.rest.GetOrder(ctx, exchange.CompactSymbol(symbol), orderID)
	if err != nil {
		return models.Order{}, err
	}
	order.Symbol = symbol
	return order, nil
}

// StreamTickers subscribes to the public tickers topic. The channel closes when ctx is done.
func (g *Gateway) StreamTickers(ctx context.Context, symbol string) (<-chan models.Ticker, error) {
	if g.wsURL == "" {
		return nil, exchange.ErrNotSupported
	}

	client := ws.New(g.wsURL, g.log)
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	if err := client.SubscribeTickers(exchange.CompactSymbol(symbol)); err != nil {
		client.Close()
		return nil, err
	}

	out := make(chan models.Ticker, 1)
	go func() {
		defer close(out)
		defer client.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-client.Tickers():
				if !ok {
					return
				}
				t.Symbol = symbol
				select {
				case out <- t:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

package exchange

import (
	"context"
	"errors"

	"fvgbot/internal/models"
)

var (
	ErrUnsupportedExchange = errors.New("неподдерживаемая биржа")
	ErrAuth                = errors.New("ошибка авторизации на бирже")
	ErrRateLimited         = errors.New("превышен лимит запросов")
	ErrRejected            = errors.New("биржа отклонила запрос")
	ErrOrderNotFound       = errors.New("ордер не найден")
	ErrRetriesExhausted    = errors.New("исчерпаны попытки запроса к бирже")
)

type Gateway interface {
	Name() string
	FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error)
	FetchBalance(ctx context.Context) (map[string]float64, error)
	FetchTicker(ctx context.Context, symbol string) (models.Ticker, error)
	PlaceOrder(ctx context.Context, order models.Order) (models.Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	FetchOrder(ctx context.Context, symbol, orderID string) (models.Order, error)
}

// TickerStreamer is implemented by gateways that can push last prices between polling cycles.
type TickerStreamer interface {
	StreamTickers(ctx context.Context, symbol string) (<-chan models.Ticker, error)
}

// IsPermanent reports errors that retrying cannot fix.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrUnsupportedExchange) ||
		errors.Is(err, ErrAuth) ||
		errors.Is(err, ErrRejected) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsFatal reports errors that must abort startup.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnsupportedExchange) || errors.Is(err, ErrAuth)
}

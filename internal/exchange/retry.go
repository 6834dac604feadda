package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fvgbot/internal/logger"
	"fvgbot/internal/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

var ErrNotSupported = errors.New("операция не поддерживается биржей")

type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	RateLimitFactor float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		InitialDelay:    1 * time.Second,
		MaxDelay:        30 * time.Second,
		RateLimitFactor: 4,
	}
}

// rateLimitBackOff stretches the next wait when the last failure was a rate limit.
type rateLimitBackOff struct {
	backoff.BackOff
	factor  float64
	max     time.Duration
	limited bool
}

func (b *rateLimitBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop || !b.limited || b.factor <= 1 {
		return next
	}
	wait := time.Duration(float64(next) * b.factor)
	if b.max > 0 && wait > b.max {
		wait = b.max
	}
	return wait
}

func (p RetryPolicy) newBackOff() *rateLimitBackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialDelay
	exp.MaxInterval = p.MaxDelay
	if exp.MaxInterval <= 0 {
		exp.MaxInterval = 30 * time.Second
	}
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()
	return &rateLimitBackOff{BackOff: exp, factor: p.RateLimitFactor, max: p.MaxDelay}
}

// Retry runs op until it succeeds, fails permanently or the attempt budget is spent.
// notify is called before each wait and may be nil.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func() (T, error), notify func(err error, attempt int, wait time.Duration)) (T, error) {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := policy.newBackOff()
	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)

	attempt := 0
	result, err := backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		v, err := op()
		if err == nil {
			return v, nil
		}
		b.limited = errors.Is(err, ErrRateLimited)
		if IsPermanent(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, bo, func(err error, wait time.Duration) {
		if notify != nil {
			notify(err, attempt, wait)
		}
	})
	if err == nil {
		return result, nil
	}
	if IsPermanent(err) || ctx.Err() != nil {
		return result, err
	}
	return result, fmt.Errorf("%w (попыток: %d): %w", ErrRetriesExhausted, attempt, err)
}

// Retrying wraps a gateway so every call is retried with exponential backoff.
type Retrying struct {
	next   Gateway
	policy RetryPolicy
	log    *logger.Logger
}

func WithRetry(next Gateway, policy RetryPolicy, log *logger.Logger) *Retrying {
	return &Retrying{next: next, policy: policy, log: log}
}

func (r *Retrying) Unwrap() Gateway {
	return r.next
}

func (r *Retrying) Name() string {
	return r.next.Name()
}

func (r *Retrying) notify(op string) func(err error, attempt int, wait time.Duration) {
	return func(err error, attempt int, wait time.Duration) {
		r.logEntry().WithError(err).WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
			"wait":    wait.String(),
		}).Warn("Ошибка, повторяем запрос.")
	}
}

func (r *Retrying) logEntry() *logrus.Entry {
	return r.log.WithComponent("gateway").WithField("exchange", r.next.Name())
}

func (r *Retrying) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	return Retry(ctx, r.policy, func() ([]models.Candle, error) {
		return r.next.FetchCandles(ctx, symbol, timeframe, limit)
	}, r.notify("fetch_candles"))
}

func (r *Retrying) FetchBalance(ctx context.Context) (map[string]float64, error) {
	return Retry(ctx, r.policy, func() (map[string]float64, error) {
		return r.next.FetchBalance(ctx)
	}, r.notify("fetch_balance"))
}

func (r *Retrying) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	return Retry(ctx, r.policy, func() (models.Ticker, error) {
		return r.next.FetchTicker(ctx, symbol)
	}, r.notify("fetch_ticker"))
}

// PlaceOrder relies on order.LinkID for idempotency: gateways resolve a resubmitted link id to the existing order.
func (r *Retrying) PlaceOrder(ctx context.Context, order models.Order) (models.Order, error) {
	if order.LinkID == "" {
		return models.Order{}, fmt.Errorf("%w: пустой link id ордера", ErrRejected)
	}
	return Retry(ctx, r.policy, func() (models.Order, error) {
		return r.next.PlaceOrder(ctx, order)
	}, r.notify("place_order"))
}

func (r *Retrying) CancelOrder(ctx context.Context, symbol, orderID string) error {
	_, err := Retry(ctx, r.policy, func() (struct{}, error) {
		return struct{}{}, r.next.CancelOrder(ctx, symbol, orderID)
	}, r.notify("cancel_order"))
	return err
}

func (r *Retrying) FetchOrder(ctx context.Context, symbol, orderID string) (models.Order, error) {
	return Retry(ctx, r.policy, func() (models.Order, error) {
		return r.next.FetchOrder(ctx, symbol, orderID)
	}, r.notify("fetch_order"))
}

func (r *Retrying) StreamTickers(ctx context.Context, symbol string) (<-chan models.Ticker, error) {
	streamer, ok := r.next.(TickerStreamer)
	if !ok {
		return nil, ErrNotSupported
	}
	return streamer.StreamTickers(ctx, symbol)
}

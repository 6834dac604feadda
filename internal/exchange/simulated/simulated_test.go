package simulated

import (
	"context"
	"testing"
	"time"

	"fvgbot/internal/exchange"
	"fvgbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestPlaceOrder_FillsAtLastPrice(t *testing.T) {
	g := New(WithBalance("USDT", 1000), WithClock(fixedClock))
	g.SetLastPrice("BTC/USDT", 100)
	ctx := context.Background()

	order, err := g.PlaceOrder(ctx, models.Order{LinkID: "a", Symbol: "BTC/USDT", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Qty: 2})
	require.NoError(t, err)
	assert.Equal(t, "sim-1", order.ID)
	assert.Equal(t, models.OrderStatusFilled, order.Status)
	assert.Equal(t, 100.0, order.AvgPrice)
	assert.Equal(t, 2.0, order.FilledQty)

	balances, err := g.FetchBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 800.0, balances["USDT"])
	assert.Equal(t, 2.0, balances["BTC"])
}

func TestPlaceOrder_PriceHintWins(t *testing.T) {
	g := New()
	g.SetLastPrice("BTC/USDT", 100)

	order, err := g.PlaceOrder(context.Background(), models.Order{LinkID: "a", Symbol: "BTC/USDT", Side: models.OrderSideSell, Type: models.OrderTypeMarket, Price: 105, Qty: 1})
	require.NoError(t, err)
	assert.Equal(t, 105.0, order.AvgPrice)
}

func TestPlaceOrder_DuplicateLinkID(t *testing.T) {
	g := New()
	g.SetLastPrice("BTC/USDT", 100)
	ctx := context.Background()
	req := models.Order{LinkID: "dup", Symbol: "BTC/USDT", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Qty: 1}

	first, err := g.PlaceOrder(ctx, req)
	require.NoError(t, err)
	second, err := g.PlaceOrder(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	balances, _ := g.FetchBalance(ctx)
	assert.Equal(t, 1.0, balances["BTC"])
}

func TestPlaceOrder_Rejections(t *testing.T) {
	g := New()
	ctx := context.Background()

	_, err := g.PlaceOrder(ctx, models.Order{Symbol: "BTC/USDT", Type: models.OrderTypeMarket, Qty: 0})
	assert.ErrorIs(t, err, exchange.ErrRejected)

	_, err = g.PlaceOrder(ctx, models.Order{Symbol: "BTC/USDT", Type: models.OrderTypeMarket, Qty: 1})
	assert.ErrorIs(t, err, exchange.ErrRejected)
}

func TestFetchAndCancelOrder(t *testing.T) {
	g := New()
	ctx := context.Background()

	_, err := g.FetchOrder(ctx, "BTC/USDT", "sim-9")
	assert.ErrorIs(t, err, exchange.ErrOrderNotFound)
	assert.ErrorIs(t, g.CancelOrder(ctx, "BTC/USDT", "sim-9"), exchange.ErrOrderNotFound)

	order, err := g.PlaceOrder(ctx, models.Order{Symbol: "BTC/USDT", Side: models.OrderSideBuy, Type: models.OrderTypeLimit, Price: 50, Qty: 1})
	require.NoError(t, err)
	require.NoError(t, g.CancelOrder(ctx, "BTC/USDT", order.ID))

	got, err := g.FetchOrder(ctx, "BTC/USDT", order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFilled, got.Status)
}

func TestFetchCandles_LimitAndLastPrice(t *testing.T) {
	candles := []models.Candle{
		{Time: fixedClock(), Open: 1, High: 1, Low: 1, Close: 1},
		{Time: fixedClock().Add(time.Minute), Open: 2, High: 2, Low: 2, Close: 2},
		{Time: fixedClock().Add(2 * time.Minute), Open: 3, High: 3, Low: 3, Close: 3},
	}
	g := New(WithCandles(candles), WithClock(fixedClock))
	ctx := context.Background()

	got, err := g.FetchCandles(ctx, "BTC/USDT", "1m", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2.0, got[0].Close)

	ticker, err := g.FetchTicker(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, 3.0, ticker.LastPrice)
}

func TestFetchTicker_NoPrice(t *testing.T) {
	_, err := New().FetchTicker(context.Background(), "BTC/USDT")
	assert.Error(t, err)
}

func TestMarketDataDelegate(t *testing.T) {
	feed := New(WithCandles([]models.Candle{{Time: fixedClock(), Open: 7, High: 7, Low: 7, Close: 7}}))
	g := New(WithMarketData(feed))
	ctx := context.Background()

	assert.Equal(t, "simulated+simulated", g.Name())
	_, err := g.FetchCandles(ctx, "BTC/USDT", "1m", 10)
	require.NoError(t, err)

	order, err := g.PlaceOrder(ctx, models.Order{Symbol: "BTC/USDT", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Qty: 1})
	require.NoError(t, err)
	assert.Equal(t, 7.0, order.AvgPrice)

	_, err = g.StreamTickers(ctx, "BTC/USDT")
	assert.ErrorIs(t, err, exchange.ErrNotSupported)
}

package bitfinex

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"fvgbot/internal/exchange"
	"fvgbot/internal/logger"
	"fvgbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, sandbox bool, handler http.HandlerFunc) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	gw, err := New(Config{
		BaseURL:   srv.URL,
		ApiKey:    "key",
		Secret:    "secret",
		Sandbox:   sandbox,
		NonceFile: filepath.Join(t.TempDir(), "nonce.json"),
	}, logger.Discard())
	require.NoError(t, err)
	return gw
}

func TestExchangeSymbol(t *testing.T) {
	live := &Gateway{}
	assert.Equal(t, "tBTCUSD", live.exchangeSymbol("BTC/USD"))
	assert.Equal(t, "tBTC:USDT", live.exchangeSymbol("BTC/USDT"))

	paper := &Gateway{sandbox: true}
	assert.Equal(t, "tTESTBTC:TESTUSD", paper.exchangeSymbol("BTC/USD"))
	assert.Equal(t, "USD", paper.currency("TESTUSD"))
}

func TestFetchCandles(t *testing.T) {
	gw := newTestGateway(t, false, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/candles/trade:1m:tBTCUSD/hist", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		_, _ = io.WriteString(w, `[[1700000060000,101,101.5,102,100,3],[1700000000000,100,100.5,101,99,2]]`)
	})

	candles, err := gw.FetchCandles(context.Background(), "BTC/USD", "1m", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, models.Candle{Time: candles[0].Time, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 2}, candles[0])
	assert.Equal(t, 101.5, candles[1].Close)
	assert.True(t, candles[1].Valid())
}

func TestFetchTicker_PaperSymbol(t *testing.T) {
	gw := newTestGateway(t, true, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/ticker/tTESTBTC:TESTUSD", r.URL.Path)
		_, _ = io.WriteString(w, `[41990,1.2,42010,0.8,100,0.002,42000.5,1234,42500,41000]`)
	})

	ticker, err := gw.FetchTicker(context.Background(), "BTC/USD")
	require.NoError(t, err)
	assert.Equal(t, "BTC/USD", ticker.Symbol)
	assert.Equal(t, 42000.5, ticker.LastPrice)
}

func TestFetchBalance_SignedAndFiltered(t *testing.T) {
	gw := newTestGateway(t, true, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v2/auth/r/wallets", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("bfx-apikey"))

		body, _ := io.ReadAll(r.Body)
		want := sign("secret", "/api/v2/auth/r/wallets"+r.Header.Get("bfx-nonce")+string(body))
		assert.Equal(t, want, r.Header.Get("bfx-signature"))

		_, _ = io.WriteString(w, `[["exchange","TESTUSD",1000,0,900],["margin","TESTUSD",50,0,50],["exchange","TESTBTC",0.5,0,null]]`)
	})

	balances, err := gw.FetchBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"USD": 900, "BTC": 0.5}, balances)
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"auth", 500, `["error",10100,"apikey: invalid"]`, exchange.ErrAuth},
		{"rate limit", 429, `{"error":"ERR_RATE_LIMIT"}`, exchange.ErrRateLimited},
		{"rate limit code", 500, `["error",11010,"ratelimit: error"]`, exchange.ErrRateLimited},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw := newTestGateway(t, false, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := gw.FetchBalance(context.Background())
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestFetchBalance_MissingCredentials(t *testing.T) {
	gw, err := New(Config{}, logger.Discard())
	require.NoError(t, err)

	_, err = gw.FetchBalance(context.Background())
	assert.ErrorIs(t, err, exchange.ErrAuth)
}

func TestPlaceOrder_SellMarket(t *testing.T) {
	var body map[string]any
	gw := newTestGateway(t, false, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/auth/w/order/submit", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		row := `[123,null,1,"tBTCUSD",1700000000000,1700000000500,0,-0.01,"EXCHANGE MARKET",null,null,null,0,"EXECUTED @ 42000.0(-0.01)",null,null,42000,42000.5]`
		_, _ = io.WriteString(w, `[1700000000000,"on-req",null,null,[`+row+`],null,"SUCCESS","Submitting 1 orders."]`)
	})

	order, err := gw.PlaceOrder(context.Background(), models.Order{
		LinkID: "link-1", Symbol: "BTC/USD", Side: models.OrderSideSell, Type: models.OrderTypeMarket, Qty: 0.01,
	})
	require.NoError(t, err)
	assert.Equal(t, "123", order.ID)
	assert.Equal(t, "link-1", order.LinkID)
	assert.Equal(t, models.OrderSideSell, order.Side)
	assert.Equal(t, models.OrderStatusFilled, order.Status)
	assert.Equal(t, 0.01, order.Qty)
	assert.Equal(t, 0.01, order.FilledQty)
	assert.Equal(t, 42000.5, order.AvgPrice)

	assert.Equal(t, "EXCHANGE MARKET", body["type"])
	assert.Equal(t, "tBTCUSD", body["symbol"])
	assert.Equal(t, "-0.01", body["amount"])
	assert.Equal(t, float64(cid("link-1")), body["cid"])
	assert.NotContains(t, body, "price")
}

func TestPlaceOrder_ErrorNotification(t *testing.T) {
	gw := newTestGateway(t, false, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[1700000000000,"on-req",null,null,null,null,"ERROR","Invalid order: not enough exchange balance"]`)
	})

	_, err := gw.PlaceOrder(context.Background(), models.Order{
		LinkID: "link-2", Symbol: "BTC/USD", Side: models.OrderSideBuy, Type: models.OrderTypeLimit, Price: 40000, Qty: 1,
	})
	assert.ErrorIs(t, err, exchange.ErrRejected)
}

func TestPlaceOrder_ResubmitFindsExistingByCID(t *testing.T) {
	submits := 0
	gw := newTestGateway(t, false, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/auth/w/order/submit":
			submits++
			w.WriteHeader(http.StatusBadGateway)
		case "/api/v2/auth/r/orders/tBTCUSD":
			_, _ = io.WriteString(w, `[]`)
		case "/api/v2/auth/r/orders/tBTCUSD/hist":
			row := `[123,null,` + strconv.FormatInt(cid("link-3"), 10) + `,"tBTCUSD",1700000000000,1700000000500,0,0.01,"EXCHANGE MARKET",null,null,null,0,"EXECUTED @ 42000.0(0.01)",null,null,42000,42000]`
			_, _ = io.WriteString(w, `[`+row+`]`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	req := models.Order{LinkID: "link-3", Symbol: "BTC/USD", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Qty: 0.01}
	_, err := gw.PlaceOrder(context.Background(), req)
	require.Error(t, err)

	order, err := gw.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "123", order.ID)
	assert.Equal(t, models.OrderStatusFilled, order.Status)
	assert.Equal(t, 1, submits)
}

func TestFetchOrder_FallsBackToHistory(t *testing.T) {
	gw := newTestGateway(t, false, func(w http.ResponseWriter, r *http.Request) {
		var body map[string][]int64
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []int64{123}, body["id"])

		switch r.URL.Path {
		case "/api/v2/auth/r/orders/tBTCUSD":
			_, _ = io.WriteString(w, `[]`)
		case "/api/v2/auth/r/orders/tBTCUSD/hist":
			_, _ = io.WriteString(w, `[[123,null,1,"tBTCUSD",1700000000000,1700000000500,0.01,0.01,"EXCHANGE LIMIT",null,null,null,0,"CANCELED",null,null,41000,0]]`)
		}
	})

	order, err := gw.FetchOrder(context.Background(), "BTC/USD", "123")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCanceled, order.Status)
	assert.Equal(t, models.OrderTypeLimit, order.Type)
	assert.Equal(t, 0.0, order.FilledQty)
	assert.Equal(t, 41000.0, order.Price)
}

func TestFetchOrder_NotFound(t *testing.T) {
	gw := newTestGateway(t, false, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})

	_, err := gw.FetchOrder(context.Background(), "BTC/USD", "999")
	assert.ErrorIs(t, err, exchange.ErrOrderNotFound)

	_, err = gw.FetchOrder(context.Background(), "BTC/USD", "abc")
	assert.ErrorIs(t, err, exchange.ErrOrderNotFound)
}

func TestCancelOrder(t *testing.T) {
	gw := newTestGateway(t, false, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]int64
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["id"] == 404 {
			_, _ = io.WriteString(w, `[1700000000000,"oc-req",null,null,null,null,"ERROR","Order not found."]`)
			return
		}
		_, _ = io.WriteString(w, `[1700000000000,"oc-req",null,null,[123],null,"SUCCESS","Submitted for cancellation"]`)
	})

	require.NoError(t, gw.CancelOrder(context.Background(), "BTC/USD", "123"))
	assert.ErrorIs(t, gw.CancelOrder(context.Background(), "BTC/USD", "404"), exchange.ErrOrderNotFound)
}

func TestToStatus(t *testing.T) {
	assert.Equal(t, models.OrderStatusNew, toStatus("ACTIVE"))
	assert.Equal(t, models.OrderStatusFilled, toStatus("EXECUTED @ 1.0(1.0)"))
	assert.Equal(t, models.OrderStatusPartiallyFilled, toStatus("PARTIALLY FILLED @ 1.0(0.5)"))
	assert.Equal(t, models.OrderStatusCanceled, toStatus("CANCELED was: PARTIALLY FILLED @ 1.0(0.5)"))
	assert.Equal(t, models.OrderStatusRejected, toStatus("INSUFFICIENT BALANCE (U1) was: ACTIVE"))
}

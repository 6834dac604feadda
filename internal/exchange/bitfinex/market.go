package bitfinex

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"fvgbot/internal/exchange"
	"fvgbot/internal/models"

	"github.com/tidwall/gjson"
)

// FetchCandles returns candles oldest first. Rows are [MTS, OPEN, CLOSE, HIGH, LOW, VOLUME].
func (g *Gateway) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	tf, ok := timeframes[timeframe]
	if !ok {
		return nil, fmt.Errorf("%w: неподдерживаемый таймфрейм %q", exchange.ErrRejected, timeframe)
	}

	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	path := fmt.Sprintf("/v2/candles/trade:%s:%s/hist", tf, g.exchangeSymbol(symbol))

	res, err := g.get(ctx, path, params)
	if err != nil {
		return nil, err
	}

	var candles []models.Candle
	var parseErr error
	res.ForEach(func(_, row gjson.Result) bool {
		if len(row.Array()) < 6 {
			parseErr = fmt.Errorf("Некорректная свеча bitfinex: %s", row.Raw)
			return false
		}
		candles = append(candles, models.Candle{
			Time:   time.UnixMilli(row.Get("0").Int()).UTC(),
			Open:   row.Get("1").Float(),
			Close:  row.Get("2").Float(),
			High:   row.Get("3").Float(),
			Low:    row.Get("4").Float(),
			Volume: row.Get("5").Float(),
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
	return candles, nil
}

func (g *Gateway) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	res, err := g.get(ctx, "/v2/ticker/"+g.exchangeSymbol(symbol), nil)
	if err != nil {
		return models.Ticker{}, err
	}

	last := res.Get("6")
	if !last.Exists() || last.Float() <= 0 {
		return models.Ticker{}, fmt.Errorf("Некорректный тикер bitfinex: %s", res.Raw)
	}
	return models.Ticker{Symbol: symbol, LastPrice: last.Float(), Timestamp: g.now().UTC()}, nil
}

// FetchBalance returns available amounts of the exchange wallets.
func (g *Gateway) FetchBalance(ctx context.Context) (map[string]float64, error) {
	res, err := g.post(ctx, "/v2/auth/r/wallets", nil)
	if err != nil {
		return nil, err
	}

	balances := map[string]float64{}
	res.ForEach(func(_, wallet gjson.Result) bool {
		if wallet.Get("0").String() != "exchange" {
			return true
		}
		available := wallet.Get("4")
		amount := wallet.Get("2").Float()
		if available.Exists() && available.Type == gjson.Number {
			amount = available.Float()
		}
		balances[g.currency(wallet.Get("1").String())] += amount
		return true
	})
	return balances, nil
}

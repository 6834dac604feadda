package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"fvgbot/internal/exchange"
	"fvgbot/internal/models"
)

var intervals = map[string]string{
	"1m":  "1",
	"3m":  "3",
	"5m":  "5",
	"15m": "15",
	"30m": "30",
	"1h":  "60",
	"2h":  "120",
	"4h":  "240",
	"1d":  "D",
}

// Interval maps a timeframe like 5m onto the Bybit kline interval.
func Interval(timeframe string) (string, error) {
	interval, ok := intervals[timeframe]
	if !ok {
		return "", fmt.Errorf("%w: неподдерживаемый таймфрейм %q", exchange.ErrRejected, timeframe)
	}
	return interval, nil
}

func (c *Client) GetInstrumentRules(ctx context.Context, symbol string) (InstrumentRules, error) {
	c.rulesMu.Lock()
	cached, ok := c.rules[symbol]
	c.rulesMu.Unlock()
	if ok {
		return cached, nil
	}

	params := url.Values{}
	params.Set("category", "spot")
	params.Set("symbol", symbol)

	var resp bybitResponse[instrumentInfo]
	if err := c.doRequest(ctx, http.MethodGet, "/v5/market/instruments-info", params, nil, false, &resp); err != nil {
		return InstrumentRules{}, err
	}
	if len(resp.Result.List) == 0 {
		return InstrumentRules{}, fmt.Errorf("%w: торговая пара не найдена: %s", exchange.ErrRejected, symbol)
	}

	info := resp.Result.List[0]

	tick, err := parseFloatOrZero(info.PriceFilter.TickSize)
	if err != nil {
		return InstrumentRules{}, fmt.Errorf("Некорректное значение tickSize=%q: %w", info.PriceFilter.TickSize, err)
	}

	step, err := parseFloatOrZero(info.LotSizeFilter.QtyStep)
	if err != nil {
		return InstrumentRules{}, fmt.Errorf("Некорректное значение qtyStep=%q: %w", info.LotSizeFilter.QtyStep, err)
	}
	if step == 0 {
		step, err = parseFloatOrZero(info.LotSizeFilter.BasePrecision)
		if err != nil {
			return InstrumentRules{}, fmt.Errorf("Некорректное значение basePrecision=%q: %w", info.LotSizeFilter.BasePrecision, err)
		}
	}

	minQty, _ := parseFloatOrZero(info.LotSizeFilter.MinOrderQty)
	minNotional, _ := parseFloatOrZero(info.LotSizeFilter.MinOrderAmt)

	rules := InstrumentRules{
		TickSize:    tick,
		QtyStep:     step,
		MinQty:      minQty,
		MinNotional: minNotional,
		BaseCoin:    info.BaseCoin,
		QuoteCoin:   info.QuoteCoin,
	}

	c.rulesMu.Lock()
	c.rules[symbol] = rules
	c.rulesMu.Unlock()
	return rules, nil
}

// GetKlines returns candles oldest first.
func (c *Client) GetKlines(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	interval, err := Interval(timeframe)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("category", "spot")
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var resp bybitResponse[klineResult]
	if err := c.doRequest(ctx, http.MethodGet, "/v5/market/kline", params, nil, false, &resp); err != nil {
		return nil, err
	}

	candles := make([]models.Candle, 0, len(resp.Result.List))
	for _, raw := range resp.Result.List {
		var row []string
		if err := json.Unmarshal(raw, &row); err != nil || len(row) < 6 {
			return nil, fmt.Errorf("Некорректная свеча bybit: %s", string(raw))
		}
		values := make([]float64, 5)
		for i := range values {
			v, err := strconv.ParseFloat(row[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("Некорректное значение свечи %q: %w", row[i+1], err)
			}
			values[i] = v
		}
		candles = append(candles, models.Candle{
			Time:   time.UnixMilli(parseMillis(row[0])).UTC(),
			Open:   values[0],
			High:   values[1],
			Low:    values[2],
			Close:  values[3],
			Volume: values[4],
		})
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
	return candles, nil
}

func (c *Client) GetTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	params := url.Values{}
	params.Set("category", "spot")
	params.Set("symbol", symbol)

	var resp bybitResponse[tickerResult]
	if err := c.doRequest(ctx, http.MethodGet, "/v5/market/tickers", params, nil, false, &resp); err != nil {
		return models.Ticker{}, err
	}
	if len(resp.Result.List) == 0 {
		return models.Ticker{}, fmt.Errorf("%w: нет тикера для %s", exchange.ErrRejected, symbol)
	}

	price, err := strconv.ParseFloat(resp.Result.List[0].LastPrice, 64)
	if err != nil {
		return models.Ticker{}, fmt.Errorf("Некорректное значение lastPrice=%q: %w", resp.Result.List[0].LastPrice, err)
	}

	ts := c.now()
	if resp.Time > 0 {
		ts = time.UnixMilli(resp.Time)
	}
	return models.Ticker{Symbol: symbol, LastPrice: price, Timestamp: ts.UTC()}, nil
}

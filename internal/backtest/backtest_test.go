package backtest

import (
	"bytes"
	"context"
	"encoding/csv"
	"math"
	"strings"
	"testing"
	"time"

	"fvgbot/internal/config"
	"fvgbot/internal/engine"
	"fvgbot/internal/indicator"
	"fvgbot/internal/logger"
	"fvgbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func candle(i int, o, h, l, c float64) models.Candle {
	return models.Candle{Time: t0.Add(time.Duration(i) * time.Minute), Open: o, High: h, Low: l, Close: c, Volume: 10}
}

func flat(n int) []models.Candle {
	candles := make([]models.Candle, n)
	for i := range candles {
		candles[i] = candle(i, 1.0, 1.1, 0.9, 1.0)
	}
	return candles
}

func testOptions() Options {
	return Options{
		Params: engine.Params{
			Symbol:            "BTC/USDT",
			Lookback:          5,
			StopLossPercent:   2,
			TakeProfitPercent: 4,
			RiskPerTrade:      0.01,
			OrderType:         models.OrderTypeMarket,
			InitialEquity:     10000,
			FillPollInterval:  time.Millisecond,
		},
		Indicators: indicator.Params{EMALength: 3, VolumeMultiplier: 1.5, TradingEndHour: 23},
	}
}

func stopLossSeries() []models.Candle {
	candles := flat(20)
	candles[16] = candle(16, 1.0, 1.2, 1.0, 1.2)
	candles[17] = candle(17, 1.2, 1.2, 1.17, 1.18)
	return candles
}

func TestRun_StopLossScenario(t *testing.T) {
	res, err := Run(context.Background(), stopLossSeries(), testOptions(), logger.Discard())
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, int64(16), tr.EntryIndex)
	assert.Equal(t, int64(17), tr.ExitIndex)
	assert.Equal(t, models.ExitReasonStopLoss, tr.Reason)
	assert.InDelta(t, 1.176, tr.ExitPrice, 1e-12)
	assert.InDelta(t, 4166.666666666, tr.Size, 1e-8)
	assert.InDelta(t, -100.0, res.TotalPnL, 1e-9)
	assert.InDelta(t, 9900.0, res.FinalEquity, 1e-9)
	assert.Nil(t, res.OpenPosition)

	require.Len(t, res.Ledger, 1)
	assert.InDelta(t, -100.0, res.Ledger[0].CumulativePnL, 1e-9)
	assert.Equal(t, 0, res.Metrics.WinningTrades)
	assert.Equal(t, 1, res.Metrics.LosingTrades)
	assert.Equal(t, 0.0, res.Metrics.ProfitFactor)
	assert.InDelta(t, 1.0, res.Metrics.MaxDrawdown, 1e-9)
}

func TestRun_PositionLeftOpenAtEnd(t *testing.T) {
	candles := flat(18)
	candles[16] = candle(16, 1.0, 1.2, 1.0, 1.2)
	candles[17] = candle(17, 1.2, 1.21, 1.19, 1.2)

	res, err := Run(context.Background(), candles, testOptions(), logger.Discard())
	require.NoError(t, err)

	assert.Empty(t, res.Trades)
	require.NotNil(t, res.OpenPosition)
	assert.Equal(t, int64(16), res.OpenPosition.EntryIndex)
	assert.Equal(t, 10000.0, res.FinalEquity)
}

func TestRun_TimeExitAndCumulativePnL(t *testing.T) {
	candles := flat(30)
	candles[16] = candle(16, 1.0, 1.2, 1.0, 1.2)
	candles[17] = candle(17, 1.2, 1.22, 1.19, 1.21)
	candles[18] = candle(18, 1.21, 1.23, 1.2, 1.22)
	for i := 19; i < 30; i++ {
		candles[i] = candle(i, 1.22, 1.23, 1.21, 1.22)
	}

	opts := testOptions()
	opts.Params.HoldBars = 2
	res, err := Run(context.Background(), candles, opts, logger.Discard())
	require.NoError(t, err)

	require.NotEmpty(t, res.Trades)
	first := res.Trades[0]
	assert.Equal(t, models.ExitReasonTime, first.Reason)
	assert.Equal(t, int64(18), first.ExitIndex)
	assert.InDelta(t, 1.22, first.ExitPrice, 1e-12)
	assert.Greater(t, first.PnL, 0.0)

	var cum float64
	for i, row := range res.Ledger {
		cum += row.PnL
		assert.InDelta(t, cum, row.CumulativePnL, 1e-12, "row %d", i)
	}
	assert.InDelta(t, cum, res.TotalPnL, 1e-12)
}

func TestRun_Deterministic(t *testing.T) {
	candles := flat(60)
	for i := 10; i < 60; i += 7 {
		candles[i] = candle(i, 1.0, 1.3, 1.0, 1.25)
		if i+1 < 60 {
			candles[i+1] = candle(i+1, 1.25, 1.4, 1.2, 1.35)
		}
	}

	render := func() []byte {
		res, err := Run(context.Background(), candles, testOptions(), logger.Discard())
		require.NoError(t, err)
		var buf bytes.Buffer
		require.NoError(t, WriteLedgerCSV(&buf, res.Ledger))
		return buf.Bytes()
	}

	first := render()
	assert.Equal(t, first, render())
	assert.Greater(t, bytes.Count(first, []byte("\n")), 1)
}

func TestRun_Errors(t *testing.T) {
	_, err := Run(context.Background(), flat(5), testOptions(), logger.Discard())
	assert.ErrorIs(t, err, engine.ErrDataIntegrity)

	bad := flat(10)
	bad[3].High = 0.5
	_, err = Run(context.Background(), bad, testOptions(), logger.Discard())
	assert.ErrorIs(t, err, engine.ErrDataIntegrity)

	opts := testOptions()
	opts.Params.StopLossPercent = 0
	_, err = Run(context.Background(), flat(10), opts, logger.Discard())
	assert.ErrorIs(t, err, engine.ErrInvalidRiskParameters)

	opts = testOptions()
	opts.Params.InitialEquity = 0
	_, err = Run(context.Background(), flat(10), opts, logger.Discard())
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, flat(10), testOptions(), logger.Discard())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteLedgerCSV(t *testing.T) {
	rows := BuildLedger([]models.Trade{
		{EntryIndex: 3, ExitIndex: 5, EntryPrice: 100, ExitPrice: 104, Size: 0.5, PnL: 2, EquityAfter: 1002, Reason: models.ExitReasonTakeProfit},
		{EntryIndex: 7, ExitIndex: 8, EntryPrice: 100, ExitPrice: 98, Size: 0.25, PnL: -0.5, EquityAfter: 1001.5, Reason: models.ExitReasonStopLoss},
	})

	var buf bytes.Buffer
	require.NoError(t, WriteLedgerCSV(&buf, rows))

	want := "entry_idx,exit_idx,entry_price,exit_price,size,pnl,equity,reason,cumulative_pnl\n" +
		"3,5,100,104,0.5,2,1002,TP,2\n" +
		"7,8,100,98,0.25,-0.5,1001.5,SL,1.5\n"
	assert.Equal(t, want, buf.String())

	recs, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestSummarize_ProfitFactorAndDrawdown(t *testing.T) {
	m := summarize([]models.Trade{
		{PnL: 10, EquityAfter: 110},
		{PnL: -22, EquityAfter: 88},
		{PnL: 5, EquityAfter: 93},
	}, 100)

	assert.Equal(t, 3, m.TotalTrades)
	assert.InDelta(t, 15.0/22.0, m.ProfitFactor, 1e-12)
	assert.InDelta(t, 20.0, m.MaxDrawdown, 1e-9)

	assert.True(t, math.IsInf(summarize([]models.Trade{{PnL: 1, EquityAfter: 101}}, 100).ProfitFactor, 1))
	assert.Equal(t, 0.0, summarize(nil, 100).ProfitFactor)
}

package engine

import (
	"context"
	"testing"
	"time"

	"fvgbot/internal/exchange/simulated"
	"fvgbot/internal/indicator"
	"fvgbot/internal/logger"
	"fvgbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T, candles []models.Candle) (*Runner, *Engine, *simulated.Gateway) {
	t.Helper()
	gw := simulated.New(simulated.WithCandles(candles))
	r, e := newRunnerFor(t, testParams(), gw)
	return r, e, gw
}

func newRunnerFor(t *testing.T, params Params, gw *simulated.Gateway) (*Runner, *Engine) {
	t.Helper()
	e := newTestEngine(t, params, gw)
	r, err := NewRunner(e, gw, indicator.New(indicator.Params{EMALength: 14, VolumeMultiplier: 1.5, TradingEndHour: 23}), RunnerConfig{
		Symbol:       "BTC/USDT",
		Timeframe:    "1m",
		Limit:        100,
		PollInterval: time.Millisecond,
	}, logger.Discard())
	require.NoError(t, err)
	r.now = func() time.Time { return t0.Add(time.Hour) }
	return r, e
}

func TestParseTimeframe(t *testing.T) {
	cases := map[string]time.Duration{
		"1m":  time.Minute,
		"15m": 15 * time.Minute,
		"4h":  4 * time.Hour,
		"1d":  24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
	}
	for tf, want := range cases {
		got, err := ParseTimeframe(tf)
		require.NoError(t, err, tf)
		assert.Equal(t, want, got, tf)
	}

	for _, tf := range []string{"", "m", "0m", "5x", "am"} {
		_, err := ParseTimeframe(tf)
		assert.Error(t, err, tf)
	}
}

func TestRunner_TickEntersOncePerBar(t *testing.T) {
	r, e, _ := newTestRunner(t, scenarioCandles()[:17])
	ctx := context.Background()

	d, err := r.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, ActionEnter, d.Action)

	pos, ok := e.Position()
	require.True(t, ok)
	assert.Equal(t, t0.Add(16*time.Minute).UnixMilli()/time.Minute.Milliseconds(), pos.EntryIndex)

	d, err = r.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, d.Action)
	assert.Equal(t, StateOpen, e.State())
	assert.Equal(t, int64(1), r.Snapshot().Cycles)
}

func TestRunner_DropsFormingCandle(t *testing.T) {
	r, e, _ := newTestRunner(t, scenarioCandles()[:17])
	r.now = func() time.Time { return t0.Add(16*time.Minute + 30*time.Second) }

	d, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActionNone, d.Action)
	assert.Equal(t, StateFlat, e.State())
}

func TestRunner_InvalidDataIsCycleFailure(t *testing.T) {
	candles := scenarioCandles()[:17]
	candles[10].Time = candles[9].Time
	r, _, _ := newTestRunner(t, candles)

	_, err := r.Tick(context.Background())
	assert.ErrorIs(t, err, ErrDataIntegrity)
	assert.NotEmpty(t, r.Snapshot().LastError)
}

func TestRunner_StopWhenStoppedIsNoop(t *testing.T) {
	r, e, _ := newTestRunner(t, flat(20))

	require.NoError(t, r.Stop(context.Background()))
	require.NoError(t, r.Stop(context.Background()))
	assert.Empty(t, e.Trades())
	assert.False(t, r.Running())
}

func TestRunner_StartStopFlat(t *testing.T) {
	r, e, _ := newTestRunner(t, flat(20))
	ctx := context.Background()

	require.NoError(t, r.Start(ctx))
	require.NoError(t, r.Start(ctx))
	assert.True(t, r.Snapshot().Running)

	assert.Eventually(t, func() bool { return r.Snapshot().Cycles > 0 }, time.Second, time.Millisecond)

	require.NoError(t, r.Stop(ctx))
	require.NoError(t, r.Stop(ctx))
	assert.Empty(t, e.Trades())
	assert.False(t, r.Snapshot().Running)
}

func TestRunner_StopClosesOpenPosition(t *testing.T) {
	r, e, _ := newTestRunner(t, scenarioCandles()[:17])
	ctx := context.Background()

	require.NoError(t, r.Start(ctx))
	assert.Eventually(t, func() bool { return e.State() == StateOpen }, time.Second, time.Millisecond)

	require.NoError(t, r.Stop(ctx))

	trades := e.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, models.ExitReasonManual, trades[0].Reason)
	assert.Equal(t, 1.2, trades[0].ExitPrice)
	assert.InDelta(t, 0, trades[0].PnL, 1e-9)
	assert.Equal(t, StateFlat, e.State())

	require.NoError(t, r.Stop(ctx))
	assert.Len(t, e.Trades(), 1)
}

func TestRunner_StartSeedsEquityFromBalance(t *testing.T) {
	params := testParams()
	params.InitialEquity = 0
	gw := simulated.New(simulated.WithCandles(scenarioCandles()[:17]), simulated.WithBalance("USDT", 2500))
	r, e := newRunnerFor(t, params, gw)
	ctx := context.Background()

	require.NoError(t, r.Start(ctx))
	assert.Equal(t, 2500.0, e.Equity())

	assert.Eventually(t, func() bool { return e.State() == StateOpen }, time.Second, time.Millisecond)
	pos, _ := e.Position()
	assert.InDelta(t, 2500*0.01/(1.2-1.176), pos.Size, 1e-8)

	require.NoError(t, r.Stop(ctx))
}

func TestRunner_StartWithoutEquityOrBalanceFails(t *testing.T) {
	params := testParams()
	params.InitialEquity = 0
	r, e := newRunnerFor(t, params, simulated.New(simulated.WithCandles(flat(20))))

	err := r.Start(context.Background())
	assert.ErrorIs(t, err, ErrInvalidRiskParameters)
	assert.False(t, r.Running())
	assert.Equal(t, 0.0, e.Equity())
}

func TestRunner_ConfiguredEquityIsKept(t *testing.T) {
	gw := simulated.New(simulated.WithCandles(flat(20)), simulated.WithBalance("USDT", 2500))
	r, e := newRunnerFor(t, testParams(), gw)
	ctx := context.Background()

	require.NoError(t, r.Start(ctx))
	assert.Equal(t, 10000.0, e.Equity())
	require.NoError(t, r.Stop(ctx))
}

// blockingGateway parks FetchCandles until its context ends.
type blockingGateway struct {
	*simulated.Gateway
	entered chan struct{}
}

func (g *blockingGateway) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	close(g.entered)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunner_StopTimeoutCancelsCycleInFlight(t *testing.T) {
	gw := &blockingGateway{Gateway: simulated.New(), entered: make(chan struct{})}
	e := newTestEngine(t, testParams(), gw)
	r, err := NewRunner(e, gw, indicator.New(indicator.Params{EMALength: 14}), RunnerConfig{
		Symbol:       "BTC/USDT",
		Timeframe:    "1m",
		PollInterval: time.Hour,
	}, logger.Discard())
	require.NoError(t, err)

	require.NoError(t, r.Start(context.Background()))
	<-gw.entered

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Stop(stopCtx), context.DeadlineExceeded)

	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop still running after stop timeout")
	}
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fvgbot/internal/config"
	"fvgbot/internal/exchange"
	"fvgbot/internal/indicator"
	"fvgbot/internal/logger"
	"fvgbot/internal/models"

	"github.com/sirupsen/logrus"
)

type RunnerConfig struct {
	Symbol       string
	Timeframe    string
	Limit        int
	PollInterval time.Duration
	// StreamTickers subscribes to live prices when the gateway supports it.
	StreamTickers bool
}

// Runner drives the engine from exchange candles on a fixed poll interval.
// Each closed candle is evaluated once.
type Runner struct {
	engine   *Engine
	gw       exchange.Gateway
	provider indicator.Provider
	cfg      RunnerConfig
	frame    time.Duration
	log      *logger.Logger
	now      func() time.Time

	mu         sync.Mutex
	running    bool
	stopCh     chan struct{}
	done       chan struct{}
	cancel     context.CancelFunc
	cycles     int64
	lastIndex  int64
	lastErr    string
	lastUpdate time.Time
}

func NewRunner(engine *Engine, gw exchange.Gateway, provider indicator.Provider, cfg RunnerConfig, log *logger.Logger) (*Runner, error) {
	frame, err := ParseTimeframe(cfg.Timeframe)
	if err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Runner{
		engine:    engine,
		gw:        gw,
		provider:  provider,
		cfg:       cfg,
		frame:     frame,
		log:       log,
		now:       time.Now,
		lastIndex: -1,
	}, nil
}

// ParseTimeframe understands the 1m / 4h / 1d / 1w notation.
func ParseTimeframe(tf string) (time.Duration, error) {
	if len(tf) < 2 {
		return 0, fmt.Errorf("некорректный таймфрейм: %q", tf)
	}
	var n int
	if _, err := fmt.Sscanf(tf[:len(tf)-1], "%d", &n); err != nil || n <= 0 {
		return 0, fmt.Errorf("некорректный таймфрейм: %q", tf)
	}
	var unit time.Duration
	switch tf[len(tf)-1] {
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd', 'D':
		unit = 24 * time.Hour
	case 'w', 'W':
		unit = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("некорректный таймфрейм: %q", tf)
	}
	return time.Duration(n) * unit, nil
}

func (r *Runner) logEntry() *logrus.Entry {
	return r.log.WithComponent("runner").WithField("symbol", r.cfg.Symbol)
}

// Start launches the polling loop. Calling it on a running runner does nothing.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	if r.engine.Equity() == 0 {
		if err := r.seedEquity(ctx); err != nil {
			return err
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.running = true
	r.stopCh = make(chan struct{})
	r.done = make(chan struct{})
	r.cancel = cancel

	if r.cfg.StreamTickers {
		r.startStream(loopCtx)
	}
	go r.loop(loopCtx, r.stopCh, r.done)

	r.logEntry().WithFields(logrus.Fields{
		"exchange":  r.gw.Name(),
		"timeframe": r.cfg.Timeframe,
		"poll":      r.cfg.PollInterval.String(),
	}).Info("Бот запущен.")
	return nil
}

// seedEquity takes the starting equity from the free quote balance when none is configured.
func (r *Runner) seedEquity(ctx context.Context) error {
	quote := exchange.QuoteCurrency(r.cfg.Symbol)
	if quote == "" {
		return fmt.Errorf("%w: не удалось определить валюту котировки %q", config.ErrInvalidConfig, r.cfg.Symbol)
	}
	balances, err := r.gw.FetchBalance(ctx)
	if err != nil {
		return fmt.Errorf("не удалось получить баланс: %w", err)
	}
	if err := r.engine.SeedEquity(balances[quote]); err != nil {
		return fmt.Errorf("баланс %s: %w", quote, err)
	}
	r.logEntry().WithFields(logrus.Fields{
		"currency": quote,
		"equity":   formatFloatPlain(balances[quote]),
	}).Info("Начальный капитал взят из баланса биржи.")
	return nil
}

func (r *Runner) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		if _, err := r.Tick(ctx); err != nil {
			r.logEntry().WithError(err).Warn("Цикл завершился с ошибкой.")
		}

		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-time.After(r.cfg.PollInterval):
		}
	}
}

func (r *Runner) startStream(ctx context.Context) {
	streamer, ok := r.gw.(exchange.TickerStreamer)
	if !ok {
		return
	}
	tickers, err := streamer.StreamTickers(ctx, r.cfg.Symbol)
	if err != nil {
		if !errors.Is(err, exchange.ErrNotSupported) {
			r.logEntry().WithError(err).Warn("Поток тикеров недоступен, работаем только по свечам.")
		}
		return
	}
	go func() {
		for t := range tickers {
			r.engine.OnTicker(t)
		}
	}()
}

// Stop ends the loop after the cycle in flight and closes an open position at market.
// Stopping a stopped runner returns nil.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	close(r.stopCh)
	done := r.done
	cancel := r.cancel
	r.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
	cancel()

	if r.engine.State() != StateOpen {
		r.logEntry().Info("Бот остановлен, позиции нет.")
		return nil
	}

	price := r.engine.LastPrice()
	if ticker, err := r.gw.FetchTicker(ctx, r.cfg.Symbol); err == nil && ticker.LastPrice > 0 {
		price = ticker.LastPrice
	} else if err != nil {
		r.logEntry().WithError(err).Warn("Не удалось получить цену, закрываем по последнему закрытию.")
	}

	r.mu.Lock()
	index := r.lastIndex
	r.mu.Unlock()

	trade, err := r.engine.Close(ctx, price, index, r.now().UTC(), models.ExitReasonManual)
	if err != nil {
		r.recordError(err)
		return err
	}
	if trade != nil {
		r.logEntry().WithField("pnl", formatFloatPlain(trade.PnL)).Info("Бот остановлен, позиция закрыта вручную.")
	}
	return nil
}

// Tick runs one cycle: fetch candles, validate, compute indicators, step the engine.
func (r *Runner) Tick(ctx context.Context) (Decision, error) {
	candles, err := r.gw.FetchCandles(ctx, r.cfg.Symbol, r.cfg.Timeframe, r.cfg.Limit)
	if err != nil {
		r.recordError(err)
		return Decision{Action: ActionNone}, fmt.Errorf("не удалось получить свечи: %w", err)
	}

	candles = r.closedCandles(candles)
	if err := ValidateCandles(candles); err != nil {
		r.recordError(err)
		return Decision{Action: ActionNone}, err
	}

	cur := candles[len(candles)-1]
	index := cur.Time.UnixMilli() / r.frame.Milliseconds()

	r.mu.Lock()
	seen := index <= r.lastIndex
	r.mu.Unlock()
	if seen {
		return Decision{Action: ActionNone, Note: "бар уже обработан"}, nil
	}

	snaps := r.provider.Compute(candles)
	var snap indicator.Snapshot
	if len(snaps) == len(candles) {
		snap = snaps[len(snaps)-1]
	}

	decision, err := r.engine.Step(ctx, Cycle{Index: index, History: candles, Snapshot: snap})

	r.mu.Lock()
	r.cycles++
	r.lastUpdate = r.now()
	if err == nil || errors.Is(err, ErrEntryFailed) {
		r.lastIndex = index
	}
	r.mu.Unlock()

	entry := r.log.WithCycle(index).WithFields(logrus.Fields{
		"component": "runner",
		"symbol":    r.cfg.Symbol,
		"action":    decision.Action,
		"close":     formatFloatPlain(cur.Close),
	})
	if err != nil {
		r.recordError(err)
		entry.WithError(err).Warn("Ошибка цикла.")
		return decision, err
	}
	r.clearError()
	entry.Debug("Цикл завершён.")
	return decision, nil
}

// closedCandles drops the candle that is still forming.
func (r *Runner) closedCandles(candles []models.Candle) []models.Candle {
	if len(candles) == 0 {
		return candles
	}
	last := candles[len(candles)-1]
	if last.Time.Add(r.frame).After(r.now()) {
		return candles[:len(candles)-1]
	}
	return candles
}

func (r *Runner) recordError(err error) {
	r.mu.Lock()
	r.lastErr = err.Error()
	r.mu.Unlock()
}

func (r *Runner) clearError() {
	r.mu.Lock()
	r.lastErr = ""
	r.mu.Unlock()
}

func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Snapshot returns a copy of the trading state for monitoring.
func (r *Runner) Snapshot() TradingState {
	ts := r.engine.Snapshot()

	r.mu.Lock()
	defer r.mu.Unlock()
	ts.Running = r.running
	ts.Cycles = r.cycles
	ts.LastError = r.lastErr
	if r.lastUpdate.After(ts.LastUpdate) {
		ts.LastUpdate = r.lastUpdate
	}
	return ts
}

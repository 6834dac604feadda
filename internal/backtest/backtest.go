package backtest

import (
	"context"
	"fmt"
	"math"

	"fvgbot/internal/config"
	"fvgbot/internal/engine"
	"fvgbot/internal/exchange"
	"fvgbot/internal/exchange/simulated"
	"fvgbot/internal/indicator"
	"fvgbot/internal/logger"
	"fvgbot/internal/models"

	"github.com/sirupsen/logrus"
)

type Options struct {
	Params     engine.Params
	Indicators indicator.Params
}

type Metrics struct {
	engine.Metrics
	GrossProfit  float64 `json:"gross_profit"`
	GrossLoss    float64 `json:"gross_loss"`
	ProfitFactor float64 `json:"profit_factor"`
	MaxDrawdown  float64 `json:"max_drawdown_pct"`
}

type Result struct {
	Bars         int
	Trades       []models.Trade
	Ledger       []LedgerRow
	TotalPnL     float64
	FinalEquity  float64
	Metrics      Metrics
	OpenPosition *engine.Position
}

// Run replays candles through the engine with a simulated gateway.
// Indicators are computed once over the whole series; bar i only sees candles[:i+1].
// A position still open after the last bar stays open.
func Run(ctx context.Context, candles []models.Candle, opts Options, log *logger.Logger) (*Result, error) {
	if err := engine.ValidateCandles(candles); err != nil {
		return nil, err
	}
	p := opts.Params
	if len(candles) <= p.Lookback {
		return nil, fmt.Errorf("%w: свечей %d, нужно больше lookback=%d", engine.ErrDataIntegrity, len(candles), p.Lookback)
	}

	if p.InitialEquity <= 0 {
		return nil, fmt.Errorf("%w: начальный капитал бэктеста должен быть > 0: %v", config.ErrInvalidConfig, p.InitialEquity)
	}

	quote := exchange.QuoteCurrency(p.Symbol)
	if quote == "" {
		quote = "USDT"
	}
	gw := simulated.New(simulated.WithBalance(quote, p.InitialEquity))

	e, err := engine.New(p, gw, log)
	if err != nil {
		return nil, err
	}

	entry := log.WithComponent("backtest").WithField("symbol", p.Symbol)
	entry.WithFields(logrus.Fields{
		"bars":     len(candles),
		"lookback": p.Lookback,
		"equity":   p.InitialEquity,
	}).Info("Бэктест запущен.")

	snaps := indicator.New(opts.Indicators).Compute(candles)
	for i := p.Lookback; i < len(candles); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		gw.SetLastPrice(p.Symbol, candles[i].Close)
		if _, err := e.Step(ctx, engine.Cycle{Index: int64(i), History: candles[:i+1], Snapshot: snaps[i]}); err != nil {
			return nil, fmt.Errorf("бар %d: %w", i, err)
		}
	}

	trades := e.Trades()
	res := &Result{
		Bars:        len(candles),
		Trades:      trades,
		Ledger:      BuildLedger(trades),
		FinalEquity: e.Equity(),
		Metrics:     summarize(trades, p.InitialEquity),
	}
	res.TotalPnL = res.Metrics.TotalPnL
	if pos, ok := e.Position(); ok {
		res.OpenPosition = &pos
	}

	entry.WithFields(logrus.Fields{
		"trades":       len(trades),
		"total_pnl":    res.TotalPnL,
		"final_equity": res.FinalEquity,
		"open":         res.OpenPosition != nil,
	}).Info("Бэктест завершён.")
	return res, nil
}

func summarize(trades []models.Trade, initialEquity float64) Metrics {
	m := Metrics{Metrics: engine.Summarize(trades)}

	peak := initialEquity
	for _, t := range trades {
		if t.PnL > 0 {
			m.GrossProfit += t.PnL
		} else {
			m.GrossLoss -= t.PnL
		}
		if t.EquityAfter > peak {
			peak = t.EquityAfter
		}
		if peak > 0 {
			if dd := (peak - t.EquityAfter) / peak * 100; dd > m.MaxDrawdown {
				m.MaxDrawdown = dd
			}
		}
	}

	switch {
	case m.GrossLoss > 0:
		m.ProfitFactor = m.GrossProfit / m.GrossLoss
	case m.GrossProfit > 0:
		m.ProfitFactor = math.Inf(1)
	}
	return m
}

package engine

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"fvgbot/internal/config"
	"fvgbot/internal/exchange"
	"fvgbot/internal/indicator"
	"fvgbot/internal/logger"
	"fvgbot/internal/models"
)

type Params struct {
	Symbol            string
	Lookback          int
	StopLossPercent   float64
	TakeProfitPercent float64
	RiskPerTrade      float64
	HoldBars          int
	UseFilters        bool
	OrderType         models.OrderType
	InitialEquity     float64
	MaxDailyLoss      float64
	MaxTradesPerDay   int
	FillTimeout       time.Duration
	FillPollInterval  time.Duration
}

func ParamsFromConfig(cfg *config.Config) Params {
	b := cfg.Bot
	orderType := models.OrderTypeMarket
	if strings.EqualFold(b.OrderType, "limit") {
		orderType = models.OrderTypeLimit
	}
	return Params{
		Symbol:            b.Symbol,
		Lookback:          b.Lookback,
		StopLossPercent:   b.StopLossPercent,
		TakeProfitPercent: b.TakeProfitPercent,
		RiskPerTrade:      b.RiskPerTrade,
		HoldBars:          b.HoldBars,
		UseFilters:        b.UseFilters,
		OrderType:         orderType,
		InitialEquity:     b.InitialEquity,
		MaxDailyLoss:      b.MaxDailyLoss,
		MaxTradesPerDay:   b.MaxTradesPerDay,
		FillTimeout:       b.FillTimeout,
		FillPollInterval:  time.Second,
	}
}

func (p Params) validate() error {
	switch {
	case p.Symbol == "":
		return fmt.Errorf("%w: пустой символ", config.ErrInvalidConfig)
	case p.Lookback < 0:
		return fmt.Errorf("%w: lookback < 0: %d", config.ErrInvalidConfig, p.Lookback)
	case p.StopLossPercent <= 0 || p.StopLossPercent >= 100:
		return fmt.Errorf("%w: стоп-лосс вне (0, 100): %v", ErrInvalidRiskParameters, p.StopLossPercent)
	case p.TakeProfitPercent <= 0:
		return fmt.Errorf("%w: тейк-профит <= 0: %v", ErrInvalidRiskParameters, p.TakeProfitPercent)
	case p.RiskPerTrade <= 0 || p.RiskPerTrade > 1:
		return fmt.Errorf("%w: риск на сделку вне (0, 1]: %v", ErrInvalidRiskParameters, p.RiskPerTrade)
	case p.InitialEquity < 0:
		return fmt.Errorf("%w: начальный капитал < 0: %v", ErrInvalidRiskParameters, p.InitialEquity)
	case p.HoldBars < 0:
		return fmt.Errorf("%w: hold_bars < 0: %d", config.ErrInvalidConfig, p.HoldBars)
	}
	return nil
}

// Cycle is one evaluation of the current candle. History ends with that candle;
// Index is its absolute bar number.
type Cycle struct {
	Index    int64
	History  []models.Candle
	Snapshot indicator.Snapshot
}

type Action string

const (
	ActionNone  Action = "NONE"
	ActionSkip  Action = "SKIP"
	ActionEnter Action = "ENTER"
	ActionHold  Action = "HOLD"
	ActionExit  Action = "EXIT"
)

type Decision struct {
	Action Action
	Reason models.ExitReason
	Price  float64
	Size   float64
	Zone   Zone
	Trade  *models.Trade
	Note   string
}

// Engine is the position state machine. Step and Close are serialized;
// accessors return copies and may be called from any goroutine.
type Engine struct {
	params Params
	gw     exchange.Gateway
	log    *logger.Logger

	cycleMu sync.Mutex

	mu            sync.RWMutex
	state         State
	position      *Position
	equity        float64
	trades        []models.Trade
	lastPrice     float64
	lastExitIndex int64
	exited        bool
	guard         *DailyGuard
	updatedAt     time.Time

	newLinkID func(kind string) string
	now       func() time.Time
}

func New(params Params, gw exchange.Gateway, log *logger.Logger) (*Engine, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if params.OrderType == "" {
		params.OrderType = models.OrderTypeMarket
	}
	if params.FillPollInterval <= 0 {
		params.FillPollInterval = time.Second
	}
	return &Engine{
		params:    params,
		gw:        gw,
		log:       log,
		state:     StateFlat,
		equity:    params.InitialEquity,
		guard:     NewDailyGuard(params.MaxDailyLoss, params.MaxTradesPerDay),
		newLinkID: newLinkID,
		now:       time.Now,
	}, nil
}

// Step evaluates exits when a position is open, otherwise entries.
// A position opened in this cycle is not checked for exit until the next one.
func (e *Engine) Step(ctx context.Context, c Cycle) (Decision, error) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	if len(c.History) == 0 {
		return Decision{Action: ActionNone}, fmt.Errorf("%w: пустая история свечей", ErrDataIntegrity)
	}
	cur := c.History[len(c.History)-1]
	if !cur.Valid() {
		return Decision{Action: ActionNone}, fmt.Errorf("%w: некорректная свеча %d", ErrDataIntegrity, c.Index)
	}

	e.mu.Lock()
	e.lastPrice = cur.Close
	e.updatedAt = e.now()
	e.guard.Roll(cur.Time, e.equity)
	state := e.state
	e.mu.Unlock()

	if state == StateOpen {
		return e.manage(ctx, c, cur)
	}
	return e.tryEnter(ctx, c, cur)
}

// Close exits an open position at price. Without a position it does nothing and returns nil.
func (e *Engine) Close(ctx context.Context, price float64, index int64, at time.Time, reason models.ExitReason) (*models.Trade, error) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	if e.State() != StateOpen {
		return nil, nil
	}
	return e.exit(ctx, price, index, at, reason)
}

// SeedEquity sets the starting equity of an engine created without one.
// It is refused once equity is set or any position was opened.
func (e *Engine) SeedEquity(equity float64) error {
	if equity <= 0 || math.IsNaN(equity) || math.IsInf(equity, 0) {
		return fmt.Errorf("%w: капитал должен быть > 0: %v", ErrInvalidRiskParameters, equity)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.equity != 0 || e.position != nil || len(e.trades) > 0 {
		return fmt.Errorf("капитал уже задан: %s", formatFloatPlain(e.equity))
	}
	e.equity = equity
	return nil
}

func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) Position() (Position, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.position == nil {
		return Position{}, false
	}
	return *e.position, true
}

func (e *Engine) Equity() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.equity
}

func (e *Engine) Trades() []models.Trade {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]models.Trade(nil), e.trades...)
}

func (e *Engine) LastPrice() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastPrice
}

func (e *Engine) Snapshot() TradingState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ts := TradingState{
		Symbol:     e.params.Symbol,
		State:      e.state,
		Equity:     e.equity,
		LastPrice:  e.lastPrice,
		Trades:     append([]models.Trade(nil), e.trades...),
		Metrics:    Summarize(e.trades),
		LastUpdate: e.updatedAt,
	}
	if e.position != nil {
		pos := *e.position
		ts.Position = &pos
		ts.UnrealizedPnL = pos.UnrealizedPnL(e.lastPrice)
	}
	return ts
}

func (e *Engine) Params() Params {
	return e.params
}

package engine

import (
	"context"
	"fmt"
	"time"

	"fvgbot/internal/models"

	"github.com/sirupsen/logrus"
)

func (e *Engine) tryEnter(ctx context.Context, c Cycle, cur models.Candle) (Decision, error) {
	zone := DetectZone(c.History[:len(c.History)-1], e.params.Lookback)
	if !zone.Valid() || cur.Close <= zone.High {
		return Decision{Action: ActionNone, Zone: zone}, nil
	}

	log := e.logEntry().WithFields(logrus.Fields{
		"cycle":     c.Index,
		"close":     formatFloatPlain(cur.Close),
		"zone_low":  formatFloatPlain(zone.Low),
		"zone_high": formatFloatPlain(zone.High),
	})

	if e.params.UseFilters {
		s := c.Snapshot
		if !(cur.Close > s.EMA && s.HighVolume && s.WithinTradingHours) {
			log.WithFields(logrus.Fields{
				"ema":          s.EMA,
				"high_volume":  s.HighVolume,
				"trading_time": s.WithinTradingHours,
			}).Debug("Пробой отфильтрован.")
			return Decision{Action: ActionNone, Zone: zone, Note: "фильтры"}, nil
		}
	}

	e.mu.RLock()
	equity := e.equity
	sameBar := e.exited && e.lastExitIndex == c.Index
	allowed, why := e.guard.Allow(equity)
	e.mu.RUnlock()

	if sameBar {
		return Decision{Action: ActionSkip, Zone: zone, Note: "повторный вход на баре выхода"}, nil
	}
	if !allowed {
		log.WithField("reason", why).Info("Вход заблокирован дневным лимитом.")
		return Decision{Action: ActionSkip, Zone: zone, Note: why}, nil
	}

	entry := cur.Close
	sl := StopLossPrice(entry, e.params.StopLossPercent)
	tp := TakeProfitPrice(entry, e.params.TakeProfitPercent)
	size, err := PositionSize(equity, e.params.RiskPerTrade, entry, sl)
	if err != nil {
		log.WithError(err).Warn("Вход отменён: размер позиции не рассчитан.")
		return Decision{Action: ActionSkip, Zone: zone, Note: err.Error()}, nil
	}
	if size <= 0 {
		log.WithField("equity", equity).Warn("Вход отменён: нулевой размер позиции.")
		return Decision{Action: ActionSkip, Zone: zone, Note: "нулевой размер позиции"}, nil
	}

	e.setState(StateEntering)

	log.WithFields(logrus.Fields{
		"entry": formatFloatPlain(entry),
		"sl":    formatFloatPlain(sl),
		"tp":    formatFloatPlain(tp),
		"size":  formatFloatPlain(size),
	}).Info("Пробой зоны, открываем позицию.")

	order := models.Order{
		LinkID: e.newLinkID("entry"),
		Symbol: e.params.Symbol,
		Side:   models.OrderSideBuy,
		Type:   e.params.OrderType,
		Price:  entry,
		Qty:    size,
	}
	filled, err := e.submit(ctx, order, true)
	if err != nil {
		e.setState(StateFlat)
		log.WithError(err).Error("Не удалось открыть позицию.")
		return Decision{Action: ActionSkip, Zone: zone, Price: entry, Size: size}, fmt.Errorf("%w: %w", ErrEntryFailed, err)
	}

	if filled.FilledQty > 0 {
		size = filled.FilledQty
	}
	pos := &Position{
		Symbol:          e.params.Symbol,
		Side:            models.OrderSideBuy,
		EntryPrice:      entry,
		FillPrice:       filled.AvgPrice,
		StopLossPrice:   sl,
		TakeProfitPrice: tp,
		Size:            size,
		EntryIndex:      c.Index,
		EntryTime:       cur.Time,
		OrderID:         filled.ID,
		LinkID:          filled.LinkID,
	}

	e.mu.Lock()
	e.position = pos
	e.state = StateOpen
	e.guard.RecordEntry()
	e.mu.Unlock()

	log.WithFields(logrus.Fields{
		"order_id":   filled.ID,
		"fill_price": formatFloatPlain(filled.AvgPrice),
		"size":       formatFloatPlain(size),
	}).Info("Позиция открыта.")

	return Decision{Action: ActionEnter, Zone: zone, Price: entry, Size: size}, nil
}

// manage checks exits in priority order: stop loss, take profit, holding time.
func (e *Engine) manage(ctx context.Context, c Cycle, cur models.Candle) (Decision, error) {
	pos, _ := e.Position()

	var reason models.ExitReason
	var price float64
	switch {
	case cur.Low <= pos.StopLossPrice:
		reason, price = models.ExitReasonStopLoss, pos.StopLossPrice
	case cur.High >= pos.TakeProfitPrice:
		reason, price = models.ExitReasonTakeProfit, pos.TakeProfitPrice
	case e.params.HoldBars > 0 && c.Index-pos.EntryIndex >= int64(e.params.HoldBars):
		reason, price = models.ExitReasonTime, cur.Close
	default:
		return Decision{Action: ActionHold, Price: cur.Close, Size: pos.Size}, nil
	}

	trade, err := e.exit(ctx, price, c.Index, cur.Time, reason)
	if err != nil {
		return Decision{Action: ActionHold, Reason: reason, Price: price, Size: pos.Size}, err
	}
	return Decision{Action: ActionExit, Reason: reason, Price: price, Size: trade.Size, Trade: trade}, nil
}

// exit sells the whole position. Equity and history change only after the sell is confirmed.
// Quantity sold by an exit that failed midway is booked on the position and not sold again.
func (e *Engine) exit(ctx context.Context, price float64, index int64, at time.Time, reason models.ExitReason) (*models.Trade, error) {
	pos, ok := e.Position()
	if !ok {
		return nil, nil
	}

	e.setState(StateExiting)
	log := e.logEntry().WithFields(logrus.Fields{
		"cycle":  index,
		"reason": reason,
		"price":  formatFloatPlain(price),
		"size":   formatFloatPlain(pos.Size),
	})

	if pos.pendingExitID != "" {
		if err := e.resolvePendingExit(ctx, pos, price); err != nil {
			e.setState(StateOpen)
			log.WithError(err).Error("Статус прошлого ордера на выход неизвестен, новый не выставляем.")
			return nil, fmt.Errorf("%w: %w", ErrExitFailed, err)
		}
		pos, _ = e.Position()
		if pos.dust() {
			return e.finishExit(pos, price, index, at, reason, log), nil
		}
	}

	log.Info("Закрываем позицию.")

	linkID := pos.retryLinkID
	if linkID == "" {
		linkID = e.newLinkID("exit")
	}
	order := models.Order{
		LinkID: linkID,
		Symbol: pos.Symbol,
		Side:   models.OrderSideSell,
		Type:   models.OrderTypeMarket,
		Price:  price,
		Qty:    pos.Size,
	}
	filled, err := e.submit(ctx, order, false)
	if err != nil {
		e.recordFailedExit(filled, linkID, price)
		e.setState(StateOpen)
		log.WithError(err).WithField("filled_qty", filled.FilledQty).Error("Не удалось закрыть позицию, повторим на следующем цикле.")
		return nil, fmt.Errorf("%w: %w", ErrExitFailed, err)
	}

	log.WithFields(logrus.Fields{
		"order_id":   filled.ID,
		"fill_price": formatFloatPlain(filled.AvgPrice),
	}).Debug("Ордер на выход исполнен.")

	pos, _ = e.Position()
	return e.finishExit(pos, price, index, at, reason, log), nil
}

// resolvePendingExit looks up an exit order with an unknown outcome, cancels it if it is still
// working and books whatever it sold.
func (e *Engine) resolvePendingExit(ctx context.Context, pos Position, price float64) error {
	prev, err := e.gw.FetchOrder(ctx, pos.Symbol, pos.pendingExitID)
	if err != nil {
		return err
	}
	if !prev.Closed() {
		if err := e.gw.CancelOrder(ctx, pos.Symbol, prev.ID); err != nil {
			return err
		}
		if prev, err = e.gw.FetchOrder(ctx, pos.Symbol, prev.ID); err != nil {
			return err
		}
		if !prev.Closed() {
			return fmt.Errorf("ордер %s всё ещё активен: %s", prev.ID, prev.Status)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.position != nil {
		e.bookExitFill(prev.FilledQty, price)
		e.position.pendingExitID = ""
	}
	return nil
}

// recordFailedExit keeps the position consistent with what the exchange executed.
func (e *Engine) recordFailedExit(o models.Order, linkID string, price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos := e.position
	if pos == nil {
		return
	}
	switch {
	case o.ID == "":
		pos.retryLinkID = linkID
	case o.Closed():
		pos.retryLinkID = ""
		e.bookExitFill(o.FilledQty, price)
	default:
		pos.retryLinkID = ""
		pos.pendingExitID = o.ID
	}
}

// bookExitFill moves qty from the held size to the sold part. Caller holds e.mu.
func (e *Engine) bookExitFill(qty, price float64) {
	pos := e.position
	if qty <= 0 {
		return
	}
	if qty > pos.Size {
		qty = pos.Size
	}
	pos.Size -= qty
	pos.ExitedQty += qty
	pos.ExitedPnL += CalcPnL(qty, pos.EntryPrice, price)
}

func (e *Engine) finishExit(pos Position, price float64, index int64, at time.Time, reason models.ExitReason, log *logrus.Entry) *models.Trade {
	pnl := pos.ExitedPnL + CalcPnL(pos.Size, pos.EntryPrice, price)

	e.mu.Lock()
	e.equity += pnl
	trade := models.Trade{
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		EntryIndex:  pos.EntryIndex,
		ExitIndex:   index,
		EntryTime:   pos.EntryTime,
		ExitTime:    at,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   price,
		Size:        pos.Size + pos.ExitedQty,
		PnL:         pnl,
		Reason:      reason,
		EquityAfter: e.equity,
	}
	e.trades = append(e.trades, trade)
	e.position = nil
	e.state = StateFlat
	e.lastExitIndex = index
	e.exited = true
	e.mu.Unlock()

	log.WithFields(logrus.Fields{
		"pnl":    formatFloatPlain(pnl),
		"equity": formatFloatPlain(trade.EquityAfter),
	}).Info("Позиция закрыта.")

	return &trade
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

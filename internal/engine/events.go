package engine

import (
	"time"

	"fvgbot/internal/models"
)

// OnTicker refreshes the last price between cycles. It never changes position state.
func (e *Engine) OnTicker(ticker models.Ticker) {
	if ticker.LastPrice <= 0 || ticker.Symbol != e.params.Symbol {
		return
	}

	e.mu.Lock()
	e.lastPrice = ticker.LastPrice
	e.updatedAt = ticker.Timestamp
	if e.updatedAt.IsZero() {
		e.updatedAt = time.Now()
	}
	open := e.position != nil
	var unrealized float64
	if open {
		unrealized = e.position.UnrealizedPnL(ticker.LastPrice)
	}
	e.mu.Unlock()

	if open {
		e.logEntry().WithFields(map[string]interface{}{
			"price":          ticker.LastPrice,
			"unrealized_pnl": formatFloatPlain(unrealized),
		}).Debug("ticker")
	}
}

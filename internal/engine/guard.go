package engine

import (
	"fmt"
	"time"
)

// DailyGuard blocks new entries once the day's loss or entry count reaches its limit.
// Days are UTC calendar days of the candle time. Zero limits are disabled.
type DailyGuard struct {
	maxLossPercent float64
	maxTrades      int

	day         time.Time
	startEquity float64
	entries     int
}

func NewDailyGuard(maxLossPercent float64, maxTrades int) *DailyGuard {
	return &DailyGuard{maxLossPercent: maxLossPercent, maxTrades: maxTrades}
}

// Roll starts a new day when t falls after the current one.
func (g *DailyGuard) Roll(t time.Time, equity float64) {
	day := t.UTC().Truncate(24 * time.Hour)
	if day.Equal(g.day) {
		return
	}
	g.day = day
	g.startEquity = equity
	g.entries = 0
}

func (g *DailyGuard) Allow(equity float64) (bool, string) {
	if g.maxTrades > 0 && g.entries >= g.maxTrades {
		return false, fmt.Sprintf("достигнут дневной лимит сделок: %d", g.maxTrades)
	}
	if g.maxLossPercent > 0 && g.startEquity > 0 {
		loss := (g.startEquity - equity) / g.startEquity * 100
		if loss >= g.maxLossPercent {
			return false, fmt.Sprintf("достигнут дневной лимит убытка: %.2f%%", loss)
		}
	}
	return true, ""
}

func (g *DailyGuard) RecordEntry() {
	g.entries++
}

func (g *DailyGuard) Entries() int {
	return g.entries
}

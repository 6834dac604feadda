package engine

import (
	"time"

	"fvgbot/internal/models"
)

type State string

const (
	StateFlat     State = "FLAT"
	StateEntering State = "ENTERING"
	StateOpen     State = "OPEN"
	StateExiting  State = "EXITING"
)

// Position is the single open long. StopLossPrice < EntryPrice < TakeProfitPrice.
// Size is what is still held; ExitedQty was already sold by exit orders that did not complete.
type Position struct {
	Symbol          string           `json:"symbol"`
	Side            models.OrderSide `json:"side"`
	EntryPrice      float64          `json:"entry_price"`
	FillPrice       float64          `json:"fill_price"`
	StopLossPrice   float64          `json:"stop_loss_price"`
	TakeProfitPrice float64          `json:"take_profit_price"`
	Size            float64          `json:"size"`
	EntryIndex      int64            `json:"entry_index"`
	EntryTime       time.Time        `json:"entry_time"`
	OrderID         string           `json:"order_id"`
	LinkID          string           `json:"link_id"`
	ExitedQty       float64          `json:"exited_qty,omitempty"`
	ExitedPnL       float64          `json:"exited_pnl,omitempty"`

	// pendingExitID is an exit order whose outcome is unknown; it is resolved before a new sell.
	pendingExitID string
	// retryLinkID is reused when placing the exit failed, so a placed-but-unreported order is not duplicated.
	retryLinkID string
}

func (p Position) UnrealizedPnL(price float64) float64 {
	return p.ExitedPnL + CalcPnL(p.Size, p.EntryPrice, price)
}

// dust reports whether the remaining size is a rounding leftover of the original size.
func (p Position) dust() bool {
	return p.Size <= (p.Size+p.ExitedQty)*1e-6
}

type Metrics struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalPnL      float64 `json:"total_pnl"`
}

func Summarize(trades []models.Trade) Metrics {
	var m Metrics
	for _, t := range trades {
		m.TotalTrades++
		m.TotalPnL += t.PnL
		switch {
		case t.PnL > 0:
			m.WinningTrades++
		case t.PnL < 0:
			m.LosingTrades++
		}
	}
	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	}
	return m
}

// TradingState is a point-in-time copy of the bot state; nothing in it is shared with the engine.
type TradingState struct {
	Running       bool           `json:"running"`
	Symbol        string         `json:"symbol"`
	State         State          `json:"state"`
	Position      *Position      `json:"position,omitempty"`
	Equity        float64        `json:"equity"`
	UnrealizedPnL float64        `json:"unrealized_pnl"`
	LastPrice     float64        `json:"last_price"`
	Trades        []models.Trade `json:"trades"`
	Metrics       Metrics        `json:"metrics"`
	Cycles        int64          `json:"cycles"`
	LastUpdate    time.Time      `json:"last_update"`
	LastError     string         `json:"last_error,omitempty"`
}

package models

import (
	"math"
	"time"
)

type OrderSide string
type OrderType string
type OrderStatus string
type ExitReason string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"

	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"

	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"

	ExitReasonStopLoss   ExitReason = "SL"
	ExitReasonTakeProfit ExitReason = "TP"
	ExitReasonTime       ExitReason = "TIME"
	ExitReasonManual     ExitReason = "MANUAL"
)

type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Valid checks the OHLC envelope of a single candle.
func (c Candle) Valid() bool {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return false
		}
	}
	if math.IsNaN(c.Volume) || math.IsInf(c.Volume, 0) || c.Volume < 0 {
		return false
	}
	if c.High < math.Max(c.Open, c.Close) || c.Low > math.Min(c.Open, c.Close) {
		return false
	}
	return !c.Time.IsZero()
}

type Order struct {
	ID          string      `json:"id"`
	LinkID      string      `json:"link_id"`
	Symbol      string      `json:"symbol"`
	Side        OrderSide   `json:"side"`
	Type        OrderType   `json:"type"`
	Price       float64     `json:"price"`
	Qty         float64     `json:"qty"`
	FilledQty   float64     `json:"filled_qty"`
	AvgPrice    float64     `json:"avg_price"`
	Status      OrderStatus `json:"status"`
	CreateTime  time.Time   `json:"create_time"`
	UpdateTime  time.Time   `json:"update_time"`
	TimeInForce string      `json:"time_in_force"`
}

func (o Order) Filled() bool {
	return o.Status == OrderStatusFilled
}

func (o Order) Closed() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected:
		return true
	}
	return false
}

type Ticker struct {
	Symbol    string    `json:"symbol"`
	LastPrice float64   `json:"last_price"`
	Timestamp time.Time `json:"timestamp"`
}

// Trade is a closed position. PnL is fixed at close time.
type Trade struct {
	Symbol      string     `json:"symbol"`
	Side        OrderSide  `json:"side"`
	EntryIndex  int64      `json:"entry_idx"`
	ExitIndex   int64      `json:"exit_idx"`
	EntryTime   time.Time  `json:"entry_time"`
	ExitTime    time.Time  `json:"exit_time"`
	EntryPrice  float64    `json:"entry_price"`
	ExitPrice   float64    `json:"exit_price"`
	Size        float64    `json:"size"`
	PnL         float64    `json:"pnl"`
	Reason      ExitReason `json:"reason"`
	EquityAfter float64    `json:"equity"`
}

package engine

import (
	"fmt"
	"math"
)

// PositionSize returns the quantity whose loss at stopLossPrice equals equity*riskPerTrade.
func PositionSize(equity, riskPerTrade, entryPrice, stopLossPrice float64) (float64, error) {
	for _, v := range []float64{equity, riskPerTrade, entryPrice, stopLossPrice} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: нечисловое значение", ErrInvalidRiskParameters)
		}
	}
	if equity < 0 {
		return 0, fmt.Errorf("%w: капитал < 0: %v", ErrInvalidRiskParameters, equity)
	}
	if riskPerTrade <= 0 || riskPerTrade > 1 {
		return 0, fmt.Errorf("%w: риск на сделку вне (0, 1]: %v", ErrInvalidRiskParameters, riskPerTrade)
	}
	distance := entryPrice - stopLossPrice
	if distance <= 0 {
		return 0, fmt.Errorf("%w: стоп %v не ниже входа %v", ErrInvalidRiskParameters, stopLossPrice, entryPrice)
	}
	return equity * riskPerTrade / distance, nil
}

func StopLossPrice(entryPrice, percent float64) float64 {
	return entryPrice * (1 - percent/100.0)
}

func TakeProfitPrice(entryPrice, percent float64) float64 {
	return entryPrice * (1 + percent/100.0)
}

func CalcPnL(size, entryPrice, exitPrice float64) float64 {
	return size * (exitPrice - entryPrice)
}

package engine

import (
	"math"

	"fvgbot/internal/models"
)

// Zone is the price range a breakout has to clear. Both bounds are NaN when there is no zone.
type Zone struct {
	Low  float64
	High float64
}

func NoZone() Zone {
	return Zone{Low: math.NaN(), High: math.NaN()}
}

func (z Zone) Valid() bool {
	return !math.IsNaN(z.Low) && !math.IsNaN(z.High) && z.Low <= z.High
}

// DetectZone spans the lows and highs of the trailing lookback+2 candles.
func DetectZone(candles []models.Candle, lookback int) Zone {
	window := lookback + 2
	if lookback < 0 || len(candles) < window {
		return NoZone()
	}

	tail := candles[len(candles)-window:]
	zone := Zone{Low: tail[0].Low, High: tail[0].High}
	for _, c := range tail[1:] {
		zone.Low = math.Min(zone.Low, c.Low)
		zone.High = math.Max(zone.High, c.High)
	}
	return zone
}

// Gap is a three-candle bullish imbalance: the high of the first candle stays below the low of the third.
type Gap struct {
	Index int
	Low   float64
	High  float64
}

// DetectGaps lists bullish gaps wider than minGapPercent of the lower bound.
func DetectGaps(candles []models.Candle, minGapPercent float64) []Gap {
	var gaps []Gap
	for i := 2; i < len(candles); i++ {
		low := candles[i-2].High
		high := candles[i].Low
		if high <= low {
			continue
		}
		if (high-low)/low*100 < minGapPercent {
			continue
		}
		gaps = append(gaps, Gap{Index: i, Low: low, High: high})
	}
	return gaps
}

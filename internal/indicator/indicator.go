package indicator

import (
	"math"

	"fvgbot/internal/config"
	"fvgbot/internal/models"
)

const (
	DefaultRSIPeriod = 14
	DefaultATRPeriod = 14
	DefaultADXPeriod = 14
)

type Snapshot struct {
	EMA                float64
	ATR                float64
	RSI                float64
	ADX                float64
	AvgVolume          float64
	HighVolume         bool
	WithinTradingHours bool
}

type Params struct {
	EMALength        int
	VolumeMultiplier float64
	TradingStartHour int
	TradingEndHour   int
	RSIPeriod        int
	ATRPeriod        int
	ADXPeriod        int
}

type Provider interface {
	Compute(candles []models.Candle) []Snapshot
}

type Calculator struct {
	params Params
}

func New(p Params) *Calculator {
	if p.RSIPeriod <= 0 {
		p.RSIPeriod = DefaultRSIPeriod
	}
	if p.ATRPeriod <= 0 {
		p.ATRPeriod = DefaultATRPeriod
	}
	if p.ADXPeriod <= 0 {
		p.ADXPeriod = DefaultADXPeriod
	}
	if p.EMALength <= 0 {
		p.EMALength = 1
	}
	return &Calculator{params: p}
}

// Compute returns one snapshot per candle. Every value at index i depends only on candles[:i+1].
func (c *Calculator) Compute(candles []models.Candle) []Snapshot {
	n := len(candles)
	if n == 0 {
		return nil
	}

	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, cd := range candles {
		closes[i] = cd.Close
		highs[i] = cd.High
		lows[i] = cd.Low
		volumes[i] = cd.Volume
	}

	ema := EMA(closes, c.params.EMALength)
	atr := ATR(highs, lows, closes, c.params.ATRPeriod)
	rsi := RSI(closes, c.params.RSIPeriod)
	adx := ADX(highs, lows, closes, c.params.ADXPeriod)
	avgVol := RollingMean(volumes, c.params.EMALength)

	out := make([]Snapshot, n)
	for i := range candles {
		hour := candles[i].Time.UTC().Hour()
		out[i] = Snapshot{
			EMA:                ema[i],
			ATR:                atr[i],
			RSI:                rsi[i],
			ADX:                adx[i],
			AvgVolume:          avgVol[i],
			HighVolume:         volumes[i] > avgVol[i]*c.params.VolumeMultiplier,
			WithinTradingHours: hour >= c.params.TradingStartHour && hour <= c.params.TradingEndHour,
		}
	}
	return out
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// EMA seeds with the first value (alpha = 2/(period+1)) and reports NaN until period values were seen.
func EMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 || len(values) == 0 {
		return out
	}
	alpha := 2.0 / float64(period+1)
	ema := values[0]
	for i, v := range values {
		if i > 0 {
			ema = v*alpha + ema*(1-alpha)
		}
		if i >= period-1 {
			out[i] = ema
		}
	}
	return out
}

// RollingMean averages the trailing window; the first values use whatever history exists.
func RollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 0 {
		window = 1
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		count := i + 1
		if count > window {
			count = window
		}
		out[i] = sum / float64(count)
	}
	return out
}

func trueRange(highs, lows, closes []float64, i int) float64 {
	if i == 0 {
		return highs[0] - lows[0]
	}
	return math.Max(highs[i]-lows[i], math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))
}

// ATR uses Wilder smoothing seeded by the simple mean of the first period true ranges.
func ATR(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	out := nanSeries(n)
	if period <= 0 || n < period {
		return out
	}
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += trueRange(highs, lows, closes, i)
	}
	atr := sum / float64(period)
	out[period-1] = atr
	for i := period; i < n; i++ {
		atr = (atr*float64(period-1) + trueRange(highs, lows, closes, i)) / float64(period)
		out[i] = atr
	}
	return out
}

// RSI uses Wilder smoothing (alpha = 1/period) of gains and losses.
func RSI(closes []float64, period int) []float64 {
	n := len(closes)
	out := nanSeries(n)
	if period <= 0 || n <= period {
		return out
	}
	alpha := 1.0 / float64(period)
	var avgGain, avgLoss float64
	for i := 1; i < n; i++ {
		diff := closes[i] - closes[i-1]
		gain := math.Max(diff, 0)
		loss := math.Max(-diff, 0)
		if i == 1 {
			avgGain, avgLoss = gain, loss
		} else {
			avgGain = alpha*gain + (1-alpha)*avgGain
			avgLoss = alpha*loss + (1-alpha)*avgLoss
		}
		if i < period {
			continue
		}
		switch {
		case avgLoss == 0 && avgGain == 0:
			out[i] = 50
		case avgLoss == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+avgGain/avgLoss)
		}
	}
	return out
}

// ADX is Wilder's average directional index; the first value appears at index 2*period-1.
func ADX(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	out := nanSeries(n)
	if period <= 0 || n < 2*period {
		return out
	}

	var trSum, plusSum, minusSum float64
	dx := make([]float64, n)
	for i := 1; i < n; i++ {
		up := highs[i] - highs[i-1]
		down := lows[i-1] - lows[i]
		plusDM, minusDM := 0.0, 0.0
		if up > down && up > 0 {
			plusDM = up
		}
		if down > up && down > 0 {
			minusDM = down
		}
		tr := trueRange(highs, lows, closes, i)

		if i <= period {
			trSum += tr
			plusSum += plusDM
			minusSum += minusDM
		} else {
			trSum = trSum - trSum/float64(period) + tr
			plusSum = plusSum - plusSum/float64(period) + plusDM
			minusSum = minusSum - minusSum/float64(period) + minusDM
		}
		if i < period {
			continue
		}

		var plusDI, minusDI float64
		if trSum > 0 {
			plusDI = 100 * plusSum / trSum
			minusDI = 100 * minusSum / trSum
		}
		if sum := plusDI + minusDI; sum > 0 {
			dx[i] = 100 * math.Abs(plusDI-minusDI) / sum
		}
	}

	first := 2*period - 1
	adx := 0.0
	for i := period; i <= first; i++ {
		adx += dx[i]
	}
	adx /= float64(period)
	out[first] = adx
	for i := first + 1; i < n; i++ {
		adx = (adx*float64(period-1) + dx[i]) / float64(period)
		out[i] = adx
	}
	return out
}

func ParamsFromConfig(b config.BotConfig) Params {
	return Params{
		EMALength:        b.EMALength,
		VolumeMultiplier: b.VolumeMultiplier,
		TradingStartHour: b.TradingStartHour,
		TradingEndHour:   b.TradingEndHour,
	}
}

package rest

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// formatWithStep rounds value down to a multiple of step.
func formatWithStep(value, step float64) string {
	if step <= 0 {
		return strconv.FormatFloat(value, 'f', -1, 64)
	}

	d := decimal.NewFromFloat(value)
	s := decimal.NewFromFloat(step)
	quantized := d.Div(s).Floor().Mul(s)

	places := -s.Exponent()
	if places < 0 {
		places = 0
	}
	return quantized.StringFixed(places)
}

func parseFloatOrZero(value string) (float64, error) {
	if value == "" {
		return 0, nil
	}
	return strconv.ParseFloat(value, 64)
}

func parseMillis(value string) int64 {
	ms, _ := strconv.ParseInt(value, 10, 64)
	return ms
}

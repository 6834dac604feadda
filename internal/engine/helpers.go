package engine

import (
	"fmt"
	"strings"

	"fvgbot/internal/models"

	"github.com/google/uuid"
)

func newLinkID(kind string) string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	if len(raw) > 24 {
		raw = raw[:24]
	}
	return fmt.Sprintf("fvg-%s-%s", kind, raw)
}

// ValidateCandles checks every candle and that times strictly increase.
func ValidateCandles(candles []models.Candle) error {
	if len(candles) == 0 {
		return fmt.Errorf("%w: нет свечей", ErrDataIntegrity)
	}
	for i, c := range candles {
		if !c.Valid() {
			return fmt.Errorf("%w: некорректная свеча #%d (%s)", ErrDataIntegrity, i, c.Time.Format("2006-01-02 15:04:05"))
		}
		if i > 0 && !c.Time.After(candles[i-1].Time) {
			return fmt.Errorf("%w: свечи не упорядочены по времени на #%d", ErrDataIntegrity, i)
		}
	}
	return nil
}

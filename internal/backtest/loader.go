package backtest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"fvgbot/internal/engine"
	"fvgbot/internal/models"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func LoadCandlesCSV(path string) ([]models.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть %s: %w", path, err)
	}
	defer f.Close()
	return ReadCandlesCSV(f)
}

// ReadCandlesCSV expects a header with timestamp, open, high, low, close and an optional volume column.
func ReadCandlesCSV(r io.Reader) ([]models.Candle, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: пустой файл свечей", engine.ErrDataIntegrity)
		}
		return nil, err
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range []string{"timestamp", "open", "high", "low", "close"} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w: нет колонки %q", engine.ErrDataIntegrity, name)
		}
	}
	volIdx, hasVol := cols["volume"]

	var candles []models.Candle
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: строка %d: %v", engine.ErrDataIntegrity, line, err)
		}

		field := func(name string) string {
			i := cols[name]
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		ts, err := parseTimestamp(field("timestamp"))
		if err != nil {
			return nil, fmt.Errorf("%w: строка %d: %v", engine.ErrDataIntegrity, line, err)
		}
		c := models.Candle{Time: ts}
		for _, f := range []struct {
			name string
			dst  *float64
		}{
			{"open", &c.Open},
			{"high", &c.High},
			{"low", &c.Low},
			{"close", &c.Close},
		} {
			v, err := strconv.ParseFloat(field(f.name), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: строка %d, колонка %s: %v", engine.ErrDataIntegrity, line, f.name, err)
			}
			*f.dst = v
		}
		if hasVol && volIdx < len(rec) && strings.TrimSpace(rec[volIdx]) != "" {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[volIdx]), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: строка %d, колонка volume: %v", engine.ErrDataIntegrity, line, err)
			}
			c.Volume = v
		}
		candles = append(candles, c)
	}

	if err := engine.ValidateCandles(candles); err != nil {
		return nil, err
	}
	return candles, nil
}

// parseTimestamp accepts the layouts above or unix seconds / milliseconds.
func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("пустое время")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("неизвестный формат времени: %q", s)
}

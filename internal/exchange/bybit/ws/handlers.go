package ws

import (
	"encoding/json"
	"strconv"
	"time"

	"fvgbot/internal/models"
)

type tickerData struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
}

func (w *Client) handleTicker(msg Message) {
	var data []tickerData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		var single tickerData
		if err := json.Unmarshal(msg.Data, &single); err != nil {
			w.logEntry().WithError(err).Warn("Не удалось разобрать ticker.")
			return
		}
		data = append(data, single)
	}

	for _, item := range data {
		price, err := strconv.ParseFloat(item.LastPrice, 64)
		if err != nil || price <= 0 {
			continue
		}
		w.publish(models.Ticker{
			Symbol:    item.Symbol,
			LastPrice: price,
			Timestamp: time.UnixMilli(msg.TS).UTC(),
		})
	}
}

// publish drops the oldest ticker when the consumer falls behind.
func (w *Client) publish(t models.Ticker) {
	for {
		select {
		case w.tickers <- t:
			return
		default:
		}
		select {
		case <-w.tickers:
		default:
		}
	}
}

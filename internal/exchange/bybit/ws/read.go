package ws

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

func (w *Client) readLoop() {
	defer close(w.tickers)
	w.logEntry().Debug("readLoop запущен.")

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		_, data, err := w.conn.ReadMessage()
		if err != nil {
			select {
			case <-w.stopCh:
				return
			default:
			}
			w.logEntry().WithError(err).Warn("Ошибка чтения WS.")

			if !w.reconnect() {
				return
			}
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			w.logEntry().WithError(err).Warn("Не удалось разобрать WS сообщение.")
			continue
		}

		if strings.HasPrefix(msg.Topic, "tickers") {
			w.handleTicker(msg)
		}
	}
}

func (w *Client) reconnect() bool {
	b := w.newReconnectBackOff()
	wait := b.NextBackOff()

	for {
		w.logEntry().Info("Попытка переподключения к WS.")

		select {
		case <-w.stopCh:
			return false
		case <-time.After(wait):
		}

		conn, _, err := websocket.DefaultDialer.Dial(w.url, nil)
		if err != nil {
			w.logEntry().WithError(err).Warn("Не удалось переподключиться к WS.")
			wait = b.NextBackOff()
			continue
		}

		w.writeMu.Lock()
		if w.conn != nil {
			_ = w.conn.Close()
		}
		w.conn = conn
		w.conn.SetReadLimit(2 << 20)
		w.writeMu.Unlock()

		if w.symbol != "" {
			if err := w.subscribe(w.symbol, w.topics); err != nil {
				w.logEntry().WithError(err).Warn("Не удалось повторно подписаться на WS.")
				wait = b.NextBackOff()
				continue
			}
		}

		w.logEntry().Info("WS переподключён и подписки восстановлены.")
		return true
	}
}

// newReconnectBackOff doubles the wait from reconnectMin up to reconnectMax and never gives up.
func (w *Client) newReconnectBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.reconnectMin
	b.MaxInterval = w.reconnectMax
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

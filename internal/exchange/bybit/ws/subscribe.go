package ws

import "fmt"

func (w *Client) SubscribeTickers(symbol string) error {
	return w.subscribe(symbol, []string{fmt.Sprintf("tickers.%s", symbol)})
}

func (w *Client) subscribe(symbol string, topics []string) error {
	w.symbol = symbol
	w.topics = topics

	return w.writeJSON(SubscribeMessage{Op: "subscribe", Args: topics})
}

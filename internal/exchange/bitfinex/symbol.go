package bitfinex

import (
	"strings"

	"fvgbot/internal/exchange"
)

var timeframes = map[string]string{
	"1m":  "1m",
	"5m":  "5m",
	"15m": "15m",
	"30m": "30m",
	"1h":  "1h",
	"3h":  "3h",
	"6h":  "6h",
	"12h": "12h",
	"1d":  "1D",
	"1w":  "1W",
}

// exchangeSymbol maps BASE/QUOTE onto tBASEQUOTE, or tBASE:QUOTE when either leg is longer than three letters.
func (g *Gateway) exchangeSymbol(symbol string) string {
	if g.sandbox {
		return exchange.PaperSymbol(symbol)
	}
	base, quote, err := exchange.SplitSymbol(symbol)
	if err != nil {
		return symbol
	}
	if len(base) == 3 && len(quote) == 3 {
		return "t" + base + quote
	}
	return "t" + base + ":" + quote
}

// currency strips the paper trading prefix from wallet currencies.
func (g *Gateway) currency(code string) string {
	if g.sandbox {
		return strings.TrimPrefix(code, "TEST")
	}
	return code
}

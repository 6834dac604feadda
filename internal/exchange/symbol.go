package exchange

import (
	"fmt"
	"strings"
)

// SplitSymbol parses a canonical BASE/QUOTE pair.
func SplitSymbol(symbol string) (base, quote string, err error) {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(symbol)), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: символ должен быть в формате BASE/QUOTE: %q", ErrRejected, symbol)
	}
	return parts[0], parts[1], nil
}

func QuoteCurrency(symbol string) string {
	_, quote, err := SplitSymbol(symbol)
	if err != nil {
		return ""
	}
	return quote
}

// PaperSymbol rewrites BASE/QUOTE into the Bitfinex paper trading form tTESTBASE:TESTQUOTE.
// Symbols already in exchange form are returned untouched.
func PaperSymbol(symbol string) string {
	if strings.HasPrefix(symbol, "t") && strings.Contains(symbol, ":") {
		return symbol
	}
	base, quote, err := SplitSymbol(symbol)
	if err != nil {
		return symbol
	}
	return "tTEST" + base + ":TEST" + quote
}

// CompactSymbol joins the pair without a separator (BTCUSDT).
func CompactSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(symbol), "/", ""))
}

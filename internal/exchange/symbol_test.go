package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaperSymbol(t *testing.T) {
	assert.Equal(t, "tTESTBTC:TESTUSD", PaperSymbol("BTC/USD"))
	assert.Equal(t, "tTESTETH:TESTUSDT", PaperSymbol("eth/usdt"))
	assert.Equal(t, "tTESTBTC:TESTUSD", PaperSymbol("tTESTBTC:TESTUSD"))
	assert.Equal(t, "BTCUSD", PaperSymbol("BTCUSD"))
}

func TestSplitSymbol(t *testing.T) {
	base, quote, err := SplitSymbol(" btc/usdt ")
	require.NoError(t, err)
	assert.Equal(t, "BTC", base)
	assert.Equal(t, "USDT", quote)

	_, _, err = SplitSymbol("BTCUSDT")
	assert.ErrorIs(t, err, ErrRejected)

	assert.Equal(t, "USDT", QuoteCurrency("BTC/USDT"))
	assert.Equal(t, "", QuoteCurrency("BTCUSDT"))
}

func TestCompactSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", CompactSymbol("btc/usdt"))
}

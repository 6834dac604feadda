package logger

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"debug":   logrus.DebugLevel,
		"DEBUG":   logrus.DebugLevel,
		"warn":    logrus.WarnLevel,
		"warning": logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"":        logrus.InfoLevel,
		"bogus":   logrus.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestNewWithWriter_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn")

	log.Info("hidden")
	log.WithComponent("engine").WithField("symbol", "BTC/USDT").Warn("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "component=engine")
	assert.Contains(t, out, "symbol=BTC/USDT")
}

func TestHelpersAttachFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "debug")

	log.WithCycle(42).Debug("cycle")
	log.WithOrderID("abc").Info("order")
	log.WithError(errors.New("boom")).Error("failed")

	out := buf.String()
	assert.Contains(t, out, "cycle=42")
	assert.Contains(t, out, "order_id=abc")
	assert.Contains(t, out, "error=boom")
}

func TestNew_FileOutputUsesRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	log := New(Config{Level: "info", Format: "json", Output: path, MaxSize: 1})
	require.NotNil(t, log)

	log.Info("written")
	assert.FileExists(t, path)
}

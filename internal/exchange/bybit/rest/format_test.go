package rest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatWithStep(t *testing.T) {
	assert.Equal(t, "0.001234", formatWithStep(0.00123456789, 0.000001))
	assert.Equal(t, "42000.12", formatWithStep(42000.129, 0.01))
	assert.Equal(t, "15", formatWithStep(15.9, 1))
	assert.Equal(t, "0.3", formatWithStep(0.3, 0.1))
	assert.Equal(t, "1.5", formatWithStep(1.5, 0))
}

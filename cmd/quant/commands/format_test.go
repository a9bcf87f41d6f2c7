package commands

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{950, "950"},
		{72700, "72,700"},
		{1234567, "1,234,567"},
		{-15000, "-15,000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatPrice(tt.in))
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "삼성전자", truncate("삼성전자", 16))
	assert.Equal(t, "에스케이하…", truncate("에스케이하이닉스", 6))
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	d, err = parseDate("2024-10-18")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 10, 18, 0, 0, 0, 0, time.UTC), d)

	_, err = parseDate("18/10/2024")
	assert.Error(t, err)
}

func TestStrategySource(t *testing.T) {
	assert.Equal(t, "defaults", strategySource(""))
	assert.Equal(t, "strategy.yaml", strategySource("strategy.yaml"))
}

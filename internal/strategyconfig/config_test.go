package strategyconfig

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, 3, cfg.Technical.MinSelections)
	assert.Equal(t, 5, cfg.Technical.MaxSelections)
	assert.Equal(t, 0.8, cfg.Pricing.MinRiskReward)
	assert.Equal(t, 60, cfg.Pricing.Lookback)
}

func TestParse_OverridesDefaults(t *testing.T) {
	data := []byte(`
meta:
  strategy_id: test_strategy
technical:
  max_selections: 4
pricing:
  granularity: 50
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "test_strategy", cfg.Meta.StrategyID)
	assert.Equal(t, 4, cfg.Technical.MaxSelections)
	assert.Equal(t, 3, cfg.Technical.MinSelections)
	assert.Equal(t, 50.0, cfg.Pricing.Granularity)
}

func TestParse_UnknownFieldFails(t *testing.T) {
	_, err := Parse([]byte("technical:\n  max_selectoins: 4\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"min above max", func(c *Config) { c.Technical.MinSelections = 6 }, "technical"},
		{"weights do not sum", func(c *Config) { c.Technical.AIWeight = 0.5 }, "technical"},
		{"premium out of order", func(c *Config) { c.Pricing.Premium.Min = 2 }, "pricing.entry_premium"},
		{"widen below floor", func(c *Config) { c.Pricing.WidenMultiple = 0.5 }, "pricing.widen_multiple"},
		{"unknown predictor", func(c *Config) { c.Pricing.Predictor = "lstm" }, "pricing.predictor"},
		{"min bars below lookback", func(c *Config) { c.Pricing.MinBars = 30 }, "pricing.min_bars"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)

			var verr ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestHash_Deterministic(t *testing.T) {
	h1, err := Hash(Default())
	require.NoError(t, err)
	h2, _ := Hash(Default())

	assert.Len(t, h1, 64)
	assert.Equal(t, h1, h2)

	changed := Default()
	changed.Pricing.Granularity = 100
	h3, _ := Hash(changed)
	assert.NotEqual(t, h1, h3)
}

func TestLoadOrDefault(t *testing.T) {
	cfg, data, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Equal(t, "autoquant_daily", cfg.Meta.StrategyID)

	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("meta:\n  strategy_id: from_file\n"), 0o644))

	cfg, _, err = LoadOrDefault(path)
	require.NoError(t, err)
	assert.Equal(t, "from_file", cfg.Meta.StrategyID)

	snap, err := NewDecisionSnapshot(cfg, data)
	require.NoError(t, err)
	assert.Equal(t, "from_file", snap.StrategyID)
	assert.Len(t, snap.ConfigHash, 64)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 100000.0, cfg.Trading.InitialBalance)
	assert.Equal(t, "isolated", cfg.Trading.MarginMode)
	assert.Equal(t, 0.04, cfg.Backtest.RiskFreeRate)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	dir := writeConfig(t, `
trading:
  initial_balance: 50000
  margin_mode: cross
  leverage:
    BTC/USDT: 5
backtest:
  start: "2024-01-01"
  end: "2024-06-30"
  symbols:
    - BTC/USDT
    - ETH/USDT
  risk_free_rate: 0.02
logging:
  level: debug
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 50000.0, cfg.Trading.InitialBalance)
	assert.Equal(t, "cross", cfg.Trading.MarginMode)
	assert.Equal(t, 5, cfg.Trading.Leverage["BTC/USDT"])
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, cfg.Backtest.Symbols)
	assert.Equal(t, 0.02, cfg.Backtest.RiskFreeRate)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"negative balance", "trading:\n  initial_balance: -1\n"},
		{"bad margin mode", "trading:\n  margin_mode: hedged\n"},
		{"risk-free rate out of range", "backtest:\n  risk_free_rate: 1.5\n"},
		{"leverage below one", "trading:\n  leverage:\n    BTC/USDT: 0\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}
}

func TestPeriod(t *testing.T) {
	cfg := &Config{}
	cfg.Backtest.Start = "2024-01-01"
	cfg.Backtest.End = "2024-06-30"

	start, end, err := cfg.Period()
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", start.Format("2006-01-02"))
	assert.True(t, end.After(start))

	cfg.Backtest.End = "2023-12-31"
	_, _, err = cfg.Period()
	assert.Error(t, err)

	cfg.Backtest.Start = "not-a-date"
	_, _, err = cfg.Period()
	assert.Error(t, err)
}

// Package config provides configuration management for the backtest
// application.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Trading  TradingConfig  `mapstructure:"trading"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Data     DataConfig     `mapstructure:"data"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// TradingConfig holds account-level simulation settings.
type TradingConfig struct {
	InitialBalance float64        `mapstructure:"initial_balance"`
	MarginMode     string         `mapstructure:"margin_mode"` // "isolated", "cross"
	Leverage       map[string]int `mapstructure:"leverage"`    // per symbol, default 1
}

// BacktestConfig holds run-level backtest settings.
type BacktestConfig struct {
	Start           string   `mapstructure:"start"` // YYYY-MM-DD
	End             string   `mapstructure:"end"`
	Symbols         []string `mapstructure:"symbols"`
	ReportsDir      string   `mapstructure:"reports_dir"`
	RiskFreeRate    float64  `mapstructure:"risk_free_rate"`
	BenchmarkSymbol string   `mapstructure:"benchmark_symbol"`
}

// DataConfig holds candle-store settings.
type DataConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/perp-trader"
	}
	return filepath.Join(home, ".config", "perp-trader")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Missing file is fine; defaults apply.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("trading.initial_balance", 100000.0)
	v.SetDefault("trading.margin_mode", "isolated")
	v.SetDefault("backtest.reports_dir", filepath.Join(configDir, "reports"))
	v.SetDefault("backtest.risk_free_rate", 0.04)
	v.SetDefault("data.db_path", filepath.Join(configDir, "candles.db"))
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Trading.InitialBalance <= 0 {
		return fmt.Errorf("trading.initial_balance must be positive, got %v", c.Trading.InitialBalance)
	}
	if c.Trading.MarginMode != "isolated" && c.Trading.MarginMode != "cross" {
		return fmt.Errorf("trading.margin_mode must be isolated or cross, got %q", c.Trading.MarginMode)
	}
	if c.Backtest.RiskFreeRate <= -1 || c.Backtest.RiskFreeRate >= 1 {
		return fmt.Errorf("backtest.risk_free_rate must be in (-1, 1), got %v", c.Backtest.RiskFreeRate)
	}
	for sym, lev := range c.Trading.Leverage {
		if lev < 1 {
			return fmt.Errorf("trading.leverage[%s] must be >= 1, got %d", sym, lev)
		}
	}
	return nil
}

// Period parses the configured backtest window.
func (c *Config) Period() (start, end time.Time, err error) {
	start, err = time.Parse("2006-01-02", c.Backtest.Start)
	if err != nil {
		return start, end, fmt.Errorf("parsing backtest.start: %w", err)
	}
	end, err = time.Parse("2006-01-02", c.Backtest.End)
	if err != nil {
		return start, end, fmt.Errorf("parsing backtest.end: %w", err)
	}
	if !end.After(start) {
		return start, end, fmt.Errorf("backtest.end must be after backtest.start")
	}
	return start, end, nil
}

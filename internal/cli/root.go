// Package cli provides the command-line interface for the backtester.
package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"perp-trader/internal/config"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies shared by all commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "perp-trader",
		Short: "Perpetual-futures backtesting framework",
		Long: `perp-trader simulates perpetual-futures strategies against historical
OHLCV candles with exchange-like margin, fee and liquidation rules, and
produces performance statistics and leaderboards.

Use 'perp-trader help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/perp-trader)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newBacktestCmd(app))
	rootCmd.AddCommand(newDataCmd(app))
	rootCmd.AddCommand(newLeaderboardCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("perp-trader v%s\n", Version)
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.Config
			fmt.Printf("Trading:\n")
			fmt.Printf("  Initial Balance:  %.2f\n", cfg.Trading.InitialBalance)
			fmt.Printf("  Margin Mode:      %s\n", cfg.Trading.MarginMode)
			for symbol, lev := range cfg.Trading.Leverage {
				fmt.Printf("  Leverage[%s]:    %dx\n", symbol, lev)
			}
			fmt.Printf("Backtest:\n")
			fmt.Printf("  Period:           %s .. %s\n", cfg.Backtest.Start, cfg.Backtest.End)
			fmt.Printf("  Symbols:          %v\n", cfg.Backtest.Symbols)
			fmt.Printf("  Reports Dir:      %s\n", cfg.Backtest.ReportsDir)
			fmt.Printf("  Risk-Free Rate:   %.4f\n", cfg.Backtest.RiskFreeRate)
			fmt.Printf("Data:\n")
			fmt.Printf("  DB Path:          %s\n", cfg.Data.DBPath)
			return nil
		},
	})
	return cmd
}

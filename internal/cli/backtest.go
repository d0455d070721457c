package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"perp-trader/internal/backtest"
	"perp-trader/internal/candle"
	"perp-trader/internal/models"
	"perp-trader/internal/strategy"
)

func newBacktestCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run a backtest over stored candle data",
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, _ := cmd.Flags().GetString("symbol")
			timeframeStr, _ := cmd.Flags().GetString("timeframe")
			fast, _ := cmd.Flags().GetInt("fast")
			slow, _ := cmd.Flags().GetInt("slow")

			timeframe, err := models.ParseTimeframe(timeframeStr)
			if err != nil {
				return err
			}
			start, end, err := app.Config.Period()
			if err != nil {
				return err
			}

			store, err := candle.NewSQLiteStore(app.Config.Data.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			data, err := candle.Load(cmd.Context(), store, []string{symbol}, timeframe, start, end)
			if err != nil {
				return fmt.Errorf("loading candles: %w", err)
			}

			strat := strategy.NewSMACross(symbol, fast, slow)
			runner, err := backtest.NewRunner(backtest.Config{
				Name:            strat.Name(),
				InitialBalance:  app.Config.Trading.InitialBalance,
				MarginMode:      models.MarginMode(app.Config.Trading.MarginMode),
				Leverage:        app.Config.Trading.Leverage,
				Strategies:      []strategy.Strategy{strat},
				Data:            data,
				RiskFreeRate:    app.Config.Backtest.RiskFreeRate,
				BenchmarkSymbol: app.Config.Backtest.BenchmarkSymbol,
				Logger:          app.Logger,
			})
			if err != nil {
				return err
			}

			result, err := runner.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(result.Stats.Format())

			periodDir := filepath.Join(app.Config.Backtest.ReportsDir,
				fmt.Sprintf("%s-%s", start.Format("20060102"), end.Format("20060102")))
			if err := backtest.UpdateLeaderboard(filepath.Join(periodDir, "leaderboard.csv"), result); err != nil {
				return err
			}
			reportPath := filepath.Join(periodDir,
				backtest.ReportFileName(result.Name, result.Start, result.End))
			if err := backtest.SaveReport(reportPath, result); err != nil {
				return err
			}
			app.Logger.Info().Str("path", reportPath).Msg("report saved")
			return nil
		},
	}

	cmd.Flags().String("symbol", "BTC/USDT", "symbol to trade")
	cmd.Flags().String("timeframe", "1m", "candle timeframe")
	cmd.Flags().Int("fast", 20, "fast moving-average period")
	cmd.Flags().Int("slow", 50, "slow moving-average period")
	return cmd
}

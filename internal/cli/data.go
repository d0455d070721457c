package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"perp-trader/internal/candle"
	"perp-trader/internal/models"
)

func newDataCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Manage stored candle data",
	}
	cmd.AddCommand(newDataImportCmd(app))
	cmd.AddCommand(newDataExportCmd(app))
	cmd.PersistentFlags().String("symbol", "BTC/USDT", "symbol the candles belong to")
	cmd.PersistentFlags().String("timeframe", "1m", "candle timeframe")
	return cmd
}

func newDataImportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import candles from a CSV file into the candle store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, _ := cmd.Flags().GetString("symbol")
			timeframeStr, _ := cmd.Flags().GetString("timeframe")
			timeframe, err := models.ParseTimeframe(timeframeStr)
			if err != nil {
				return err
			}

			candles, err := candle.ReadCSV(args[0])
			if err != nil {
				return err
			}
			store, err := candle.NewSQLiteStore(app.Config.Data.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.SaveCandles(cmd.Context(), symbol, timeframe, candles); err != nil {
				return err
			}
			fmt.Printf("Imported %d candles for %s (%s)\n", len(candles), symbol, timeframe)
			return nil
		},
	}
}

func newDataExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <file.csv>",
		Short: "Export stored candles to a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, _ := cmd.Flags().GetString("symbol")
			timeframeStr, _ := cmd.Flags().GetString("timeframe")
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

			candles, err := store.Fetch(cmd.Context(), symbol, timeframe, start, end)
			if err != nil {
				return err
			}
			if err := candle.WriteCSV(args[0], candles); err != nil {
				return err
			}
			fmt.Printf("Exported %d candles for %s (%s)\n", len(candles), symbol, timeframe)
			return nil
		},
	}
	return cmd
}

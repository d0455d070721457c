package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"perp-trader/internal/backtest"
)

func newLeaderboardCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the strategy leaderboard for the configured period",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := app.Config.Period()
			if err != nil {
				return err
			}
			path := filepath.Join(app.Config.Backtest.ReportsDir,
				fmt.Sprintf("%s-%s", start.Format("20060102"), end.Format("20060102")),
				"leaderboard.csv")

			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("no leaderboard for period, run a backtest first: %w", err)
			}
			defer file.Close()

			var rows []*backtest.LeaderboardRow
			if err := gocsv.UnmarshalFile(file, &rows); err != nil {
				return fmt.Errorf("parsing leaderboard: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "#\tName\tReturn [%]\tAnn. Return [%]\tMax. DD [%]\tSharpe\tSortino\tTrades")
			for i, row := range rows {
				fmt.Fprintf(w, "%d\t%s\t%.2f\t%.2f\t%.2f\t%.4f\t%.4f\t%d\n",
					i+1, row.Name, row.Return, row.AnnualReturn, row.MaxDrawdown,
					row.SharpeRatio, row.SortinoRatio, row.NumTrades)
			}
			return w.Flush()
		},
	}
}

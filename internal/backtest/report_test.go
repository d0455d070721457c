package backtest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-trader/internal/models"
	"perp-trader/internal/stats"
)

func fakeResult(name string, sharpe float64) *Result {
	now := time.Now().UTC().Truncate(time.Second)
	return &Result{
		Name:          name,
		Start:         now.Add(-24 * time.Hour),
		End:           now,
		Warmup:        10,
		EquityHistory: []float64{1000, 1010, 1005},
		Trades: []*models.Trade{
			{ID: "t1", Symbol: "BTC/USDT", Price: 100, Amount: 1, RealizedPnl: 5},
		},
		ClosedPositions: []*models.Position{
			{Symbol: "BTC/USDT", Side: models.PositionLong, EntryPrice: 100},
		},
		Stats: &stats.Result{
			CreatedAt:    now,
			RateOfReturn: 0.05,
			AnnualReturn: 0.4,
			MaxDrawdown:  -0.1,
			SharpeRatio:  sharpe,
			NumTrades:    1,
		},
	}
}

func readLeaderboard(t *testing.T, path string) []*LeaderboardRow {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var rows []*LeaderboardRow
	require.NoError(t, gocsv.UnmarshalFile(file, &rows))
	return rows
}

func TestUpdateLeaderboardUpsertsAndSorts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "leaderboard.csv")

	require.NoError(t, UpdateLeaderboard(path, fakeResult("alpha", 1.2)))
	require.NoError(t, UpdateLeaderboard(path, fakeResult("beta", 2.5)))
	require.NoError(t, UpdateLeaderboard(path, fakeResult("gamma", 0.3)))

	rows := readLeaderboard(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, "beta", rows[0].Name)
	assert.Equal(t, "alpha", rows[1].Name)
	assert.Equal(t, "gamma", rows[2].Name)

	// Re-running a strategy replaces its row instead of appending.
	require.NoError(t, UpdateLeaderboard(path, fakeResult("alpha", 9.9)))
	rows = readLeaderboard(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, "alpha", rows[0].Name)
	assert.InDelta(t, 9.9, rows[0].SharpeRatio, 1e-9)
}

func TestLeaderboardRowScalesPercentColumns(t *testing.T) {
	row := leaderboardRow("alpha", fakeResult("alpha", 1.23456789).Stats)

	assert.InDelta(t, 5.0, row.Return, 1e-9)
	assert.InDelta(t, 40.0, row.AnnualReturn, 1e-9)
	assert.InDelta(t, -10.0, row.MaxDrawdown, 1e-9)
	// Ratios keep four decimal places.
	assert.InDelta(t, 1.2346, row.SharpeRatio, 1e-9)
}

func TestReportRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "run.report")
	result := fakeResult("alpha", 1.2)

	require.NoError(t, SaveReport(path, result))
	report, err := LoadReport(path)
	require.NoError(t, err)

	assert.Equal(t, reportVersion, report.Version)
	assert.Equal(t, "alpha", report.Name)
	assert.Equal(t, result.Warmup, report.Warmup)
	assert.Equal(t, result.EquityHistory, report.EquityHistory)
	require.Len(t, report.Trades, 1)
	assert.Equal(t, "t1", report.Trades[0].ID)
	require.Len(t, report.ClosedPositions, 1)
	assert.InDelta(t, 100.0, report.ClosedPositions[0].EntryPrice, 1e-9)
	require.NotNil(t, report.Stats)
	assert.InDelta(t, 1.2, report.Stats.SharpeRatio, 1e-9)
}

func TestLoadReportRejectsMissingFile(t *testing.T) {
	_, err := LoadReport(filepath.Join(t.TempDir(), "missing.report"))
	assert.Error(t, err)
}

func TestReportFileName(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "20240102-20240304_alpha.report", ReportFileName("alpha", start, end))
}

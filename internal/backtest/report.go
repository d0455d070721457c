package backtest

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/vmihailenco/msgpack/v5"

	"perp-trader/internal/models"
	"perp-trader/internal/stats"
)

// LeaderboardRow is one strategy's line in the leaderboard CSV, keyed by
// name. Percent columns are stored already multiplied by 100.
type LeaderboardRow struct {
	Name                 string  `csv:"Name"`
	Return               float64 `csv:"Return [%]"`
	AnnualReturn         float64 `csv:"Ann. Return [%]"`
	AnnualVolatility     float64 `csv:"Ann. Volat. [%]"`
	MaxDrawdown          float64 `csv:"Max. DD [%]"`
	AvgDrawdown          float64 `csv:"Avg. DD [%]"`
	MaxDrawdownDuration  string  `csv:"Max. DD Dur."`
	AvgDrawdownDuration  string  `csv:"Avg. DD Dur."`
	SharpeRatio          float64 `csv:"Sharpe Ratio"`
	SortinoRatio         float64 `csv:"Sortino Ratio"`
	RiskReturnRatio      float64 `csv:"Risk Return Ratio"`
	UpsideCaptureRatio   float64 `csv:"Upside Capture Ratio"`
	DownsideCaptureRatio float64 `csv:"Downside Capture Ratio"`
	Beta                 float64 `csv:"Beta"`
	Alpha                float64 `csv:"Alpha"`
	NumTrades            int     `csv:"Num. Trades"`
	CreatedAt            string  `csv:"Created At"`
}

func leaderboardRow(name string, s *stats.Result) *LeaderboardRow {
	pct := func(v float64) float64 { return math.Round(v*100*100) / 100 }
	r4 := func(v float64) float64 { return math.Round(v*1e4) / 1e4 }
	return &LeaderboardRow{
		Name:                 name,
		Return:               pct(s.RateOfReturn),
		AnnualReturn:         pct(s.AnnualReturn),
		AnnualVolatility:     pct(s.AnnualVolatility),
		MaxDrawdown:          pct(s.MaxDrawdown),
		AvgDrawdown:          pct(s.AvgDrawdown),
		MaxDrawdownDuration:  s.MaxDrawdownDuration.String(),
		AvgDrawdownDuration:  s.AvgDrawdownDuration.String(),
		SharpeRatio:          r4(s.SharpeRatio),
		SortinoRatio:         r4(s.SortinoRatio),
		RiskReturnRatio:      r4(s.RiskReturnRatio),
		UpsideCaptureRatio:   r4(s.UpsideCaptureRatio),
		DownsideCaptureRatio: r4(s.DownsideCaptureRatio),
		Beta:                 r4(s.Beta),
		Alpha:                r4(s.Alpha),
		NumTrades:            s.NumTrades,
		CreatedAt:            s.CreatedAt.Format(time.RFC3339),
	}
}

// UpdateLeaderboard upserts the run's row by name, re-sorts by Sharpe ratio
// descending and rewrites the file in full.
func UpdateLeaderboard(path string, result *Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating reports directory: %w", err)
	}

	var rows []*LeaderboardRow
	if file, err := os.Open(path); err == nil {
		err = gocsv.UnmarshalFile(file, &rows)
		file.Close()
		if err != nil {
			return fmt.Errorf("parsing leaderboard: %w", err)
		}
	}

	row := leaderboardRow(result.Name, result.Stats)
	replaced := false
	for i, existing := range rows {
		if existing.Name == row.Name {
			rows[i] = row
			replaced = true
			break
		}
	}
	if !replaced {
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].SharpeRatio > rows[j].SharpeRatio
	})

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing leaderboard: %w", err)
	}
	defer file.Close()
	return gocsv.MarshalFile(&rows, file)
}

// Report is the serialized post-run artifact consumed by the visualization
// tooling. The schema is shared only between this writer and its reader.
type Report struct {
	Version   int
	Name      string
	CreatedAt time.Time
	Start     time.Time
	End       time.Time
	Warmup    int

	EquityHistory   []float64
	Trades          []*models.Trade
	ClosedPositions []*models.Position
	Indicators      map[string][]float64
	Stats           *stats.Result
}

const reportVersion = 1

// SaveReport serializes the run into a msgpack blob at path.
func SaveReport(path string, result *Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating reports directory: %w", err)
	}
	report := &Report{
		Version:         reportVersion,
		Name:            result.Name,
		CreatedAt:       time.Now(),
		Start:           result.Start,
		End:             result.End,
		Warmup:          result.Warmup,
		EquityHistory:   result.EquityHistory,
		Trades:          result.Trades,
		ClosedPositions: result.ClosedPositions,
		Indicators:      result.Indicators,
		Stats:           result.Stats,
	}
	data, err := msgpack.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// LoadReport reads a report blob written by SaveReport.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	var report Report
	if err := msgpack.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	if report.Version != reportVersion {
		return nil, fmt.Errorf("unsupported report version %d", report.Version)
	}
	return &report, nil
}

// ReportFileName builds the artifact file name from the run name and period.
func ReportFileName(name string, start, end time.Time) string {
	return fmt.Sprintf("%s-%s_%s.report", start.Format("20060102"), end.Format("20060102"), name)
}

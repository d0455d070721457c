// Package stats computes performance statistics over a completed backtest:
// returns, drawdowns, risk ratios and per-symbol trade breakdowns.
package stats

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"perp-trader/internal/candle"
	"perp-trader/internal/models"
)

const annualTradingDays = 365

// SymbolResult is the per-symbol trade breakdown.
type SymbolResult struct {
	NumTrades         int
	NumPositions      int
	OpenTotal         float64
	RealizedPnl       float64
	Fees              float64
	ReturnFeeIncluded float64
	BuyAndHoldReturn  float64
	WinRate           float64
	// ProfitFactor is -1 when the symbol had no losing trade.
	ProfitFactor  float64
	ExposureHours float64
}

// Result is the full statistics set for one run.
type Result struct {
	CreatedAt time.Time
	Start     time.Time
	End       time.Time
	Duration  time.Duration

	EquityFinal  float64
	EquityPeak   float64
	RateOfReturn float64

	AnnualReturn     float64
	AnnualVolatility float64

	MaxDrawdown         float64
	AvgDrawdown         float64
	MaxDrawdownDuration time.Duration
	AvgDrawdownDuration time.Duration

	SharpeRatio          float64
	SortinoRatio         float64
	RiskReturnRatio      float64
	UpsideCaptureRatio   float64
	DownsideCaptureRatio float64
	Alpha                float64
	Beta                 float64

	NumTrades int
	PerSymbol map[string]*SymbolResult
}

// Analyzer derives a Result from the engine's post-run state. The first
// skipCandles entries of the equity history are warmup and excluded.
type Analyzer struct {
	skipCandles     int
	symbols         []string
	data            *candle.MultiSeries
	trades          []*models.Trade
	positions       []*models.Position
	equity          []float64
	riskFreeRate    float64
	benchmarkSymbol string
}

// NewAnalyzer validates inputs and builds an analyzer. positions must be the
// closed-position archive; equity must have one entry per loaded candle.
func NewAnalyzer(skipCandles int, symbols []string, data *candle.MultiSeries,
	trades []*models.Trade, positions []*models.Position, equity []float64,
	riskFreeRate float64, benchmarkSymbol string) (*Analyzer, error) {
	if riskFreeRate <= -1 || riskFreeRate >= 1 {
		return nil, fmt.Errorf("risk-free rate %v out of range (-1, 1)", riskFreeRate)
	}
	if data.FullLen() != len(equity) {
		return nil, fmt.Errorf("equity history length %d does not match candle count %d",
			len(equity), data.FullLen())
	}
	return &Analyzer{
		skipCandles:     skipCandles,
		symbols:         symbols,
		data:            data,
		trades:          trades,
		positions:       positions,
		equity:          equity[skipCandles:],
		riskFreeRate:    riskFreeRate,
		benchmarkSymbol: benchmarkSymbol,
	}, nil
}

// Compute runs the full analysis.
func (a *Analyzer) Compute() *Result {
	timestamps := a.data.Timestamps()[a.skipCandles:]
	r := &Result{
		CreatedAt: time.Now(),
		Start:     time.UnixMilli(timestamps[0]).UTC(),
		End:       time.UnixMilli(timestamps[len(timestamps)-1]).UTC(),
		NumTrades: len(a.trades),
		PerSymbol: make(map[string]*SymbolResult),
	}
	r.Duration = r.End.Sub(r.Start)
	r.EquityFinal = round8(a.equity[len(a.equity)-1])
	r.EquityPeak = round8(maxOf(a.equity))
	r.RateOfReturn = (a.equity[len(a.equity)-1] - a.equity[0]) / a.equity[0]

	a.computeDrawdowns(r, timestamps)

	dayTimes, dayEquity := resampleDailyLast(timestamps, a.equity)
	dayReturns := pctChange(dayEquity)

	gmean := geometricMean(dayReturns)
	r.AnnualReturn = math.Pow(1+gmean, annualTradingDays) - 1

	dayVariance := sampleVariance(dayReturns)
	r.AnnualVolatility = math.Sqrt(
		math.Pow(dayVariance+(1+gmean)*(1+gmean), annualTradingDays) -
			math.Pow(1+gmean, 2*annualTradingDays))

	r.SharpeRatio = (r.AnnualReturn - a.riskFreeRate) / r.AnnualVolatility
	r.SortinoRatio = (r.AnnualReturn - a.riskFreeRate) /
		(math.Sqrt(meanSquaredDownside(dayReturns)) * math.Sqrt(annualTradingDays))
	r.RiskReturnRatio = r.AnnualReturn / -r.AvgDrawdown

	a.computeBenchmarkMeasures(r, dayTimes, dayReturns)

	for _, symbol := range a.symbols {
		r.PerSymbol[symbol] = a.computeSymbol(symbol)
	}
	return r
}

func (a *Analyzer) computeDrawdowns(r *Result, timestamps []int64) {
	dd := make([]float64, len(a.equity))
	peak := math.Inf(-1)
	for i, eq := range a.equity {
		peak = math.Max(peak, eq)
		dd[i] = 1 - eq/peak
	}
	r.MaxDrawdown = -maxOf(dd)
	r.AvgDrawdown = -mean(dd)

	// A drawdown episode runs between two equity peaks. Collect the indices
	// where the drawdown is zero plus the final index; any consecutive pair
	// separated by more than one candle brackets an episode.
	var zeros []int
	for i, v := range dd {
		if v == 0 {
			zeros = append(zeros, i)
		}
	}
	if len(zeros) == 0 || zeros[len(zeros)-1] != len(dd)-1 {
		zeros = append(zeros, len(dd)-1)
	}
	var durations []time.Duration
	for i := 1; i < len(zeros); i++ {
		if zeros[i] > zeros[i-1]+1 {
			durations = append(durations,
				time.Duration(timestamps[zeros[i]]-timestamps[zeros[i-1]])*time.Millisecond)
		}
	}
	if len(durations) == 0 {
		return
	}
	var sum, max time.Duration
	for _, d := range durations {
		sum += d
		if d > max {
			max = d
		}
	}
	r.MaxDrawdownDuration = max
	r.AvgDrawdownDuration = sum / time.Duration(len(durations))
}

func (a *Analyzer) computeBenchmarkMeasures(r *Result, dayTimes []int64, dayReturns []float64) {
	benchmarks := a.symbols
	if a.benchmarkSymbol != "" {
		benchmarks = []string{a.benchmarkSymbol}
	}

	// Per-symbol daily close returns, averaged into one benchmark series.
	var symbolReturns [][]float64
	for _, symbol := range benchmarks {
		closes, err := a.data.Closes(symbol)
		if err != nil {
			continue
		}
		_, dayCloses := resampleDailyLast(a.data.Timestamps()[a.skipCandles:], closes[a.skipCandles:])
		symbolReturns = append(symbolReturns, pctChange(dayCloses))
	}
	if len(symbolReturns) == 0 || len(dayTimes) < 2 {
		return
	}
	benchmark := make([]float64, len(symbolReturns[0]))
	for i := range benchmark {
		var sum float64
		for _, sr := range symbolReturns {
			sum += sr[i]
		}
		benchmark[i] = sum / float64(len(symbolReturns))
	}

	var benchUp, resultUp, benchDown, resultDown float64
	n := float64(len(benchmark))
	for i, b := range benchmark {
		if b > 0 {
			benchUp += b
			resultUp += dayReturns[i]
		} else if b < 0 {
			benchDown += b
			resultDown += dayReturns[i]
		}
	}
	r.UpsideCaptureRatio = (resultUp / n) / (benchUp / n)
	r.DownsideCaptureRatio = (resultDown / n) / (-benchDown / n)

	var symbolGrowthSum float64
	for _, sr := range symbolReturns {
		symbolGrowthSum += product1p(sr)
	}
	r.Alpha = product1p(dayReturns) - symbolGrowthSum/float64(len(symbolReturns))
	r.Beta = covariance(benchmark, dayReturns) / populationVariance(benchmark)
}

func (a *Analyzer) computeSymbol(symbol string) *SymbolResult {
	s := &SymbolResult{ProfitFactor: -1}

	closes, err := a.data.Closes(symbol)
	if err == nil {
		arr := closes[a.skipCandles:]
		s.BuyAndHoldReturn = (arr[len(arr)-1] - arr[0]) / arr[0]
	}

	var trades []*models.Trade
	for _, t := range a.trades {
		if t.Symbol == symbol {
			trades = append(trades, t)
		}
	}
	var positions []*models.Position
	for _, p := range a.positions {
		if p.Symbol == symbol {
			positions = append(positions, p)
		}
	}
	s.NumTrades = len(trades)
	s.NumPositions = len(positions)
	if len(trades) == 0 {
		return s
	}

	for _, p := range positions {
		s.OpenTotal += p.AverageOpenPrice * p.ClosedAmount
		if p.ClosedTimestamp != 0 {
			s.ExposureHours += float64(p.ClosedTimestamp-p.Timestamp) / (1000 * 60 * 60)
		}
	}
	s.OpenTotal = round8(s.OpenTotal)

	var wins int
	var sumProfit, sumLoss float64
	for _, t := range trades {
		s.RealizedPnl += t.RealizedPnl
		s.Fees -= t.Fee.Cost
		if t.RealizedPnl > 0 {
			wins++
			sumProfit += t.RealizedPnl
		} else if t.RealizedPnl < 0 {
			sumLoss -= t.RealizedPnl
		}
	}
	s.RealizedPnl = round8(s.RealizedPnl)
	s.Fees = round8(s.Fees)
	if s.OpenTotal != 0 {
		s.ReturnFeeIncluded = round8((s.RealizedPnl + s.Fees) / s.OpenTotal)
	}
	s.WinRate = float64(wins) / float64(len(trades))
	if sumLoss > 0 {
		s.ProfitFactor = round8(sumProfit / sumLoss)
	}
	return s
}

// Format renders the result as a human-readable report.
func (r *Result) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Overall stats\n")
	fmt.Fprintf(&b, "  Start                   %s\n", r.Start.Format(time.RFC3339))
	fmt.Fprintf(&b, "  End                     %s\n", r.End.Format(time.RFC3339))
	fmt.Fprintf(&b, "  Duration                %s\n", r.Duration)
	fmt.Fprintf(&b, "  Equity Final [$]        %.8f\n", r.EquityFinal)
	fmt.Fprintf(&b, "  Equity Peak [$]         %.8f\n", r.EquityPeak)
	fmt.Fprintf(&b, "  Return [%%]              %.5f\n", r.RateOfReturn*100)
	fmt.Fprintf(&b, "  Ann. Return [%%]         %.5f\n", r.AnnualReturn*100)
	fmt.Fprintf(&b, "  Ann. Volatility [%%]     %.5f\n", r.AnnualVolatility*100)
	fmt.Fprintf(&b, "  Max. Drawdown [%%]       %.5f\n", r.MaxDrawdown*100)
	fmt.Fprintf(&b, "  Avg. Drawdown [%%]       %.5f\n", r.AvgDrawdown*100)
	fmt.Fprintf(&b, "  Max. Drawdown Duration  %s\n", r.MaxDrawdownDuration)
	fmt.Fprintf(&b, "  Avg. Drawdown Duration  %s\n", r.AvgDrawdownDuration)
	fmt.Fprintf(&b, "  Sharpe Ratio            %.5f\n", r.SharpeRatio)
	fmt.Fprintf(&b, "  Sortino Ratio           %.5f\n", r.SortinoRatio)
	fmt.Fprintf(&b, "  Risk Return Ratio       %.5f\n", r.RiskReturnRatio)
	fmt.Fprintf(&b, "  Upside Capture Ratio    %.5f\n", r.UpsideCaptureRatio)
	fmt.Fprintf(&b, "  Downside Capture Ratio  %.5f\n", r.DownsideCaptureRatio)
	fmt.Fprintf(&b, "  Alpha                   %.5f\n", r.Alpha)
	fmt.Fprintf(&b, "  Beta                    %.5f\n", r.Beta)
	fmt.Fprintf(&b, "  Num. Trades             %d\n", r.NumTrades)
	if r.NumTrades == 0 {
		return b.String()
	}

	fmt.Fprintf(&b, "\nPer-symbol stats\n")
	symbols := make([]string, 0, len(r.PerSymbol))
	for s := range r.PerSymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		s := r.PerSymbol[symbol]
		fmt.Fprintf(&b, "  %s\n", strings.ToUpper(symbol))
		fmt.Fprintf(&b, "    Open Total [$]               %.8f\n", s.OpenTotal)
		fmt.Fprintf(&b, "    Realized PnL [$]             %.8f\n", s.RealizedPnl)
		fmt.Fprintf(&b, "    Fees [$]                     %.8f\n", s.Fees)
		fmt.Fprintf(&b, "    Return (including fees) [%%]  %.5f\n", s.ReturnFeeIncluded*100)
		fmt.Fprintf(&b, "    Buy & Hold Return [%%]        %.5f\n", s.BuyAndHoldReturn*100)
		fmt.Fprintf(&b, "    Win Rate [%%]                 %.5f\n", s.WinRate*100)
		fmt.Fprintf(&b, "    Profit Factor                %.5f\n", s.ProfitFactor)
		fmt.Fprintf(&b, "    Exposure Time [hrs]          %.2f\n", s.ExposureHours)
		fmt.Fprintf(&b, "    Num. Trades                  %d\n", s.NumTrades)
		fmt.Fprintf(&b, "    Num. Positions               %d\n", s.NumPositions)
	}
	return b.String()
}

// ---- numeric helpers ----

func round8(v float64) float64 { return math.Round(v*1e8) / 1e8 }

func maxOf(vs []float64) float64 {
	max := math.Inf(-1)
	for _, v := range vs {
		if v > max {
			max = v
		}
	}
	return max
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// resampleDailyLast reduces a series to the last value of each UTC day.
func resampleDailyLast(timestamps []int64, values []float64) ([]int64, []float64) {
	const dayMs = int64(24 * 60 * 60 * 1000)
	var outTimes []int64
	var outValues []float64
	for i := range timestamps {
		day := timestamps[i] / dayMs
		if len(outTimes) > 0 && outTimes[len(outTimes)-1] == day {
			outValues[len(outValues)-1] = values[i]
			continue
		}
		outTimes = append(outTimes, day)
		outValues = append(outValues, values[i])
	}
	for i := range outTimes {
		outTimes[i] *= dayMs
	}
	return outTimes, outValues
}

// pctChange returns period-over-period fractional changes, one element
// shorter than the input.
func pctChange(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		out[i-1] = (values[i] - values[i-1]) / values[i-1]
	}
	return out
}

// geometricMean computes the geometric mean daily return; zero when any
// growth factor is non-positive (equity wiped out).
func geometricMean(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	var logSum float64
	for _, r := range returns {
		g := 1 + r
		if g <= 0 {
			return 0
		}
		logSum += math.Log(g)
	}
	return math.Exp(logSum/float64(len(returns))) - 1
}

func sampleVariance(vs []float64) float64 {
	if len(vs) < 2 {
		return 0
	}
	m := mean(vs)
	var sum float64
	for _, v := range vs {
		sum += (v - m) * (v - m)
	}
	return sum / float64(len(vs)-1)
}

func populationVariance(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	m := mean(vs)
	var sum float64
	for _, v := range vs {
		sum += (v - m) * (v - m)
	}
	return sum / float64(len(vs))
}

func covariance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0
	}
	ma, mb := mean(a[:n]), mean(b[:n])
	var sum float64
	for i := 0; i < n; i++ {
		sum += (a[i] - ma) * (b[i] - mb)
	}
	return sum / float64(n-1)
}

func meanSquaredDownside(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		if r < 0 {
			sum += r * r
		}
	}
	return sum / float64(len(returns))
}

func product1p(vs []float64) float64 {
	p := 1.0
	for _, v := range vs {
		p *= 1 + v
	}
	return p
}

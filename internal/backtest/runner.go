// Package backtest drives strategies over historical candles and writes the
// resulting reports.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"perp-trader/internal/broker"
	"perp-trader/internal/candle"
	"perp-trader/internal/models"
	"perp-trader/internal/stats"
	"perp-trader/internal/strategy"
)

// Config assembles a run.
type Config struct {
	Name            string
	InitialBalance  float64
	MarginMode      models.MarginMode
	Leverage        map[string]int
	Strategies      []strategy.Strategy
	Data            *candle.MultiSeries
	RiskFreeRate    float64
	BenchmarkSymbol string
	Logger          zerolog.Logger
}

// Result is everything a completed run produced.
type Result struct {
	Name            string
	Start           time.Time
	End             time.Time
	Warmup          int
	EquityHistory   []float64
	Trades          []*models.Trade
	ClosedPositions []*models.Position
	// Indicators holds each registered indicator's full series, keyed
	// "symbol/name", for the report artifact.
	Indicators map[string][]float64
	Stats      *stats.Result
}

// Runner owns one backtest: an account, a matching engine and the strategies
// trading through them.
type Runner struct {
	logger     zerolog.Logger
	name       string
	account    *broker.Account
	engine     *broker.Engine
	data       *candle.MultiSeries
	strategies []strategy.Strategy

	riskFreeRate    float64
	benchmarkSymbol string
}

// NewRunner wires the account and engine from the config.
func NewRunner(cfg Config) (*Runner, error) {
	if len(cfg.Strategies) == 0 {
		return nil, fmt.Errorf("no strategies registered")
	}
	if cfg.InitialBalance <= 0 {
		return nil, fmt.Errorf("initial balance must be positive, got %v", cfg.InitialBalance)
	}

	account := broker.NewAccount(cfg.InitialBalance, cfg.Data, broker.NewMemoryTracker(), cfg.Logger)
	for _, strat := range cfg.Strategies {
		for _, symbol := range strat.Symbols() {
			if err := account.SetMarginMode(symbol, cfg.MarginMode); err != nil {
				return nil, err
			}
			if lev, ok := cfg.Leverage[symbol]; ok {
				if err := account.SetLeverage(symbol, lev); err != nil {
					return nil, err
				}
			}
		}
	}

	return &Runner{
		logger:          cfg.Logger.With().Str("component", "backtest").Logger(),
		name:            cfg.Name,
		account:         account,
		engine:          broker.NewEngine(account, cfg.Data, cfg.Logger),
		data:            cfg.Data,
		strategies:      cfg.Strategies,
		riskFreeRate:    cfg.RiskFreeRate,
		benchmarkSymbol: cfg.BenchmarkSymbol,
	}, nil
}

// Account exposes the run's account, mainly for inspection in tests.
func (r *Runner) Account() *broker.Account { return r.account }

// warmup is the largest candle history any strategy requires before its
// first decision.
func (r *Runner) warmup() int {
	max := 0
	for _, strat := range r.strategies {
		if n := strat.CandlesNeeded(); n > max {
			max = n
		}
	}
	return max
}

// Run executes the full backtest. The context is checked between ticks; a
// tick itself is never interrupted, so state is always consistent at return.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	for _, strat := range r.strategies {
		if err := strat.Setup(r.account, r.data); err != nil {
			return nil, fmt.Errorf("setting up %s: %w", strat.Name(), err)
		}
		if err := strat.UpdateIndicators(); err != nil {
			return nil, fmt.Errorf("indicators for %s: %w", strat.Name(), err)
		}
	}

	fullLength := r.data.FullLen()
	warmup := r.warmup()
	if warmup+1 >= fullLength {
		return nil, fmt.Errorf("warmup %d leaves no candles to trade out of %d", warmup, fullLength)
	}
	r.logger.Info().
		Int("candles", fullLength).
		Int("warmup", warmup).
		Msg("starting backtest")

	started := time.Now()
	aborted := false
	// The final candle is held back from the strategies: it is matched only
	// once, after clearStrategies, so closing fills cannot price off a candle
	// a strategy already saw.
	for i := warmup + 1; i < fullLength; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.data.SetLength(i); err != nil {
			return nil, err
		}
		if err := r.engine.Next(); err != nil {
			return nil, err
		}

		if r.account.FetchBalance().MarginBalance() <= 0 {
			r.logger.Warn().Msg("margin balance is zero, stopping backtest")
			aborted = true
			break
		}

		for _, strat := range r.strategies {
			if err := strat.UpdateIndicators(); err != nil {
				return nil, err
			}
			if err := strat.Next(); err != nil {
				return nil, fmt.Errorf("strategy %s: %w", strat.Name(), err)
			}
		}
	}

	if !aborted {
		if err := r.clearStrategies(); err != nil {
			return nil, err
		}
		if err := r.data.SetLength(fullLength); err != nil {
			return nil, err
		}
		if err := r.engine.Next(); err != nil {
			return nil, err
		}
		for _, strat := range r.strategies {
			if err := strat.UpdateIndicators(); err != nil {
				return nil, err
			}
		}
	}
	r.logger.Info().
		Dur("elapsed", time.Since(started)).
		Msg("backtest finished")

	return r.collectResult(warmup)
}

// clearStrategies winds a run down: every strategy's open orders are
// canceled and its remaining positions are flattened with market orders, so
// the final equity is fully realized. The close orders fill on the final
// candle, which the strategies never traded on.
func (r *Runner) clearStrategies() error {
	for _, strat := range r.strategies {
		for _, symbol := range strat.Symbols() {
			r.account.CancelAllOrders(symbol)
			for _, position := range r.account.FetchPositions([]string{symbol}) {
				action := models.ActionCloseLong
				if position.Side == models.PositionShort {
					action = models.ActionCloseShort
				}
				if _, err := r.account.CreateOrder(broker.CreateOrderParams{
					Symbol: symbol,
					Action: action,
					Amount: position.Contracts,
				}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (r *Runner) collectResult(warmup int) (*Result, error) {
	symbols := r.data.Symbols()
	trades := r.account.FetchTrades("")
	positions := r.account.ClosedPositions()
	equity := r.engine.EquityHistory()

	analyzer, err := stats.NewAnalyzer(warmup, symbols, r.data, trades, positions, equity,
		r.riskFreeRate, r.benchmarkSymbol)
	if err != nil {
		return nil, err
	}
	statResult := analyzer.Compute()

	indicators := make(map[string][]float64)
	for _, strat := range r.strategies {
		for _, ind := range strat.Indicators() {
			indicators[ind.Symbol+"/"+ind.Name] = ind.Values()
		}
	}

	timestamps := r.data.Timestamps()
	return &Result{
		Name:            r.name,
		Start:           time.UnixMilli(timestamps[warmup]).UTC(),
		End:             time.UnixMilli(timestamps[len(timestamps)-1]).UTC(),
		Warmup:          warmup,
		EquityHistory:   equity,
		Trades:          trades,
		ClosedPositions: positions,
		Indicators:      indicators,
		Stats:           statResult,
	}, nil
}

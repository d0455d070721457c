package broker

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"perp-trader/internal/candle"
	"perp-trader/internal/models"
)

func approxEqual(a, b, tol float64) bool {
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale < 1 {
		scale = 1
	}
	return math.Abs(a-b) <= tol*scale
}

// Property: Wallet balance is conserved across a position's lifetime
//
// For any entry price, position size and subsequent price move, once the
// position is fully closed the wallet must equal the initial balance plus the
// sum of realized P&L minus the sum of fees, and with no open positions or
// orders the available balance must equal the wallet.
func TestProperty_BalanceConservation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("wallet = initial + realized - fees once flat", prop.ForAll(
		func(price, amount, movePct float64) bool {
			const initial = 1_000_000.0
			exitPrice := price * (1 + movePct)
			data := propSeries(t, "BTC/USDT", []float64{price, price, exitPrice, exitPrice})
			if err := data.SetLength(1); err != nil {
				return false
			}
			account := NewAccount(initial, data, NewMemoryTracker(), zerolog.Nop())
			engine := NewEngine(account, data, zerolog.Nop())

			order, err := account.CreateOrder(CreateOrderParams{
				Symbol: "BTC/USDT",
				Action: models.ActionOpenLong,
				Amount: amount,
			})
			if err != nil || order == nil {
				return false
			}
			if err := data.SetLength(2); err != nil {
				return false
			}
			if err := engine.Next(); err != nil {
				return false
			}

			position := account.OpenPosition("BTC/USDT", models.PositionLong)
			if position == nil {
				return false
			}
			if _, err := account.CreateOrder(CreateOrderParams{
				Symbol: "BTC/USDT",
				Action: models.ActionCloseLong,
				Amount: position.Contracts,
			}); err != nil {
				return false
			}
			if err := data.SetLength(3); err != nil {
				return false
			}
			if err := engine.Next(); err != nil {
				return false
			}
			if account.OpenPosition("BTC/USDT", models.PositionLong) != nil {
				return false
			}

			var realized, fees float64
			for _, trade := range account.FetchTrades("") {
				realized += trade.RealizedPnl
				fees += trade.Fee.Cost
			}
			balance := account.FetchBalance()
			return approxEqual(balance.WalletBalance, initial+realized-fees, 1e-9) &&
				approxEqual(balance.Available(), balance.WalletBalance, 1e-9)
		},
		gen.Float64Range(100, 50_000),
		gen.Float64Range(0.1, 2),
		gen.Float64Range(-0.05, 0.05),
	))

	properties.TestingRun(t)
}

// Property: Terminal order statuses never transition again
//
// A canceled order stays canceled: a second cancel is a nil no-op, the order
// never reappears in the open index, and the balance is untouched by the
// repeated cancel.
func TestProperty_CanceledOrdersStayCanceled(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("cancel is idempotent and terminal", prop.ForAll(
		func(price, limitFrac, amount float64) bool {
			data := propSeries(t, "BTC/USDT", []float64{price, price})
			if err := data.SetLength(1); err != nil {
				return false
			}
			account := NewAccount(1_000_000, data, NewMemoryTracker(), zerolog.Nop())

			order, err := account.CreateOrder(CreateOrderParams{
				Symbol: "BTC/USDT",
				Action: models.ActionOpenLong,
				Amount: amount,
				Price:  models.Float(price * limitFrac),
			})
			if err != nil || order == nil {
				return false
			}

			if account.CancelOrder(order) == nil {
				return false
			}
			if order.Status != models.OrderStatusCanceled || !order.Status.IsTerminal() {
				return false
			}
			available := account.FetchBalance().Available()

			if account.CancelOrder(order) != nil {
				return false
			}
			return order.Status == models.OrderStatusCanceled &&
				account.FetchBalance().Available() == available &&
				len(account.FetchOpenOrders("BTC/USDT")) == 0
		},
		gen.Float64Range(100, 50_000),
		gen.Float64Range(0.5, 0.99),
		gen.Float64Range(0.1, 2),
	))

	properties.TestingRun(t)
}

// Property: Cross-mode positions never carry an isolated wallet
//
// In cross margin, every open position has a zero isolated wallet and the
// balance reserves initial margin through PositionInitialMargin only.
func TestProperty_CrossModeUsesNoIsolatedMargin(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("cross positions reserve initial margin only", prop.ForAll(
		func(price, amount float64, leverage int) bool {
			data := propSeries(t, "BTC/USDT", []float64{price, price})
			if err := data.SetLength(1); err != nil {
				return false
			}
			account := NewAccount(1_000_000, data, NewMemoryTracker(), zerolog.Nop())
			engine := NewEngine(account, data, zerolog.Nop())
			if err := account.SetMarginMode("BTC/USDT", models.MarginCross); err != nil {
				return false
			}
			if err := account.SetLeverage("BTC/USDT", leverage); err != nil {
				return false
			}

			order, err := account.CreateOrder(CreateOrderParams{
				Symbol: "BTC/USDT",
				Action: models.ActionOpenLong,
				Amount: amount,
			})
			if err != nil || order == nil {
				return false
			}
			if err := data.SetLength(2); err != nil {
				return false
			}
			if err := engine.Next(); err != nil {
				return false
			}

			position := account.OpenPosition("BTC/USDT", models.PositionLong)
			if position == nil {
				return false
			}
			balance := account.FetchBalance()
			expectedIM := position.Notional() / float64(leverage)
			return position.IsolatedWallet == 0 &&
				balance.PositionIsolatedMargin == 0 &&
				approxEqual(balance.PositionInitialMargin, expectedIM, 1e-9)
		},
		gen.Float64Range(100, 10_000),
		gen.Float64Range(0.1, 2),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}

// Property: Scaling into a position averages the entry and releases the
// isolated wallet exactly on full close
//
// Opening twice at different prices yields the size-weighted average entry
// price, and closing the whole position leaves the archived position's
// isolated wallet at exactly zero, not merely near zero.
func TestProperty_ScaledEntryAveragesAndFullCloseReleasesMargin(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("weighted entry and exact margin release", prop.ForAll(
		func(p1, p2, a1, a2 float64) bool {
			data := propSeries(t, "BTC/USDT", []float64{p1, p1, p2, p2, p2})
			if err := data.SetLength(1); err != nil {
				return false
			}
			account := NewAccount(1_000_000, data, NewMemoryTracker(), zerolog.Nop())
			engine := NewEngine(account, data, zerolog.Nop())

			fill := func(action models.OrderAction, amount float64) bool {
				order, err := account.CreateOrder(CreateOrderParams{
					Symbol: "BTC/USDT",
					Action: action,
					Amount: amount,
				})
				if err != nil || order == nil {
					return false
				}
				if err := data.SetLength(data.Len() + 1); err != nil {
					return false
				}
				return engine.Next() == nil
			}

			if !fill(models.ActionOpenLong, a1) || !fill(models.ActionOpenLong, a2) {
				return false
			}
			position := account.OpenPosition("BTC/USDT", models.PositionLong)
			if position == nil {
				return false
			}
			expectedEntry := (p1*a1 + p2*a2) / (a1 + a2)
			if !approxEqual(position.EntryPrice, expectedEntry, 1e-6) {
				return false
			}

			if !fill(models.ActionCloseLong, position.Contracts) {
				return false
			}
			closed := account.ClosedPositions()
			return account.OpenPosition("BTC/USDT", models.PositionLong) == nil &&
				len(closed) == 1 &&
				closed[0].IsolatedWallet == 0
		},
		gen.Float64Range(100, 10_000),
		gen.Float64Range(100, 10_000),
		gen.Float64Range(0.1, 2),
		gen.Float64Range(0.1, 2),
	))

	properties.TestingRun(t)
}

// propSeries builds a 1m series where each candle's four prices all sit at
// the given level, so market fills land exactly at that level.
func propSeries(t *testing.T, symbol string, prices []float64) *candle.MultiSeries {
	t.Helper()
	rows := make([][4]float64, len(prices))
	for i, p := range prices {
		rows[i] = [4]float64{p, p, p, p}
	}
	return testSeries(t, symbol, rows)
}

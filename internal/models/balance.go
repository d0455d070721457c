package models

// Balance is the full account snapshot in the settle currency. Every derived
// field is recomputed wholesale from open orders and positions after each
// mutation rather than adjusted incrementally.
type Balance struct {
	// WalletBalance moves only on realized P&L and fees.
	WalletBalance    float64
	UnrealizedProfit float64
	// OpenOrderInitialMargin is the margin reserved for resting opening
	// orders, estimated with the taker fee folded in.
	OpenOrderInitialMargin float64
	MaintMargin            float64
	// PositionInitialMargin covers cross positions only; isolated positions
	// carry their own wallet.
	PositionInitialMargin  float64
	PositionIsolatedMargin float64
}

// MarginBalance is the wallet marked to market.
func (b *Balance) MarginBalance() float64 {
	return b.WalletBalance + b.UnrealizedProfit
}

// Available is what new orders can draw on.
func (b *Balance) Available() float64 {
	return b.MarginBalance() - b.PositionInitialMargin - b.OpenOrderInitialMargin - b.PositionIsolatedMargin
}

// ResetDerived zeroes every field recomputed from orders and positions,
// leaving only the wallet.
func (b *Balance) ResetDerived() {
	b.UnrealizedProfit = 0
	b.OpenOrderInitialMargin = 0
	b.MaintMargin = 0
	b.PositionInitialMargin = 0
	b.PositionIsolatedMargin = 0
}

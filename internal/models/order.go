package models

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

// ContingentOrder describes a stop-loss or take-profit leg attached to a
// parent order: the price that arms it and the optional limit price it
// executes at (nil means market).
type ContingentOrder struct {
	TriggerPrice float64
	Price        *float64
}

// Order is a single order resting on (or removed from) the simulated book.
// Price is nil for market-priced orders; StopPrice is nil unless the order is
// stop/take-profit flavored. Trades accumulates the fills.
type Order struct {
	ID            string
	ClientOrderID *ClientOrderID
	Timestamp     int64
	Symbol        string
	Side          OrderSide
	PositionSide  PositionSide
	Type          OrderType
	Price         *float64
	StopPrice     *float64
	Amount        float64
	Filled        float64
	Status        OrderStatus
	TimeInForce   TimeInForce
	Trades        []*Trade
}

// Action combines the order's side with the position side it targets.
func (o *Order) Action() OrderAction {
	return ActionFor(o.Side, o.PositionSide)
}

// Remaining is the amount still unfilled.
func (o *Order) Remaining() float64 { return o.Amount - o.Filled }

// Cost is amount times limit price, or nil for market-priced orders.
func (o *Order) Cost() *float64 {
	if o.Price == nil {
		return nil
	}
	c := o.Amount * *o.Price
	return &c
}

const clientOrderIDMaxLen = 36

// ClientOrderID is the caller-assigned correlation id, encoded on the wire as
// "strategy_timestamp_random" and capped at 36 characters.
type ClientOrderID struct {
	Strategy  string
	Timestamp int64
	Suffix    string
}

// NewClientOrderID builds an id with a random suffix filling the remaining
// encoded length. The strategy slug must not contain underscores.
func NewClientOrderID(strategy string, timestamp int64) (*ClientOrderID, error) {
	if strings.Contains(strategy, "_") {
		return nil, fmt.Errorf("strategy slug %q must not contain '_'", strategy)
	}
	id := &ClientOrderID{Strategy: strategy, Timestamp: timestamp}
	id.Suffix = randomSuffix(id.remainingSlots())
	return id, nil
}

func (c *ClientOrderID) remainingSlots() int {
	name := c.Strategy
	if name == "" {
		name = "None"
	}
	n := clientOrderIDMaxLen - len(name) - len(strconv.FormatInt(c.Timestamp, 10)) - 2
	if n < 0 {
		n = 0
	}
	return n
}

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomSuffix(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = suffixAlphabet[rand.Intn(len(suffixAlphabet))]
	}
	return string(b)
}

// Encode renders the wire form, or "" when the result would exceed the cap.
func (c *ClientOrderID) Encode() string {
	name := c.Strategy
	if name == "" {
		name = "None"
	}
	encoded := fmt.Sprintf("%s_%d_%s", name, c.Timestamp, c.Suffix)
	if len(encoded) > clientOrderIDMaxLen {
		return ""
	}
	return encoded
}

// DecodeClientOrderID parses the wire form. Malformed input yields nil rather
// than an error: ids travel through external systems and may be rewritten.
func DecodeClientOrderID(s string) *ClientOrderID {
	parts := strings.Split(s, "_")
	if len(parts) != 3 {
		return nil
	}
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil
	}
	strategy := parts[0]
	if strategy == "None" {
		strategy = ""
	}
	return &ClientOrderID{Strategy: strategy, Timestamp: ts, Suffix: parts[2]}
}

// WithTimestamp derives a fresh id for the same strategy, used when the
// engine synthesizes a follow-up order from a contingent trigger.
func (c *ClientOrderID) WithTimestamp(timestamp int64) *ClientOrderID {
	id := &ClientOrderID{Strategy: c.Strategy, Timestamp: timestamp}
	id.Suffix = randomSuffix(id.remainingSlots())
	return id
}

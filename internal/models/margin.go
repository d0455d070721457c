package models

import "fmt"

// MarginBracket is one row of the tiered maintenance-margin schedule. A
// position whose amount falls below Limit uses this row's rate and deduction.
type MarginBracket struct {
	Limit          float64
	MaxLeverage    int
	MaintMarginPct float64
	MaintAmount    float64
}

// Tiered leverage and margin schedule, keyed by position amount.
var marginBrackets = []MarginBracket{
	{50000, 125, 0.004, 0},
	{250000, 100, 0.005, 50},
	{3000000, 50, 0.01, 1300},
	{15000000, 20, 0.025, 46300},
	{30000000, 10, 0.05, 421300},
	{80000000, 5, 0.1, 1921300},
	{100000000, 4, 0.125, 3921300},
	{200000000, 3, 0.15, 6421300},
	{300000000, 2, 0.25, 26421300},
	{500000000, 1, 0.5, 101421300},
}

// BracketFor returns the schedule row covering the given position amount.
func BracketFor(positionAmount float64) (MarginBracket, error) {
	for _, b := range marginBrackets {
		if positionAmount < b.Limit {
			return b, nil
		}
	}
	return MarginBracket{}, fmt.Errorf("position amount %v is out of range", positionAmount)
}

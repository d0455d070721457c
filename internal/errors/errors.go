// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInvalidOrder     = errors.New("invalid order")
	ErrInvalidTrade     = errors.New("invalid trade")
	ErrOutOfMoney       = errors.New("not enough money to open the position")
	ErrNoOpenPosition   = errors.New("no open position to close")
	ErrOrderRejected    = errors.New("order rejected")
	ErrSymbolNotFound   = errors.New("symbol not found")
	ErrDataNotFound     = errors.New("data not found")
	ErrDatabaseError    = errors.New("database error")
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrInvariant        = errors.New("invariant violation")
	ErrRunAborted       = errors.New("backtest run aborted")
	ErrContingentExists = errors.New("contingent info already exists")
)

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// OrderValidationError reports caller-supplied order parameters that are
// inconsistent, such as a stop price on the wrong side of the last price.
// These indicate a bug in the calling strategy and are never swallowed.
type OrderValidationError struct {
	Symbol string
	Reason string
}

func (e *OrderValidationError) Error() string {
	return fmt.Sprintf("invalid order for %s: %s", e.Symbol, e.Reason)
}

func (e *OrderValidationError) Unwrap() error { return ErrInvalidOrder }

// NewOrderValidationError creates a new OrderValidationError.
func NewOrderValidationError(symbol, format string, args ...any) *OrderValidationError {
	return &OrderValidationError{Symbol: symbol, Reason: fmt.Sprintf(format, args...)}
}

// InvariantError marks a modeling defect detected mid-simulation. It aborts
// the run rather than being handled.
type InvariantError struct {
	Op  string
	Err error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated in %s: %v", e.Op, e.Err)
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }

// NewInvariantError creates a new InvariantError wrapping err.
func NewInvariantError(op string, err error) *InvariantError {
	return &InvariantError{Op: op, Err: err}
}

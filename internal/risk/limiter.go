// Package risk enforces open-exposure limits checked at order submission.
// A paper account with unbounded exposure produces backtests no live
// account could reproduce, so the matcher consults this limiter before
// the balance check.
package risk

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrPerSymbolLimitExceeded is returned when an order would push a
	// single symbol's open lots beyond the per-symbol maximum.
	ErrPerSymbolLimitExceeded = errors.New("risk: per-symbol exposure limit exceeded")

	// ErrTotalLimitExceeded is returned when an order would push the
	// aggregate open lots across all symbols beyond the total maximum.
	ErrTotalLimitExceeded = errors.New("risk: total exposure limit exceeded")
)

// ExposureLimiter caps open position size. Limits are in lots of
// absolute exposure; zero disables the corresponding check.
type ExposureLimiter struct {
	// MaxPerSymbol is the maximum absolute open quantity in one symbol.
	MaxPerSymbol decimal.Decimal

	// MaxTotal is the maximum aggregate absolute open quantity across
	// all symbols.
	MaxTotal decimal.Decimal
}

// NewExposureLimiter creates a limiter with the given caps.
func NewExposureLimiter(maxPerSymbol, maxTotal decimal.Decimal) *ExposureLimiter {
	return &ExposureLimiter{
		MaxPerSymbol: maxPerSymbol,
		MaxTotal:     maxTotal,
	}
}

// CheckLimit validates whether an order respects exposure limits.
//
// Parameters:
//   - targetSymbol: the symbol being traded
//   - quantity: the order quantity in lots (always positive)
//   - openExposures: map of symbol → current open lots
//
// Returns nil if the order is within limits.
func (l *ExposureLimiter) CheckLimit(
	targetSymbol string,
	quantity decimal.Decimal,
	openExposures map[string]decimal.Decimal,
) error {
	newInSymbol := openExposures[targetSymbol].Add(quantity)
	if l.MaxPerSymbol.IsPositive() && newInSymbol.GreaterThan(l.MaxPerSymbol) {
		return ErrPerSymbolLimitExceeded
	}

	if l.MaxTotal.IsPositive() {
		total := newInSymbol
		for sym, exp := range openExposures {
			if sym == targetSymbol {
				continue // already counted via newInSymbol above
			}
			total = total.Add(exp)
		}
		if total.GreaterThan(l.MaxTotal) {
			return ErrTotalLimitExceeded
		}
	}

	return nil
}

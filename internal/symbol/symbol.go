// Package symbol holds the static trading specification for each symbol:
// pip geometry, lot bounds, and trading hours. The matcher consults it
// before any fill is attempted.
package symbol

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownSymbol = errors.New("symbol: not listed")
	ErrInvalidName   = errors.New("symbol: invalid name format")
)

// nameRegex matches a six-letter currency pair, e.g. EURUSD.
var nameRegex = regexp.MustCompile(`^[A-Z]{6}$`)

// Spec is the per-symbol trading specification.
type Spec struct {
	Name     string          `json:"name"`
	PipSize  decimal.Decimal `json:"pip_size"`  // minimum price increment, e.g. 0.0001
	PipValue decimal.Decimal `json:"pip_value"` // money per pip per 1.0 lot
	MinLots  decimal.Decimal `json:"min_lots"`
	MaxLots  decimal.Decimal `json:"max_lots"`

	// Weekend close. The simulated market is closed from Friday 22:00 UTC
	// to Sunday 22:00 UTC, matching spot FX conventions. Zero values mean
	// always open (backtests over synthetic clocks).
	WeekendClosed bool `json:"weekend_closed"`
}

// QuantityValid reports whether lots is within the configured bounds.
func (s Spec) QuantityValid(lots decimal.Decimal) bool {
	if lots.LessThanOrEqual(decimal.Zero) {
		return false
	}
	if lots.LessThan(s.MinLots) {
		return false
	}
	return !lots.GreaterThan(s.MaxLots)
}

// OpenAt reports whether the market for this symbol trades at t.
func (s Spec) OpenAt(t time.Time) bool {
	if !s.WeekendClosed {
		return true
	}
	u := t.UTC()
	switch u.Weekday() {
	case time.Saturday:
		return false
	case time.Friday:
		return u.Hour() < 22
	case time.Sunday:
		return u.Hour() >= 22
	}
	return true
}

// Table is an explicit, constructed symbol registry handed to the matcher
// at startup rather than a process-wide singleton.
type Table struct {
	specs map[string]Spec
}

// NewTable builds a table from the given specs. Names must be unique.
func NewTable(specs ...Spec) (*Table, error) {
	t := &Table{specs: make(map[string]Spec, len(specs))}
	for _, s := range specs {
		if !nameRegex.MatchString(s.Name) {
			return nil, fmt.Errorf("%w: %q (expected six uppercase letters)", ErrInvalidName, s.Name)
		}
		if _, dup := t.specs[s.Name]; dup {
			return nil, fmt.Errorf("symbol: duplicate spec for %s", s.Name)
		}
		t.specs[s.Name] = s
	}
	return t, nil
}

// Lookup returns the spec for name.
func (t *Table) Lookup(name string) (Spec, error) {
	s, ok := t.specs[name]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, name)
	}
	return s, nil
}

// Names returns all listed symbol names.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.specs))
	for n := range t.specs {
		names = append(names, n)
	}
	return names
}

// DefaultSpec returns a standard major-pair spec: 0.0001 pip, $10 per pip
// per standard lot, 0.01–100 lots.
func DefaultSpec(name string) Spec {
	return Spec{
		Name:     name,
		PipSize:  decimal.NewFromFloat(0.0001),
		PipValue: decimal.NewFromInt(10),
		MinLots:  decimal.NewFromFloat(0.01),
		MaxLots:  decimal.NewFromInt(100),
	}
}

// Package cost implements the execution friction model: spread cost,
// commission, and adverse slippage. The model is pure computation; the
// only state is the injected random source used for slippage sampling.
//
// Slippage is strictly adverse. It worsens the entry price for a new
// position and worsens the exit price on any closure; it never improves
// an outcome. That asymmetry is the standard broker-simulation
// convention and is preserved by the tests.
//
// All monetary values use shopspring/decimal, never float64 for money.
package cost

import (
	"errors"
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/fxsim/paperbroker/internal/model"
	"github.com/fxsim/paperbroker/internal/symbol"
)

// ErrNegativeRate is returned when a model is configured with a negative
// commission rate or slippage bound.
var ErrNegativeRate = errors.New("cost: rates must be non-negative")

// CostScale is the number of decimal places for cost rounding.
const CostScale int32 = 8

// Model computes execution costs for one order leg.
type Model struct {
	commissionPerLot decimal.Decimal
	maxSlippagePips  decimal.Decimal
	rng              *rand.Rand
}

// NewModel creates a cost model. commissionPerLot is charged linearly in
// quantity on every leg; maxSlippagePips bounds the uniform slippage
// sample. rng may be seeded for deterministic backtests.
func NewModel(commissionPerLot, maxSlippagePips decimal.Decimal, rng *rand.Rand) (*Model, error) {
	if commissionPerLot.IsNegative() || maxSlippagePips.IsNegative() {
		return nil, ErrNegativeRate
	}
	return &Model{
		commissionPerLot: commissionPerLot,
		maxSlippagePips:  maxSlippagePips,
		rng:              rng,
	}, nil
}

// SpreadCost is the cost of crossing the spread:
//
//	(ask − bid) / pipSize × quantity × pipValue
func (m *Model) SpreadCost(tick model.Tick, quantity decimal.Decimal, spec symbol.Spec) decimal.Decimal {
	spreadPips := tick.Ask.Sub(tick.Bid).Div(spec.PipSize)
	return spreadPips.Mul(quantity).Mul(spec.PipValue).Round(CostScale)
}

// Commission is linear in quantity.
func (m *Model) Commission(quantity decimal.Decimal) decimal.Decimal {
	return m.commissionPerLot.Mul(quantity).Round(CostScale)
}

// SlippagePips samples a uniform slippage in [0, maxSlippagePips].
// The caller applies it in the adverse direction.
func (m *Model) SlippagePips() decimal.Decimal {
	if m.maxSlippagePips.IsZero() {
		return decimal.Zero
	}
	f := m.rng.Float64()
	return m.maxSlippagePips.Mul(decimal.NewFromFloat(f)).Round(CostScale)
}

// AdverseEntry worsens an entry price by the given slippage: buys pay
// more, sells receive less. Returns the adjusted price and the signed
// price delta applied (reported on the fill for diagnostics).
func AdverseEntry(price decimal.Decimal, side model.Side, slippagePips decimal.Decimal, spec symbol.Spec) (decimal.Decimal, decimal.Decimal) {
	delta := slippagePips.Mul(spec.PipSize)
	if side == model.Buy {
		return price.Add(delta), delta
	}
	return price.Sub(delta), delta.Neg()
}

// AdverseExit worsens an exit price: a closing Buy position sells lower,
// a closing Sell position buys back higher.
func AdverseExit(price decimal.Decimal, side model.Side, slippagePips decimal.Decimal, spec symbol.Spec) (decimal.Decimal, decimal.Decimal) {
	delta := slippagePips.Mul(spec.PipSize)
	if side == model.Buy {
		return price.Sub(delta), delta.Neg()
	}
	return price.Add(delta), delta
}

// PnL converts a price move into money for the given direction:
//
//	(exit − entry) / pipSize × quantity × pipValue   for Buy
//
// sign-flipped for Sell. Used for both unrealized and gross P&L.
func PnL(side model.Side, entry, exit, quantity decimal.Decimal, spec symbol.Spec) decimal.Decimal {
	movePips := exit.Sub(entry).Div(spec.PipSize)
	if side == model.Sell {
		movePips = movePips.Neg()
	}
	return movePips.Mul(quantity).Mul(spec.PipValue).Round(CostScale)
}

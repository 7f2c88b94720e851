package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/fxsim/paperbroker/internal/model"
)

// SMACrossover is a reference strategy: buy when the fast simple moving
// average of the midpoint crosses above the slow one, sell on the
// opposite cross. Shipped mainly so paper sessions have something to
// rehearse with.
type SMACrossover struct {
	fast, slow   int
	window       []decimal.Decimal
	lastFastOver bool
	primed       bool

	Quantity       decimal.Decimal
	StopLossPips   decimal.Decimal
	TakeProfitPips decimal.Decimal
}

// NewSMACrossover creates the strategy with the given periods; fast must
// be smaller than slow.
func NewSMACrossover(fast, slow int, quantity, slPips, tpPips decimal.Decimal) *SMACrossover {
	if fast >= slow {
		fast, slow = slow, fast
	}
	return &SMACrossover{
		fast:           fast,
		slow:           slow,
		Quantity:       quantity,
		StopLossPips:   slPips,
		TakeProfitPips: tpPips,
	}
}

// Analyze implements Strategy.
func (s *SMACrossover) Analyze(state model.MarketState) *model.Signal {
	s.window = append(s.window, state.Tick.Mid())
	if len(s.window) > s.slow {
		s.window = s.window[1:]
	}
	if len(s.window) < s.slow {
		return nil
	}

	fastOver := s.sma(s.fast).GreaterThan(s.sma(s.slow))
	defer func() {
		s.lastFastOver = fastOver
		s.primed = true
	}()

	if !s.primed || fastOver == s.lastFastOver {
		return nil
	}

	side := model.Sell
	if fastOver {
		side = model.Buy
	}
	return &model.Signal{
		Side:           side,
		Quantity:       s.Quantity,
		Kind:           model.Market,
		StopLossPips:   s.StopLossPips,
		TakeProfitPips: s.TakeProfitPips,
	}
}

func (s *SMACrossover) sma(n int) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range s.window[len(s.window)-n:] {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(n)))
}

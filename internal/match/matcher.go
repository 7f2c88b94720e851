// Package match turns submitted orders plus the current tick into fills
// or rejections. Rejection is an expected outcome carried as a value on
// the result, never an error or a panic.
package match

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fxsim/paperbroker/internal/cost"
	"github.com/fxsim/paperbroker/internal/ledger"
	"github.com/fxsim/paperbroker/internal/model"
	"github.com/fxsim/paperbroker/internal/risk"
	"github.com/fxsim/paperbroker/internal/symbol"
)

// ExposureSource supplies current open lots per symbol for the limiter.
// Implemented by the position manager.
type ExposureSource interface {
	OpenExposures() map[string]decimal.Decimal
}

// Result is the outcome of offering an order to the market: either Fill
// is set and Reason empty, or Fill is nil and Reason explains why.
type Result struct {
	Order  model.Order
	Fill   *model.Fill
	Reason model.RejectReason
}

// Rejected reports whether the order was turned away.
func (r Result) Rejected() bool { return r.Reason != model.RejectNone }

// Matcher validates and fills orders against ticks. Market orders fill
// immediately; limit and stop orders rest in a per-symbol pending book
// and are offered every subsequent tick for their symbol.
type Matcher struct {
	symbols  *symbol.Table
	costs    *cost.Model
	ledger   *ledger.Ledger
	limiter  *risk.ExposureLimiter
	exposure ExposureSource

	// rejectProb simulates real-world broker rejection, applied before
	// the balance check and independent of it.
	rejectProb float64
	rng        *rand.Rand

	mu      sync.Mutex
	pending map[string][]*model.Order // symbol → resting limit/stop orders
}

// New creates a matcher. rejectProb in [0,1] is the probability that any
// otherwise-valid order is rejected to model live-market friction; 0
// disables it. rng may be seeded for deterministic runs.
func New(symbols *symbol.Table, costs *cost.Model, led *ledger.Ledger, limiter *risk.ExposureLimiter, exposure ExposureSource, rejectProb float64, rng *rand.Rand) *Matcher {
	return &Matcher{
		symbols:    symbols,
		costs:      costs,
		ledger:     led,
		limiter:    limiter,
		exposure:   exposure,
		rejectProb: rejectProb,
		rng:        rng,
		pending:    make(map[string][]*model.Order),
	}
}

// Submit validates the order against the tick and account. Market orders
// return a fill or rejection immediately; valid limit/stop orders whose
// trigger is not yet satisfied rest as Pending and return with no fill
// and no reason.
func (m *Matcher) Submit(order *model.Order, tick model.Tick) Result {
	if reason := m.validate(order, tick); reason != model.RejectNone {
		order.Status = model.OrderRejected
		order.Reason = reason
		return Result{Order: *order, Reason: reason}
	}

	if order.Kind != model.Market && !triggered(order, tick) {
		order.Status = model.OrderPending
		m.mu.Lock()
		m.pending[order.Symbol] = append(m.pending[order.Symbol], order)
		m.mu.Unlock()
		return Result{Order: *order}
	}

	return m.fill(order, tick)
}

// OfferTick offers the tick to every pending order for its symbol and
// returns the results of those that triggered, in arrival order.
func (m *Matcher) OfferTick(tick model.Tick) []Result {
	m.mu.Lock()
	resting := m.pending[tick.Symbol]
	var keep []*model.Order
	var due []*model.Order
	for _, o := range resting {
		if triggered(o, tick) {
			due = append(due, o)
		} else {
			keep = append(keep, o)
		}
	}
	m.pending[tick.Symbol] = keep
	m.mu.Unlock()

	var results []Result
	for _, o := range due {
		results = append(results, m.fill(o, tick))
	}
	return results
}

// Cancel removes a pending order from the book. Returns false if the
// order is not resting (already filled, rejected, or unknown).
func (m *Matcher) Cancel(orderID string) (model.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for sym, resting := range m.pending {
		for i, o := range resting {
			if o.ID == orderID {
				m.pending[sym] = append(resting[:i], resting[i+1:]...)
				o.Status = model.OrderCancelled
				return *o, true
			}
		}
	}
	return model.Order{}, false
}

// PendingCount returns the number of resting orders for a symbol.
func (m *Matcher) PendingCount(sym string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending[sym])
}

// validate runs every pre-fill check. The random broker rejection is
// applied before the balance check by design of the calibration knob;
// the balance check itself happens atomically inside the ledger at fill
// time.
func (m *Matcher) validate(order *model.Order, tick model.Tick) model.RejectReason {
	spec, err := m.symbols.Lookup(order.Symbol)
	if err != nil {
		return model.RejectSymbolUnavailable
	}
	if !spec.OpenAt(tick.Time) {
		return model.RejectMarketClosed
	}
	if !spec.QuantityValid(order.Quantity) {
		return model.RejectInvalidQuantity
	}
	if order.StopLossPips.IsNegative() || order.TakeProfitPips.IsNegative() {
		// Pip offsets are measured away from entry in the adverse and
		// favorable direction respectively; a negative offset would put
		// the level on the wrong side of entry.
		return model.RejectInvalidStops
	}
	if m.rejectProb > 0 && m.rng.Float64() < m.rejectProb {
		return model.RejectRandom
	}
	if m.limiter != nil && m.exposure != nil {
		if err := m.limiter.CheckLimit(order.Symbol, order.Quantity, m.exposure.OpenExposures()); err != nil {
			return model.RejectExposureLimit
		}
	}
	return model.RejectNone
}

// fill computes the entry price and costs and books the fill against the
// ledger. On a ledger-level failure the order is rejected and nothing is
// mutated.
func (m *Matcher) fill(order *model.Order, tick model.Tick) Result {
	spec, err := m.symbols.Lookup(order.Symbol)
	if err != nil {
		order.Status = model.OrderRejected
		order.Reason = model.RejectSymbolUnavailable
		return Result{Order: *order, Reason: order.Reason}
	}

	// A resting order can trigger on a tick timestamped after the market
	// closed, so the hours check from Submit is repeated here.
	if !spec.OpenAt(tick.Time) {
		order.Status = model.OrderRejected
		order.Reason = model.RejectMarketClosed
		return Result{Order: *order, Reason: order.Reason}
	}

	// Buys fill at ask, sells at bid; slippage is added on top, always
	// adverse.
	raw := tick.Ask
	if order.Side == model.Sell {
		raw = tick.Bid
	}
	price, slip := cost.AdverseEntry(raw, order.Side, m.costs.SlippagePips(), spec)

	fill := model.Fill{
		ID:         uuid.New().String(),
		OrderID:    order.ID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Price:      price,
		Quantity:   order.Quantity,
		SpreadCost: m.costs.SpreadCost(tick, order.Quantity, spec),
		Commission: m.costs.Commission(order.Quantity),
		Slippage:   slip,
		Time:       tick.Time,
	}

	if err := m.ledger.ApplyFill(fill); err != nil {
		order.Status = model.OrderRejected
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			order.Reason = model.RejectInsufficientBalance
		} else {
			order.Reason = model.RejectLedgerError
		}
		return Result{Order: *order, Reason: order.Reason}
	}

	order.Status = model.OrderFilled
	return Result{Order: *order, Fill: &fill}
}

// triggered reports whether a resting order's condition is satisfied by
// the tick. Comparison uses the side the order would fill on: ask for
// buys, bid for sells.
func triggered(order *model.Order, tick model.Tick) bool {
	price := tick.Ask
	if order.Side == model.Sell {
		price = tick.Bid
	}

	switch order.Kind {
	case model.Limit:
		if order.Side == model.Buy {
			return !price.GreaterThan(order.TriggerPrice) // price ≤ limit
		}
		return !price.LessThan(order.TriggerPrice) // price ≥ limit
	case model.Stop:
		if order.Side == model.Buy {
			return !price.LessThan(order.TriggerPrice) // price ≥ stop
		}
		return !price.GreaterThan(order.TriggerPrice) // price ≤ stop
	}
	return true // market
}

// Package position owns the open-position lifecycle: opened once from a
// fill, marked to market every tick, and closed exactly once, either by
// stop-loss, take-profit, or manual instruction.
package position

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fxsim/paperbroker/internal/cost"
	"github.com/fxsim/paperbroker/internal/ledger"
	"github.com/fxsim/paperbroker/internal/model"
	"github.com/fxsim/paperbroker/internal/symbol"
)

var (
	// ErrNotFound is returned for an unknown position id.
	ErrNotFound = errors.New("position: not found")

	// ErrAlreadyClosed is returned when closing a closed position. The
	// caller gets an explicit error, never a second Trade.
	ErrAlreadyClosed = errors.New("position: already closed")
)

// TieBreak selects the outcome when a single bar crosses both the
// stop-loss and the take-profit. The data cannot say which the market
// touched first, so this is a policy, not a derivation.
type TieBreak int

const (
	// Conservative assumes the adverse extreme happened first: the bar
	// closes the position at the stop-loss. This is the default.
	Conservative TieBreak = iota

	// Optimistic assumes the favorable extreme happened first.
	Optimistic
)

// Closure pairs a closed position with the trade that settled it.
type Closure struct {
	Position model.Position
	Trade    model.Trade
}

// Manager holds every position for the session. Each symbol's tick loop
// drives its own positions; cross-symbol aggregates (equity, exposure)
// go through the synchronized accessors.
type Manager struct {
	symbols  *symbol.Table
	costs    *cost.Model
	ledger   *ledger.Ledger
	tieBreak TieBreak

	mu        sync.RWMutex
	positions map[string]*model.Position // id → position
	bySymbol  map[string][]string        // symbol → open position ids
}

// NewManager creates an empty manager.
func NewManager(symbols *symbol.Table, costs *cost.Model, led *ledger.Ledger, tieBreak TieBreak) *Manager {
	return &Manager{
		symbols:   symbols,
		costs:     costs,
		ledger:    led,
		tieBreak:  tieBreak,
		positions: make(map[string]*model.Position),
		bySymbol:  make(map[string][]string),
	}
}

// OpenFromFill creates an Open position from a fill, deriving stop-loss
// and take-profit levels from the order's pip offsets and the fill
// price. A zero offset means the level is not set.
func (m *Manager) OpenFromFill(fill model.Fill, order model.Order) (model.Position, error) {
	spec, err := m.symbols.Lookup(fill.Symbol)
	if err != nil {
		return model.Position{}, err
	}

	var sl, tp decimal.Decimal
	slDelta := order.StopLossPips.Mul(spec.PipSize)
	tpDelta := order.TakeProfitPips.Mul(spec.PipSize)
	if fill.Side == model.Buy {
		if order.StopLossPips.IsPositive() {
			sl = fill.Price.Sub(slDelta)
		}
		if order.TakeProfitPips.IsPositive() {
			tp = fill.Price.Add(tpDelta)
		}
	} else {
		if order.StopLossPips.IsPositive() {
			sl = fill.Price.Add(slDelta)
		}
		if order.TakeProfitPips.IsPositive() {
			tp = fill.Price.Sub(tpDelta)
		}
	}

	pos := &model.Position{
		ID:         uuid.New().String(),
		OrderID:    order.ID,
		Symbol:     fill.Symbol,
		Side:       fill.Side,
		Quantity:   fill.Quantity,
		EntryPrice: fill.Price,
		StopLoss:   sl,
		TakeProfit: tp,
		EntryCosts: fill.EntryCosts(),
		Status:     model.PositionOpen,
		OpenedAt:   fill.Time,
	}

	m.mu.Lock()
	m.positions[pos.ID] = pos
	m.bySymbol[pos.Symbol] = append(m.bySymbol[pos.Symbol], pos.ID)
	m.mu.Unlock()

	return *pos, nil
}

// OnTick recomputes unrealized P&L for every open position on the
// tick's symbol and closes those whose stop-loss or take-profit was
// crossed by the bar's intrabar extremes. Returned closures are in
// position-open order.
func (m *Manager) OnTick(tick model.Tick, bar model.Bar) ([]Closure, error) {
	spec, err := m.symbols.Lookup(tick.Symbol)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Snapshot the id list: closing a position mutates bySymbol in place.
	ids := make([]string, len(m.bySymbol[tick.Symbol]))
	copy(ids, m.bySymbol[tick.Symbol])

	var closures []Closure
	for _, id := range ids {
		pos := m.positions[id]
		if pos.Status != model.PositionOpen {
			continue
		}

		// Exit valuation mirrors the entry convention: a Buy exits at
		// bid, a Sell exits at ask.
		mark := tick.Bid
		if pos.Side == model.Sell {
			mark = tick.Ask
		}
		pos.UnrealizedPnL = cost.PnL(pos.Side, pos.EntryPrice, mark, pos.Quantity, spec)

		level, reason, hit := m.evaluateStops(pos, bar)
		if !hit {
			continue
		}

		closure, err := m.closeLocked(pos, level, tick, reason, spec)
		if err != nil {
			return closures, err
		}
		closures = append(closures, closure)
	}

	return closures, nil
}

// evaluateStops checks the bar extremes against the position's levels
// and applies the tie-break policy when both are crossed in one bar.
func (m *Manager) evaluateStops(pos *model.Position, bar model.Bar) (decimal.Decimal, model.CloseReason, bool) {
	var slHit, tpHit bool
	if pos.Side == model.Buy {
		slHit = !pos.StopLoss.IsZero() && !bar.Low.GreaterThan(pos.StopLoss)
		tpHit = !pos.TakeProfit.IsZero() && !bar.High.LessThan(pos.TakeProfit)
	} else {
		slHit = !pos.StopLoss.IsZero() && !bar.High.LessThan(pos.StopLoss)
		tpHit = !pos.TakeProfit.IsZero() && !bar.Low.GreaterThan(pos.TakeProfit)
	}

	switch {
	case slHit && tpHit:
		if m.tieBreak == Optimistic {
			return pos.TakeProfit, model.CloseTakeProfit, true
		}
		return pos.StopLoss, model.CloseStopLoss, true
	case slHit:
		return pos.StopLoss, model.CloseStopLoss, true
	case tpHit:
		return pos.TakeProfit, model.CloseTakeProfit, true
	}
	return decimal.Zero, "", false
}

// Close settles a position at the current market price with reason
// Manual. Closing an already-closed position returns ErrAlreadyClosed.
func (m *Manager) Close(positionID string, tick model.Tick) (Closure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[positionID]
	if !ok {
		return Closure{}, fmt.Errorf("%w: %s", ErrNotFound, positionID)
	}
	if pos.Status == model.PositionClosed {
		return Closure{}, fmt.Errorf("%w: %s", ErrAlreadyClosed, positionID)
	}

	spec, err := m.symbols.Lookup(pos.Symbol)
	if err != nil {
		return Closure{}, err
	}

	exit := tick.Bid
	if pos.Side == model.Sell {
		exit = tick.Ask
	}
	return m.closeLocked(pos, exit, tick, model.CloseManual, spec)
}

// closeLocked applies adverse slippage to the exit level, settles via
// the ledger, and transitions the position to Closed. Caller holds m.mu.
func (m *Manager) closeLocked(pos *model.Position, level decimal.Decimal, tick model.Tick, reason model.CloseReason, spec symbol.Spec) (Closure, error) {
	exitPrice, _ := cost.AdverseExit(level, pos.Side, m.costs.SlippagePips(), spec)

	trade, err := m.ledger.ApplyClose(pos, exitPrice, tick, reason)
	if err != nil {
		return Closure{}, err
	}

	closedAt := tick.Time
	pos.Status = model.PositionClosed
	pos.CloseReason = reason
	pos.ClosedAt = &closedAt
	pos.UnrealizedPnL = decimal.Zero

	m.removeFromSymbolLocked(pos)
	return Closure{Position: *pos, Trade: trade}, nil
}

func (m *Manager) removeFromSymbolLocked(pos *model.Position) {
	ids := m.bySymbol[pos.Symbol]
	for i, id := range ids {
		if id == pos.ID {
			m.bySymbol[pos.Symbol] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

// Open returns every open position, across all symbols.
func (m *Manager) Open() []model.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var open []model.Position
	for _, ids := range m.bySymbol {
		for _, id := range ids {
			if pos := m.positions[id]; pos.Status == model.PositionOpen {
				open = append(open, *pos)
			}
		}
	}
	return open
}

// Get returns a position snapshot by id.
func (m *Manager) Get(id string) (model.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pos, ok := m.positions[id]
	if !ok {
		return model.Position{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *pos, nil
}

// UnrealizedTotal sums unrealized P&L across open positions. Satisfies
// ledger.UnrealizedSource for equity derivation.
func (m *Manager) UnrealizedTotal() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := decimal.Zero
	for _, ids := range m.bySymbol {
		for _, id := range ids {
			if pos := m.positions[id]; pos.Status == model.PositionOpen {
				total = total.Add(pos.UnrealizedPnL)
			}
		}
	}
	return total
}

// OpenExposures returns open lots per symbol. Satisfies
// match.ExposureSource for the risk limiter.
func (m *Manager) OpenExposures() map[string]decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exposures := make(map[string]decimal.Decimal)
	for sym, ids := range m.bySymbol {
		for _, id := range ids {
			if pos := m.positions[id]; pos.Status == model.PositionOpen {
				exposures[sym] = exposures[sym].Add(pos.Quantity)
			}
		}
	}
	return exposures
}

package journal

import (
	"context"
	"fmt"
	"sync"

	"github.com/fxsim/paperbroker/internal/model"
)

// MemoryJournal implements Journal with in-memory maps. Used for tests
// and for backtests that do not need durability.
type MemoryJournal struct {
	mu        sync.RWMutex
	orders    map[string]model.Order
	fills     []model.Fill
	positions map[string]model.Position
	posOrder  []string // insertion order for stable queries
	trades    []model.Trade
	snapshots []model.AccountState
}

// NewMemoryJournal creates an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{
		orders:    make(map[string]model.Order),
		positions: make(map[string]model.Position),
	}
}

func (j *MemoryJournal) RecordOrder(_ context.Context, order model.Order) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if existing, ok := j.orders[order.ID]; ok && existing.Status.Terminal() {
		return fmt.Errorf("journal: order %s is terminal (%s)", order.ID, existing.Status)
	}
	j.orders[order.ID] = order
	return nil
}

func (j *MemoryJournal) RecordFill(_ context.Context, fill model.Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.fills = append(j.fills, fill)
	return nil
}

func (j *MemoryJournal) RecordPositionOpen(_ context.Context, pos model.Position) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.positions[pos.ID]; ok {
		return fmt.Errorf("journal: position %s already recorded", pos.ID)
	}
	j.positions[pos.ID] = pos
	j.posOrder = append(j.posOrder, pos.ID)
	return nil
}

func (j *MemoryJournal) RecordPositionClose(_ context.Context, pos model.Position, trade model.Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.positions[pos.ID]; !ok {
		return fmt.Errorf("journal: position %s never opened", pos.ID)
	}
	j.positions[pos.ID] = pos
	j.trades = append(j.trades, trade)
	return nil
}

func (j *MemoryJournal) RecordSnapshot(_ context.Context, state model.AccountState) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.snapshots = append(j.snapshots, state)
	return nil
}

func (j *MemoryJournal) QueryTrades(_ context.Context, filter TradeFilter) ([]model.Trade, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result []model.Trade
	for _, t := range j.trades {
		if filter.Matches(t) {
			result = append(result, t)
		}
	}
	return result, nil
}

func (j *MemoryJournal) QueryOpenPositions(_ context.Context) ([]model.Position, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var open []model.Position
	for _, id := range j.posOrder {
		if p := j.positions[id]; p.Status == model.PositionOpen {
			open = append(open, p)
		}
	}
	return open, nil
}

// Orders returns every recorded order. Test helper.
func (j *MemoryJournal) Orders() []model.Order {
	j.mu.RLock()
	defer j.mu.RUnlock()

	orders := make([]model.Order, 0, len(j.orders))
	for _, o := range j.orders {
		orders = append(orders, o)
	}
	return orders
}

// Fills returns every recorded fill. Test helper.
func (j *MemoryJournal) Fills() []model.Fill {
	j.mu.RLock()
	defer j.mu.RUnlock()

	fills := make([]model.Fill, len(j.fills))
	copy(fills, j.fills)
	return fills
}

// Snapshots returns every recorded account snapshot. Test helper.
func (j *MemoryJournal) Snapshots() []model.AccountState {
	j.mu.RLock()
	defer j.mu.RUnlock()

	snaps := make([]model.AccountState, len(j.snapshots))
	copy(snaps, j.snapshots)
	return snaps
}

// Package journal defines the durable, append-only record of orders,
// fills, positions, trades, and account snapshots. Implementations
// include PostgreSQL (source of truth) and in-memory (for tests and
// pure backtests); decorators add bounded-retry durability and
// best-effort asynchronous replication to Redis.
package journal

import (
	"context"
	"time"

	"github.com/fxsim/paperbroker/internal/model"
)

// TradeFilter narrows QueryTrades. Zero fields match everything.
type TradeFilter struct {
	Symbol string
	Reason model.CloseReason
	Since  time.Time
	Until  time.Time
}

// Matches reports whether the trade passes the filter.
func (f TradeFilter) Matches(t model.Trade) bool {
	if f.Symbol != "" && t.Symbol != f.Symbol {
		return false
	}
	if f.Reason != "" && t.CloseReason != f.Reason {
		return false
	}
	if !f.Since.IsZero() && t.ExitTime.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && t.ExitTime.After(f.Until) {
		return false
	}
	return true
}

// Journal is the persistence interface consumed by the session loop.
// A write must fully succeed before the caller proceeds to the next
// tick; Order and Position records support status updates in place,
// everything else is append-only.
type Journal interface {
	// RecordOrder inserts an order or updates its status in place.
	RecordOrder(ctx context.Context, order model.Order) error

	// RecordFill appends an immutable fill.
	RecordFill(ctx context.Context, fill model.Fill) error

	// RecordPositionOpen inserts a newly opened position.
	RecordPositionOpen(ctx context.Context, pos model.Position) error

	// RecordPositionClose updates the position in place and appends the
	// settling trade.
	RecordPositionClose(ctx context.Context, pos model.Position, trade model.Trade) error

	// RecordSnapshot appends an account snapshot.
	RecordSnapshot(ctx context.Context, state model.AccountState) error

	// QueryTrades returns settled trades matching the filter, in exit
	// time order.
	QueryTrades(ctx context.Context, filter TradeFilter) ([]model.Trade, error)

	// QueryOpenPositions returns every position still open.
	QueryOpenPositions(ctx context.Context) ([]model.Position, error)
}

// Package model defines the core domain types shared across the engine.
// All monetary values and prices use shopspring/decimal, never float64
// for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order or position.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Opposite returns the closing side for a position opened on s.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderKind distinguishes market, limit, and stop orders.
type OrderKind string

const (
	Market OrderKind = "market"
	Limit  OrderKind = "limit"
	Stop   OrderKind = "stop"
)

// OrderStatus tracks the order lifecycle. Transitions are monotonic:
// pending → filled | rejected | cancelled, and terminal states never
// revert.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderFilled    OrderStatus = "filled"
	OrderRejected  OrderStatus = "rejected"
	OrderCancelled OrderStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderFilled || s == OrderRejected || s == OrderCancelled
}

// RejectReason classifies why an order was not filled. Rejection is an
// expected outcome, carried as a value rather than an error.
type RejectReason string

const (
	RejectNone                RejectReason = ""
	RejectInsufficientBalance RejectReason = "insufficient_balance"
	RejectInvalidQuantity     RejectReason = "invalid_quantity"
	RejectSymbolUnavailable   RejectReason = "symbol_unavailable"
	RejectMarketClosed        RejectReason = "market_closed"
	RejectInvalidStops        RejectReason = "invalid_stops"
	RejectExposureLimit       RejectReason = "exposure_limit"
	RejectRandom              RejectReason = "broker_rejected"
	RejectLedgerError         RejectReason = "ledger_error"
)

// String returns a human-readable reason captured in the journal.
func (r RejectReason) String() string {
	switch r {
	case RejectInsufficientBalance:
		return "insufficient balance for entry costs"
	case RejectInvalidQuantity:
		return "quantity outside configured bounds"
	case RejectSymbolUnavailable:
		return "symbol not available for trading"
	case RejectMarketClosed:
		return "market closed"
	case RejectInvalidStops:
		return "stop-loss/take-profit on wrong side of entry"
	case RejectExposureLimit:
		return "exposure limit exceeded"
	case RejectRandom:
		return "rejected by simulated broker"
	case RejectLedgerError:
		return "ledger refused the fill"
	}
	return string(r)
}

// CloseReason records why a position left the Open state.
type CloseReason string

const (
	CloseStopLoss   CloseReason = "stop_loss"
	CloseTakeProfit CloseReason = "take_profit"
	CloseManual     CloseReason = "manual"
)

// Tick is a single bid/ask update for one symbol.
type Tick struct {
	Symbol string          `json:"symbol"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	Time   time.Time       `json:"time"`
}

// Mid returns the bid/ask midpoint, used for bar aggregation.
func (t Tick) Mid() decimal.Decimal {
	return t.Bid.Add(t.Ask).Div(decimal.NewFromInt(2))
}

// Bar is an OHLC aggregate over an interval. High/Low carry the intrabar
// extremes needed for stop-loss/take-profit evaluation.
type Bar struct {
	Symbol string          `json:"symbol"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Start  time.Time       `json:"start"`
	End    time.Time       `json:"end"`
}

// Signal is what a strategy returns when it wants to trade: a direction,
// a size, and stop offsets expressed in pips from the eventual fill price.
type Signal struct {
	Side           Side            `json:"side"`
	Quantity       decimal.Decimal `json:"quantity"`
	Kind           OrderKind       `json:"kind"`             // zero value treated as market
	TriggerPrice   decimal.Decimal `json:"trigger_price"`    // limit/stop price, unused for market
	StopLossPips   decimal.Decimal `json:"stop_loss_pips"`   // zero = no stop-loss
	TakeProfitPips decimal.Decimal `json:"take_profit_pips"` // zero = no take-profit
}

// Order is a request to trade, created from a Signal and mutated only by
// the matcher.
type Order struct {
	ID             string          `json:"id" db:"id"`
	Symbol         string          `json:"symbol" db:"symbol"`
	Side           Side            `json:"side" db:"side"`
	Kind           OrderKind       `json:"kind" db:"kind"`
	Quantity       decimal.Decimal `json:"quantity" db:"quantity"` // lots, > 0
	TriggerPrice   decimal.Decimal `json:"trigger_price" db:"trigger_price"`
	StopLossPips   decimal.Decimal `json:"stop_loss_pips" db:"stop_loss_pips"`
	TakeProfitPips decimal.Decimal `json:"take_profit_pips" db:"take_profit_pips"`
	Status         OrderStatus     `json:"status" db:"status"`
	Reason         RejectReason    `json:"reason,omitempty" db:"reason"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// Fill is the immutable result of a successfully matched order. Exactly
// one Fill exists per filled Order; partial fills are out of scope.
type Fill struct {
	ID         string          `json:"id" db:"id"`
	OrderID    string          `json:"order_id" db:"order_id"`
	Symbol     string          `json:"symbol" db:"symbol"`
	Side       Side            `json:"side" db:"side"`
	Price      decimal.Decimal `json:"price" db:"price"` // includes slippage
	Quantity   decimal.Decimal `json:"quantity" db:"quantity"`
	SpreadCost decimal.Decimal `json:"spread_cost" db:"spread_cost"`
	Commission decimal.Decimal `json:"commission" db:"commission"`
	Slippage   decimal.Decimal `json:"slippage" db:"slippage"` // price delta, diagnostics only
	Time       time.Time       `json:"time" db:"time"`
}

// EntryCosts is the balance deduction applied when the fill is booked.
// Slippage is baked into Price, not charged as a separate line.
func (f Fill) EntryCosts() decimal.Decimal {
	return f.SpreadCost.Add(f.Commission)
}

// PositionStatus is the two-state position lifecycle.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// Position is an open exposure created from a Fill. Unrealized P&L is
// recomputed on every tick; the Closed transition happens exactly once.
type Position struct {
	ID            string          `json:"id" db:"id"`
	OrderID       string          `json:"order_id" db:"order_id"`
	Symbol        string          `json:"symbol" db:"symbol"`
	Side          Side            `json:"side" db:"side"`
	Quantity      decimal.Decimal `json:"quantity" db:"quantity"`
	EntryPrice    decimal.Decimal `json:"entry_price" db:"entry_price"`
	StopLoss      decimal.Decimal `json:"stop_loss" db:"stop_loss"`     // zero = none
	TakeProfit    decimal.Decimal `json:"take_profit" db:"take_profit"` // zero = none
	EntryCosts    decimal.Decimal `json:"entry_costs" db:"entry_costs"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl" db:"unrealized_pnl"`
	Status        PositionStatus  `json:"status" db:"status"`
	OpenedAt      time.Time       `json:"opened_at" db:"opened_at"`
	ClosedAt      *time.Time      `json:"closed_at,omitempty" db:"closed_at"`
	CloseReason   CloseReason     `json:"close_reason,omitempty" db:"close_reason"`
}

// Trade is the immutable settlement record produced when a position
// closes. NetPnL equals GrossPnL minus every itemized cost, exactly.
type Trade struct {
	ID          string          `json:"id" db:"id"`
	PositionID  string          `json:"position_id" db:"position_id"`
	Symbol      string          `json:"symbol" db:"symbol"`
	Side        Side            `json:"side" db:"side"`
	Quantity    decimal.Decimal `json:"quantity" db:"quantity"`
	EntryPrice  decimal.Decimal `json:"entry_price" db:"entry_price"`
	ExitPrice   decimal.Decimal `json:"exit_price" db:"exit_price"`
	EntryTime   time.Time       `json:"entry_time" db:"entry_time"`
	ExitTime    time.Time       `json:"exit_time" db:"exit_time"`
	GrossPnL    decimal.Decimal `json:"gross_pnl" db:"gross_pnl"`
	EntryCosts  decimal.Decimal `json:"entry_costs" db:"entry_costs"`
	ExitCosts   decimal.Decimal `json:"exit_costs" db:"exit_costs"`
	NetPnL      decimal.Decimal `json:"net_pnl" db:"net_pnl"`
	CloseReason CloseReason     `json:"close_reason" db:"close_reason"`
}

// Costs returns the sum of every itemized cost on the trade.
func (t Trade) Costs() decimal.Decimal {
	return t.EntryCosts.Add(t.ExitCosts)
}

// AccountState is the session-singleton balance/equity snapshot. Balance
// mutates only on fills and trades; equity is always derived.
type AccountState struct {
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	Equity    decimal.Decimal `json:"equity" db:"equity"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// MarketState is the view handed to a strategy on each tick.
type MarketState struct {
	Tick    Tick
	Bar     Bar // working bar, may be incomplete
	Account AccountState
}

// Package ledger is the single source of truth for account balance and
// equity. Every mutation happens inside one critical section so that two
// symbol loops filling orders in the same instant cannot both pass a
// balance check only one of them can satisfy.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fxsim/paperbroker/internal/cost"
	"github.com/fxsim/paperbroker/internal/model"
	"github.com/fxsim/paperbroker/internal/symbol"
)

var (
	// ErrInsufficientBalance is returned when entry costs exceed the
	// balance at the instant of the atomic check-and-deduct.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	// ErrInvariant signals an accounting identity violation. Reaching it
	// through any public operation sequence is a bug; the operation is
	// aborted and the ledger left unchanged.
	ErrInvariant = errors.New("ledger: accounting invariant violated")
)

// UnrealizedSource supplies the total unrealized P&L of all open
// positions for equity derivation. Implemented by the position manager.
type UnrealizedSource interface {
	UnrealizedTotal() decimal.Decimal
}

// Ledger holds the authoritative balance. Equity is always derived from
// balance plus unrealized P&L, never stored independently.
type Ledger struct {
	mu        sync.Mutex
	balance   decimal.Decimal
	initial   decimal.Decimal
	updatedAt time.Time
	frozen    bool

	costModel *cost.Model
	symbols   *symbol.Table
	src       UnrealizedSource
}

// New creates a ledger with the given starting balance.
func New(startingBalance decimal.Decimal, cm *cost.Model, symbols *symbol.Table) *Ledger {
	return &Ledger{
		balance:   startingBalance,
		initial:   startingBalance,
		updatedAt: time.Now().UTC(),
		costModel: cm,
		symbols:   symbols,
	}
}

// SetUnrealizedSource wires the open-position P&L aggregate used by
// Equity. Must be called before the session starts ticking.
func (l *Ledger) SetUnrealizedSource(src UnrealizedSource) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.src = src
}

// ApplyFill re-checks balance ≥ entry costs atomically with the
// deduction. On failure nothing is mutated.
func (l *Ledger) ApplyFill(fill model.Fill) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.frozen {
		return fmt.Errorf("%w: session settled", ErrInvariant)
	}

	entryCosts := fill.EntryCosts()
	if entryCosts.IsNegative() {
		return fmt.Errorf("%w: negative entry costs %s", ErrInvariant, entryCosts)
	}
	if l.balance.LessThan(entryCosts) {
		return ErrInsufficientBalance
	}

	l.balance = l.balance.Sub(entryCosts)
	l.updatedAt = fill.Time
	return nil
}

// ApplyClose settles a position at exitPrice: computes gross P&L,
// itemizes exit costs from the closing tick, credits the net, and
// returns the immutable Trade.
//
//	net = gross − entry costs already charged − exit costs
func (l *Ledger) ApplyClose(pos *model.Position, exitPrice decimal.Decimal, exitTick model.Tick, reason model.CloseReason) (model.Trade, error) {
	spec, err := l.symbols.Lookup(pos.Symbol)
	if err != nil {
		return model.Trade{}, err
	}

	gross := cost.PnL(pos.Side, pos.EntryPrice, exitPrice, pos.Quantity, spec)
	exitCosts := l.costModel.SpreadCost(exitTick, pos.Quantity, spec).
		Add(l.costModel.Commission(pos.Quantity))
	net := gross.Sub(pos.EntryCosts).Sub(exitCosts)

	// Conservation check before any mutation.
	if !net.Add(pos.EntryCosts).Add(exitCosts).Equal(gross) {
		return model.Trade{}, fmt.Errorf("%w: net %s + costs != gross %s", ErrInvariant, net, gross)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.frozen {
		return model.Trade{}, fmt.Errorf("%w: session settled", ErrInvariant)
	}

	l.balance = l.balance.Add(net)
	l.updatedAt = exitTick.Time

	return model.Trade{
		ID:          uuid.New().String(),
		PositionID:  pos.ID,
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		Quantity:    pos.Quantity,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   exitPrice,
		EntryTime:   pos.OpenedAt,
		ExitTime:    exitTick.Time,
		GrossPnL:    gross,
		EntryCosts:  pos.EntryCosts,
		ExitCosts:   exitCosts,
		NetPnL:      net,
		CloseReason: reason,
	}, nil
}

// Balance returns the current balance.
func (l *Ledger) Balance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// Equity returns balance plus the unrealized P&L of all open positions.
// Recomputed on demand; never stored, so it cannot drift.
func (l *Ledger) Equity() decimal.Decimal {
	l.mu.Lock()
	src := l.src
	balance := l.balance
	l.mu.Unlock()

	if src == nil {
		return balance
	}
	return balance.Add(src.UnrealizedTotal())
}

// Account returns the derived account snapshot.
func (l *Ledger) Account() model.AccountState {
	equity := l.Equity()
	l.mu.Lock()
	defer l.mu.Unlock()
	return model.AccountState{
		Balance:   l.balance,
		Equity:    equity,
		UpdatedAt: l.updatedAt,
	}
}

// Freeze makes the ledger read-only. Called after the final settlement
// pass; any later mutation is an invariant error.
func (l *Ledger) Freeze() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frozen = true
}

// InitialBalance returns the balance the session started with.
func (l *Ledger) InitialBalance() decimal.Decimal {
	return l.initial
}

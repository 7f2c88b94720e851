// Package session drives the per-tick cycle: price source → strategy →
// matcher → position manager → journal → observers. One goroutine per
// traded symbol; the ledger and journal are shared.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fxsim/paperbroker/internal/feed"
	"github.com/fxsim/paperbroker/internal/journal"
	"github.com/fxsim/paperbroker/internal/ledger"
	"github.com/fxsim/paperbroker/internal/match"
	"github.com/fxsim/paperbroker/internal/metrics"
	"github.com/fxsim/paperbroker/internal/model"
	"github.com/fxsim/paperbroker/internal/notify"
	"github.com/fxsim/paperbroker/internal/position"
	"github.com/fxsim/paperbroker/internal/strategy"
)

// State is the session lifecycle: Stopped → Running → Stopping → Stopped.
type State string

const (
	Stopped  State = "stopped"
	Running  State = "running"
	Stopping State = "stopping"
)

var (
	// ErrNotStopped is returned when Start is called on a session that
	// is not in the Stopped state.
	ErrNotStopped = errors.New("session: already started")

	// ErrNotRunning is returned when Stop is called on a session that
	// never started.
	ErrNotRunning = errors.New("session: not running")
)

// Config wires the session's collaborators.
type Config struct {
	Symbols       []string
	Source        feed.PriceSource
	Bars          *feed.BarBuilder
	Matcher       *match.Matcher
	Positions     *position.Manager
	Ledger        *ledger.Ledger
	Journal       journal.Journal
	Hub           *notify.Hub // optional
	Registry      *strategy.Registry
	StrategyName  string
	SnapshotEvery int // account snapshot every N ticks per symbol; 0 = only at stop
}

// Loop is the session orchestrator.
type Loop struct {
	cfg Config

	mu       sync.Mutex
	state    State
	lastTick map[string]model.Tick
	trades   []model.Trade
	rejects  map[string]int
	peak     decimal.Decimal
	drawdown decimal.Decimal
	fatalErr error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a session in the Stopped state.
func New(cfg Config) *Loop {
	return &Loop{
		cfg:      cfg,
		state:    Stopped,
		lastTick: make(map[string]model.Tick),
		rejects:  make(map[string]int),
		drawdown: decimal.Zero,
	}
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start constructs one strategy instance per symbol from the registry
// and launches the per-symbol tick loops.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.state != Stopped {
		l.mu.Unlock()
		return ErrNotStopped
	}
	l.state = Running
	l.peak = l.cfg.Ledger.Equity()
	ctx, l.cancel = context.WithCancel(ctx)
	l.mu.Unlock()

	for _, sym := range l.cfg.Symbols {
		strat, err := l.cfg.Registry.New(l.cfg.StrategyName)
		if err != nil {
			l.mu.Lock()
			l.state = Stopped
			l.mu.Unlock()
			l.cancel()
			return err
		}

		l.wg.Add(1)
		go l.runSymbol(ctx, sym, strat)
	}

	slog.Info("session started",
		"symbols", l.cfg.Symbols,
		"strategy", l.cfg.StrategyName,
		"balance", l.cfg.Ledger.Balance().String(),
	)
	return nil
}

// Wait blocks until every symbol loop has finished, either because the price
// source is exhausted or the session was cancelled.
func (l *Loop) Wait() {
	l.wg.Wait()
}

// Stop transitions to Stopping, lets in-flight ticks finish their
// atomic ledger operations, closes every open position at the last
// known market price with reason Manual, records a final snapshot,
// freezes the ledger, and returns the session summary. Safe to call
// concurrently with in-flight ticks; a second Stop returns ErrNotRunning.
func (l *Loop) Stop(ctx context.Context) (Summary, error) {
	l.mu.Lock()
	if l.state != Running {
		l.mu.Unlock()
		return Summary{}, ErrNotRunning
	}
	l.state = Stopping
	cancel := l.cancel
	l.mu.Unlock()

	cancel()
	l.wg.Wait()

	// Final settlement: close every open position at the current price.
	for _, pos := range l.cfg.Positions.Open() {
		l.mu.Lock()
		tick, ok := l.lastTick[pos.Symbol]
		l.mu.Unlock()
		if !ok {
			// Position opened with no tick recorded cannot happen via
			// the public flow; skip defensively.
			slog.Error("no last tick for open position", "position", pos.ID, "symbol", pos.Symbol)
			continue
		}

		closure, err := l.cfg.Positions.Close(pos.ID, tick)
		if err != nil {
			slog.Error("settlement close failed", "position", pos.ID, "err", err)
			continue
		}
		if err := l.cfg.Journal.RecordPositionClose(ctx, closure.Position, closure.Trade); err != nil {
			return Summary{}, fmt.Errorf("session: settlement journal write: %w", err)
		}
		l.noteClosure(closure)
	}

	account := l.cfg.Ledger.Account()
	if err := l.cfg.Journal.RecordSnapshot(ctx, account); err != nil {
		return Summary{}, fmt.Errorf("session: final snapshot: %w", err)
	}
	l.cfg.Ledger.Freeze()

	l.mu.Lock()
	l.state = Stopped
	trades := make([]model.Trade, len(l.trades))
	copy(trades, l.trades)
	rejects := make(map[string]int, len(l.rejects))
	for k, v := range l.rejects {
		rejects[k] = v
	}
	drawdown := l.drawdown
	fatal := l.fatalErr
	l.mu.Unlock()

	summary := summarize(trades, rejects, drawdown, account)
	slog.Info("session stopped",
		"trades", summary.TotalTrades,
		"net_pnl", summary.NetPnL.String(),
		"final_balance", summary.FinalBalance.String(),
	)

	if fatal != nil {
		return summary, fatal
	}
	return summary, nil
}

// Summary returns the running aggregate without stopping the session.
func (l *Loop) Summary() Summary {
	account := l.cfg.Ledger.Account()

	l.mu.Lock()
	defer l.mu.Unlock()

	trades := make([]model.Trade, len(l.trades))
	copy(trades, l.trades)
	rejects := make(map[string]int, len(l.rejects))
	for k, v := range l.rejects {
		rejects[k] = v
	}
	return summarize(trades, rejects, l.drawdown, account)
}

// runSymbol is one symbol's tick loop. Ticks for a symbol process in
// arrival order; no ordering is guaranteed across symbols.
func (l *Loop) runSymbol(ctx context.Context, sym string, strat strategy.Strategy) {
	defer l.wg.Done()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		tick, err := l.cfg.Source.NextTick(ctx, sym)
		if errors.Is(err, feed.ErrExhausted) || errors.Is(err, context.Canceled) {
			return
		}
		if err != nil {
			slog.Error("price fetch failed", "symbol", sym, "err", err)
			return
		}

		start := time.Now()
		if err := l.processTick(ctx, sym, tick, strat); err != nil {
			// A journal write that failed after every retry is fatal:
			// continuing would silently lose accounting history.
			slog.Error("halting session", "symbol", sym, "err", err)
			l.mu.Lock()
			if l.fatalErr == nil {
				l.fatalErr = err
			}
			l.mu.Unlock()
			l.cancel()
			return
		}
		metrics.TickLatency.WithLabelValues(sym).Observe(time.Since(start).Seconds())

		ticks++
		if l.cfg.SnapshotEvery > 0 && ticks%l.cfg.SnapshotEvery == 0 {
			if err := l.cfg.Journal.RecordSnapshot(ctx, l.cfg.Ledger.Account()); err != nil {
				slog.Error("snapshot write failed", "symbol", sym, "err", err)
			}
		}
	}
}

// processTick runs one full cycle for one tick.
func (l *Loop) processTick(ctx context.Context, sym string, tick model.Tick, strat strategy.Strategy) error {
	bar := l.cfg.Bars.Update(tick)

	l.mu.Lock()
	l.lastTick[sym] = tick
	l.mu.Unlock()

	// Strategy sees the tick, the working bar, and the account.
	state := model.MarketState{
		Tick:    tick,
		Bar:     bar,
		Account: l.cfg.Ledger.Account(),
	}
	if sig := strat.Analyze(state); sig != nil {
		order := orderFromSignal(sym, *sig, tick.Time)
		result := l.cfg.Matcher.Submit(&order, tick)
		if err := l.handleResult(ctx, result); err != nil {
			return err
		}
	}

	// Offer the tick to resting limit/stop orders.
	for _, result := range l.cfg.Matcher.OfferTick(tick) {
		if err := l.handleResult(ctx, result); err != nil {
			return err
		}
	}

	// Stop-loss/take-profit scan over this symbol's open positions.
	closures, err := l.cfg.Positions.OnTick(tick, bar)
	if err != nil {
		return err
	}
	for _, closure := range closures {
		if err := l.cfg.Journal.RecordPositionClose(ctx, closure.Position, closure.Trade); err != nil {
			return err
		}
		l.noteClosure(closure)
	}

	l.trackEquity()
	return nil
}

// handleResult journals and publishes a submit/trigger outcome.
func (l *Loop) handleResult(ctx context.Context, result match.Result) error {
	if err := l.cfg.Journal.RecordOrder(ctx, result.Order); err != nil {
		return err
	}

	switch {
	case result.Fill != nil:
		if err := l.cfg.Journal.RecordFill(ctx, *result.Fill); err != nil {
			return err
		}
		pos, err := l.cfg.Positions.OpenFromFill(*result.Fill, result.Order)
		if err != nil {
			return err
		}
		if err := l.cfg.Journal.RecordPositionOpen(ctx, pos); err != nil {
			return err
		}
		metrics.FillsTotal.WithLabelValues(result.Fill.Symbol, string(result.Fill.Side)).Inc()
		metrics.OpenPositions.Set(float64(len(l.cfg.Positions.Open())))
		slog.Info("order filled",
			"order", result.Order.ID,
			"symbol", result.Fill.Symbol,
			"side", result.Fill.Side,
			"price", result.Fill.Price.String(),
			"qty", result.Fill.Quantity.String(),
		)
		if l.cfg.Hub != nil {
			l.cfg.Hub.Broadcast(notify.Message{
				Type:   "fill",
				Symbol: result.Fill.Symbol,
				Fill:   result.Fill,
			})
		}

	case result.Rejected():
		l.mu.Lock()
		l.rejects[string(result.Reason)]++
		l.mu.Unlock()
		metrics.RejectionsTotal.WithLabelValues(string(result.Reason)).Inc()
		slog.Info("order rejected",
			"order", result.Order.ID,
			"symbol", result.Order.Symbol,
			"reason", result.Reason.String(),
		)
		if l.cfg.Hub != nil {
			order := result.Order
			l.cfg.Hub.Broadcast(notify.Message{
				Type:   "rejection",
				Symbol: order.Symbol,
				Order:  &order,
				Reason: result.Reason.String(),
			})
		}
	}
	// A pending limit/stop order needs only its journal record.
	return nil
}

// noteClosure accumulates a settled trade and publishes it.
func (l *Loop) noteClosure(closure position.Closure) {
	l.mu.Lock()
	l.trades = append(l.trades, closure.Trade)
	l.mu.Unlock()

	metrics.ClosuresTotal.WithLabelValues(string(closure.Trade.CloseReason)).Inc()
	metrics.OpenPositions.Set(float64(len(l.cfg.Positions.Open())))
	slog.Info("position closed",
		"position", closure.Position.ID,
		"symbol", closure.Position.Symbol,
		"reason", closure.Trade.CloseReason,
		"net_pnl", closure.Trade.NetPnL.String(),
	)
	if l.cfg.Hub != nil {
		trade := closure.Trade
		l.cfg.Hub.Broadcast(notify.Message{
			Type:   "closure",
			Symbol: trade.Symbol,
			Trade:  &trade,
		})
	}
	l.trackEquity()
}

// trackEquity updates the drawdown statistics from the equity curve.
func (l *Loop) trackEquity() {
	equity := l.cfg.Ledger.Equity()
	metrics.Equity.Set(equity.InexactFloat64())

	l.mu.Lock()
	defer l.mu.Unlock()
	if equity.GreaterThan(l.peak) {
		l.peak = equity
	}
	if dd := l.peak.Sub(equity); dd.GreaterThan(l.drawdown) {
		l.drawdown = dd
	}
}

// orderFromSignal builds a validated-at-construction order. An unset
// kind means market.
func orderFromSignal(sym string, sig model.Signal, at time.Time) model.Order {
	kind := sig.Kind
	if kind == "" {
		kind = model.Market
	}
	return model.Order{
		ID:             uuid.New().String(),
		Symbol:         sym,
		Side:           sig.Side,
		Kind:           kind,
		Quantity:       sig.Quantity,
		TriggerPrice:   sig.TriggerPrice,
		StopLossPips:   sig.StopLossPips,
		TakeProfitPips: sig.TakeProfitPips,
		Status:         model.OrderPending,
		CreatedAt:      at,
	}
}

package session_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fxsim/paperbroker/internal/cost"
	"github.com/fxsim/paperbroker/internal/feed"
	"github.com/fxsim/paperbroker/internal/journal"
	"github.com/fxsim/paperbroker/internal/ledger"
	"github.com/fxsim/paperbroker/internal/match"
	"github.com/fxsim/paperbroker/internal/model"
	"github.com/fxsim/paperbroker/internal/position"
	"github.com/fxsim/paperbroker/internal/risk"
	"github.com/fxsim/paperbroker/internal/session"
	"github.com/fxsim/paperbroker/internal/strategy"
	"github.com/fxsim/paperbroker/internal/symbol"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

type testEnv struct {
	loop    *session.Loop
	ledger  *ledger.Ledger
	journal *journal.MemoryJournal
}

// buyOnce signals a 1-lot market buy on the first tick and stays quiet
// afterwards.
func buyOnce(slPips, tpPips float64) strategy.Constructor {
	return func() strategy.Strategy {
		fired := false
		return strategy.Func(func(model.MarketState) *model.Signal {
			if fired {
				return nil
			}
			fired = true
			return &model.Signal{
				Side:           model.Buy,
				Quantity:       d(1),
				Kind:           model.Market,
				StopLossPips:   d(slPips),
				TakeProfitPips: d(tpPips),
			}
		})
	}
}

// buyEveryTick signals a 1-lot market buy on every tick.
func buyEveryTick() strategy.Constructor {
	return func() strategy.Strategy {
		return strategy.Func(func(model.MarketState) *model.Signal {
			return &model.Signal{Side: model.Buy, Quantity: d(1), Kind: model.Market}
		})
	}
}

// newTestEnv wires a full session over scripted ticks with no slippage
// and no random rejection.
func newTestEnv(t *testing.T, balance float64, con strategy.Constructor, ticks ...model.Tick) testEnv {
	t.Helper()

	symbols, err := symbol.NewTable(symbol.DefaultSpec("EURUSD"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cm, err := cost.NewModel(d(7), decimal.Zero, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	led := ledger.New(d(balance), cm, symbols)
	positions := position.NewManager(symbols, cm, led, position.Conservative)
	led.SetUnrealizedSource(positions)
	limiter := risk.NewExposureLimiter(d(100), d(100))
	matcher := match.New(symbols, cm, led, limiter, positions, 0, rand.New(rand.NewSource(1)))

	registry := strategy.NewRegistry()
	registry.Register("test", con)

	jnl := journal.NewMemoryJournal()
	loop := session.New(session.Config{
		Symbols:      []string{"EURUSD"},
		Source:       feed.NewReplaySource(ticks...),
		Bars:         feed.NewBarBuilder(time.Minute),
		Matcher:      matcher,
		Positions:    positions,
		Ledger:       led,
		Journal:      jnl,
		Registry:     registry,
		StrategyName: "test",
	})

	return testEnv{loop: loop, ledger: led, journal: jnl}
}

func tick(bid, ask float64, offset time.Duration) model.Tick {
	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	return model.Tick{Symbol: "EURUSD", Bid: d(bid), Ask: d(ask), Time: base.Add(offset)}
}

// run starts the session, waits for the script to drain, and stops.
func run(t *testing.T, env testEnv) session.Summary {
	t.Helper()
	if err := env.loop.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	env.loop.Wait()
	summary, err := env.loop.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	return summary
}

// --- Lifecycle tests ---

func TestLoop_StartStopStates(t *testing.T) {
	env := newTestEnv(t, 10000, buyOnce(0, 0))

	if env.loop.State() != session.Stopped {
		t.Fatalf("expected Stopped before start, got %v", env.loop.State())
	}
	if err := env.loop.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if env.loop.State() != session.Running {
		t.Fatalf("expected Running, got %v", env.loop.State())
	}

	// A second start while running is refused.
	if err := env.loop.Start(context.Background()); !errors.Is(err, session.ErrNotStopped) {
		t.Errorf("expected ErrNotStopped, got %v", err)
	}

	if _, err := env.loop.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if env.loop.State() != session.Stopped {
		t.Errorf("expected Stopped after stop, got %v", env.loop.State())
	}

	// A second stop is refused.
	if _, err := env.loop.Stop(context.Background()); !errors.Is(err, session.ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
}

func TestLoop_UnknownStrategy(t *testing.T) {
	env := newTestEnv(t, 10000, buyOnce(0, 0))
	broken := session.New(session.Config{
		Symbols:      []string{"EURUSD"},
		Source:       feed.NewReplaySource(),
		Bars:         feed.NewBarBuilder(time.Minute),
		Ledger:       env.ledger,
		Journal:      env.journal,
		Registry:     strategy.NewRegistry(),
		StrategyName: "missing",
	})

	if err := broken.Start(context.Background()); !errors.Is(err, strategy.ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
	if broken.State() != session.Stopped {
		t.Errorf("failed start should leave the session Stopped, got %v", broken.State())
	}
}

// --- Fill and take-profit flow ---

func TestLoop_FillThenTakeProfit(t *testing.T) {
	// Buy at ask 1.1002 with TP 40 pips = 1.1042; the third tick's bar
	// high crosses it.
	env := newTestEnv(t, 10000, buyOnce(20, 40),
		tick(1.1000, 1.1002, 0),
		tick(1.1010, 1.1012, time.Second),
		tick(1.1044, 1.1046, 2*time.Second),
	)
	summary := run(t, env)

	if summary.TotalTrades != 1 {
		t.Fatalf("expected 1 trade, got %d", summary.TotalTrades)
	}
	trade := summary.Trades[0]
	if trade.CloseReason != model.CloseTakeProfit {
		t.Errorf("expected take_profit, got %s", trade.CloseReason)
	}
	if !trade.ExitPrice.Equal(d(1.1042)) {
		t.Errorf("expected exit at TP 1.1042, got %s", trade.ExitPrice)
	}
	if summary.Wins != 1 {
		t.Errorf("expected 1 win, got %d", summary.Wins)
	}
	if !summary.WinRate.Equal(d(1)) {
		t.Errorf("expected win rate 1, got %s", summary.WinRate)
	}
	// Rendered form used when the shutdown summary is logged.
	if got := summary.WinRate.StringFixed(2); got != "1.00" {
		t.Errorf("expected win rate to render as 1.00, got %s", got)
	}

	// The journal saw the whole lifecycle.
	if got := len(env.journal.Fills()); got != 1 {
		t.Errorf("expected 1 journaled fill, got %d", got)
	}
	trades, _ := env.journal.QueryTrades(context.Background(), journal.TradeFilter{})
	if len(trades) != 1 {
		t.Errorf("expected 1 journaled trade, got %d", len(trades))
	}
	open, _ := env.journal.QueryOpenPositions(context.Background())
	if len(open) != 0 {
		t.Errorf("expected no open positions after TP, got %d", len(open))
	}
}

func TestLoop_StopLossOnAdverseMove(t *testing.T) {
	// Buy at ask 1.1002 with SL 20 pips = 1.0982; the second tick's bar
	// low crosses it.
	env := newTestEnv(t, 10000, buyOnce(20, 40),
		tick(1.1000, 1.1002, 0),
		tick(1.0980, 1.0982, time.Second),
	)
	summary := run(t, env)

	if summary.TotalTrades != 1 {
		t.Fatalf("expected 1 trade, got %d", summary.TotalTrades)
	}
	if summary.Trades[0].CloseReason != model.CloseStopLoss {
		t.Errorf("expected stop_loss, got %s", summary.Trades[0].CloseReason)
	}
	if !summary.Trades[0].NetPnL.IsNegative() {
		t.Errorf("stopped-out trade should lose money, got %s", summary.Trades[0].NetPnL)
	}
	if summary.Wins != 0 {
		t.Errorf("expected 0 wins, got %d", summary.Wins)
	}
}

// --- Rejection flow ---

func TestLoop_InsufficientBalanceRejection(t *testing.T) {
	// Entry costs for 1 lot on a 2-pip spread are $27; a $10 account
	// cannot open it.
	env := newTestEnv(t, 10, buyOnce(0, 0),
		tick(1.1000, 1.1002, 0),
	)
	summary := run(t, env)

	if summary.TotalTrades != 0 {
		t.Fatalf("expected no trades, got %d", summary.TotalTrades)
	}
	if got := summary.Rejections[string(model.RejectInsufficientBalance)]; got != 1 {
		t.Errorf("expected 1 insufficient_balance rejection, got %d", got)
	}
	if !summary.FinalBalance.Equal(d(10)) {
		t.Errorf("rejection must not move the balance, got %s", summary.FinalBalance)
	}

	orders := env.journal.Orders()
	if len(orders) != 1 || orders[0].Status != model.OrderRejected {
		t.Fatalf("expected 1 rejected journaled order, got %+v", orders)
	}
}

// --- Shutdown settlement ---

func TestLoop_StopSettlesOpenPositions(t *testing.T) {
	// Two positions open with no stops; Stop closes both manually at the
	// last tick.
	env := newTestEnv(t, 10000, buyEveryTick(),
		tick(1.1000, 1.1002, 0),
		tick(1.1010, 1.1012, time.Second),
	)
	summary := run(t, env)

	if summary.TotalTrades != 2 {
		t.Fatalf("expected 2 settlement trades, got %d", summary.TotalTrades)
	}
	for _, trade := range summary.Trades {
		if trade.CloseReason != model.CloseManual {
			t.Errorf("settlement close should be manual, got %s", trade.CloseReason)
		}
		// Longs settle at the last bid.
		if !trade.ExitPrice.Equal(d(1.1010)) {
			t.Errorf("expected exit at last bid 1.1010, got %s", trade.ExitPrice)
		}
	}

	open, _ := env.journal.QueryOpenPositions(context.Background())
	if len(open) != 0 {
		t.Errorf("expected no open positions after settlement, got %d", len(open))
	}

	// The final snapshot was written and the ledger frozen.
	if got := len(env.journal.Snapshots()); got != 1 {
		t.Errorf("expected 1 final snapshot, got %d", got)
	}
	if err := env.ledger.ApplyFill(model.Fill{}); !errors.Is(err, ledger.ErrInvariant) {
		t.Errorf("ledger should be frozen after stop, got %v", err)
	}
}

// --- Accounting identity ---

func TestLoop_BalanceIdentity(t *testing.T) {
	env := newTestEnv(t, 10000, buyOnce(20, 40),
		tick(1.1000, 1.1002, 0),
		tick(1.1010, 1.1012, time.Second),
		tick(1.1044, 1.1046, 2*time.Second),
	)
	summary := run(t, env)

	// balance == initial − Σ entry_costs + Σ net_pnl
	want := d(10000)
	for _, fill := range env.journal.Fills() {
		want = want.Sub(fill.EntryCosts())
	}
	for _, trade := range summary.Trades {
		want = want.Add(trade.NetPnL)
	}
	if !summary.FinalBalance.Equal(want) {
		t.Errorf("balance identity violated: got %s, want %s", summary.FinalBalance, want)
	}
	// No open positions: equity equals balance.
	if !summary.FinalEquity.Equal(summary.FinalBalance) {
		t.Errorf("flat account equity %s != balance %s", summary.FinalEquity, summary.FinalBalance)
	}
}

// --- Journal failure is fatal ---

type failingJournal struct {
	*journal.MemoryJournal
}

var errDiskGone = errors.New("disk gone")

func (f failingJournal) RecordFill(context.Context, model.Fill) error {
	return errDiskGone
}

func TestLoop_JournalFailureHaltsSession(t *testing.T) {
	symbols, _ := symbol.NewTable(symbol.DefaultSpec("EURUSD"))
	cm, _ := cost.NewModel(d(7), decimal.Zero, rand.New(rand.NewSource(1)))
	led := ledger.New(d(10000), cm, symbols)
	positions := position.NewManager(symbols, cm, led, position.Conservative)
	led.SetUnrealizedSource(positions)
	matcher := match.New(symbols, cm, led, nil, nil, 0, rand.New(rand.NewSource(1)))

	registry := strategy.NewRegistry()
	registry.Register("test", buyOnce(0, 0))

	loop := session.New(session.Config{
		Symbols:      []string{"EURUSD"},
		Source:       feed.NewReplaySource(tick(1.1000, 1.1002, 0), tick(1.1010, 1.1012, time.Second)),
		Bars:         feed.NewBarBuilder(time.Minute),
		Matcher:      matcher,
		Positions:    positions,
		Ledger:       led,
		Journal:      failingJournal{journal.NewMemoryJournal()},
		Registry:     registry,
		StrategyName: "test",
	})

	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	loop.Wait()

	_, err := loop.Stop(context.Background())
	if !errors.Is(err, errDiskGone) {
		t.Errorf("expected the journal error to surface from Stop, got %v", err)
	}
}

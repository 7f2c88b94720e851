package journal

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/fxsim/paperbroker/internal/metrics"
	"github.com/fxsim/paperbroker/internal/model"
)

// Backoff configures the bounded exponential retry applied to local
// journal writes. Delay for attempt n is
//
//	min(Initial × Multiplier^n, Max)
//
// with ±JitterFactor random variation to avoid retry storms.
type Backoff struct {
	MaxAttempts  int
	Initial      time.Duration
	Max          time.Duration
	Multiplier   float64
	JitterFactor float64
}

// DefaultBackoff suits local database writes: 5 attempts at 50ms, 100ms,
// 200ms, 400ms.
func DefaultBackoff() Backoff {
	return Backoff{
		MaxAttempts:  5,
		Initial:      50 * time.Millisecond,
		Max:          2 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

func (b Backoff) delay(attempt int) time.Duration {
	d := float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt))
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.JitterFactor > 0 {
		d += d * b.JitterFactor * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// RetryJournal decorates a Journal with bounded exponential backoff on
// every write. If a write still fails after the last attempt the error
// is returned to the caller, and the session treats that as fatal, since
// proceeding would silently lose accounting history. Queries are not
// retried.
type RetryJournal struct {
	primary Journal
	backoff Backoff
	onRetry func(attempt int, err error)
}

// NewRetryJournal wraps primary with the given backoff policy.
func NewRetryJournal(primary Journal, backoff Backoff) *RetryJournal {
	return &RetryJournal{
		primary: primary,
		backoff: backoff,
		onRetry: func(attempt int, err error) {
			metrics.JournalRetries.Inc()
			slog.Warn("journal write retry", "attempt", attempt, "err", err)
		},
	}
}

func (j *RetryJournal) do(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; attempt < j.backoff.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if attempt == j.backoff.MaxAttempts-1 {
			break
		}

		j.onRetry(attempt+1, lastErr)
		select {
		case <-time.After(j.backoff.delay(attempt)):
		case <-ctx.Done():
			return lastErr
		}
	}
	return lastErr
}

func (j *RetryJournal) RecordOrder(ctx context.Context, order model.Order) error {
	return j.do(ctx, func() error { return j.primary.RecordOrder(ctx, order) })
}

func (j *RetryJournal) RecordFill(ctx context.Context, fill model.Fill) error {
	return j.do(ctx, func() error { return j.primary.RecordFill(ctx, fill) })
}

func (j *RetryJournal) RecordPositionOpen(ctx context.Context, pos model.Position) error {
	return j.do(ctx, func() error { return j.primary.RecordPositionOpen(ctx, pos) })
}

func (j *RetryJournal) RecordPositionClose(ctx context.Context, pos model.Position, trade model.Trade) error {
	return j.do(ctx, func() error { return j.primary.RecordPositionClose(ctx, pos, trade) })
}

func (j *RetryJournal) RecordSnapshot(ctx context.Context, state model.AccountState) error {
	return j.do(ctx, func() error { return j.primary.RecordSnapshot(ctx, state) })
}

func (j *RetryJournal) QueryTrades(ctx context.Context, filter TradeFilter) ([]model.Trade, error) {
	return j.primary.QueryTrades(ctx, filter)
}

func (j *RetryJournal) QueryOpenPositions(ctx context.Context) ([]model.Position, error) {
	return j.primary.QueryOpenPositions(ctx)
}

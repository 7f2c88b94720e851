package feed

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fxsim/paperbroker/internal/model"
)

// RandomWalkSource emits synthetic ticks as a bounded random walk around
// a starting mid price. Used for paper-trading rehearsal when no real
// feed is attached; deterministic when seeded.
type RandomWalkSource struct {
	interval time.Duration
	spread   decimal.Decimal
	stepPips decimal.Decimal
	pipSize  decimal.Decimal

	mu   sync.Mutex
	rng  *rand.Rand
	mids map[string]decimal.Decimal
	last map[string]time.Time
}

// NewRandomWalkSource creates a source that moves each symbol's mid by
// a uniform step in [-stepPips, +stepPips] per tick, with a fixed
// spread, one tick per interval.
func NewRandomWalkSource(start map[string]decimal.Decimal, spread, stepPips, pipSize decimal.Decimal, interval time.Duration, rng *rand.Rand) *RandomWalkSource {
	mids := make(map[string]decimal.Decimal, len(start))
	for sym, mid := range start {
		mids[sym] = mid
	}
	return &RandomWalkSource{
		interval: interval,
		spread:   spread,
		stepPips: stepPips,
		pipSize:  pipSize,
		rng:      rng,
		mids:     mids,
		last:     make(map[string]time.Time),
	}
}

// NextTick blocks for the tick interval, then returns the next step of
// the walk. Timestamps are monotonically increasing per symbol.
func (s *RandomWalkSource) NextTick(ctx context.Context, symbol string) (model.Tick, error) {
	select {
	case <-ctx.Done():
		return model.Tick{}, ctx.Err()
	case <-time.After(s.interval):
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mid, ok := s.mids[symbol]
	if !ok {
		return model.Tick{}, ErrExhausted
	}

	step := decimal.NewFromFloat(s.rng.Float64()*2 - 1).Mul(s.stepPips).Mul(s.pipSize)
	mid = mid.Add(step)
	s.mids[symbol] = mid

	now := time.Now().UTC()
	if !now.After(s.last[symbol]) {
		now = s.last[symbol].Add(time.Millisecond)
	}
	s.last[symbol] = now

	half := s.spread.Div(decimal.NewFromInt(2))
	return model.Tick{
		Symbol: symbol,
		Bid:    mid.Sub(half),
		Ask:    mid.Add(half),
		Time:   now,
	}, nil
}

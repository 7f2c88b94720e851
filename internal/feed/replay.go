package feed

import (
	"context"
	"sync"

	"github.com/fxsim/paperbroker/internal/model"
)

// ReplaySource replays a pre-recorded tick script per symbol, in order.
// Used by backtests and tests; deterministic by construction.
type ReplaySource struct {
	mu    sync.Mutex
	ticks map[string][]model.Tick
	pos   map[string]int
}

// NewReplaySource creates a source over the given ticks. Ticks for each
// symbol must already be in non-decreasing time order.
func NewReplaySource(ticks ...model.Tick) *ReplaySource {
	s := &ReplaySource{
		ticks: make(map[string][]model.Tick),
		pos:   make(map[string]int),
	}
	for _, t := range ticks {
		s.ticks[t.Symbol] = append(s.ticks[t.Symbol], t)
	}
	return s
}

// NextTick returns the next scripted tick for the symbol, or
// ErrExhausted once the script runs out.
func (s *ReplaySource) NextTick(ctx context.Context, symbol string) (model.Tick, error) {
	if err := ctx.Err(); err != nil {
		return model.Tick{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.pos[symbol]
	script := s.ticks[symbol]
	if i >= len(script) {
		return model.Tick{}, ErrExhausted
	}
	s.pos[symbol] = i + 1
	return script[i], nil
}

// Remaining returns how many scripted ticks are left for a symbol.
func (s *ReplaySource) Remaining(symbol string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ticks[symbol]) - s.pos[symbol]
}

package feed

import (
	"sync"
	"time"

	"github.com/fxsim/paperbroker/internal/model"
)

// BarBuilder aggregates ticks into OHLC bars per symbol, using the
// bid/ask midpoint. The working bar always includes the latest tick, so
// its High/Low carry the extremes the stop-loss/take-profit scan needs.
type BarBuilder struct {
	interval time.Duration

	mu   sync.Mutex
	bars map[string]*model.Bar
}

// NewBarBuilder creates a builder with the given bar interval.
func NewBarBuilder(interval time.Duration) *BarBuilder {
	return &BarBuilder{
		interval: interval,
		bars:     make(map[string]*model.Bar),
	}
}

// Update folds the tick into the symbol's working bar and returns a
// snapshot of it. A new bar starts when the tick falls past the current
// bar's end.
func (b *BarBuilder) Update(tick model.Tick) model.Bar {
	b.mu.Lock()
	defer b.mu.Unlock()

	mid := tick.Mid()
	bar, ok := b.bars[tick.Symbol]
	if !ok || !tick.Time.Before(bar.End) {
		start := tick.Time.Truncate(b.interval)
		bar = &model.Bar{
			Symbol: tick.Symbol,
			Open:   mid,
			High:   mid,
			Low:    mid,
			Close:  mid,
			Start:  start,
			End:    start.Add(b.interval),
		}
		b.bars[tick.Symbol] = bar
		return *bar
	}

	if mid.GreaterThan(bar.High) {
		bar.High = mid
	}
	if mid.LessThan(bar.Low) {
		bar.Low = mid
	}
	bar.Close = mid
	return *bar
}

// Current returns the working bar for a symbol, if any.
func (b *BarBuilder) Current(symbol string) (model.Bar, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bar, ok := b.bars[symbol]
	if !ok {
		return model.Bar{}, false
	}
	return *bar, true
}

// Package feed defines the price source consumed by the session loop
// and the tick→bar aggregation used for intrabar stop evaluation.
package feed

import (
	"context"
	"errors"

	"github.com/fxsim/paperbroker/internal/model"
)

// ErrExhausted is returned by a finite source when no ticks remain for
// a symbol. The session loop treats it as end-of-data, not a failure.
var ErrExhausted = errors.New("feed: no more ticks")

// PriceSource supplies ticks per symbol. Implementations must deliver
// monotonically non-decreasing timestamps per symbol; ordering across
// symbols is not required.
type PriceSource interface {
	NextTick(ctx context.Context, symbol string) (model.Tick, error)
}

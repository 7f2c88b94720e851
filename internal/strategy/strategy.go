// Package strategy defines the interface the session loop drives and an
// explicit registry of strategy constructors. The registry is a
// constructed object handed to the session at startup. There is no
// process-wide registration side effect.
package strategy

import (
	"errors"
	"fmt"

	"github.com/fxsim/paperbroker/internal/model"
)

// ErrUnknownStrategy is returned when a name is not registered.
var ErrUnknownStrategy = errors.New("strategy: unknown name")

// Strategy decides whether to trade on the current tick. Analyze is
// called once per tick per symbol and returns nil when there is nothing
// to do. Implementations may keep per-symbol state; the session loop
// calls Analyze for one symbol from one goroutine only.
type Strategy interface {
	Analyze(state model.MarketState) *model.Signal
}

// Func adapts a plain function to the Strategy interface.
type Func func(state model.MarketState) *model.Signal

// Analyze implements Strategy.
func (f Func) Analyze(state model.MarketState) *model.Signal { return f(state) }

// Constructor builds a fresh strategy instance.
type Constructor func() Strategy

// Registry maps names to strategy constructors.
type Registry struct {
	constructors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds a named constructor. Re-registering a name replaces it.
func (r *Registry) Register(name string, c Constructor) {
	r.constructors[name] = c
}

// New constructs a fresh instance of the named strategy.
func (r *Registry) New(name string) (Strategy, error) {
	c, ok := r.constructors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	return c(), nil
}

// Names lists the registered strategy names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.constructors))
	for n := range r.constructors {
		names = append(names, n)
	}
	return names
}

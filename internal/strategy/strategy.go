// Package strategy defines the contract between the backtest engine and a
// trading strategy: a parameter schema, per-run state that turns candles
// into signals, and an explicit exit policy. Strategies are collected in an
// explicit Registry value; there is no package-level registry.
package strategy

import (
	"fmt"
	"sort"

	"cryptobot/internal/domain"
)

// Strategy is a named, parameterised signal generator. Implementations must
// be stateless; all per-run state lives in the State returned by Init.
type Strategy interface {
	// Name returns the stable identifier used for lookup.
	Name() string

	// Params describes the tunable parameters and their defaults.
	Params() []ParamSpec

	// Init builds fresh run state from already-resolved params.
	Init(params Params) (State, error)
}

// State is the per-run half of a strategy. OnBar is called exactly once per
// accepted candle, in timestamp order. A nil signal means hold.
type State interface {
	OnBar(bar domain.Candle, pos domain.Position) (*domain.Signal, error)
	ExitPolicy() ExitPolicy
}

// ExitRule selects when an open position is closed by the simulator.
type ExitRule int

const (
	// ExitOnOpposite closes on the next signal in the opposite direction.
	ExitOnOpposite ExitRule = iota
	// ExitNextBar closes at the close of the bar after entry.
	ExitNextBar
)

func (r ExitRule) String() string {
	switch r {
	case ExitOnOpposite:
		return "opposite_signal"
	case ExitNextBar:
		return "next_bar"
	default:
		return fmt.Sprintf("ExitRule(%d)", int(r))
	}
}

// ExitPolicy is checked by the simulator on every bar while a position is
// open. StopLoss and TakeProfit are fractions of the entry price; zero
// disables them.
type ExitPolicy struct {
	Rule       ExitRule
	StopLoss   float64
	TakeProfit float64
}

// Info is the listing form of a registered strategy.
type Info struct {
	Name   string      `json:"name"`
	Params []ParamSpec `json:"params"`
}

// Registry holds strategies keyed by Name.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates a Registry with the given strategies registered.
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[string]Strategy, len(strategies))}
	for _, s := range strategies {
		r.Register(s)
	}
	return r
}

// Register adds s, replacing any strategy with the same name.
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// Lookup is Get returning domain.ErrStrategyNotFound for unknown names.
func (r *Registry) Lookup(name string) (Strategy, error) {
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrStrategyNotFound, name)
	}
	return s, nil
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns name and schema for every strategy, sorted by name.
func (r *Registry) Describe() []Info {
	names := r.List()
	infos := make([]Info, 0, len(names))
	for _, name := range names {
		infos = append(infos, Info{Name: name, Params: r.strategies[name].Params()})
	}
	return infos
}

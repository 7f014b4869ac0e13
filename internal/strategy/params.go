package strategy

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Params is a resolved parameter set. Values are float64; integer
// parameters are carried as whole numbers.
type Params map[string]float64

// ParamSpec describes one tunable parameter. Min and Max bound the value
// when Max > Min.
type ParamSpec struct {
	Name        string  `json:"name" yaml:"name"`
	Default     float64 `json:"default" yaml:"default"`
	Min         float64 `json:"min" yaml:"min"`
	Max         float64 `json:"max" yaml:"max"`
	Integer     bool    `json:"integer" yaml:"integer"`
	Description string  `json:"description" yaml:"description"`
}

// Int returns the parameter as an int. Call it only with names from the
// strategy's own schema after Resolve.
func (p Params) Int(name string) int { return int(math.Round(p[name])) }

// Clone returns an independent copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders params as "a=1 b=2" in key order.
func (p Params) String() string {
	var b strings.Builder
	for i, k := range p.Keys() {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%g", k, p[k])
	}
	return b.String()
}

// Resolve fills defaults from specs and validates overrides. Unknown names,
// non-finite values, values out of range and fractional integers are errors.
func Resolve(specs []ParamSpec, overrides Params) (Params, error) {
	known := make(map[string]ParamSpec, len(specs))
	out := make(Params, len(specs))
	for _, s := range specs {
		known[s.Name] = s
		out[s.Name] = s.Default
	}
	for _, name := range overrides.Keys() {
		v := overrides[name]
		spec, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("unknown parameter %q", name)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("parameter %q: value %v is not finite", name, v)
		}
		if spec.Integer && v != math.Trunc(v) {
			return nil, fmt.Errorf("parameter %q: %v is not an integer", name, v)
		}
		if spec.Max > spec.Min && (v < spec.Min || v > spec.Max) {
			return nil, fmt.Errorf("parameter %q: %v outside [%v, %v]", name, v, spec.Min, spec.Max)
		}
		out[name] = v
	}
	return out, nil
}

// LoadParams reads a flat YAML mapping of parameter overrides, e.g.
//
//	fast_period: 10
//	slow_period: 30
func LoadParams(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading params file: %w", err)
	}
	var p Params
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing params file: %w", err)
	}
	if p == nil {
		p = Params{}
	}
	return p, nil
}

// ParseParams parses "name=value" pairs as given on a command line.
func ParseParams(pairs []string) (Params, error) {
	p := make(Params, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("parameter %q: want name=value", pair)
		}
		var v float64
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("parameter %q: %w", pair, err)
		}
		p[strings.TrimSpace(name)] = v
	}
	return p, nil
}

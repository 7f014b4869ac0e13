// Package sweep runs many independent backtests over a parameter grid or a
// series of walk-forward windows on a bounded worker pool.
package sweep

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"cryptobot/internal/strategy"
)

// Axis is one swept parameter and the values it takes, in order.
type Axis struct {
	Name   string    `yaml:"name" json:"name"`
	Values []float64 `yaml:"values" json:"values"`
}

// Grid is an ordered list of axes. Expansion varies the last axis fastest.
type Grid []Axis

// RangeAxis builds an axis from..to inclusive in steps of step.
func RangeAxis(name string, from, to, step float64) (Axis, error) {
	if step <= 0 || to < from {
		return Axis{}, fmt.Errorf("axis %s: bad range %v:%v:%v", name, from, to, step)
	}
	n := int(math.Floor((to-from)/step+1e-9)) + 1
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = from + float64(i)*step
	}
	return Axis{Name: name, Values: vals}, nil
}

// ParseAxis parses "name=from:to:step" or "name=v1,v2,v3".
func ParseAxis(s string) (Axis, error) {
	name, values, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return Axis{}, fmt.Errorf("axis %q: want name=from:to:step or name=v1,v2", s)
	}
	if parts := strings.Split(values, ":"); len(parts) == 3 {
		var nums [3]float64
		for i, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return Axis{}, fmt.Errorf("axis %s: %w", name, err)
			}
			nums[i] = v
		}
		return RangeAxis(name, nums[0], nums[1], nums[2])
	}
	var vals []float64
	for _, p := range strings.Split(values, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Axis{}, fmt.Errorf("axis %s: %w", name, err)
		}
		vals = append(vals, v)
	}
	return Axis{Name: name, Values: vals}, nil
}

// Size returns the number of parameter sets the grid expands to.
func (g Grid) Size() int {
	if len(g) == 0 {
		return 0
	}
	n := 1
	for _, a := range g {
		n *= len(a.Values)
	}
	return n
}

// Expand returns every combination of axis values layered over base.
// Duplicate axis names are an error.
func (g Grid) Expand(base strategy.Params) ([]strategy.Params, error) {
	seen := make(map[string]bool, len(g))
	for _, a := range g {
		if seen[a.Name] {
			return nil, fmt.Errorf("axis %s listed twice", a.Name)
		}
		if len(a.Values) == 0 {
			return nil, fmt.Errorf("axis %s has no values", a.Name)
		}
		seen[a.Name] = true
	}

	size := g.Size()
	out := make([]strategy.Params, 0, size)
	idx := make([]int, len(g))
	for range size {
		p := base.Clone()
		for i, a := range g {
			p[a.Name] = a.Values[idx[i]]
		}
		out = append(out, p)
		for i := len(idx) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(g[i].Values) {
				break
			}
			idx[i] = 0
		}
	}
	return out, nil
}

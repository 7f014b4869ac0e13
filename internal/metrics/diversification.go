package metrics

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrBadWeights is returned for empty, negative or all-zero weights.
var ErrBadWeights = errors.New("invalid portfolio weights")

// DiversificationMetrics describe how concentrated a portfolio is.
type DiversificationMetrics struct {
	HerfindahlIndex float64            `json:"herfindahlIndex"` // (0, 1]
	GiniCoefficient float64            `json:"giniCoefficient"`
	EffectiveN      float64            `json:"effectiveN"`
	Weights         map[string]float64 `json:"weights"` // normalised to sum 1
}

// NormalizeWeights scales weights to sum to 1.
func NormalizeWeights(weights map[string]float64) (map[string]float64, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("%w: no weights", ErrBadWeights)
	}
	keys := make([]string, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var total float64
	for _, k := range keys {
		w := weights[k]
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: %s has weight %v", ErrBadWeights, k, w)
		}
		total += w
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: weights sum to zero", ErrBadWeights)
	}
	out := make(map[string]float64, len(weights))
	for _, k := range keys {
		out[k] = weights[k] / total
	}
	return out, nil
}

// Diversification computes the Herfindahl index Σw², the Gini coefficient
// Σ(2i-n-1)·wᵢ / (n·Σw) over ascending weights, and EffectiveN = 1/HHI.
func Diversification(weights map[string]float64) (DiversificationMetrics, error) {
	norm, err := NormalizeWeights(weights)
	if err != nil {
		return DiversificationMetrics{}, err
	}
	ws := make([]float64, 0, len(norm))
	for _, w := range norm {
		ws = append(ws, w)
	}
	sort.Float64s(ws)

	var hhi, gini, sum float64
	n := float64(len(ws))
	for i, w := range ws {
		hhi += w * w
		gini += (2*float64(i+1) - n - 1) * w
		sum += w
	}
	gini /= n * sum
	return DiversificationMetrics{
		HerfindahlIndex: hhi,
		GiniCoefficient: gini,
		EffectiveN:      1 / hhi,
		Weights:         norm,
	}, nil
}

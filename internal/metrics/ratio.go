package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Ratio is a metric that may be undefined, for example a Sharpe ratio over
// fewer than two returns. Undefined ratios marshal to JSON null.
type Ratio struct {
	Value   float64
	Defined bool
}

// Undefined is the sentinel for a metric that could not be computed.
var Undefined = Ratio{}

// Def returns a defined Ratio. Non-finite values are treated as undefined.
func Def(v float64) Ratio {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Undefined
	}
	return Ratio{Value: v, Defined: true}
}

// Or returns the value, or fallback when undefined.
func (r Ratio) Or(fallback float64) float64 {
	if !r.Defined {
		return fallback
	}
	return r.Value
}

func (r Ratio) String() string {
	if !r.Defined {
		return "n/a"
	}
	return strconv.FormatFloat(r.Value, 'f', 4, 64)
}

func (r Ratio) MarshalJSON() ([]byte, error) {
	if !r.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

func (r *Ratio) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*r = Undefined
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("ratio: %w", err)
	}
	*r = Def(v)
	return nil
}

// Factor is a float that may legitimately be +Inf, such as a profit factor
// with no losing trades. Infinities marshal as the strings "+Inf" and "-Inf".
type Factor float64

func (f Factor) IsInf() bool { return math.IsInf(float64(f), 0) }

func (f Factor) String() string {
	switch {
	case math.IsInf(float64(f), 1):
		return "+Inf"
	case math.IsInf(float64(f), -1):
		return "-Inf"
	}
	return strconv.FormatFloat(float64(f), 'f', 4, 64)
}

func (f Factor) MarshalJSON() ([]byte, error) {
	if f.IsInf() {
		return json.Marshal(f.String())
	}
	if math.IsNaN(float64(f)) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(f))
}

func (f *Factor) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch s {
		case "+Inf", "Inf":
			*f = Factor(math.Inf(1))
		case "-Inf":
			*f = Factor(math.Inf(-1))
		default:
			return fmt.Errorf("factor: unexpected string %q", s)
		}
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*f = Factor(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("factor: %w", err)
	}
	*f = Factor(v)
	return nil
}

package strategy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cryptobot/internal/domain"
)

// stubStrategy is a minimal Strategy used in registry tests.
type stubStrategy struct {
	name string
}

func (s *stubStrategy) Name() string { return s.name }
func (s *stubStrategy) Params() []ParamSpec {
	return []ParamSpec{{Name: "period", Default: 14, Min: 2, Max: 200, Integer: true}}
}
func (s *stubStrategy) Init(_ Params) (State, error) { return stubState{}, nil }

type stubState struct{}

func (stubState) OnBar(domain.Candle, domain.Position) (*domain.Signal, error) { return nil, nil }
func (stubState) ExitPolicy() ExitPolicy                                        { return ExitPolicy{} }

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(&stubStrategy{name: "test-strategy"})

	got, ok := r.Get("test-strategy")
	if !ok {
		t.Fatal("Get returned false for registered strategy")
	}
	if got.Name() != "test-strategy" {
		t.Errorf("Get returned strategy with Name() = %q, want %q", got.Name(), "test-strategy")
	}
}

func TestRegistryLookup_NotFound(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get("nonexistent"); ok {
		t.Error("Get returned true for unregistered strategy")
	}
	_, err := r.Lookup("nonexistent")
	if !errors.Is(err, domain.ErrStrategyNotFound) {
		t.Errorf("Lookup error = %v, want ErrStrategyNotFound", err)
	}
}

func TestRegistryListAndDescribe(t *testing.T) {
	r := NewRegistry(&stubStrategy{name: "beta"}, &stubStrategy{name: "alpha"})

	names := r.List()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List returned %v, want [alpha beta]", names)
	}
	infos := r.Describe()
	if len(infos) != 2 || infos[0].Name != "alpha" || len(infos[0].Params) != 1 {
		t.Errorf("Describe returned %+v", infos)
	}
}

func TestResolveDefaults(t *testing.T) {
	specs := []ParamSpec{
		{Name: "fast_period", Default: 20, Min: 1, Max: 500, Integer: true},
		{Name: "slow_period", Default: 50, Min: 1, Max: 500, Integer: true},
	}
	p, err := Resolve(specs, Params{"fast_period": 10})
	if err != nil {
		t.Fatalf("Resolve returned %v", err)
	}
	if p.Int("fast_period") != 10 || p.Int("slow_period") != 50 {
		t.Errorf("Resolve = %v, want fast=10 slow=50", p)
	}
	if got := p.String(); got != "fast_period=10 slow_period=50" {
		t.Errorf("String() = %q", got)
	}
}

func TestResolveRejects(t *testing.T) {
	specs := []ParamSpec{{Name: "period", Default: 14, Min: 2, Max: 100, Integer: true}}
	cases := map[string]Params{
		"unknown":      {"window": 3},
		"out of range": {"period": 1},
		"fractional":   {"period": 2.5},
	}
	for name, in := range cases {
		if _, err := Resolve(specs, in); err == nil {
			t.Errorf("%s: Resolve(%v) should fail", name, in)
		}
	}
}

func TestLoadAndParseParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	if err := os.WriteFile(path, []byte("fast_period: 5\nslow_period: 12.5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadParams(path)
	if err != nil {
		t.Fatalf("LoadParams returned %v", err)
	}
	if p["fast_period"] != 5 || p["slow_period"] != 12.5 {
		t.Errorf("LoadParams = %v", p)
	}

	q, err := ParseParams([]string{"rsi_period=7", "oversold=25"})
	if err != nil {
		t.Fatalf("ParseParams returned %v", err)
	}
	if q["rsi_period"] != 7 || q["oversold"] != 25 {
		t.Errorf("ParseParams = %v", q)
	}
	if _, err := ParseParams([]string{"nonsense"}); err == nil {
		t.Error("ParseParams should reject a pair without '='")
	}
}

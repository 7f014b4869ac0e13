package builtins

import (
	"fmt"
	"sort"

	"cryptobot/internal/domain"
	"cryptobot/internal/strategy"
)

var _ strategy.Strategy = VolumeProfile{}

// VolumeProfile bins the lookback window's traded range into price_levels
// buckets, crediting each bar's volume to every bucket its high-low span
// touches. The heaviest bucket is the point of control (POC); the heaviest
// buckets holding value_area of the volume form the value area. A close in
// the value area above the POC buys, below it sells.
type VolumeProfile struct{}

// Name returns "volume-profile".
func (VolumeProfile) Name() string { return "volume-profile" }

func (VolumeProfile) Params() []strategy.ParamSpec {
	return withExits(
		strategy.ParamSpec{Name: "lookback_period", Default: 50, Min: 2, Max: 5000, Integer: true, Description: "bars in the profile"},
		strategy.ParamSpec{Name: "price_levels", Default: 20, Min: 2, Max: 500, Integer: true, Description: "price buckets"},
		strategy.ParamSpec{Name: "value_area", Default: 0.7, Min: 0.1, Max: 1, Description: "share of volume in the value area"},
	)
}

func (VolumeProfile) Init(p strategy.Params) (strategy.State, error) {
	n := p.Int("lookback_period")
	return &volumeProfileState{
		highs:     newWindow(n),
		lows:      newWindow(n),
		volumes:   newWindow(n),
		levels:    p.Int("price_levels"),
		valueArea: p["value_area"],
		exit:      exitPolicy(p),
	}, nil
}

type volumeProfileState struct {
	highs, lows, volumes *window
	levels               int
	valueArea            float64
	exit                 strategy.ExitPolicy
}

// profile is a volume-by-price histogram over [lo, lo+levels*step).
type profile struct {
	lo, step float64
	volume   []float64
	total    float64
}

func (p profile) bucket(price float64) int {
	i := int((price - p.lo) / p.step)
	return max(0, min(i, len(p.volume)-1))
}

func (s *volumeProfileState) build() (profile, bool) {
	highs, lows, vols := s.highs.values(), s.lows.values(), s.volumes.values()
	lo, hi := lows[0], highs[0]
	for i := range highs {
		lo, hi = min(lo, lows[i]), max(hi, highs[i])
	}
	if hi <= lo {
		return profile{}, false
	}
	p := profile{lo: lo, step: (hi - lo) / float64(s.levels), volume: make([]float64, s.levels)}
	for i := range highs {
		for b := p.bucket(lows[i]); b <= p.bucket(highs[i]); b++ {
			p.volume[b] += vols[i]
			p.total += vols[i]
		}
	}
	return p, p.total > 0
}

// valueBuckets returns the heaviest buckets holding share of the volume.
func (p profile) valueBuckets(share float64) map[int]bool {
	order := make([]int, len(p.volume))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return p.volume[order[a]] > p.volume[order[b]] })
	out := make(map[int]bool)
	var acc float64
	for _, b := range order {
		out[b] = true
		acc += p.volume[b]
		if acc >= share*p.total {
			break
		}
	}
	return out
}

func (s *volumeProfileState) OnBar(bar domain.Candle, _ domain.Position) (*domain.Signal, error) {
	s.highs.push(bar.High)
	s.lows.push(bar.Low)
	s.volumes.push(bar.Volume)
	if !s.volumes.ready() {
		return nil, nil
	}
	p, ok := s.build()
	if !ok {
		return nil, nil
	}

	poc := 0
	for b, v := range p.volume {
		if v > p.volume[poc] {
			poc = b
		}
	}
	at := p.bucket(bar.Close)
	if !p.valueBuckets(s.valueArea)[at] {
		return nil, nil
	}
	conf := clamp01(0.5 + p.volume[at]/p.total)
	pocLo := p.lo + float64(poc)*p.step
	switch {
	case bar.Close > pocLo+p.step:
		return &domain.Signal{Kind: domain.SignalBuy, Confidence: conf,
			Reason: fmt.Sprintf("close above point of control %.4g", pocLo+p.step)}, nil
	case bar.Close < pocLo:
		return &domain.Signal{Kind: domain.SignalSell, Confidence: conf,
			Reason: fmt.Sprintf("close below point of control %.4g", pocLo)}, nil
	}
	return nil, nil
}

func (s *volumeProfileState) ExitPolicy() strategy.ExitPolicy { return s.exit }

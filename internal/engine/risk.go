package engine

import (
	"fmt"
	"time"

	"cryptobot/internal/broker"
	"cryptobot/internal/domain"
)

// RiskLimits are per-run risk rules. Zero disables a rule.
type RiskLimits struct {
	// MaxPositionPct caps the notional of one position as a fraction of
	// equity, e.g. 0.10 for 10%.
	MaxPositionPct float64 `json:"maxPositionPct" yaml:"max_position_pct"`
	// MaxDailyLossPct halts new entries for the rest of a UTC day once that
	// day's realized loss exceeds this fraction of the day's opening equity.
	MaxDailyLossPct float64 `json:"maxDailyLossPct" yaml:"max_daily_loss_pct"`
}

// Validate rejects negative or above-one limits.
func (l RiskLimits) Validate() error {
	if l.MaxPositionPct < 0 || l.MaxPositionPct > 1 {
		return fmt.Errorf("max position pct %v outside [0, 1]", l.MaxPositionPct)
	}
	if l.MaxDailyLossPct < 0 || l.MaxDailyLossPct > 1 {
		return fmt.Errorf("max daily loss pct %v outside [0, 1]", l.MaxDailyLossPct)
	}
	return nil
}

// RiskManager enforces RiskLimits over one run. It holds run state and must
// not be shared between runs.
type RiskManager struct {
	limits RiskLimits

	day         time.Time
	dayOpenEq   float64
	haltedToday bool
}

// NewRiskManager creates a RiskManager with the specified thresholds.
func NewRiskManager(maxPositionPct, maxDailyLossPct float64) *RiskManager {
	return &RiskManager{limits: RiskLimits{MaxPositionPct: maxPositionPct, MaxDailyLossPct: maxDailyLossPct}}
}

// Sizer wraps inner so no entry exceeds MaxPositionPct of equity.
func (rm *RiskManager) Sizer(inner broker.Sizer) broker.Sizer {
	if rm.limits.MaxPositionPct <= 0 {
		return inner
	}
	return cappedSizer{inner: inner, pct: rm.limits.MaxPositionPct}
}

// Observe rolls the trading day forward and updates the halt flag from the
// current realized equity. Call it whenever equity may have changed.
func (rm *RiskManager) Observe(at time.Time, equity float64) {
	day := at.UTC().Truncate(24 * time.Hour)
	if !day.Equal(rm.day) {
		rm.day, rm.dayOpenEq, rm.haltedToday = day, equity, false
	}
	if rm.limits.MaxDailyLossPct > 0 && rm.dayOpenEq > 0 {
		if (rm.dayOpenEq-equity)/rm.dayOpenEq > rm.limits.MaxDailyLossPct {
			rm.haltedToday = true
		}
	}
}

// CheckEntry returns domain.ErrRiskLimit if a new position may not be
// opened at time at.
func (rm *RiskManager) CheckEntry(at time.Time) error {
	if rm.haltedToday && at.UTC().Truncate(24*time.Hour).Equal(rm.day) {
		return fmt.Errorf("%w: daily loss above %.2f%%", domain.ErrRiskLimit, rm.limits.MaxDailyLossPct*100)
	}
	return nil
}

type cappedSizer struct {
	inner broker.Sizer
	pct   float64
}

func (c cappedSizer) Size(equity, price float64, sig domain.Signal) float64 {
	size := c.inner.Size(equity, price, sig)
	if price > 0 {
		size = min(size, c.pct*equity/price)
	}
	return size
}

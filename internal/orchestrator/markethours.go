package orchestrator

import (
	"time"

	"github.com/ayushrajani07/g6-collector/internal/config"
)

// Oracle decides whether a cycle should run, spec.md §4.5 step 1:
// "consult a market-hours oracle; if closed and not explicitly
// overridden, skip the cycle and emit only a heartbeat."
type Oracle interface {
	IsOpen(now time.Time) bool
}

// ClockOracle is a weekday + wall-clock-window implementation. It has no
// holiday calendar: holidays are an exchange-specific data feed out of
// scope for this engine, per spec.md §1's non-goals on broker internals.
type ClockOracle struct {
	loc          *time.Location
	openMinute   int
	closeMinute  int
	weekendsOpen bool
	override     bool
}

// NewClockOracle builds an Oracle from MarketHoursConfig. An unparsable
// zone falls back to UTC; an unparsable time falls back to always-open
// so a config typo degrades to "never skip" rather than "never run".
func NewClockOracle(cfg config.MarketHoursConfig) *ClockOracle {
	loc, err := time.LoadLocation(cfg.Zone)
	if err != nil || loc == nil {
		loc = time.UTC
	}
	open, openOK := parseHHMM(cfg.OpenTime)
	close_, closeOK := parseHHMM(cfg.CloseTime)
	if !openOK || !closeOK {
		open, close_ = 0, 24*60
	}
	return &ClockOracle{
		loc:          loc,
		openMinute:   open,
		closeMinute:  close_,
		weekendsOpen: cfg.WeekendsOpen,
		override:     cfg.Override,
	}
}

func parseHHMM(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// IsOpen reports whether now falls within the configured window. An
// explicit override always reports open, matching spec.md's "not
// explicitly overridden" escape hatch for operators and tests.
func (o *ClockOracle) IsOpen(now time.Time) bool {
	if o.override {
		return true
	}
	local := now.In(o.loc)
	if !o.weekendsOpen {
		switch local.Weekday() {
		case time.Saturday, time.Sunday:
			return false
		}
	}
	minute := local.Hour()*60 + local.Minute()
	return minute >= o.openMinute && minute < o.closeMinute
}

// AlwaysOpen is an Oracle for tests and non-gated deployments.
type AlwaysOpen struct{}

func (AlwaysOpen) IsOpen(time.Time) bool { return true }

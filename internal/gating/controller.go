package gating

import (
	"github.com/ayushrajani07/g6-collector/internal/config"
)

var defaultProtectedFields = map[string]bool{
	"expiry_date":      true,
	"instrument_count": true,
}

// windowSample is one entry of the rolling window spec.md §4.6 names:
// "(parity_ok: bool, diff_fields: set, parity_hash)".
type windowSample struct {
	ParityOK   bool
	DiffFields map[string]bool
	Protected  bool
	Hash       string
}

// Decision is the controller's current mode/state-machine output.
type Decision struct {
	Mode              string
	Reason            string
	Canary            bool
	Promote           bool
	WindowSize        int
	ParityOkRatio     float64
	HashDistinct      int
	HashChurnRatio    float64
	ProtectedInWindow int
	ProtectedDiff     bool
	DiffCount         int
	OkStreak          int
	FailStreak        int
}

// Controller is the Parity & Shadow Gating Controller, spec.md §4.6.
// It compares a legacy-path sample against a candidate-path sample for
// each expiry, folds the result into a rolling window, and derives a
// promotion/canary decision from the 8-rule state machine.
type Controller struct {
	cfg     config.ShadowGatingConfig
	window  []windowSample
	okStreak   int
	failStreak int
}

// New builds a Controller from shadow-gating configuration.
func New(cfg config.ShadowGatingConfig) *Controller {
	return &Controller{cfg: cfg}
}

func protectedFields(extra []string) map[string]bool {
	set := make(map[string]bool, len(defaultProtectedFields)+len(extra))
	for k := range defaultProtectedFields {
		set[k] = true
	}
	for _, f := range extra {
		set[f] = true
	}
	return set
}

// DiffFields compares two samples field by field and returns the set
// of field names that differ.
func DiffFields(legacy, candidate ParitySample) map[string]bool {
	diff := map[string]bool{}
	if legacy.ExpiryDate != candidate.ExpiryDate {
		diff["expiry_date"] = true
	}
	if legacy.StrikeCount != candidate.StrikeCount {
		diff["strike_count"] = true
	}
	if legacy.InstrumentCount != candidate.InstrumentCount {
		diff["instrument_count"] = true
	}
	if !floatSliceEqual(legacy.StrikesHead, candidate.StrikesHead) {
		diff["strikes_head"] = true
	}
	if !coverageEqual(legacy.CoverageComponents, candidate.CoverageComponents) {
		diff["coverage"] = true
	}
	if legacy.PersistOptionCount != candidate.PersistOptionCount {
		diff["persist_count"] = true
	}
	if !floatNear(legacy.SyntheticPCR, candidate.SyntheticPCR, 1e-9) {
		diff["synthetic_pcr"] = true
	}
	return diff
}

func floatSliceEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !floatNear(a[i], b[i], 1e-9) {
			return false
		}
	}
	return true
}

func coverageEqual(a, b map[string]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok || !floatNear(v, bv, 1e-9) {
			return false
		}
	}
	return true
}

func floatNear(a, b, eps float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps
}

// ObservePair folds one expiry's legacy/candidate comparison into the
// rolling window and updates the ok/fail streak counters.
func (c *Controller) ObservePair(legacy, candidate ParitySample) windowSample {
	diff := DiffFields(legacy, candidate)
	protectedSet := protectedFields(c.cfg.ProtectedFieldExtra)
	protected := false
	for f := range diff {
		if protectedSet[f] {
			protected = true
			break
		}
	}

	sample := windowSample{
		ParityOK:   len(diff) == 0,
		DiffFields: diff,
		Protected:  protected,
		Hash:       HashV2(candidate),
	}

	if sample.ParityOK {
		c.okStreak++
		c.failStreak = 0
	} else {
		c.failStreak++
		c.okStreak = 0
	}

	windowSize := c.cfg.ChurnWindow
	if windowSize <= 0 {
		windowSize = 200
	}
	c.window = append(c.window, sample)
	if len(c.window) > windowSize {
		c.window = c.window[len(c.window)-windowSize:]
	}
	return sample
}

// Decide evaluates the 8-rule mode/state transition table of
// spec.md §4.6 against the controller's current rolling window.
func (c *Controller) Decide() Decision {
	d := Decision{Mode: c.cfg.Mode}
	if c.cfg.Mode == "" || c.cfg.Mode == "off" {
		d.Mode = "off"
		d.Reason = "disabled"
		return d
	}

	n := len(c.window)
	d.WindowSize = n
	if n == 0 {
		d.Reason = "insufficient_samples"
		return d
	}

	latest := c.window[n-1]
	d.ProtectedDiff = latest.Protected
	d.DiffCount = len(latest.DiffFields)

	minSamples := c.cfg.MinSamples
	if minSamples <= 0 {
		minSamples = 30
	}
	if n < minSamples {
		d.Reason = "insufficient_samples"
		return d
	}

	distinct := map[string]struct{}{}
	okCount := 0
	protectedCount := 0
	for _, s := range c.window {
		distinct[s.Hash] = struct{}{}
		if s.ParityOK {
			okCount++
		}
		if s.Protected {
			protectedCount++
		}
	}
	d.HashDistinct = len(distinct)
	d.HashChurnRatio = float64(len(distinct)) / float64(n)
	d.ParityOkRatio = float64(okCount) / float64(n)
	d.ProtectedInWindow = protectedCount
	d.OkStreak = c.okStreak
	d.FailStreak = c.failStreak

	// protected_block takes priority over the window-level rollback
	// checks below: a protected-field diff on the current sample blocks
	// regardless of churn/rollback ratios, per spec.md §4.6's numbered
	// rule order (2. protected_block before 3. rollback_churn and
	// 4. rollback_protected).
	if latest.Protected {
		d.Reason = "protected_block"
		return d
	}

	churnThreshold := c.cfg.ChurnRollbackRatio
	if churnThreshold <= 0 {
		churnThreshold = 0.5
	}
	if d.HashChurnRatio >= churnThreshold {
		d.Reason = "rollback_churn"
		return d
	}

	protectedLimit := c.cfg.ProtectedDiffLimit
	if protectedLimit <= 0 {
		protectedLimit = 3
	}
	if protectedCount >= protectedLimit {
		d.Reason = "rollback_protected"
		return d
	}

	canaryTarget := c.cfg.CanaryTarget
	if canaryTarget <= 0 {
		canaryTarget = 0.97
	}
	parityTarget := c.cfg.ParityTarget
	if parityTarget <= 0 {
		parityTarget = 0.99
	}
	okHysteresis := c.cfg.OkHysteresis
	if okHysteresis <= 0 {
		okHysteresis = 10
	}
	failHysteresis := c.cfg.FailHysteresis
	if failHysteresis <= 0 {
		failHysteresis = 5
	}

	canaryEligible := d.ParityOkRatio >= canaryTarget
	if c.cfg.Mode == "canary" || c.cfg.Mode == "promote" {
		d.Canary = canaryEligible
	}

	if c.cfg.Mode == "promote" {
		d.Promote = d.Canary && d.ParityOkRatio >= parityTarget && d.OkStreak >= okHysteresis
	}

	if (c.cfg.Mode == "canary" || c.cfg.Mode == "promote") && d.FailStreak >= failHysteresis {
		d.Reason = "fail_hysteresis"
		d.Canary = false
		d.Promote = false
	} else {
		d.Reason = "waiting_hysteresis"
	}

	if c.cfg.ForceDemote {
		d.Canary = false
		d.Promote = false
	}
	return d
}

// InCanaryScope reports whether index should run under canary per
// spec.md §4.6: an explicit allowlist entry wins over percentage
// sampling regardless of the configured percent.
func InCanaryScope(cfg config.ShadowGatingConfig, index string) bool {
	if len(cfg.CanaryAllowlist) > 0 {
		for _, name := range cfg.CanaryAllowlist {
			if name == index {
				return true
			}
		}
		return false
	}
	pct := cfg.CanaryPercent
	if pct <= 0 {
		return false
	}
	if pct >= 100 {
		return true
	}
	return bucketPercent(index) < pct
}

// bucketPercent maps an index name deterministically into [0,100) using
// a cheap FNV-1a style fold, so the same index always lands in the same
// canary bucket across restarts without needing persisted state.
func bucketPercent(index string) float64 {
	var h uint32 = 2166136261
	for i := 0; i < len(index); i++ {
		h ^= uint32(index[i])
		h *= 16777619
	}
	return float64(h%10000) / 100.0
}

package expiry

// Overview is the per-index, per-cycle snapshot assembled by the
// orchestrator once all of an index's expiries have completed
// (spec.md §3.3).
type Overview struct {
	Index string

	// PCR maps rule bucket to put/call ratio. Open Question resolution
	// (see DESIGN.md): 0 when both call and put open interest are 0
	// (no contracts traded, not a ratio); PCRDefined[rule] is false
	// when call OI is 0 but put OI is nonzero, rather than reporting
	// an arbitrary large number.
	PCR        map[Rule]float64
	PCRDefined map[Rule]bool

	ExpiriesExpected  int
	ExpiriesCollected int

	ExpectedMask  int
	CollectedMask int
	MissingMask   int // ExpectedMask &^ CollectedMask

	DayWidthSec int64
}

// NewOverview builds an empty Overview for an index.
func NewOverview(index string) *Overview {
	return &Overview{
		Index:      index,
		PCR:        make(map[Rule]float64),
		PCRDefined: make(map[Rule]bool),
	}
}

// ComputeMissingMask derives MissingMask from ExpectedMask and
// CollectedMask, per spec.md §3.3.
func (o *Overview) ComputeMissingMask() {
	o.MissingMask = o.ExpectedMask &^ o.CollectedMask
}

// PutCallRatio computes a PCR value for a bucket and records whether it
// is well-defined, applying the zero-denominator convention above.
func PutCallRatio(putOI, callOI int64) (ratio float64, defined bool) {
	if putOI == 0 && callOI == 0 {
		return 0, true
	}
	if callOI == 0 {
		return 0, false
	}
	return float64(putOI) / float64(callOI), true
}

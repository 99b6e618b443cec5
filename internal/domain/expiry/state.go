// Package expiry defines the unit of work flowing through the pipeline
// executor: ExpiryState, its structured error records, and the overview
// snapshot assembled once all expiries for an index have completed.
package expiry

import "sort"

// Rule is one of the four expiry-selection tokens. Bit values mirror
// spec.md §3.1 so masks can be ORed together cheaply.
type Rule string

const (
	ThisWeek  Rule = "this_week"
	NextWeek  Rule = "next_week"
	ThisMonth Rule = "this_month"
	NextMonth Rule = "next_month"
)

// Bit returns the mask bit for a rule, or 0 for an unrecognised token.
func (r Rule) Bit() int {
	switch r {
	case ThisWeek:
		return 1
	case NextWeek:
		return 2
	case ThisMonth:
		return 4
	case NextMonth:
		return 8
	default:
		return 0
	}
}

// OptionType distinguishes calls from puts.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// Instrument is a single option contract identified by id.
type Instrument struct {
	ID         string
	Strike     float64
	OptionType OptionType
	Symbol     string
}

// Enriched carries a quote plus, once computed, IV and Greeks for one
// instrument.
type Enriched struct {
	Price        float64
	Bid          float64
	Ask          float64
	Volume       int64
	OpenInterest int64
	TimestampSec int64

	IV    float64
	IVSet bool

	Delta, Gamma, Theta, Vega, Rho float64
	GreeksSet                      bool
}

// Coverage is written by the coverage phase (§4.4.7).
type Coverage struct {
	StrikeCoverageRatio float64
	FieldCoverage       map[string]float64
}

// RegimeClassification is written by the classify phase (§4.4.11).
type RegimeClassification struct {
	Regime string
	Tag    string
}

// Snapshot is the versioned outward-facing structure written by the
// snapshot phase (§4.4.12).
type Snapshot struct {
	Version             int
	Index               string
	Rule                Rule
	ExpiryDate          string
	OptionCount         int
	SyntheticPCR        float64
	SyntheticPCRDefined bool
}

// ExpiryRec is the summary record accumulated across coverage, classify,
// and snapshot. Per invariant I5, phases only append or annotate it.
type ExpiryRec struct {
	Coverage       Coverage
	Classification RegimeClassification
	Snapshot       Snapshot
}

// Flags are the transient per-expiry markers named in spec.md §3.1.
type Flags struct {
	Fabricated       bool
	Salvaged         bool
	Persisted        bool
	ValidationFailed bool
	Partial          bool
}

// ExpiryState is the unit of work flowing through the pipeline. It is
// created by the orchestrator for one (index, rule) pair, mutated only
// by the currently executing phase, and discarded after summarize. It
// is never shared concurrently with another worker.
type ExpiryState struct {
	Index      string
	Rule       Rule
	ExpiryDate string // empty iff not yet resolved
	HasExpiry  bool

	Strikes []float64

	Instruments []Instrument
	Enriched    map[string]Enriched

	ExpiryRec ExpiryRec

	Errors       []string
	ErrorRecords []PhaseErrorRecord

	Flags Flags

	Meta map[string]interface{}
}

// New creates an empty ExpiryState for the given index/rule pair.
func New(index string, rule Rule) *ExpiryState {
	return &ExpiryState{
		Index:    index,
		Rule:     rule,
		Enriched: make(map[string]Enriched),
		Meta:     make(map[string]interface{}),
	}
}

// InstrumentIDs returns the identifier set of Instruments, used to check
// invariant I3 (enriched keys subset of instrument ids).
func (s *ExpiryState) InstrumentIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(s.Instruments))
	for _, in := range s.Instruments {
		ids[in.ID] = struct{}{}
	}
	return ids
}

// InstrumentIDsOrdered returns Instruments' ids in their current slice
// order, for callers (e.g. the enrich phase) that need a stable
// argument list rather than a set.
func (s *ExpiryState) InstrumentIDsOrdered() []string {
	ids := make([]string, len(s.Instruments))
	for i, in := range s.Instruments {
		ids[i] = in.ID
	}
	return ids
}

// StrikesAscending reports whether Strikes is strictly ascending with no
// duplicates, per invariant I2/I7.
func (s *ExpiryState) StrikesAscending() bool {
	return sort.SliceIsSorted(s.Strikes, func(i, j int) bool { return s.Strikes[i] < s.Strikes[j] }) &&
		noDuplicates(s.Strikes)
}

func noDuplicates(xs []float64) bool {
	for i := 1; i < len(xs); i++ {
		if xs[i] == xs[i-1] {
			return false
		}
	}
	return true
}

// NoDuplicateInstrumentIDs checks invariant I4.
func (s *ExpiryState) NoDuplicateInstrumentIDs() bool {
	seen := make(map[string]struct{}, len(s.Instruments))
	for _, in := range s.Instruments {
		if _, ok := seen[in.ID]; ok {
			return false
		}
		seen[in.ID] = struct{}{}
	}
	return true
}

// EnrichedSubsetOfInstruments checks invariant I3 (property 6 in §8).
func (s *ExpiryState) EnrichedSubsetOfInstruments() bool {
	ids := s.InstrumentIDs()
	for id := range s.Enriched {
		if _, ok := ids[id]; !ok {
			return false
		}
	}
	return true
}

// ErrorsConsistent checks invariant I6 (property 1 in §8): |errors| ==
// |error_records| and outcome tokens line up positionally.
func (s *ExpiryState) ErrorsConsistent() bool {
	if len(s.Errors) != len(s.ErrorRecords) {
		return false
	}
	for i, tok := range s.Errors {
		if s.ErrorRecords[i].OutcomeToken != tok {
			return false
		}
	}
	return true
}

// AppendError records a legacy token and its structured record in
// lockstep, preserving invariant I6.
func (s *ExpiryState) AppendError(rec PhaseErrorRecord) {
	s.Errors = append(s.Errors, rec.OutcomeToken)
	s.ErrorRecords = append(s.ErrorRecords, rec)
}

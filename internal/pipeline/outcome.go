// Package pipeline drives an ordered list of phases over an
// ExpiryState (spec.md §4.3), mapping the taxonomy errors phases raise
// onto final outcomes, applying the bounded retry policy, and emitting
// per-phase and per-cycle metrics. Grounded on spec.md §4.3/§9's
// explicit redesign guidance: exceptions are the phase-authoring
// surface, but the executor itself never lets them escape — they are
// captured and mapped onto the Outcome sum type below.
package pipeline

import "github.com/ayushrajani07/g6-collector/internal/domain/expiry"

// Outcome is the closed set of final-outcome tokens a phase execution
// sequence may resolve to, per spec.md §4.3's classification table.
type Outcome string

const (
	OutcomeOK                   Outcome = "ok"
	OutcomeAbort                Outcome = "abort"
	OutcomeRecoverable          Outcome = "recoverable"
	OutcomeRecoverableExhausted Outcome = "recoverable_exhausted"
	OutcomeFatal                Outcome = "fatal"
	OutcomeUnknown              Outcome = "unknown"
)

// classify maps a phase error (or nil) to its outcome and the
// expiry.Classification token recorded on the structured error record.
// retryExhausted is consulted only for PhaseRecoverable.
func classify(err error, retryExhausted bool) (Outcome, expiry.Classification) {
	if err == nil {
		return OutcomeOK, ""
	}
	switch err.(type) {
	case *expiry.PhaseAbort:
		return OutcomeAbort, expiry.ClassAbort
	case *expiry.PhaseRecoverable:
		if retryExhausted {
			return OutcomeRecoverableExhausted, expiry.ClassRecoverableExhausted
		}
		return OutcomeRecoverable, expiry.ClassRecoverable
	case *expiry.PhaseFatal:
		return OutcomeFatal, expiry.ClassFatal
	default:
		return OutcomeUnknown, expiry.ClassUnknown
	}
}

// reasonOf extracts the taxonomy reason token from a phase error, or
// "" for unknown errors (whose message is used instead).
func reasonOf(err error) string {
	switch e := err.(type) {
	case *expiry.PhaseAbort:
		return e.Reason
	case *expiry.PhaseRecoverable:
		return e.Reason
	case *expiry.PhaseFatal:
		return e.Reason
	default:
		return ""
	}
}

// stopsPipeline reports whether outcome halts remaining phases for
// this expiry. Only "ok" continues.
func stopsPipeline(o Outcome) bool { return o != OutcomeOK }

// retryable reports whether err is a PhaseRecoverable, the only kind
// that triggers another attempt of the same phase. Whether attempts
// remain is checked by the caller.
func retryable(err error) bool {
	_, ok := err.(*expiry.PhaseRecoverable)
	return ok
}

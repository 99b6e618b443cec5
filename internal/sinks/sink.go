// Package sinks implements the persist phase's output contract
// (spec.md §4.4.10): append-only, additive-columns, stable ce_*/pe_*
// naming. No example repo in the retrieval pack ships a row-oriented
// storage sink, so this package is grounded directly on spec.md's
// contract; it uses encoding/csv from the standard library because no
// third-party CSV writer appears anywhere in the pack (documented as a
// deliberate stdlib choice in DESIGN.md).
package sinks

import (
	"context"
	"fmt"
)

// OptionSide carries one side (call or put) of a strike row. Zero
// value (IsSet=false) means that side had no enriched record for the
// strike — written as empty CSV fields, never fabricated.
type OptionSide struct {
	IsSet bool

	Price, Bid, Ask     float64
	Volume, OpenInterest int64
	IV                  float64
	IVSet               bool
	Delta, Gamma, Theta, Vega, Rho float64
	GreeksSet           bool
}

// Row is one persisted strike for one expiry: the call/put pair
// sharing a strike, timestamp, and expiry identity.
type Row struct {
	Index      string
	Rule       string
	ExpiryDate string
	Strike     float64
	TimestampSec int64

	CE OptionSide
	PE OptionSide
}

// Sink is the persist phase's write target. Implementations must be
// append-only: existing rows are never rewritten or deleted.
type Sink interface {
	Write(ctx context.Context, rows []Row) error
	Close() error
}

// ErrPermanent wraps a sink error the persist phase must treat as
// PhaseFatal("persist_sink") rather than retrying, per spec.md §4.4.10.
type ErrPermanent struct {
	Cause error
}

func (e *ErrPermanent) Error() string { return fmt.Sprintf("sink: permanent write failure: %v", e.Cause) }
func (e *ErrPermanent) Unwrap() error { return e.Cause }

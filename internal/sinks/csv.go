package sinks

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// csvColumns is the stable, additive-only column set (spec.md
// §4.4.10's "additive columns, stable naming"). New fields must be
// appended at the end so existing readers parsing by index keep
// working; columns are never removed or reordered.
var csvColumns = []string{
	"timestamp", "index", "rule", "expiry_date", "strike",
	"ce_price", "ce_bid", "ce_ask", "ce_volume", "ce_oi", "ce_iv",
	"ce_delta", "ce_gamma", "ce_theta", "ce_vega", "ce_rho",
	"pe_price", "pe_bid", "pe_ask", "pe_volume", "pe_oi", "pe_iv",
	"pe_delta", "pe_gamma", "pe_theta", "pe_vega", "pe_rho",
}

// CSVSink appends rows to one CSV file per process, writing the
// header once when the file is newly created.
type CSVSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *csv.Writer
}

// NewCSVSink opens (or creates) the CSV file at path in append mode.
func NewCSVSink(path string) (*CSVSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("csv sink: mkdir: %w", err)
	}
	info, statErr := os.Stat(path)
	needsHeader := statErr != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("csv sink: open: %w", err)
	}

	w := csv.NewWriter(f)
	s := &CSVSink{path: path, f: f, w: w}
	if needsHeader {
		if err := w.Write(csvColumns); err != nil {
			f.Close()
			return nil, fmt.Errorf("csv sink: write header: %w", err)
		}
		w.Flush()
	}
	return s, nil
}

// Write appends rows. A write error is wrapped as ErrPermanent so the
// persist phase maps it to PhaseFatal without retrying indefinitely.
func (s *CSVSink) Write(_ context.Context, rows []Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		record := []string{
			strconv.FormatInt(r.TimestampSec, 10),
			r.Index,
			r.Rule,
			r.ExpiryDate,
			strconv.FormatFloat(r.Strike, 'f', 2, 64),
			sideField(r.CE, fieldPrice),
			sideField(r.CE, fieldBid),
			sideField(r.CE, fieldAsk),
			sideField(r.CE, fieldVolume),
			sideField(r.CE, fieldOI),
			sideField(r.CE, fieldIV),
			sideField(r.CE, fieldDelta),
			sideField(r.CE, fieldGamma),
			sideField(r.CE, fieldTheta),
			sideField(r.CE, fieldVega),
			sideField(r.CE, fieldRho),
			sideField(r.PE, fieldPrice),
			sideField(r.PE, fieldBid),
			sideField(r.PE, fieldAsk),
			sideField(r.PE, fieldVolume),
			sideField(r.PE, fieldOI),
			sideField(r.PE, fieldIV),
			sideField(r.PE, fieldDelta),
			sideField(r.PE, fieldGamma),
			sideField(r.PE, fieldTheta),
			sideField(r.PE, fieldVega),
			sideField(r.PE, fieldRho),
		}
		if err := s.w.Write(record); err != nil {
			return &ErrPermanent{Cause: err}
		}
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return &ErrPermanent{Cause: err}
	}
	return nil
}

// Close flushes and closes the underlying file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	return s.f.Close()
}

type sideFieldKind int

const (
	fieldPrice sideFieldKind = iota
	fieldBid
	fieldAsk
	fieldVolume
	fieldOI
	fieldIV
	fieldDelta
	fieldGamma
	fieldTheta
	fieldVega
	fieldRho
)

// sideField renders one column for an OptionSide, leaving the field
// blank (never fabricated) when the side or the specific value was
// never set.
func sideField(s OptionSide, kind sideFieldKind) string {
	if !s.IsSet {
		return ""
	}
	switch kind {
	case fieldPrice:
		return strconv.FormatFloat(s.Price, 'f', 4, 64)
	case fieldBid:
		return strconv.FormatFloat(s.Bid, 'f', 4, 64)
	case fieldAsk:
		return strconv.FormatFloat(s.Ask, 'f', 4, 64)
	case fieldVolume:
		return strconv.FormatInt(s.Volume, 10)
	case fieldOI:
		return strconv.FormatInt(s.OpenInterest, 10)
	case fieldIV:
		if !s.IVSet {
			return ""
		}
		return strconv.FormatFloat(s.IV, 'f', 6, 64)
	case fieldDelta:
		if !s.GreeksSet {
			return ""
		}
		return strconv.FormatFloat(s.Delta, 'f', 6, 64)
	case fieldGamma:
		if !s.GreeksSet {
			return ""
		}
		return strconv.FormatFloat(s.Gamma, 'f', 6, 64)
	case fieldTheta:
		if !s.GreeksSet {
			return ""
		}
		return strconv.FormatFloat(s.Theta, 'f', 6, 64)
	case fieldVega:
		if !s.GreeksSet {
			return ""
		}
		return strconv.FormatFloat(s.Vega, 'f', 6, 64)
	case fieldRho:
		if !s.GreeksSet {
			return ""
		}
		return strconv.FormatFloat(s.Rho, 'f', 6, 64)
	default:
		return ""
	}
}

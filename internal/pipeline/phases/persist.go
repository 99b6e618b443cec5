package phases

import (
	"context"

	"github.com/ayushrajani07/g6-collector/internal/domain/expiry"
	"github.com/ayushrajani07/g6-collector/internal/pipeline"
	"github.com/ayushrajani07/g6-collector/internal/resilience"
	"github.com/ayushrajani07/g6-collector/internal/sinks"
)

// SinkWriter is the narrow persist-phase dependency, satisfied by
// sinks.Sink; kept separate so tests can stub it without constructing
// a real sink.
type SinkWriter interface {
	Write(ctx context.Context, rows []sinks.Row) error
}

// Persist builds a phase that emits per-option rows to sink, bounded
// by internal/resilience's sink-write retry, per spec.md §4.4.10.
// Permanent failures map to PhaseFatal("persist_sink").
func Persist(sink SinkWriter, retryCfg resilience.SinkRetryConfig) pipeline.Phase {
	return pipeline.Phase{
		Name: "persist",
		Run: func(rc *pipeline.RunContext, state *expiry.ExpiryState) error {
			rows := rowsFromState(state)
			if len(rows) == 0 {
				return nil
			}
			err := resilience.Retry(rc.Ctx, retryCfg, func() error {
				return sink.Write(rc.Ctx, rows)
			})
			if err != nil {
				return expiry.NewFatal("persist_sink")
			}
			state.Flags.Persisted = true
			return nil
		},
	}
}

// rowsFromState pairs call/put enriched records sharing a strike into
// one sinks.Row, per the ce_*/pe_* stable naming contract.
func rowsFromState(state *expiry.ExpiryState) []sinks.Row {
	type pair struct {
		ce, pe *expiry.Instrument
	}
	byStrike := make(map[float64]*pair)
	for i := range state.Instruments {
		in := &state.Instruments[i]
		p, ok := byStrike[in.Strike]
		if !ok {
			p = &pair{}
			byStrike[in.Strike] = p
		}
		if in.OptionType == expiry.Put {
			p.pe = in
		} else {
			p.ce = in
		}
	}

	rows := make([]sinks.Row, 0, len(byStrike))
	for strike, p := range byStrike {
		row := sinks.Row{
			Index: state.Index, Rule: string(state.Rule), ExpiryDate: state.ExpiryDate, Strike: strike,
		}
		if p.ce != nil {
			if e, ok := state.Enriched[p.ce.ID]; ok {
				row.CE = toSide(e)
				row.TimestampSec = e.TimestampSec
			}
		}
		if p.pe != nil {
			if e, ok := state.Enriched[p.pe.ID]; ok {
				row.PE = toSide(e)
				if row.TimestampSec == 0 {
					row.TimestampSec = e.TimestampSec
				}
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func toSide(e expiry.Enriched) sinks.OptionSide {
	return sinks.OptionSide{
		IsSet: true, Price: e.Price, Bid: e.Bid, Ask: e.Ask,
		Volume: e.Volume, OpenInterest: e.OpenInterest,
		IV: e.IV, IVSet: e.IVSet,
		Delta: e.Delta, Gamma: e.Gamma, Theta: e.Theta, Vega: e.Vega, Rho: e.Rho, GreeksSet: e.GreeksSet,
	}
}

package phases

import (
	"github.com/ayushrajani07/g6-collector/internal/domain/expiry"
	"github.com/ayushrajani07/g6-collector/internal/pipeline"
	"github.com/ayushrajani07/g6-collector/internal/provider"
)

// Enrich implements spec.md §4.4.4: fetch quotes for the filtered
// instruments and build the enriched map (price/bid/ask/volume/open
// interest/timestamp).
var Enrich = pipeline.Phase{
	Name: "enrich",
	Run: func(rc *pipeline.RunContext, state *expiry.ExpiryState) error {
		ids := state.InstrumentIDsOrdered()
		quotes, err := rc.Provider.GetQuotes(rc.Ctx, ids)
		if err != nil {
			if err == provider.ErrNoQuotes {
				return expiry.NewRecoverable("enrich_no_quotes_domain")
			}
			return expiry.NewRecoverable("enrich_no_quotes_domain")
		}
		if len(quotes) == 0 {
			return expiry.NewRecoverable("enrich_no_quotes_domain")
		}

		enriched := make(map[string]expiry.Enriched, len(quotes))
		for id, q := range quotes {
			enriched[id] = expiry.Enriched{
				Price:        q.LastPrice,
				Bid:          q.Bid,
				Ask:          q.Ask,
				Volume:       q.Volume,
				OpenInterest: q.OpenInterest,
				TimestampSec: q.TimestampSec,
			}
		}
		if len(enriched) == 0 {
			return expiry.NewRecoverable("enrich_empty")
		}

		state.Enriched = enriched
		return nil
	},
}

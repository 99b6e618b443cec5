package gating

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ayushrajani07/g6-collector/internal/config"
	"github.com/ayushrajani07/g6-collector/internal/domain/expiry"
	"github.com/ayushrajani07/g6-collector/internal/logging"
	"github.com/ayushrajani07/g6-collector/internal/metrics"
)

// LegacySource supplies the comparison sample for one (index, rule)
// pair from whatever path the deployment considers authoritative
// today. Shadow gating only runs when a legacy source is configured;
// with none attached, Observe is a no-op, matching spec.md §4.6's
// "runs only when a new pipeline is executing alongside the legacy
// one."
type LegacySource interface {
	Sample(ctx context.Context, index string, rule expiry.Rule) (ParitySample, bool)
}

// ExpiryStateObserver adapts a Controller to the orchestrator's
// GatingObserver interface (structural; no import of the orchestrator
// package is needed).
type ExpiryStateObserver struct {
	cfg     config.ShadowGatingConfig
	legacy  LegacySource
	log     *logging.Logger
	handles *metrics.Handles

	controllers map[string]*Controller // one window per (index, rule)
}

// NewExpiryStateObserver builds an observer. legacy may be nil, in
// which case Observe never compares and never decides.
func NewExpiryStateObserver(cfg config.ShadowGatingConfig, legacy LegacySource, log *logging.Logger, handles *metrics.Handles) *ExpiryStateObserver {
	return &ExpiryStateObserver{
		cfg:         cfg,
		legacy:      legacy,
		log:         log,
		handles:     handles,
		controllers: make(map[string]*Controller),
	}
}

func (o *ExpiryStateObserver) controllerFor(index string, rule expiry.Rule) *Controller {
	key := index + "|" + string(rule)
	c, ok := o.controllers[key]
	if !ok {
		c = New(o.cfg)
		o.controllers[key] = c
	}
	return c
}

// Observe implements orchestrator.GatingObserver.
func (o *ExpiryStateObserver) Observe(ctx context.Context, index string, rule expiry.Rule, state *expiry.ExpiryState) {
	if o.legacy == nil || o.cfg.Mode == "" || o.cfg.Mode == "off" {
		return
	}
	legacySample, ok := o.legacy.Sample(ctx, index, rule)
	if !ok {
		return
	}
	candidateSample := ExtractSample(state)

	c := o.controllerFor(index, rule)
	sample := c.ObservePair(legacySample, candidateSample)
	decision := c.Decide()

	if o.handles != nil {
		o.handles.ParityOkRatio.Set(decision.ParityOkRatio)
		o.handles.ParityHashChurnRatio.Set(decision.HashChurnRatio)
		o.handles.ShadowGatingDecisionInfo.Reset()
		o.handles.ShadowGatingDecisionInfo.WithLabelValues(decision.Mode, decision.Reason).Set(1)
	}

	if o.log != nil {
		entry := o.log.WithFields(logrus.Fields{
			"index":  index,
			"rule":   string(rule),
			"ok":     sample.ParityOK,
			"hash":   sample.Hash,
			"reason": decision.Reason,
			"mode":   decision.Mode,
		})
		if sample.Protected {
			entry.Warn("gating protected diff")
		} else {
			entry.Info("gating observe")
		}
	}
}

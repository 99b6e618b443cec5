package panels

import (
	"github.com/ayushrajani07/g6-collector/internal/config"
	"github.com/ayushrajani07/g6-collector/internal/fingerprint"
)

// ConfigSnapshot is pipeline_config_snapshot.json's shape (spec.md
// §4.7 item 6): active env-driven pipeline flags plus a content hash
// over the sorted flag mapping.
type ConfigSnapshot struct {
	Flags       map[string]interface{} `json:"flags"`
	ContentHash string                  `json:"content_hash"`
}

// BuildConfigSnapshot projects the subset of PipelineConfig spec.md
// §6.5 names as the pipeline section's flags.
func BuildConfigSnapshot(cfg config.PipelineConfig) (ConfigSnapshot, error) {
	flags := map[string]interface{}{
		"retry_enabled":                    cfg.RetryEnabled,
		"retry_max_attempts":               cfg.RetryMaxAttempts,
		"retry_base_ms":                    cfg.RetryBaseMs,
		"retry_jitter_ms":                  cfg.RetryJitterMs,
		"phase_metrics_enabled":            cfg.PhaseMetricsEnabled,
		"rolling_window":                   cfg.RollingWindow,
		"parity_extended":                  cfg.ParityExtended,
		"parity_rolling_window":            cfg.ParityRollingWindow,
		"parity_alert_anomaly_threshold":   cfg.ParityAlertAnomalyThreshold,
		"parity_alert_anomaly_min_total":   cfg.ParityAlertAnomalyMinTotal,
		"panel_export_enabled":             cfg.PanelExportEnabled,
		"panel_export_history_enabled":     cfg.PanelExportHistoryEnabled,
		"panel_export_history_limit":       cfg.PanelExportHistoryLimit,
		"panel_export_hash":                cfg.PanelExportHash,
		"config_snapshot":                  cfg.ConfigSnapshot,
		"trends_enabled":                   cfg.TrendsEnabled,
		"trends_limit":                     cfg.TrendsLimit,
	}
	hash, err := fingerprint.Truncated(flags, 16)
	if err != nil {
		return ConfigSnapshot{}, err
	}
	return ConfigSnapshot{Flags: flags, ContentHash: hash}, nil
}

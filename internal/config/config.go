// Package config loads the immutable settings record consumed by every
// other package. It is assembled once per process (or once per explicit
// reload) from environment variables, an optional .env overlay, and an
// optional YAML document describing the sections of spec.md §6.5.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment mirrors the teacher's three-way deployment split.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// ExpiryRule enumerates the four rule tokens from spec.md §3.1.
type ExpiryRule string

const (
	RuleThisWeek  ExpiryRule = "this_week"
	RuleNextWeek  ExpiryRule = "next_week"
	RuleThisMonth ExpiryRule = "this_month"
	RuleNextMonth ExpiryRule = "next_month"
)

// RuleBit returns the bit value (1,2,4,8) for a rule token, or 0 if unknown.
func RuleBit(r ExpiryRule) int {
	switch r {
	case RuleThisWeek:
		return 1
	case RuleNextWeek:
		return 2
	case RuleThisMonth:
		return 4
	case RuleNextMonth:
		return 8
	default:
		return 0
	}
}

// CollectionConfig is spec.md §6.5 "collection".
type CollectionConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// IndexParams is spec.md §6.5 "index_params" entries.
type IndexParams struct {
	Expiries   []ExpiryRule `yaml:"expiries"`
	StrikesOTM int          `yaml:"strikes_otm"`
	StrikesITM int          `yaml:"strikes_itm"`
	Enable     bool         `yaml:"enable"`
}

// GreeksConfig is spec.md §6.5 "greeks".
type GreeksConfig struct {
	Enabled         bool    `yaml:"enabled"`
	EstimateIV      bool    `yaml:"estimate_iv"`
	RiskFreeRate    float64 `yaml:"risk_free_rate"`
	IVMaxIterations int     `yaml:"iv_max_iterations"`
	IVMin           float64 `yaml:"iv_min"`
	IVMax           float64 `yaml:"iv_max"`
	IVPrecision     float64 `yaml:"iv_precision"`
	FallbackIV      float64 `yaml:"fallback_iv"`
}

// PipelineConfig is spec.md §6.5 "pipeline".
type PipelineConfig struct {
	RetryEnabled      bool    `yaml:"retry_enabled"`
	RetryMaxAttempts  int     `yaml:"retry_max_attempts"`
	RetryBaseMs       int     `yaml:"retry_base_ms"`
	RetryJitterMs     int     `yaml:"retry_jitter_ms"`
	PhaseMetricsEnabled bool  `yaml:"phase_metrics_enabled"`
	RollingWindow     int     `yaml:"rolling_window"`

	ParityExtended               bool     `yaml:"parity_extended"`
	ParityRollingWindow           int      `yaml:"parity_rolling_window"`
	ParityAlertAnomalyThreshold   float64  `yaml:"parity_alert_anomaly_threshold"`
	ParityAlertAnomalyMinTotal    int      `yaml:"parity_alert_anomaly_min_total"`

	RedactPatterns    []string `yaml:"redact_patterns"`
	RedactReplacement string   `yaml:"redact_replacement"`

	PanelExportEnabled        bool `yaml:"panel_export_enabled"`
	PanelExportHistoryEnabled bool `yaml:"panel_export_history_enabled"`
	PanelExportHistoryLimit   int  `yaml:"panel_export_history_limit"`
	PanelExportHash           bool `yaml:"panel_export_hash"`
	ConfigSnapshot            bool `yaml:"config_snapshot"`
	TrendsEnabled             bool `yaml:"trends_enabled"`
	TrendsLimit               int  `yaml:"trends_limit"`

	StructuredErrorsEnabled bool `yaml:"structured_errors_enabled"`
	StdoutStructuredErrors  bool `yaml:"stdout_structured_errors"`

	// SalvageEnabled gates phase 4.4.6.
	SalvageEnabled bool `yaml:"salvage_enabled"`
	// MinVolume / MinOpenInterest gate phase 4.4.3.
	MinVolume              int     `yaml:"min_volume"`
	MinOpenInterest        int     `yaml:"min_open_interest"`
	VolumePercentileFilter float64 `yaml:"volume_percentile_filter"`
	// MinStrikeCoverage gates phase 4.4.5.
	MinStrikeCoverage float64 `yaml:"min_strike_coverage"`
	// AllowFabricatedThroughValidate resolves the open question in spec.md §9.
	AllowFabricatedThroughValidate bool `yaml:"allow_fabricated_through_validate"`
	// LegacySymbolMatching enables non-strict root matching in fetch (§4.4.2).
	LegacySymbolMatching bool `yaml:"legacy_symbol_matching"`

	TracingEnabled bool `yaml:"tracing_enabled"`
}

// ShadowGatingConfig is spec.md §6.5 "shadow_gating".
type ShadowGatingConfig struct {
	Mode                string   `yaml:"mode"` // off|dryrun|canary|promote
	CanaryTarget        float64  `yaml:"canary_target"`
	ParityTarget        float64  `yaml:"parity_target"`
	OkHysteresis        int      `yaml:"ok_hysteresis"`
	FailHysteresis      int      `yaml:"fail_hysteresis"`
	ChurnRollbackRatio  float64  `yaml:"churn_rollback_ratio"`
	ProtectedDiffLimit  int      `yaml:"protected_diff_limit"`
	ProtectedFieldExtra []string `yaml:"protected_fields_extra"`
	ChurnWindow         int      `yaml:"churn_window"`
	ForceDemote         bool     `yaml:"force_demote"`
	Authoritative       bool     `yaml:"authoritative"`
	MinSamples          int      `yaml:"min_samples"`
	CanaryAllowlist     []string `yaml:"canary_allowlist"`
	CanaryPercent       float64  `yaml:"canary_percent"`
}

// MetricsBatchConfig configures the counter batcher (spec.md §4.2 "Emission / batching").
type MetricsBatchConfig struct {
	Enabled        bool `yaml:"enabled"`
	IntervalMs     int  `yaml:"interval_ms"`
	MinSize        int  `yaml:"min_size"`
	MaxSize        int  `yaml:"max_size"`
	FlushThreshold int  `yaml:"flush_threshold"`
}

// MetricsConfig is spec.md §6.5 "metrics".
type MetricsConfig struct {
	EnableGroups          []string            `yaml:"enable_groups"`
	DisableGroups         []string            `yaml:"disable_groups"`
	StrictExceptions      bool                `yaml:"strict_exceptions"`
	Batch                 MetricsBatchConfig  `yaml:"batch"`
	CardinalityBaselinePath string            `yaml:"cardinality_baseline_path"`
	CardinalityGrowthPct  float64             `yaml:"cardinality_growth_percent"`
	FailOnDuplicate       bool                `yaml:"fail_on_duplicate"`
}

// MarketHoursConfig gates the orchestrator's cycle clock (spec.md §4.5
// "consult a market-hours oracle"). Times are wall-clock HH:MM in Zone.
type MarketHoursConfig struct {
	Zone         string `yaml:"zone"`
	OpenTime     string `yaml:"open_time"`
	CloseTime    string `yaml:"close_time"`
	WeekendsOpen bool   `yaml:"weekends_open"`
	Override     bool   `yaml:"override"`
}

// LifecycleConfig is spec.md §6.5 "lifecycle".
type LifecycleConfig struct {
	CompressionExtensions []string `yaml:"compression_extensions"`
	CompressionAgeSeconds int      `yaml:"compression_age_seconds"`
	MaxPerCycle           int      `yaml:"max_per_cycle"`
	RetentionDays         int      `yaml:"retention_days"`
	RetentionDeleteLimit  int      `yaml:"retention_delete_limit"`
}

// Config is the immutable settings record threaded through the process.
type Config struct {
	Env Environment

	LogLevel  string
	LogFormat string

	MetricsPort int
	HTTPPort    int

	PanelsDir string

	Collection    CollectionConfig
	IndexParams   map[string]IndexParams
	Greeks        GreeksConfig
	Pipeline      PipelineConfig
	ShadowGating  ShadowGatingConfig
	Metrics       MetricsConfig
	Lifecycle     LifecycleConfig
	MarketHours   MarketHoursConfig

	ShutdownTimeout time.Duration
	CycleDeadline   time.Duration
	MaxWorkers      int

	StrictMode bool

	unknownKeys []string
}

// UnknownKeys returns YAML keys encountered that are not part of the schema.
func (c *Config) UnknownKeys() []string { return c.unknownKeys }

// Default returns a Config populated with documented defaults and no indices.
func Default() *Config {
	return &Config{
		Env:       Development,
		LogLevel:  "info",
		LogFormat: "json",

		MetricsPort: 9090,
		HTTPPort:    8080,
		PanelsDir:   "panels",

		Collection: CollectionConfig{IntervalSeconds: 60},
		IndexParams: map[string]IndexParams{},
		Greeks: GreeksConfig{
			Enabled:         false,
			EstimateIV:      false,
			RiskFreeRate:    0.06,
			IVMaxIterations: 100,
			IVMin:           0.01,
			IVMax:           5.0,
			IVPrecision:     0.0005,
			FallbackIV:      0.25,
		},
		Pipeline: PipelineConfig{
			RetryEnabled:     false,
			RetryMaxAttempts: 3,
			RetryBaseMs:      50,
			RetryJitterMs:    0,
			PhaseMetricsEnabled: true,
			RollingWindow:    20,

			ParityExtended:             false,
			ParityRollingWindow:        200,
			ParityAlertAnomalyThreshold: 0.2,
			ParityAlertAnomalyMinTotal: 5,

			RedactReplacement: "[REDACTED]",

			PanelExportEnabled:        true,
			PanelExportHistoryEnabled: false,
			PanelExportHistoryLimit:   50,
			PanelExportHash:           true,
			ConfigSnapshot:            true,
			TrendsEnabled:             false,
			TrendsLimit:               200,

			StructuredErrorsEnabled: true,

			MinVolume:         0,
			MinOpenInterest:   0,
			MinStrikeCoverage: 0,
		},
		ShadowGating: ShadowGatingConfig{
			Mode:               "off",
			CanaryTarget:       0.97,
			ParityTarget:       0.99,
			OkHysteresis:       10,
			FailHysteresis:     5,
			ChurnRollbackRatio: 0.5,
			ProtectedDiffLimit: 3,
			ChurnWindow:        200,
			MinSamples:         30,
			CanaryPercent:      100,
		},
		Metrics: MetricsConfig{
			Batch: MetricsBatchConfig{
				Enabled:        false,
				IntervalMs:     1000,
				MinSize:        10,
				MaxSize:        500,
				FlushThreshold: 200,
			},
			CardinalityGrowthPct: 50,
		},
		Lifecycle: LifecycleConfig{
			RetentionDays:        7,
			RetentionDeleteLimit: 500,
			MaxPerCycle:          1000,
		},
		MarketHours: MarketHoursConfig{
			Zone:      "Asia/Kolkata",
			OpenTime:  "09:15",
			CloseTime: "15:30",
		},

		ShutdownTimeout: 15 * time.Second,
		CycleDeadline:   45 * time.Second,
		MaxWorkers:      4,
	}
}

// Load builds a Config from the environment, an optional .env overlay, and
// an optional YAML document named by G6_CONFIG_FILE (or configPath when
// non-empty). Unset env vars / missing YAML keys fall back to Default().
func Load(configPath string) (*Config, error) {
	envStr := strings.TrimSpace(os.Getenv("G6_ENV"))
	if envStr == "" {
		envStr = string(Development)
	}

	envFile := fmt.Sprintf("config/%s.env", envStr)
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := Default()
	cfg.Env = Environment(envStr)

	cfg.LogLevel = getEnv("G6_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("G6_LOG_FORMAT", cfg.LogFormat)
	cfg.MetricsPort = getIntEnv("G6_METRICS_PORT", cfg.MetricsPort)
	cfg.HTTPPort = getIntEnv("G6_HTTP_PORT", cfg.HTTPPort)
	cfg.PanelsDir = getEnv("G6_PANELS_DIR", cfg.PanelsDir)
	cfg.StrictMode = getBoolEnv("G6_STRICT", cfg.StrictMode)
	cfg.Collection.IntervalSeconds = getIntEnv("G6_COLLECTION_INTERVAL_SECONDS", cfg.Collection.IntervalSeconds)
	cfg.MarketHours.Override = getBoolEnv("G6_MARKET_HOURS_OVERRIDE", cfg.MarketHours.Override)

	if configPath == "" {
		configPath = strings.TrimSpace(os.Getenv("G6_CONFIG_FILE"))
	}
	if configPath != "" {
		if err := cfg.loadYAML(configPath); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// document is the raw YAML shape; unknown top-level keys are recorded
// rather than rejected outright so strict mode can decide the response.
type document struct {
	Collection   CollectionConfig       `yaml:"collection"`
	IndexParams  map[string]IndexParams `yaml:"index_params"`
	Greeks       GreeksConfig           `yaml:"greeks"`
	Pipeline     PipelineConfig         `yaml:"pipeline"`
	ShadowGating ShadowGatingConfig     `yaml:"shadow_gating"`
	Metrics      MetricsConfig          `yaml:"metrics"`
	Lifecycle    LifecycleConfig        `yaml:"lifecycle"`
	MarketHours  MarketHoursConfig      `yaml:"market_hours"`
}

func (c *Config) loadYAML(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	// Start from the current values so keys absent from the YAML keep them.
	doc := document{
		Collection:   c.Collection,
		Greeks:       c.Greeks,
		Pipeline:     c.Pipeline,
		ShadowGating: c.ShadowGating,
		Metrics:      c.Metrics,
		Lifecycle:    c.Lifecycle,
		MarketHours:  c.MarketHours,
	}
	if err := dec.Decode(&doc); err != nil {
		if c.StrictMode {
			return fmt.Errorf("decode config file (strict mode): %w", err)
		}
		c.unknownKeys = append(c.unknownKeys, err.Error())
		// Retry without strict field checking so recognised fields still load.
		if _, seekErr := f.Seek(0, 0); seekErr == nil {
			lenient := yaml.NewDecoder(f)
			_ = lenient.Decode(&doc)
		}
	}

	if doc.Collection.IntervalSeconds > 0 {
		c.Collection = doc.Collection
	}
	if len(doc.IndexParams) > 0 {
		c.IndexParams = doc.IndexParams
	}
	c.Greeks = mergeGreeks(c.Greeks, doc.Greeks)
	c.Pipeline = mergePipeline(c.Pipeline, doc.Pipeline)
	c.ShadowGating = mergeShadowGating(c.ShadowGating, doc.ShadowGating)
	c.Metrics = mergeMetrics(c.Metrics, doc.Metrics)
	if doc.Lifecycle.RetentionDays > 0 {
		c.Lifecycle = doc.Lifecycle
	}
	if doc.MarketHours.Zone != "" {
		c.MarketHours = doc.MarketHours
	}
	return nil
}

// Validate checks cross-field invariants documented in spec.md §6.5.
func (c *Config) Validate() error {
	if c.Collection.IntervalSeconds < 1 {
		return fmt.Errorf("collection.interval_seconds must be >= 1")
	}
	if c.Pipeline.RetryMaxAttempts < 1 {
		return fmt.Errorf("pipeline.retry_max_attempts must be >= 1")
	}
	if c.Pipeline.RollingWindow < 0 {
		return fmt.Errorf("pipeline.rolling_window must be >= 0")
	}
	if c.Lifecycle.RetentionDeleteLimit < 1 {
		c.Lifecycle.RetentionDeleteLimit = 1
	}
	switch c.ShadowGating.Mode {
	case "off", "dryrun", "canary", "promote":
	default:
		return fmt.Errorf("shadow_gating.mode must be one of off|dryrun|canary|promote, got %q", c.ShadowGating.Mode)
	}
	return nil
}

func mergeGreeks(base, in GreeksConfig) GreeksConfig {
	if in.IVMaxIterations > 0 {
		base.IVMaxIterations = in.IVMaxIterations
	}
	if in.IVMin > 0 {
		base.IVMin = in.IVMin
	}
	if in.IVMax > 0 {
		base.IVMax = in.IVMax
	}
	if in.IVPrecision > 0 {
		base.IVPrecision = in.IVPrecision
	}
	if in.RiskFreeRate != 0 {
		base.RiskFreeRate = in.RiskFreeRate
	}
	if in.FallbackIV > 0 {
		base.FallbackIV = in.FallbackIV
	}
	base.Enabled = in.Enabled
	base.EstimateIV = in.EstimateIV
	return base
}

func mergePipeline(base, in PipelineConfig) PipelineConfig {
	merged := base
	merged.RetryEnabled = in.RetryEnabled
	if in.RetryMaxAttempts > 0 {
		merged.RetryMaxAttempts = in.RetryMaxAttempts
	}
	if in.RetryBaseMs > 0 {
		merged.RetryBaseMs = in.RetryBaseMs
	}
	merged.RetryJitterMs = in.RetryJitterMs
	merged.PhaseMetricsEnabled = in.PhaseMetricsEnabled
	merged.RollingWindow = in.RollingWindow
	merged.ParityExtended = in.ParityExtended
	if in.ParityRollingWindow > 0 {
		merged.ParityRollingWindow = in.ParityRollingWindow
	}
	if in.ParityAlertAnomalyThreshold > 0 {
		merged.ParityAlertAnomalyThreshold = in.ParityAlertAnomalyThreshold
	}
	if in.ParityAlertAnomalyMinTotal > 0 {
		merged.ParityAlertAnomalyMinTotal = in.ParityAlertAnomalyMinTotal
	}
	if len(in.RedactPatterns) > 0 {
		merged.RedactPatterns = in.RedactPatterns
	}
	if in.RedactReplacement != "" {
		merged.RedactReplacement = in.RedactReplacement
	}
	merged.PanelExportEnabled = in.PanelExportEnabled
	merged.PanelExportHistoryEnabled = in.PanelExportHistoryEnabled
	if in.PanelExportHistoryLimit > 0 {
		merged.PanelExportHistoryLimit = in.PanelExportHistoryLimit
	}
	merged.PanelExportHash = in.PanelExportHash
	merged.ConfigSnapshot = in.ConfigSnapshot
	merged.TrendsEnabled = in.TrendsEnabled
	if in.TrendsLimit > 0 {
		merged.TrendsLimit = in.TrendsLimit
	} else if in.TrendsLimit == 0 && merged.TrendsLimit == 0 {
		merged.TrendsLimit = 1
	}
	merged.StructuredErrorsEnabled = in.StructuredErrorsEnabled
	merged.StdoutStructuredErrors = in.StdoutStructuredErrors
	merged.SalvageEnabled = in.SalvageEnabled
	merged.MinVolume = in.MinVolume
	merged.MinOpenInterest = in.MinOpenInterest
	merged.VolumePercentileFilter = in.VolumePercentileFilter
	merged.MinStrikeCoverage = in.MinStrikeCoverage
	merged.AllowFabricatedThroughValidate = in.AllowFabricatedThroughValidate
	merged.LegacySymbolMatching = in.LegacySymbolMatching
	merged.TracingEnabled = in.TracingEnabled
	return merged
}

func mergeShadowGating(base, in ShadowGatingConfig) ShadowGatingConfig {
	merged := in
	if merged.Mode == "" {
		merged.Mode = base.Mode
	}
	if merged.CanaryTarget == 0 {
		merged.CanaryTarget = base.CanaryTarget
	}
	if merged.ParityTarget == 0 {
		merged.ParityTarget = base.ParityTarget
	}
	if merged.OkHysteresis == 0 {
		merged.OkHysteresis = base.OkHysteresis
	}
	if merged.FailHysteresis == 0 {
		merged.FailHysteresis = base.FailHysteresis
	}
	if merged.ChurnRollbackRatio == 0 {
		merged.ChurnRollbackRatio = base.ChurnRollbackRatio
	}
	if merged.ProtectedDiffLimit == 0 {
		merged.ProtectedDiffLimit = base.ProtectedDiffLimit
	}
	if merged.ChurnWindow == 0 {
		merged.ChurnWindow = base.ChurnWindow
	}
	if merged.MinSamples == 0 {
		merged.MinSamples = base.MinSamples
	}
	if merged.CanaryPercent == 0 {
		merged.CanaryPercent = base.CanaryPercent
	}
	return merged
}

func mergeMetrics(base, in MetricsConfig) MetricsConfig {
	merged := base
	if len(in.EnableGroups) > 0 {
		merged.EnableGroups = in.EnableGroups
	}
	if len(in.DisableGroups) > 0 {
		merged.DisableGroups = in.DisableGroups
	}
	merged.StrictExceptions = in.StrictExceptions
	merged.FailOnDuplicate = in.FailOnDuplicate
	if in.CardinalityBaselinePath != "" {
		merged.CardinalityBaselinePath = in.CardinalityBaselinePath
	}
	if in.CardinalityGrowthPct > 0 {
		merged.CardinalityGrowthPct = in.CardinalityGrowthPct
	}
	b := in.Batch
	merged.Batch.Enabled = b.Enabled
	if b.IntervalMs > 0 {
		merged.Batch.IntervalMs = b.IntervalMs
	}
	if b.MinSize > 0 {
		merged.Batch.MinSize = b.MinSize
	}
	if b.MaxSize > 0 {
		merged.Batch.MaxSize = b.MaxSize
	}
	if b.FlushThreshold > 0 {
		merged.Batch.FlushThreshold = b.FlushThreshold
	}
	return merged
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

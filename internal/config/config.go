// Package config loads engine configuration from YAML and RESONANCE_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/s8ken/yseeku-platform-sub012/internal/adversarial"
	"github.com/s8ken/yseeku-platform-sub012/internal/audit"
	"github.com/s8ken/yseeku-platform-sub012/internal/judge"
	"github.com/s8ken/yseeku-platform-sub012/internal/resonance"
	"github.com/s8ken/yseeku-platform-sub012/internal/threshold"
)

// #region defaults

// Default returns the configuration every component uses out of the box.
func Default() Config {
	rc := resonance.DefaultConfig()
	ac := adversarial.DefaultConfig()
	jc := judge.DefaultConfig()
	au := audit.DefaultConfig()
	return Config{
		Composer: ComposerConfig{
			Parallel:        rc.Parallel,
			Weights:         rc.Weights,
			SentinelRM:      rc.SentinelRM,
			FallbackPenalty: rc.FallbackPenalty,
			Dampening:       rc.Dampening,
			TopEvidence:     rc.TopEvidence,
			ScaffoldMemory:  rc.ScaffoldMemory,
		},
		Adversarial: AdversarialConfig{
			Threshold:   ac.Threshold,
			DeepTimeout: ac.DeepTimeout,
		},
		Judge: JudgeConfig{
			RatePerSecond: jc.RatePerSecond,
			Burst:         jc.Burst,
			Timeout:       jc.Timeout,
			FlagScore:     jc.FlagScore,
		},
		Thresholds: threshold.DefaultConfig(),
		Stickiness: resonance.DefaultStickiness(),
		Audit: AuditConfig{
			Capacity:         au.Capacity,
			AlgorithmVersion: au.AlgorithmVersion,
			ModelVersion:     "hash-embedder-384",
		},
		Session: SessionConfig{HistoryLimit: 20},
		Telemetry: TelemetryConfig{
			Interval:    15 * time.Second,
			ServiceName: "resonance-engine",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// #endregion defaults

// #region load

// Load reads path (optional) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %q: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from RESONANCE_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *float64) {
		if v, ok := lookup(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err))
				return
			}
			*dst = d
		}
	}

	boolean("RESONANCE_PARALLEL", &c.Composer.Parallel)
	boolean("RESONANCE_DEEP_CHECK", &c.Adversarial.DeepCheck)
	duration("RESONANCE_DEEP_TIMEOUT", &c.Adversarial.DeepTimeout)
	str("RESONANCE_JUDGE_ADDR", &c.Judge.Addr)
	num("RESONANCE_JUDGE_RATE", &c.Judge.RatePerSecond)
	str("RESONANCE_DETECTOR", &c.Thresholds.Detector.Kind)
	num("RESONANCE_SENSITIVITY", &c.Thresholds.Sensitivity)
	integer("RESONANCE_THRESHOLD_WINDOW", &c.Thresholds.Window)
	integer("RESONANCE_AUDIT_CAPACITY", &c.Audit.Capacity)
	str("RESONANCE_AUDIT_DB", &c.Audit.DBPath)
	str("RESONANCE_MODEL_VERSION", &c.Audit.ModelVersion)
	str("RESONANCE_SESSION_DB", &c.Session.DBPath)
	str("RESONANCE_OTLP_ENDPOINT", &c.Telemetry.Endpoint)
	boolean("RESONANCE_OTLP_INSECURE", &c.Telemetry.Insecure)
	str("RESONANCE_LOG_LEVEL", &c.Logging.Level)
	str("RESONANCE_LOG_FORMAT", &c.Logging.Format)
	return errors.Join(errs...)
}

// #endregion load

// #region validate

// Validate reports every invalid field, each wrapping ErrInvalid.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	w := c.Composer.Weights
	if w.Alignment < 0 || w.Continuity < 0 || w.Scaffold < 0 || w.Ethics < 0 {
		bad("composer.weights must be non-negative")
	}
	if sum := w.Alignment + w.Continuity + w.Scaffold + w.Ethics; math.Abs(sum-1) > 1e-9 {
		bad("composer.weights sum to %.6f, want 1", sum)
	}
	if !unit(c.Composer.SentinelRM) || !unit(c.Composer.FallbackPenalty) || !unit(c.Composer.Dampening) {
		bad("composer sentinel_rm, fallback_penalty and dampening must be in [0,1]")
	}
	if c.Composer.TopEvidence < 0 {
		bad("composer.top_evidence must be >= 0")
	}
	if sm := c.Composer.ScaffoldMemory; sm.DecayRate < 0 || !unit(sm.MinWeight) || !unit(sm.DynamicShare) || sm.MinRunes < 1 || sm.MaxKeywords < 0 {
		bad("composer.scaffold_memory parameters out of range")
	}

	if !unit(c.Adversarial.Threshold) {
		bad("adversarial.threshold must be in [0,1]")
	}
	if c.Adversarial.DeepTimeout <= 0 {
		bad("adversarial.deep_timeout must be positive")
	}
	if c.Adversarial.DeepCheck && c.Judge.Addr == "" {
		bad("adversarial.deep_check requires judge.addr")
	}
	if c.Judge.RatePerSecond < 0 || c.Judge.Burst < 0 {
		bad("judge rate and burst must be >= 0")
	}
	if c.Judge.Addr != "" && c.Judge.Timeout <= 0 {
		bad("judge.timeout must be positive")
	}

	t := c.Thresholds
	if !unit(t.Sensitivity) {
		bad("thresholds.sensitivity must be in [0,1]")
	}
	if t.Window <= 0 {
		bad("thresholds.window must be positive")
	}
	if t.MinSamples < 1 || t.MinSamples > t.Window {
		bad("thresholds.min_samples must be in [1, window]")
	}
	for metric, base := range t.Base {
		if !unit(base) {
			bad("thresholds.base.%s must be in [0,1]", metric)
		}
	}
	if _, err := t.Detector.New(); err != nil {
		bad("thresholds.detector: %v", err)
	}

	s := c.Stickiness
	if s.DecayRate < 0 || !unit(s.Weight) || !unit(s.RuptureDelta) || s.MaxDecayTurns < 0 {
		bad("stickiness parameters out of range")
	}

	if c.Audit.Capacity < 0 {
		bad("audit.capacity must be >= 0")
	}
	if c.Audit.AlgorithmVersion == "" {
		bad("audit.algorithm_version is required")
	}
	if c.Session.HistoryLimit < 0 {
		bad("session.history_limit must be >= 0")
	}
	if c.Telemetry.Endpoint != "" && c.Telemetry.Interval <= 0 {
		bad("telemetry.interval must be positive")
	}

	if _, err := parseLevel(c.Logging.Level); err != nil {
		bad("logging.level: %v", err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		bad("logging.format %q, want text or json", c.Logging.Format)
	}
	return errors.Join(errs...)
}

func unit(f float64) bool { return f >= 0 && f <= 1 }

// #endregion validate

// #region component-configs

// ResonanceConfig builds the composer configuration.
func (c Config) ResonanceConfig() resonance.Config {
	rc := resonance.DefaultConfig()
	rc.Weights = c.Composer.Weights
	rc.Parallel = c.Composer.Parallel
	rc.SentinelRM = c.Composer.SentinelRM
	rc.FallbackPenalty = c.Composer.FallbackPenalty
	rc.Dampening = c.Composer.Dampening
	rc.TopEvidence = c.Composer.TopEvidence
	rc.ScaffoldMemory = c.Composer.ScaffoldMemory
	return rc
}

// AdversarialConfig builds the detector configuration.
func (c Config) AdversarialConfig() adversarial.Config {
	ac := adversarial.DefaultConfig()
	ac.Threshold = c.Adversarial.Threshold
	ac.DeepTimeout = c.Adversarial.DeepTimeout
	return ac
}

// JudgeConfig builds the judge client configuration.
func (c Config) JudgeConfig() judge.Config {
	return judge.Config{
		Addr:          c.Judge.Addr,
		RatePerSecond: c.Judge.RatePerSecond,
		Burst:         c.Judge.Burst,
		Timeout:       c.Judge.Timeout,
		FlagScore:     c.Judge.FlagScore,
	}
}

// AuditConfig builds the audit logger configuration without a sink.
func (c Config) AuditConfig(logger *slog.Logger) audit.Config {
	ac := audit.DefaultConfig()
	ac.Capacity = c.Audit.Capacity
	ac.AlgorithmVersion = c.Audit.AlgorithmVersion
	ac.Logger = logger
	return ac
}

// #endregion component-configs

// #region logging

// NewLogger builds the slog logger described by the logging section.
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(l.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return level, nil
}

// #endregion logging

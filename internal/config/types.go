package config

import (
	"errors"
	"time"

	"github.com/s8ken/yseeku-platform-sub012/internal/resonance"
	"github.com/s8ken/yseeku-platform-sub012/internal/threshold"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// #region sections

// Config is the full engine configuration.
type Config struct {
	Composer    ComposerConfig       `yaml:"composer"`
	Adversarial AdversarialConfig    `yaml:"adversarial"`
	Judge       JudgeConfig          `yaml:"judge"`
	Thresholds  threshold.Config     `yaml:"thresholds"`
	Stickiness  resonance.Stickiness `yaml:"stickiness"`
	Audit       AuditConfig          `yaml:"audit"`
	Session     SessionConfig        `yaml:"session"`
	Telemetry   TelemetryConfig      `yaml:"telemetry"`
	Logging     LoggingConfig        `yaml:"logging"`
}

type ComposerConfig struct {
	Parallel        bool                     `yaml:"parallel"`
	Weights         resonance.Weights        `yaml:"weights"`
	SentinelRM      float64                  `yaml:"sentinel_rm"`
	FallbackPenalty float64                  `yaml:"fallback_penalty"`
	Dampening       float64                  `yaml:"dampening"`
	TopEvidence     int                      `yaml:"top_evidence"`
	ScaffoldMemory  resonance.ScaffoldMemory `yaml:"scaffold_memory"`
}

type AdversarialConfig struct {
	Threshold   float64       `yaml:"threshold"`
	DeepCheck   bool          `yaml:"deep_check"` // requires judge.addr
	DeepTimeout time.Duration `yaml:"deep_timeout"`
}

type JudgeConfig struct {
	Addr          string        `yaml:"addr"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
	Timeout       time.Duration `yaml:"timeout"`
	FlagScore     float64       `yaml:"flag_score"`
}

type AuditConfig struct {
	Capacity         int    `yaml:"capacity"`
	DBPath           string `yaml:"db_path"` // empty keeps the log in memory only
	AlgorithmVersion string `yaml:"algorithm_version"`
	ModelVersion     string `yaml:"model_version"`
}

type SessionConfig struct {
	DBPath       string `yaml:"db_path"` // empty uses an in-memory store
	HistoryLimit int    `yaml:"history_limit"`
}

type TelemetryConfig struct {
	Endpoint    string        `yaml:"endpoint"` // OTLP/gRPC; empty disables export
	Insecure    bool          `yaml:"insecure"`
	Interval    time.Duration `yaml:"interval"`
	ServiceName string        `yaml:"service_name"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// #endregion sections

package threshold

import "github.com/s8ken/yseeku-platform-sub012/internal/changepoint"

// Metric names tracked by default.
const (
	MetricAdversarial = "adversarial"
	MetricResonance   = "resonance"
	MetricEthics      = "ethics"
	MetricAlignment   = "alignment"
	MetricContinuity  = "continuity"
	MetricScaffold    = "scaffold"
)

// Adjustment reasons.
const (
	ReasonInsufficient = "Insufficient data for adaptation"
	ReasonChangePoint  = "Change point detected"
	ReasonHigh         = "High change probability"
	ReasonModerate     = "Moderate change probability"
	ReasonStable       = "Stable distribution"
)

// #region state

// State is the per-metric threshold snapshot after the latest observation.
type State struct {
	Metric            string  `json:"metric"`
	BaseThreshold     float64 `json:"base_threshold"`
	AdaptiveThreshold float64 `json:"adaptive_threshold"`
	ChangeProbability float64 `json:"change_probability"`
	Confidence        float64 `json:"confidence"`
	SampleCount       int     `json:"sample_count"`
	AdjustmentReason  string  `json:"adjustment_reason"`
	WindowMean        float64 `json:"window_mean"`
	WindowStd         float64 `json:"window_std"`
	RunLength         int     `json:"run_length"`
	IsChangePoint     bool    `json:"is_change_point"`
}

// #endregion state

// #region config

// Config tunes a Manager.
type Config struct {
	Sensitivity float64              `yaml:"sensitivity"`
	Window      int                  `yaml:"window"`
	MinSamples  int                  `yaml:"min_samples"`
	Base        map[string]float64   `yaml:"base"`
	Detector    changepoint.Settings `yaml:"detector"`
}

// DefaultBase is the base threshold for metrics without an entry in Config.Base.
const DefaultBase = 0.5

// DefaultConfig returns the standard Manager configuration.
func DefaultConfig() Config {
	return Config{
		Sensitivity: 0.5,
		Window:      100,
		MinSamples:  10,
		Base: map[string]float64{
			MetricAdversarial: 0.3,
			MetricResonance:   0.7,
			MetricEthics:      0.75,
			MetricAlignment:   0.7,
			MetricContinuity:  0.6,
			MetricScaffold:    0.5,
		},
		Detector: changepoint.DefaultSettings(),
	}
}

// #endregion config

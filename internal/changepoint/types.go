package changepoint

// #region result

// Result is the detector state after one observation.
type Result struct {
	ChangeProbability float64 `json:"change_probability"`
	RunLength         int     `json:"run_length"`
	PredictedMean     float64 `json:"predicted_mean"`
	PredictedStd      float64 `json:"predicted_std"`
	Evidence          float64 `json:"evidence"`
	IsChangePoint     bool    `json:"is_change_point"`
}

// #endregion result

// #region detector-interface

// Detector consumes a univariate stream one observation at a time.
type Detector interface {
	Update(x float64) Result
	Reset()
}

// #endregion detector-interface

// #region config

// Prior is the Normal-Gamma conjugate prior over the mean and precision.
type Prior struct {
	Mu0    float64 `yaml:"mu0"`
	Kappa0 float64 `yaml:"kappa0"`
	Alpha0 float64 `yaml:"alpha0"`
	Beta0  float64 `yaml:"beta0"`
}

// BOCPDConfig tunes the Bayesian online detector.
type BOCPDConfig struct {
	Prior        Prior   `yaml:"prior"`
	MaxRunLength int     `yaml:"max_run_length"`
	Threshold    float64 `yaml:"threshold"`     // change flagged above this
	ChangeWindow int     `yaml:"change_window"` // run lengths below this count as "recent change"
}

// DefaultBOCPDConfig returns the standard BOCPD configuration.
func DefaultBOCPDConfig() BOCPDConfig {
	return BOCPDConfig{
		Prior:        Prior{Mu0: 0.5, Kappa0: 1, Alpha0: 1, Beta0: 0.01},
		MaxRunLength: 250,
		Threshold:    0.5,
		ChangeWindow: 5,
	}
}

// CUSUMConfig tunes the cumulative-sum detector. With Sigma <= 0 the
// reference mean and deviation are estimated over the first WarmUp samples
// and again after every detected change.
type CUSUMConfig struct {
	K        float64 `yaml:"k"` // slack, in standard deviations
	H        float64 `yaml:"h"` // decision interval
	Lower    bool    `yaml:"lower"`
	WarmUp   int     `yaml:"warm_up"`
	Mu       float64 `yaml:"mu"`
	Sigma    float64 `yaml:"sigma"`
	MinSigma float64 `yaml:"min_sigma"`
}

// DefaultCUSUMConfig returns the standard CUSUM configuration.
func DefaultCUSUMConfig() CUSUMConfig {
	return CUSUMConfig{
		K:        0.5,
		H:        5,
		WarmUp:   10,
		MinSigma: 0.01,
	}
}

// #endregion config

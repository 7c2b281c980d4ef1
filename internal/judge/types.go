package judge

import "time"

// #region config

// Config holds connection and budget settings for the semantic judge.
type Config struct {
	Addr          string
	RatePerSecond float64 // <= 0 disables rate limiting
	Burst         int
	Timeout       time.Duration // per call; the detector applies its own outer bound
	FlagScore     float64       // score at or above this flags the text
}

// DefaultConfig returns the standard judge configuration.
func DefaultConfig() Config {
	return Config{
		RatePerSecond: 5,
		Burst:         5,
		Timeout:       time.Second,
		FlagScore:     0.5,
	}
}

// #endregion config

// #region verdict

// Verdict is the decoded judge response.
type Verdict struct {
	Adversarial bool    `json:"adversarial"`
	Score       float64 `json:"score"`
}

// #endregion verdict

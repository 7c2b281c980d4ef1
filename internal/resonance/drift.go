package resonance

import (
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// DefaultDriftThreshold is the mean drop that counts as drift.
const DefaultDriftThreshold = 0.15

// DetectDrift reports whether the mean of the last three scores has fallen
// more than threshold below the overall mean.
func DetectDrift(scores []float64, threshold float64) bool {
	if len(scores) < 2 {
		return false
	}
	recent := scores
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	overall, err := stats.Mean(scores)
	if err != nil {
		return false
	}
	last, err := stats.Mean(recent)
	if err != nil {
		return false
	}
	return overall-last > threshold
}

// DetectTrend fits a line through the last window scores and reports a
// slope steeper than -threshold.
func DetectTrend(scores []float64, window int, threshold float64) bool {
	if window < 2 || len(scores) < window {
		return false
	}
	recent := scores[len(scores)-window:]
	xs := make([]float64, window)
	for i := range xs {
		xs[i] = float64(i)
	}
	_, slope := stat.LinearRegression(xs, recent, nil, false)
	return slope < -threshold
}

// Package changepoint implements online change-point detectors: Bayesian
// online change-point detection with a Normal-Gamma model, and CUSUM.
package changepoint

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// #region bocpd

// runStats are the Normal-Gamma posterior parameters for one run length.
type runStats struct {
	mu, kappa, alpha, beta float64
}

func (s runStats) update(x float64) runStats {
	d := x - s.mu
	return runStats{
		mu:    (s.kappa*s.mu + x) / (s.kappa + 1),
		kappa: s.kappa + 1,
		alpha: s.alpha + 0.5,
		beta:  s.beta + s.kappa*d*d/(2*(s.kappa+1)),
	}
}

// predictive is the Student-t posterior predictive for the next observation.
func (s runStats) predictive() distuv.StudentsT {
	return distuv.StudentsT{
		Mu:    s.mu,
		Sigma: math.Sqrt(s.beta * (s.kappa + 1) / (s.alpha * s.kappa)),
		Nu:    2 * s.alpha,
	}
}

// BOCPD tracks the run-length posterior in log space. Not safe for
// concurrent use.
type BOCPD struct {
	config BOCPDConfig
	hazard Hazard
	prior  runStats

	logR  []float64 // log P(r_t = i | x_1..t)
	stats []runStats
	last  Result
}

// NewBOCPD creates a BOCPD detector. A nil hazard uses DefaultHazard.
func NewBOCPD(config BOCPDConfig, hazard Hazard) *BOCPD {
	if hazard == nil {
		hazard = DefaultHazard()
	}
	if config.MaxRunLength <= 0 {
		config.MaxRunLength = DefaultBOCPDConfig().MaxRunLength
	}
	if config.ChangeWindow <= 0 {
		config.ChangeWindow = 1
	}
	b := &BOCPD{
		config: config,
		hazard: hazard,
		prior: runStats{
			mu:    config.Prior.Mu0,
			kappa: config.Prior.Kappa0,
			alpha: config.Prior.Alpha0,
			beta:  config.Prior.Beta0,
		},
	}
	b.Reset()
	return b
}

// Reset discards all observations.
func (b *BOCPD) Reset() {
	b.logR = []float64{0}
	b.stats = []runStats{b.prior}
	b.last = Result{}
}

// Update folds x into the posterior. Non-finite x is ignored and the
// previous result is returned.
func (b *BOCPD) Update(x float64) Result {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return b.last
	}

	n := len(b.logR)
	next := make([]float64, n+1)
	changeTerms := make([]float64, n)
	for r := 0; r < n; r++ {
		logPred := b.stats[r].predictive().LogProb(x)
		logH, logNotH := hazardLogs(b.hazard, r)
		next[r+1] = b.logR[r] + logPred + logNotH
		changeTerms[r] = b.logR[r] + logPred + logH
	}
	next[0] = floats.LogSumExp(changeTerms)

	evidence := floats.LogSumExp(next)
	for i := range next {
		next[i] -= evidence
	}

	stats := make([]runStats, n+1)
	stats[0] = b.prior
	for r := 0; r < n; r++ {
		stats[r+1] = b.stats[r].update(x)
	}

	if limit := b.config.MaxRunLength + 1; len(next) > limit {
		next = next[:limit]
		stats = stats[:limit]
		z := floats.LogSumExp(next)
		for i := range next {
			next[i] -= z
		}
	}
	b.logR, b.stats = next, stats

	b.last = b.summarize(evidence)
	return b.last
}

func (b *BOCPD) summarize(evidence float64) Result {
	var recent float64
	best := 0
	for r, lp := range b.logR {
		if r < b.config.ChangeWindow {
			recent += math.Exp(lp)
		}
		if lp > b.logR[best] {
			best = r
		}
	}
	recent = math.Min(1, math.Max(0, recent))

	// predictive from the most probable run length
	t := b.stats[best].predictive()
	std := t.Sigma
	if t.Nu > 2 {
		std = t.Sigma * math.Sqrt(t.Nu/(t.Nu-2))
	}
	return Result{
		ChangeProbability: recent,
		RunLength:         best,
		PredictedMean:     t.Mu,
		PredictedStd:      std,
		Evidence:          evidence,
		IsChangePoint:     recent > b.config.Threshold,
	}
}

// RunLengthPosterior returns P(r) for r = 0..len-1.
func (b *BOCPD) RunLengthPosterior() []float64 {
	out := make([]float64, len(b.logR))
	for i, lp := range b.logR {
		out[i] = math.Exp(lp)
	}
	return out
}

// #endregion bocpd

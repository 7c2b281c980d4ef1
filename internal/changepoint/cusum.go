package changepoint

import "math"

// #region cusum

// CUSUM is a one-sided cumulative-sum detector. Upper by default; set
// Lower in the config to watch for downward shifts instead.
type CUSUM struct {
	config CUSUMConfig

	s     float64
	run   int
	fixed bool
	mu    float64
	sigma float64

	// warm-up accumulators (Welford)
	n    int
	mean float64
	m2   float64

	last Result
}

// NewCUSUM creates a CUSUM detector.
func NewCUSUM(config CUSUMConfig) *CUSUM {
	if config.H <= 0 {
		config.H = DefaultCUSUMConfig().H
	}
	if config.WarmUp <= 0 {
		config.WarmUp = DefaultCUSUMConfig().WarmUp
	}
	if config.MinSigma <= 0 {
		config.MinSigma = DefaultCUSUMConfig().MinSigma
	}
	c := &CUSUM{config: config, fixed: config.Sigma > 0}
	c.Reset()
	return c
}

// Reset discards all observations and any estimated reference.
func (c *CUSUM) Reset() {
	c.s, c.run = 0, 0
	c.n, c.mean, c.m2 = 0, 0, 0
	c.mu, c.sigma = c.config.Mu, c.config.Sigma
	c.last = Result{}
}

// Update folds x into the accumulator. While the reference is being
// estimated the change probability is 0.
func (c *CUSUM) Update(x float64) Result {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return c.last
	}
	c.run++

	if !c.fixed && c.n < c.config.WarmUp {
		c.n++
		d := x - c.mean
		c.mean += d / float64(c.n)
		c.m2 += d * (x - c.mean)
		c.mu = c.mean
		if c.n > 1 {
			c.sigma = math.Sqrt(c.m2 / float64(c.n-1))
		}
		c.last = Result{RunLength: c.run, PredictedMean: c.mu, PredictedStd: c.refSigma()}
		return c.last
	}

	z := (x - c.mu) / c.refSigma()
	if c.config.Lower {
		z = -z
	}
	c.s = math.Max(0, c.s+z-c.config.K)

	res := Result{
		ChangeProbability: math.Min(1, c.s/c.config.H),
		RunLength:         c.run,
		PredictedMean:     c.mu,
		PredictedStd:      c.refSigma(),
		Evidence:          z,
	}
	if c.s > c.config.H {
		res.IsChangePoint = true
		res.ChangeProbability = 1
		c.s, c.run = 0, 0
		if !c.fixed {
			c.n, c.mean, c.m2 = 0, 0, 0
		}
	}
	c.last = res
	return res
}

// Statistic returns the current accumulator value.
func (c *CUSUM) Statistic() float64 { return c.s }

func (c *CUSUM) refSigma() float64 {
	return math.Max(c.sigma, c.config.MinSigma)
}

// #endregion cusum

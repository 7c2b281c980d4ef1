package changepoint

import "math"

// Hazard gives the prior probability that a run of length r ends at the
// next step.
type Hazard interface {
	Rate(r int) float64
}

// Constant is a memoryless hazard 1/Lambda.
type Constant struct {
	Lambda float64
}

func (h Constant) Rate(int) float64 {
	if h.Lambda <= 1 {
		return 1
	}
	return 1 / h.Lambda
}

// Geometric decays from Initial by Ratio per step, never below Floor.
type Geometric struct {
	Initial float64
	Ratio   float64
	Floor   float64
}

func (h Geometric) Rate(r int) float64 {
	return math.Max(h.Floor, h.Initial*math.Pow(h.Ratio, float64(r)))
}

// PowerLaw is min(1, Scale/(r+1)^Exponent).
type PowerLaw struct {
	Scale    float64
	Exponent float64
}

func (h PowerLaw) Rate(r int) float64 {
	return math.Min(1, h.Scale/math.Pow(float64(r+1), h.Exponent))
}

// DefaultHazard is the constant hazard with an expected run of 100.
func DefaultHazard() Hazard { return Constant{Lambda: 100} }

// hazardLogs returns log(h) and log(1-h) with h kept away from 0 and 1.
func hazardLogs(h Hazard, r int) (float64, float64) {
	p := h.Rate(r)
	const eps = 1e-12
	p = math.Max(eps, math.Min(1-eps, p))
	return math.Log(p), math.Log1p(-p)
}

// Package threshold adapts per-metric decision thresholds to the observed
// score distribution using an online change-point detector per metric.
package threshold

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/montanaflynn/stats"

	"github.com/s8ken/yseeku-platform-sub012/internal/changepoint"
)

// AdaptiveThreshold raises base in proportion to the change probability,
// bounded to [0.1, 1].
func AdaptiveThreshold(base, changeProbability, sensitivity float64) float64 {
	v := base * (1 + changeProbability*sensitivity)
	if math.IsNaN(v) {
		return base
	}
	return math.Max(0.1, math.Min(1, v))
}

// #region manager

type metricState struct {
	detector changepoint.Detector
	window   []float64
	count    int
	last     State
}

// Manager holds one detector and one bounded window per metric. Safe for
// concurrent use.
type Manager struct {
	mu      sync.Mutex
	config  Config
	metrics map[string]*metricState
}

// NewManager creates a Manager. The detector settings are checked up front.
func NewManager(config Config) (*Manager, error) {
	if _, err := config.Detector.New(); err != nil {
		return nil, fmt.Errorf("threshold manager: %w", err)
	}
	if config.Window <= 0 {
		config.Window = DefaultConfig().Window
	}
	if config.MinSamples < 0 {
		config.MinSamples = 0
	}
	return &Manager{config: config, metrics: make(map[string]*metricState)}, nil
}

// Update observes one value per metric, in sorted metric order, and returns
// the resulting states. Non-finite values are skipped.
func (m *Manager) Update(observations map[string]float64) map[string]State {
	keys := make([]string, 0, len(observations))
	for k := range observations {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]State, len(keys))
	for _, k := range keys {
		x := observations[k]
		if math.IsNaN(x) || math.IsInf(x, 0) {
			if ms, ok := m.metrics[k]; ok {
				out[k] = ms.last
			}
			continue
		}
		out[k] = m.observe(k, x)
	}
	return out
}

// Observe records a single metric value.
func (m *Manager) Observe(metric string, x float64) State {
	return m.Update(map[string]float64{metric: x})[metric]
}

func (m *Manager) observe(metric string, x float64) State {
	ms, ok := m.metrics[metric]
	if !ok {
		det, err := m.config.Detector.New()
		if err != nil {
			// settings were validated in NewManager
			det = changepoint.NewBOCPD(changepoint.DefaultBOCPDConfig(), nil)
		}
		ms = &metricState{detector: det}
		m.metrics[metric] = ms
	}

	res := ms.detector.Update(x)
	ms.count++
	ms.window = append(ms.window, x)
	if over := len(ms.window) - m.config.Window; over > 0 {
		ms.window = append(ms.window[:0:0], ms.window[over:]...)
	}

	mean, _ := stats.Mean(ms.window)
	std, _ := stats.StandardDeviation(ms.window)

	base := m.base(metric)
	st := State{
		Metric:            metric,
		BaseThreshold:     base,
		AdaptiveThreshold: base,
		ChangeProbability: res.ChangeProbability,
		Confidence:        1 - res.ChangeProbability,
		SampleCount:       ms.count,
		WindowMean:        mean,
		WindowStd:         std,
		RunLength:         res.RunLength,
		IsChangePoint:     res.IsChangePoint,
	}
	switch {
	case ms.count < m.config.MinSamples:
		st.AdjustmentReason = ReasonInsufficient
	default:
		st.AdaptiveThreshold = AdaptiveThreshold(base, res.ChangeProbability, m.config.Sensitivity)
		st.AdjustmentReason = reason(res)
	}
	ms.last = st
	return st
}

func reason(res changepoint.Result) string {
	switch {
	case res.IsChangePoint:
		return ReasonChangePoint
	case res.ChangeProbability > 0.7:
		return ReasonHigh
	case res.ChangeProbability > 0.3:
		return ReasonModerate
	}
	return ReasonStable
}

func (m *Manager) base(metric string) float64 {
	if b, ok := m.config.Base[metric]; ok {
		return b
	}
	return DefaultBase
}

// #endregion manager

// #region queries

// State returns the latest state for metric.
func (m *Manager) State(metric string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.metrics[metric]
	if !ok {
		return State{}, false
	}
	return ms.last, true
}

// Snapshot returns the latest state of every tracked metric.
func (m *Manager) Snapshot() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]State, len(m.metrics))
	for k, ms := range m.metrics {
		out[k] = ms.last
	}
	return out
}

// Metrics returns the tracked metric names in sorted order.
func (m *Manager) Metrics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.metrics))
	for k := range m.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Adjust returns base adapted by the metric's current change probability.
// ok is false, and base is returned unchanged, until MinSamples observations
// have been seen.
func (m *Manager) Adjust(metric string, base float64) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, found := m.metrics[metric]
	if !found || ms.count < m.config.MinSamples {
		return base, false
	}
	return AdaptiveThreshold(base, ms.last.ChangeProbability, m.config.Sensitivity), true
}

// Reset drops every metric's detector and window.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = make(map[string]*metricState)
}

// #endregion queries

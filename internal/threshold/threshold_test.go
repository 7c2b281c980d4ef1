package threshold

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s8ken/yseeku-platform-sub012/internal/changepoint"
)

func newManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(cfg)
	require.NoError(t, err)
	return m
}

func TestAdaptiveThreshold(t *testing.T) {
	assert.InDelta(t, 0.875, AdaptiveThreshold(0.7, 0.5, 0.5), 1e-12)
	assert.Equal(t, 1.0, AdaptiveThreshold(0.9, 1, 1))
	assert.Equal(t, 0.1, AdaptiveThreshold(0.05, 0, 0.5))
	assert.Equal(t, 0.7, AdaptiveThreshold(0.7, 0, 0.5))
}

func TestManager_InsufficientData(t *testing.T) {
	m := newManager(t, DefaultConfig())
	var st State
	for i := 0; i < 5; i++ {
		st = m.Observe(MetricEthics, 0.8)
	}
	assert.Equal(t, ReasonInsufficient, st.AdjustmentReason)
	assert.Equal(t, st.BaseThreshold, st.AdaptiveThreshold)
	assert.Equal(t, 5, st.SampleCount)

	adj, ok := m.Adjust(MetricEthics, 0.95)
	assert.False(t, ok)
	assert.Equal(t, 0.95, adj)
}

func TestManager_StableThenShift(t *testing.T) {
	m := newManager(t, DefaultConfig())
	var st State
	for i := 0; i < 40; i++ {
		st = m.Observe(MetricAlignment, 0.8+0.01*math.Sin(float64(i)))
	}
	assert.Equal(t, ReasonStable, st.AdjustmentReason)
	assert.InDelta(t, 0.7, st.AdaptiveThreshold, 0.01)
	assert.InDelta(t, 0.8, st.WindowMean, 0.01)
	assert.Greater(t, st.Confidence, 0.9)

	st = m.Observe(MetricAlignment, 0.1)
	assert.True(t, st.IsChangePoint)
	assert.Equal(t, ReasonChangePoint, st.AdjustmentReason)
	assert.Greater(t, st.AdaptiveThreshold, st.BaseThreshold)
	assert.InDelta(t, 1-st.ChangeProbability, st.Confidence, 1e-12)

	adj, ok := m.Adjust(MetricAlignment, 0.85)
	assert.True(t, ok)
	assert.Greater(t, adj, 0.85)
}

func TestManager_UpdateManyMetrics(t *testing.T) {
	m := newManager(t, DefaultConfig())
	out := m.Update(map[string]float64{
		MetricEthics:    0.7,
		MetricAlignment: 0.6,
		"custom":        0.4,
		"broken":        math.NaN(),
	})
	assert.Len(t, out, 3)
	assert.Equal(t, DefaultBase, out["custom"].BaseThreshold)
	assert.Equal(t, 0.75, out[MetricEthics].BaseThreshold)
	assert.Equal(t, []string{MetricAlignment, "custom", MetricEthics}, m.Metrics())
}

func TestManager_WindowBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Window = 5
	m := newManager(t, cfg)
	var st State
	for i := 1; i <= 20; i++ {
		st = m.Observe("x", float64(i)/100)
	}
	assert.Equal(t, 20, st.SampleCount)
	assert.InDelta(t, 0.18, st.WindowMean, 1e-12)
	assert.InDelta(t, math.Sqrt(0.0002), st.WindowStd, 1e-12)
}

func TestManager_CUSUMDetector(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Detector.Kind = changepoint.KindCUSUM
	cfg.MinSamples = 0
	m := newManager(t, cfg)
	for i := 0; i < 10; i++ {
		m.Observe(MetricResonance, 0.5+0.01*float64(i%2*2-1))
	}
	st := m.Observe(MetricResonance, 0.9)
	assert.True(t, st.IsChangePoint)
	assert.Equal(t, ReasonChangePoint, st.AdjustmentReason)
}

func TestManager_InvalidDetector(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Detector.Kind = "nope"
	_, err := NewManager(cfg)
	assert.ErrorIs(t, err, changepoint.ErrUnknownKind)
}

func TestManager_Reset(t *testing.T) {
	m := newManager(t, DefaultConfig())
	m.Observe(MetricScaffold, 0.3)
	m.Reset()
	_, ok := m.State(MetricScaffold)
	assert.False(t, ok)
	assert.Empty(t, m.Snapshot())
}

func TestManager_ConcurrentUpdates(t *testing.T) {
	m := newManager(t, DefaultConfig())
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				m.Update(map[string]float64{MetricEthics: 0.6, MetricResonance: 0.5})
			}
		}()
	}
	wg.Wait()
	st, ok := m.State(MetricEthics)
	require.True(t, ok)
	assert.Equal(t, 200, st.SampleCount)
}

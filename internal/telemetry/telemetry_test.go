package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestSetup_NoEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{}, nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInstruments_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	in, err := NewInstruments(provider.Meter(ScopeName))
	require.NoError(t, err)

	ctx := context.Background()
	in.Scores.Record(ctx, 0.72)
	in.Scores.Record(ctx, 0.1)
	in.Adversarial.Add(ctx, 1)
	in.ChangePoints.Add(ctx, 2, metric.WithAttributes(attribute.String("metric", "ethics")))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	byName := map[string]metricdata.Metrics{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		byName[m.Name] = m
	}

	hist, ok := byName["resonance.score"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)

	adv, ok := byName["resonance.adversarial"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(1), adv.DataPoints[0].Value)

	cp, ok := byName["resonance.threshold.change_points"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(2), cp.DataPoints[0].Value)
}

func TestNewInstruments_GlobalMeter(t *testing.T) {
	in, err := NewInstruments(nil)
	require.NoError(t, err)
	in.Fallbacks.Add(context.Background(), 1)
}

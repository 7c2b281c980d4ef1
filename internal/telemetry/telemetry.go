// Package telemetry installs the OpenTelemetry meter provider and defines the
// engine's metric instruments.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// ScopeName is the instrumentation scope of every engine instrument.
const ScopeName = "github.com/s8ken/yseeku-platform-sub012"

// #region provider

// Config selects the exporter.
type Config struct {
	Endpoint    string // OTLP/gRPC host:port; empty leaves the no-op provider
	Insecure    bool
	Interval    time.Duration
	ServiceName string
}

// Shutdown flushes and stops the provider.
type Shutdown func(context.Context) error

// Setup installs a global meter provider exporting over OTLP/gRPC. With no
// endpoint it returns a no-op Shutdown and leaves the global provider alone.
func Setup(ctx context.Context, config Config, logger *slog.Logger) (Shutdown, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "telemetry")
	if config.Endpoint == "" {
		logger.DebugContext(ctx, "metrics export disabled")
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(config.Endpoint)}
	if config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", config.ServiceName))
	interval := config.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(provider)

	logger.InfoContext(ctx, "metrics export enabled",
		"endpoint", config.Endpoint,
		"interval", interval,
		"insecure", config.Insecure,
	)
	return provider.Shutdown, nil
}

// #endregion provider

// #region instruments

// Instruments are the engine's metrics.
type Instruments struct {
	Scores            metric.Float64Histogram
	Adversarial       metric.Int64Counter
	Fallbacks         metric.Int64Counter
	IntegrityFailures metric.Int64Counter
	ChangePoints      metric.Int64Counter
}

// NewInstruments creates the instruments on meter. A nil meter uses the
// global provider.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	if meter == nil {
		meter = otel.Meter(ScopeName)
	}
	var (
		in  Instruments
		err error
	)
	if in.Scores, err = meter.Float64Histogram("resonance.score",
		metric.WithDescription("Final r_m per scored transcript"),
		metric.WithExplicitBucketBoundaries(0.1, 0.3, 0.5, 0.7, 0.85, 1),
	); err != nil {
		return nil, fmt.Errorf("score histogram: %w", err)
	}
	if in.Adversarial, err = meter.Int64Counter("resonance.adversarial",
		metric.WithDescription("Transcripts rejected by the adversarial gate"),
	); err != nil {
		return nil, fmt.Errorf("adversarial counter: %w", err)
	}
	if in.Fallbacks, err = meter.Int64Counter("resonance.fallback",
		metric.WithDescription("Scores computed in fallback mode"),
	); err != nil {
		return nil, fmt.Errorf("fallback counter: %w", err)
	}
	if in.IntegrityFailures, err = meter.Int64Counter("resonance.audit.integrity_failures",
		metric.WithDescription("Failed audit chain verifications"),
	); err != nil {
		return nil, fmt.Errorf("integrity counter: %w", err)
	}
	if in.ChangePoints, err = meter.Int64Counter("resonance.threshold.change_points",
		metric.WithDescription("Change points detected per metric"),
	); err != nil {
		return nil, fmt.Errorf("change point counter: %w", err)
	}
	return &in, nil
}

// #endregion instruments

// Package telemetry wires OpenTelemetry tracing and metrics for the engine.
// Without InitTelemetry the global no-op providers are used and every
// instrument is free to call.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Config selects what InitTelemetry exports.
type Config struct {
	ServiceName string
	Version     string

	// SampleRatio is the fraction of root spans sampled, in [0, 1]. Child
	// spans follow their parent.
	SampleRatio float64

	// MetricInterval is how often metrics are pushed. Default 10s.
	MetricInterval time.Duration
}

type shutdownFunc func(context.Context) error

// provider starts one signal's exporter and installs it globally.
type provider struct {
	signal string
	start  func(context.Context, *resource.Resource, Config) (shutdownFunc, error)
}

var providers = []provider{
	{signal: "trace", start: startTracing},
	{signal: "metric", start: startMetrics},
}

// InitTelemetry installs OTLP/gRPC exporters for traces and metrics.
// Exporter endpoints and headers come from the OTEL_EXPORTER_OTLP_*
// environment variables; OTEL_SERVICE_NAME overrides cfg.ServiceName.
//
// A signal whose exporter cannot be created is logged and left disabled.
// The returned function flushes and stops whatever was started.
func InitTelemetry(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.MetricInterval <= 0 {
		cfg.MetricInterval = 10 * time.Second
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var (
		started  []string
		shutdown []shutdownFunc
	)
	for _, p := range providers {
		fn, err := p.start(ctx, res, cfg)
		if err != nil {
			log.Warn().Err(err).Str("signal", p.signal).Msg("Telemetry exporter unavailable, signal disabled")
			continue
		}
		started = append(started, p.signal)
		shutdown = append(shutdown, fn)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info().
		Str("service", cfg.ServiceName).
		Str("version", cfg.Version).
		Strs("signals", started).
		Float64("sample_ratio", cfg.SampleRatio).
		Dur("metric_interval", cfg.MetricInterval).
		Msg("OpenTelemetry initialized")

	return func(ctx context.Context) error {
		var errs []error
		for i := len(shutdown) - 1; i >= 0; i-- {
			if err := shutdown[i](ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s shutdown: %w", started[i], err))
			}
		}
		return errors.Join(errs...)
	}, nil
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
		),
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithHost(),
		resource.WithContainer(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

func startTracing(ctx context.Context, res *resource.Resource, cfg Config) (shutdownFunc, error) {
	exp, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func startMetrics(ctx context.Context, res *resource.Resource, cfg Config) (shutdownFunc, error) {
	exp, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(cfg.MetricInterval))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}

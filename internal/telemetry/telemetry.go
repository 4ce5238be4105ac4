// Package telemetry wires OpenTelemetry into nf. It is off unless
// NF_OTEL_ENABLED=true; otherwise the global providers are no-ops and
// instrumented code costs nothing.
//
// NF_OTEL_STDOUT=true prints spans and metrics to stdout. Metrics are also
// pushed over OTLP/HTTP when OTEL_EXPORTER_OTLP_METRICS_ENDPOINT or
// OTEL_EXPORTER_OTLP_ENDPOINT is set.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const scope = "github.com/steveyegge/novelflow"

const (
	stdoutInterval = 15 * time.Second
	otlpInterval   = 30 * time.Second
)

// settings is the environment read once per Init.
type settings struct {
	stdout       bool
	otlpEndpoint string
}

func loadSettings() settings {
	s := settings{
		stdout:       os.Getenv("NF_OTEL_STDOUT") == "true",
		otlpEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"),
	}
	if s.otlpEndpoint == "" {
		s.otlpEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	return s
}

var (
	mu        sync.Mutex
	providers []interface{ Shutdown(context.Context) error }
)

// Enabled reports whether NF_OTEL_ENABLED=true.
func Enabled() bool {
	return os.Getenv("NF_OTEL_ENABLED") == "true"
}

// Init installs the global tracer and meter providers for one nf process.
func Init(ctx context.Context, serviceName, version string) error {
	if !Enabled() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}
	cfg := loadSettings()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	traceOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	metricOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.stdout {
		spans, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("telemetry: stdout spans: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(spans))

		points, err := stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("telemetry: stdout metrics: %w", err)
		}
		metricOpts = append(metricOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(points, sdkmetric.WithInterval(stdoutInterval))))
	}
	if cfg.otlpEndpoint != "" {
		exp, err := buildOTLPMetricExporter(ctx, cfg.otlpEndpoint)
		if err != nil {
			return fmt.Errorf("telemetry: otlp metrics: %w", err)
		}
		metricOpts = append(metricOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(otlpInterval))))
	}

	tp := sdktrace.NewTracerProvider(traceOpts...)
	mp := sdkmetric.NewMeterProvider(metricOpts...)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	mu.Lock()
	providers = append(providers, tp, mp)
	mu.Unlock()
	return nil
}

// Tracer returns a named tracer from the global provider. An empty name
// means the module scope.
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = scope
	}
	return otel.Tracer(name)
}

// Meter is Tracer's counterpart for metrics.
func Meter(name string) metric.Meter {
	if name == "" {
		name = scope
	}
	return otel.Meter(name)
}

// Shutdown flushes and stops whatever Init installed. Errors are dropped:
// the command has already finished by the time this runs.
func Shutdown(ctx context.Context) {
	mu.Lock()
	ps := providers
	providers = nil
	mu.Unlock()
	for _, p := range ps {
		_ = p.Shutdown(ctx)
	}
}

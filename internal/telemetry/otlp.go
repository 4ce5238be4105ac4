package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// buildOTLPMetricExporter exports metrics over OTLP/HTTP. endpoint is a
// host:port; a leading scheme is stripped and "https://" keeps TLS on.
func buildOTLPMetricExporter(ctx context.Context, endpoint string) (sdkmetric.Exporter, error) {
	opts := []otlpmetrichttp.Option{}
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint = strings.TrimPrefix(endpoint, "https://")
	default:
		endpoint = strings.TrimPrefix(endpoint, "http://")
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	opts = append(opts, otlpmetrichttp.WithEndpoint(strings.TrimSuffix(endpoint, "/")))
	return otlpmetrichttp.New(ctx, opts...)
}

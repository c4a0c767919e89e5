package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig configures the OpenTelemetry SDK meter provider.
type ProviderConfig struct {
	// ServiceName is reported on every exported metric. Default: "agentmem".
	ServiceName    string
	ServiceVersion string
}

// InitProvider sets up a MeterProvider backed by a Prometheus exporter
// (registered with the Prometheus client's default registry) and registers
// it as the global provider.
// Returns a shutdown function to call during graceful shutdown, and the
// initialised Metrics.
func InitProvider(ctx context.Context, cfg ProviderConfig) (met *Metrics, shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "agentmem"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	promExp, err := promexporter.New()
	if err != nil {
		return nil, nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)
	otel.SetMeterProvider(mp)

	met, err = New(mp)
	if err != nil {
		return nil, nil, err
	}

	return met, mp.Shutdown, nil
}

package proxy

import (
	"context"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "github.com/codexplain/codexplain/internal/proxy"

// Metrics exposes the proxy's meters in Prometheus format.
type Metrics struct {
	Provider *sdkmetric.MeterProvider
	Handler  http.Handler
}

// NewMetrics creates a meter provider backed by its own Prometheus registry.
func NewMetrics(ctx context.Context, serviceName string) (*Metrics, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create resource: %w", err)
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("unable to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	return &Metrics{
		Provider: provider,
		Handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, nil
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.Provider.Shutdown(ctx)
}

// instruments are the proxy's own meters.
type instruments struct {
	syntheses metric.Int64Counter
	bytes     metric.Int64Counter
}

func newInstruments(mp metric.MeterProvider) (*instruments, error) {
	meter := mp.Meter(meterName)

	syntheses, err := meter.Int64Counter("codexplain.proxy.syntheses",
		metric.WithDescription("Speech synthesis requests by outcome"))
	if err != nil {
		return nil, err
	}

	bytes, err := meter.Int64Counter("codexplain.proxy.audio",
		metric.WithDescription("Audio bytes streamed to clients"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}

	return &instruments{syntheses: syntheses, bytes: bytes}, nil
}

func (i *instruments) synthesis(ctx context.Context, outcome string, n int64) {
	i.syntheses.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if n > 0 {
		i.bytes.Add(ctx, n)
	}
}

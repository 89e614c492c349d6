package observe

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// InitProvider registers a global MeterProvider backed by the Prometheus
// exporter. The returned shutdown flushes it; defer it from main.
func InitProvider(ctx context.Context, serviceName, version string) (shutdown func(context.Context) error, err error) {
	if serviceName == "" {
		serviceName = "voiceshield"
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version),
		),
	)
	if err != nil {
		return nil, err
	}

	promExp, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}

// Flush runs shutdown with its own deadline, detached from the already
// cancelled signal context main usually holds at exit.
func Flush(shutdown func(context.Context) error, timeout time.Duration) {
	if shutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Printf("metrics shutdown: %v", err)
	}
}

// Handler serves the default Prometheus registry the exporter writes into.
func Handler() http.Handler {
	return promhttp.Handler()
}

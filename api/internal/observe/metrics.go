// Package observe holds the OpenTelemetry instruments for voiceshield and the
// Prometheus bridge that exposes them on /metrics.
//
// Tests should build their own [Metrics] with [NewMetrics] over a ManualReader
// instead of touching [DefaultMetrics].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "voiceshield"

// Metrics holds every instrument the service records. Safe for concurrent use.
type Metrics struct {
	// DetectDuration is the wall time of one Detector.Detect, retries included.
	// Attributes: engine, status.
	DetectDuration metric.Float64Histogram

	// ProviderRequests counts model calls. Attributes: provider, kind, status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts classified model failures. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// Corrections counts feedback outcomes. Attribute: outcome (confirmed, applied, failed).
	Corrections metric.Int64Counter

	// TesterDuration is the latency observed by the compliance checker.
	TesterDuration metric.Float64Histogram

	HTTPRequestDuration metric.Float64Histogram
}

// Model calls on audio take seconds, not milliseconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 180,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.DetectDuration, err = m.Float64Histogram("voiceshield.detect.duration",
		metric.WithDescription("Latency of a detection including retries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TesterDuration, err = m.Float64Histogram("voiceshield.tester.duration",
		metric.WithDescription("Latency reported by the endpoint compliance checker."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voiceshield.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("voiceshield.provider.requests",
		metric.WithDescription("Model API requests by provider, kind and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("voiceshield.provider.errors",
		metric.WithDescription("Model API errors by provider and error kind."),
	); err != nil {
		return nil, err
	}
	if met.Corrections, err = m.Int64Counter("voiceshield.corrections",
		metric.WithDescription("Feedback outcomes by result."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics lazily builds a Metrics on the global meter provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	if m == nil {
		return
	}
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	if m == nil {
		return
	}
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

func (m *Metrics) RecordDetect(ctx context.Context, engine, status string, seconds float64) {
	if m == nil {
		return
	}
	m.DetectDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("engine", engine),
			attribute.String("status", status),
		),
	)
}

func (m *Metrics) RecordCorrection(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Corrections.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordTester(ctx context.Context, seconds float64, status string) {
	if m == nil {
		return
	}
	m.TesterDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("status", status)))
}

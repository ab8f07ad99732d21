// Package observe provides application-wide observability primitives for
// livelearn: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [Setup] bridges
// them to a Prometheus registry served on /metrics. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all livelearn metrics.
const meterName = "github.com/MrWong99/livelearn"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// DecisionDuration tracks how long the decision call takes per chunk.
	DecisionDuration metric.Float64Histogram

	// LLMDuration tracks raw LLM inference latency.
	LLMDuration metric.Float64Histogram

	// MediaSearchDuration tracks reference video search latency.
	MediaSearchDuration metric.Float64Histogram

	// GenerationDuration tracks deferred artifact generation. Use with
	// attributes:
	//   attribute.String("kind", ...), attribute.String("status", ...)
	GenerationDuration metric.Float64Histogram

	// --- Counters ---

	// ChunksProcessed counts transcript chunks. Use with attribute:
	//   attribute.String("status", "ok"|"decision_failed")
	ChunksProcessed metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// CacheLookups counts simulation cache lookups. Use with attribute:
	//   attribute.String("result", "hit"|"miss"|"degraded")
	CacheLookups metric.Int64Counter

	// PushesDropped counts ready artifacts that could not be delivered
	// because the session had already closed. Use with attribute:
	//   attribute.String("kind", ...)
	PushesDropped metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of open session channels.
	ActiveSessions metric.Int64UpDownCounter

	// WorkersInFlight tracks deferred generation workers still running.
	WorkersInFlight metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...), attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). LLM-backed
// generation regularly takes tens of seconds, hence the long tail.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80,
}

// NewMetrics creates every instrument on mp. Tests pass a meter provider
// backed by a ManualReader.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := instruments{meter: mp.Meter(meterName)}
	met := &Metrics{
		DecisionDuration:    b.latency("livelearn.decision.duration", "Latency of the per-chunk decision call."),
		LLMDuration:         b.latency("livelearn.llm.duration", "Latency of LLM inference."),
		MediaSearchDuration: b.latency("livelearn.media_search.duration", "Latency of reference video searches."),
		GenerationDuration:  b.latency("livelearn.generation.duration", "Latency of deferred artifact generation by kind and status."),

		ChunksProcessed:  b.counter("livelearn.chunks.processed", "Transcript chunks processed by status."),
		ProviderRequests: b.counter("livelearn.provider.requests", "Provider requests by provider, kind and status."),
		CacheLookups:     b.counter("livelearn.simcache.lookups", "Simulation cache lookups by result."),
		PushesDropped:    b.counter("livelearn.pushes.dropped", "Ready artifacts dropped because the session was closed."),
		ProviderErrors:   b.counter("livelearn.provider.errors", "Provider errors by provider and kind."),

		ActiveSessions:  b.gauge("livelearn.active_sessions", "Open session channels."),
		WorkersInFlight: b.gauge("livelearn.workers.in_flight", "Deferred generation workers still running."),

		HTTPRequestDuration: b.histogram("livelearn.http.request.duration", "HTTP request latency by method, route and status.",
			metric.WithUnit("s")),
	}
	if b.err != nil {
		return nil, fmt.Errorf("observe: create instruments: %w", b.err)
	}
	return met, nil
}

// instruments creates instruments on one meter and collects every failure.
type instruments struct {
	meter metric.Meter
	err   error
}

func (b *instruments) histogram(name, desc string, opts ...metric.Float64HistogramOption) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name, append(opts, metric.WithDescription(desc))...)
	b.err = errors.Join(b.err, err)
	return h
}

// latency is a histogram in seconds with buckets sized for model calls.
func (b *instruments) latency(name, desc string) metric.Float64Histogram {
	return b.histogram(name, desc, metric.WithUnit("s"), metric.WithExplicitBucketBoundaries(latencyBuckets...))
}

func (b *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.err = errors.Join(b.err, err)
	return c
}

func (b *instruments) gauge(name, desc string) metric.Int64UpDownCounter {
	g, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	b.err = errors.Join(b.err, err)
	return g
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics], bound to the global meter
// provider at its first call. It panics if the instruments cannot be created.
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

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordChunk records one processed transcript chunk.
func (m *Metrics) RecordChunk(ctx context.Context, status string) {
	m.ChunksProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordGeneration records the duration of one deferred generation job.
func (m *Metrics) RecordGeneration(ctx context.Context, kind, status string, d time.Duration) {
	m.GenerationDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordCacheLookup records a simulation cache lookup outcome.
func (m *Metrics) RecordCacheLookup(ctx context.Context, result string) {
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordDroppedPush records a ready artifact that could not be delivered.
func (m *Metrics) RecordDroppedPush(ctx context.Context, kind string) {
	m.PushesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

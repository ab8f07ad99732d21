package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the value of the data point carrying key=value, or -1.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is %T, want a sum", name, met.Data)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.Emit() == value {
			return dp.Value
		}
	}
	return -1
}

func TestRecorders(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	// One chunk that produced a fallback simulation, a cache miss then a hit,
	// a failed YouTube search and a quiz that finished after its session left.
	m.RecordChunk(ctx, "ok")
	m.RecordChunk(ctx, "ok")
	m.RecordChunk(ctx, "decision_failed")
	m.RecordCacheLookup(ctx, "miss")
	m.RecordCacheLookup(ctx, "hit")
	m.RecordCacheLookup(ctx, "hit")
	m.RecordProviderRequest(ctx, "openai", "llm", "ok")
	m.RecordProviderRequest(ctx, "youtube", "media", "error")
	m.RecordProviderError(ctx, "youtube", "media")
	m.RecordDroppedPush(ctx, "quiz")

	rm := collect(t, reader)
	tests := []struct {
		metric, key, value string
		want               int64
	}{
		{"livelearn.chunks.processed", "status", "ok", 2},
		{"livelearn.chunks.processed", "status", "decision_failed", 1},
		{"livelearn.simcache.lookups", "result", "hit", 2},
		{"livelearn.simcache.lookups", "result", "miss", 1},
		{"livelearn.provider.requests", "status", "error", 1},
		{"livelearn.provider.errors", "provider", "youtube", 1},
		{"livelearn.pushes.dropped", "kind", "quiz", 1},
	}
	for _, tc := range tests {
		t.Run(tc.metric+"/"+tc.value, func(t *testing.T) {
			if got := sumFor(t, rm, tc.metric, tc.key, tc.value); got != tc.want {
				t.Errorf("%s{%s=%q} = %d, want %d", tc.metric, tc.key, tc.value, got, tc.want)
			}
		})
	}
}

func TestGenerationDuration_LongTailBuckets(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	// Simulation pages routinely take half a minute.
	m.RecordGeneration(ctx, "simulation", "ok", 35*time.Second)
	m.RecordGeneration(ctx, "quiz", "error", 800*time.Millisecond)

	met := findMetric(collect(t, reader), "livelearn.generation.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric is %T, want histogram", met.Data)
	}
	if len(hist.DataPoints) != 2 {
		t.Fatalf("data points = %d, want one per kind/status", len(hist.DataPoints))
	}
	for _, dp := range hist.DataPoints {
		if len(dp.Bounds) != len(latencyBuckets) {
			t.Errorf("bounds = %v, want %v", dp.Bounds, latencyBuckets)
		}
		kind, _ := dp.Attributes.Value("kind")
		if kind.AsString() != "simulation" {
			continue
		}
		// 35s lands in the (20, 40] bucket, index 9.
		if dp.BucketCounts[9] != 1 {
			t.Errorf("bucket counts = %v, want the 35s sample in (20, 40]", dp.BucketCounts)
		}
	}
}

func TestLatencyHistograms(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.DecisionDuration.Record(ctx, 1.2)
	m.LLMDuration.Record(ctx, 1.1)
	m.LLMDuration.Record(ctx, 6.4)
	m.MediaSearchDuration.Record(ctx, 0.3)

	rm := collect(t, reader)
	for name, want := range map[string]uint64{
		"livelearn.decision.duration":     1,
		"livelearn.llm.duration":          2,
		"livelearn.media_search.duration": 1,
	} {
		met := findMetric(rm, name)
		if met == nil {
			t.Errorf("metric %q not found", name)
			continue
		}
		hist := met.Data.(metricdata.Histogram[float64])
		if got := hist.DataPoints[0].Count; got != want {
			t.Errorf("%s count = %d, want %d", name, got, want)
		}
		if met.Unit != "s" {
			t.Errorf("%s unit = %q, want s", name, met.Unit)
		}
	}
}

func TestGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	// Two sessions open, one closes; three workers start, one finishes.
	m.ActiveSessions.Add(ctx, 2)
	m.ActiveSessions.Add(ctx, -1)
	m.WorkersInFlight.Add(ctx, 3)
	m.WorkersInFlight.Add(ctx, -1)

	rm := collect(t, reader)
	for name, want := range map[string]int64{
		"livelearn.active_sessions":   1,
		"livelearn.workers.in_flight": 2,
	} {
		met := findMetric(rm, name)
		if met == nil {
			t.Errorf("metric %q not found", name)
			continue
		}
		sum, ok := met.Data.(metricdata.Sum[int64])
		if !ok || sum.IsMonotonic {
			t.Errorf("%s should be a non-monotonic sum, got %T", name, met.Data)
			continue
		}
		if got := sum.DataPoints[0].Value; got != want {
			t.Errorf("%s = %d, want %d", name, got, want)
		}
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different pointers")
	}
}

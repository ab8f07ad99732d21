package observe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestSetup_ServesOwnRegistry(t *testing.T) {
	tel, err := Setup(TelemetryConfig{ServiceVersion: "test", SampleRatio: 0.5})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	m, err := NewMetrics(tel.MeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordChunk(context.Background(), "ok")

	srv := httptest.NewServer(tel.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, want := range []string{"livelearn_chunks_processed", "go_goroutines", `service_name="livelearn"`} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestTelemetry_Install(t *testing.T) {
	tel, err := Setup(TelemetryConfig{})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	origTP, origMP, origProp := otel.GetTracerProvider(), otel.GetMeterProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
		otel.SetTextMapPropagator(origProp)
		_ = tel.Shutdown(context.Background())
	})

	tel.Install()

	_, span := StartSpan(context.Background(), "probe")
	defer span.End()
	if !span.SpanContext().IsSampled() {
		t.Error("root span should be sampled with the default ratio")
	}
	if otel.GetMeterProvider() != tel.MeterProvider() {
		t.Error("meter provider not installed")
	}
}

package simcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/livelearn/internal/generate"
	"github.com/MrWong99/livelearn/internal/observe"
	"github.com/MrWong99/livelearn/pkg/store/mock"
)

// countingGenerator returns "<code for {concept}>" and counts calls.
type countingGenerator struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (g *countingGenerator) Generate(ctx context.Context, p generate.SimulationParams) (string, error) {
	g.calls.Add(1)
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if g.err != nil {
		return "", g.err
	}
	return "<code for " + p.Concept + ">", nil
}

func testMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func lookups(t *testing.T, reader *sdkmetric.ManualReader, result string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "livelearn.simcache.lookups" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				if v, ok := dp.Attributes.Value("result"); ok && v.AsString() == result {
					return dp.Value
				}
			}
		}
	}
	return 0
}

func TestGenerate_SpaceVariantHitsCache(t *testing.T) {
	t.Parallel()

	m, reader := testMetrics(t)
	gen := &countingGenerator{}
	c := New(NewMemIndex(), gen, WithMetrics(m))
	ctx := context.Background()

	first, hit, err := c.Generate(ctx, generate.SimulationParams{Concept: "Breadth-First Search"})
	if err != nil || hit {
		t.Fatalf("first Generate = %q, hit=%v, err=%v", first, hit, err)
	}
	second, hit, err := c.Generate(ctx, generate.SimulationParams{Concept: "Breadth First Search"})
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if !hit {
		t.Error("space variant should hit the cache")
	}
	if second != first {
		t.Errorf("codes differ: %q vs %q", first, second)
	}
	if n := gen.calls.Load(); n != 1 {
		t.Errorf("generator calls = %d, want 1", n)
	}
	if got := lookups(t, reader, "hit"); got != 1 {
		t.Errorf("hit lookups = %d, want 1", got)
	}
	if got := lookups(t, reader, "miss"); got != 1 {
		t.Errorf("miss lookups = %d, want 1", got)
	}
}

func TestGenerate_UpsertsExactName(t *testing.T) {
	t.Parallel()

	idx := &mock.SimulationIndex{}
	m, _ := testMetrics(t)
	c := New(idx, &countingGenerator{}, WithMetrics(m))

	if _, _, err := c.Generate(context.Background(), generate.SimulationParams{
		Concept: "Projectile Motion", Description: "throw a ball",
	}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	e, ok := idx.Entries["Projectile Motion"]
	if !ok {
		t.Fatalf("entry not stored under exact name: %+v", idx.Entries)
	}
	if e.Description != "throw a ball" || e.Code != "<code for Projectile Motion>" || e.CachedAt.IsZero() {
		t.Errorf("unexpected entry: %+v", e)
	}
}

func TestGenerate_DegradesToExact(t *testing.T) {
	t.Parallel()

	m, reader := testMetrics(t)
	idx := &mock.SimulationIndex{FindApproxErr: errors.New("search index offline")}
	gen := &countingGenerator{}
	c := New(idx, gen, WithMetrics(m))
	ctx := context.Background()

	if _, _, err := c.Generate(ctx, generate.SimulationParams{Concept: "Entropy"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	code, hit, err := c.Generate(ctx, generate.SimulationParams{Concept: "entropy"})
	if err != nil || !hit {
		t.Fatalf("second Generate = %q, hit=%v, err=%v; want exact-match hit", code, hit, err)
	}
	if idx.CallCount("FindExact") != 2 {
		t.Errorf("FindExact calls = %d, want 2", idx.CallCount("FindExact"))
	}
	if got := lookups(t, reader, "degraded"); got != 2 {
		t.Errorf("degraded lookups = %d, want 2", got)
	}
}

func TestGenerate_BothMatchersFailIsMiss(t *testing.T) {
	t.Parallel()

	m, _ := testMetrics(t)
	idx := &mock.SimulationIndex{
		FindApproxErr: errors.New("down"),
		FindExactErr:  errors.New("also down"),
		UpsertErr:     errors.New("still down"),
	}
	gen := &countingGenerator{}
	c := New(idx, gen, WithMetrics(m))

	code, hit, err := c.Generate(context.Background(), generate.SimulationParams{Concept: "Entropy"})
	if err != nil {
		t.Fatalf("matcher and upsert failures must not surface: %v", err)
	}
	if hit || code != "<code for Entropy>" {
		t.Errorf("got %q hit=%v, want freshly generated code", code, hit)
	}
}

func TestGenerate_GeneratorFailure(t *testing.T) {
	t.Parallel()

	m, _ := testMetrics(t)
	boom := errors.New("model overloaded")
	idx := NewMemIndex()
	c := New(idx, &countingGenerator{err: boom}, WithMetrics(m))

	if _, _, err := c.Generate(context.Background(), generate.SimulationParams{Concept: "Entropy"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped generator error", err)
	}
	if idx.Len() != 0 {
		t.Error("failed generations must not be cached")
	}
}

func TestGenerate_ConcurrentMissesShareGeneration(t *testing.T) {
	t.Parallel()

	m, _ := testMetrics(t)
	gen := &countingGenerator{delay: 50 * time.Millisecond}
	c := New(NewMemIndex(), gen, WithMetrics(m))

	const n = 8
	var wg sync.WaitGroup
	codes := make([]string, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, _, err := c.Generate(context.Background(), generate.SimulationParams{Concept: "Wave Interference"})
			if err != nil {
				t.Errorf("Generate: %v", err)
			}
			codes[i] = code
		}()
	}
	wg.Wait()

	if got := gen.calls.Load(); got != 1 {
		t.Errorf("generator calls = %d, want 1", got)
	}
	for _, code := range codes {
		if code != codes[0] {
			t.Fatalf("concurrent callers got different code: %v", codes)
		}
	}
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestGenerate_CancelledLeaderDoesNotFailJoiners(t *testing.T) {
	t.Parallel()

	m, _ := testMetrics(t)
	gen := &countingGenerator{delay: 100 * time.Millisecond}
	c := New(NewMemIndex(), gen, WithMetrics(m))
	params := generate.SimulationParams{Concept: "Torque"}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, _, err := c.Generate(leaderCtx, params)
		leaderErr <- err
	}()
	waitFor(t, "generation to start", func() bool { return gen.calls.Load() == 1 })

	type result struct {
		code string
		err  error
	}
	joined := make(chan result, 1)
	go func() {
		code, _, err := c.Generate(context.Background(), params)
		joined <- result{code, err}
	}()

	cancelLeader()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Errorf("leader err = %v, want context.Canceled", err)
	}

	got := <-joined
	if got.err != nil {
		t.Fatalf("joiner err = %v, want the shared generation to complete", got.err)
	}
	if got.code != "<code for Torque>" {
		t.Errorf("joiner code = %q", got.code)
	}
	if n := gen.calls.Load(); n != 1 {
		t.Errorf("generator calls = %d, want 1", n)
	}
}

func TestGenerate_AbandonedGenerationStillCaches(t *testing.T) {
	t.Parallel()

	m, _ := testMetrics(t)
	idx := NewMemIndex()
	gen := &countingGenerator{delay: 50 * time.Millisecond}
	c := New(idx, gen, WithMetrics(m))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if _, _, err := c.Generate(ctx, generate.SimulationParams{Concept: "Entropy"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want the caller's deadline", err)
	}
	waitFor(t, "the abandoned generation to be cached", func() bool { return idx.Len() == 1 })

	code, hit, err := c.Generate(context.Background(), generate.SimulationParams{Concept: "Entropy"})
	if err != nil || !hit || code != "<code for Entropy>" {
		t.Errorf("got %q hit=%v err=%v, want a cache hit", code, hit, err)
	}
}

func TestGenerate_SharedGenerationTimeout(t *testing.T) {
	t.Parallel()

	m, _ := testMetrics(t)
	c := New(NewMemIndex(), &countingGenerator{delay: time.Second}, WithMetrics(m), WithTimeout(20*time.Millisecond))

	_, _, err := c.Generate(context.Background(), generate.SimulationParams{Concept: "Angular Momentum"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want the generation timeout", err)
	}
}

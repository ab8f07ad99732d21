// Package simcache avoids redundant simulation synthesis. Every simulation
// request first looks for a cached simulation of a near-identical concept
// name; only on a miss is the slow generator invoked, and its result is
// stored under the exact name that was requested. Near-duplicate phrasings
// therefore converge on one canonical artifact through fuzzy lookup.
//
// A shared generation belongs to no single caller: it runs detached from the
// caller that started it, bounded by its own timeout, and every caller stops
// waiting when its own context ends. One caller giving up never fails the
// others.
//
// Matcher failures never surface to callers: an unavailable approximate
// matcher degrades to exact/substring lookup, and a failing exact lookup is a
// miss.
package simcache

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/livelearn/internal/generate"
	"github.com/MrWong99/livelearn/internal/observe"
	"github.com/MrWong99/livelearn/pkg/store"
	"github.com/MrWong99/livelearn/pkg/types"
)

// Generator produces simulation code on a cache miss.
type Generator interface {
	Generate(ctx context.Context, p generate.SimulationParams) (string, error)
}

// Option is a functional option for [Cache].
type Option func(*Cache)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithTimeout bounds one shared generation. Zero disables the bound.
// Default: 2 minutes.
func WithTimeout(d time.Duration) Option {
	return func(c *Cache) { c.timeout = d }
}

// Cache is the simulation cache. It is safe for concurrent use.
type Cache struct {
	index   store.SimulationIndex
	gen     Generator
	metrics *observe.Metrics
	flights singleflight.Group
	timeout time.Duration
	now     func() time.Time
}

// New returns a Cache over index that falls back to gen.
func New(index store.SimulationIndex, gen Generator, opts ...Option) *Cache {
	c := &Cache{index: index, gen: gen, timeout: 2 * time.Minute, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Generate returns simulation code for p.Concept, from the cache when a close
// enough entry exists. hit reports whether the code came from the cache.
// Concurrent misses for the same normalised name share one generation.
func (c *Cache) Generate(ctx context.Context, p generate.SimulationParams) (code string, hit bool, err error) {
	if e := c.lookup(ctx, p.Concept); e != nil {
		c.metrics.RecordCacheLookup(ctx, "hit")
		return e.Code, true, nil
	}
	c.metrics.RecordCacheLookup(ctx, "miss")

	flight := c.flights.DoChan(normalizeName(p.Concept), func() (any, error) {
		return c.generate(ctx, p)
	})
	select {
	case <-ctx.Done():
		return "", false, fmt.Errorf("simcache: generate %q: %w", p.Concept, ctx.Err())
	case res := <-flight:
		if res.Err != nil {
			return "", false, fmt.Errorf("simcache: generate %q: %w", p.Concept, res.Err)
		}
		return res.Val.(string), false, nil
	}
}

// generate runs one shared generation and caches its result. It keeps the
// values of the starting caller's ctx (trace, lecture scope) but not its
// cancellation.
func (c *Cache) generate(ctx context.Context, p generate.SimulationParams) (string, error) {
	ctx = context.WithoutCancel(ctx)
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	code, err := c.gen.Generate(ctx, p)
	if err != nil {
		return "", err
	}
	entry := types.SimulationCacheEntry{
		Concept:     p.Concept,
		Description: p.Description,
		Code:        code,
		CachedAt:    c.now(),
	}
	if err := c.index.Upsert(ctx, entry); err != nil {
		observe.Logger(ctx).Warn("simcache: upsert failed", "concept", p.Concept, "err", err)
	}
	return code, nil
}

// lookup consults the index, degrading from approximate to exact matching.
// It returns nil on a miss or when both matchers fail.
func (c *Cache) lookup(ctx context.Context, concept string) *types.SimulationCacheEntry {
	log := observe.Logger(ctx)

	e, err := c.index.FindApprox(ctx, concept)
	if err == nil {
		return e
	}
	c.metrics.RecordCacheLookup(ctx, "degraded")
	log.Warn("simcache: approximate lookup failed, using exact match", "concept", concept, "err", err)

	e, err = c.index.FindExact(ctx, concept)
	if err != nil {
		log.Warn("simcache: exact lookup failed, treating as miss", "concept", concept, "err", err)
		return nil
	}
	return e
}

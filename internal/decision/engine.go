// Package decision turns a transcript chunk into an ordered list of typed
// enrichment actions through a single reasoning call.
//
// The call is one fallible operation: any failure aborts the whole chunk and
// is reported as [ErrDecision]. There is no internal retry. The model's
// output is non-deterministic, so callers must not assume identical input
// yields identical actions.
package decision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/livelearn/internal/observe"
	"github.com/MrWong99/livelearn/internal/reasoning"
)

// ErrDecision wraps every failure of the decision call.
var ErrDecision = errors.New("decision: reasoning call failed")

// Input is what the engine decides on.
type Input struct {
	// Text is the chunk's transcript text.
	Text string

	// PreviousContext is recent lecture text preceding the chunk. May be empty.
	PreviousContext string

	// KnownKeywords are concept keywords already extracted for the lecture.
	KnownKeywords []string
}

// Option is a functional option for [Engine].
type Option func(*Engine)

// WithTimeout bounds each decision call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTemperature sets the sampling temperature of decision calls.
// Default: 0.2.
func WithTemperature(t float64) Option {
	return func(e *Engine) { e.temperature = t }
}

// Engine is the decision engine. It is safe for concurrent use.
type Engine struct {
	svc         *reasoning.Service
	timeout     time.Duration
	temperature float64
	metrics     *observe.Metrics
}

// New creates an Engine backed by svc.
func New(svc *reasoning.Service, opts ...Option) *Engine {
	e := &Engine{svc: svc, temperature: 0.2}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// Decide runs the decision call for in. Malformed individual actions are
// dropped; a failed call returns an error wrapping [ErrDecision].
func (e *Engine) Decide(ctx context.Context, in Input) ([]Action, error) {
	ctx, span := observe.StartSpan(ctx, "decision.Decide")
	defer span.End()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := e.svc.GenerateStructured(ctx, reasoning.Prompt{
		System:      systemPrompt,
		User:        buildUserPrompt(in),
		Temperature: e.temperature,
	})
	e.metrics.DecisionDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %w", ErrDecision, err)
	}

	actions, skipped := ParseActions(raw)
	log := observe.Logger(ctx)
	if skipped > 0 {
		log.Debug("decision: skipped malformed actions", "skipped", skipped, "raw", string(raw))
	}
	log.Debug("decision: actions parsed", "count", len(actions))
	return actions, nil
}

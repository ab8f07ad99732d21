package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/livelearn/pkg/provider/llm"
)

// errTruncated marks a backend answer cut off at its token limit so the
// breaker counts it and the next backend gets a chance.
var errTruncated = errors.New("resilience: response truncated")

// LLMFallback is an [llm.Provider] that fails over across reasoning
// backends. A truncated answer counts as a failure while another backend
// remains; the last backend's truncated answer is returned as is.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback returns an LLMFallback preferring primary.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	if cfg.Kind == "" {
		cfg.Kind = "llm"
	}
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete implements [llm.Provider]. Invalid requests are rejected before
// any backend is tried so they never trip a breaker.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("resilience: %w", err)
	}

	var partial *llm.CompletionResponse
	resp, err := ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		resp, err := p.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.Truncated() {
			partial = resp
			return nil, errTruncated
		}
		return resp, nil
	})
	if err != nil && partial != nil && ctx.Err() == nil {
		return partial, nil
	}
	return resp, err
}

// Capabilities reports what every backend in the chain can honour: the
// smallest windows, and JSON mode only when all backends support it.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	backends := f.group.Values()
	caps := backends[0].Capabilities()
	for _, p := range backends[1:] {
		c := p.Capabilities()
		if c.ContextWindow > 0 {
			caps.ContextWindow = minPositive(caps.ContextWindow, c.ContextWindow)
		}
		if c.MaxOutputTokens > 0 {
			caps.MaxOutputTokens = minPositive(caps.MaxOutputTokens, c.MaxOutputTokens)
		}
		caps.SupportsJSONMode = caps.SupportsJSONMode && c.SupportsJSONMode
	}
	return caps
}

// minPositive returns the smaller of a and b, treating zero as unknown.
func minPositive(a, b int) int {
	if a == 0 {
		return b
	}
	return min(a, b)
}

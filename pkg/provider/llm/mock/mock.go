// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the decision engine and the
// generators send the expected CompletionRequests and to feed controlled
// responses without a live LLM backend.
//
// Example:
//
//	p := mock.Reply(`{"actions":[]}`)
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/livelearn/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
// Zero values for response fields cause methods to return zero values and nil
// errors. Set Err fields to inject errors.
type Provider struct {
	mu sync.Mutex

	// CompleteResponse is returned by Complete. May be nil (returns nil, nil).
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned as the error from Complete.
	CompleteErr error

	// Script, if non-empty, is consumed front to back: each call pops one
	// response. CompleteResponse answers once it is exhausted.
	Script []*llm.CompletionResponse

	// CompleteFunc, if set, takes precedence over Script, CompleteResponse
	// and CompleteErr. It lets tests answer differently per request.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// Delay, if positive, is slept before answering (respecting ctx).
	Delay time.Duration

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities llm.ModelCapabilities

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

// Complete records the call and returns CompleteResponse, CompleteErr.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	fn, resp, err, delay := p.CompleteFunc, p.CompleteResponse, p.CompleteErr, p.Delay
	if fn == nil && len(p.Script) > 0 {
		resp, err = p.Script[0], nil
		p.Script = p.Script[1:]
	}
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fn != nil {
		return fn(ctx, req)
	}
	return resp, err
}

// Reply returns a provider that always answers content with FinishStop.
func Reply(content string) *Provider {
	return &Provider{CompleteResponse: &llm.CompletionResponse{
		Content:      content,
		FinishReason: llm.FinishStop,
		Model:        "mock",
	}}
}

// Capabilities returns ModelCapabilities.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}

// CallCount returns the number of Complete invocations so far. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}

// Calls returns a copy of the recorded Complete invocations. Thread-safe.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompleteCall, len(p.CompleteCalls))
	copy(out, p.CompleteCalls)
	return out
}

// JSONCalls returns how many recorded requests asked for JSON mode.
func (p *Provider) JSONCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.CompleteCalls {
		if c.Req.JSONMode {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)

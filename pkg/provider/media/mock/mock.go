// Package mock provides a test double for the media.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/livelearn/pkg/provider/media"
	"github.com/MrWong99/livelearn/pkg/types"
)

// SearchCall records a single invocation of Search.
type SearchCall struct {
	Query string
	Limit int
}

// Provider is a mock implementation of media.Provider.
//
// By default Search answers with one synthetic video per requested slot whose
// title echoes the query. Set Results or SearchFunc to control the answer and
// SearchErr to inject failures.
type Provider struct {
	mu sync.Mutex

	// Results, if non-nil, is returned (truncated to limit) by Search.
	Results []types.Video

	// SearchErr, if non-nil, is returned as the error from Search.
	SearchErr error

	// SearchFunc, if set, takes precedence over Results and SearchErr.
	SearchFunc func(ctx context.Context, query string, limit int) ([]types.Video, error)

	// SearchCalls records every invocation of Search in order.
	SearchCalls []SearchCall
}

// Search records the call and returns the configured answer.
func (p *Provider) Search(ctx context.Context, query string, limit int) ([]types.Video, error) {
	p.mu.Lock()
	p.SearchCalls = append(p.SearchCalls, SearchCall{Query: query, Limit: limit})
	fn, results, err := p.SearchFunc, p.Results, p.SearchErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, query, limit)
	}
	if err != nil {
		return nil, err
	}
	if results == nil {
		out := make([]types.Video, 0, limit)
		for i := range limit {
			out = append(out, types.Video{
				Title: query,
				URL:   "https://www.youtube.com/watch?v=mock" + string(rune('a'+i)),
			})
		}
		return out, nil
	}
	if len(results) > limit {
		results = results[:limit]
	}
	out := make([]types.Video, len(results))
	copy(out, results)
	return out, nil
}

// Calls returns a copy of the recorded Search invocations. Thread-safe.
func (p *Provider) Calls() []SearchCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SearchCall, len(p.SearchCalls))
	copy(out, p.SearchCalls)
	return out
}

var _ media.Provider = (*Provider)(nil)

package resilience

import (
	"context"

	"github.com/MrWong99/livelearn/pkg/provider/media"
	"github.com/MrWong99/livelearn/pkg/types"
)

// MediaFallback is a [media.Provider] that fails over across video search
// backends, for example from the YouTube Data API to LLM-backed search once
// the API quota is exhausted.
type MediaFallback struct {
	group *FallbackGroup[media.Provider]
}

var _ media.Provider = (*MediaFallback)(nil)

// NewMediaFallback returns a MediaFallback preferring primary.
func NewMediaFallback(primary media.Provider, primaryName string, cfg FallbackConfig) *MediaFallback {
	if cfg.Kind == "" {
		cfg.Kind = "media"
	}
	return &MediaFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *MediaFallback) AddFallback(name string, provider media.Provider) {
	f.group.AddFallback(name, provider)
}

// Search implements [media.Provider]. An empty answer is a valid answer and
// does not trigger failover.
func (f *MediaFallback) Search(ctx context.Context, query string, limit int) ([]types.Video, error) {
	return ExecuteWithResult(ctx, f.group, func(p media.Provider) ([]types.Video, error) {
		return p.Search(ctx, query, limit)
	})
}

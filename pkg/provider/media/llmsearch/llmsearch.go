// Package llmsearch provides a media provider that asks a language model for
// reference videos. It is a stand-in for deployments without a YouTube Data
// API key; only URLs pointing at youtube.com/watch are accepted, so answers
// that drift towards arbitrary sites are discarded.
package llmsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/livelearn/internal/reasoning"
	"github.com/MrWong99/livelearn/pkg/provider/llm"
	"github.com/MrWong99/livelearn/pkg/provider/media"
	"github.com/MrWong99/livelearn/pkg/types"
)

const systemPrompt = `You recommend educational YouTube videos.
Return ONLY a JSON array of objects, each with:
- "title": the video title
- "url": the full YouTube watch URL (must start with https://www.youtube.com/watch?v=)
No markdown, no explanations.`

// Provider implements media.Provider on top of an LLM.
type Provider struct {
	svc *reasoning.Service
}

// New returns a Provider that prompts p for video suggestions.
func New(p llm.Provider, opts ...reasoning.Option) *Provider {
	opts = append([]reasoning.Option{reasoning.WithName("llmsearch"), reasoning.WithTemperature(0.2)}, opts...)
	return &Provider{svc: reasoning.New(p, opts...)}
}

type suggestion struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Search implements media.Provider. Unparseable answers yield an error;
// individual entries without a watch URL are skipped.
func (p *Provider) Search(ctx context.Context, query string, limit int) ([]types.Video, error) {
	if limit <= 0 {
		return nil, nil
	}

	raw, err := p.svc.GenerateStructured(ctx, reasoning.Prompt{
		System: systemPrompt,
		User:   fmt.Sprintf("Find %d relevant and popular YouTube videos matching the query: %q.", limit, query),
	})
	if err != nil {
		return nil, fmt.Errorf("llmsearch: search %q: %w", query, err)
	}

	items, err := decodeSuggestions(raw)
	if err != nil {
		return nil, fmt.Errorf("llmsearch: decode %q: %w", query, err)
	}

	videos := make([]types.Video, 0, limit)
	for _, it := range items {
		if len(videos) >= limit {
			break
		}
		url := strings.TrimSpace(it.URL)
		if !strings.Contains(url, "youtube.com/watch") {
			continue
		}
		title := strings.TrimSpace(it.Title)
		if title == "" {
			title = "Unknown Title"
		}
		videos = append(videos, types.Video{
			Title:  title,
			URL:    url,
			Status: types.StatusReady,
		})
	}
	return videos, nil
}

// decodeSuggestions accepts a bare array or an object wrapping one under
// "videos" or "results", since JSON mode forces some backends to return an
// object.
func decodeSuggestions(raw json.RawMessage) ([]suggestion, error) {
	var items []suggestion
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}
	var wrapped struct {
		Videos  []suggestion `json:"videos"`
		Results []suggestion `json:"results"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	if len(wrapped.Videos) > 0 {
		return wrapped.Videos, nil
	}
	return wrapped.Results, nil
}

var _ media.Provider = (*Provider)(nil)

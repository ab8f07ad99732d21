// Package youtube provides a media provider backed by the YouTube Data API v3.
package youtube

import (
	"context"
	"fmt"
	"html"
	"net/http"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/MrWong99/livelearn/pkg/provider/media"
	"github.com/MrWong99/livelearn/pkg/types"
)

const watchURLPrefix = "https://www.youtube.com/watch?v="

// Provider implements media.Provider using the YouTube search endpoint.
type Provider struct {
	svc        *yt.Service
	safeSearch string
	language   string
}

type config struct {
	endpoint   string
	httpClient *http.Client
	safeSearch string
	language   string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithEndpoint overrides the API base URL. Mainly useful for tests.
func WithEndpoint(url string) Option {
	return func(c *config) { c.endpoint = url }
}

// WithHTTPClient sets the HTTP client used for API calls. When set, the API
// key is not attached automatically; the client must authenticate itself.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// WithSafeSearch sets the safeSearch filter ("none", "moderate", "strict").
// Default: "strict".
func WithSafeSearch(level string) Option {
	return func(c *config) { c.safeSearch = level }
}

// WithRelevanceLanguage biases results towards the given ISO 639-1 language.
func WithRelevanceLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// New constructs a YouTube media provider authenticated with apiKey.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	cfg := &config{safeSearch: "strict"}
	for _, o := range opts {
		o(cfg)
	}
	if apiKey == "" && cfg.httpClient == nil {
		return nil, fmt.Errorf("youtube: apiKey must not be empty")
	}

	var clientOpts []option.ClientOption
	if cfg.httpClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(cfg.httpClient))
	} else {
		clientOpts = append(clientOpts, option.WithAPIKey(apiKey))
	}
	if cfg.endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.endpoint))
	}

	svc, err := yt.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("youtube: create service: %w", err)
	}
	return &Provider{svc: svc, safeSearch: cfg.safeSearch, language: cfg.language}, nil
}

// Search implements media.Provider.
func (p *Provider) Search(ctx context.Context, query string, limit int) ([]types.Video, error) {
	if limit <= 0 {
		return []types.Video{}, nil
	}

	call := p.svc.Search.List([]string{"snippet"}).
		Q(query).
		Type("video").
		MaxResults(int64(limit)).
		SafeSearch(p.safeSearch)
	if p.language != "" {
		call = call.RelevanceLanguage(p.language)
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("youtube: search %q: %w", query, err)
	}

	videos := make([]types.Video, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
			continue
		}
		videos = append(videos, types.Video{
			Title:       html.UnescapeString(item.Snippet.Title),
			URL:         watchURLPrefix + item.Id.VideoId,
			Channel:     item.Snippet.ChannelTitle,
			PublishedAt: item.Snippet.PublishedAt,
		})
		if len(videos) == limit {
			break
		}
	}
	return videos, nil
}

var _ media.Provider = (*Provider)(nil)

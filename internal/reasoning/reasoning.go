// Package reasoning wraps an [llm.Provider] with the two call shapes the
// pipeline needs: structured generation, which must yield a JSON document,
// and free-text generation.
//
// Models frequently decorate JSON with markdown fences or prose. The
// structured call therefore extracts the first JSON document it can find
// instead of requiring a clean response; only when no JSON can be recovered at
// all is the call treated as failed.
package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/livelearn/internal/observe"
	"github.com/MrWong99/livelearn/pkg/provider/llm"
)

// ErrNoJSON is returned when a structured response contains no parseable JSON.
var ErrNoJSON = errors.New("reasoning: no JSON document in response")

// ErrEmptyResponse is returned when the backend answers with no content.
var ErrEmptyResponse = errors.New("reasoning: empty response")

// ErrTruncated is returned when the backend stopped at its token limit and
// the partial answer cannot be used.
var ErrTruncated = errors.New("reasoning: response truncated at token limit")

// Prompt is a single reasoning request.
type Prompt struct {
	// System is the instruction block. Optional.
	System string

	// User is the request body.
	User string

	// Temperature overrides the service default when non-zero.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// Option is a functional option for [Service].
type Option func(*Service)

// WithTemperature sets the default sampling temperature. Default: 0.3.
func WithTemperature(t float64) Option {
	return func(s *Service) { s.temperature = t }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithName sets the provider label used in metrics. Default: "llm".
func WithName(name string) Option {
	return func(s *Service) { s.name = name }
}

// Service issues reasoning calls against an LLM provider. It is safe for
// concurrent use.
type Service struct {
	llm         llm.Provider
	temperature float64
	metrics     *observe.Metrics
	name        string
}

// New returns a [Service] backed by provider.
func New(provider llm.Provider, opts ...Option) *Service {
	s := &Service{
		llm:         provider,
		temperature: 0.3,
		name:        "llm",
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// GenerateStructured sends p with JSON mode requested and returns the JSON
// document extracted from the answer. Transport errors, empty answers and
// answers without recoverable JSON all return a non-nil error.
func (s *Service) GenerateStructured(ctx context.Context, p Prompt) (json.RawMessage, error) {
	resp, err := s.complete(ctx, p, true)
	if err != nil {
		return nil, err
	}
	raw, err := ExtractJSON(resp.Content)
	if err != nil {
		if resp.Truncated() {
			return nil, fmt.Errorf("%w: %w", err, ErrTruncated)
		}
		return nil, err
	}
	return raw, nil
}

// GenerateText sends p and returns the raw answer text. A truncated answer is
// an error because generated pages are unusable when cut off.
func (s *Service) GenerateText(ctx context.Context, p Prompt) (string, error) {
	resp, err := s.complete(ctx, p, false)
	if err != nil {
		return "", err
	}
	if resp.Truncated() {
		return "", ErrTruncated
	}
	return resp.Content, nil
}

func (s *Service) complete(ctx context.Context, p Prompt, jsonMode bool) (*llm.CompletionResponse, error) {
	temp := p.Temperature
	if temp == 0 {
		temp = s.temperature
	}
	req := llm.CompletionRequest{
		SystemPrompt: p.System,
		Messages:     llm.UserMessage(p.User),
		Temperature:  temp,
		MaxTokens:    p.MaxTokens,
		JSONMode:     jsonMode,
	}

	start := time.Now()
	resp, err := s.llm.Complete(ctx, req)
	s.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderRequest(ctx, s.name, "llm", "error")
		s.metrics.RecordProviderError(ctx, s.name, "llm")
		return nil, fmt.Errorf("reasoning: complete: %w", err)
	}

	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		s.metrics.RecordProviderRequest(ctx, s.name, "llm", "empty")
		return nil, ErrEmptyResponse
	}
	if resp.Truncated() {
		s.metrics.RecordProviderRequest(ctx, s.name, "llm", "truncated")
		observe.Logger(ctx).Warn("reasoning: response hit the token limit",
			"model", resp.Model, "completion_tokens", resp.Usage.CompletionTokens)
		return resp, nil
	}
	s.metrics.RecordProviderRequest(ctx, s.name, "llm", "ok")
	return resp, nil
}

// ExtractJSON recovers a JSON document from model output. It tries, in order:
// the whole trimmed text, the body of a ```json fence, the body of any other
// fence, and finally the first balanced {...} or [...] span.
func ExtractJSON(content string) (json.RawMessage, error) {
	s := strings.TrimSpace(content)
	if s == "" {
		return nil, ErrNoJSON
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s), nil
	}

	for _, fence := range []string{"```json", "```JSON", "```"} {
		if body, ok := fencedBlock(s, fence); ok && json.Valid([]byte(body)) {
			return json.RawMessage(body), nil
		}
	}

	if span, ok := balancedSpan(s); ok && json.Valid([]byte(span)) {
		return json.RawMessage(span), nil
	}
	return nil, ErrNoJSON
}

// fencedBlock returns the trimmed body of the first markdown block opened by
// fence.
func fencedBlock(s, fence string) (string, bool) {
	_, after, ok := strings.Cut(s, fence)
	if !ok {
		return "", false
	}
	// Skip the rest of the opening line (e.g. a language tag after ```).
	if fence == "```" {
		if nl := strings.IndexByte(after, '\n'); nl >= 0 && !strings.ContainsAny(after[:nl], "{[") {
			after = after[nl+1:]
		}
	}
	body, _, ok := strings.Cut(after, "```")
	if !ok {
		return "", false
	}
	return strings.TrimSpace(body), true
}

// balancedSpan returns the first {...} or [...] span whose brackets balance,
// ignoring brackets inside JSON strings.
func balancedSpan(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}

	var (
		depth    int
		inString bool
		escaped  bool
	)
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

package llm

import "errors"

// Message roles understood by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Finish reasons normalised across backends. Backends may report others
// verbatim.
const (
	FinishStop   = "stop"
	FinishLength = "length"
)

// ErrNoMessages is returned by [CompletionRequest.Validate] for a request
// without messages.
var ErrNoMessages = errors.New("llm: request has no messages")

// Message is a single turn sent to the model.
type Message struct {
	// Role is one of [RoleSystem], [RoleUser] or [RoleAssistant].
	Role string

	// Content is the text of the turn.
	Content string
}

// UserMessage returns a single-turn user message list.
func UserMessage(content string) []Message {
	return []Message{{Role: RoleUser, Content: content}}
}

// Validate reports whether the request can be sent. Backends call it before
// building their SDK params.
func (r CompletionRequest) Validate() error {
	if len(r.Messages) == 0 {
		return ErrNoMessages
	}
	return nil
}

// Truncated reports whether the backend stopped because it hit the token
// limit. Truncated generated pages and JSON documents are usually unusable.
func (r *CompletionResponse) Truncated() bool {
	return r != nil && r.FinishReason == FinishLength
}

// ModelCapabilities is static metadata about the configured model.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input plus output.
	ContextWindow int

	// MaxOutputTokens bounds a single completion. Generated simulation pages
	// need a few thousand tokens.
	MaxOutputTokens int

	// SupportsJSONMode reports that the backend can be forced to emit one
	// JSON object, which the decision call relies on when available.
	SupportsJSONMode bool
}

package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/livelearn/pkg/provider/llm"
	llmmock "github.com/MrWong99/livelearn/pkg/provider/llm/mock"
)

var decideReq = llm.CompletionRequest{
	SystemPrompt: "Return a JSON object with an actions array.",
	Messages:     llm.UserMessage("The derivative measures instantaneous rate of change."),
	JSONMode:     true,
}

func TestLLMFallback_Complete(t *testing.T) {
	tests := []struct {
		name        string
		primary     *llmmock.Provider
		wantContent string
		wantCalls   [2]int
	}{
		{
			name:        "primary answers",
			primary:     llmmock.Reply("from primary"),
			wantContent: "from primary",
			wantCalls:   [2]int{1, 0},
		},
		{
			name:        "fails over on error",
			primary:     &llmmock.Provider{CompleteErr: errors.New("rate limited")},
			wantContent: "from secondary",
			wantCalls:   [2]int{1, 1},
		},
		{
			name: "fails over on truncation",
			primary: &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{
				Content: `{"actions":[`, FinishReason: llm.FinishLength,
			}},
			wantContent: "from secondary",
			wantCalls:   [2]int{1, 1},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			secondary := llmmock.Reply("from secondary")

			fb := NewLLMFallback(tc.primary, "openai", FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3}})
			fb.AddFallback("ollama", secondary)

			resp, err := fb.Complete(context.Background(), decideReq)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Content != tc.wantContent {
				t.Errorf("content = %q, want %q", resp.Content, tc.wantContent)
			}
			if tc.primary.CallCount() != tc.wantCalls[0] || secondary.CallCount() != tc.wantCalls[1] {
				t.Errorf("calls = %d/%d, want %v", tc.primary.CallCount(), secondary.CallCount(), tc.wantCalls)
			}
			if tc.wantCalls[1] == 1 && secondary.JSONCalls() != 1 {
				t.Error("request must reach the fallback unchanged")
			}
		})
	}
}

func TestLLMFallback_LastTruncatedAnswerReturned(t *testing.T) {
	cut := &llm.CompletionResponse{Content: "<html><body>", FinishReason: llm.FinishLength}
	fb := NewLLMFallback(&llmmock.Provider{CompleteErr: errors.New("down")}, "openai", FallbackConfig{})
	fb.AddFallback("ollama", &llmmock.Provider{CompleteResponse: cut})

	resp, err := fb.Complete(context.Background(), decideReq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Truncated() {
		t.Error("caller should see the truncated answer and decide")
	}
}

func TestLLMFallback_AllFail(t *testing.T) {
	fb := NewLLMFallback(&llmmock.Provider{CompleteErr: errors.New("down")}, "openai", FallbackConfig{})
	fb.AddFallback("anyllm", &llmmock.Provider{CompleteErr: errors.New("also down")})

	if _, err := fb.Complete(context.Background(), decideReq); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestLLMFallback_InvalidRequestSkipsBackends(t *testing.T) {
	primary := llmmock.Reply("unused")
	fb := NewLLMFallback(primary, "openai", FallbackConfig{})

	if _, err := fb.Complete(context.Background(), llm.CompletionRequest{}); !errors.Is(err, llm.ErrNoMessages) {
		t.Fatalf("err = %v, want ErrNoMessages", err)
	}
	if primary.CallCount() != 0 {
		t.Error("backend called for an invalid request")
	}
}

func TestLLMFallback_Capabilities(t *testing.T) {
	fb := NewLLMFallback(&llmmock.Provider{ModelCapabilities: llm.ModelCapabilities{
		ContextWindow: 128_000, MaxOutputTokens: 16_384, SupportsJSONMode: true,
	}}, "openai", FallbackConfig{})
	fb.AddFallback("ollama", &llmmock.Provider{ModelCapabilities: llm.ModelCapabilities{
		ContextWindow: 32_000, MaxOutputTokens: 4_096,
	}})
	fb.AddFallback("unknown", &llmmock.Provider{})

	caps := fb.Capabilities()
	want := llm.ModelCapabilities{ContextWindow: 32_000, MaxOutputTokens: 4_096}
	if caps != want {
		t.Fatalf("capabilities = %+v, want %+v", caps, want)
	}
}

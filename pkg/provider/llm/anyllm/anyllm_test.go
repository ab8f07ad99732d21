package anyllm

import (
	"context"
	"errors"
	"slices"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/livelearn/pkg/provider/llm"
)

func TestBuildParams_SystemPromptFirst(t *testing.T) {
	p := &Provider{model: "gemini-2.0-flash"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You generate interactive physics simulations.",
		Messages:     llm.UserMessage("Projectile motion"),
		Temperature:  0.4,
		MaxTokens:    256,
	})
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("first message role = %q, want system", params.Messages[0].Role)
	}
	if params.Messages[1].ContentString() != "Projectile motion" {
		t.Errorf("user content = %q", params.Messages[1].ContentString())
	}
	if params.Temperature == nil || *params.Temperature != 0.4 {
		t.Errorf("temperature not forwarded: %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 256 {
		t.Errorf("max tokens not forwarded: %v", params.MaxTokens)
	}
	if params.Model != "gemini-2.0-flash" {
		t.Errorf("model = %q", params.Model)
	}
}

func TestBuildParams_ClampsAndOmits(t *testing.T) {
	p := &Provider{model: "llama3"}

	params := p.buildParams(llm.CompletionRequest{Messages: llm.UserMessage("hi")})
	if params.Temperature != nil || params.MaxTokens != nil {
		t.Error("zero temperature and max tokens should be omitted")
	}

	params = p.buildParams(llm.CompletionRequest{Messages: llm.UserMessage("hi"), MaxTokens: 20_000})
	if params.MaxTokens == nil || *params.MaxTokens != 4_096 {
		t.Errorf("max tokens = %v, want clamp to 4096", params.MaxTokens)
	}
}

func TestNormaliseFinish(t *testing.T) {
	tests := map[string]string{
		"stop":           llm.FinishStop,
		"end_turn":       llm.FinishStop,
		"length":         llm.FinishLength,
		"max_tokens":     llm.FinishLength,
		"MAX_TOKENS":     llm.FinishLength,
		"content_filter": "content_filter",
		"":               "",
	}
	for in, want := range tests {
		if got := normaliseFinish(in); got != want {
			t.Errorf("normaliseFinish(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model       string
		wantContext int
	}{
		{"claude-3-5-sonnet-latest", 200_000},
		{"gemini-1.5-pro", 2_097_152},
		{"gemini-2.0-flash", 1_048_576},
		{"deepseek-chat", 64_000},
		{"llama3", 128_000},
	}
	for _, tc := range tests {
		t.Run(tc.model, func(t *testing.T) {
			if got := modelCapabilities(tc.model).ContextWindow; got != tc.wantContext {
				t.Errorf("ContextWindow = %d, want %d", got, tc.wantContext)
			}
		})
	}
}

func TestSupportedProviders(t *testing.T) {
	names := SupportedProviders()
	if !slices.IsSorted(names) {
		t.Errorf("names not sorted: %v", names)
	}
	for _, want := range []string{"anthropic", "gemini", "ollama"} {
		if !slices.Contains(names, want) {
			t.Errorf("missing %q in %v", want, names)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty providerName")
	}
	if _, err := New("ollama", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy")); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestNew_CaseInsensitive(t *testing.T) {
	p, err := New("Ollama", "llama3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.name != "ollama" {
		t.Errorf("name = %q", p.name)
	}
}

func TestComplete_RejectsEmptyRequest(t *testing.T) {
	p, err := New("ollama", "llama3")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, llm.ErrNoMessages) {
		t.Fatalf("err = %v, want ErrNoMessages", err)
	}
}

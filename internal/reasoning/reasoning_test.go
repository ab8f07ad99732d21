package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/livelearn/internal/observe"
	"github.com/MrWong99/livelearn/pkg/provider/llm"
	"github.com/MrWong99/livelearn/pkg/provider/llm/mock"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain object", in: `{"a":1}`, want: `{"a":1}`},
		{name: "plain array with whitespace", in: "  [1,2]\n", want: `[1,2]`},
		{name: "json fence", in: "Here you go:\n```json\n{\"a\":1}\n```\nthanks", want: `{"a":1}`},
		{name: "bare fence", in: "```\n{\"a\":2}\n```", want: `{"a":2}`},
		{name: "prose around object", in: `Sure! {"actions": []} Hope that helps.`, want: `{"actions": []}`},
		{name: "braces inside strings", in: `note {"text":"a } b"} end`, want: `{"text":"a } b"}`},
		{name: "escaped quote", in: `x {"t":"say \"hi\" }"} y`, want: `{"t":"say \"hi\" }"}`},
		{name: "no json", in: "I cannot help with that.", wantErr: true},
		{name: "empty", in: "   ", wantErr: true},
		{name: "unbalanced", in: `{"a": [1, 2}`, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ExtractJSON(tc.in)
			if tc.wantErr {
				if !errors.Is(err, ErrNoJSON) {
					t.Fatalf("expected ErrNoJSON, got %v (%s)", err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tc.want {
				t.Errorf("ExtractJSON = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestGenerateStructured_RequestsJSONMode(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "```json\n{\"ok\":true}\n```"}}
	svc := New(p, WithMetrics(testMetrics(t)), WithTemperature(0.2))

	raw, err := svc.GenerateStructured(context.Background(), Prompt{System: "sys", User: "go"})
	if err != nil {
		t.Fatalf("GenerateStructured: %v", err)
	}
	var out struct{ OK bool }
	if err := json.Unmarshal(raw, &out); err != nil || !out.OK {
		t.Fatalf("unexpected payload %s (err=%v)", raw, err)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	req := calls[0].Req
	if !req.JSONMode {
		t.Error("expected JSON mode to be requested")
	}
	if req.SystemPrompt != "sys" {
		t.Errorf("system prompt = %q", req.SystemPrompt)
	}
	if req.Temperature != 0.2 {
		t.Errorf("temperature = %v, want service default 0.2", req.Temperature)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.Messages[0].Content != "go" {
		t.Errorf("unexpected messages: %+v", req.Messages)
	}
}

func TestGenerateStructured_PromptTemperatureOverrides(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{}`}}
	svc := New(p, WithMetrics(testMetrics(t)))

	if _, err := svc.GenerateStructured(context.Background(), Prompt{User: "x", Temperature: 0.9}); err != nil {
		t.Fatalf("GenerateStructured: %v", err)
	}
	if got := p.Calls()[0].Req.Temperature; got != 0.9 {
		t.Errorf("temperature = %v, want 0.9", got)
	}
}

func TestGenerateStructured_Failures(t *testing.T) {
	t.Parallel()

	backendErr := errors.New("rate limited")
	tests := []struct {
		name   string
		p      *mock.Provider
		target error
	}{
		{name: "transport", p: &mock.Provider{CompleteErr: backendErr}, target: backendErr},
		{name: "nil response", p: &mock.Provider{}, target: ErrEmptyResponse},
		{name: "blank content", p: &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "  "}}, target: ErrEmptyResponse},
		{name: "prose only", p: &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "no idea"}}, target: ErrNoJSON},
		{name: "truncated", p: &mock.Provider{CompleteResponse: &llm.CompletionResponse{
			Content: `{"actions":[{"type":"EXTRACT_CONC`, FinishReason: llm.FinishLength,
		}}, target: ErrTruncated},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := New(tc.p, WithMetrics(testMetrics(t)))
			_, err := svc.GenerateStructured(context.Background(), Prompt{User: "x"})
			if !errors.Is(err, tc.target) {
				t.Fatalf("err = %v, want %v", err, tc.target)
			}
		})
	}
}

func TestGenerateText(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "<html></html>"}}
	svc := New(p, WithMetrics(testMetrics(t)))

	got, err := svc.GenerateText(context.Background(), Prompt{User: "draw"})
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if got != "<html></html>" {
		t.Errorf("GenerateText = %q", got)
	}
	if p.Calls()[0].Req.JSONMode {
		t.Error("free text calls must not request JSON mode")
	}
}

func TestGenerateText_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &mock.Provider{CompleteFunc: func(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, ctx.Err()
	}}
	svc := New(p, WithMetrics(testMetrics(t)))
	if _, err := svc.GenerateText(ctx, Prompt{User: "x"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestGenerateText_Truncated(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content:      "<html><body><canvas",
		FinishReason: llm.FinishLength,
	}}
	svc := New(p, WithMetrics(testMetrics(t)))
	if _, err := svc.GenerateText(context.Background(), Prompt{User: "draw"}); !errors.Is(err, ErrTruncated) {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
}

func TestGenerateStructured_TruncatedButComplete(t *testing.T) {
	t.Parallel()

	// The document closed before the limit hit, so it is still usable.
	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content:      `{"actions":[]} and then some trailing prose that got cut`,
		FinishReason: llm.FinishLength,
	}}
	svc := New(p, WithMetrics(testMetrics(t)))
	raw, err := svc.GenerateStructured(context.Background(), Prompt{User: "x"})
	if err != nil {
		t.Fatalf("GenerateStructured: %v", err)
	}
	if string(raw) != `{"actions":[]}` {
		t.Errorf("raw = %s", raw)
	}
}

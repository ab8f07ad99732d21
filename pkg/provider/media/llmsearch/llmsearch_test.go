package llmsearch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/livelearn/pkg/provider/llm"
	"github.com/MrWong99/livelearn/pkg/provider/llm/mock"
)

func TestSearch_KeepsOnlyWatchURLs(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "```json\n" + `[
		{"title": "Newton's laws explained", "url": "https://www.youtube.com/watch?v=abc"},
		{"title": "Blog post", "url": "https://example.com/newton"},
		{"title": "", "url": "https://youtube.com/watch?v=def"},
		{"title": "Third", "url": "https://www.youtube.com/watch?v=ghi"}
	]` + "\n```"}}

	videos, err := New(p).Search(context.Background(), "newton's second law", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(videos) != 2 {
		t.Fatalf("len(videos) = %d, want 2", len(videos))
	}
	if videos[0].URL != "https://www.youtube.com/watch?v=abc" {
		t.Errorf("videos[0].URL = %q", videos[0].URL)
	}
	if videos[1].Title != "Unknown Title" {
		t.Errorf("videos[1].Title = %q, want placeholder", videos[1].Title)
	}
	for _, v := range videos {
		if v.Status != "ready" {
			t.Errorf("status = %q, want ready", v.Status)
		}
	}

	prompt := p.Calls()[0].Req.Messages[0].Content
	if !strings.Contains(prompt, "2 relevant") || !strings.Contains(prompt, "newton's second law") {
		t.Errorf("prompt does not carry limit and query: %q", prompt)
	}
}

func TestSearch_WrappedObject(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content: `{"videos":[{"title":"BFS","url":"https://www.youtube.com/watch?v=bfs"}]}`,
	}}
	videos, err := New(p).Search(context.Background(), "bfs", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(videos) != 1 || videos[0].Title != "BFS" {
		t.Fatalf("unexpected videos: %+v", videos)
	}
}

func TestSearch_Errors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	if _, err := New(&mock.Provider{CompleteErr: boom}).Search(context.Background(), "q", 1); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped boom", err)
	}

	notJSON := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "I can't browse."}}
	if _, err := New(notJSON).Search(context.Background(), "q", 1); err == nil {
		t.Error("expected error for prose answer")
	}

	wrongShape := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `"just a string"`}}
	if _, err := New(wrongShape).Search(context.Background(), "q", 1); err == nil {
		t.Error("expected error for non-list answer")
	}
}

func TestSearch_ZeroLimitSkipsCall(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{}
	videos, err := New(p).Search(context.Background(), "q", 0)
	if err != nil || videos != nil {
		t.Fatalf("Search = %v, %v; want nil, nil", videos, err)
	}
	if p.CallCount() != 0 {
		t.Errorf("expected no LLM call, got %d", p.CallCount())
	}
}

package generate

import (
	"context"
	"errors"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/livelearn/internal/observe"
	"github.com/MrWong99/livelearn/internal/reasoning"
	"github.com/MrWong99/livelearn/pkg/provider/llm"
	"github.com/MrWong99/livelearn/pkg/provider/llm/mock"
)

func newService(t *testing.T, p llm.Provider) *reasoning.Service {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return reasoning.New(p, reasoning.WithMetrics(m))
}

func answer(content string) *mock.Provider {
	return &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: content}}
}

func TestExtractHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "html fence", in: "Here:\n```html\n<html><body>x</body></html>\n```\nEnjoy", want: "<html><body>x</body></html>"},
		{name: "uppercase fence", in: "```HTML\n<div>y</div>```", want: "<div>y</div>"},
		{name: "generic fence", in: "```\n<canvas></canvas>\n```", want: "<canvas></canvas>"},
		{name: "raw html", in: "  <!DOCTYPE html><html></html>  ", want: "<!DOCTYPE html><html></html>"},
		{name: "prose then doctype", in: "Sure, here it is: <!doctype html><html></html>", want: "<!doctype html><html></html>"},
		{name: "no html", in: "I cannot draw that.", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ExtractHTML(tc.in)
			if tc.wantErr {
				if !errors.Is(err, ErrNoHTML) {
					t.Fatalf("err = %v, want ErrNoHTML", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractHTML: %v", err)
			}
			if got != tc.want {
				t.Errorf("ExtractHTML = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSimulator_Generate(t *testing.T) {
	t.Parallel()

	p := answer("```html\n<html>sim</html>\n```")
	code, err := NewSimulator(newService(t, p)).Generate(context.Background(), SimulationParams{
		Concept: "Projectile Motion",
		Context: "we launch a ball",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if code != "<html>sim</html>" {
		t.Errorf("code = %q", code)
	}

	req := p.Calls()[0].Req
	user := req.Messages[0].Content
	if !strings.Contains(user, "Interactive visualization of Projectile Motion") {
		t.Errorf("missing default description:\n%s", user)
	}
	if !strings.Contains(user, "we launch a ball") {
		t.Errorf("missing lecture context:\n%s", user)
	}
	if req.JSONMode {
		t.Error("simulation calls are free text")
	}
}

func TestSimulator_Failures(t *testing.T) {
	t.Parallel()

	sim := NewSimulator(newService(t, answer("no can do")))
	if _, err := sim.Generate(context.Background(), SimulationParams{Concept: "x"}); !errors.Is(err, ErrNoHTML) {
		t.Errorf("err = %v, want ErrNoHTML", err)
	}

	boom := errors.New("boom")
	sim = NewSimulator(newService(t, &mock.Provider{CompleteErr: boom}))
	if _, err := sim.Generate(context.Background(), SimulationParams{Concept: "x"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestQuizzer_Generate(t *testing.T) {
	t.Parallel()

	p := answer(`{"questions":[
		{"id":"a","text":"What is F?","options":["ma","mv","m/a","a/m"],"correct_option_index":0,"explanation":"Newton"},
		{"text":"Bad index","options":["x","y"],"correct_option_index":5},
		{"text":"One option","options":["x"],"correct_option_index":0},
		{"text":"Unit of force?","options":["N","J"],"correct_option_index":0}
	]}`)
	qs, err := NewQuizzer(newService(t, p), 0).Generate(context.Background(), QuizParams{
		Topic:   "Forces",
		Concept: "Newton's Second Law",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("len(questions) = %d, want 2 valid", len(qs))
	}
	if qs[0].ID != "a" || qs[1].ID != "q2" {
		t.Errorf("ids = %q, %q", qs[0].ID, qs[1].ID)
	}

	user := p.Calls()[0].Req.Messages[0].Content
	if !strings.Contains(user, "Write 3 questions") {
		t.Errorf("default question count not requested:\n%s", user)
	}
	if !strings.Contains(user, "focus: Newton's Second Law") {
		t.Errorf("concept focus missing:\n%s", user)
	}
}

func TestQuizzer_Truncates(t *testing.T) {
	t.Parallel()

	p := answer(`{"questions":[
		{"text":"1","options":["a","b"],"correct_option_index":0},
		{"text":"2","options":["a","b"],"correct_option_index":1},
		{"text":"3","options":["a","b"],"correct_option_index":1}
	]}`)
	qs, err := NewQuizzer(newService(t, p), 5).Generate(context.Background(), QuizParams{Topic: "t", NumQuestions: 2})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(qs) != 2 {
		t.Errorf("len = %d, want 2", len(qs))
	}
}

func TestQuizzer_NoQuestions(t *testing.T) {
	t.Parallel()

	for _, content := range []string{`{"questions":[]}`, `{"other":1}`, `{"questions":[{"text":"","options":["a","b"]}]}`} {
		_, err := NewQuizzer(newService(t, answer(content)), 3).Generate(context.Background(), QuizParams{Topic: "t"})
		if !errors.Is(err, ErrNoQuestions) {
			t.Errorf("content %s: err = %v, want ErrNoQuestions", content, err)
		}
	}
	if _, err := NewQuizzer(newService(t, answer(`[1,2]`)), 3).Generate(context.Background(), QuizParams{Topic: "t"}); err == nil {
		t.Error("expected decode error for array answer")
	}
}

func TestFlashcards_Generate(t *testing.T) {
	t.Parallel()

	p := answer(`{"front":"What does F=ma state?","back":""}`)
	front, back, err := NewFlashcards(newService(t, p)).Generate(context.Background(), FlashcardParams{
		Front: "F=ma?", Back: "Force equals mass times acceleration", Concept: "Newton's Second Law",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if front != "What does F=ma state?" {
		t.Errorf("front = %q", front)
	}
	if back != "Force equals mass times acceleration" {
		t.Errorf("back = %q, want draft kept", back)
	}
}

func TestFlashcards_Failure(t *testing.T) {
	t.Parallel()

	_, _, err := NewFlashcards(newService(t, answer("nope"))).Generate(context.Background(), FlashcardParams{Front: "a", Back: "b"})
	if !errors.Is(err, reasoning.ErrNoJSON) {
		t.Errorf("err = %v, want ErrNoJSON", err)
	}
}

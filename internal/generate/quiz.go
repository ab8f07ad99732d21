package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/livelearn/internal/reasoning"
	"github.com/MrWong99/livelearn/pkg/types"
)

// ErrNoQuestions is returned when a quiz answer has no usable question.
var ErrNoQuestions = errors.New("generate: quiz has no valid questions")

// DefaultQuizQuestions is the question count used when none is configured.
const DefaultQuizQuestions = 3

const quizSystemPrompt = `You write multiple-choice quizzes for university students.
Return ONLY a JSON object:
{"questions": [{"id": "q1", "text": "...", "options": ["...", "...", "...", "..."], "correct_option_index": 0, "explanation": "..."}]}
Every question has exactly four options and one correct answer.`

// QuizParams describes one quiz request.
type QuizParams struct {
	Topic   string
	Concept string
	Context string

	// NumQuestions overrides the generator default when positive.
	NumQuestions int
}

// Quizzer generates quizzes.
type Quizzer struct {
	svc       *reasoning.Service
	questions int
}

// NewQuizzer returns a Quizzer asking for numQuestions questions per quiz
// (DefaultQuizQuestions when numQuestions <= 0).
func NewQuizzer(svc *reasoning.Service, numQuestions int) *Quizzer {
	if numQuestions <= 0 {
		numQuestions = DefaultQuizQuestions
	}
	return &Quizzer{svc: svc, questions: numQuestions}
}

// Generate returns the validated questions for p. Questions with fewer than
// two options or an out-of-range answer index are dropped; if none survive
// the call fails with [ErrNoQuestions].
func (q *Quizzer) Generate(ctx context.Context, p QuizParams) ([]types.Question, error) {
	n := q.questions
	if p.NumQuestions > 0 {
		n = p.NumQuestions
	}
	topic := p.Topic
	if p.Concept != "" && !strings.EqualFold(p.Concept, p.Topic) {
		topic = fmt.Sprintf("%s (focus: %s)", p.Topic, p.Concept)
	}
	user := fmt.Sprintf("Write %d questions about: %s\n\nLecture context:\n%s", n, topic, p.Context)

	raw, err := q.svc.GenerateStructured(ctx, reasoning.Prompt{
		System: quizSystemPrompt,
		User:   user,
	})
	if err != nil {
		return nil, fmt.Errorf("generate: quiz %q: %w", p.Topic, err)
	}

	var resp struct {
		Questions []types.Question `json:"questions"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("generate: quiz %q: decode: %w", p.Topic, err)
	}

	out := make([]types.Question, 0, len(resp.Questions))
	for _, qq := range resp.Questions {
		qq.Text = strings.TrimSpace(qq.Text)
		if qq.Text == "" || len(qq.Options) < 2 ||
			qq.CorrectOptionIndex < 0 || qq.CorrectOptionIndex >= len(qq.Options) {
			continue
		}
		if qq.ID == "" {
			qq.ID = fmt.Sprintf("q%d", len(out)+1)
		}
		out = append(out, qq)
		if len(out) == n {
			break
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("generate: quiz %q: %w", p.Topic, ErrNoQuestions)
	}
	return out, nil
}

package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/livelearn/internal/reasoning"
)

const flashcardSystemPrompt = `You polish study flashcards.
Given a draft front and back, return ONLY a JSON object {"front": "...", "back": "..."}.
The front is a single precise question, the back a concise answer of at most three sentences.
Stay faithful to the lecture context.`

// FlashcardParams describes one flashcard request.
type FlashcardParams struct {
	Front   string
	Back    string
	Concept string
	Context string
}

// Flashcards refines flashcard drafts.
type Flashcards struct {
	svc *reasoning.Service
}

// NewFlashcards returns a flashcard generator backed by svc.
func NewFlashcards(svc *reasoning.Service) *Flashcards {
	return &Flashcards{svc: svc}
}

// Generate returns the refined front and back. A side the model leaves empty
// keeps the draft text.
func (f *Flashcards) Generate(ctx context.Context, p FlashcardParams) (front, back string, err error) {
	user := fmt.Sprintf("Concept: %s\nDraft front: %s\nDraft back: %s\n\nLecture context:\n%s",
		p.Concept, p.Front, p.Back, p.Context)

	raw, err := f.svc.GenerateStructured(ctx, reasoning.Prompt{
		System: flashcardSystemPrompt,
		User:   user,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate: flashcard: %w", err)
	}

	var resp struct {
		Front string `json:"front"`
		Back  string `json:"back"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", "", fmt.Errorf("generate: flashcard: decode: %w", err)
	}

	front, back = strings.TrimSpace(resp.Front), strings.TrimSpace(resp.Back)
	if front == "" {
		front = p.Front
	}
	if back == "" {
		back = p.Back
	}
	return front, back, nil
}

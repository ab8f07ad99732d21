// Package generate holds the slow artifact generators: interactive
// simulations, quizzes and flashcards. Each generator is one reasoning call
// plus output validation; none of them retries.
package generate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/MrWong99/livelearn/internal/reasoning"
)

// ErrNoHTML is returned when a simulation answer contains no HTML document.
var ErrNoHTML = errors.New("generate: no HTML in simulation response")

const simulationSystemPrompt = `You build interactive educational simulations for a live lecture.
Produce ONE self-contained HTML document (inline CSS and JavaScript, no external
assets except well-known CDNs for three.js or p5.js). The simulation must be
interactive (sliders, buttons or drag), label its quantities and fit a 800x600
iframe. Return only the HTML inside a single html code block.`

// SimulationParams describes one simulation request.
type SimulationParams struct {
	Concept     string
	Description string
	// Context is recent lecture text used to ground the simulation.
	Context string
}

// Simulator generates simulation HTML.
type Simulator struct {
	svc         *reasoning.Service
	temperature float64
}

// NewSimulator returns a Simulator backed by svc.
func NewSimulator(svc *reasoning.Service) *Simulator {
	return &Simulator{svc: svc, temperature: 0.7}
}

// Generate returns the simulation HTML for p.
func (s *Simulator) Generate(ctx context.Context, p SimulationParams) (string, error) {
	desc := p.Description
	if strings.TrimSpace(desc) == "" {
		desc = "Interactive visualization of " + p.Concept
	}
	user := fmt.Sprintf("Concept: %s\nDescription: %s\n\nLecture context:\n%s", p.Concept, desc, p.Context)

	text, err := s.svc.GenerateText(ctx, reasoning.Prompt{
		System:      simulationSystemPrompt,
		User:        user,
		Temperature: s.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("generate: simulation %q: %w", p.Concept, err)
	}
	code, err := ExtractHTML(text)
	if err != nil {
		return "", fmt.Errorf("generate: simulation %q: %w", p.Concept, err)
	}
	return code, nil
}

var (
	htmlFence    = regexp.MustCompile("(?is)```html\\s*(.*?)```")
	genericFence = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")
	docStart     = regexp.MustCompile(`(?i)<!doctype html|<html`)
)

// ExtractHTML pulls the HTML document out of a model answer. It prefers a
// ```html block, then any fenced block, then text that already starts with
// "<", then the span starting at a doctype or <html> tag.
func ExtractHTML(text string) (string, error) {
	if m := htmlFence.FindStringSubmatch(text); m != nil {
		if code := strings.TrimSpace(m[1]); code != "" {
			return code, nil
		}
	}
	if m := genericFence.FindStringSubmatch(text); m != nil {
		if code := strings.TrimSpace(m[1]); strings.HasPrefix(code, "<") {
			return code, nil
		}
	}
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "<") {
		return trimmed, nil
	}
	if loc := docStart.FindStringIndex(trimmed); loc != nil {
		return trimmed[loc[0]:], nil
	}
	return "", ErrNoHTML
}

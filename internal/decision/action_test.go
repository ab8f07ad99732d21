package decision

import (
	"encoding/json"
	"testing"
)

func TestParseActions_Envelope(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"actions": [
		{"type": "EXTRACT_CONCEPT", "payload": {"keyword": " Newton's Second Law ", "definition": "F = ma"}},
		{"type": "SEARCH_REFERENCE", "payload": {"query": "newton second law", "context_concept": "Newton's Second Law"}},
		{"type": "GENERATE_SIMULATION", "payload": {"concept": "Newton's Second Law", "description": "push a block"}},
		{"type": "GENERATE_QUIZ", "payload": {"topic": "Forces"}},
		{"type": "CREATE_FLASHCARD", "payload": {"front": "F = ?", "back": "ma", "concept": "Newton's Second Law"}}
	]}`)

	got, skipped := ParseActions(raw)
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	if len(got) != 5 {
		t.Fatalf("len(actions) = %d, want 5", len(got))
	}

	ec, ok := got[0].(ExtractConcept)
	if !ok {
		t.Fatalf("actions[0] is %T, want ExtractConcept", got[0])
	}
	if ec.Keyword != "Newton's Second Law" || ec.Definition != "F = ma" {
		t.Errorf("unexpected concept: %+v", ec)
	}
	if sr := got[1].(SearchReference); sr.ContextConcept != "Newton's Second Law" {
		t.Errorf("context concept = %q", sr.ContextConcept)
	}
	if gq := got[3].(GenerateQuiz); gq.Topic != "Forces" || gq.Concept != "" {
		t.Errorf("unexpected quiz: %+v", gq)
	}
	if fc := got[4].(CreateFlashcard); fc.Back != "ma" {
		t.Errorf("unexpected flashcard: %+v", fc)
	}

	wantTypes := []ActionType{
		TypeExtractConcept, TypeSearchReference, TypeGenerateSimulation,
		TypeGenerateQuiz, TypeCreateFlashcard,
	}
	for i, a := range got {
		if a.Type() != wantTypes[i] {
			t.Errorf("actions[%d].Type() = %s, want %s", i, a.Type(), wantTypes[i])
		}
	}
}

func TestParseActions_Lenient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		raw         string
		want        int
		wantSkipped int
	}{
		{name: "bare array", raw: `[{"type":"EXTRACT_CONCEPT","payload":{"keyword":"Entropy"}}]`, want: 1, wantSkipped: 0},
		{name: "lowercase type", raw: `{"actions":[{"type":"extract_concept","payload":{"keyword":"Entropy"}}]}`, want: 1, wantSkipped: 0},
		{name: "flat payload", raw: `{"actions":[{"type":"GENERATE_SIMULATION","concept":"Entropy"}]}`, want: 1, wantSkipped: 0},
		{name: "unknown type skipped", raw: `{"actions":[{"type":"DANCE","payload":{}},{"type":"EXTRACT_CONCEPT","payload":{"keyword":"A"}}]}`, want: 1, wantSkipped: 1},
		{name: "missing keyword skipped", raw: `{"actions":[{"type":"EXTRACT_CONCEPT","payload":{"definition":"x"}}]}`, want: 0, wantSkipped: 1},
		{name: "wrong payload type skipped", raw: `{"actions":[{"type":"EXTRACT_CONCEPT","payload":{"keyword":42}}]}`, want: 0, wantSkipped: 1},
		{name: "flashcard without back skipped", raw: `{"actions":[{"type":"CREATE_FLASHCARD","payload":{"front":"Q"}}]}`, want: 0, wantSkipped: 1},
		{name: "non-object entry skipped", raw: `{"actions":["EXTRACT_CONCEPT", 3, null]}`, want: 0, wantSkipped: 3},
		{name: "empty actions", raw: `{"actions":[]}`, want: 0, wantSkipped: 0},
		{name: "unrelated object", raw: `{"concepts":["a"]}`, want: 0, wantSkipped: 0},
		{name: "scalar document", raw: `"hello"`, want: 0, wantSkipped: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, skipped := ParseActions(json.RawMessage(tc.raw))
			if len(got) != tc.want {
				t.Errorf("len(ParseActions) = %d, want %d (%+v)", len(got), tc.want, got)
			}
			if skipped != tc.wantSkipped {
				t.Errorf("skipped = %d, want %d", skipped, tc.wantSkipped)
			}
		})
	}
}

func TestParseActions_PreservesOrder(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`[
		{"type":"GENERATE_SIMULATION","payload":{"concept":"B"}},
		{"type":"EXTRACT_CONCEPT","payload":{"keyword":"A"}}
	]`)
	got, _ := ParseActions(raw)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if _, ok := got[0].(GenerateSimulation); !ok {
		t.Errorf("actions[0] is %T, want GenerateSimulation", got[0])
	}
	if _, ok := got[1].(ExtractConcept); !ok {
		t.Errorf("actions[1] is %T, want ExtractConcept", got[1])
	}
}

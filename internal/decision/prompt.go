package decision

import "strings"

const systemPrompt = `You are the orchestration brain of a live lecture assistant.
You receive a chunk of lecture transcript and decide which learning aids to create.

Available actions:
- EXTRACT_CONCEPT {"keyword": string, "definition": string}
  A concept introduced or explained in the chunk. Do not repeat known concepts unless the chunk adds substance.
- SEARCH_REFERENCE {"query": string, "context_concept": string}
  Find reference videos for a concept.
- GENERATE_SIMULATION {"concept": string, "description": string}
  An interactive visualization that helps understand a STEM concept.
- GENERATE_QUIZ {"topic": string, "concept": string}
  A short multiple-choice quiz once enough material has been covered.
- CREATE_FLASHCARD {"front": string, "back": string, "concept": string}
  A question/answer card for spaced repetition.

Rules:
- Only act on substantive content. Small talk and logistics produce no actions.
- Use the exact concept keyword in "context_concept" and "concept" fields.
- Return ONLY a JSON object, no markdown:
{"actions": [{"type": "EXTRACT_CONCEPT", "payload": {"keyword": "...", "definition": "..."}}]}
- Return {"actions": []} when nothing is worth doing.`

func buildUserPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("Previous context:\n")
	if strings.TrimSpace(in.PreviousContext) == "" {
		b.WriteString("(none)")
	} else {
		b.WriteString(in.PreviousContext)
	}
	b.WriteString("\n\nKnown concepts:\n")
	if len(in.KnownKeywords) == 0 {
		b.WriteString("(none)")
	} else {
		b.WriteString(strings.Join(in.KnownKeywords, ", "))
	}
	b.WriteString("\n\nTranscript chunk:\n")
	b.WriteString(in.Text)
	return b.String()
}

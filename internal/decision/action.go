package decision

import (
	"encoding/json"
	"strings"
)

// ActionType names an action variant on the wire.
type ActionType string

// Action types understood by the dispatcher.
const (
	TypeExtractConcept     ActionType = "EXTRACT_CONCEPT"
	TypeSearchReference    ActionType = "SEARCH_REFERENCE"
	TypeGenerateSimulation ActionType = "GENERATE_SIMULATION"
	TypeGenerateQuiz       ActionType = "GENERATE_QUIZ"
	TypeCreateFlashcard    ActionType = "CREATE_FLASHCARD"
)

// Action is one enrichment step requested by the model. The set of
// implementations is closed; switch on the concrete type.
type Action interface {
	Type() ActionType
	action()
}

// ExtractConcept introduces a concept mentioned in the chunk.
type ExtractConcept struct {
	Keyword    string `json:"keyword"`
	Definition string `json:"definition"`
}

// SearchReference asks for reference videos about a query.
type SearchReference struct {
	Query          string `json:"query"`
	ContextConcept string `json:"context_concept"`
}

// GenerateSimulation asks for an interactive simulation of a concept.
type GenerateSimulation struct {
	Concept     string `json:"concept"`
	Description string `json:"description"`
}

// GenerateQuiz asks for a quiz on a topic. Concept is optional.
type GenerateQuiz struct {
	Topic   string `json:"topic"`
	Concept string `json:"concept"`
}

// CreateFlashcard asks for a flashcard. Concept is optional.
type CreateFlashcard struct {
	Front   string `json:"front"`
	Back    string `json:"back"`
	Concept string `json:"concept"`
}

func (ExtractConcept) Type() ActionType     { return TypeExtractConcept }
func (SearchReference) Type() ActionType    { return TypeSearchReference }
func (GenerateSimulation) Type() ActionType { return TypeGenerateSimulation }
func (GenerateQuiz) Type() ActionType       { return TypeGenerateQuiz }
func (CreateFlashcard) Type() ActionType    { return TypeCreateFlashcard }

func (ExtractConcept) action()     {}
func (SearchReference) action()    {}
func (GenerateSimulation) action() {}
func (GenerateQuiz) action()       {}
func (CreateFlashcard) action()    {}

// rawAction is the wire envelope of a single action. Some models put the
// fields next to "type" instead of under "payload"; both are accepted.
type rawAction struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ParseActions decodes a model answer into actions. It accepts either
// {"actions": [...]} or a bare array. Entries with an unknown type, an
// undecodable payload or a missing required field are skipped; the batch as a
// whole never fails. skipped counts the dropped entries. A document that is
// neither shape yields no actions and no skips.
func ParseActions(raw json.RawMessage) (actions []Action, skipped int) {
	entries := splitEntries(raw)
	actions = make([]Action, 0, len(entries))
	for _, entry := range entries {
		a, ok := parseEntry(entry)
		if !ok {
			skipped++
			continue
		}
		actions = append(actions, a)
	}
	return actions, skipped
}

func splitEntries(raw json.RawMessage) []json.RawMessage {
	var envelope struct {
		Actions []json.RawMessage `json:"actions"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Actions != nil {
		return envelope.Actions
	}
	var bare []json.RawMessage
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare
	}
	return nil
}

func parseEntry(entry json.RawMessage) (Action, bool) {
	var ra rawAction
	if err := json.Unmarshal(entry, &ra); err != nil {
		return nil, false
	}
	payload := ra.Payload
	if len(payload) == 0 || string(payload) == "null" {
		payload = entry
	}

	switch ActionType(strings.ToUpper(strings.TrimSpace(ra.Type))) {
	case TypeExtractConcept:
		var a ExtractConcept
		if !decode(payload, &a) {
			return nil, false
		}
		a.Keyword, a.Definition = strings.TrimSpace(a.Keyword), strings.TrimSpace(a.Definition)
		return a, a.Keyword != ""
	case TypeSearchReference:
		var a SearchReference
		if !decode(payload, &a) {
			return nil, false
		}
		a.Query, a.ContextConcept = strings.TrimSpace(a.Query), strings.TrimSpace(a.ContextConcept)
		return a, a.Query != ""
	case TypeGenerateSimulation:
		var a GenerateSimulation
		if !decode(payload, &a) {
			return nil, false
		}
		a.Concept, a.Description = strings.TrimSpace(a.Concept), strings.TrimSpace(a.Description)
		return a, a.Concept != ""
	case TypeGenerateQuiz:
		var a GenerateQuiz
		if !decode(payload, &a) {
			return nil, false
		}
		a.Topic, a.Concept = strings.TrimSpace(a.Topic), strings.TrimSpace(a.Concept)
		return a, a.Topic != ""
	case TypeCreateFlashcard:
		var a CreateFlashcard
		if !decode(payload, &a) {
			return nil, false
		}
		a.Front, a.Back, a.Concept = strings.TrimSpace(a.Front), strings.TrimSpace(a.Back), strings.TrimSpace(a.Concept)
		return a, a.Front != "" && a.Back != ""
	default:
		return nil, false
	}
}

func decode(payload json.RawMessage, v any) bool {
	return json.Unmarshal(payload, v) == nil
}

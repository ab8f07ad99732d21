// Package types defines the shared types used across all livelearn packages.
//
// These types form the lingua franca between the session channel, the
// pipeline, the deferred workers, the providers and the persistence layer.
// They are intentionally minimal: each package defines its own domain types,
// but cross-cutting data structures and the websocket wire format live here
// to avoid circular imports.
package types

import "time"

// Status is the lifecycle state of a generated artifact.
type Status string

const (
	// StatusPending marks an artifact that has been requested but not produced.
	StatusPending Status = "pending"

	// StatusReady marks an artifact whose payload has been produced and delivered.
	StatusReady Status = "ready"
)

// TranscriptChunk is one committed piece of lecture transcript. It exists only
// for the duration of a single processing pass.
type TranscriptChunk struct {
	LectureID string

	// ChunkID identifies the chunk within the lecture. Assigned by the capture
	// client; the session layer fills in a random id when it is missing.
	ChunkID string

	Text string

	// PreviousContext is the recent transcript preceding Text, if any.
	PreviousContext string

	// IsFinal marks the last chunk of a lecture.
	IsFinal bool
}

// RecentContext renders the prior context and the chunk text in the form the
// generators expect.
func (c TranscriptChunk) RecentContext() string {
	if c.PreviousContext == "" {
		return "Recent Transcript: " + c.Text
	}
	return c.PreviousContext + "\n\nRecent Transcript: " + c.Text
}

// Concept is a named idea extracted from transcript text. IDs are unique
// within a lecture and a concept is never mutated after creation.
type Concept struct {
	ID            string `json:"id"`
	Keyword       string `json:"keyword"`
	Definition    string `json:"definition,omitempty"`
	STEM          bool   `json:"stem_concept"`
	SourceChunkID string `json:"source_chunk_id,omitempty"`
}

// KnownConcept is the minimal view of an already-resolved concept used to
// seed identity resolution for a new chunk.
type KnownConcept struct {
	ID      string
	Keyword string
}

// Video is a reference video found by a media search. Searches run inline, so
// videos are always delivered ready.
type Video struct {
	Title            string `json:"title"`
	URL              string `json:"url"`
	Channel          string `json:"channel,omitempty"`
	PublishedAt      string `json:"published_at,omitempty"`
	ContextConcept   string `json:"context_concept,omitempty"`
	ContextConceptID string `json:"context_concept_id"`
	Status           Status `json:"status"`
}

// Simulation is an interactive HTML visualisation of a concept. Code is only
// set once Status is ready.
type Simulation struct {
	ID          string `json:"id"`
	Concept     string `json:"concept"`
	ConceptID   string `json:"concept_id"`
	Description string `json:"description,omitempty"`
	Status      Status `json:"status"`
	Code        string `json:"code,omitempty"`
}

// Question is a single multiple-choice quiz question.
type Question struct {
	ID                 string   `json:"id"`
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correct_option_index"`
	Explanation        string   `json:"explanation,omitempty"`
}

// Quiz is a set of questions on a topic. Questions are only set once Status is
// ready.
type Quiz struct {
	ID        string     `json:"id"`
	Topic     string     `json:"topic"`
	Concept   string     `json:"concept,omitempty"`
	ConceptID string     `json:"concept_id"`
	Status    Status     `json:"status"`
	Questions []Question `json:"questions,omitempty"`
}

// Flashcard is a front/back study card.
type Flashcard struct {
	ID        string `json:"id"`
	Front     string `json:"front"`
	Back      string `json:"back,omitempty"`
	Concept   string `json:"concept,omitempty"`
	ConceptID string `json:"concept_id"`
	Status    Status `json:"status"`
}

// SimulationCacheEntry is a stored simulation keyed by the exact concept name
// it was generated for.
type SimulationCacheEntry struct {
	Concept     string
	Description string
	Code        string
	CachedAt    time.Time
}

// Results holds the five result buckets of a pipeline pass. Every bucket is
// always encoded as a JSON array, never null.
type Results struct {
	Concepts    []Concept    `json:"concepts"`
	Videos      []Video      `json:"videos"`
	Simulations []Simulation `json:"simulations"`
	Quizzes     []Quiz       `json:"quizzes"`
	Flashcards  []Flashcard  `json:"flashcards"`
}

// NewResults returns a Results value with all buckets allocated.
func NewResults() Results {
	return Results{
		Concepts:    []Concept{},
		Videos:      []Video{},
		Simulations: []Simulation{},
		Quizzes:     []Quiz{},
		Flashcards:  []Flashcard{},
	}
}

// Empty reports whether no bucket holds anything.
func (r Results) Empty() bool {
	return len(r.Concepts) == 0 && len(r.Videos) == 0 && len(r.Simulations) == 0 &&
		len(r.Quizzes) == 0 && len(r.Flashcards) == 0
}

// LectureSummary is one row of the lecture listing.
type LectureSummary struct {
	LectureID    string    `json:"lecture_id"`
	ChunkCount   int       `json:"chunk_count"`
	ConceptCount int       `json:"concept_count"`
	LastActivity time.Time `json:"last_activity"`
}

// TranscriptRecord is a persisted transcript chunk.
type TranscriptRecord struct {
	ChunkID    string    `json:"chunk_id"`
	Text       string    `json:"text"`
	IsFinal    bool      `json:"is_final"`
	ReceivedAt time.Time `json:"received_at"`
}

// LectureDetail is everything persisted for a single lecture.
type LectureDetail struct {
	LectureID   string             `json:"lecture_id"`
	Transcripts []TranscriptRecord `json:"transcripts"`
	Results
}

// Package mock provides in-memory test doubles for the store interfaces.
//
// Each mock records every method call for assertion in tests and exposes
// exported fields that control what the mock returns. All mocks are safe for
// concurrent use via an internal [sync.Mutex].
//
// Typical usage:
//
//	p := &mock.Persistence{SaveTranscriptErr: errors.New("down")}
//
//	// inject p into the system under test …
//
//	if got := p.CallCount("SaveTranscript"); got != 1 {
//	    t.Errorf("expected 1 SaveTranscript call, got %d", got)
//	}
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/MrWong99/livelearn/pkg/store"
	"github.com/MrWong99/livelearn/pkg/types"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// recorder is embedded by every mock to share call bookkeeping.
type recorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *recorder) record(method string, args ...any) {
	r.calls = append(r.calls, Call{Method: method, Args: args})
}

// Calls returns a copy of all recorded method invocations.
func (r *recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (r *recorder) CallCount(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls without altering response configuration.
func (r *recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Persistence mock
// ─────────────────────────────────────────────────────────────────────────────

// Persistence is a configurable test double for [store.Persistence]. Saves
// succeed unless the matching *Err field is set.
type Persistence struct {
	recorder

	SaveTranscriptErr error
	SaveConceptsErr   error
	SaveVideosErr     error
	SaveSimulationErr error
	SaveQuizErr       error
	SaveFlashcardErr  error

	// ListLecturesResult is returned by ListLectures. When nil an empty
	// non-nil slice is returned.
	ListLecturesResult []types.LectureSummary
	ListLecturesErr    error

	// GetLectureResult is returned by GetLecture. When nil and
	// GetLectureErr is nil, store.ErrNotFound is returned.
	GetLectureResult *types.LectureDetail
	GetLectureErr    error
}

// SaveTranscript implements [store.Persistence].
func (m *Persistence) SaveTranscript(_ context.Context, chunk types.TranscriptChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SaveTranscript", chunk)
	return m.SaveTranscriptErr
}

// SaveConcepts implements [store.Persistence].
func (m *Persistence) SaveConcepts(_ context.Context, lectureID string, concepts []types.Concept) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SaveConcepts", lectureID, concepts)
	return m.SaveConceptsErr
}

// SaveVideos implements [store.Persistence].
func (m *Persistence) SaveVideos(_ context.Context, lectureID string, videos []types.Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SaveVideos", lectureID, videos)
	return m.SaveVideosErr
}

// SaveSimulation implements [store.Persistence].
func (m *Persistence) SaveSimulation(_ context.Context, lectureID string, sim types.Simulation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SaveSimulation", lectureID, sim)
	return m.SaveSimulationErr
}

// SaveQuiz implements [store.Persistence].
func (m *Persistence) SaveQuiz(_ context.Context, lectureID string, quiz types.Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SaveQuiz", lectureID, quiz)
	return m.SaveQuizErr
}

// SaveFlashcard implements [store.Persistence].
func (m *Persistence) SaveFlashcard(_ context.Context, lectureID string, card types.Flashcard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SaveFlashcard", lectureID, card)
	return m.SaveFlashcardErr
}

// ListLectures implements [store.Persistence].
func (m *Persistence) ListLectures(_ context.Context, limit int) ([]types.LectureSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ListLectures", limit)
	if m.ListLecturesResult == nil {
		return []types.LectureSummary{}, m.ListLecturesErr
	}
	out := make([]types.LectureSummary, len(m.ListLecturesResult))
	copy(out, m.ListLecturesResult)
	return out, m.ListLecturesErr
}

// GetLecture implements [store.Persistence].
func (m *Persistence) GetLecture(_ context.Context, lectureID string) (*types.LectureDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetLecture", lectureID)
	if m.GetLectureErr != nil {
		return nil, m.GetLectureErr
	}
	if m.GetLectureResult == nil {
		return nil, store.ErrNotFound
	}
	d := *m.GetLectureResult
	return &d, nil
}

var _ store.Persistence = (*Persistence)(nil)

// ─────────────────────────────────────────────────────────────────────────────
// SimulationIndex mock
// ─────────────────────────────────────────────────────────────────────────────

// SimulationIndex is a test double for [store.SimulationIndex]. It keeps
// upserted entries in a map; FindApprox matches case-insensitively unless
// FindApproxErr is set, FindExact additionally accepts substrings.
type SimulationIndex struct {
	recorder

	// Entries holds the stored entries keyed by exact concept name.
	Entries map[string]types.SimulationCacheEntry

	FindApproxErr error
	FindExactErr  error
	UpsertErr     error
}

// FindApprox implements [store.SimulationIndex].
func (m *SimulationIndex) FindApprox(_ context.Context, concept string) (*types.SimulationCacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("FindApprox", concept)
	if m.FindApproxErr != nil {
		return nil, m.FindApproxErr
	}
	for name, e := range m.Entries {
		if strings.EqualFold(name, concept) {
			return &e, nil
		}
	}
	return nil, nil
}

// FindExact implements [store.SimulationIndex].
func (m *SimulationIndex) FindExact(_ context.Context, concept string) (*types.SimulationCacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("FindExact", concept)
	if m.FindExactErr != nil {
		return nil, m.FindExactErr
	}
	needle := strings.ToLower(concept)
	for name, e := range m.Entries {
		if strings.Contains(strings.ToLower(name), needle) {
			return &e, nil
		}
	}
	return nil, nil
}

// Upsert implements [store.SimulationIndex].
func (m *SimulationIndex) Upsert(_ context.Context, entry types.SimulationCacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Upsert", entry)
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	if m.Entries == nil {
		m.Entries = make(map[string]types.SimulationCacheEntry)
	}
	m.Entries[entry.Concept] = entry
	return nil
}

var _ store.SimulationIndex = (*SimulationIndex)(nil)

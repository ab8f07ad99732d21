package lecture

import (
	"context"
	"sync"

	"github.com/MrWong99/livelearn/internal/concept"
	"github.com/MrWong99/livelearn/pkg/types"
)

// lectureState is one lecture's slot in the arena. concepts is append-only;
// index maps normalised keywords to positions in it.
type lectureState struct {
	mu       sync.Mutex
	concepts []types.KnownConcept
	index    map[string]int
	hasQuiz  bool
}

// MemStore is an in-process [Store]. State lives until the process exits.
type MemStore struct {
	mu       sync.Mutex
	lectures map[string]*lectureState
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{lectures: make(map[string]*lectureState)}
}

// lecture returns the state slot for id, creating it on first use. The
// store-wide lock is held only for the map access.
func (s *MemStore) lecture(id string) *lectureState {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, ok := s.lectures[id]
	if !ok {
		ls = &lectureState{index: make(map[string]int)}
		s.lectures[id] = ls
	}
	return ls
}

// Claim implements [Store].
func (s *MemStore) Claim(_ context.Context, lectureID, keyword, candidateID string) (string, bool, error) {
	ls := s.lecture(lectureID)
	key := concept.Normalize(keyword)

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if i, ok := ls.index[key]; ok {
		return ls.concepts[i].ID, false, nil
	}
	ls.index[key] = len(ls.concepts)
	ls.concepts = append(ls.concepts, types.KnownConcept{ID: candidateID, Keyword: keyword})
	return candidateID, true, nil
}

// Known implements [Store].
func (s *MemStore) Known(_ context.Context, lectureID string) ([]types.KnownConcept, error) {
	ls := s.lecture(lectureID)
	ls.mu.Lock()
	defer ls.mu.Unlock()
	out := make([]types.KnownConcept, len(ls.concepts))
	copy(out, ls.concepts)
	return out, nil
}

// Keywords implements [Store].
func (s *MemStore) Keywords(_ context.Context, lectureID string, limit int) ([]string, error) {
	ls := s.lecture(lectureID)
	ls.mu.Lock()
	defer ls.mu.Unlock()
	n := len(ls.concepts)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]string, n)
	for i := range out {
		out[i] = ls.concepts[i].Keyword
	}
	return out, nil
}

// MarkQuiz implements [Store].
func (s *MemStore) MarkQuiz(_ context.Context, lectureID string) error {
	ls := s.lecture(lectureID)
	ls.mu.Lock()
	ls.hasQuiz = true
	ls.mu.Unlock()
	return nil
}

// ClaimQuiz implements [Store].
func (s *MemStore) ClaimQuiz(_ context.Context, lectureID string) (bool, error) {
	ls := s.lecture(lectureID)
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.hasQuiz {
		return false, nil
	}
	ls.hasQuiz = true
	return true, nil
}

var _ Store = (*MemStore)(nil)

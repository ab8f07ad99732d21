package simcache

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/livelearn/pkg/store"
	"github.com/MrWong99/livelearn/pkg/types"
)

const defaultMaxEdits = 2

// typoFloorRunes is the shortest normalised name that tolerates one edit.
// Shorter names, usually acronyms like "BFS", must match exactly.
const typoFloorRunes = 4

// MemIndexOption is a functional option for [NewMemIndex].
type MemIndexOption func(*MemIndex)

// WithMaxEdits caps the edit distance FindApprox tolerates. Below the cap the
// tolerance grows by one edit per eight runes, starting at one edit for names
// of four runes. Default: 2.
func WithMaxEdits(n int) MemIndexOption {
	return func(m *MemIndex) { m.maxEdits = n }
}

// memEntry is a stored entry with its precomputed match keys.
type memEntry struct {
	entry   types.SimulationCacheEntry
	norm    string
	compact string
}

// MemIndex is an in-process [store.SimulationIndex] using Damerau-Levenshtein
// distance on normalised names, with Jaro-Winkler similarity breaking ties.
// It is safe for concurrent use.
//
// Names are normalised before comparison: lowercase, apostrophes dropped,
// hyphens and underscores read as spaces, whitespace collapsed, and a
// trailing plural "s" folded on words longer than three letters. Each name
// is compared both as-is and with all spaces removed, so "Breadth First
// Search" and "BreadthFirst Search" are zero edits apart.
type MemIndex struct {
	mu       sync.RWMutex
	entries  map[string]memEntry
	maxEdits int
	now      func() time.Time
}

// NewMemIndex returns an empty MemIndex.
func NewMemIndex(opts ...MemIndexOption) *MemIndex {
	m := &MemIndex{
		entries:  make(map[string]memEntry),
		maxEdits: defaultMaxEdits,
		now:      time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// FindApprox implements [store.SimulationIndex]. It never fails.
func (m *MemIndex) FindApprox(_ context.Context, concept string) (*types.SimulationCacheEntry, error) {
	qNorm := normalizeName(concept)
	if qNorm == "" {
		return nil, nil
	}
	qCompact := strings.ReplaceAll(qNorm, " ", "")
	tolerance := editTolerance(qNorm, m.maxEdits)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		best      *memEntry
		bestDist  int
		bestScore float64
	)
	for _, e := range m.entries {
		dist := min(
			matchr.DamerauLevenshtein(qNorm, e.norm),
			matchr.DamerauLevenshtein(qCompact, e.compact),
		)
		if dist > tolerance {
			continue
		}
		score := matchr.JaroWinkler(qNorm, e.norm, false)
		if best == nil || dist < bestDist ||
			(dist == bestDist && score > bestScore) ||
			(dist == bestDist && score == bestScore && e.entry.CachedAt.After(best.entry.CachedAt)) {
			best, bestDist, bestScore = &e, dist, score
		}
	}
	if best == nil {
		return nil, nil
	}
	out := best.entry
	return &out, nil
}

// FindExact implements [store.SimulationIndex]. An exact case-insensitive
// match wins over substring matches; among those the shortest name wins.
func (m *MemIndex) FindExact(_ context.Context, concept string) (*types.SimulationCacheEntry, error) {
	needle := strings.ToLower(strings.TrimSpace(concept))
	if needle == "" {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *types.SimulationCacheEntry
	for name, e := range m.entries {
		lower := strings.ToLower(name)
		if lower == needle {
			out := e.entry
			return &out, nil
		}
		if strings.Contains(lower, needle) && (best == nil || len(name) < len(best.Concept)) {
			out := e.entry
			best = &out
		}
	}
	return best, nil
}

// Upsert implements [store.SimulationIndex].
func (m *MemIndex) Upsert(_ context.Context, entry types.SimulationCacheEntry) error {
	if entry.CachedAt.IsZero() {
		entry.CachedAt = m.now()
	}
	norm := normalizeName(entry.Concept)

	m.mu.Lock()
	m.entries[entry.Concept] = memEntry{
		entry:   entry,
		norm:    norm,
		compact: strings.ReplaceAll(norm, " ", ""),
	}
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries.
func (m *MemIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// editTolerance is the edit distance a query of normalised name norm may be
// from a stored name.
func editTolerance(norm string, maxEdits int) int {
	n := utf8.RuneCountInString(norm)
	if n < typoFloorRunes {
		return 0
	}
	return min(maxEdits, max(1, n/8))
}

// normalizeName maps a concept name to its fuzzy matching key.
func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r == '\'' || r == '’':
			// dropped
		case r == '-' || r == '_' || unicode.IsSpace(r):
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}

	words := strings.Fields(b.String())
	for i, w := range words {
		if utf8.RuneCountInString(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
			words[i] = strings.TrimSuffix(w, "s")
		}
	}
	return strings.Join(words, " ")
}

var _ store.SimulationIndex = (*MemIndex)(nil)

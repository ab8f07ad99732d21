// Package concept resolves stable concept identity within a lecture.
//
// Keywords are compared in normalised form everywhere: surrounding space
// trimmed, inner whitespace collapsed, lowercase. "Newton's  Second law" and
// "newton's second law" are the same concept.
package concept

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/MrWong99/livelearn/internal/observe"
	"github.com/MrWong99/livelearn/pkg/types"
)

// LinkPrefix prefixes ids synthesised for references that have no backing
// concept record.
const LinkPrefix = "link_"

// Normalize returns the matching key for keyword.
func Normalize(keyword string) string {
	return strings.ToLower(strings.Join(strings.Fields(keyword), " "))
}

// Slug returns keyword in normalised form with every run of characters other
// than letters and digits replaced by a single underscore.
func Slug(keyword string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range Normalize(keyword) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// LinkID returns the deterministic link id for keyword. The same keyword
// always yields the same id, so a client can attach a late update to the
// right element even without a concept record.
func LinkID(keyword string) string {
	return LinkPrefix + Slug(keyword)
}

// Claimer makes fresh concept ids stick for a lecture. Claim stores
// candidateID for keyword unless the lecture already has an id for it, and
// returns the id that won together with whether candidateID was stored.
type Claimer interface {
	Claim(ctx context.Context, lectureID, keyword, candidateID string) (id string, created bool, err error)
}

// Pass resolves concepts for one chunk-processing pass. It is not safe for
// concurrent use; each chunk gets its own Pass.
type Pass struct {
	lectureID string
	chunkID   string
	known     map[string]string
	claimer   Claimer
	now       func() time.Time

	concepts []types.Concept
	index    map[string]int
}

// PassOption is a functional option for [NewPass].
type PassOption func(*Pass)

// WithClock overrides the clock used for fresh ids. Default: time.Now.
func WithClock(now func() time.Time) PassOption {
	return func(p *Pass) { p.now = now }
}

// WithClaimer sets the store fresh ids are claimed through. Without one, fresh
// ids are only unique within the pass.
func WithClaimer(c Claimer) PassOption {
	return func(p *Pass) { p.claimer = c }
}

// NewPass starts a resolution pass for chunkID of lectureID. known is the
// lecture's concept snapshot taken before the pass started.
func NewPass(lectureID, chunkID string, known []types.KnownConcept, opts ...PassOption) *Pass {
	p := &Pass{
		lectureID: lectureID,
		chunkID:   chunkID,
		known:     make(map[string]string, len(known)),
		now:       time.Now,
		index:     make(map[string]int),
	}
	for _, k := range known {
		p.known[Normalize(k.Keyword)] = k.ID
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Extract resolves keyword to a concept. Resolution order: a concept already
// produced by this pass, the known snapshot, then a fresh id of the form
// concept_{lecture}_{unix ms}_{ordinal}. The boolean reports whether the
// concept was added to this pass's result; repeated extraction of the same
// keyword in one pass returns the first concept and false.
func (p *Pass) Extract(ctx context.Context, keyword, definition string) (types.Concept, bool) {
	key := Normalize(keyword)
	if i, ok := p.index[key]; ok {
		return p.concepts[i], false
	}

	id, ok := p.known[key]
	if !ok {
		id = p.freshID(ctx, keyword)
	}

	c := types.Concept{
		ID:            id,
		Keyword:       strings.TrimSpace(keyword),
		Definition:    definition,
		STEM:          true,
		SourceChunkID: p.chunkID,
	}
	p.index[key] = len(p.concepts)
	p.concepts = append(p.concepts, c)
	return c, true
}

func (p *Pass) freshID(ctx context.Context, keyword string) string {
	candidate := fmt.Sprintf("concept_%s_%d_%d", p.lectureID, p.now().UnixMilli(), len(p.concepts))
	if p.claimer == nil {
		return candidate
	}
	id, created, err := p.claimer.Claim(ctx, p.lectureID, keyword, candidate)
	if err != nil {
		observe.Logger(ctx).Warn("concept: claim failed, using unclaimed id",
			"lecture_id", p.lectureID, "keyword", keyword, "err", err)
		return candidate
	}
	if !created {
		observe.Logger(ctx).Debug("concept: adopted id from concurrent pass",
			"lecture_id", p.lectureID, "keyword", keyword, "id", id)
	}
	return id
}

// Link returns the id a reference to keyword should carry: the id of a
// concept from this pass or the known snapshot, otherwise [LinkID].
func (p *Pass) Link(keyword string) string {
	if id, ok := p.Resolve(keyword); ok {
		return id
	}
	return LinkID(keyword)
}

// Resolve returns the concept id for keyword if one exists in this pass or
// the known snapshot.
func (p *Pass) Resolve(keyword string) (string, bool) {
	key := Normalize(keyword)
	if i, ok := p.index[key]; ok {
		return p.concepts[i].ID, true
	}
	id, ok := p.known[key]
	return id, ok
}

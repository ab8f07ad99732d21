// Package lecture holds per-lecture state shared by concurrent chunk
// passes: the concept index (keyword to id) and the "has any quiz" flag.
//
// Every mutation is atomic per lecture. Passes for different lectures never
// contend with each other.
package lecture

import (
	"context"

	"github.com/MrWong99/livelearn/internal/concept"
	"github.com/MrWong99/livelearn/pkg/types"
)

// Store is the per-lecture state store. Implementations must be safe for
// concurrent use.
type Store interface {
	concept.Claimer

	// Known returns the lecture's concepts in first-claim order.
	Known(ctx context.Context, lectureID string) ([]types.KnownConcept, error)

	// Keywords returns up to limit concept keywords in first-claim order.
	// limit <= 0 returns all of them.
	Keywords(ctx context.Context, lectureID string, limit int) ([]string, error)

	// MarkQuiz records that the lecture has produced a quiz.
	MarkQuiz(ctx context.Context, lectureID string) error

	// ClaimQuiz sets the quiz flag if it was unset and reports whether this
	// call set it. Exactly one caller wins per lecture.
	ClaimQuiz(ctx context.Context, lectureID string) (bool, error)
}

// Package store defines the persistence interfaces of livelearn: the
// document store for lecture artifacts and the approximate-match index the
// simulation cache runs on.
//
// Writes through [Persistence] are non-critical for the pipeline; callers log
// and continue on failure. Reads back the REST surface and fail hard.
package store

import (
	"context"
	"errors"

	"github.com/MrWong99/livelearn/pkg/types"
)

// ErrUnavailable is returned when no persistence backend is configured.
var ErrUnavailable = errors.New("store: persistence unavailable")

// ErrNotFound is returned by reads for an unknown lecture.
var ErrNotFound = errors.New("store: not found")

// Persistence stores lecture transcripts and artifacts. Artifact saves are
// upserts keyed by artifact id, so a ready artifact replaces its pending
// record.
type Persistence interface {
	SaveTranscript(ctx context.Context, chunk types.TranscriptChunk) error
	SaveConcepts(ctx context.Context, lectureID string, concepts []types.Concept) error
	SaveVideos(ctx context.Context, lectureID string, videos []types.Video) error
	SaveSimulation(ctx context.Context, lectureID string, sim types.Simulation) error
	SaveQuiz(ctx context.Context, lectureID string, quiz types.Quiz) error
	SaveFlashcard(ctx context.Context, lectureID string, card types.Flashcard) error

	// ListLectures returns the most recently active lectures first.
	ListLectures(ctx context.Context, limit int) ([]types.LectureSummary, error)

	// GetLecture returns everything stored for lectureID or [ErrNotFound].
	GetLecture(ctx context.Context, lectureID string) (*types.LectureDetail, error)
}

// SimulationIndex is an approximate-match store of generated simulations
// keyed by concept name.
type SimulationIndex interface {
	// FindApprox returns the entry whose concept name best matches concept
	// within the backend's tolerance, or nil on a miss. An error means the
	// matcher itself is unavailable.
	FindApprox(ctx context.Context, concept string) (*types.SimulationCacheEntry, error)

	// FindExact returns an entry whose concept name equals concept ignoring
	// case, or contains it as a substring, or nil on a miss.
	FindExact(ctx context.Context, concept string) (*types.SimulationCacheEntry, error)

	// Upsert stores entry under its exact concept name, replacing any entry
	// with the same name.
	Upsert(ctx context.Context, entry types.SimulationCacheEntry) error
}

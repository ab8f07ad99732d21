// Package media defines the Provider interface for reference-video search
// backends.
//
// A media provider turns a free-text query into a short list of videos. The
// pipeline calls it inline while processing a chunk, so implementations should
// answer within a few seconds and must return promptly when ctx is cancelled.
//
// Implementors must be safe for concurrent use.
package media

import (
	"context"

	"github.com/MrWong99/livelearn/pkg/types"
)

// Provider is the abstraction over any video search backend.
type Provider interface {
	// Search returns at most limit videos matching query. Returned videos have
	// Title and URL set; Channel and PublishedAt are optional. Context fields
	// and Status are filled in by the caller.
	Search(ctx context.Context, query string, limit int) ([]types.Video, error)
}

package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/livelearn/pkg/types"
)

// likeEscaper escapes LIKE wildcards so user input matches literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// FindApprox implements [store.SimulationIndex] using pg_trgm similarity.
// It fails when the extension is not installed.
func (s *Store) FindApprox(ctx context.Context, concept string) (*types.SimulationCacheEntry, error) {
	const q = `
		SELECT concept, description, code, cached_at
		FROM   simulation_cache
		WHERE  similarity(lower(concept), lower($1)) >= $2
		ORDER  BY similarity(lower(concept), lower($1)) DESC, cached_at DESC
		LIMIT  1`

	e, err := scanCacheEntry(s.pool.QueryRow(ctx, q, concept, s.threshold))
	if err != nil {
		return nil, fmt.Errorf("postgres store: approximate lookup: %w", err)
	}
	return e, nil
}

// FindExact implements [store.SimulationIndex]. An exact case-insensitive
// match is preferred over a substring match; among substring matches the
// shortest name wins.
func (s *Store) FindExact(ctx context.Context, concept string) (*types.SimulationCacheEntry, error) {
	const q = `
		SELECT concept, description, code, cached_at
		FROM   simulation_cache
		WHERE  concept ILIKE $1 OR concept ILIKE '%' || $2 || '%'
		ORDER  BY (concept ILIKE $1) DESC, length(concept), cached_at DESC
		LIMIT  1`

	pattern := likeEscaper.Replace(strings.TrimSpace(concept))
	e, err := scanCacheEntry(s.pool.QueryRow(ctx, q, pattern, pattern))
	if err != nil {
		return nil, fmt.Errorf("postgres store: exact lookup: %w", err)
	}
	return e, nil
}

// Upsert implements [store.SimulationIndex].
func (s *Store) Upsert(ctx context.Context, entry types.SimulationCacheEntry) error {
	const q = `
		INSERT INTO simulation_cache (concept, description, code, cached_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (concept) DO UPDATE
		SET description = EXCLUDED.description,
		    code        = EXCLUDED.code,
		    cached_at   = now()`

	if _, err := s.pool.Exec(ctx, q, entry.Concept, entry.Description, entry.Code); err != nil {
		return fmt.Errorf("postgres store: upsert simulation cache: %w", err)
	}
	return nil
}

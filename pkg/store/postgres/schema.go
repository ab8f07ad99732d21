// Package postgres provides the PostgreSQL-backed implementations of
// [store.Persistence] and [store.SimulationIndex].
//
// Both share a single [pgxpool.Pool]. Approximate simulation lookup uses the
// pg_trgm extension; [Migrate] tries to install it and the store keeps
// working without it, because the simulation cache degrades to exact and
// substring matching when FindApprox fails.
//
// Usage:
//
//	s, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer s.Close()
//
//	_ = s.SaveTranscript(ctx, chunk)
//	entry, _ := s.FindApprox(ctx, "Breadth First Search")
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlTrigram = `CREATE EXTENSION IF NOT EXISTS pg_trgm;`

const ddlLectures = `
CREATE TABLE IF NOT EXISTS transcripts (
    lecture_id        TEXT         NOT NULL,
    chunk_id          TEXT         NOT NULL,
    text              TEXT         NOT NULL,
    previous_context  TEXT         NOT NULL DEFAULT '',
    is_final          BOOLEAN      NOT NULL DEFAULT false,
    received_at       TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (lecture_id, chunk_id)
);

CREATE INDEX IF NOT EXISTS idx_transcripts_received_at
    ON transcripts (lecture_id, received_at);

CREATE TABLE IF NOT EXISTS concepts (
    id               TEXT         PRIMARY KEY,
    lecture_id       TEXT         NOT NULL,
    keyword          TEXT         NOT NULL,
    definition       TEXT         NOT NULL DEFAULT '',
    stem             BOOLEAN      NOT NULL DEFAULT true,
    source_chunk_id  TEXT         NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_concepts_lecture_id ON concepts (lecture_id);

CREATE TABLE IF NOT EXISTS videos (
    lecture_id          TEXT         NOT NULL,
    url                 TEXT         NOT NULL,
    context_concept_id  TEXT         NOT NULL DEFAULT '',
    title               TEXT         NOT NULL DEFAULT '',
    channel             TEXT         NOT NULL DEFAULT '',
    published_at        TEXT         NOT NULL DEFAULT '',
    context_concept     TEXT         NOT NULL DEFAULT '',
    created_at          TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (lecture_id, url, context_concept_id)
);

CREATE TABLE IF NOT EXISTS simulations (
    id           TEXT         PRIMARY KEY,
    lecture_id   TEXT         NOT NULL,
    concept      TEXT         NOT NULL,
    concept_id   TEXT         NOT NULL,
    description  TEXT         NOT NULL DEFAULT '',
    status       TEXT         NOT NULL,
    code         TEXT         NOT NULL DEFAULT '',
    updated_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_simulations_lecture_id ON simulations (lecture_id);

CREATE TABLE IF NOT EXISTS quizzes (
    id          TEXT         PRIMARY KEY,
    lecture_id  TEXT         NOT NULL,
    topic       TEXT         NOT NULL,
    concept     TEXT         NOT NULL DEFAULT '',
    concept_id  TEXT         NOT NULL,
    status      TEXT         NOT NULL,
    questions   JSONB        NOT NULL DEFAULT '[]',
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_quizzes_lecture_id ON quizzes (lecture_id);

CREATE TABLE IF NOT EXISTS flashcards (
    id          TEXT         PRIMARY KEY,
    lecture_id  TEXT         NOT NULL,
    front       TEXT         NOT NULL,
    back        TEXT         NOT NULL DEFAULT '',
    concept     TEXT         NOT NULL DEFAULT '',
    concept_id  TEXT         NOT NULL,
    status      TEXT         NOT NULL,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_flashcards_lecture_id ON flashcards (lecture_id);
`

const ddlSimulationCache = `
CREATE TABLE IF NOT EXISTS simulation_cache (
    concept      TEXT         PRIMARY KEY,
    description  TEXT         NOT NULL DEFAULT '',
    code         TEXT         NOT NULL,
    cached_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

const ddlSimulationCacheTrigram = `
CREATE INDEX IF NOT EXISTS idx_simulation_cache_concept_trgm
    ON simulation_cache USING GIN (lower(concept) gin_trgm_ops);
`

// Migrate creates all required tables and indexes. It is idempotent and safe
// to call on every application start. Installing pg_trgm and its index is
// best effort: a database without the extension still migrates, and
// approximate lookups then fail over to exact matching at query time.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlLectures, ddlSimulationCache} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}

	for _, stmt := range []string{ddlTrigram, ddlSimulationCacheTrigram} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			slog.Warn("postgres migrate: trigram support unavailable, fuzzy cache lookups will degrade",
				"err", err)
			break
		}
	}
	return nil
}

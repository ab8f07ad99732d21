package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/livelearn/pkg/store"
	"github.com/MrWong99/livelearn/pkg/types"
)

// Compile-time interface checks.
var (
	_ store.Persistence     = (*Store)(nil)
	_ store.SimulationIndex = (*Store)(nil)
)

// Store is the PostgreSQL-backed persistence layer. All operations are safe
// for concurrent use.
type Store struct {
	pool      *pgxpool.Pool
	threshold float64
}

// Option is a functional option for [NewStore].
type Option func(*Store)

// WithSimilarityThreshold sets the minimum pg_trgm similarity for
// FindApprox to report a hit. Default: 0.6.
func WithSimilarityThreshold(t float64) Option {
	return func(s *Store) { s.threshold = t }
}

// NewStore creates a connection pool to the database at dsn, verifies it and
// runs [Migrate].
func NewStore(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	s := &Store{pool: pool, threshold: 0.6}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Ping checks database connectivity. Used by readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// SaveTranscript implements [store.Persistence]. Re-sent chunks overwrite
// the stored text.
func (s *Store) SaveTranscript(ctx context.Context, chunk types.TranscriptChunk) error {
	const q = `
		INSERT INTO transcripts (lecture_id, chunk_id, text, previous_context, is_final)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (lecture_id, chunk_id) DO UPDATE
		SET text = EXCLUDED.text,
		    previous_context = EXCLUDED.previous_context,
		    is_final = EXCLUDED.is_final,
		    received_at = now()`

	if _, err := s.pool.Exec(ctx, q,
		chunk.LectureID, chunk.ChunkID, chunk.Text, chunk.PreviousContext, chunk.IsFinal,
	); err != nil {
		return fmt.Errorf("postgres store: save transcript: %w", err)
	}
	return nil
}

// SaveConcepts implements [store.Persistence]. Concepts are immutable, so
// existing ids are left untouched.
func (s *Store) SaveConcepts(ctx context.Context, lectureID string, concepts []types.Concept) error {
	if len(concepts) == 0 {
		return nil
	}
	const q = `
		INSERT INTO concepts (id, lecture_id, keyword, definition, stem, source_chunk_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, c := range concepts {
		batch.Queue(q, c.ID, lectureID, c.Keyword, c.Definition, c.STEM, c.SourceChunkID)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres store: save concepts: %w", err)
	}
	return nil
}

// SaveVideos implements [store.Persistence].
func (s *Store) SaveVideos(ctx context.Context, lectureID string, videos []types.Video) error {
	if len(videos) == 0 {
		return nil
	}
	const q = `
		INSERT INTO videos (lecture_id, url, context_concept_id, title, channel, published_at, context_concept)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (lecture_id, url, context_concept_id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, v := range videos {
		batch.Queue(q, lectureID, v.URL, v.ContextConceptID, v.Title, v.Channel, v.PublishedAt, v.ContextConcept)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres store: save videos: %w", err)
	}
	return nil
}

// SaveSimulation implements [store.Persistence].
func (s *Store) SaveSimulation(ctx context.Context, lectureID string, sim types.Simulation) error {
	const q = `
		INSERT INTO simulations (id, lecture_id, concept, concept_id, description, status, code)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, code = EXCLUDED.code, updated_at = now()`

	if _, err := s.pool.Exec(ctx, q,
		sim.ID, lectureID, sim.Concept, sim.ConceptID, sim.Description, string(sim.Status), sim.Code,
	); err != nil {
		return fmt.Errorf("postgres store: save simulation: %w", err)
	}
	return nil
}

// SaveQuiz implements [store.Persistence].
func (s *Store) SaveQuiz(ctx context.Context, lectureID string, quiz types.Quiz) error {
	questions := quiz.Questions
	if questions == nil {
		questions = []types.Question{}
	}
	data, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("postgres store: marshal questions: %w", err)
	}

	const q = `
		INSERT INTO quizzes (id, lecture_id, topic, concept, concept_id, status, questions)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, questions = EXCLUDED.questions, updated_at = now()`

	if _, err := s.pool.Exec(ctx, q,
		quiz.ID, lectureID, quiz.Topic, quiz.Concept, quiz.ConceptID, string(quiz.Status), string(data),
	); err != nil {
		return fmt.Errorf("postgres store: save quiz: %w", err)
	}
	return nil
}

// SaveFlashcard implements [store.Persistence].
func (s *Store) SaveFlashcard(ctx context.Context, lectureID string, card types.Flashcard) error {
	const q = `
		INSERT INTO flashcards (id, lecture_id, front, back, concept, concept_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET front = EXCLUDED.front, back = EXCLUDED.back,
		    status = EXCLUDED.status, updated_at = now()`

	if _, err := s.pool.Exec(ctx, q,
		card.ID, lectureID, card.Front, card.Back, card.Concept, card.ConceptID, string(card.Status),
	); err != nil {
		return fmt.Errorf("postgres store: save flashcard: %w", err)
	}
	return nil
}

// ListLectures implements [store.Persistence].
func (s *Store) ListLectures(ctx context.Context, limit int) ([]types.LectureSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT t.lecture_id,
		       count(*)            AS chunk_count,
		       (SELECT count(*) FROM concepts c WHERE c.lecture_id = t.lecture_id) AS concept_count,
		       max(t.received_at)  AS last_activity
		FROM   transcripts t
		GROUP  BY t.lecture_id
		ORDER  BY last_activity DESC
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list lectures: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.LectureSummary, error) {
		var (
			ls       types.LectureSummary
			chunks   int64
			concepts int64
		)
		err := row.Scan(&ls.LectureID, &chunks, &concepts, &ls.LastActivity)
		ls.ChunkCount, ls.ConceptCount = int(chunks), int(concepts)
		return ls, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan lectures: %w", err)
	}
	if out == nil {
		out = []types.LectureSummary{}
	}
	return out, nil
}

// GetLecture implements [store.Persistence].
func (s *Store) GetLecture(ctx context.Context, lectureID string) (*types.LectureDetail, error) {
	d := &types.LectureDetail{LectureID: lectureID, Results: types.NewResults()}

	var err error
	if d.Transcripts, err = s.transcripts(ctx, lectureID); err != nil {
		return nil, err
	}
	if d.Concepts, err = s.concepts(ctx, lectureID); err != nil {
		return nil, err
	}
	if len(d.Transcripts) == 0 && len(d.Concepts) == 0 {
		return nil, fmt.Errorf("postgres store: lecture %q: %w", lectureID, store.ErrNotFound)
	}
	if d.Videos, err = s.videos(ctx, lectureID); err != nil {
		return nil, err
	}
	if d.Simulations, err = s.simulations(ctx, lectureID); err != nil {
		return nil, err
	}
	if d.Quizzes, err = s.quizzes(ctx, lectureID); err != nil {
		return nil, err
	}
	if d.Flashcards, err = s.flashcards(ctx, lectureID); err != nil {
		return nil, err
	}
	return d, nil
}

// queryAll runs q for lectureID and scans every row with scan. The result is
// never nil.
func queryAll[T any](ctx context.Context, pool *pgxpool.Pool, what, q, lectureID string, scan func(pgx.CollectableRow) (T, error)) ([]T, error) {
	rows, err := pool.Query(ctx, q, lectureID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: query %s: %w", what, err)
	}
	out, err := pgx.CollectRows(rows, scan)
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan %s: %w", what, err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func (s *Store) transcripts(ctx context.Context, lectureID string) ([]types.TranscriptRecord, error) {
	const q = `
		SELECT chunk_id, text, is_final, received_at
		FROM   transcripts WHERE lecture_id = $1
		ORDER  BY received_at`
	return queryAll(ctx, s.pool, "transcripts", q, lectureID, func(row pgx.CollectableRow) (types.TranscriptRecord, error) {
		var r types.TranscriptRecord
		err := row.Scan(&r.ChunkID, &r.Text, &r.IsFinal, &r.ReceivedAt)
		return r, err
	})
}

func (s *Store) concepts(ctx context.Context, lectureID string) ([]types.Concept, error) {
	const q = `
		SELECT id, keyword, definition, stem, source_chunk_id
		FROM   concepts WHERE lecture_id = $1
		ORDER  BY created_at`
	return queryAll(ctx, s.pool, "concepts", q, lectureID, func(row pgx.CollectableRow) (types.Concept, error) {
		var c types.Concept
		err := row.Scan(&c.ID, &c.Keyword, &c.Definition, &c.STEM, &c.SourceChunkID)
		return c, err
	})
}

func (s *Store) videos(ctx context.Context, lectureID string) ([]types.Video, error) {
	const q = `
		SELECT title, url, channel, published_at, context_concept, context_concept_id
		FROM   videos WHERE lecture_id = $1
		ORDER  BY created_at`
	return queryAll(ctx, s.pool, "videos", q, lectureID, func(row pgx.CollectableRow) (types.Video, error) {
		v := types.Video{Status: types.StatusReady}
		err := row.Scan(&v.Title, &v.URL, &v.Channel, &v.PublishedAt, &v.ContextConcept, &v.ContextConceptID)
		return v, err
	})
}

func (s *Store) simulations(ctx context.Context, lectureID string) ([]types.Simulation, error) {
	const q = `
		SELECT id, concept, concept_id, description, status, code
		FROM   simulations WHERE lecture_id = $1
		ORDER  BY updated_at`
	return queryAll(ctx, s.pool, "simulations", q, lectureID, func(row pgx.CollectableRow) (types.Simulation, error) {
		var (
			sim    types.Simulation
			status string
		)
		err := row.Scan(&sim.ID, &sim.Concept, &sim.ConceptID, &sim.Description, &status, &sim.Code)
		sim.Status = types.Status(status)
		return sim, err
	})
}

func (s *Store) quizzes(ctx context.Context, lectureID string) ([]types.Quiz, error) {
	const q = `
		SELECT id, topic, concept, concept_id, status, questions
		FROM   quizzes WHERE lecture_id = $1
		ORDER  BY updated_at`
	return queryAll(ctx, s.pool, "quizzes", q, lectureID, func(row pgx.CollectableRow) (types.Quiz, error) {
		var (
			quiz   types.Quiz
			status string
			raw    []byte
		)
		if err := row.Scan(&quiz.ID, &quiz.Topic, &quiz.Concept, &quiz.ConceptID, &status, &raw); err != nil {
			return quiz, err
		}
		quiz.Status = types.Status(status)
		if err := json.Unmarshal(raw, &quiz.Questions); err != nil {
			return quiz, fmt.Errorf("decode questions of %s: %w", quiz.ID, err)
		}
		return quiz, nil
	})
}

func (s *Store) flashcards(ctx context.Context, lectureID string) ([]types.Flashcard, error) {
	const q = `
		SELECT id, front, back, concept, concept_id, status
		FROM   flashcards WHERE lecture_id = $1
		ORDER  BY updated_at`
	return queryAll(ctx, s.pool, "flashcards", q, lectureID, func(row pgx.CollectableRow) (types.Flashcard, error) {
		var (
			card   types.Flashcard
			status string
		)
		err := row.Scan(&card.ID, &card.Front, &card.Back, &card.Concept, &card.ConceptID, &status)
		card.Status = types.Status(status)
		return card, err
	})
}

// scanCacheEntry reads a single simulation_cache row. A missing row is a
// miss, not an error.
func scanCacheEntry(row pgx.Row) (*types.SimulationCacheEntry, error) {
	var (
		e        types.SimulationCacheEntry
		cachedAt time.Time
	)
	if err := row.Scan(&e.Concept, &e.Description, &e.Code, &cachedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	e.CachedAt = cachedAt
	return &e, nil
}

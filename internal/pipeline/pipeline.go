// Package pipeline turns one committed transcript chunk into enrichment
// results.
//
// A [Processor] asks the decision engine which actions to take, dispatches
// every action into one of the five result buckets and then runs the fallback
// policy, which guarantees coverage regardless of what the decision call
// chose to request:
//
//   - every concept extracted in the chunk gets a simulation request;
//   - every concept extracted in the chunk gets a reference video search;
//   - the final chunk of a lecture that never produced a quiz gets one.
//
// Simulations, quizzes and flashcards are emitted as pending; the returned
// [Outcome] carries one [worker.Job] per pending artifact. Reference videos
// are searched inline and are always ready.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/livelearn/internal/concept"
	"github.com/MrWong99/livelearn/internal/decision"
	"github.com/MrWong99/livelearn/internal/lecture"
	"github.com/MrWong99/livelearn/internal/observe"
	"github.com/MrWong99/livelearn/internal/worker"
	"github.com/MrWong99/livelearn/pkg/provider/media"
	"github.com/MrWong99/livelearn/pkg/store"
	"github.com/MrWong99/livelearn/pkg/types"
)

// SummaryTopic is the topic of the end-of-lecture quiz when the lecture has
// no concepts to review.
const SummaryTopic = "Lecture Summary"

// reviewKeywords caps how many concept keywords the end-of-lecture quiz
// topic lists.
const reviewKeywords = 3

// Decider decides which enrichment actions a chunk calls for.
// *decision.Engine implements it.
type Decider interface {
	Decide(ctx context.Context, in decision.Input) ([]decision.Action, error)
}

// Outcome is the result of processing one chunk.
type Outcome struct {
	// Result is the immediate pipeline result pushed to the client.
	Result types.Results

	// Jobs completes every pending artifact in Result.
	Jobs []worker.Job
}

// Option is a functional option for [Processor].
type Option func(*Processor)

// WithPersistence stores transcripts, concepts and videos. Write failures are
// logged and never fail the chunk.
func WithPersistence(p store.Persistence) Option {
	return func(pr *Processor) { pr.persist = p }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(pr *Processor) { pr.metrics = m }
}

// WithReferenceLimit sets how many videos a SEARCH_REFERENCE action fetches.
// Default: 2.
func WithReferenceLimit(n int) Option {
	return func(pr *Processor) { pr.referenceLimit = n }
}

// WithFallbackVideoLimit sets how many videos the fallback search fetches per
// uncovered concept. Default: 1.
func WithFallbackVideoLimit(n int) Option {
	return func(pr *Processor) { pr.fallbackVideoLimit = n }
}

// WithClock overrides the clock used for fresh concept ids.
func WithClock(now func() time.Time) Option {
	return func(pr *Processor) { pr.now = now }
}

// Processor runs the per-chunk pipeline. It holds no per-chunk state and is
// safe for concurrent use; lecture state lives in the [lecture.Store].
type Processor struct {
	decider  Decider
	lectures lecture.Store
	media    media.Provider
	persist  store.Persistence
	metrics  *observe.Metrics
	now      func() time.Time

	referenceLimit     int
	fallbackVideoLimit int
}

// New returns a Processor. search may be nil, in which case no videos are
// produced.
func New(decider Decider, lectures lecture.Store, search media.Provider, opts ...Option) *Processor {
	p := &Processor{
		decider:            decider,
		lectures:           lectures,
		media:              search,
		now:                time.Now,
		referenceLimit:     2,
		fallbackVideoLimit: 1,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Process runs the pipeline for chunk. A decision failure aborts the chunk
// and is returned wrapping [decision.ErrDecision]; nothing of the chunk is
// committed in that case. All other failures are logged and degrade the
// result.
func (p *Processor) Process(ctx context.Context, chunk types.TranscriptChunk) (*Outcome, error) {
	ctx = observe.WithLecture(ctx, chunk.LectureID, chunk.ChunkID)
	ctx, span := observe.StartSpan(ctx, "pipeline.process")
	defer span.End()
	log := observe.Logger(ctx)

	known, err := p.lectures.Known(ctx, chunk.LectureID)
	if err != nil {
		log.Warn("pipeline: known concepts unavailable, resolving without them", "err", err)
		known = nil
	}
	keywords := make([]string, 0, len(known))
	for _, k := range known {
		keywords = append(keywords, k.Keyword)
	}

	actions, err := p.decider.Decide(ctx, decision.Input{
		Text:            chunk.Text,
		PreviousContext: chunk.PreviousContext,
		KnownKeywords:   keywords,
	})
	if err != nil {
		p.metrics.RecordChunk(ctx, "decision_failed")
		span.RecordError(err)
		return nil, fmt.Errorf("pipeline: process chunk %q: %w", chunk.ChunkID, err)
	}

	p.save(ctx, "transcript", func() error { return p.persist.SaveTranscript(ctx, chunk) })

	d := &dispatch{
		p:     p,
		chunk: chunk,
		pass: concept.NewPass(chunk.LectureID, chunk.ChunkID, known,
			concept.WithClaimer(p.lectures), concept.WithClock(p.now)),
		res: types.NewResults(),
	}
	for _, a := range actions {
		d.apply(ctx, a)
	}
	d.fallback(ctx)

	res := d.res
	if len(res.Concepts) > 0 {
		p.save(ctx, "concepts", func() error { return p.persist.SaveConcepts(ctx, chunk.LectureID, res.Concepts) })
	}
	if len(res.Videos) > 0 {
		p.save(ctx, "videos", func() error { return p.persist.SaveVideos(ctx, chunk.LectureID, res.Videos) })
	}

	out := &Outcome{Result: res, Jobs: jobsFor(chunk, res)}
	p.metrics.RecordChunk(ctx, "ok")
	log.Info("pipeline: chunk processed",
		"actions", len(actions),
		"concepts", len(res.Concepts),
		"videos", len(res.Videos),
		"simulations", len(res.Simulations),
		"quizzes", len(res.Quizzes),
		"flashcards", len(res.Flashcards),
	)
	return out, nil
}

func (p *Processor) save(ctx context.Context, what string, fn func() error) {
	if p.persist == nil {
		return
	}
	if err := fn(); err != nil {
		observe.Logger(ctx).Warn("pipeline: persist failed, continuing", "what", what, "err", err)
	}
}

// search runs one media search and tags the videos with the concept they
// illustrate. Failures yield no videos.
func (p *Processor) search(ctx context.Context, query, contextConcept, conceptID string, limit int) []types.Video {
	if p.media == nil || limit <= 0 {
		return nil
	}
	start := time.Now()
	videos, err := p.media.Search(ctx, query, limit)
	p.metrics.MediaSearchDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		observe.Logger(ctx).Warn("pipeline: media search failed", "query", query, "err", err)
		return nil
	}
	if len(videos) > limit {
		videos = videos[:limit]
	}
	for i := range videos {
		videos[i].ContextConcept = contextConcept
		videos[i].ContextConceptID = conceptID
		videos[i].Status = types.StatusReady
	}
	return videos
}

// dispatch is the state of one chunk pass.
type dispatch struct {
	p     *Processor
	chunk types.TranscriptChunk
	pass  *concept.Pass
	res   types.Results
}

func (d *dispatch) apply(ctx context.Context, a decision.Action) {
	switch a := a.(type) {
	case decision.ExtractConcept:
		if c, added := d.pass.Extract(ctx, a.Keyword, a.Definition); added {
			d.res.Concepts = append(d.res.Concepts, c)
		}

	case decision.SearchReference:
		ctxConcept := a.ContextConcept
		if ctxConcept == "" {
			ctxConcept = a.Query
		}
		videos := d.p.search(ctx, a.Query, ctxConcept, d.pass.Link(ctxConcept), d.p.referenceLimit)
		d.res.Videos = append(d.res.Videos, videos...)

	case decision.GenerateSimulation:
		d.res.Simulations = append(d.res.Simulations, types.Simulation{
			ID:          "sim_" + uuid.NewString(),
			Concept:     a.Concept,
			ConceptID:   d.pass.Link(a.Concept),
			Description: a.Description,
			Status:      types.StatusPending,
		})

	case decision.GenerateQuiz:
		d.res.Quizzes = append(d.res.Quizzes, types.Quiz{
			ID:        "quiz_" + uuid.NewString(),
			Topic:     a.Topic,
			Concept:   a.Concept,
			ConceptID: d.pass.Link(firstNonEmpty(a.Concept, a.Topic)),
			Status:    types.StatusPending,
		})
		if err := d.p.lectures.MarkQuiz(ctx, d.chunk.LectureID); err != nil {
			observe.Logger(ctx).Warn("pipeline: mark quiz failed", "err", err)
		}

	case decision.CreateFlashcard:
		d.res.Flashcards = append(d.res.Flashcards, types.Flashcard{
			ID:        "card_" + uuid.NewString(),
			Front:     a.Front,
			Back:      a.Back,
			Concept:   a.Concept,
			ConceptID: d.pass.Link(firstNonEmpty(a.Concept, a.Front)),
			Status:    types.StatusPending,
		})
	}
}

// fallback fills coverage gaps left by the decision call.
func (d *dispatch) fallback(ctx context.Context) {
	simulated := make(map[string]bool, len(d.res.Simulations))
	for _, s := range d.res.Simulations {
		simulated[s.ConceptID] = true
	}
	filmed := make(map[string]bool, len(d.res.Videos))
	for _, v := range d.res.Videos {
		filmed[v.ContextConceptID] = true
	}

	var uncovered []types.Concept
	for _, c := range d.res.Concepts {
		if !simulated[c.ID] {
			simulated[c.ID] = true
			d.res.Simulations = append(d.res.Simulations, types.Simulation{
				ID:          "sim_" + uuid.NewString(),
				Concept:     c.Keyword,
				ConceptID:   c.ID,
				Description: "Interactive visualization of " + c.Keyword,
				Status:      types.StatusPending,
			})
		}
		if !filmed[c.ID] {
			filmed[c.ID] = true
			uncovered = append(uncovered, c)
		}
	}
	d.res.Videos = append(d.res.Videos, d.searchAll(ctx, uncovered)...)

	if d.chunk.IsFinal {
		d.finalQuiz(ctx)
	}
}

// searchAll runs one fallback search per concept concurrently and merges the
// videos in concept order.
func (d *dispatch) searchAll(ctx context.Context, concepts []types.Concept) []types.Video {
	if len(concepts) == 0 {
		return nil
	}
	found := make([][]types.Video, len(concepts))
	var g errgroup.Group
	for i, c := range concepts {
		g.Go(func() error {
			found[i] = d.p.search(ctx, c.Keyword, c.Keyword, c.ID, d.p.fallbackVideoLimit)
			return nil
		})
	}
	_ = g.Wait()

	var out []types.Video
	for _, vs := range found {
		out = append(out, vs...)
	}
	return out
}

// finalQuiz adds the end-of-lecture quiz when the lecture never had one.
func (d *dispatch) finalQuiz(ctx context.Context) {
	log := observe.Logger(ctx)
	lectureID := d.chunk.LectureID

	won, err := d.p.lectures.ClaimQuiz(ctx, lectureID)
	if err != nil {
		log.Warn("pipeline: quiz claim failed, skipping review quiz", "lecture_id", lectureID, "err", err)
		return
	}
	if !won {
		return
	}

	keywords, err := d.p.lectures.Keywords(ctx, lectureID, reviewKeywords)
	if err != nil {
		log.Warn("pipeline: keywords unavailable for review quiz", "lecture_id", lectureID, "err", err)
		keywords = nil
	}
	topic := SummaryTopic
	if len(keywords) > 0 {
		topic = "Review of " + strings.Join(keywords, ", ")
	}
	d.res.Quizzes = append(d.res.Quizzes, types.Quiz{
		ID:        "quiz_" + uuid.NewString(),
		Topic:     topic,
		ConceptID: concept.LinkID(topic),
		Status:    types.StatusPending,
	})
}

// jobsFor returns one worker job per pending artifact in res.
func jobsFor(chunk types.TranscriptChunk, res types.Results) []worker.Job {
	recent := chunk.RecentContext()
	jobs := make([]worker.Job, 0, len(res.Simulations)+len(res.Quizzes)+len(res.Flashcards))
	for _, s := range res.Simulations {
		jobs = append(jobs, worker.SimulationJob(chunk.LectureID, recent, s))
	}
	for _, q := range res.Quizzes {
		jobs = append(jobs, worker.QuizJob(chunk.LectureID, recent, q))
	}
	for _, c := range res.Flashcards {
		jobs = append(jobs, worker.FlashcardJob(chunk.LectureID, recent, c))
	}
	return jobs
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

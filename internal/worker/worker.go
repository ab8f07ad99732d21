// Package worker runs deferred artifact generation.
//
// Simulations, quizzes and flashcards take several seconds to generate, so a
// chunk pass only emits them as pending and hands one [Job] per artifact to a
// [Runner]. Each job runs in its own goroutine whose lifetime is independent
// of the request and of the client connection that triggered it: a closed
// session is discovered when the ready artifact is delivered, not before.
//
// A successful job delivers exactly one pipeline_result carrying only the
// completed artifact. A failed job is logged and counted; the client is never
// told about it and nothing is retried.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/livelearn/internal/generate"
	"github.com/MrWong99/livelearn/internal/observe"
	"github.com/MrWong99/livelearn/pkg/store"
	"github.com/MrWong99/livelearn/pkg/types"
)

// Kind names the artifact a job produces.
type Kind string

const (
	KindSimulation Kind = "simulation"
	KindQuiz       Kind = "quiz"
	KindFlashcard  Kind = "flashcard"
)

// Job is one deferred generation. Exactly one of Simulation, Quiz or
// Flashcard is meaningful, selected by Kind; it holds the pending artifact as
// it was pushed to the client.
type Job struct {
	Kind      Kind
	LectureID string

	// Context is the recent transcript the artifact is grounded on.
	Context string

	Simulation types.Simulation
	Quiz       types.Quiz
	Flashcard  types.Flashcard
}

// SimulationJob returns a job completing the pending simulation sim.
func SimulationJob(lectureID, recent string, sim types.Simulation) Job {
	return Job{Kind: KindSimulation, LectureID: lectureID, Context: recent, Simulation: sim}
}

// QuizJob returns a job completing the pending quiz q.
func QuizJob(lectureID, recent string, q types.Quiz) Job {
	return Job{Kind: KindQuiz, LectureID: lectureID, Context: recent, Quiz: q}
}

// FlashcardJob returns a job completing the pending flashcard c.
func FlashcardJob(lectureID, recent string, c types.Flashcard) Job {
	return Job{Kind: KindFlashcard, LectureID: lectureID, Context: recent, Flashcard: c}
}

// ArtifactID returns the id of the artifact the job completes.
func (j Job) ArtifactID() string {
	switch j.Kind {
	case KindSimulation:
		return j.Simulation.ID
	case KindQuiz:
		return j.Quiz.ID
	case KindFlashcard:
		return j.Flashcard.ID
	}
	return ""
}

// DeliverFunc pushes a ready result to the client. It returns an error when
// the session is gone; the runner drops the result in that case.
type DeliverFunc func(ctx context.Context, msg types.PipelineResult) error

// SimulationGenerator produces simulation code. *simcache.Cache implements it.
type SimulationGenerator interface {
	Generate(ctx context.Context, p generate.SimulationParams) (code string, hit bool, err error)
}

// QuizGenerator produces quiz questions. *generate.Quizzer implements it.
type QuizGenerator interface {
	Generate(ctx context.Context, p generate.QuizParams) ([]types.Question, error)
}

// FlashcardGenerator refines a flashcard draft. *generate.Flashcards
// implements it.
type FlashcardGenerator interface {
	Generate(ctx context.Context, p generate.FlashcardParams) (front, back string, err error)
}

// ErrUnknownKind is returned for a job whose Kind is not recognised.
var ErrUnknownKind = errors.New("worker: unknown job kind")

// Option is a functional option for [Runner].
type Option func(*Runner)

// WithTimeout bounds each job. Zero disables the bound. Default: 2 minutes.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithBaseContext sets the context every job derives from. Cancelling it
// aborts all in-flight jobs. Default: [context.Background].
func WithBaseContext(ctx context.Context) Option {
	return func(r *Runner) { r.base = ctx }
}

// WithPersistence persists every ready artifact. Write failures are logged.
func WithPersistence(p store.Persistence) Option {
	return func(r *Runner) { r.persist = p }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// Runner spawns and tracks deferred generation jobs. It is safe for
// concurrent use.
type Runner struct {
	sims    SimulationGenerator
	quizzes QuizGenerator
	cards   FlashcardGenerator

	base    context.Context
	timeout time.Duration
	persist store.Persistence
	metrics *observe.Metrics

	wg       sync.WaitGroup
	inFlight atomic.Int64
}

// New returns a Runner using the given generators.
func New(sims SimulationGenerator, quizzes QuizGenerator, cards FlashcardGenerator, opts ...Option) *Runner {
	r := &Runner{
		sims:    sims,
		quizzes: quizzes,
		cards:   cards,
		base:    context.Background(),
		timeout: 2 * time.Minute,
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Spawn starts job in its own goroutine and returns immediately.
func (r *Runner) Spawn(job Job, deliver DeliverFunc) {
	r.wg.Add(1)
	r.inFlight.Add(1)
	r.metrics.WorkersInFlight.Add(r.base, 1)
	go func() {
		defer func() {
			r.metrics.WorkersInFlight.Add(r.base, -1)
			r.inFlight.Add(-1)
			r.wg.Done()
		}()
		r.run(job, deliver)
	}()
}

// InFlight returns the number of jobs still running.
func (r *Runner) InFlight() int {
	return int(r.inFlight.Load())
}

// Wait blocks until every spawned job has finished or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker: wait for %d jobs: %w", r.InFlight(), ctx.Err())
	}
}

func (r *Runner) run(job Job, deliver DeliverFunc) {
	ctx, cancel := r.jobContext()
	defer cancel()
	ctx = observe.WithLecture(ctx, job.LectureID, "")
	ctx, span := observe.StartSpan(ctx, "worker."+string(job.Kind))
	defer span.End()

	log := observe.Logger(ctx).With("kind", job.Kind, "artifact_id", job.ArtifactID())

	start := time.Now()
	res, err := r.generate(ctx, job)
	if err != nil {
		r.metrics.RecordGeneration(ctx, string(job.Kind), "error", time.Since(start))
		span.RecordError(err)
		log.Warn("worker: generation failed", "err", err, "elapsed", time.Since(start))
		return
	}
	r.metrics.RecordGeneration(ctx, string(job.Kind), "ok", time.Since(start))

	if err := deliver(ctx, types.NewPipelineResult(job.LectureID, res)); err != nil {
		r.metrics.RecordDroppedPush(ctx, string(job.Kind))
		log.Debug("worker: ready push dropped", "err", err)
	}
}

func (r *Runner) jobContext() (context.Context, context.CancelFunc) {
	if r.timeout > 0 {
		return context.WithTimeout(r.base, r.timeout)
	}
	return context.WithCancel(r.base)
}

// generate completes the job's artifact and returns it as a result holding
// only that artifact.
func (r *Runner) generate(ctx context.Context, job Job) (types.Results, error) {
	res := types.NewResults()
	switch job.Kind {
	case KindSimulation:
		sim := job.Simulation
		code, hit, err := r.sims.Generate(ctx, generate.SimulationParams{
			Concept:     sim.Concept,
			Description: sim.Description,
			Context:     job.Context,
		})
		if err != nil {
			return res, err
		}
		sim.Code = code
		sim.Status = types.StatusReady
		observe.Logger(ctx).Debug("worker: simulation ready", "concept", sim.Concept, "cache_hit", hit)
		r.save(ctx, "simulation", func() error { return r.persist.SaveSimulation(ctx, job.LectureID, sim) })
		res.Simulations = append(res.Simulations, sim)

	case KindQuiz:
		quiz := job.Quiz
		qs, err := r.quizzes.Generate(ctx, generate.QuizParams{
			Topic:   quiz.Topic,
			Concept: quiz.Concept,
			Context: job.Context,
		})
		if err != nil {
			return res, err
		}
		quiz.Questions = qs
		quiz.Status = types.StatusReady
		r.save(ctx, "quiz", func() error { return r.persist.SaveQuiz(ctx, job.LectureID, quiz) })
		res.Quizzes = append(res.Quizzes, quiz)

	case KindFlashcard:
		card := job.Flashcard
		front, back, err := r.cards.Generate(ctx, generate.FlashcardParams{
			Front:   card.Front,
			Back:    card.Back,
			Concept: card.Concept,
			Context: job.Context,
		})
		if err != nil {
			return res, err
		}
		card.Front, card.Back = front, back
		card.Status = types.StatusReady
		r.save(ctx, "flashcard", func() error { return r.persist.SaveFlashcard(ctx, job.LectureID, card) })
		res.Flashcards = append(res.Flashcards, card)

	default:
		return res, fmt.Errorf("%w: %q", ErrUnknownKind, job.Kind)
	}
	return res, nil
}

func (r *Runner) save(ctx context.Context, what string, fn func() error) {
	if r.persist == nil {
		return
	}
	if err := fn(); err != nil {
		observe.Logger(ctx).Warn("worker: persist failed", "artifact", what, "err", err)
	}
}

// Package app wires all livelearn subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context ends, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithPersistence,
// WithLectureStore, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/livelearn/internal/config"
	"github.com/MrWong99/livelearn/internal/decision"
	"github.com/MrWong99/livelearn/internal/generate"
	"github.com/MrWong99/livelearn/internal/health"
	"github.com/MrWong99/livelearn/internal/lecture"
	"github.com/MrWong99/livelearn/internal/observe"
	"github.com/MrWong99/livelearn/internal/pipeline"
	"github.com/MrWong99/livelearn/internal/reasoning"
	"github.com/MrWong99/livelearn/internal/session"
	"github.com/MrWong99/livelearn/internal/simcache"
	"github.com/MrWong99/livelearn/internal/worker"
	"github.com/MrWong99/livelearn/pkg/provider/llm"
	"github.com/MrWong99/livelearn/pkg/provider/media"
	"github.com/MrWong99/livelearn/pkg/store"
	"github.com/MrWong99/livelearn/pkg/store/postgres"
)

// Providers holds the backends built by main.go via the config registry.
// Media may be nil, which disables reference video search.
type Providers struct {
	LLM   llm.Provider
	Media media.Provider
}

// App owns all subsystem lifetimes and serves the session channel and the
// REST read paths.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	// Storage, initialised in New. persist is nil when no document store is
	// configured.
	persist  store.Persistence
	index    store.SimulationIndex
	lectures lecture.Store
	checkers []health.Checker

	// Pipeline.
	simulations *simcache.Cache
	processor   *pipeline.Processor
	workers     *worker.Runner
	sessions    *session.Manager

	metricsHandler http.Handler
	handler        http.Handler
	server         *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithPersistence injects a document store instead of connecting to
// storage.postgres_dsn.
func WithPersistence(p store.Persistence) Option {
	return func(a *App) { a.persist = p }
}

// WithSimulationIndex injects the simulation cache index.
func WithSimulationIndex(idx store.SimulationIndex) Option {
	return func(a *App) { a.index = idx }
}

// WithLectureStore injects the lecture state store instead of connecting to
// storage.redis_addr.
func WithLectureStore(s lecture.Store) Option {
	return func(a *App) { a.lectures = s }
}

// WithMetrics sets the metrics sink for every subsystem.
// Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler sets the handler served on GET /metrics.
// Default: promhttp.Handler over the Prometheus default registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go. cfg must already carry defaults (see
// [config.Config.ApplyDefaults]).
//
// New performs all initialisation synchronously: storage connections and
// migrations, reasoning and generation services, the worker pool, the
// pipeline and the HTTP routes.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: an LLM provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.metricsHandler == nil {
		a.metricsHandler = promhttp.Handler()
	}

	// ── 1. Storage ───────────────────────────────────────────────────────
	if err := a.initStorage(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	// ── 2. Reasoning + generation ────────────────────────────────────────
	svc := reasoning.New(providers.LLM,
		reasoning.WithTemperature(cfg.Pipeline.Temperature),
		reasoning.WithMetrics(a.metrics),
	)
	engine := decision.New(svc,
		decision.WithTimeout(cfg.Pipeline.DecisionTimeout),
		decision.WithMetrics(a.metrics),
	)
	a.simulations = simcache.New(a.index, generate.NewSimulator(svc),
		simcache.WithMetrics(a.metrics),
		simcache.WithTimeout(cfg.Pipeline.GenerationTimeout),
	)

	// ── 3. Deferred generation workers ───────────────────────────────────
	workerOpts := []worker.Option{
		worker.WithTimeout(cfg.Pipeline.GenerationTimeout),
		worker.WithMetrics(a.metrics),
	}
	if a.persist != nil {
		workerOpts = append(workerOpts, worker.WithPersistence(a.persist))
	}
	a.workers = worker.New(a.simulations,
		generate.NewQuizzer(svc, cfg.Pipeline.QuizQuestions),
		generate.NewFlashcards(svc),
		workerOpts...,
	)

	// ── 4. Chunk pipeline ────────────────────────────────────────────────
	pipeOpts := []pipeline.Option{
		pipeline.WithMetrics(a.metrics),
		pipeline.WithReferenceLimit(cfg.Pipeline.ReferenceLimit),
		pipeline.WithFallbackVideoLimit(cfg.Pipeline.FallbackVideoLimit),
	}
	if a.persist != nil {
		pipeOpts = append(pipeOpts, pipeline.WithPersistence(a.persist))
	}
	a.processor = pipeline.New(engine, a.lectures, providers.Media, pipeOpts...)

	// ── 5. Session channels ──────────────────────────────────────────────
	a.sessions = session.NewManager(a.processor, a.workers,
		session.WithMetrics(a.metrics),
		session.WithOriginPatterns(cfg.Server.AllowedOrigins...),
	)

	// ── 6. Routes ────────────────────────────────────────────────────────
	a.handler = a.routes()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStorage connects the document store, the simulation index and the
// lecture state store, or keeps injected ones. Missing backends fall back to
// in-process implementations.
func (a *App) initStorage(ctx context.Context) error {
	st := a.cfg.Storage

	if dsn := st.PostgresDSN; dsn != "" && (a.persist == nil || a.index == nil) {
		pg, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { pg.Close(); return nil })
		a.checkers = append(a.checkers, health.Checker{Name: "postgres", Check: pg.Ping, Optional: true})
		if a.persist == nil {
			a.persist = pg
		}
		if a.index == nil {
			a.index = pg
		}
		slog.Info("postgres store connected")
	}
	if a.index == nil {
		a.index = simcache.NewMemIndex(simcache.WithMaxEdits(a.cfg.Cache.MaxEdits))
		slog.Info("using in-memory simulation cache", "max_edits", a.cfg.Cache.MaxEdits)
	}

	if a.lectures == nil && st.RedisAddr != "" {
		rs, err := lecture.NewRedisStore(ctx, st.RedisAddr, st.RedisDB, lecture.WithTTL(st.LectureTTL))
		if err != nil {
			return err
		}
		a.closers = append(a.closers, rs.Close)
		a.checkers = append(a.checkers, health.PingCheck("redis", rs))
		a.lectures = rs
		slog.Info("redis lecture store connected", "addr", st.RedisAddr, "db", st.RedisDB)
	}
	if a.lectures == nil {
		a.lectures = lecture.NewMemStore()
	}
	return nil
}

// routes assembles the HTTP surface.
func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET "+a.cfg.Server.WSPath, a.sessions)
	mux.HandleFunc("GET /api/lectures", a.listLectures)
	mux.HandleFunc("GET /api/lectures/{id}", a.getLecture)
	mux.HandleFunc("POST /api/simulations", a.generateSimulation)
	mux.HandleFunc("GET /api/videos/search", a.searchVideos)
	mux.Handle("GET /metrics", a.metricsHandler)
	health.New(a.checkers...).Register(mux)
	return observe.Middleware(a.metrics)(mux)
}

// Handler returns the root HTTP handler. Useful for tests.
func (a *App) Handler() http.Handler {
	return a.handler
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on cfg.Server.ListenAddr until ctx is cancelled or the
// listener fails. Call Shutdown afterwards.
func (a *App) Run(ctx context.Context) error {
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		errCh <- err
	}()

	slog.Info("http server listening", "addr", a.cfg.Server.ListenAddr, "ws_path", a.cfg.Server.WSPath)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops accepting requests, closes every session channel, waits for
// in-flight chunks and deferred workers, then releases storage. It respects
// the context deadline: if ctx expires first, the remaining steps are skipped
// and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down",
			"sessions", a.sessions.Active(),
			"workers_in_flight", a.workers.InFlight(),
		)

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("http server shutdown error", "err", err)
			}
		}
		if err := a.sessions.Close(ctx); err != nil {
			shutdownErr = err
			return
		}
		if err := a.workers.Wait(ctx); err != nil {
			slog.Warn("deferred workers still running at deadline", "remaining", a.workers.InFlight())
			shutdownErr = err
			return
		}
		a.closeAll()
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs the storage closers in order.
func (a *App) closeAll() {
	for i, closer := range a.closers {
		if err := closer(); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
		}
	}
	a.closers = nil
}

// Package session runs the live websocket channel between the capture client
// and the pipeline.
//
// Each connection gets one receive loop that reads transcript_commit messages
// in arrival order. Every commit is processed in its own goroutine, so the
// loop never waits for a pipeline and results of consecutive chunks may
// arrive out of order. A chunk's immediate result (with its pending
// artifacts) is pushed before its deferred workers are spawned, which keeps
// every pending push ahead of the matching ready push.
//
// Chunk processing and deferred work are detached from the connection: a
// client that disconnects mid-chunk is only noticed when something tries to
// send to it.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/livelearn/internal/decision"
	"github.com/MrWong99/livelearn/internal/observe"
	"github.com/MrWong99/livelearn/internal/pipeline"
	"github.com/MrWong99/livelearn/internal/worker"
	"github.com/MrWong99/livelearn/pkg/types"
)

// Processor runs the pipeline for one chunk. *pipeline.Processor implements
// it.
type Processor interface {
	Process(ctx context.Context, chunk types.TranscriptChunk) (*pipeline.Outcome, error)
}

// Spawner starts deferred generation jobs. *worker.Runner implements it.
type Spawner interface {
	Spawn(job worker.Job, deliver worker.DeliverFunc)
}

// Option is a functional option for [Manager].
type Option func(*Manager)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithOriginPatterns allows cross-origin websocket upgrades from hosts
// matching patterns (see [websocket.AcceptOptions]).
func WithOriginPatterns(patterns ...string) Option {
	return func(mgr *Manager) { mgr.originPatterns = patterns }
}

// WithReadLimit caps the size of one inbound message in bytes. Default: 1 MiB.
func WithReadLimit(n int64) Option {
	return func(mgr *Manager) { mgr.readLimit = n }
}

// WithWriteTimeout bounds every outbound message. Default: 10s.
func WithWriteTimeout(d time.Duration) Option {
	return func(mgr *Manager) { mgr.writeTimeout = d }
}

// Manager accepts websocket channels and drives the pipeline for them. It
// implements [http.Handler].
type Manager struct {
	processor Processor
	workers   Spawner
	metrics   *observe.Metrics

	originPatterns []string
	readLimit      int64
	writeTimeout   time.Duration

	mu       sync.Mutex
	channels map[string]*Channel
	chunks   sync.WaitGroup
}

// NewManager returns a Manager feeding commits to processor and their pending
// artifacts to workers.
func NewManager(processor Processor, workers Spawner, opts ...Option) *Manager {
	m := &Manager{
		processor:    processor,
		workers:      workers,
		readLimit:    1 << 20,
		writeTimeout: 10 * time.Second,
		channels:     make(map[string]*Channel),
	}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m
}

// ServeHTTP upgrades the request to a websocket channel and runs its receive
// loop until the client goes away.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: m.originPatterns})
	if err != nil {
		observe.Logger(r.Context()).Warn("session: websocket upgrade failed", "err", err)
		return
	}
	conn.SetReadLimit(m.readLimit)

	ch := newChannel(uuid.NewString(), conn, m.writeTimeout)
	m.register(ch)
	defer m.unregister(ch)

	ctx := r.Context()
	log := observe.Logger(ctx).With("session_id", ch.ID())
	log.Info("session: channel opened", "remote", r.RemoteAddr)

	// Chunks outlive the connection; only the read loop stops with it.
	procCtx := context.WithoutCancel(ctx)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Info("session: channel closed by client")
			default:
				log.Debug("session: channel read ended", "err", err)
			}
			ch.Close(websocket.StatusNormalClosure, "")
			return
		}
		m.handleMessage(procCtx, ch, data)
	}
}

// handleMessage validates one inbound message and starts processing it.
// Malformed messages are dropped; the channel stays open.
func (m *Manager) handleMessage(ctx context.Context, ch *Channel, data []byte) {
	log := observe.Logger(ctx).With("session_id", ch.ID())

	var msg types.InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Debug("session: dropping malformed message", "err", err)
		return
	}
	if msg.Type != types.MessageTranscriptCommit {
		log.Debug("session: dropping message of unknown type", "type", msg.Type)
		return
	}
	if strings.TrimSpace(msg.LectureID) == "" || strings.TrimSpace(msg.Text) == "" {
		log.Debug("session: dropping commit without lecture id or text", "lecture_id", msg.LectureID)
		return
	}
	if msg.ChunkID == "" {
		msg.ChunkID = uuid.NewString()
	}

	chunk := msg.Chunk()
	m.chunks.Add(1)
	go func() {
		defer m.chunks.Done()
		m.processChunk(ctx, ch, chunk)
	}()
}

// processChunk runs the pipeline, pushes the immediate result and then hands
// the pending artifacts to the workers.
func (m *Manager) processChunk(ctx context.Context, ch *Channel, chunk types.TranscriptChunk) {
	ctx = observe.WithLecture(ctx, chunk.LectureID, chunk.ChunkID)
	log := observe.Logger(ctx).With("session_id", ch.ID())

	out, err := m.processor.Process(ctx, chunk)
	if err != nil {
		log.Warn("session: chunk failed", "err", err)
		msg := "failed to process transcript chunk"
		if errors.Is(err, decision.ErrDecision) {
			msg = fmt.Sprintf("could not analyse chunk %s, please resubmit", chunk.ChunkID)
		}
		if err := ch.Send(ctx, types.NewErrorMessage(msg)); err != nil {
			log.Debug("session: error message dropped", "err", err)
		}
		return
	}

	if err := ch.Send(ctx, types.NewPipelineResult(chunk.LectureID, out.Result)); err != nil {
		log.Debug("session: immediate result dropped", "err", err)
	}

	deliver := func(ctx context.Context, msg types.PipelineResult) error {
		return ch.Send(ctx, msg)
	}
	for _, job := range out.Jobs {
		m.workers.Spawn(job, deliver)
	}
}

func (m *Manager) register(ch *Channel) {
	m.mu.Lock()
	m.channels[ch.ID()] = ch
	m.mu.Unlock()
	m.metrics.ActiveSessions.Add(context.Background(), 1)
}

func (m *Manager) unregister(ch *Channel) {
	m.mu.Lock()
	_, ok := m.channels[ch.ID()]
	delete(m.channels, ch.ID())
	m.mu.Unlock()
	if ok {
		m.metrics.ActiveSessions.Add(context.Background(), -1)
	}
}

// Active returns the number of open channels.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.channels)
}

// Close closes every open channel with a going-away status and waits for
// in-flight chunk passes until ctx is done. Deferred workers are not waited
// for; see [worker.Runner.Wait].
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	open := make([]*Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		open = append(open, ch)
	}
	m.mu.Unlock()

	for _, ch := range open {
		ch.Close(websocket.StatusGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		m.chunks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session: close: %w", ctx.Err())
	}
}

package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/livelearn/pkg/provider/llm"
	"github.com/MrWong99/livelearn/pkg/provider/media"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider of type T from its config entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is one kind's name to factory table.
type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

func (f factories[T]) create(entry ProviderEntry) (T, error) {
	factory, ok := f.m[entry.Name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	p, err := factory(entry)
	if err != nil {
		return p, fmt.Errorf("config: create %s provider %q: %w", f.kind, entry.Name, err)
	}
	return p, nil
}

func (f factories[T]) names() []string {
	names := make([]string, 0, len(f.m))
	for name := range f.m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Registry maps provider names to factories for the reasoning backend and
// the reference video search. Registration happens at startup in main; the
// registry is safe for concurrent use regardless.
type Registry struct {
	mu    sync.RWMutex
	llm   factories[llm.Provider]
	media factories[media.Provider]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:   newFactories[llm.Provider]("llm"),
		media: newFactories[media.Provider]("media"),
	}
}

// RegisterLLM registers an LLM factory under name, replacing any previous one.
func (r *Registry) RegisterLLM(name string, factory Factory[llm.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.m[name] = factory
}

// RegisterMedia registers a video search factory under name, replacing any
// previous one.
func (r *Registry) RegisterMedia(name string, factory Factory[media.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.media.m[name] = factory
}

// CreateLLM builds the LLM provider named by entry.Name. It returns
// [ErrProviderNotRegistered] for unknown names and wraps factory errors.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.create(entry)
}

// CreateMedia builds the video search provider named by entry.Name.
func (r *Registry) CreateMedia(entry ProviderEntry) (media.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.media.create(entry)
}

// Names returns the registered provider names per kind, sorted.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		r.llm.kind:   r.llm.names(),
		r.media.kind: r.media.names(),
	}
}

// Package engine runs statistical modules against an input dataset.
//
// ARCHITECTURE: pluggable execution backends
// - engine defines the Backend abstraction
// - engine/rscript, engine/wasm provide implementations
// - the pipeline executes modules through the Executor without knowing which
//   runtime evaluates them
//
// Every backend makes the input dataset visible to the module as the global
// variable named by InputVariable, evaluates the module source synchronously,
// and returns the value the source evaluates to as a frame.Output.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/teranos/baseline/errors"
	"github.com/teranos/baseline/frame"
)

// InputVariable is the global name the input dataset is bound to.
const InputVariable = "input_table"

// Backend evaluates module source in one foreign statistical runtime.
type Backend interface {
	// Name identifies the backend in config and module manifests (e.g. "rscript").
	Name() string

	// Extension is the module source file extension, without the dot (e.g. "R").
	Extension() string

	// Execute binds input as InputVariable, evaluates code, and returns its
	// result. A fault inside the runtime is returned as an error.
	Execute(ctx context.Context, code string, input frame.Columnar) (*frame.Output, error)
}

// Registry manages backends by name.
// Thread-safe for concurrent registration and lookup.
type Registry struct {
	backends map[string]Backend
	mu       sync.RWMutex
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Backend),
	}
}

// Register adds a backend using its name.
// Panics if a backend is already registered with that name.
func (r *Registry) Register(backend Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := backend.Name()
	if _, exists := r.backends[name]; exists {
		panic(fmt.Sprintf("backend already registered for name: %s", name))
	}
	r.backends[name] = backend
}

// Get retrieves the backend registered under name.
func (r *Registry) Get(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	backend, ok := r.backends[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownBackend, "%q (registered: %v)", name, r.namesLocked())
	}
	return backend, nil
}

// Has checks if a backend is registered for a name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.backends[name]
	return exists
}

// Names returns all registered backend names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

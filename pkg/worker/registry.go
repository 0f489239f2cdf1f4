package worker

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps task definition names to workers. It must be fully
// populated before the task handler starts; Freeze makes it immutable.
type Registry struct {
	mu      sync.Mutex
	workers map[string]*Worker
	frozen  bool
}

// NewRegistry creates a registry, optionally seeded with workers.
func NewRegistry(workers ...*Worker) (*Registry, error) {
	r := &Registry{workers: make(map[string]*Worker)}
	for _, w := range workers {
		if err := r.Register(w); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a worker. A task definition name is served by exactly one
// worker per process; duplicates and post-freeze registration are fatal.
func (r *Registry) Register(w *Worker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("registry is frozen, cannot register %s", w.TaskDefName())
	}
	if _, exists := r.workers[w.TaskDefName()]; exists {
		return fmt.Errorf("worker already registered for task type %s", w.TaskDefName())
	}
	r.workers[w.TaskDefName()] = w
	return nil
}

// Get looks up a worker by task definition name.
func (r *Registry) Get(taskDefName string) (*Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[taskDefName]
	return w, ok
}

// All returns the registered workers sorted by task definition name.
func (r *Registry) All() []*Worker {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.workers))
	for name := range r.workers {
		names = append(names, name)
	}
	sort.Strings(names)

	workers := make([]*Worker, 0, len(names))
	for _, name := range names {
		workers = append(workers, r.workers[name])
	}
	return workers
}

// Len returns the number of registered workers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

// Freeze makes the registry immutable. Called by the task handler at start.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

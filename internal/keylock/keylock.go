// Package keylock provides non-blocking per-key mutual exclusion.
package keylock

import "sync"

// Registry tracks which keys are currently held
type Registry struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// New creates an empty lock registry
func New() *Registry {
	return &Registry{held: make(map[string]struct{})}
}

// TryLock acquires key if it is free. The returned unlock func is idempotent.
func (r *Registry) TryLock(key string) (unlock func(), ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.held[key]; busy {
		return nil, false
	}
	r.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.held, key)
			r.mu.Unlock()
		})
	}, true
}

// Held reports whether key is currently locked
func (r *Registry) Held(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, busy := r.held[key]
	return busy
}

// Len returns the number of held keys
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.held)
}

package audit

import (
	"context"
	"sync"
)

// Registry holds callID → status. Begin records a pending call; Resolve
// stores a result unless one is already there.
type Registry interface {
	Begin(ctx context.Context, callID string) error
	// Resolve returns false when the call already had a terminal result.
	Resolve(ctx context.Context, callID, result string) (bool, error)
	// Status returns ok=false for unknown ids.
	Status(ctx context.Context, callID string) (status string, ok bool, err error)
}

// MemoryRegistry is a process-local Registry. Entries are never evicted.
type MemoryRegistry struct {
	mu      sync.Mutex
	results map[string]string
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{results: make(map[string]string)}
}

func (r *MemoryRegistry) Begin(_ context.Context, callID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.results[callID]; !ok {
		r.results[callID] = StatusPending
	}
	return nil
}

func (r *MemoryRegistry) Resolve(_ context.Context, callID, result string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.results[callID]; ok && cur != StatusPending {
		return false, nil
	}
	r.results[callID] = result
	return true, nil
}

func (r *MemoryRegistry) Status(_ context.Context, callID string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.results[callID]
	return s, ok, nil
}

package workflow

import (
	"context"
	"sync"
)

// Definition is a stored workflow: a named graph bound to one event.
type Definition struct {
	ID    int64
	Name  string
	Event string
	Graph string
}

// Store resolves the workflow bound to an event. A nil Definition with a nil
// error means the event is unbound. Uniqueness of the event binding is the
// store's responsibility.
type Store interface {
	LookupByEvent(ctx context.Context, event string) (*Definition, error)
}

// MemoryStore is an in-memory Store used by tests and the sim command.
type MemoryStore struct {
	mu      sync.RWMutex
	byEvent map[string]Definition
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byEvent: make(map[string]Definition)}
}

// Bind registers the definition, replacing any previous binding for the event.
func (s *MemoryStore) Bind(def Definition) {
	s.mu.Lock()
	s.byEvent[def.Event] = def
	s.mu.Unlock()
}

func (s *MemoryStore) LookupByEvent(_ context.Context, event string) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.byEvent[event]
	if !ok {
		return nil, nil
	}
	return &def, nil
}

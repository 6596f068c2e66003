package runlog

import (
	"context"
	"sync"
)

// MemorySink collects entries in memory. Used by tests and as a fallback when
// no persistent store is configured.
type MemorySink struct {
	mu      sync.Mutex
	entries []Record
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (m *MemorySink) Record(_ context.Context, src Source, message string) {
	if message == "" {
		return
	}
	m.mu.Lock()
	m.entries = append(m.entries, Record{Source: src, Message: message})
	m.mu.Unlock()
}

// Entries returns a copy of everything recorded so far.
func (m *MemorySink) Entries() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.entries))
	copy(out, m.entries)
	return out
}

// BySource filters recorded entries by source.
func (m *MemorySink) BySource(src Source) []Record {
	var out []Record
	for _, e := range m.Entries() {
		if e.Source == src {
			out = append(out, e)
		}
	}
	return out
}

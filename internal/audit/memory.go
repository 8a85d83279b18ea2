package audit

import (
	"context"
	"sync"
)

// MemoryLogger keeps audit entries in process memory.
type MemoryLogger struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryLogger constructs an in-memory audit log.
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

// Log appends an entry.
func (m *MemoryLogger) Log(_ context.Context, entry Entry) error {
	entry = normalize(entry)
	m.mu.Lock()
	m.entries = append(m.entries, entry)
	m.mu.Unlock()
	return nil
}

// List returns matching entries, newest first.
func (m *MemoryLogger) List(_ context.Context, filter Filter) ([]Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []Entry
	for i := len(m.entries) - 1; i >= 0 && len(result) < limit; i-- {
		entry := m.entries[i]
		if filter.ResourceType != "" && entry.ResourceType != filter.ResourceType {
			continue
		}
		if filter.ResourceID != "" && entry.ResourceID != filter.ResourceID {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

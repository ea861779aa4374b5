package store

import (
	"sync"

	"github.com/stevemurr/flatfile-items/record"
)

// MemoryStore keeps the collection in memory. Data is lost on restart.
// Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	items record.Collection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: record.Collection{}}
}

func (m *MemoryStore) View(fn func(record.Collection) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(m.items.Clone())
}

func (m *MemoryStore) Update(fn func(record.Collection) (record.Collection, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := fn(m.items.Clone())
	if err != nil {
		return err
	}
	m.items = next.Clone()
	return nil
}

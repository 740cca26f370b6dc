package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Store. It keeps raw values so that collections
// holding something other than a record list can be represented.
type Memory struct {
	mu   sync.RWMutex
	data map[string]any
}

func NewMemory() *Memory {
	return &Memory{data: map[string]any{}}
}

// Set stores an arbitrary value under collection.
func (m *Memory) Set(collection string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[collection] = value
}

func (m *Memory) Get(ctx context.Context, collection string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	value, ok := m.data[collection]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return toRecords(value)
}

func (m *Memory) ReplaceAll(ctx context.Context, collection string, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[collection] = cloneRecords(records)
	return nil
}

func (m *Memory) Collections(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.data))
	for name := range m.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

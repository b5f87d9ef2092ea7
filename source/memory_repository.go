package source

import (
	"context"
	"sync"
)

// MemoryRepository keeps entries in process memory. It is the back-end for
// tests and for hosts that persist the configuration themselves.
type MemoryRepository struct {
	sync.RWMutex
	Name    string
	entries map[string][]byte
}

func NewMemoryRepository(name string) *MemoryRepository {
	return &MemoryRepository{Name: name, entries: make(map[string][]byte)}
}

func (m *MemoryRepository) GetName() string {
	return m.Name
}

func (m *MemoryRepository) GetType() string {
	return "memory"
}

func (m *MemoryRepository) Read(_ context.Context, entry string) ([]byte, error) {
	if err := checkEntry(entry); err != nil {
		return nil, err
	}
	m.RLock()
	defer m.RUnlock()
	data, ok := m.entries[entry]
	if !ok {
		return nil, notFound(entry)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryRepository) Write(_ context.Context, entry string, data []byte) error {
	if err := checkEntry(entry); err != nil {
		return err
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	m.Lock()
	defer m.Unlock()
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	m.entries[entry] = stored
	return nil
}

func (m *MemoryRepository) Delete(_ context.Context, entry string) error {
	if err := checkEntry(entry); err != nil {
		return err
	}
	m.Lock()
	defer m.Unlock()
	delete(m.entries, entry)
	return nil
}

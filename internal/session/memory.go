package session

import (
	"context"
	"sync"
)

// MemoryStore is a Store that lives only as long as the process.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Set(_ context.Context, access, refresh, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[KeyAccess] = access
	m.values[KeyRefresh] = refresh
	if username != "" {
		m.values[KeyUsername] = username
	}
	return nil
}

func (m *MemoryStore) SetAccess(_ context.Context, access string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[KeyAccess] = access
	return nil
}

func (m *MemoryStore) Get(_ context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Session{
		Access:   m.values[KeyAccess],
		Refresh:  m.values[KeyRefresh],
		Username: m.values[KeyUsername],
	}, nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, KeyAccess)
	delete(m.values, KeyRefresh)
	return nil
}

func (m *MemoryStore) Forget(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.values)
	return nil
}

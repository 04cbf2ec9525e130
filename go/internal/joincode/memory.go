package joincode

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryRegistry is a process-local registry for tests and single-node
// development without Redis. Entries never expire.
type MemoryRegistry struct {
	mu    sync.Mutex
	codes map[string]uuid.UUID
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{codes: make(map[string]uuid.UUID)}
}

func (m *MemoryRegistry) Reserve(_ context.Context, code string, gameID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.codes[code]; taken {
		return false, nil
	}
	m.codes[code] = gameID
	return true, nil
}

func (m *MemoryRegistry) Resolve(_ context.Context, code string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.codes[code]
	if !ok {
		return uuid.Nil, ErrUnknownCode
	}
	return id, nil
}

func (m *MemoryRegistry) Release(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.codes, code)
	return nil
}

func (m *MemoryRegistry) ReleaseGame(_ context.Context, gameID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for code, id := range m.codes {
		if id == gameID {
			delete(m.codes, code)
		}
	}
	return nil
}

func (m *MemoryRegistry) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.codes)
}

package settings

import (
	"context"
	"sync"
)

// Store persists Settings. Save applies the changes to the stored record as a
// single read-modify-write; fields not named by a change are left untouched.
// An invalid result is rejected and the stored record stays as it was.
type Store interface {
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, changes ...Change) (Settings, error)
}

// MemoryStore keeps settings for the lifetime of the process.
type MemoryStore struct {
	mu sync.Mutex
	s  Settings
}

func NewMemoryStore(initial Settings) *MemoryStore {
	return &MemoryStore{s: initial}
}

func (m *MemoryStore) Load(_ context.Context) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.s, nil
}

func (m *MemoryStore) Save(_ context.Context, changes ...Change) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.s.Apply(changes...)
	if err := next.Validate(); err != nil {
		return m.s, err
	}
	m.s = next

	return next, nil
}

package storage

import (
	"context"
	"sync"

	"github.com/dealdojo/backend/internal/model/roleplay"
	"github.com/dealdojo/backend/internal/model/scenario"
)

// MemoryStore is the standalone RecordStore used when no external record
// service is wired in. Sessions written through survive for the process
// lifetime only.
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]roleplay.Session
	scenarios scenario.Store
}

// NewMemoryStore returns a MemoryStore backed by the given scenario catalog.
func NewMemoryStore(scenarios scenario.Store) *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]roleplay.Session),
		scenarios: scenarios,
	}
}

// SaveSession stores a session snapshot, replacing any previous one.
func (m *MemoryStore) SaveSession(_ context.Context, session roleplay.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session.Clone()
	return nil
}

// LoadSession retrieves the latest persisted snapshot.
func (m *MemoryStore) LoadSession(_ context.Context, id string) (roleplay.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return roleplay.Session{}, ErrNotFound
	}
	return session.Clone(), nil
}

// LoadScenario retrieves a scenario from the catalog.
func (m *MemoryStore) LoadScenario(_ context.Context, id string) (scenario.Scenario, error) {
	sc, ok := m.scenarios.FindByID(id)
	if !ok {
		return scenario.Scenario{}, ErrNotFound
	}
	return sc, nil
}

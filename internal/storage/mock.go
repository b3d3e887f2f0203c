package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dreadlabs/dread-engine/pkg/scenario"
	"github.com/dreadlabs/dread-engine/pkg/world"
)

// MockStore is an in-memory Store for tests. Error fields, when set, are
// returned by the corresponding operation.
type MockStore struct {
	mu       sync.Mutex
	states   map[uuid.UUID]*world.WorldState
	history  map[uuid.UUID][]HistoryEntry
	locks    map[uuid.UUID]*sync.Mutex
	Scenario *scenario.Scenario

	LoadErr   error
	SaveErr   error
	DeleteErr error

	SaveCalls int
}

var _ Store = (*MockStore)(nil)

func NewMockStore() *MockStore {
	return &MockStore{
		states:  make(map[uuid.UUID]*world.WorldState),
		history: make(map[uuid.UUID][]HistoryEntry),
		locks:   make(map[uuid.UUID]*sync.Mutex),
	}
}

func (m *MockStore) LoadWorldState(ctx context.Context, id uuid.UUID) (*world.WorldState, error) {
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.states[id]
	if !ok {
		return nil, nil
	}
	return ws.DeepCopy()
}

func (m *MockStore) SaveWorldState(ctx context.Context, ws *world.WorldState) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls++
	ws.Version++
	cp, err := ws.DeepCopy()
	if err != nil {
		return err
	}
	m.states[ws.ID] = cp
	return nil
}

func (m *MockStore) DeleteWorldState(ctx context.Context, id uuid.UUID) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, id)
	delete(m.history, id)
	return nil
}

func (m *MockStore) AppendHistory(ctx context.Context, id uuid.UUID, entry HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[id] = append(m.history[id], entry)
	return nil
}

func (m *MockStore) History(ctx context.Context, id uuid.UUID, n int) ([]HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.history[id]
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	out := make([]HistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (m *MockStore) GetScenario(ctx context.Context, name string) (*scenario.Scenario, error) {
	if m.Scenario != nil {
		return m.Scenario, nil
	}
	return scenario.Default(), nil
}

func (m *MockStore) ListScenarios(ctx context.Context) (map[string]string, error) {
	s, _ := m.GetScenario(ctx, "")
	return map[string]string{s.Name: "default.yaml"}, nil
}

func (m *MockStore) LockSession(id uuid.UUID) func() {
	m.mu.Lock()
	lock, ok := m.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[id] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (m *MockStore) Ping(ctx context.Context) error { return nil }
func (m *MockStore) Close() error                   { return nil }

package conversation

import (
	"context"
	"sync"
)

// MemoryStore keeps conversation state in process. Good enough for a
// single instance; state is lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[int64]*State
}

// NewMemoryStore builds an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[int64]*State)}
}

func (m *MemoryStore) Get(_ context.Context, chatID int64) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[chatID]
	if !ok {
		return nil, nil
	}
	cp := *st
	cp.Context = make(map[string]string, len(st.Context))
	for k, v := range st.Context {
		cp.Context[k] = v
	}
	return &cp, nil
}

func (m *MemoryStore) Set(_ context.Context, chatID int64, st *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[chatID] = st
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, chatID)
	return nil
}

package store

import (
	"context"
	"sync"

	"github.com/datallboy/gofichier/internal/domain"
)

// MemoryStore keeps state for the current process only. It stands in when
// the on-disk store is unreadable.
type MemoryStore struct {
	mu       sync.Mutex
	tasks    []domain.TransferState
	settings *domain.Settings
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Snapshot(_ context.Context, tasks []domain.TransferState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tasks = m.tasks[:0]
	for _, st := range tasks {
		if st.Status.IsResumable() {
			m.tasks = append(m.tasks, st)
		}
	}
	return nil
}

func (m *MemoryStore) Restore(_ context.Context) ([]domain.TransferState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.TransferState, len(m.tasks))
	for i, st := range m.tasks {
		st.Status = domain.StatusPaused
		st.RowIndex = i
		out[i] = st
	}
	return out, nil
}

func (m *MemoryStore) SaveSettings(_ context.Context, s domain.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &s
	return nil
}

func (m *MemoryStore) LoadSettings(_ context.Context, defaults domain.Settings) (domain.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return defaults, nil
	}
	return *m.settings, nil
}

func (m *MemoryStore) Close() error { return nil }

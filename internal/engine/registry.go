package engine

import (
	"sync"
)

// Registry keeps tasks in display order. A task's row index is its position
// in the registry and shifts when rows above it are removed.
type Registry struct {
	mu    sync.RWMutex
	order []*Task
	byID  map[string]*Task
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Task)}
}

// Add appends t and returns its row index.
func (r *Registry) Add(t *Task) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[t.ID()]; ok {
		return r.indexLocked(t.ID())
	}
	r.order = append(r.order, t)
	r.byID[t.ID()] = t
	return len(r.order) - 1
}

// Remove drops the task and returns the row it occupied, or -1.
func (r *Registry) Remove(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.indexLocked(id)
	if row < 0 {
		return -1
	}
	r.order = append(r.order[:row], r.order[row+1:]...)
	delete(r.byID, id)
	return row
}

func (r *Registry) Get(id string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	return t, ok
}

// Row returns the current row index of id, or -1.
func (r *Registry) Row(id string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexLocked(id)
}

// Resolve maps row indices to task IDs against a single view of the table.
// Out-of-range and duplicate rows are skipped.
func (r *Registry) Resolve(rows []int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[int]struct{}, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if row < 0 || row >= len(r.order) {
			continue
		}
		if _, dup := seen[row]; dup {
			continue
		}
		seen[row] = struct{}{}
		ids = append(ids, r.order[row].ID())
	}
	return ids
}

// All returns the tasks in row order.
func (r *Registry) All() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Task, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Registry) indexLocked(id string) int {
	if _, ok := r.byID[id]; !ok {
		return -1
	}
	for i, t := range r.order {
		if t.ID() == id {
			return i
		}
	}
	return -1
}

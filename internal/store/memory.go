package store

import (
	"sync"

	"github.com/ShayCichocki/convoy/pkg/models"
)

// MemoryStore is the default in-memory TaskStore. Concurrent writers on
// different ids do not conflict; writers on the same id are serialized at
// the store boundary by the single mutex.
type MemoryStore struct {
	mu     sync.RWMutex
	tasks  map[string]*models.Task
	events map[string][]*models.TaskEvent
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:  make(map[string]*models.Task),
		events: make(map[string][]*models.TaskEvent),
	}
}

// Save stores a deep copy of the task, replacing any prior record.
func (s *MemoryStore) Save(t *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t.Clone()
	return nil
}

// Load returns a deep copy of the task, or nil if absent.
func (s *MemoryStore) Load(id string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasks[id].Clone(), nil
}

// List returns deep copies of tasks matching the filter.
func (s *MemoryStore) List(f Filter) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Task
	for _, t := range s.tasks {
		if f.Matches(t) {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

// Delete removes the task record and its journal atomically.
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	delete(s.events, id)
	return nil
}

// SaveEvent appends a copy of the event to the task's journal.
func (s *MemoryStore) SaveEvent(e *models.TaskEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.events[e.TaskID] = append(s.events[e.TaskID], &cp)
	return nil
}

// GetEvents returns copies of the task's events in insertion order.
func (s *MemoryStore) GetEvents(taskID string) ([]*models.TaskEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	journal := s.events[taskID]
	out := make([]*models.TaskEvent, 0, len(journal))
	for _, e := range journal {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// Compile-time verification that MemoryStore implements TaskStore.
var _ TaskStore = (*MemoryStore)(nil)

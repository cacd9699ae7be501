package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory TaskStore for tests and ephemeral deployments
// without a database. Metadata kept here does not survive process restarts.
type MemStore struct {
	mu    sync.Mutex
	tasks map[string]TaskMeta
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{tasks: make(map[string]TaskMeta)}
}

// InsertTask records metadata for a newly created task.
func (s *MemStore) InsertTask(_ context.Context, meta *TaskMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := *meta
	if m.State == "" {
		m.State = StatePending
	}
	if m.Created.IsZero() {
		m.Created = time.Now().UTC()
	}
	s.tasks[m.TaskID] = m
	return nil
}

// GetTask returns the metadata for a task, or nil when none is recorded.
func (s *MemStore) GetTask(_ context.Context, taskID string) (*TaskMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.tasks[taskID]
	if !ok {
		return nil, nil
	}
	out := m
	return &out, nil
}

// DeleteTask discards a task's metadata.
func (s *MemStore) DeleteTask(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, taskID)
	return nil
}

// ListPending returns metadata for all tasks not yet completed, oldest first.
func (s *MemStore) ListPending(_ context.Context) ([]TaskMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []TaskMeta
	for _, m := range s.tasks {
		if m.State == StatePending {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out, nil
}

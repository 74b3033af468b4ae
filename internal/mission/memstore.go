package mission

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/meridianops/custos/model"
)

// MemoryStore is an in-memory mission Store for tests and single-node use.
type MemoryStore struct {
	mu       sync.RWMutex
	missions map[string]model.Mission
	tasks    map[string][]model.Task
	sources  []model.DataSource
}

// NewMemoryStore creates a new in-memory mission store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		missions: make(map[string]model.Mission),
		tasks:    make(map[string][]model.Task),
	}
}

// CreateMission inserts a new mission.
func (s *MemoryStore) CreateMission(_ context.Context, m model.Mission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.missions[m.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("mission %q already exists", m.ID))
	}
	s.missions[m.ID] = m
	return nil
}

// GetMission retrieves a mission by ID.
func (s *MemoryStore) GetMission(_ context.Context, id string) (model.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.missions[id]
	if !ok {
		return model.Mission{}, model.NewNotFoundError(fmt.Sprintf("mission %q not found", id))
	}
	return m, nil
}

// ListMissions returns an organization's missions, newest first.
func (s *MemoryStore) ListMissions(_ context.Context, orgID string) ([]model.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Mission
	for _, m := range s.missions {
		if m.OrgID == orgID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// MarkCompleted flips a mission to completed. Idempotent.
func (s *MemoryStore) MarkCompleted(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.missions[id]
	if !ok {
		return model.NewNotFoundError(fmt.Sprintf("mission %q not found", id))
	}
	if m.Status == model.MissionStatusCompleted {
		return nil
	}
	m.Status = model.MissionStatusCompleted
	s.missions[id] = m
	return nil
}

// DeleteMission removes a mission.
func (s *MemoryStore) DeleteMission(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.missions[id]; !ok {
		return model.NewNotFoundError(fmt.Sprintf("mission %q not found", id))
	}
	delete(s.missions, id)
	delete(s.tasks, id)
	return nil
}

// CreateTask inserts a new task under a mission.
func (s *MemoryStore) CreateTask(_ context.Context, t model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.MissionID] = append(s.tasks[t.MissionID], t)
	return nil
}

// TasksByMission returns a mission's tasks in creation order.
func (s *MemoryStore) TasksByMission(_ context.Context, missionID string) ([]model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := s.tasks[missionID]
	out := make([]model.Task, len(tasks))
	copy(out, tasks)
	return out, nil
}

// OverdueTasks returns incomplete tasks past their due date.
func (s *MemoryStore) OverdueTasks(_ context.Context, cutoff time.Time) ([]model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Task
	for _, tasks := range s.tasks {
		for _, t := range tasks {
			if t.Status == model.TaskStatusCompleted {
				continue
			}
			if t.DueDate != nil && t.DueDate.Before(cutoff) {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

// DataSources returns all registered data sources.
func (s *MemoryStore) DataSources(_ context.Context) ([]model.DataSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.DataSource, len(s.sources))
	copy(out, s.sources)
	return out, nil
}

// AddDataSource registers a data source. For seeding and tests.
func (s *MemoryStore) AddDataSource(src model.DataSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = append(s.sources, src)
}

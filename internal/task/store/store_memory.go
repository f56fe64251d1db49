package store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"taskguard/internal/task/models"
	id "taskguard/pkg/domain"
)

type InMemoryStore struct {
	mu          sync.RWMutex
	tasks       map[id.TaskID]*models.Task
	assignments map[id.TaskID]map[id.UserID]models.Assignment
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tasks:       make(map[id.TaskID]*models.Task),
		assignments: make(map[id.TaskID]map[id.UserID]models.Assignment),
	}
}

func (s *InMemoryStore) Create(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (s *InMemoryStore) FindByID(ctx context.Context, taskID id.TaskID) (*models.Task, error) {
	task, err := s.FindByIDIncludingDeleted(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.IsDeleted() {
		return nil, ErrNotFound
	}
	return task, nil
}

func (s *InMemoryStore) FindByIDIncludingDeleted(_ context.Context, taskID id.TaskID) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTask(task), nil
}

func (s *InMemoryStore) ListByOrganization(_ context.Context, orgID id.OrganizationID) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Task{}
	for _, task := range s.tasks {
		if task.OrganizationID == orgID && !task.IsDeleted() {
			out = append(out, cloneTask(task))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// ListForUser returns active tasks the user created or is assigned to.
func (s *InMemoryStore) ListForUser(_ context.Context, userID id.UserID) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Task{}
	for taskID, task := range s.tasks {
		if task.IsDeleted() {
			continue
		}
		_, assigned := s.assignments[taskID][userID]
		if task.CreatorID == userID || assigned {
			out = append(out, cloneTask(task))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemoryStore) Execute(_ context.Context, taskID id.TaskID, validate func(*models.Task) error, mutate func(*models.Task)) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok || task.IsDeleted() {
		return nil, ErrNotFound
	}
	cp := cloneTask(task)
	if err := validate(cp); err != nil {
		return nil, err
	}
	mutate(cp)
	s.tasks[taskID] = cp
	return cloneTask(cp), nil
}

// DeleteByOrganization hard-deletes every task of the organization, deleted
// ones included, with their assignments.
func (s *InMemoryStore) DeleteByOrganization(_ context.Context, orgID id.OrganizationID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for taskID, task := range s.tasks {
		if task.OrganizationID == orgID {
			delete(s.tasks, taskID)
			delete(s.assignments, taskID)
			n++
		}
	}
	return n, nil
}

// AssignIfAbsent stores a unless the pair already exists, in which case the
// existing row is returned with created=false.
func (s *InMemoryStore) AssignIfAbsent(_ context.Context, a *models.Assignment) (*models.Assignment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[a.TaskID]; !ok {
		return nil, false, ErrNotFound
	}
	byUser, ok := s.assignments[a.TaskID]
	if !ok {
		byUser = make(map[id.UserID]models.Assignment)
		s.assignments[a.TaskID] = byUser
	}
	if existing, ok := byUser[a.UserID]; ok {
		return &existing, false, nil
	}
	byUser[a.UserID] = *a
	cp := *a
	return &cp, true, nil
}

func (s *InMemoryStore) Unassign(_ context.Context, taskID id.TaskID, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser := s.assignments[taskID]
	if _, ok := byUser[userID]; !ok {
		return ErrNotFound
	}
	delete(byUser, userID)
	if len(byUser) == 0 {
		delete(s.assignments, taskID)
	}
	return nil
}

// ListAssignments returns the task's assignments, oldest first.
func (s *InMemoryStore) ListAssignments(_ context.Context, taskID id.TaskID) ([]*models.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Assignment, 0, len(s.assignments[taskID]))
	for _, a := range s.assignments[taskID] {
		cp := a
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *models.Assignment) int {
		if c := a.AssignedAt.Compare(b.AssignedAt); c != 0 {
			return c
		}
		return strings.Compare(a.UserID.String(), b.UserID.String())
	})
	return out, nil
}

func (s *InMemoryStore) DeleteAssignmentsByUser(_ context.Context, userID id.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for taskID, byUser := range s.assignments {
		if _, ok := byUser[userID]; ok {
			delete(byUser, userID)
			n++
		}
		if len(byUser) == 0 {
			delete(s.assignments, taskID)
		}
	}
	return n, nil
}

func cloneTask(t *models.Task) *models.Task {
	cp := *t
	if t.DueDate != nil {
		due := *t.DueDate
		cp.DueDate = &due
	}
	if t.DeletedAt != nil {
		deletedAt := *t.DeletedAt
		cp.DeletedAt = &deletedAt
	}
	return &cp
}

func sortNewestFirst(tasks []*models.Task) {
	slices.SortFunc(tasks, func(a, b *models.Task) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
}

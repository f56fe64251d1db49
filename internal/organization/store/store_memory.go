package store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"taskguard/internal/organization/models"
	id "taskguard/pkg/domain"
)

type InMemoryStore struct {
	mu   sync.RWMutex
	orgs map[id.OrganizationID]*models.Organization
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{orgs: make(map[id.OrganizationID]*models.Organization)}
}

func (s *InMemoryStore) Create(_ context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *org
	s.orgs[org.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, orgID id.OrganizationID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgs[orgID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *org
	return &cp, nil
}

// FindByIDs skips unknown ids and orders the result by name.
func (s *InMemoryStore) FindByIDs(_ context.Context, ids []id.OrganizationID) ([]*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Organization, 0, len(ids))
	for _, orgID := range ids {
		if org, ok := s.orgs[orgID]; ok {
			cp := *org
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *models.Organization) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

func (s *InMemoryStore) Execute(_ context.Context, orgID id.OrganizationID, validate func(*models.Organization) error, mutate func(*models.Organization)) (*models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[orgID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *org
	if err := validate(&cp); err != nil {
		return nil, err
	}
	mutate(&cp)
	s.orgs[orgID] = &cp
	out := cp
	return &out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, orgID id.OrganizationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[orgID]; !ok {
		return ErrNotFound
	}
	delete(s.orgs, orgID)
	return nil
}

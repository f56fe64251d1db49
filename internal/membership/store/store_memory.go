package store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"taskguard/internal/membership/models"
	id "taskguard/pkg/domain"
)

type key struct {
	user id.UserID
	org  id.OrganizationID
}

// InMemoryStore keeps memberships keyed by (user, organization). Reads return
// copies.
type InMemoryStore struct {
	mu          sync.RWMutex
	memberships map[key]*models.Membership
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{memberships: make(map[key]*models.Membership)}
}

func (s *InMemoryStore) Find(_ context.Context, userID id.UserID, orgID id.OrganizationID) (*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[key{userID, orgID}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// Create inserts m. The existence check and the insert share one critical
// section, so exactly one of two racing calls succeeds.
func (s *InMemoryStore) Create(_ context.Context, m *models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{m.UserID, m.OrganizationID}
	if _, exists := s.memberships[k]; exists {
		return ErrDuplicate
	}
	cp := *m
	s.memberships[k] = &cp
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, userID id.UserID, orgID id.OrganizationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{userID, orgID}
	if _, ok := s.memberships[k]; !ok {
		return ErrNotFound
	}
	delete(s.memberships, k)
	return nil
}

// Execute validates and mutates the stored membership under the write lock.
func (s *InMemoryStore) Execute(_ context.Context, userID id.UserID, orgID id.OrganizationID, validate func(*models.Membership) error, mutate func(*models.Membership)) (*models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{userID, orgID}
	m, ok := s.memberships[k]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	if err := validate(&cp); err != nil {
		return nil, err
	}
	mutate(&cp)
	s.memberships[k] = &cp
	out := cp
	return &out, nil
}

// ListByOrganization returns members ordered by join time.
func (s *InMemoryStore) ListByOrganization(_ context.Context, orgID id.OrganizationID) ([]*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Membership
	for k, m := range s.memberships {
		if k.org == orgID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sortByJoined(out)
	return out, nil
}

// ListByUser returns the user's memberships ordered by join time.
func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Membership
	for k, m := range s.memberships {
		if k.user == userID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sortByJoined(out)
	return out, nil
}

// DeleteByOrganization removes every membership of the organization.
func (s *InMemoryStore) DeleteByOrganization(_ context.Context, orgID id.OrganizationID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.memberships {
		if k.org == orgID {
			delete(s.memberships, k)
			n++
		}
	}
	return n, nil
}

// DeleteByUser removes every membership of the user.
func (s *InMemoryStore) DeleteByUser(_ context.Context, userID id.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.memberships {
		if k.user == userID {
			delete(s.memberships, k)
			n++
		}
	}
	return n, nil
}

func sortByJoined(ms []*models.Membership) {
	slices.SortFunc(ms, func(a, b *models.Membership) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return strings.Compare(a.UserID.String()+a.OrganizationID.String(), b.UserID.String()+b.OrganizationID.String())
	})
}

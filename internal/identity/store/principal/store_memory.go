package principal

import (
	"context"
	"strings"
	"sync"

	"taskguard/internal/identity/models"
	id "taskguard/pkg/domain"
)

// InMemoryStore indexes principals by id and by normalized email.
type InMemoryStore struct {
	mu      sync.RWMutex
	byID    map[id.UserID]*models.Principal
	byEmail map[string]id.UserID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:    make(map[id.UserID]*models.Principal),
		byEmail: make(map[string]id.UserID),
	}
}

// Create inserts p unless its email is taken. The check and insert happen
// under one lock.
func (s *InMemoryStore) Create(_ context.Context, p *models.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(p.Email)
	if _, taken := s.byEmail[key]; taken {
		return ErrEmailTaken
	}
	cp := *p
	s.byID[p.ID] = &cp
	s.byEmail[key] = p.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, userID id.UserID) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.byID[userID]
	return &cp, nil
}

// FindByIDs returns the principals that exist; missing ids are skipped.
func (s *InMemoryStore) FindByIDs(_ context.Context, ids []id.UserID) ([]*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Principal, 0, len(ids))
	for _, userID := range ids {
		if p, ok := s.byID[userID]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Execute runs validate then mutate on the stored principal under the write
// lock. Nothing is written when validate fails.
func (s *InMemoryStore) Execute(_ context.Context, userID id.UserID, validate func(*models.Principal) error, mutate func(*models.Principal)) (*models.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	if err := validate(&cp); err != nil {
		return nil, err
	}
	mutate(&cp)
	s.byID[userID] = &cp
	out := cp
	return &out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[userID]
	if !ok {
		return ErrNotFound
	}
	delete(s.byEmail, strings.ToLower(p.Email))
	delete(s.byID, userID)
	return nil
}

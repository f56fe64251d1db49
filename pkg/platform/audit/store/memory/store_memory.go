package memory

import (
	"context"
	"maps"
	"sync"

	id "taskguard/pkg/domain"
	audit "taskguard/pkg/platform/audit"
)

// InMemoryStore keeps the chain in append order. Append holds the write lock
// across reading the head and inserting, so the chain never forks.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []audit.Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}

func (s *InMemoryStore) Append(_ context.Context, rec *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	head := ""
	if n := len(s.records); n > 0 {
		head = s.records[n-1].Hash
	}
	audit.Seal(rec, head)
	s.records = append(s.records, cloneRecord(*rec))
	return nil
}

// Query scans newest first and stops at limit.
func (s *InMemoryStore) Query(_ context.Context, filter audit.Filter, limit int) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = audit.NormalizeLimit(limit)
	result := make([]audit.Record, 0, min(limit, len(s.records)))
	for i := len(s.records) - 1; i >= 0 && len(result) < limit; i-- {
		if filter.Matches(s.records[i]) {
			result = append(result, cloneRecord(s.records[i]))
		}
	}
	return result, nil
}

func (s *InMemoryStore) Chain(_ context.Context) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]audit.Record, len(s.records))
	for i, rec := range s.records {
		result[i] = cloneRecord(rec)
	}
	return result, nil
}

func (s *InMemoryStore) DetachActor(_ context.Context, userID id.UserID) (int, error) {
	if userID.IsNil() {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for i := range s.records {
		if s.records[i].ActorID == userID {
			s.records[i].ActorID = id.UserID{}
			s.records[i].ActorDetached = true
			changed++
		}
	}
	return changed, nil
}

func cloneRecord(rec audit.Record) audit.Record {
	rec.Metadata = maps.Clone(rec.Metadata)
	return rec
}

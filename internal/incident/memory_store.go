package incident

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory incident store for demo/test use.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*Incident
	order []string // creation order
}

// NewMemoryStore creates an in-memory incident store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Incident)}
}

func (s *MemoryStore) Create(ctx context.Context, inc *Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[inc.ID] = copyIncident(inc)
	s.order = append(s.order, inc.ID)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inc, ok := s.byID[id]
	if !ok {
		return nil, ErrIncidentNotFound
	}
	return copyIncident(inc), nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status ReviewStatus, limit int) ([]*Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Incident
	// Newest first.
	for i := len(s.order) - 1; i >= 0 && len(result) < limit; i-- {
		inc := s.byID[s.order[i]]
		if inc.Status == status {
			result = append(result, copyIncident(inc))
		}
	}
	return result, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status ReviewStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inc, ok := s.byID[id]
	if !ok {
		return ErrIncidentNotFound
	}
	inc.Status = status
	return nil
}

func copyIncident(inc *Incident) *Incident {
	cp := *inc
	cp.Capture = append([]byte(nil), inc.Capture...)
	return &cp
}

package ledger

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[string]*Transaction
	byAccount map[string][]string // accountID → tx IDs, oldest first
}

// NewMemoryStore creates an in-memory transaction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[string]*Transaction),
		byAccount: make(map[string][]string),
	}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.byID[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	cp := copyTx(tx)
	return cp, nil
}

func (s *MemoryStore) History(ctx context.Context, accountID string) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byAccount[accountID]
	result := make([]*Transaction, 0, len(ids))
	// Newest first.
	for i := len(ids) - 1; i >= 0; i-- {
		result = append(result, copyTx(s.byID[ids[i]]))
	}
	return result, nil
}

func (s *MemoryStore) Persist(ctx context.Context, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[tx.ID]; exists {
		return ErrDuplicateID
	}
	s.byID[tx.ID] = copyTx(tx)
	s.byAccount[tx.AccountID] = append(s.byAccount[tx.AccountID], tx.ID)
	return nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.byID[id]
	if !ok {
		return ErrTransactionNotFound
	}
	tx.Status = status
	return nil
}

// copyTx deep-copies a transaction so callers cannot mutate store state.
func copyTx(tx *Transaction) *Transaction {
	cp := *tx
	cp.Rationale = append([]string(nil), tx.Rationale...)
	if tx.Location != nil {
		loc := *tx.Location
		cp.Location = &loc
	}
	return &cp
}

package ledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is a concurrency-safe in-memory account store useful for unit tests.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]Account)}
}

// Insert adds a new account record.
func (s *MemoryStore) Insert(_ context.Context, account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account.Fingerprint]; ok {
		return fmt.Errorf("account %s already exists", account.Username)
	}
	s.accounts[account.Fingerprint] = account
	return nil
}

// List returns every account record.
func (s *MemoryStore) List(_ context.Context) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	accounts := make([]Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		accounts = append(accounts, a)
	}
	return accounts, nil
}

// Delete removes the record keyed by fingerprint.
func (s *MemoryStore) Delete(_ context.Context, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[fingerprint]; !ok {
		return ErrNotFound
	}
	delete(s.accounts, fingerprint)
	return nil
}

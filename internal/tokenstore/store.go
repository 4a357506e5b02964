// Package tokenstore persists the single credential token of the dashboard
// session under a well-known key.
package tokenstore

import (
	"context"
	"sync"
)

// DefaultKey is the storage key of the session token.
const DefaultKey = "auth_token"

// Store persists one token. Load returns "" and a nil error when no token is
// stored; Delete of a missing token is not an error.
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Delete(ctx context.Context) error
}

// MemoryStore keeps the token in process memory. It is used in tests and
// when the dashboard should forget its session on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

func (s *MemoryStore) Save(_ context.Context, token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	return nil
}

package memory

import (
	"context"
	"sync"

	"trivia-lobby-service/internal/domain"
)

// CredentialStore is a demo/test credential verifier backed by a map.
// Production deployments plug in a real identity collaborator; hashing and
// storage are outside the engine's scope.
type CredentialStore struct {
	mu    sync.RWMutex
	users map[string]credential
}

type credential struct {
	password string
	isAdmin  bool
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{users: make(map[string]credential)}
}

// Register adds or replaces a user.
func (s *CredentialStore) Register(pseudo, password string, isAdmin bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[pseudo] = credential{password: password, isAdmin: isAdmin}
}

func (s *CredentialStore) Verify(_ context.Context, pseudo, password string, isAdmin bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.users[pseudo]
	if !ok || cred.password != password {
		return domain.ErrUnauthorized
	}
	if isAdmin && !cred.isAdmin {
		return domain.ErrUnauthorized
	}
	return nil
}

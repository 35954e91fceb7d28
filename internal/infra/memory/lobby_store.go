package memory

import (
	"context"
	"sync"

	"trivia-lobby-service/internal/app"
	"trivia-lobby-service/internal/domain"
)

// LobbyStore is the in-process session registry plus record accessor.
// The registry map and the record map are guarded separately: SaveRecord is
// called from inside a lobby's critical section, so it must never wait on the
// registry lock while Register is probing other lobbies.
type LobbyStore struct {
	mu      sync.RWMutex
	lobbies map[string]*app.Lobby

	recMu   sync.RWMutex
	records map[string]domain.LobbyRecord
}

func NewLobbyStore() *LobbyStore {
	return &LobbyStore{
		lobbies: make(map[string]*app.Lobby),
		records: make(map[string]domain.LobbyRecord),
	}
}

func (s *LobbyStore) Register(l *app.Lobby) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lobbies[l.ID()]; ok {
		return domain.ErrDuplicate
	}
	for _, existing := range s.lobbies {
		if existing.QuizID() == l.QuizID() && existing.Active() {
			return domain.ErrDuplicate
		}
	}
	s.lobbies[l.ID()] = l
	return nil
}

func (s *LobbyStore) Get(id string) (*app.Lobby, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lobbies[id]
	return l, ok
}

func (s *LobbyStore) Delete(id string) {
	s.mu.Lock()
	delete(s.lobbies, id)
	s.mu.Unlock()

	s.recMu.Lock()
	delete(s.records, id)
	s.recMu.Unlock()
}

func (s *LobbyStore) Lobbies() []*app.Lobby {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Lobby, 0, len(s.lobbies))
	for _, l := range s.lobbies {
		out = append(out, l)
	}
	return out
}

func (s *LobbyStore) SaveRecord(_ context.Context, rec domain.LobbyRecord) error {
	s.recMu.Lock()
	defer s.recMu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

func (s *LobbyStore) LoadRecord(_ context.Context, id string) (domain.LobbyRecord, error) {
	s.recMu.RLock()
	defer s.recMu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.LobbyRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-lobby-service/internal/app"
	"trivia-lobby-service/internal/domain"
)

// LobbyStore is the Redis-backed session registry. The runtime *Lobby stays
// in a local map to reuse the in-process lock and broadcast machinery; the
// lobby record (including the question order fixed at creation) is persisted
// as JSON so a restarted process reads back the identical order and armed
// deadline timestamp.
type LobbyStore struct {
	client *redis.Client
	ttl    time.Duration

	mu      sync.RWMutex
	lobbies map[string]*app.Lobby
}

func NewLobbyStore(client *redis.Client, ttl time.Duration) *LobbyStore {
	return &LobbyStore{
		client:  client,
		ttl:     ttl,
		lobbies: make(map[string]*app.Lobby),
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
	_ = s.client.Del(context.Background(), s.key(id)).Err()
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

func (s *LobbyStore) SaveRecord(ctx context.Context, rec domain.LobbyRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal lobby record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(rec.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save lobby record: %w", err)
	}
	return nil
}

func (s *LobbyStore) LoadRecord(ctx context.Context, id string) (domain.LobbyRecord, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return domain.LobbyRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.LobbyRecord{}, fmt.Errorf("load lobby record: %w", err)
	}
	var rec domain.LobbyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.LobbyRecord{}, fmt.Errorf("unmarshal lobby record: %w", err)
	}
	return rec, nil
}

func (s *LobbyStore) key(id string) string {
	return "lobby:record:" + id
}

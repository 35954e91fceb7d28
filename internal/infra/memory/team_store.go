package memory

import (
	"context"
	"sort"
	"sync"

	"trivia-lobby-service/internal/domain"
)

// TeamStore keeps team scores in memory. Each team carries its own mutex so
// validators grading different lobbies for the same team serialize against
// each other without touching any lobby's lock.
type TeamStore struct {
	mu    sync.RWMutex
	teams map[string]*teamEntry
}

type teamEntry struct {
	mu    sync.Mutex
	score int
}

func NewTeamStore() *TeamStore {
	return &TeamStore{teams: make(map[string]*teamEntry)}
}

func (s *TeamStore) Ensure(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[name]; !ok {
		s.teams[name] = &teamEntry{}
	}
	return nil
}

func (s *TeamStore) Get(_ context.Context, name string) (domain.Team, error) {
	s.mu.RLock()
	entry, ok := s.teams[name]
	s.mu.RUnlock()
	if !ok {
		return domain.Team{}, domain.ErrNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return domain.Team{Name: name, ValidatedScore: entry.score}, nil
}

func (s *TeamStore) All(_ context.Context) ([]domain.Team, error) {
	s.mu.RLock()
	names := make([]string, 0, len(s.teams))
	entries := make(map[string]*teamEntry, len(s.teams))
	for name, entry := range s.teams {
		names = append(names, name)
		entries[name] = entry
	}
	s.mu.RUnlock()

	sort.Strings(names)
	out := make([]domain.Team, 0, len(names))
	for _, name := range names {
		entry := entries[name]
		entry.mu.Lock()
		out = append(out, domain.Team{Name: name, ValidatedScore: entry.score})
		entry.mu.Unlock()
	}
	return out, nil
}

func (s *TeamStore) AddValidatedPoints(_ context.Context, name string, points int) (int, error) {
	s.mu.RLock()
	entry, ok := s.teams[name]
	s.mu.RUnlock()
	if !ok {
		return 0, domain.ErrNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.score += points
	return entry.score, nil
}

func (s *TeamStore) ResetScores(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.teams {
		entry.mu.Lock()
		entry.score = 0
		entry.mu.Unlock()
	}
	return nil
}

// Remove deletes a team outright. Grading a deleted team's answers still
// records the decision; only the increment is skipped.
func (s *TeamStore) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.teams, name)
}

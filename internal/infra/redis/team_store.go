package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"trivia-lobby-service/internal/domain"
)

const (
	teamNamesKey  = "teams:names"
	teamScoresKey = "teams:validatedScore"
)

// TeamStore keeps team scores in Redis. HINCRBY is atomic per field, which
// gives the per-team serialization the scoring engine requires even with
// validators running on many lobbies (or processes) at once.
type TeamStore struct {
	client *redis.Client
}

func NewTeamStore(client *redis.Client) *TeamStore {
	return &TeamStore{client: client}
}

func (s *TeamStore) Ensure(ctx context.Context, name string) error {
	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, teamNamesKey, name)
	pipe.HSetNX(ctx, teamScoresKey, name, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ensure team: %w", err)
	}
	return nil
}

func (s *TeamStore) Get(ctx context.Context, name string) (domain.Team, error) {
	exists, err := s.client.SIsMember(ctx, teamNamesKey, name).Result()
	if err != nil {
		return domain.Team{}, fmt.Errorf("get team: %w", err)
	}
	if !exists {
		return domain.Team{}, domain.ErrNotFound
	}
	raw, err := s.client.HGet(ctx, teamScoresKey, name).Result()
	if err == redis.Nil {
		return domain.Team{Name: name}, nil
	}
	if err != nil {
		return domain.Team{}, fmt.Errorf("get team score: %w", err)
	}
	score, _ := strconv.Atoi(raw)
	return domain.Team{Name: name, ValidatedScore: score}, nil
}

func (s *TeamStore) All(ctx context.Context) ([]domain.Team, error) {
	names, err := s.client.SMembers(ctx, teamNamesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	scores, err := s.client.HGetAll(ctx, teamScoresKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list team scores: %w", err)
	}
	sort.Strings(names)
	out := make([]domain.Team, 0, len(names))
	for _, name := range names {
		score, _ := strconv.Atoi(scores[name])
		out = append(out, domain.Team{Name: name, ValidatedScore: score})
	}
	return out, nil
}

func (s *TeamStore) AddValidatedPoints(ctx context.Context, name string, points int) (int, error) {
	exists, err := s.client.SIsMember(ctx, teamNamesKey, name).Result()
	if err != nil {
		return 0, fmt.Errorf("add points: %w", err)
	}
	if !exists {
		return 0, domain.ErrNotFound
	}
	total, err := s.client.HIncrBy(ctx, teamScoresKey, name, int64(points)).Result()
	if err != nil {
		return 0, fmt.Errorf("add points: %w", err)
	}
	return int(total), nil
}

func (s *TeamStore) ResetScores(ctx context.Context) error {
	names, err := s.client.SMembers(ctx, teamNamesKey).Result()
	if err != nil {
		return fmt.Errorf("reset scores: %w", err)
	}
	if len(names) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, name := range names {
		pipe.HSet(ctx, teamScoresKey, name, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("reset scores: %w", err)
	}
	return nil
}

// Remove deletes a team outright; pending validations for it are still
// recorded by the engine, just not credited.
func (s *TeamStore) Remove(ctx context.Context, name string) error {
	pipe := s.client.Pipeline()
	pipe.SRem(ctx, teamNamesKey, name)
	pipe.HDel(ctx, teamScoresKey, name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove team: %w", err)
	}
	return nil
}

package app

import (
	"context"

	"trivia-lobby-service/internal/domain"
)

// LobbyStore is the session registry: the single lookup/creation/deletion
// point for lobbies, plus the persistence accessor for lobby records.
type LobbyStore interface {
	RecordWriter

	// Register adds a new lobby. It fails with domain.ErrDuplicate when the
	// id is taken or another non-finished lobby already plays the same quiz.
	Register(l *Lobby) error
	Get(id string) (*Lobby, bool)
	Delete(id string)
	Lobbies() []*Lobby

	// LoadRecord reads a persisted lobby record back, including the question
	// order fixed at creation. Used by read-only history and restart checks.
	LoadRecord(ctx context.Context, id string) (domain.LobbyRecord, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// TeamStore holds team score state. Implementations serialize mutations per
// team independently of any lobby's lock, so concurrent validators across
// lobbies never lose updates.
type TeamStore interface {
	Ensure(ctx context.Context, name string) error
	Get(ctx context.Context, name string) (domain.Team, error)
	All(ctx context.Context) ([]domain.Team, error)

	// AddValidatedPoints atomically increments a team's validated score and
	// returns the new total. domain.ErrNotFound when the team is gone.
	AddValidatedPoints(ctx context.Context, name string, points int) (int, error)

	// ResetScores zeroes every team's validated score. Validation records on
	// lobbies are untouched.
	ResetScores(ctx context.Context) error
}

// CredentialVerifier checks login credentials. Credential storage and
// hashing belong to an external collaborator.
type CredentialVerifier interface {
	Verify(ctx context.Context, pseudo, password string, isAdmin bool) error
}

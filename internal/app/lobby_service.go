package app

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"trivia-lobby-service/internal/domain"
)

// LobbyService contains the session engine use cases: lobby lifecycle,
// answer collection, and grading. Transports (push or poll) call the same
// entry points.
type LobbyService struct {
	lobbies   LobbyStore
	quizzes   QuizRepository
	teams     TeamStore
	deadlines *DeadlineScheduler
	clock     clockwork.Clock
	logger    zerolog.Logger
	sinks     []SnapshotSink

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewLobbyService(lobbies LobbyStore, quizzes QuizRepository, teams TeamStore, clock clockwork.Clock, logger zerolog.Logger, sinks ...SnapshotSink) *LobbyService {
	s := &LobbyService{
		lobbies: lobbies,
		quizzes: quizzes,
		teams:   teams,
		clock:   clock,
		logger:  logger,
		sinks:   sinks,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.deadlines = NewDeadlineScheduler(clock, s.handleDeadline, logger)
	return s
}

// handleDeadline routes a fired deadline to its lobby. The lobby re-validates
// the (status, questionIndex) token under its own lock; a lobby deleted in
// the meantime makes the fire a logged no-op.
func (s *LobbyService) handleDeadline(lobbyID string, questionIndex int) {
	l, ok := s.lobbies.Get(lobbyID)
	if !ok {
		s.logger.Debug().Str("lobbyId", lobbyID).Msg("deadline fired for deleted lobby")
		return
	}
	l.DeadlineFired(context.Background(), questionIndex)
}

// CreateLobby creates a waiting lobby for the quiz, fixing the question order
// (shuffled or authored) once, at creation. At most one non-finished lobby
// may exist per quiz.
func (s *LobbyService) CreateLobby(ctx context.Context, quizID string, shuffle bool) (string, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return "", err
	}
	if len(quiz.Questions) == 0 {
		return "", domain.ErrInvalidState
	}

	s.rndMu.Lock()
	order := QuestionOrder(quiz, shuffle, s.rnd)
	s.rndMu.Unlock()

	l := newLobby(uuid.NewString(), quiz, order, s.clock, s.deadlines, s.lobbies, s.sinks, s.logger)
	if err := s.lobbies.Register(l); err != nil {
		return "", err
	}
	if err := s.lobbies.SaveRecord(ctx, l.Record()); err != nil {
		s.logger.Warn().Err(err).Str("lobbyId", l.ID()).Msg("persisting new lobby failed")
	}
	s.logger.Info().Str("lobbyId", l.ID()).Str("quizId", quizID).Bool("shuffle", shuffle).Msg("lobby created")
	return l.ID(), nil
}

// JoinLobby adds a participant and returns the current snapshot together with
// the participant-facing quiz view.
func (s *LobbyService) JoinLobby(ctx context.Context, lobbyID, participantID, pseudo, teamName string) (domain.LobbySnapshot, domain.QuizView, error) {
	l, ok := s.lobbies.Get(lobbyID)
	if !ok {
		return domain.LobbySnapshot{}, domain.QuizView{}, domain.ErrNotFound
	}
	quiz, err := s.quizzes.GetQuiz(ctx, l.QuizID())
	if err != nil {
		return domain.LobbySnapshot{}, domain.QuizView{}, err
	}
	snap, err := l.Join(ctx, participantID, pseudo, teamName)
	if err != nil {
		return domain.LobbySnapshot{}, domain.QuizView{}, err
	}
	return snap, quizView(quiz), nil
}

// LeaveLobby removes the participant row; the lobby persists even when it
// empties mid-game.
func (s *LobbyService) LeaveLobby(ctx context.Context, lobbyID, participantID string) error {
	l, ok := s.lobbies.Get(lobbyID)
	if !ok {
		return domain.ErrNotFound
	}
	return l.Leave(ctx, participantID)
}

// StartQuiz transitions the lobby to playing at question 0.
func (s *LobbyService) StartQuiz(ctx context.Context, lobbyID string) error {
	l, ok := s.lobbies.Get(lobbyID)
	if !ok {
		return domain.ErrNotFound
	}
	return l.Start(ctx)
}

// NextQuestion is the operator's manual advance.
func (s *LobbyService) NextQuestion(ctx context.Context, lobbyID string) error {
	l, ok := s.lobbies.Get(lobbyID)
	if !ok {
		return domain.ErrNotFound
	}
	return l.Advance(ctx, domain.AdvanceManual)
}

// SubmitAnswer records a final answer for the lobby's current question.
func (s *LobbyService) SubmitAnswer(ctx context.Context, lobbyID, participantID, questionID, answer string) error {
	l, ok := s.lobbies.Get(lobbyID)
	if !ok {
		return domain.ErrNotFound
	}
	return l.Submit(ctx, participantID, questionID, answer)
}

// DraftAnswer stores an advisory draft, fire-and-forget.
func (s *LobbyService) DraftAnswer(ctx context.Context, lobbyID, participantID, answer string) {
	l, ok := s.lobbies.Get(lobbyID)
	if !ok {
		return
	}
	l.Draft(ctx, participantID, answer)
}

// GetSnapshot returns the lobby's current versioned view. Idempotent and
// side-effect free, so poll transports may call it at any rate.
func (s *LobbyService) GetSnapshot(lobbyID string) (domain.LobbySnapshot, error) {
	l, ok := s.lobbies.Get(lobbyID)
	if !ok {
		return domain.LobbySnapshot{}, domain.ErrNotFound
	}
	return l.Snapshot(), nil
}

// Subscribe registers a push observer on the lobby. The caller must invoke
// the returned cancel function to avoid leaks.
func (s *LobbyService) Subscribe(lobbyID string) (<-chan domain.LobbySnapshot, func(), error) {
	l, ok := s.lobbies.Get(lobbyID)
	if !ok {
		return nil, nil, domain.ErrNotFound
	}
	ch, cancel := l.Subscribe()
	return ch, cancel, nil
}

// ListLobbies returns an operator summary of every registered lobby, newest
// first.
func (s *LobbyService) ListLobbies() []domain.LobbySummary {
	lobbies := s.lobbies.Lobbies()
	out := make([]domain.LobbySummary, 0, len(lobbies))
	for _, l := range lobbies {
		out = append(out, l.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// DeleteLobby removes the lobby from the registry and drops its deadline.
func (s *LobbyService) DeleteLobby(lobbyID string) {
	s.deadlines.Cancel(lobbyID)
	s.lobbies.Delete(lobbyID)
}

// ValidateAnswer records the operator's grading decision on a finished
// lobby's answer and credits the participant's current team when correct.
// A team deleted since the answer was given still gets the decision recorded;
// only the score increment is skipped, with a warning.
func (s *LobbyService) ValidateAnswer(ctx context.Context, lobbyID, participantID, questionID string, isCorrect bool, points int) error {
	l, ok := s.lobbies.Get(lobbyID)
	if !ok {
		return domain.ErrNotFound
	}
	teamName, err := l.Validate(ctx, participantID, questionID, isCorrect)
	if err != nil {
		return err
	}
	if !isCorrect || points <= 0 {
		return nil
	}
	total, err := s.teams.AddValidatedPoints(ctx, teamName, points)
	if err == domain.ErrNotFound {
		s.logger.Warn().Str("lobbyId", lobbyID).Str("team", teamName).
			Msg("validation recorded but team no longer exists; score increment skipped")
		return nil
	}
	if err != nil {
		return err
	}
	s.logger.Debug().Str("team", teamName).Int("points", points).Int("total", total).Msg("score validated")
	return nil
}

// ResetScores zeroes every team's validated score. Validation records remain
// queryable, so scores can be re-derived from history if ever needed.
func (s *LobbyService) ResetScores(ctx context.Context) error {
	return s.teams.ResetScores(ctx)
}

// Teams returns the current team scoreboard.
func (s *LobbyService) Teams(ctx context.Context) ([]domain.Team, error) {
	return s.teams.All(ctx)
}

// LobbyRecordOf reads the persisted record for a lobby, including the fixed
// question order, straight from the storage accessor.
func (s *LobbyService) LobbyRecordOf(ctx context.Context, lobbyID string) (domain.LobbyRecord, error) {
	return s.lobbies.LoadRecord(ctx, lobbyID)
}

func quizView(quiz domain.Quiz) domain.QuizView {
	view := domain.QuizView{
		ID:        quiz.ID,
		Title:     quiz.Title,
		Questions: make([]domain.QuestionView, 0, len(quiz.Questions)),
	}
	for _, q := range quiz.Questions {
		view.Questions = append(view.Questions, domain.QuestionView{
			ID:           q.ID,
			Text:         q.Text,
			Type:         q.Type,
			MediaURL:     q.MediaURL,
			Points:       q.Points,
			TimerSeconds: q.TimerSeconds,
		})
	}
	return view
}

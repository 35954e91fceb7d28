package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"trivia-lobby-service/internal/domain"
)

// Deadliner schedules one pending deadline per lobby. Arm replaces any
// previous deadline for the lobby; Cancel is best-effort since an in-flight
// fire is neutralized by re-validation, not by cancellation.
type Deadliner interface {
	Arm(lobbyID string, questionIndex int, d time.Duration)
	Cancel(lobbyID string)
}

// RecordWriter persists the lobby record after each successful mutation.
type RecordWriter interface {
	SaveRecord(ctx context.Context, rec domain.LobbyRecord) error
}

// SnapshotSink receives every published snapshot, best-effort. Sinks must not
// block; delivery failures are the transport collaborator's problem.
type SnapshotSink interface {
	Publish(snap domain.LobbySnapshot)
}

// Lobby is one scoped multiplayer instance of a quiz. Every mutating
// operation runs inside the lobby's mutex so advances, submissions and
// deadline fires never interleave destructively. Reads copy state out and
// release the lock before doing anything else.
type Lobby struct {
	id        string
	quizID    string
	quiz      domain.Quiz
	order     []string
	createdAt time.Time

	clock     clockwork.Clock
	deadlines Deadliner
	journal   RecordWriter
	sinks     []SnapshotSink
	logger    zerolog.Logger

	mu           sync.Mutex
	status       domain.LobbyStatus
	index        int
	timerArmedAt time.Time // zero while no deadline is armed
	timerSecs    int
	version      uint64
	participants map[string]*domain.Participant
	subscribers  map[chan domain.LobbySnapshot]struct{}
}

func newLobby(id string, quiz domain.Quiz, order []string, clock clockwork.Clock, deadlines Deadliner, journal RecordWriter, sinks []SnapshotSink, logger zerolog.Logger) *Lobby {
	return &Lobby{
		id:           id,
		quizID:       quiz.ID,
		quiz:         quiz,
		order:        order,
		createdAt:    clock.Now(),
		clock:        clock,
		deadlines:    deadlines,
		journal:      journal,
		sinks:        sinks,
		logger:       logger.With().Str("lobbyId", id).Logger(),
		status:       domain.LobbyWaiting,
		participants: make(map[string]*domain.Participant),
		subscribers:  make(map[chan domain.LobbySnapshot]struct{}),
	}
}

// ID returns the lobby identifier.
func (l *Lobby) ID() string { return l.id }

// QuizID returns the quiz this lobby plays.
func (l *Lobby) QuizID() string { return l.quizID }

// CreatedAt returns the lobby creation time.
func (l *Lobby) CreatedAt() time.Time { return l.createdAt }

// Status returns the current lifecycle state.
func (l *Lobby) Status() domain.LobbyStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Active reports whether the lobby has not finished yet.
func (l *Lobby) Active() bool {
	return l.Status() != domain.LobbyFinished
}

// Join adds a participant, or refreshes pseudo/team on a rejoin. Joining a
// playing lobby scopes the participant to the current question; earlier
// questions stay permanently unanswered for them.
func (l *Lobby) Join(ctx context.Context, participantID, pseudo, teamName string) (domain.LobbySnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.status == domain.LobbyFinished {
		return domain.LobbySnapshot{}, domain.ErrInvalidState
	}
	if p, ok := l.participants[participantID]; ok {
		p.Pseudo = pseudo
		p.TeamName = teamName
	} else {
		l.participants[participantID] = &domain.Participant{
			ParticipantID: participantID,
			Pseudo:        pseudo,
			TeamName:      teamName,
			JoinedAtIndex: l.joinIndexLocked(),
			Answers:       make(map[string]string),
			Validations:   make(map[string]bool),
			JoinedAt:      l.clock.Now(),
		}
	}
	return l.commitLocked(ctx), nil
}

func (l *Lobby) joinIndexLocked() int {
	if l.status == domain.LobbyPlaying {
		return l.index
	}
	return 0
}

// Leave removes the participant row. Emptying a playing lobby cancels its
// deadline; the lobby itself persists until deleted or finished.
func (l *Lobby) Leave(ctx context.Context, participantID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.participants[participantID]; !ok {
		return domain.ErrNotFound
	}
	delete(l.participants, participantID)
	if l.status == domain.LobbyPlaying && len(l.participants) == 0 {
		l.disarmLocked()
	}
	l.commitLocked(ctx)
	return nil
}

// Start moves the lobby from waiting to playing at question 0 and arms the
// first deadline when the question is timed.
func (l *Lobby) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.status != domain.LobbyWaiting {
		return domain.ErrInvalidState
	}
	if len(l.participants) == 0 {
		return domain.ErrEmptyLobby
	}
	l.status = domain.LobbyPlaying
	l.index = 0
	l.armLocked()
	l.commitLocked(ctx)
	return nil
}

// Advance moves the lobby to the next question, or finishes it past the last
// one. The manual cause force-submits outstanding drafts first, exactly like
// a deadline fire, so every presented question ends up gradable.
func (l *Lobby) Advance(ctx context.Context, cause domain.AdvanceCause) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.status != domain.LobbyPlaying {
		return domain.ErrInvalidState
	}
	if cause == domain.AdvanceManual {
		l.forceSubmitAllLocked()
	}
	l.advanceLocked(ctx, cause)
	return nil
}

// advanceLocked cancels the outstanding deadline before touching the index so
// a concurrent fire re-validates against the new state and no-ops.
func (l *Lobby) advanceLocked(ctx context.Context, cause domain.AdvanceCause) {
	l.disarmLocked()
	l.index++
	if l.index >= len(l.order) {
		l.index = len(l.order) - 1
		l.status = domain.LobbyFinished
		l.logger.Info().Str("cause", string(cause)).Msg("lobby finished")
	} else {
		for _, p := range l.participants {
			p.HasAnswered = false
			p.CurrentAnswer = ""
			p.DraftAnswer = ""
		}
		l.armLocked()
		l.logger.Debug().Str("cause", string(cause)).Int("index", l.index).Msg("advanced to next question")
	}
	l.commitLocked(ctx)
}

// Submit records a participant's final answer for the current question,
// verbatim, write-once. Correctness is never judged here.
func (l *Lobby) Submit(ctx context.Context, participantID, questionID, answer string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.status != domain.LobbyPlaying {
		return domain.ErrInvalidState
	}
	p, ok := l.participants[participantID]
	if !ok {
		return domain.ErrNotFound
	}
	current := l.currentQuestionLocked()
	if questionID != current.ID {
		return domain.ErrStaleQuestion
	}
	if p.HasAnswered {
		return domain.ErrAlreadyAnswered
	}
	if l.timerSecs > 0 && l.remainingLocked() == 0 {
		return domain.ErrTimeExpired
	}
	l.finalizeLocked(p, current.ID, answer)
	if l.allAnsweredLocked() {
		l.advanceLocked(ctx, domain.AdvanceAllAnswered)
		return nil
	}
	l.commitLocked(ctx)
	return nil
}

// Draft stores an advisory draft answer. Best-effort: never errors, freely
// overwritten, dropped once a final answer exists.
func (l *Lobby) Draft(ctx context.Context, participantID, answer string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.status != domain.LobbyPlaying {
		return
	}
	p, ok := l.participants[participantID]
	if !ok || p.HasAnswered {
		return
	}
	p.DraftAnswer = answer
	l.commitLocked(ctx)
}

// DeadlineFired handles a deadline for the captured question index. The
// token is re-validated under the lock: a stale or duplicate fire is a
// logged no-op, which is the sole cancellation mechanism.
func (l *Lobby) DeadlineFired(ctx context.Context, questionIndex int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.status != domain.LobbyPlaying || questionIndex != l.index || l.timerArmedAt.IsZero() {
		l.logger.Debug().Int("firedIndex", questionIndex).Int("currentIndex", l.index).
			Str("status", string(l.status)).Msg("stale deadline fire ignored")
		return
	}
	l.forceSubmitAllLocked()
	l.advanceLocked(ctx, domain.AdvanceTimerForced)
}

// forceSubmitAllLocked finalizes the latest draft (or empty string) for every
// participant still unanswered. This is the one path allowed to write after
// the response window closed.
func (l *Lobby) forceSubmitAllLocked() {
	current := l.currentQuestionLocked()
	for _, p := range l.participants {
		if p.HasAnswered {
			continue
		}
		l.finalizeLocked(p, current.ID, p.DraftAnswer)
	}
}

func (l *Lobby) finalizeLocked(p *domain.Participant, questionID, answer string) {
	p.CurrentAnswer = answer
	p.DraftAnswer = ""
	p.HasAnswered = true
	p.Answers[questionID] = answer
}

// Validate records the operator's grading decision for one recorded answer
// and returns the team to credit. Only the boolean is recorded here; team
// score mutation is serialized per team, outside the lobby's lock.
func (l *Lobby) Validate(ctx context.Context, participantID, questionID string, isCorrect bool) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.status != domain.LobbyFinished {
		return "", domain.ErrInvalidState
	}
	p, ok := l.participants[participantID]
	if !ok {
		return "", domain.ErrNotFound
	}
	if _, answered := p.Answers[questionID]; !answered {
		return "", domain.ErrNotFound
	}
	if _, done := p.Validations[questionID]; done {
		return "", domain.ErrAlreadyValidated
	}
	p.Validations[questionID] = isCorrect
	l.commitLocked(ctx)
	// Team resolved at validation time to honor mid-game reassignment.
	return p.TeamName, nil
}

// Snapshot returns the current versioned view. Safe for repeated polling;
// side-effect free.
func (l *Lobby) Snapshot() domain.LobbySnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// Subscribe registers a push observer. The caller must invoke cancel to
// avoid leaks. The current snapshot is delivered immediately.
func (l *Lobby) Subscribe() (<-chan domain.LobbySnapshot, func()) {
	ch := make(chan domain.LobbySnapshot, 8)

	l.mu.Lock()
	l.subscribers[ch] = struct{}{}
	// Fresh buffered channel; delivering the current snapshot under the
	// lock keeps every send to ch serialized by l.mu.
	ch <- l.snapshotLocked()
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		if _, ok := l.subscribers[ch]; ok {
			delete(l.subscribers, ch)
			close(ch)
		}
		l.mu.Unlock()
	}
	return ch, cancel
}

// Summary returns the operator listing row for this lobby.
func (l *Lobby) Summary() domain.LobbySummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.LobbySummary{
		LobbyID:      l.id,
		QuizID:       l.quizID,
		Status:       l.status,
		Participants: len(l.participants),
		CreatedAt:    l.createdAt,
	}
}

// Record returns the persisted form of the lobby's current state.
func (l *Lobby) Record() domain.LobbyRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recordLocked()
}

func (l *Lobby) armLocked() {
	q := l.currentQuestionLocked()
	if q.TimerSeconds <= 0 {
		l.timerArmedAt = time.Time{}
		l.timerSecs = 0
		return
	}
	l.timerArmedAt = l.clock.Now()
	l.timerSecs = q.TimerSeconds
	l.deadlines.Arm(l.id, l.index, time.Duration(q.TimerSeconds)*time.Second)
}

func (l *Lobby) disarmLocked() {
	l.timerArmedAt = time.Time{}
	l.timerSecs = 0
	l.deadlines.Cancel(l.id)
}

// remainingLocked derives remaining seconds from the armed timestamp rather
// than a decrementing counter, so it survives restarts.
func (l *Lobby) remainingLocked() int {
	if l.timerArmedAt.IsZero() || l.timerSecs <= 0 {
		return 0
	}
	elapsed := l.clock.Now().Sub(l.timerArmedAt)
	remaining := l.timerSecs - int(elapsed/time.Second)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (l *Lobby) currentQuestionLocked() domain.Question {
	q, _ := l.quiz.QuestionByID(l.order[l.index])
	return q
}

func (l *Lobby) allAnsweredLocked() bool {
	if len(l.participants) == 0 {
		return false
	}
	for _, p := range l.participants {
		if !p.HasAnswered {
			return false
		}
	}
	return true
}

// commitLocked bumps the version, persists the record through the storage
// accessor, and fans the fresh snapshot out to subscribers and sinks.
func (l *Lobby) commitLocked(ctx context.Context) domain.LobbySnapshot {
	l.version++
	if err := l.journal.SaveRecord(ctx, l.recordLocked()); err != nil {
		l.logger.Warn().Err(err).Msg("persisting lobby record failed")
	}
	return l.broadcastLocked()
}

func (l *Lobby) broadcastLocked() domain.LobbySnapshot {
	snap := l.snapshotLocked()
	for ch := range l.subscribers {
		select {
		case ch <- snap:
		default:
			// Drop the oldest pending snapshot so a slow observer never
			// blocks a mutating operation.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	for _, sink := range l.sinks {
		sink.Publish(snap)
	}
	return snap
}

func (l *Lobby) snapshotLocked() domain.LobbySnapshot {
	views := make([]domain.ParticipantView, 0, len(l.participants))
	for _, p := range l.participants {
		views = append(views, domain.ParticipantView{
			ParticipantID: p.ParticipantID,
			Pseudo:        p.Pseudo,
			TeamName:      p.TeamName,
			HasAnswered:   p.HasAnswered,
			DraftAnswer:   p.DraftAnswer,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Pseudo < views[j].Pseudo })

	snap := domain.LobbySnapshot{
		LobbyID:          l.id,
		QuizID:           l.quizID,
		Status:           l.status,
		Version:          l.version,
		QuestionIndex:    l.index,
		QuestionOrder:    append([]string(nil), l.order...),
		RemainingSeconds: l.remainingLocked(),
		Participants:     views,
		UpdatedAt:        l.clock.Now(),
	}
	if l.status != domain.LobbyWaiting {
		q := l.currentQuestionLocked()
		snap.Question = &domain.QuestionView{
			ID:           q.ID,
			Text:         q.Text,
			Type:         q.Type,
			MediaURL:     q.MediaURL,
			Points:       q.Points,
			TimerSeconds: q.TimerSeconds,
		}
	}
	return snap
}

func (l *Lobby) recordLocked() domain.LobbyRecord {
	rec := domain.LobbyRecord{
		ID:            l.id,
		QuizID:        l.quizID,
		Status:        l.status,
		QuestionIndex: l.index,
		Order:         append([]string(nil), l.order...),
		CreatedAt:     l.createdAt,
		TimerSeconds:  l.timerSecs,
		Participants:  make([]domain.ParticipantRecord, 0, len(l.participants)),
	}
	if !l.timerArmedAt.IsZero() {
		armedAt := l.timerArmedAt
		rec.TimerArmedAt = &armedAt
	}
	for _, p := range l.participants {
		answers := make(map[string]string, len(p.Answers))
		for k, v := range p.Answers {
			answers[k] = v
		}
		validations := make(map[string]bool, len(p.Validations))
		for k, v := range p.Validations {
			validations[k] = v
		}
		rec.Participants = append(rec.Participants, domain.ParticipantRecord{
			ParticipantID: p.ParticipantID,
			Pseudo:        p.Pseudo,
			TeamName:      p.TeamName,
			JoinedAtIndex: p.JoinedAtIndex,
			Answers:       answers,
			Validations:   validations,
		})
	}
	sort.Slice(rec.Participants, func(i, j int) bool {
		return rec.Participants[i].ParticipantID < rec.Participants[j].ParticipantID
	})
	return rec
}

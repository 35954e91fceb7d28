package domain

import "time"

// LobbyStatus is the lifecycle state of a lobby.
type LobbyStatus string

const (
	LobbyWaiting  LobbyStatus = "waiting"
	LobbyPlaying  LobbyStatus = "playing"
	LobbyFinished LobbyStatus = "finished"
)

// AdvanceCause records why a lobby moved to the next question.
type AdvanceCause string

const (
	AdvanceManual      AdvanceCause = "manual"
	AdvanceTimerForced AdvanceCause = "timerForced"
	AdvanceAllAnswered AdvanceCause = "allAnswered"
)

// Question models a free-text quiz question. Answer is the reference text
// shown to the operator while grading; it is never compared automatically.
type Question struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	Answer       string `json:"answer"`
	Type         string `json:"type"`
	MediaURL     string `json:"mediaUrl,omitempty"`
	Points       int    `json:"points"`
	TimerSeconds int    `json:"timerSeconds"`
}

// Quiz is an immutable collection of questions supplied by the content store.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// QuestionByID returns the question with the given id, if present.
func (q Quiz) QuestionByID(id string) (Question, bool) {
	for i := range q.Questions {
		if q.Questions[i].ID == id {
			return q.Questions[i], true
		}
	}
	return Question{}, false
}

// Team accumulates validated points across lobbies.
type Team struct {
	Name           string `json:"name"`
	ValidatedScore int    `json:"validatedScore"`
}

// Participant is one participant's row inside a lobby. HasAnswered,
// CurrentAnswer and DraftAnswer are scoped to the lobby's current question;
// the maps are append-only history keyed by question id.
type Participant struct {
	ParticipantID string
	Pseudo        string
	TeamName      string
	HasAnswered   bool
	CurrentAnswer string
	DraftAnswer   string
	JoinedAtIndex int
	Answers       map[string]string
	Validations   map[string]bool
	JoinedAt      time.Time
}

// Identity is the result of a login.
type Identity struct {
	ParticipantID string `json:"participantId"`
	Pseudo        string `json:"pseudo"`
	TeamName      string `json:"teamName"`
	IsAdmin       bool   `json:"isAdmin"`
}

// QuestionView is the participant-facing projection of a question; the
// reference answer is deliberately absent.
type QuestionView struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	Type         string `json:"type"`
	MediaURL     string `json:"mediaUrl,omitempty"`
	Points       int    `json:"points"`
	TimerSeconds int    `json:"timerSeconds"`
}

// QuizView is the participant-facing projection of a quiz, delivered on join
// so clients can render ahead without seeing reference answers.
type QuizView struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Questions []QuestionView `json:"questions"`
}

// ParticipantView is a snapshot-friendly view of a participant.
type ParticipantView struct {
	ParticipantID string `json:"participantId"`
	Pseudo        string `json:"pseudo"`
	TeamName      string `json:"teamName"`
	HasAnswered   bool   `json:"hasAnswered"`
	DraftAnswer   string `json:"draftAnswer,omitempty"`
}

// LobbySnapshot is a versioned, internally consistent read view of a lobby.
// Push and poll transports serve the same snapshot; Version lets any observer
// detect and discard a stale one.
type LobbySnapshot struct {
	LobbyID          string            `json:"lobbyId"`
	QuizID           string            `json:"quizId"`
	Status           LobbyStatus       `json:"status"`
	Version          uint64            `json:"version"`
	QuestionIndex    int               `json:"questionIndex"`
	QuestionOrder    []string          `json:"questionOrder"`
	Question         *QuestionView     `json:"question,omitempty"`
	RemainingSeconds int               `json:"remainingSeconds"`
	Participants     []ParticipantView `json:"participants"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// LobbySummary is the operator-facing listing row for one lobby.
type LobbySummary struct {
	LobbyID      string      `json:"lobbyId"`
	QuizID       string      `json:"quizId"`
	Status       LobbyStatus `json:"status"`
	Participants int         `json:"participants"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// ParticipantRecord is the persisted form of a participant row.
type ParticipantRecord struct {
	ParticipantID string            `json:"participantId"`
	Pseudo        string            `json:"pseudo"`
	TeamName      string            `json:"teamName"`
	JoinedAtIndex int               `json:"joinedAtIndex"`
	Answers       map[string]string `json:"answers"`
	Validations   map[string]bool   `json:"validations"`
}

// LobbyRecord is the persisted form of a lobby, written through the storage
// accessor after every successful mutation. TimerArmedAt survives restarts so
// remaining time can always be re-derived.
type LobbyRecord struct {
	ID            string              `json:"id"`
	QuizID        string              `json:"quizId"`
	Status        LobbyStatus         `json:"status"`
	QuestionIndex int                 `json:"questionIndex"`
	Order         []string            `json:"order"`
	CreatedAt     time.Time           `json:"createdAt"`
	TimerArmedAt  *time.Time          `json:"timerArmedAt,omitempty"`
	TimerSeconds  int                 `json:"timerSeconds,omitempty"`
	Participants  []ParticipantRecord `json:"participants"`
}

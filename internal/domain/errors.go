package domain

import "errors"

var (
	// ErrNotFound is returned when a lobby, participant, team or quiz is absent.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is returned when an operation is invalid for the lobby's current status.
	ErrInvalidState = errors.New("operation invalid for current lobby state")
	// ErrAlreadyAnswered is returned when a participant already holds a final answer for the current question.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrAlreadyValidated is returned when a grading decision already exists for that answer.
	ErrAlreadyValidated = errors.New("answer already validated")
	// ErrStaleQuestion is returned when a submission targets a question the lobby has moved past.
	ErrStaleQuestion = errors.New("submission targets a stale question")
	// ErrTimeExpired is returned when the response window for the current question has elapsed.
	ErrTimeExpired = errors.New("response time expired")
	// ErrEmptyLobby is returned when starting a lobby with no participants.
	ErrEmptyLobby = errors.New("lobby has no participants")
	// ErrDuplicate is returned when an active lobby already exists for the quiz.
	ErrDuplicate = errors.New("active lobby already exists for quiz")
	// ErrUnauthorized is returned by login when credentials do not match.
	ErrUnauthorized = errors.New("invalid credentials")
)

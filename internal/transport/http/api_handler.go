package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"trivia-lobby-service/internal/app"
	"trivia-lobby-service/internal/domain"
)

// APIHandler is the poll/operator transport. Every endpoint maps onto the
// same engine entry points the push transport uses; snapshot polling is
// idempotent and side-effect free.
type APIHandler struct {
	service  *app.LobbyService
	identity *app.IdentityService
	logger   zerolog.Logger
}

func NewAPIHandler(service *app.LobbyService, identity *app.IdentityService, logger zerolog.Logger) *APIHandler {
	return &APIHandler{service: service, identity: identity, logger: logger}
}

// Register mounts all routes on the mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /login", h.login)
	mux.HandleFunc("POST /lobbies", h.createLobby)
	mux.HandleFunc("GET /lobbies", h.listLobbies)
	mux.HandleFunc("DELETE /lobbies/{id}", h.deleteLobby)
	mux.HandleFunc("GET /lobbies/{id}/snapshot", h.snapshot)
	mux.HandleFunc("POST /lobbies/{id}/join", h.join)
	mux.HandleFunc("POST /lobbies/{id}/leave", h.leave)
	mux.HandleFunc("POST /lobbies/{id}/start", h.start)
	mux.HandleFunc("POST /lobbies/{id}/next", h.next)
	mux.HandleFunc("POST /lobbies/{id}/answers", h.submitAnswer)
	mux.HandleFunc("PUT /lobbies/{id}/draft", h.draftAnswer)
	mux.HandleFunc("POST /lobbies/{id}/validations", h.validate)
	mux.HandleFunc("GET /teams", h.teams)
	mux.HandleFunc("POST /teams/reset", h.resetScores)
}

func (h *APIHandler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TeamName string `json:"teamName"`
		Pseudo   string `json:"pseudo"`
		Password string `json:"password"`
		IsAdmin  bool   `json:"isAdmin"`
	}
	if !decode(w, r, &req) {
		return
	}
	identity, err := h.identity.Login(r.Context(), req.TeamName, req.Pseudo, req.Password, req.IsAdmin)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

func (h *APIHandler) createLobby(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuizID  string `json:"quizId"`
		Shuffle bool   `json:"shuffle"`
	}
	if !decode(w, r, &req) {
		return
	}
	lobbyID, err := h.service.CreateLobby(r.Context(), req.QuizID, req.Shuffle)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"lobbyId": lobbyID})
}

func (h *APIHandler) listLobbies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.ListLobbies())
}

func (h *APIHandler) deleteLobby(w http.ResponseWriter, r *http.Request) {
	h.service.DeleteLobby(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.GetSnapshot(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *APIHandler) join(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ParticipantID string `json:"participantId"`
		Pseudo        string `json:"pseudo"`
		TeamName      string `json:"teamName"`
	}
	if !decode(w, r, &req) {
		return
	}
	snap, quiz, err := h.service.JoinLobby(r.Context(), r.PathValue("id"), req.ParticipantID, req.Pseudo, req.TeamName)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshot": snap, "quiz": quiz})
}

func (h *APIHandler) leave(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ParticipantID string `json:"participantId"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.service.LeaveLobby(r.Context(), r.PathValue("id"), req.ParticipantID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) start(w http.ResponseWriter, r *http.Request) {
	if err := h.service.StartQuiz(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) next(w http.ResponseWriter, r *http.Request) {
	if err := h.service.NextQuestion(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ParticipantID string `json:"participantId"`
		QuestionID    string `json:"questionId"`
		Answer        string `json:"answer"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.service.SubmitAnswer(r.Context(), r.PathValue("id"), req.ParticipantID, req.QuestionID, req.Answer); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) draftAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ParticipantID string `json:"participantId"`
		Answer        string `json:"answer"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.service.DraftAnswer(r.Context(), r.PathValue("id"), req.ParticipantID, req.Answer)
	w.WriteHeader(http.StatusAccepted)
}

func (h *APIHandler) validate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ParticipantID string `json:"participantId"`
		QuestionID    string `json:"questionId"`
		IsCorrect     bool   `json:"isCorrect"`
		Points        int    `json:"points"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.service.ValidateAnswer(r.Context(), r.PathValue("id"), req.ParticipantID, req.QuestionID, req.IsCorrect, req.Points); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) teams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.service.Teams(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

func (h *APIHandler) resetScores(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ResetScores(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrAlreadyAnswered),
		errors.Is(err, domain.ErrAlreadyValidated),
		errors.Is(err, domain.ErrStaleQuestion),
		errors.Is(err, domain.ErrTimeExpired),
		errors.Is(err, domain.ErrEmptyLobby),
		errors.Is(err, domain.ErrDuplicate):
		status = http.StatusConflict
	default:
		h.logger.Error().Err(err).Msg("internal error")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

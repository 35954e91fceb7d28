package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"trivia-lobby-service/internal/app"
	"trivia-lobby-service/internal/domain"
)

// WSHandler is the push transport: it joins the participant on connect,
// relays answer/draft messages into the engine, and streams versioned
// snapshots out. It reads the same snapshots the poll endpoint serves.
type WSHandler struct {
	service  *app.LobbyService
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewWSHandler(service *app.LobbyService, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

type draftPayload struct {
	Answer string `json:"answer"`
}

type joinedPayload struct {
	Snapshot domain.LobbySnapshot `json:"snapshot"`
	Quiz     domain.QuizView      `json:"quiz"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and wires the connection into the lobby.
// Expected query parameters: lobbyId, participantId, pseudo, teamName.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	lobbyID := r.URL.Query().Get("lobbyId")
	participantID := r.URL.Query().Get("participantId")
	pseudo := r.URL.Query().Get("pseudo")
	teamName := r.URL.Query().Get("teamName")
	if lobbyID == "" || participantID == "" || pseudo == "" {
		http.Error(w, "missing lobbyId, participantId, or pseudo", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	snap, quiz, err := h.service.JoinLobby(r.Context(), lobbyID, participantID, pseudo, teamName)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	updates, cancel, err := h.service.Subscribe(lobbyID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()
	defer func() { _ = h.service.LeaveLobby(r.Context(), lobbyID, participantID) }()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Single writer goroutine; gorilla connections do not allow
	// concurrent writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "snapshot", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "joined", Payload: joinedPayload{Snapshot: snap, Quiz: quiz}}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
				continue
			}
			if err := h.service.SubmitAnswer(r.Context(), lobbyID, participantID, payload.QuestionID, payload.Answer); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "answerAck", Payload: answerPayload{QuestionID: payload.QuestionID, Answer: payload.Answer}}
		case "draft":
			var payload draftPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				continue
			}
			// fire-and-forget by contract
			h.service.DraftAnswer(r.Context(), lobbyID, participantID, payload.Answer)
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

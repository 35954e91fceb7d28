package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"trivia-lobby-service/internal/app"
	"trivia-lobby-service/internal/domain"
	"trivia-lobby-service/internal/infra/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.LobbyService) {
	t.Helper()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	teams := memory.NewTeamStore()
	service := app.NewLobbyService(memory.NewLobbyStore(), quizzes, teams, clockwork.NewFakeClock(), zerolog.Nop())

	creds := memory.NewCredentialStore()
	creds.Register("op", "hunter2", true)
	creds.Register("alice", "secret", false)
	identity := app.NewIdentityService(creds, teams)

	mux := http.NewServeMux()
	NewAPIHandler(service, identity, zerolog.Nop()).Register(mux)
	mux.HandleFunc("/ws", NewWSHandler(service, zerolog.Nop()).ServeWS)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, service
}

func dialLobby(t *testing.T, server *httptest.Server, lobbyID, participantID, pseudo string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?lobbyId=" + lobbyID +
		"&participantId=" + participantID + "&pseudo=" + pseudo + "&teamName=red"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}

func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Capitals",
			Questions: []domain.Question{
				{ID: "q1", Text: "Capital of France?", Answer: "Paris", Points: 2, TimerSeconds: 30},
				{ID: "q2", Text: "Capital of Peru?", Answer: "Lima", Points: 1, TimerSeconds: 30},
			},
		},
	}
}

func TestWebSocketAnswerFlow(t *testing.T) {
	server, service := newTestServer(t)
	ctx := context.Background()

	lobbyID, err := service.CreateLobby(ctx, "quiz-1", false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	conn := dialLobby(t, server, lobbyID, "p1", "Alice")

	_, joined := readNext(conn, t, "joined")
	quiz, _ := joined["quiz"].(map[string]any)
	if quiz == nil || quiz["id"] != "quiz-1" {
		t.Fatalf("expected quiz view in joined payload, got %v", joined)
	}
	if questions, _ := quiz["questions"].([]any); len(questions) == 2 {
		if q, _ := questions[0].(map[string]any); q != nil {
			if _, leaked := q["answer"]; leaked {
				t.Fatalf("reference answer must not be sent to participants")
			}
		}
	} else {
		t.Fatalf("expected 2 questions in quiz view")
	}

	if err := service.StartQuiz(ctx, lobbyID); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Start broadcasts a snapshot to every subscriber.
	_, snap := readNext(conn, t, "snapshot")
	if snap["status"] != string(domain.LobbyPlaying) {
		t.Fatalf("expected playing snapshot, got %v", snap["status"])
	}

	answer := map[string]any{
		"type": "answer",
		"payload": map[string]any{
			"questionId": "q1",
			"answer":     "Paris",
		},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}

	ackSeen := false
	snapshotSeen := false
	for i := 0; i < 4 && !(ackSeen && snapshotSeen); i++ {
		typ, _ := readNext(conn, t, "")
		switch typ {
		case "answerAck":
			ackSeen = true
		case "snapshot":
			snapshotSeen = true
		}
	}
	if !ackSeen || !snapshotSeen {
		t.Fatalf("expected answerAck and snapshot, got ack=%v snapshot=%v", ackSeen, snapshotSeen)
	}

	// Second submission for the same question is write-once.
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer again: %v", err)
	}
	typ, payload := readNext(conn, t, "")
	for typ == "snapshot" {
		typ, payload = readNext(conn, t, "")
	}
	if typ != "error" {
		t.Fatalf("expected error for repeated answer, got %s %v", typ, payload)
	}
}

func TestPushAndPollServeTheSameSnapshot(t *testing.T) {
	server, service := newTestServer(t)
	ctx := context.Background()

	lobbyID, err := service.CreateLobby(ctx, "quiz-1", false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	conn := dialLobby(t, server, lobbyID, "p1", "Alice")
	_, joined := readNext(conn, t, "joined")
	pushed, _ := joined["snapshot"].(map[string]any)
	if pushed == nil {
		t.Fatalf("expected snapshot in joined payload")
	}

	polled, err := service.GetSnapshot(lobbyID)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if uint64(pushed["version"].(float64)) != polled.Version {
		t.Fatalf("push and poll disagree on version: %v vs %d", pushed["version"], polled.Version)
	}
	if pushed["status"] != string(polled.Status) {
		t.Fatalf("push and poll disagree on status: %v vs %s", pushed["status"], polled.Status)
	}
	pushedOrder, _ := pushed["questionOrder"].([]any)
	if len(pushedOrder) != len(polled.QuestionOrder) {
		t.Fatalf("push and poll disagree on order length")
	}
	for i := range polled.QuestionOrder {
		if pushedOrder[i] != polled.QuestionOrder[i] {
			t.Fatalf("push and poll disagree on order: %v vs %v", pushedOrder, polled.QuestionOrder)
		}
	}
}

package memory

import (
	"context"
	"testing"

	"trivia-lobby-service/internal/domain"
)

func TestRecordSaveLoadDelete(t *testing.T) {
	store := NewLobbyStore()
	ctx := context.Background()

	if _, err := store.LoadRecord(ctx, "lobby-1"); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	rec := domain.LobbyRecord{
		ID:            "lobby-1",
		QuizID:        "quiz-1",
		Status:        domain.LobbyPlaying,
		QuestionIndex: 1,
		Order:         []string{"q2", "q1", "q3"},
	}
	if err := store.SaveRecord(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.LoadRecord(ctx, "lobby-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.QuestionIndex != 1 || len(got.Order) != 3 || got.Order[0] != "q2" {
		t.Fatalf("unexpected record %+v", got)
	}

	// Newer writes replace, deletion drops the record with the lobby.
	rec.QuestionIndex = 2
	_ = store.SaveRecord(ctx, rec)
	got, _ = store.LoadRecord(ctx, "lobby-1")
	if got.QuestionIndex != 2 {
		t.Fatalf("expected updated index 2, got %d", got.QuestionIndex)
	}

	store.Delete("lobby-1")
	if _, err := store.LoadRecord(ctx, "lobby-1"); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

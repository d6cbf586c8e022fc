package memory

import (
	"context"
	"errors"
	"testing"

	"quiz-session-service/internal/domain"
)

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	if _, err := store.Session(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	if err := store.CreateSession(ctx, domain.SessionState{ID: "s1", QuizID: "quiz-1", CurrentQuestionIndex: -1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	state, err := store.Session(ctx, "s1")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if state.QuizID != "quiz-1" || state.CurrentQuestionIndex != -1 || state.IsActive {
		t.Fatalf("unexpected state %+v", state)
	}

	if err := store.SetQuestionIndex(ctx, "s1", 0); err != nil {
		t.Fatalf("set index: %v", err)
	}
	state, _ = store.Session(ctx, "s1")
	if state.CurrentQuestionIndex != 0 {
		t.Fatalf("expected index 0, got %d", state.CurrentQuestionIndex)
	}
}

func TestSessionStorePlayers(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()
	_ = store.CreateSession(ctx, domain.SessionState{ID: "s1"})

	added, err := store.AddPlayer(ctx, "s1", "u1")
	if err != nil || !added {
		t.Fatalf("expected first add to report added, got %v/%v", added, err)
	}
	added, _ = store.AddPlayer(ctx, "s1", "u1")
	if added {
		t.Fatalf("duplicate add must not report added")
	}
	_, _ = store.AddPlayer(ctx, "s1", "u2")

	players, _ := store.Players(ctx, "s1")
	if len(players) != 2 || players[0] != "u1" || players[1] != "u2" {
		t.Fatalf("unexpected players %v", players)
	}

	if err := store.RemovePlayer(ctx, "s1", "u1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	players, _ = store.Players(ctx, "s1")
	if len(players) != 1 || players[0] != "u2" {
		t.Fatalf("unexpected players after remove %v", players)
	}
}

func TestSessionStoreScores(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()
	_ = store.CreateSession(ctx, domain.SessionState{ID: "s1"})

	_ = store.SeedScore(ctx, "s1", "u1")
	_ = store.SeedScore(ctx, "s1", "u2")

	total, err := store.IncrementScore(ctx, "s1", "u1", 10)
	if err != nil || total != 10 {
		t.Fatalf("expected total 10, got %d/%v", total, err)
	}
	total, _ = store.IncrementScore(ctx, "s1", "u2", 30)
	if total != 30 {
		t.Fatalf("expected total 30, got %d", total)
	}

	scores, _ := store.Scores(ctx, "s1")
	if len(scores) != 2 || scores[0].UserID != "u2" || scores[1].UserID != "u1" {
		t.Fatalf("expected descending order, got %v", scores)
	}
}

func TestSessionStoreScoresTieBreak(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()
	_ = store.CreateSession(ctx, domain.SessionState{ID: "s1"})
	_, _ = store.IncrementScore(ctx, "s1", "b", 10)
	_, _ = store.IncrementScore(ctx, "s1", "a", 10)

	scores, _ := store.Scores(ctx, "s1")
	if scores[0].UserID != "a" || scores[1].UserID != "b" {
		t.Fatalf("equal scores must order by user id, got %v", scores)
	}
}

func TestSessionStoreMarkAnswered(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()
	_ = store.CreateSession(ctx, domain.SessionState{ID: "s1"})

	first, err := store.MarkAnswered(ctx, "s1", "u1", "q1")
	if err != nil || !first {
		t.Fatalf("expected first mark, got %v/%v", first, err)
	}
	first, _ = store.MarkAnswered(ctx, "s1", "u1", "q1")
	if first {
		t.Fatalf("second mark of the same question must not be first")
	}
	first, _ = store.MarkAnswered(ctx, "s1", "u1", "q2")
	if !first {
		t.Fatalf("different question must be first again")
	}
	first, _ = store.MarkAnswered(ctx, "s1", "u2", "q1")
	if !first {
		t.Fatalf("marks are per user, expected first for u2")
	}
}

func TestSessionStoreQuestionSnapshot(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()
	_ = store.CreateSession(ctx, domain.SessionState{ID: "s1"})

	questions := []domain.Question{
		{ID: "q1", Content: "What is 2 + 2?", CorrectAnswer: "4", Points: 10},
	}
	if err := store.SetQuestions(ctx, "s1", questions); err != nil {
		t.Fatalf("set questions: %v", err)
	}
	got, err := store.Questions(ctx, "s1")
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(got) != 1 || got[0].ID != "q1" || got[0].CorrectAnswer != "4" {
		t.Fatalf("unexpected snapshot %v", got)
	}

	// The snapshot is a copy; mutating the returned slice must not leak back.
	got[0].CorrectAnswer = "changed"
	again, _ := store.Questions(ctx, "s1")
	if again[0].CorrectAnswer != "4" {
		t.Fatalf("snapshot aliased the stored slice")
	}
}

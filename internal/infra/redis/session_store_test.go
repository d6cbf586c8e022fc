package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"quiz-session-service/internal/domain"
)

func newTestStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSessionStore(client, time.Hour), mr
}

func TestSessionRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Millisecond)
	state := domain.SessionState{
		ID:                   "quiz_1_1000_abc",
		QuizID:               "quiz-1",
		HostUserID:           "u1",
		CurrentQuestionIndex: -1,
		ParticipantCount:     3,
		IsActive:             true,
		StartTime:            start,
	}
	if err := store.CreateSession(ctx, state); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Session(ctx, state.ID)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if got.QuizID != "quiz-1" || got.HostUserID != "u1" {
		t.Fatalf("unexpected identity fields %+v", got)
	}
	if got.CurrentQuestionIndex != -1 || got.ParticipantCount != 3 || !got.IsActive {
		t.Fatalf("unexpected state fields %+v", got)
	}
	if !got.StartTime.Equal(start) {
		t.Fatalf("start time mangled: %v vs %v", got.StartTime, start)
	}
}

func TestSessionNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Session(context.Background(), "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestActivateAndAdvance(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	_ = store.CreateSession(ctx, domain.SessionState{ID: "s1", QuizID: "quiz-1", CurrentQuestionIndex: -1})

	if err := store.SetActive(ctx, "s1", time.Now()); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if err := store.SetQuestionIndex(ctx, "s1", 0); err != nil {
		t.Fatalf("set index: %v", err)
	}

	state, _ := store.Session(ctx, "s1")
	if !state.IsActive || state.CurrentQuestionIndex != 0 {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestPlayerSet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	added, err := store.AddPlayer(ctx, "s1", "u1")
	if err != nil || !added {
		t.Fatalf("expected first add, got %v/%v", added, err)
	}
	added, _ = store.AddPlayer(ctx, "s1", "u1")
	if added {
		t.Fatalf("duplicate add must not report added")
	}
	_, _ = store.AddPlayer(ctx, "s1", "u2")

	players, _ := store.Players(ctx, "s1")
	if len(players) != 2 {
		t.Fatalf("expected 2 players, got %v", players)
	}

	if err := store.RemovePlayer(ctx, "s1", "u1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	players, _ = store.Players(ctx, "s1")
	if len(players) != 1 || players[0] != "u2" {
		t.Fatalf("unexpected players after remove %v", players)
	}
}

func TestAtomicScoreIncrement(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.SeedScore(ctx, "s1", "u1"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	total, err := store.IncrementScore(ctx, "s1", "u1", 10)
	if err != nil || total != 10 {
		t.Fatalf("expected total 10, got %d/%v", total, err)
	}
	total, _ = store.IncrementScore(ctx, "s1", "u1", 20)
	if total != 30 {
		t.Fatalf("expected total 30, got %d", total)
	}

	if got := mr.HGet("quiz_scores:s1", "u1"); got != "30" {
		t.Fatalf("expected stored score 30, got %q", got)
	}

	score, _ := store.Score(ctx, "s1", "u1")
	if score != 30 {
		t.Fatalf("expected read-back 30, got %d", score)
	}
	if score, _ := store.Score(ctx, "s1", "unknown"); score != 0 {
		t.Fatalf("missing score must read as 0, got %d", score)
	}
}

func TestScoresOrdering(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, _ = store.IncrementScore(ctx, "s1", "u1", 10)
	_, _ = store.IncrementScore(ctx, "s1", "u2", 30)
	_, _ = store.IncrementScore(ctx, "s1", "u3", 10)

	scores, err := store.Scores(ctx, "s1")
	if err != nil {
		t.Fatalf("scores: %v", err)
	}
	if len(scores) != 3 || scores[0].UserID != "u2" {
		t.Fatalf("expected u2 leading, got %v", scores)
	}
	if scores[1].UserID != "u1" || scores[2].UserID != "u3" {
		t.Fatalf("equal scores must order by user id, got %v", scores)
	}
}

func TestQuestionSnapshotRoundTrip(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	questions := []domain.Question{
		{ID: "q1", Content: "What is 2 + 2?", Type: "mcq", Options: []string{"3", "4"}, CorrectAnswer: "4", Points: 10},
		{ID: "q2", Content: "The sky is blue.", Type: "tf", CorrectAnswer: "true", Points: 20},
	}
	if err := store.SetQuestions(ctx, "s1", questions); err != nil {
		t.Fatalf("set questions: %v", err)
	}

	got, err := store.Questions(ctx, "s1")
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(got) != 2 || got[0].CorrectAnswer != "4" || got[1].Points != 20 {
		t.Fatalf("snapshot mangled: %v", got)
	}
	if !mr.Exists("quiz_questions:s1") {
		t.Fatalf("snapshot must live under quiz_questions:s1")
	}

	missing, err := store.Questions(ctx, "other")
	if err != nil || missing != nil {
		t.Fatalf("missing snapshot must read as empty, got %v/%v", missing, err)
	}
}

func TestMarkAnsweredOncePerUser(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.MarkAnswered(ctx, "s1", "u1", "q1")
	if err != nil || !first {
		t.Fatalf("expected first mark, got %v/%v", first, err)
	}
	first, _ = store.MarkAnswered(ctx, "s1", "u1", "q1")
	if first {
		t.Fatalf("repeat mark must not be first")
	}
	first, _ = store.MarkAnswered(ctx, "s1", "u2", "q1")
	if !first {
		t.Fatalf("marks are scoped per user")
	}
}

func TestSessionKeysExpire(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	_ = store.CreateSession(ctx, domain.SessionState{ID: "s1", QuizID: "quiz-1", CurrentQuestionIndex: -1})

	mr.FastForward(2 * time.Hour)

	if _, err := store.Session(ctx, "s1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected expired session to be gone, got %v", err)
	}
}

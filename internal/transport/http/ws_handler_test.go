package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/grader"
	"quiz-session-service/internal/infra/memory"
)

const (
	wsSessionID = "quiz_1_1000_abc"
	wsQuizID    = "quiz-1"
	wsHostUser  = "u1"
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newTestServer(t *testing.T) (*httptest.Server, *memory.SessionStore) {
	t.Helper()
	store := memory.NewSessionStore()
	if err := store.CreateSession(context.Background(), domain.SessionState{
		ID:                   wsSessionID,
		QuizID:               wsQuizID,
		HostUserID:           wsHostUser,
		CurrentQuestionIndex: -1,
	}); err != nil {
		t.Fatalf("create session: %v", err)
	}

	directory := memory.NewStaticQuizDirectory(map[string]domain.Quiz{
		wsQuizID: {
			ID:      wsQuizID,
			OwnerID: wsHostUser,
			Questions: []domain.Question{
				{ID: "q1", Content: "What is 2 + 2?", Type: "mcq", Options: []string{"3", "4"}, CorrectAnswer: "4", Points: 10},
				{ID: "q2", Content: "The sky is blue.", Type: "tf", Options: []string{"true", "false"}, CorrectAnswer: "true", Points: 20},
			},
		},
	})
	coordinator := app.NewCoordinator(store, directory, grader.NewExactMatch(), memory.NewAttemptLog(), app.NewRegistry(), time.Second)
	handler := NewWSHandler(coordinator)

	server := httptest.NewServer(http.HandlerFunc(handler.ServeWS))
	t.Cleanup(server.Close)
	return server, store
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": msgType, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

// readUntil drains frames until one of the wanted type arrives, decoding its
// payload into out. Interleaved broadcasts are skipped.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string, out any) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if f.Type != msgType {
			continue
		}
		if out != nil {
			if err := json.Unmarshal(f.Payload, out); err != nil {
				t.Fatalf("decode %s payload: %v", msgType, err)
			}
		}
		return
	}
	t.Fatalf("timed out waiting for %s", msgType)
}

func TestFullQuizFlow(t *testing.T) {
	server, _ := newTestServer(t)
	conn := dial(t, server)

	send(t, conn, "join_quiz", map[string]string{"sessionId": wsSessionID, "userId": wsHostUser})
	var joined struct {
		SessionID        string `json:"sessionId"`
		ParticipantCount int    `json:"participantCount"`
		IsHost           bool   `json:"isHost"`
	}
	readUntil(t, conn, "joined_quiz", &joined)
	if joined.SessionID != wsSessionID || joined.ParticipantCount != 1 || !joined.IsHost {
		t.Fatalf("unexpected join payload %+v", joined)
	}

	send(t, conn, "start_quiz", map[string]string{"sessionId": wsSessionID})
	var started struct {
		TotalQuestions int `json:"totalQuestions"`
	}
	readUntil(t, conn, "quiz_started", &started)
	if started.TotalQuestions != 2 {
		t.Fatalf("expected 2 questions, got %d", started.TotalQuestions)
	}
	var question struct {
		CurrentQuestionIndex int `json:"currentQuestionIndex"`
		Question             struct {
			ID      string `json:"id"`
			Content string `json:"content"`
		} `json:"question"`
	}
	readUntil(t, conn, "next_question", &question)
	if question.CurrentQuestionIndex != 0 || question.Question.ID != "q1" {
		t.Fatalf("unexpected first question %+v", question)
	}

	send(t, conn, "submit_answer", map[string]string{
		"sessionId": wsSessionID, "userId": wsHostUser, "questionId": "q1", "answer": "4",
	})
	var result struct {
		IsCorrect bool `json:"isCorrect"`
		NewScore  int  `json:"newScore"`
	}
	readUntil(t, conn, "answer_submitted", &result)
	if !result.IsCorrect || result.NewScore != 10 {
		t.Fatalf("unexpected answer result %+v", result)
	}
	var scores struct {
		Scores []struct {
			UserID string `json:"userId"`
			Score  int    `json:"score"`
		} `json:"scores"`
	}
	readUntil(t, conn, "scores_update", &scores)
	if len(scores.Scores) != 1 || scores.Scores[0].Score != 10 {
		t.Fatalf("unexpected scores %+v", scores)
	}

	send(t, conn, "next_question", map[string]string{"sessionId": wsSessionID})
	readUntil(t, conn, "next_question", &question)
	if question.CurrentQuestionIndex != 1 || question.Question.ID != "q2" {
		t.Fatalf("unexpected second question %+v", question)
	}

	send(t, conn, "next_question", map[string]string{"sessionId": wsSessionID})
	readUntil(t, conn, "quiz_finished", nil)
}

func TestMalformedFrameKeepsConnectionOpen(t *testing.T) {
	server, _ := newTestServer(t)
	conn := dial(t, server)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	var errPayload struct {
		Message string `json:"message"`
	}
	readUntil(t, conn, "error", &errPayload)
	if errPayload.Message != "Invalid message format" {
		t.Fatalf("unexpected error message %q", errPayload.Message)
	}

	// Still usable after the bad frame.
	send(t, conn, "join_quiz", map[string]string{"sessionId": wsSessionID, "userId": wsHostUser})
	readUntil(t, conn, "joined_quiz", nil)
}

func TestUnknownMessageType(t *testing.T) {
	server, _ := newTestServer(t)
	conn := dial(t, server)

	send(t, conn, "bogus", map[string]string{})
	var errPayload struct {
		Message string `json:"message"`
	}
	readUntil(t, conn, "error", &errPayload)
	if errPayload.Message != "Unknown message type" {
		t.Fatalf("unexpected error message %q", errPayload.Message)
	}
}

func TestJoinUnknownSession(t *testing.T) {
	server, _ := newTestServer(t)
	conn := dial(t, server)

	send(t, conn, "join_quiz", map[string]string{"sessionId": "missing", "userId": wsHostUser})
	var errPayload struct {
		Message string `json:"message"`
	}
	readUntil(t, conn, "error", &errPayload)
	if errPayload.Message != "Session not found" {
		t.Fatalf("unexpected error message %q", errPayload.Message)
	}
}

func TestNonHostCannotStart(t *testing.T) {
	server, _ := newTestServer(t)
	conn := dial(t, server)

	send(t, conn, "join_quiz", map[string]string{"sessionId": wsSessionID, "userId": "u2"})
	readUntil(t, conn, "joined_quiz", nil)

	send(t, conn, "start_quiz", map[string]string{"sessionId": wsSessionID})
	var errPayload struct {
		Message string `json:"message"`
	}
	readUntil(t, conn, "error", &errPayload)
	if errPayload.Message != "Only the host can control the quiz" {
		t.Fatalf("unexpected error message %q", errPayload.Message)
	}
}

func TestLeaveClosesConnection(t *testing.T) {
	server, store := newTestServer(t)
	conn := dial(t, server)

	send(t, conn, "join_quiz", map[string]string{"sessionId": wsSessionID, "userId": wsHostUser})
	readUntil(t, conn, "joined_quiz", nil)

	send(t, conn, "leave_quiz", map[string]string{"sessionId": wsSessionID, "userId": wsHostUser})

	// The server closes the socket after a successful leave.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			break
		}
	}

	players, err := store.Players(context.Background(), wsSessionID)
	if err != nil {
		t.Fatalf("players: %v", err)
	}
	if len(players) != 0 {
		t.Fatalf("expected empty membership after leave, got %v", players)
	}
}

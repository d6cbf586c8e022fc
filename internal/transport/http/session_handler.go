package http

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

// SessionHandler provisions session records in the store. Session creation is
// a collaborator concern, not part of the coordinator; the engine only ever
// consumes records that already exist.
type SessionHandler struct {
	store app.SessionStore
}

func NewSessionHandler(store app.SessionStore) *SessionHandler {
	return &SessionHandler{store: store}
}

type createSessionRequest struct {
	QuizID     string `json:"quizId"`
	HostUserID string `json:"hostUserId"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// CreateSession handles POST /sessions.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID == "" {
		http.Error(w, "quizId is required", http.StatusBadRequest)
		return
	}

	sessionID := NewSessionID(req.QuizID)
	err := h.store.CreateSession(r.Context(), domain.SessionState{
		ID:                   sessionID,
		QuizID:               req.QuizID,
		HostUserID:           req.HostUserID,
		CurrentQuestionIndex: -1,
	})
	if err != nil {
		log.Printf("create session for quiz %s: %v", req.QuizID, err)
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(createSessionResponse{SessionID: sessionID})
}

// NewSessionID derives an id from the quiz, a timestamp and a random suffix.
func NewSessionID(quizID string) string {
	return fmt.Sprintf("quiz_%s_%d_%s", quizID, time.Now().UnixMilli(), uuid.NewString()[:8])
}

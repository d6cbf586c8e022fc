// Package protocol defines the wire envelopes exchanged with quiz clients.
// The message set is closed: every inbound type has exactly one payload
// struct and the transport dispatches exhaustively over the constants below.
package protocol

import (
	"encoding/json"
	"time"

	"quiz-session-service/internal/domain"
)

// Inbound message types.
const (
	TypeJoinQuiz     = "join_quiz"
	TypeSubmitAnswer = "submit_answer"
	TypeStartQuiz    = "start_quiz"
	TypeNextQuestion = "next_question"
	TypeLeaveQuiz    = "leave_quiz"
)

// Outbound message types.
const (
	TypeJoinedQuiz        = "joined_quiz"
	TypeParticipantJoined = "participant_joined"
	TypeParticipantLeft   = "participant_left"
	TypeQuizStarted       = "quiz_started"
	TypeQuestion          = "next_question"
	TypeAnswerSubmitted   = "answer_submitted"
	TypeScoresUpdate      = "scores_update"
	TypeQuizFinished      = "quiz_finished"
	TypeError             = "error"
)

// Envelope is the raw inbound frame; Payload is decoded per Type.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Message is an outbound frame.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// JoinQuiz is the payload of a join_quiz message.
type JoinQuiz struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

// SubmitAnswer is the payload of a submit_answer message.
type SubmitAnswer struct {
	SessionID  string `json:"sessionId"`
	UserID     string `json:"userId"`
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

// SessionRef is the payload of start_quiz and next_question messages.
type SessionRef struct {
	SessionID string `json:"sessionId"`
}

// LeaveQuiz is the payload of a leave_quiz message.
type LeaveQuiz struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

// QuestionView is a question as participants see it: no correct answer.
type QuestionView struct {
	ID      string   `json:"id"`
	Content string   `json:"content"`
	Type    string   `json:"type"`
	Options []string `json:"options,omitempty"`
	Points  int      `json:"points"`
}

// ViewOf strips a snapshot question down to its broadcastable form.
func ViewOf(q domain.Question) QuestionView {
	return QuestionView{
		ID:      q.ID,
		Content: q.Content,
		Type:    q.Type,
		Options: q.Options,
		Points:  q.PointValue(),
	}
}

type JoinedQuiz struct {
	SessionID            string        `json:"sessionId"`
	Message              string        `json:"message"`
	ParticipantCount     int           `json:"participantCount"`
	CurrentQuestionIndex int           `json:"currentQuestionIndex"`
	IsHost               bool          `json:"isHost"`
	CurrentQuestion      *QuestionView `json:"currentQuestion"`
}

type ParticipantJoined struct {
	UserID           string `json:"userId"`
	ParticipantCount int    `json:"participantCount"`
}

type ParticipantLeft struct {
	ParticipantCount int    `json:"participantCount"`
	UserID           string `json:"userId,omitempty"`
}

type QuizStarted struct {
	SessionID      string    `json:"sessionId"`
	Message        string    `json:"message"`
	StartTime      time.Time `json:"startTime"`
	TotalQuestions int       `json:"totalQuestions"`
}

type NextQuestion struct {
	SessionID            string       `json:"sessionId"`
	CurrentQuestionIndex int          `json:"currentQuestionIndex"`
	Question             QuestionView `json:"question"`
	Message              string       `json:"message"`
}

type AnswerSubmitted struct {
	QuestionID  string `json:"questionId"`
	IsCorrect   bool   `json:"isCorrect"`
	Message     string `json:"message"`
	NewScore    int    `json:"newScore"`
	Explanation string `json:"explanation,omitempty"`
}

type ScoresUpdate struct {
	SessionID string              `json:"sessionId"`
	Scores    []domain.ScoreEntry `json:"scores"`
}

type QuizFinished struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Error builds an error message with a client-facing text.
func Error(message string) Message {
	return Message{Type: TypeError, Payload: ErrorPayload{Message: message}}
}

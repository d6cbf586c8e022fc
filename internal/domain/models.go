package domain

import "time"

// DefaultQuestionPoints is awarded when a question carries no point value.
const DefaultQuestionPoints = 10

// Question is one entry of a session's frozen question snapshot. The
// CorrectAnswer reference never leaves the server; the protocol layer strips
// it before putting a question on the wire.
type Question struct {
	ID            string   `json:"id"`
	Content       string   `json:"content"`
	Type          string   `json:"type"` // mcq, tf, short_answer
	Options       []string `json:"options,omitempty"`
	Points        int      `json:"points"`
	CorrectAnswer string   `json:"correctAnswer,omitempty"`
}

// PointValue returns the question's point value with the default fallback.
func (q Question) PointValue() int {
	if q.Points > 0 {
		return q.Points
	}
	return DefaultQuestionPoints
}

// Quiz is the externally-owned quiz definition the engine consumes.
type Quiz struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"ownerId"`
	Title     string     `json:"title,omitempty"`
	Questions []Question `json:"questions"`
}

// SessionState is the durable view of a session held by the session store.
// The coordinator's in-memory mirror is a read-through cache of this record.
type SessionState struct {
	ID                   string
	QuizID               string
	HostUserID           string
	CurrentQuestionIndex int
	ParticipantCount     int
	IsActive             bool
	StartTime            time.Time
}

// ScoreEntry is one row of the descending score table.
type ScoreEntry struct {
	UserID string `json:"userId"`
	Score  int    `json:"score"`
}

// Evaluation is the grading oracle's verdict for one submission.
type Evaluation struct {
	IsCorrect   bool   `json:"isCorrect"`
	Explanation string `json:"explanation,omitempty"`
}

// Attempt groups a participant's graded answers for one quiz.
type Attempt struct {
	ID         string
	QuizID     string
	UserID     string
	Score      int
	TotalScore int
	CreatedAt  time.Time
}

// GradedAnswer is the durable record of a single graded submission.
type GradedAnswer struct {
	AttemptID     string
	QuestionID    string
	Content       string
	IsCorrect     bool
	PointsAwarded int
	AnsweredAt    time.Time
}

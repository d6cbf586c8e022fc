package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"quiz-session-service/internal/domain"
)

// AttemptLog keeps graded answers in memory, one attempt per (quiz, user).
type AttemptLog struct {
	mu       sync.Mutex
	attempts map[string]*domain.Attempt // by attempt id
	byKey    map[string]string          // quizID+"/"+userID -> attempt id
	answers  map[string][]domain.GradedAnswer
}

func NewAttemptLog() *AttemptLog {
	return &AttemptLog{
		attempts: make(map[string]*domain.Attempt),
		byKey:    make(map[string]string),
		answers:  make(map[string][]domain.GradedAnswer),
	}
}

func (l *AttemptLog) FindAttempt(_ context.Context, quizID, userID string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.byKey[quizID+"/"+userID]
	return id, ok, nil
}

func (l *AttemptLog) CreateAttempt(_ context.Context, quizID, userID string, totalScore int) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := uuid.NewString()
	l.attempts[id] = &domain.Attempt{
		ID:         id,
		QuizID:     quizID,
		UserID:     userID,
		TotalScore: totalScore,
		CreatedAt:  time.Now(),
	}
	l.byKey[quizID+"/"+userID] = id
	return id, nil
}

func (l *AttemptLog) RecordAnswer(_ context.Context, answer domain.GradedAnswer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.answers[answer.AttemptID] = append(l.answers[answer.AttemptID], answer)
	if attempt, ok := l.attempts[answer.AttemptID]; ok {
		attempt.Score += answer.PointsAwarded
	}
	return nil
}

// Answers returns the recorded answers of an attempt, for tests.
func (l *AttemptLog) Answers(attemptID string) []domain.GradedAnswer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.GradedAnswer(nil), l.answers[attemptID]...)
}

// Attempt returns a copy of the attempt record, for tests.
func (l *AttemptLog) Attempt(attemptID string) (domain.Attempt, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	attempt, ok := l.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, false
	}
	return *attempt, true
}

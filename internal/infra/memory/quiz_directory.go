package memory

import (
	"context"

	"quiz-session-service/internal/domain"
)

// StaticQuizDirectory serves quiz content from a fixed map (tests/demos).
type StaticQuizDirectory struct {
	quizzes map[string]domain.Quiz
}

func NewStaticQuizDirectory(quizzes map[string]domain.Quiz) *StaticQuizDirectory {
	return &StaticQuizDirectory{quizzes: quizzes}
}

func (d *StaticQuizDirectory) Questions(_ context.Context, quizID string) ([]domain.Question, error) {
	quiz, ok := d.quizzes[quizID]
	if !ok {
		return nil, domain.ErrQuizNotFound
	}
	return quiz.Questions, nil
}

func (d *StaticQuizDirectory) Owner(_ context.Context, quizID string) (string, error) {
	quiz, ok := d.quizzes[quizID]
	if !ok {
		return "", domain.ErrQuizNotFound
	}
	return quiz.OwnerID, nil
}

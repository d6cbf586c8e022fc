package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-session-service/internal/domain"
)

// AttemptLog persists attempts and graded answers in Postgres.
type AttemptLog struct {
	pool *pgxpool.Pool
}

func NewAttemptLog(pool *pgxpool.Pool) *AttemptLog {
	return &AttemptLog{pool: pool}
}

func (l *AttemptLog) FindAttempt(ctx context.Context, quizID, userID string) (string, bool, error) {
	var id string
	err := l.pool.QueryRow(ctx,
		`SELECT id FROM quiz_attempts WHERE quiz_id=$1 AND user_id=$2 ORDER BY created_at LIMIT 1`,
		quizID, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find attempt %s/%s: %w", quizID, userID, err)
	}
	return id, true, nil
}

func (l *AttemptLog) CreateAttempt(ctx context.Context, quizID, userID string, totalScore int) (string, error) {
	id := uuid.NewString()
	_, err := l.pool.Exec(ctx,
		`INSERT INTO quiz_attempts (id, quiz_id, user_id, total_score) VALUES ($1, $2, $3, $4)`,
		id, quizID, userID, totalScore)
	if err != nil {
		return "", fmt.Errorf("create attempt %s/%s: %w", quizID, userID, err)
	}
	return id, nil
}

func (l *AttemptLog) RecordAnswer(ctx context.Context, answer domain.GradedAnswer) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO quiz_answers (id, attempt_id, question_id, content, is_correct, points_awarded, answered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.NewString(), answer.AttemptID, answer.QuestionID, answer.Content,
		answer.IsCorrect, answer.PointsAwarded, answer.AnsweredAt)
	if err != nil {
		return fmt.Errorf("record answer for attempt %s: %w", answer.AttemptID, err)
	}
	if answer.PointsAwarded != 0 {
		_, err = l.pool.Exec(ctx,
			`UPDATE quiz_attempts SET score = score + $1 WHERE id=$2`,
			answer.PointsAwarded, answer.AttemptID)
		if err != nil {
			return fmt.Errorf("update attempt score %s: %w", answer.AttemptID, err)
		}
	}
	return nil
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-session-service/internal/domain"
)

// QuizDirectory loads quiz JSONB and ownership from Postgres.
type QuizDirectory struct {
	pool *pgxpool.Pool
}

func NewQuizDirectory(pool *pgxpool.Pool) *QuizDirectory {
	return &QuizDirectory{pool: pool}
}

func (d *QuizDirectory) Questions(ctx context.Context, quizID string) ([]domain.Question, error) {
	var raw []byte
	err := d.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrQuizNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load quiz %s: %w", quizID, err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return nil, fmt.Errorf("unmarshal quiz %s: %w", quizID, err)
	}
	return quiz.Questions, nil
}

func (d *QuizDirectory) Owner(ctx context.Context, quizID string) (string, error) {
	var owner string
	err := d.pool.QueryRow(ctx, `SELECT owner_id FROM quizzes WHERE id=$1`, quizID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrQuizNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load quiz owner %s: %w", quizID, err)
	}
	return owner, nil
}

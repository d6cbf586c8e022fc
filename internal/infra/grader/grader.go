// Package grader bridges the coordinator to the external answer-evaluation
// oracle. The HTTP client talks to the ai-worker's /evaluate-answer endpoint;
// ExactMatch is the deterministic fallback for tests and oracle-less setups.
package grader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"quiz-session-service/internal/domain"
)

// HTTP evaluates answers against a remote oracle. Failures and timeouts are
// surfaced as errors; the coordinator treats them as grading failures with no
// score mutation.
type HTTP struct {
	baseURL string
	client  *http.Client
}

func NewHTTP(baseURL string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type evaluateRequest struct {
	Question      string `json:"question"`
	CorrectAnswer string `json:"correctAnswer"`
	UserAnswer    string `json:"userAnswer"`
}

func (g *HTTP) Evaluate(ctx context.Context, question, correctAnswer, candidate string) (domain.Evaluation, error) {
	body, err := json.Marshal(evaluateRequest{
		Question:      question,
		CorrectAnswer: correctAnswer,
		UserAnswer:    candidate,
	})
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("marshal evaluate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/evaluate-answer", bytes.NewReader(body))
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("build evaluate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("call evaluation oracle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Evaluation{}, fmt.Errorf("evaluation oracle returned %s", resp.Status)
	}

	var evaluation domain.Evaluation
	if err := json.NewDecoder(resp.Body).Decode(&evaluation); err != nil {
		return domain.Evaluation{}, fmt.Errorf("decode evaluation: %w", err)
	}
	return evaluation, nil
}

// ExactMatch grades by normalized string comparison against the reference
// answer. Good enough for mcq/tf content; free-form answers need the oracle.
type ExactMatch struct{}

func NewExactMatch() ExactMatch {
	return ExactMatch{}
}

func (ExactMatch) Evaluate(_ context.Context, _, correctAnswer, candidate string) (domain.Evaluation, error) {
	normalize := func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return domain.Evaluation{
		IsCorrect: normalize(candidate) == normalize(correctAnswer),
	}, nil
}

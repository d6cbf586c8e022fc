package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-session-service/internal/domain"
)

// SessionStore implements app.SessionStore on Redis so several coordinator
// processes converge on the same membership, cursor and scores.
//
// Key layout, one group per session:
//
//	quiz_session:{id}           hash of the session record
//	quiz_players:{id}           set of participant ids
//	quiz_scores:{id}            hash userID -> score (HINCRBY is the atomic add)
//	quiz_questions:{id}         JSON-encoded frozen question snapshot
//	quiz_answered:{id}:{user}   set of already-credited question ids
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) CreateSession(ctx context.Context, state domain.SessionState) error {
	fields := map[string]any{
		"id":                   state.ID,
		"quizId":               state.QuizID,
		"hostUserId":           state.HostUserID,
		"currentQuestionIndex": strconv.Itoa(state.CurrentQuestionIndex),
		"participantCount":     strconv.Itoa(state.ParticipantCount),
		"isActive":             strconv.FormatBool(state.IsActive),
	}
	if !state.StartTime.IsZero() {
		fields["startTime"] = state.StartTime.Format(time.RFC3339Nano)
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, s.sessionKey(state.ID), fields)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.sessionKey(state.ID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create session %s: %w", state.ID, err)
	}
	return nil
}

func (s *SessionStore) Session(ctx context.Context, sessionID string) (domain.SessionState, error) {
	fields, err := s.client.HGetAll(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if len(fields) == 0 {
		return domain.SessionState{}, domain.ErrSessionNotFound
	}

	state := domain.SessionState{
		ID:                   sessionID,
		QuizID:               fields["quizId"],
		HostUserID:           fields["hostUserId"],
		CurrentQuestionIndex: -1,
	}
	if raw, ok := fields["currentQuestionIndex"]; ok {
		if index, err := strconv.Atoi(raw); err == nil {
			state.CurrentQuestionIndex = index
		}
	}
	if raw, ok := fields["participantCount"]; ok {
		if count, err := strconv.Atoi(raw); err == nil {
			state.ParticipantCount = count
		}
	}
	state.IsActive = fields["isActive"] == "true"
	if raw, ok := fields["startTime"]; ok && raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			state.StartTime = t
		}
	}
	return state, nil
}

func (s *SessionStore) SetActive(ctx context.Context, sessionID string, startTime time.Time) error {
	err := s.client.HSet(ctx, s.sessionKey(sessionID),
		"isActive", "true",
		"startTime", startTime.Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("activate session %s: %w", sessionID, err)
	}
	return nil
}

func (s *SessionStore) SetQuestionIndex(ctx context.Context, sessionID string, index int) error {
	err := s.client.HSet(ctx, s.sessionKey(sessionID), "currentQuestionIndex", strconv.Itoa(index)).Err()
	if err != nil {
		return fmt.Errorf("set question index for %s: %w", sessionID, err)
	}
	return nil
}

func (s *SessionStore) SetParticipantCount(ctx context.Context, sessionID string, count int) error {
	err := s.client.HSet(ctx, s.sessionKey(sessionID), "participantCount", strconv.Itoa(count)).Err()
	if err != nil {
		return fmt.Errorf("set participant count for %s: %w", sessionID, err)
	}
	return nil
}

func (s *SessionStore) AddPlayer(ctx context.Context, sessionID, userID string) (bool, error) {
	added, err := s.client.SAdd(ctx, s.playersKey(sessionID), userID).Result()
	if err != nil {
		return false, fmt.Errorf("add player to %s: %w", sessionID, err)
	}
	return added > 0, nil
}

func (s *SessionStore) RemovePlayer(ctx context.Context, sessionID, userID string) error {
	if err := s.client.SRem(ctx, s.playersKey(sessionID), userID).Err(); err != nil {
		return fmt.Errorf("remove player from %s: %w", sessionID, err)
	}
	return nil
}

func (s *SessionStore) Players(ctx context.Context, sessionID string) ([]string, error) {
	players, err := s.client.SMembers(ctx, s.playersKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list players of %s: %w", sessionID, err)
	}
	return players, nil
}

func (s *SessionStore) SeedScore(ctx context.Context, sessionID, userID string) error {
	if err := s.client.HSet(ctx, s.scoresKey(sessionID), userID, "0").Err(); err != nil {
		return fmt.Errorf("seed score in %s: %w", sessionID, err)
	}
	return nil
}

func (s *SessionStore) IncrementScore(ctx context.Context, sessionID, userID string, points int) (int, error) {
	total, err := s.client.HIncrBy(ctx, s.scoresKey(sessionID), userID, int64(points)).Result()
	if err != nil {
		return 0, fmt.Errorf("increment score in %s: %w", sessionID, err)
	}
	return int(total), nil
}

func (s *SessionStore) Score(ctx context.Context, sessionID, userID string) (int, error) {
	raw, err := s.client.HGet(ctx, s.scoresKey(sessionID), userID).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read score in %s: %w", sessionID, err)
	}
	score, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse score %q in %s: %w", raw, sessionID, err)
	}
	return score, nil
}

func (s *SessionStore) Scores(ctx context.Context, sessionID string) ([]domain.ScoreEntry, error) {
	raw, err := s.client.HGetAll(ctx, s.scoresKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read scores of %s: %w", sessionID, err)
	}
	entries := make([]domain.ScoreEntry, 0, len(raw))
	for userID, value := range raw {
		score, err := strconv.Atoi(value)
		if err != nil {
			continue
		}
		entries = append(entries, domain.ScoreEntry{UserID: userID, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].UserID < entries[j].UserID
	})
	return entries, nil
}

func (s *SessionStore) SetQuestions(ctx context.Context, sessionID string, questions []domain.Question) error {
	data, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("marshal questions for %s: %w", sessionID, err)
	}
	if err := s.client.Set(ctx, s.questionsKey(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store questions for %s: %w", sessionID, err)
	}
	return nil
}

func (s *SessionStore) Questions(ctx context.Context, sessionID string) ([]domain.Question, error) {
	data, err := s.client.Get(ctx, s.questionsKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load questions for %s: %w", sessionID, err)
	}
	var questions []domain.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("unmarshal questions for %s: %w", sessionID, err)
	}
	return questions, nil
}

func (s *SessionStore) MarkAnswered(ctx context.Context, sessionID, userID, questionID string) (bool, error) {
	added, err := s.client.SAdd(ctx, s.answeredKey(sessionID, userID), questionID).Result()
	if err != nil {
		return false, fmt.Errorf("mark answered in %s: %w", sessionID, err)
	}
	return added > 0, nil
}

func (s *SessionStore) sessionKey(sessionID string) string {
	return "quiz_session:" + sessionID
}

func (s *SessionStore) playersKey(sessionID string) string {
	return "quiz_players:" + sessionID
}

func (s *SessionStore) scoresKey(sessionID string) string {
	return "quiz_scores:" + sessionID
}

func (s *SessionStore) questionsKey(sessionID string) string {
	return "quiz_questions:" + sessionID
}

func (s *SessionStore) answeredKey(sessionID, userID string) string {
	return "quiz_answered:" + sessionID + ":" + userID
}

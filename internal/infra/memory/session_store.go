package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quiz-session-service/internal/domain"
)

// SessionStore is the in-memory implementation of app.SessionStore, used by
// tests and by single-process deployments without Redis.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionRecord
}

type sessionRecord struct {
	state     domain.SessionState
	players   map[string]struct{}
	scores    map[string]int
	questions []domain.Question
	answered  map[string]map[string]struct{} // userID -> questionID set
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*sessionRecord)}
}

func (s *SessionStore) CreateSession(_ context.Context, state domain.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[state.ID] = &sessionRecord{
		state:    state,
		players:  make(map[string]struct{}),
		scores:   make(map[string]int),
		answered: make(map[string]map[string]struct{}),
	}
	return nil
}

func (s *SessionStore) Session(_ context.Context, sessionID string) (domain.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return domain.SessionState{}, domain.ErrSessionNotFound
	}
	return rec.state, nil
}

func (s *SessionStore) SetActive(_ context.Context, sessionID string, startTime time.Time) error {
	return s.update(sessionID, func(rec *sessionRecord) {
		rec.state.IsActive = true
		rec.state.StartTime = startTime
	})
}

func (s *SessionStore) SetQuestionIndex(_ context.Context, sessionID string, index int) error {
	return s.update(sessionID, func(rec *sessionRecord) {
		rec.state.CurrentQuestionIndex = index
	})
}

func (s *SessionStore) SetParticipantCount(_ context.Context, sessionID string, count int) error {
	return s.update(sessionID, func(rec *sessionRecord) {
		rec.state.ParticipantCount = count
	})
}

func (s *SessionStore) AddPlayer(_ context.Context, sessionID, userID string) (bool, error) {
	added := false
	err := s.update(sessionID, func(rec *sessionRecord) {
		if _, ok := rec.players[userID]; !ok {
			rec.players[userID] = struct{}{}
			added = true
		}
	})
	return added, err
}

func (s *SessionStore) RemovePlayer(_ context.Context, sessionID, userID string) error {
	return s.update(sessionID, func(rec *sessionRecord) {
		delete(rec.players, userID)
	})
}

func (s *SessionStore) Players(_ context.Context, sessionID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	players := make([]string, 0, len(rec.players))
	for userID := range rec.players {
		players = append(players, userID)
	}
	sort.Strings(players)
	return players, nil
}

func (s *SessionStore) SeedScore(_ context.Context, sessionID, userID string) error {
	return s.update(sessionID, func(rec *sessionRecord) {
		rec.scores[userID] = 0
	})
}

func (s *SessionStore) IncrementScore(_ context.Context, sessionID, userID string, points int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return 0, domain.ErrSessionNotFound
	}
	rec.scores[userID] += points
	return rec.scores[userID], nil
}

func (s *SessionStore) Score(_ context.Context, sessionID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return 0, domain.ErrSessionNotFound
	}
	return rec.scores[userID], nil
}

func (s *SessionStore) Scores(_ context.Context, sessionID string) ([]domain.ScoreEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	entries := make([]domain.ScoreEntry, 0, len(rec.scores))
	for userID, score := range rec.scores {
		entries = append(entries, domain.ScoreEntry{UserID: userID, Score: score})
	}
	sortScores(entries)
	return entries, nil
}

func (s *SessionStore) SetQuestions(_ context.Context, sessionID string, questions []domain.Question) error {
	return s.update(sessionID, func(rec *sessionRecord) {
		rec.questions = append([]domain.Question(nil), questions...)
	})
}

func (s *SessionStore) Questions(_ context.Context, sessionID string) ([]domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return append([]domain.Question(nil), rec.questions...), nil
}

func (s *SessionStore) MarkAnswered(_ context.Context, sessionID, userID, questionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	answered, ok := rec.answered[userID]
	if !ok {
		answered = make(map[string]struct{})
		rec.answered[userID] = answered
	}
	if _, ok := answered[questionID]; ok {
		return false, nil
	}
	answered[questionID] = struct{}{}
	return true, nil
}

func (s *SessionStore) update(sessionID string, fn func(*sessionRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	fn(rec)
	return nil
}

// sortScores orders entries by score descending, user id as tie-break so the
// table is stable for equal scores.
func sortScores(entries []domain.ScoreEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].UserID < entries[j].UserID
	})
}

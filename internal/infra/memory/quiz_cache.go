package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

// QuizCache is a TTL read-through cache in front of a QuizDirectory. The
// coordinator resolves the quiz owner on every join and the full question
// list on start, so the backing store would otherwise be hit per join.
type QuizCache struct {
	directory app.QuizDirectory
	ttl       time.Duration
	clock     func() time.Time
	sf        singleflight.Group
	rnd       *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	owner     string
	questions []domain.Question
	expiresAt time.Time
}

func NewQuizCache(directory app.QuizDirectory, ttl time.Duration) *QuizCache {
	return &QuizCache{
		directory: directory,
		ttl:       ttl,
		clock:     time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:     make(map[string]cachedQuiz),
	}
}

func (c *QuizCache) Questions(ctx context.Context, quizID string) ([]domain.Question, error) {
	entry, err := c.get(ctx, quizID)
	if err != nil {
		return nil, err
	}
	return entry.questions, nil
}

func (c *QuizCache) Owner(ctx context.Context, quizID string) (string, error) {
	entry, err := c.get(ctx, quizID)
	if err != nil {
		return "", err
	}
	return entry.owner, nil
}

func (c *QuizCache) get(ctx context.Context, quizID string) (cachedQuiz, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[quizID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[quizID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry, nil
		}
		c.mu.RUnlock()

		owner, err := c.directory.Owner(ctx, quizID)
		if err != nil {
			return cachedQuiz{}, err
		}
		questions, err := c.directory.Questions(ctx, quizID)
		if err != nil {
			return cachedQuiz{}, err
		}

		entry := cachedQuiz{
			owner:     owner,
			questions: questions,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Lock()
		c.cache[quizID] = entry
		c.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		return cachedQuiz{}, err
	}
	return result.(cachedQuiz), nil
}

func (c *QuizCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

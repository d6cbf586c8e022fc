package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/protocol"
)

// SessionStore is the durable, possibly shared state of quiz sessions. It is
// the source of truth for membership, scores and the frozen question
// snapshot; the coordinator's mirror is only a read-through cache of it.
// IncrementScore must be a single atomic add against the backing store.
type SessionStore interface {
	Session(ctx context.Context, sessionID string) (domain.SessionState, error)
	CreateSession(ctx context.Context, state domain.SessionState) error
	SetActive(ctx context.Context, sessionID string, startTime time.Time) error
	SetQuestionIndex(ctx context.Context, sessionID string, index int) error
	SetParticipantCount(ctx context.Context, sessionID string, count int) error
	AddPlayer(ctx context.Context, sessionID, userID string) (added bool, err error)
	RemovePlayer(ctx context.Context, sessionID, userID string) error
	Players(ctx context.Context, sessionID string) ([]string, error)
	SeedScore(ctx context.Context, sessionID, userID string) error
	IncrementScore(ctx context.Context, sessionID, userID string, points int) (int, error)
	Score(ctx context.Context, sessionID, userID string) (int, error)
	Scores(ctx context.Context, sessionID string) ([]domain.ScoreEntry, error)
	SetQuestions(ctx context.Context, sessionID string, questions []domain.Question) error
	Questions(ctx context.Context, sessionID string) ([]domain.Question, error)
	MarkAnswered(ctx context.Context, sessionID, userID, questionID string) (first bool, err error)
}

// QuizDirectory resolves externally-owned quiz content and ownership.
type QuizDirectory interface {
	Questions(ctx context.Context, quizID string) ([]domain.Question, error)
	Owner(ctx context.Context, quizID string) (string, error)
}

// Grader is the bridge to the external answer-evaluation oracle.
type Grader interface {
	Evaluate(ctx context.Context, question, correctAnswer, candidate string) (domain.Evaluation, error)
}

// AttemptLog records graded answers durably, one attempt per (quiz, user).
type AttemptLog interface {
	FindAttempt(ctx context.Context, quizID, userID string) (attemptID string, ok bool, err error)
	CreateAttempt(ctx context.Context, quizID, userID string, totalScore int) (attemptID string, err error)
	RecordAnswer(ctx context.Context, answer domain.GradedAnswer) error
}

// liveSession is the coordinator's in-memory mirror of one session.
// index < 0 means the lobby; index >= len(questions) means finished.
type liveSession struct {
	id        string
	quizID    string
	hostID    string // resolved quiz owner, cached after first lookup
	index     int
	active    bool
	startTime time.Time
	scores    map[string]int
	questions []domain.Question
}

// Coordinator executes the session state machine. Handling for a single
// session is serialized through a per-session mutex; different sessions
// proceed fully in parallel.
type Coordinator struct {
	store        SessionStore
	quizzes      QuizDirectory
	grader       Grader
	attempts     AttemptLog
	registry     *Registry
	gradeTimeout time.Duration
	now          func() time.Time

	mu       sync.Mutex
	sessions map[string]*liveSession
	locks    map[string]*sync.Mutex
}

func NewCoordinator(store SessionStore, quizzes QuizDirectory, grader Grader, attempts AttemptLog, registry *Registry, gradeTimeout time.Duration) *Coordinator {
	if gradeTimeout <= 0 {
		gradeTimeout = 10 * time.Second
	}
	return &Coordinator{
		store:        store,
		quizzes:      quizzes,
		grader:       grader,
		attempts:     attempts,
		registry:     registry,
		gradeTimeout: gradeTimeout,
		now:          time.Now,
		sessions:     make(map[string]*liveSession),
		locks:        make(map[string]*sync.Mutex),
	}
}

// Registry exposes the connection registry to the transport layer.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Join registers the connection with a session, seeding membership and score
// in the store and rehydrating the in-memory mirror on the cold-start path.
// The joiner gets a snapshot response; everyone else a participant_joined.
func (c *Coordinator) Join(ctx context.Context, conn Conn, sessionID, userID string) error {
	lock := c.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	live, err := c.mirror(ctx, sessionID)
	if err != nil {
		// Do not register connections against unknown sessions.
		return err
	}

	added, err := c.store.AddPlayer(ctx, sessionID, userID)
	if err != nil {
		return fmt.Errorf("add player: %w", err)
	}
	if added {
		if err := c.store.SeedScore(ctx, sessionID, userID); err != nil {
			return fmt.Errorf("seed score: %w", err)
		}
	}
	if _, ok := live.scores[userID]; !ok {
		live.scores[userID] = 0
	}

	// Count comes from the store's player set, not the local connection
	// list, so multiple coordinator processes agree on membership.
	players, err := c.store.Players(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("list players: %w", err)
	}
	count := len(players)
	if err := c.store.SetParticipantCount(ctx, sessionID, count); err != nil {
		log.Printf("update participant count for %s: %v", sessionID, err)
	}

	// Register only once the durable membership is in place; a failed join
	// must not leave a connection receiving this session's broadcasts.
	c.registry.Bind(conn, sessionID, userID)

	isHost := userID != "" && userID == c.resolveHost(ctx, live)

	var current *protocol.QuestionView
	if live.index >= 0 && live.index < len(live.questions) {
		view := protocol.ViewOf(live.questions[live.index])
		current = &view
	}

	conn.Send(protocol.Message{Type: protocol.TypeJoinedQuiz, Payload: protocol.JoinedQuiz{
		SessionID:            sessionID,
		Message:              "Successfully joined quiz session",
		ParticipantCount:     count,
		CurrentQuestionIndex: live.index,
		IsHost:               isHost,
		CurrentQuestion:      current,
	}})

	c.broadcast(sessionID, protocol.Message{Type: protocol.TypeParticipantJoined, Payload: protocol.ParticipantJoined{
		UserID:           userID,
		ParticipantCount: count,
	}}, conn)

	return nil
}

// Start activates the session: it freezes the question snapshot in the store,
// announces quiz_started and immediately pushes question #1.
func (c *Coordinator) Start(ctx context.Context, conn Conn, sessionID string) error {
	lock := c.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	live, ok := c.live(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	if err := c.requireHost(ctx, conn, live); err != nil {
		return err
	}
	if live.active {
		return domain.ErrAlreadyStarted
	}

	questions, err := c.quizzes.Questions(ctx, live.quizID)
	if err != nil {
		return fmt.Errorf("load questions for quiz %s: %w", live.quizID, err)
	}
	if len(questions) == 0 {
		// Blocks everyone's progress, so the whole session hears about it.
		c.broadcast(sessionID, protocol.Error("No questions available for this quiz"), nil)
		return nil
	}

	live.startTime = c.now()
	live.active = true
	live.questions = questions

	if err := c.store.SetActive(ctx, sessionID, live.startTime); err != nil {
		return fmt.Errorf("activate session: %w", err)
	}
	if err := c.store.SetQuestions(ctx, sessionID, questions); err != nil {
		return fmt.Errorf("freeze questions: %w", err)
	}

	c.broadcast(sessionID, protocol.Message{Type: protocol.TypeQuizStarted, Payload: protocol.QuizStarted{
		SessionID:      sessionID,
		Message:        "Quiz has started!",
		StartTime:      live.startTime,
		TotalQuestions: len(questions),
	}}, nil)

	// Starting always yields exactly one initial question push.
	c.advanceLocked(ctx, live)
	return nil
}

// Advance moves the single authoritative cursor forward and broadcasts the
// question at the new index, or quiz_finished past the last one. Calling it
// again at the terminal state re-broadcasts quiz_finished and changes nothing.
func (c *Coordinator) Advance(ctx context.Context, conn Conn, sessionID string) error {
	lock := c.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	live, ok := c.live(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	if err := c.requireHost(ctx, conn, live); err != nil {
		return err
	}
	if !live.active {
		return domain.ErrNotStarted
	}

	c.advanceLocked(ctx, live)
	return nil
}

func (c *Coordinator) advanceLocked(ctx context.Context, live *liveSession) {
	if live.index < len(live.questions) {
		live.index++
		if err := c.store.SetQuestionIndex(ctx, live.id, live.index); err != nil {
			log.Printf("persist question index for %s: %v", live.id, err)
		}
	}

	if live.index < len(live.questions) {
		c.broadcast(live.id, protocol.Message{Type: protocol.TypeQuestion, Payload: protocol.NextQuestion{
			SessionID:            live.id,
			CurrentQuestionIndex: live.index,
			Question:             protocol.ViewOf(live.questions[live.index]),
			Message:              "Next question loaded",
		}}, nil)
		return
	}

	c.broadcast(live.id, protocol.Message{Type: protocol.TypeQuizFinished, Payload: protocol.QuizFinished{
		SessionID: live.id,
		Message:   "Quiz finished!",
	}}, nil)
}

// SubmitAnswer grades a submission against the snapshot question it names,
// credits the score atomically in the store, records the durable graded
// answer, replies to the submitter and broadcasts the fresh score table.
func (c *Coordinator) SubmitAnswer(ctx context.Context, conn Conn, sessionID, userID, questionID, answer string) error {
	lock := c.sessionLock(sessionID)
	lock.Lock()
	live, ok := c.live(sessionID)
	if !ok {
		lock.Unlock()
		return domain.ErrSessionNotFound
	}
	if err := c.requireIdentity(conn, sessionID, userID); err != nil {
		lock.Unlock()
		return err
	}
	question, ok := findQuestion(live.questions, questionID)
	lock.Unlock()
	if !ok {
		return domain.ErrQuestionNotFound
	}

	// Grade outside the session lock: the snapshot is immutable for the
	// session, and a slow oracle must not block joins or advances.
	gctx, cancel := context.WithTimeout(ctx, c.gradeTimeout)
	evaluation, err := c.grader.Evaluate(gctx, question.Content, question.CorrectAnswer, answer)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGradingFailed, err)
	}

	lock.Lock()
	defer lock.Unlock()

	newScore, awarded, err := c.applyScore(ctx, live, userID, question, evaluation)
	if err != nil {
		return err
	}

	c.recordAnswer(ctx, live, userID, questionID, answer, evaluation.IsCorrect, awarded)

	message := "Incorrect answer"
	if evaluation.IsCorrect {
		message = "Correct answer!"
	}
	conn.Send(protocol.Message{Type: protocol.TypeAnswerSubmitted, Payload: protocol.AnswerSubmitted{
		QuestionID:  questionID,
		IsCorrect:   evaluation.IsCorrect,
		Message:     message,
		NewScore:    newScore,
		Explanation: evaluation.Explanation,
	}})

	// Leaderboards converge on the store's view, not the local mirror.
	scores, err := c.store.Scores(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load scores: %w", err)
	}
	c.broadcast(sessionID, protocol.Message{Type: protocol.TypeScoresUpdate, Payload: protocol.ScoresUpdate{
		SessionID: sessionID,
		Scores:    scores,
	}}, nil)

	return nil
}

// applyScore credits a correct answer at most once per (user, question); the
// increment is a single atomic add against the store.
func (c *Coordinator) applyScore(ctx context.Context, live *liveSession, userID string, question domain.Question, evaluation domain.Evaluation) (newScore, awarded int, err error) {
	if evaluation.IsCorrect {
		first, err := c.store.MarkAnswered(ctx, live.id, userID, question.ID)
		if err != nil {
			return 0, 0, fmt.Errorf("mark answered: %w", err)
		}
		if first {
			awarded = question.PointValue()
			newScore, err = c.store.IncrementScore(ctx, live.id, userID, awarded)
			if err != nil {
				return 0, 0, fmt.Errorf("increment score: %w", err)
			}
			live.scores[userID] = newScore
			return newScore, awarded, nil
		}
	}

	newScore, err = c.store.Score(ctx, live.id, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("read score: %w", err)
	}
	live.scores[userID] = newScore
	return newScore, 0, nil
}

// recordAnswer persists the graded answer, lazily creating the participant's
// attempt. Failures here must not undo an already-applied score, so they are
// logged rather than surfaced to the submitter.
func (c *Coordinator) recordAnswer(ctx context.Context, live *liveSession, userID, questionID, answer string, correct bool, awarded int) {
	attemptID, ok, err := c.attempts.FindAttempt(ctx, live.quizID, userID)
	if err != nil {
		log.Printf("find attempt for %s/%s: %v", live.quizID, userID, err)
		return
	}
	if !ok {
		total := 0
		for _, q := range live.questions {
			total += q.PointValue()
		}
		attemptID, err = c.attempts.CreateAttempt(ctx, live.quizID, userID, total)
		if err != nil {
			log.Printf("create attempt for %s/%s: %v", live.quizID, userID, err)
			return
		}
	}
	if err := c.attempts.RecordAnswer(ctx, domain.GradedAnswer{
		AttemptID:     attemptID,
		QuestionID:    questionID,
		Content:       answer,
		IsCorrect:     correct,
		PointsAwarded: awarded,
		AnsweredAt:    c.now(),
	}); err != nil {
		log.Printf("record answer for attempt %s: %v", attemptID, err)
	}
}

// Leave removes the participant from durable membership, tells the rest of
// the session and releases the connection. The transport closes it afterwards.
func (c *Coordinator) Leave(ctx context.Context, conn Conn, sessionID, userID string) error {
	lock := c.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := c.requireIdentity(conn, sessionID, userID); err != nil {
		return err
	}

	if err := c.store.RemovePlayer(ctx, sessionID, userID); err != nil {
		return fmt.Errorf("remove player: %w", err)
	}
	players, err := c.store.Players(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("list players: %w", err)
	}
	count := len(players)
	if err := c.store.SetParticipantCount(ctx, sessionID, count); err != nil {
		log.Printf("update participant count for %s: %v", sessionID, err)
	}

	c.broadcast(sessionID, protocol.Message{Type: protocol.TypeParticipantLeft, Payload: protocol.ParticipantLeft{
		ParticipantCount: count,
		UserID:           userID,
	}}, conn)

	c.registry.Release(conn)
	c.evictIfIdle(sessionID)
	return nil
}

// Disconnect prunes the local connection projection after a transport drop.
// A drop is not proof of intent to leave, so durable membership is untouched;
// only the live-connection count changes, and the mirror is evicted once the
// last connection in this process is gone.
func (c *Coordinator) Disconnect(conn Conn) {
	sessionID, _, ok := c.registry.Release(conn)
	if !ok {
		return
	}

	lock := c.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	remaining := c.registry.Count(sessionID)
	if remaining == 0 {
		c.evictIfIdle(sessionID)
		return
	}

	c.broadcast(sessionID, protocol.Message{Type: protocol.TypeParticipantLeft, Payload: protocol.ParticipantLeft{
		ParticipantCount: remaining,
	}}, conn)
}

// broadcast delivers a message to every open connection of a session except
// the excluded one. Delivery is independent per connection; a slow consumer
// only fills its own queue.
func (c *Coordinator) broadcast(sessionID string, msg protocol.Message, exclude Conn) {
	for _, conn := range c.registry.Connections(sessionID) {
		if conn == exclude || !conn.Open() {
			continue
		}
		conn.Send(msg)
	}
}

// mirror returns the in-memory session, rehydrating it from the store on the
// late-join / cold-start path. Caller holds the session lock.
func (c *Coordinator) mirror(ctx context.Context, sessionID string) (*liveSession, error) {
	if live, ok := c.live(sessionID); ok {
		return live, nil
	}

	state, err := c.store.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	live := &liveSession{
		id:        sessionID,
		quizID:    state.QuizID,
		index:     state.CurrentQuestionIndex,
		active:    state.IsActive,
		startTime: state.StartTime,
		scores:    make(map[string]int),
	}
	if entries, err := c.store.Scores(ctx, sessionID); err == nil {
		for _, entry := range entries {
			live.scores[entry.UserID] = entry.Score
		}
	}
	if state.IsActive {
		questions, err := c.store.Questions(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("load question snapshot: %w", err)
		}
		live.questions = questions
	}

	c.mu.Lock()
	c.sessions[sessionID] = live
	c.mu.Unlock()
	return live, nil
}

func (c *Coordinator) live(sessionID string) (*liveSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	live, ok := c.sessions[sessionID]
	return live, ok
}

// evictIfIdle drops the mirror once the last local connection is gone. The
// lock entry stays: a goroutine may already hold a reference to it, and a
// fresh mutex for the same key would let two handlers interleave.
func (c *Coordinator) evictIfIdle(sessionID string) {
	if c.registry.Count(sessionID) > 0 {
		return
	}
	c.mu.Lock()
	delete(c.sessions, sessionID)
	c.mu.Unlock()
}

// sessionLock returns the mutex serializing transitions for one session key.
func (c *Coordinator) sessionLock(sessionID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[sessionID] = lock
	}
	return lock
}

// resolveHost caches the quiz owner on the mirror. Host status is an explicit
// authorization check against the owning quiz, never a client-supplied flag.
func (c *Coordinator) resolveHost(ctx context.Context, live *liveSession) string {
	if live.hostID != "" {
		return live.hostID
	}
	owner, err := c.quizzes.Owner(ctx, live.quizID)
	if err != nil {
		log.Printf("resolve owner of quiz %s: %v", live.quizID, err)
		return ""
	}
	live.hostID = owner
	return owner
}

func (c *Coordinator) requireHost(ctx context.Context, conn Conn, live *liveSession) error {
	boundSession, userID, ok := c.registry.Binding(conn)
	if !ok || boundSession != live.id {
		return domain.ErrNotHost
	}
	host := c.resolveHost(ctx, live)
	if host == "" || userID != host {
		return domain.ErrNotHost
	}
	return nil
}

// requireIdentity checks both halves of the connection's binding: the claimed
// user and the target session. A connection only ever acts inside the session
// it joined.
func (c *Coordinator) requireIdentity(conn Conn, sessionID, userID string) error {
	boundSession, bound, ok := c.registry.Binding(conn)
	if !ok || boundSession != sessionID || bound != userID {
		return domain.ErrIdentityMismatch
	}
	return nil
}

func findQuestion(questions []domain.Question, questionID string) (domain.Question, bool) {
	for _, q := range questions {
		if q.ID == questionID {
			return q, true
		}
	}
	return domain.Question{}, false
}

package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a session id is absent from the store.
	ErrSessionNotFound = errors.New("session not found")
	// ErrQuizNotFound indicates the quiz definition could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question id is not in the snapshot.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrNoQuestions is returned when a quiz with zero questions is started.
	ErrNoQuestions = errors.New("no questions available")
	// ErrAlreadyStarted guards the once-only activation of a session.
	ErrAlreadyStarted = errors.New("quiz already started")
	// ErrNotStarted is returned when advancing a session still in the lobby.
	ErrNotStarted = errors.New("quiz has not started")
	// ErrNotHost is returned when a non-host tries to start or advance.
	ErrNotHost = errors.New("caller is not the session host")
	// ErrIdentityMismatch is returned when a message claims a user id other
	// than the one bound to the connection at join time.
	ErrIdentityMismatch = errors.New("user does not match connection")
	// ErrGradingFailed wraps oracle transport or timeout failures.
	ErrGradingFailed = errors.New("grading failed")
)

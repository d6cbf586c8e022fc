package app

import (
	"sync"

	"quiz-session-service/internal/protocol"
)

// Conn is one live transport channel. Send must not block the caller; the
// websocket transport backs it with a buffered per-connection queue.
// Implementations must be comparable (pointers) so the registry can key on them.
type Conn interface {
	Send(msg protocol.Message)
	Open() bool
}

type binding struct {
	sessionID string
	userID    string
}

// Registry is the process-local bidirectional map between live connections
// and the session each belongs to. It holds no durable state and is rebuilt
// from nothing on restart; participants are expected to rejoin.
type Registry struct {
	mu        sync.RWMutex
	byConn    map[Conn]binding
	bySession map[string]map[Conn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		byConn:    make(map[Conn]binding),
		bySession: make(map[string]map[Conn]struct{}),
	}
}

// Bind associates a connection with a session and the user identity claimed
// at join time. A connection holds at most one association; last join wins.
func (r *Registry) Bind(conn Conn, sessionID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byConn[conn]; ok {
		r.removeLocked(conn, prev.sessionID)
	}
	r.byConn[conn] = binding{sessionID: sessionID, userID: userID}
	conns, ok := r.bySession[sessionID]
	if !ok {
		conns = make(map[Conn]struct{})
		r.bySession[sessionID] = conns
	}
	conns[conn] = struct{}{}
}

// Release drops the connection's association and reports what it was bound to.
func (r *Registry) Release(conn Conn) (sessionID, userID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.byConn[conn]
	if !ok {
		return "", "", false
	}
	delete(r.byConn, conn)
	r.removeLocked(conn, b.sessionID)
	return b.sessionID, b.userID, true
}

// Binding returns the session and bound identity for a connection.
func (r *Registry) Binding(conn Conn) (sessionID, userID string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byConn[conn]
	return b.sessionID, b.userID, ok
}

// Connections snapshots the live connections of a session for broadcast.
func (r *Registry) Connections(sessionID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]Conn, 0, len(r.bySession[sessionID]))
	for conn := range r.bySession[sessionID] {
		conns = append(conns, conn)
	}
	return conns
}

// Count reports the number of live connections in a session.
func (r *Registry) Count(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySession[sessionID])
}

func (r *Registry) removeLocked(conn Conn, sessionID string) {
	conns, ok := r.bySession[sessionID]
	if !ok {
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(r.bySession, sessionID)
	}
}

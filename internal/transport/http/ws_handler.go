package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/protocol"
)

const sendQueueSize = 16

// WSHandler upgrades HTTP requests to websockets and dispatches the quiz
// protocol into the session coordinator.
type WSHandler struct {
	coordinator *app.Coordinator
	upgrader    websocket.Upgrader
}

func NewWSHandler(coordinator *app.Coordinator) *WSHandler {
	return &WSHandler{
		coordinator: coordinator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// wsConn adapts a gorilla connection to app.Conn. A single writer goroutine
// drains the buffered queue so broadcasts never write concurrently and a slow
// consumer only fills its own queue.
type wsConn struct {
	conn   *websocket.Conn
	send   chan protocol.Message
	closed chan struct{}
	once   sync.Once
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{
		conn:   conn,
		send:   make(chan protocol.Message, sendQueueSize),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) Send(msg protocol.Message) {
	select {
	case <-c.closed:
		return
	default:
	}
	select {
	case c.send <- msg:
	default:
		// Best-effort delivery: drop rather than stall the session.
		log.Printf("ws send queue full, dropping %s", msg.Type)
	}
}

func (c *wsConn) Open() bool {
	select {
	case <-c.closed:
		return false
	default:
		return true
	}
}

func (c *wsConn) shutdown() {
	c.once.Do(func() { close(c.closed) })
}

func (c *wsConn) writeLoop() {
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				c.shutdown()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// ServeWS runs the read loop for one connection. Malformed frames and unknown
// message types answer with an error envelope and keep the connection open;
// only transport errors end the loop.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	wc := newWSConn(conn)
	go wc.writeLoop()

	defer func() {
		h.coordinator.Disconnect(wc)
		wc.shutdown()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var envelope protocol.Envelope
		if err := json.Unmarshal(data, &envelope); err != nil || envelope.Type == "" {
			wc.Send(protocol.Error("Invalid message format"))
			continue
		}

		if leave := h.dispatch(r.Context(), wc, envelope); leave {
			return
		}
	}
}

// dispatch handles one inbound envelope and reports whether the connection
// should close (after a successful explicit leave).
func (h *WSHandler) dispatch(ctx context.Context, wc *wsConn, envelope protocol.Envelope) bool {
	switch envelope.Type {
	case protocol.TypeJoinQuiz:
		var payload protocol.JoinQuiz
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			wc.Send(protocol.Error("Invalid message format"))
			return false
		}
		if err := h.coordinator.Join(ctx, wc, payload.SessionID, payload.UserID); err != nil {
			h.sendError(wc, err, "Failed to join quiz session")
		}

	case protocol.TypeSubmitAnswer:
		var payload protocol.SubmitAnswer
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			wc.Send(protocol.Error("Invalid message format"))
			return false
		}
		if err := h.coordinator.SubmitAnswer(ctx, wc, payload.SessionID, payload.UserID, payload.QuestionID, payload.Answer); err != nil {
			h.sendError(wc, err, "Error processing answer")
		}

	case protocol.TypeStartQuiz:
		var payload protocol.SessionRef
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			wc.Send(protocol.Error("Invalid message format"))
			return false
		}
		if err := h.coordinator.Start(ctx, wc, payload.SessionID); err != nil {
			h.sendError(wc, err, "Failed to start quiz")
		}

	case protocol.TypeNextQuestion:
		var payload protocol.SessionRef
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			wc.Send(protocol.Error("Invalid message format"))
			return false
		}
		if err := h.coordinator.Advance(ctx, wc, payload.SessionID); err != nil {
			h.sendError(wc, err, "Failed to load next question")
		}

	case protocol.TypeLeaveQuiz:
		var payload protocol.LeaveQuiz
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			wc.Send(protocol.Error("Invalid message format"))
			return false
		}
		if err := h.coordinator.Leave(ctx, wc, payload.SessionID, payload.UserID); err != nil {
			h.sendError(wc, err, "Failed to leave quiz session")
			return false
		}
		return true

	default:
		wc.Send(protocol.Error("Unknown message type"))
	}
	return false
}

func (h *WSHandler) sendError(wc *wsConn, err error, fallback string) {
	log.Printf("ws handler: %v", err)
	wc.Send(protocol.Error(userMessage(err, fallback)))
}

// userMessage maps coordinator errors to their client-facing strings.
// Anything unmapped gets the handler's generic fallback.
func userMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return "Session not found"
	case errors.Is(err, domain.ErrQuestionNotFound):
		return "Question not found"
	case errors.Is(err, domain.ErrQuizNotFound):
		return "Quiz not found"
	case errors.Is(err, domain.ErrNoQuestions):
		return "No questions available for this quiz"
	case errors.Is(err, domain.ErrAlreadyStarted):
		return "Quiz already started"
	case errors.Is(err, domain.ErrNotStarted):
		return "Quiz has not started yet"
	case errors.Is(err, domain.ErrNotHost):
		return "Only the host can control the quiz"
	case errors.Is(err, domain.ErrIdentityMismatch):
		return "User does not match this connection"
	case errors.Is(err, domain.ErrGradingFailed):
		return "Error processing answer"
	default:
		return fallback
	}
}

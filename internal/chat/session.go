// Package chat maintains one live, ordered message stream per course.
//
// A Session reconciles two inputs into a single append-only log: the
// one-shot history fetch and the continuous push stream. The socket is
// joined BEFORE the history request is issued, so a push can never be
// lost in the gap — pushes that arrive while history is still in flight
// are buffered and spliced after the history list in arrival order.
//
// The visible sequence reflects arrival order at the client. The backend
// is trusted for ordering and uniqueness; the client never reorders or
// deduplicates.
//
// KNOWN GAP: there is no automatic reconnect or send retry. A dropped
// connection stays dropped until the caller opens a fresh Session.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/shikshasetu/shiksha-client/internal/apperror"
	"github.com/shikshasetu/shiksha-client/internal/model"
	"github.com/shikshasetu/shiksha-client/internal/session"
)

// Wire events, matching the backend's socket contract.
const (
	eventJoin       = "join-course"
	eventSend       = "send-message"
	eventNewMessage = "new-message"
)

// envelope is one JSON frame on the socket.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type joinPayload struct {
	CourseID string `json:"courseId"`
}

type outgoingMessage struct {
	CourseID string `json:"courseId"`
	SenderID string `json:"senderId"`
	Message  string `json:"message"`
}

// HistoryFetcher is the one-shot history collaborator. The api.Client
// satisfies it.
type HistoryFetcher interface {
	ChatHistory(ctx context.Context, courseID string) ([]model.Message, error)
}

// Session is one open realtime connection scoped to a course.
//
// Lifecycle: created by Open when a chat view mounts; destroyed by Close
// when the course changes or the view unmounts. Never reused — switching
// course means Close then a fresh Open.
type Session struct {
	courseID string
	identity session.Identity
	conn     *websocket.Conn
	logger   *slog.Logger

	onMessage func(model.Message)

	wmu sync.Mutex // serializes socket writes

	mu            sync.Mutex
	messages      []model.Message
	pending       []model.Message // pushes that beat the history fetch
	historyLoaded bool
	historyErr    error
	closed        bool
}

// Open establishes the chat session for a course:
//
//  1. dial the socket, authenticated with the identity's token
//  2. announce interest in the course (join signal)
//  3. start consuming pushes (so none can be lost from here on)
//  4. fetch history and splice any buffered pushes after it
//
// A history failure does not fail Open: the session stays live and
// HistoryErr reports the recoverable error for the view to render in
// place of the list.
func Open(ctx context.Context, socketURL, courseID string, identity session.Identity, history HistoryFetcher, logger *slog.Logger) (*Session, error) {
	if courseID == "" {
		return nil, apperror.ValidationFailed("courseId", "course id is required")
	}

	header := http.Header{}
	if identity.Token != "" {
		header.Set("Authorization", "Bearer "+identity.Token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, socketURL+"/ws", header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("chat: connecting to %s: %w", socketURL, apperror.Unavailable(err.Error()))
	}

	s := &Session{
		courseID: courseID,
		identity: identity,
		conn:     conn,
		logger:   logger,
	}

	if err := s.write(eventJoin, joinPayload{CourseID: courseID}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("chat: joining course %s: %w", courseID, err)
	}

	// Subscribe before fetching history. Early pushes land in pending.
	go s.readLoop()

	msgs, histErr := history.ChatHistory(ctx, courseID)

	s.mu.Lock()
	if histErr != nil {
		s.historyErr = histErr
		s.messages = append(s.messages, s.pending...)
	} else {
		s.messages = append(msgs, s.pending...)
	}
	s.pending = nil
	s.historyLoaded = true
	s.mu.Unlock()

	logger.Info("chat session opened",
		slog.String("courseID", courseID),
		slog.Int("history", len(msgs)),
	)
	return s, nil
}

// readLoop consumes frames until the connection dies or Close is called.
func (s *Session) readLoop() {
	for {
		var env envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				// Connection failure is silent at this layer: no
				// reconnect, no user-facing error. See package doc.
				s.logger.Warn("chat connection lost",
					slog.String("courseID", s.courseID),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		if env.Event != eventNewMessage {
			continue
		}

		var msg model.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			s.logger.Warn("dropping malformed push", slog.String("error", err.Error()))
			continue
		}
		s.deliver(msg)
	}
}

// deliver appends one pushed message, guarding against the stale-closure
// hazard: a push processed after Close must not mutate the sequence.
func (s *Session) deliver(msg model.Message) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if !s.historyLoaded {
		s.pending = append(s.pending, msg)
		s.mu.Unlock()
		return
	}
	s.messages = append(s.messages, msg)
	cb := s.onMessage
	s.mu.Unlock()

	if cb != nil {
		cb(msg)
	}
}

// Send emits one outbound message. The body is trimmed first; an empty
// body emits nothing and is not an error.
//
// There is no optimistic local append: the message becomes visible only
// when the backend delivers it back through the push stream. There is no
// acknowledgment or retry — a write failure is returned and forgotten.
func (s *Session) Send(body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("chat: session for course %s is closed", s.courseID)
	}
	s.mu.Unlock()

	return s.write(eventSend, outgoingMessage{
		CourseID: s.courseID,
		SenderID: s.identity.User.ID,
		Message:  body,
	})
}

func (s *Session) write(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("chat: encoding %s: %w", event, err)
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.conn.WriteJSON(envelope{Event: event, Data: data}); err != nil {
		return fmt.Errorf("chat: writing %s: %w", event, err)
	}
	return nil
}

// Close tears the connection down. Idempotent: closing an already-closed
// session is a no-op. Stale pushes still in flight are dropped.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.logger.Info("chat session closed", slog.String("courseID", s.courseID))
	return s.conn.Close()
}

// Follow registers fn for every message appended from now on and
// returns a snapshot of everything received so far. The two never
// overlap: a message appears either in the snapshot or in a later fn
// call, so a view that prints the snapshot and then relies on fn shows
// each message exactly once. fn runs on the session's reader goroutine.
func (s *Session) Follow(fn func(model.Message)) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage = fn
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Messages returns a snapshot of the current append-only sequence.
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// HistoryErr reports whether the initial history fetch failed. The view
// renders this in place of the message list; the session itself stays
// usable.
func (s *Session) HistoryErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyErr
}

// CourseID returns the course this session is scoped to.
func (s *Session) CourseID() string {
	return s.courseID
}

package chat

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shikshasetu/shiksha-client/internal/model"
	"github.com/shikshasetu/shiksha-client/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testIdentity() session.Identity {
	return session.Identity{
		Token: "a.b.c",
		User:  model.User{ID: "u-1", Name: "Asha", Role: model.RoleStudent},
	}
}

func msg(id, body string) model.Message {
	return model.Message{
		ID:       id,
		CourseID: "c-1",
		Sender:   model.Sender{ID: "u-2", Name: "Rafi"},
		Body:     body,
	}
}

// stubHistory is a HistoryFetcher with an optional gate so tests can
// hold the fetch open while pushes arrive.
type stubHistory struct {
	msgs    []model.Message
	err     error
	release chan struct{}
}

func (s *stubHistory) ChatHistory(ctx context.Context, courseID string) ([]model.Message, error) {
	if s.release != nil {
		<-s.release
	}
	return s.msgs, s.err
}

// socketServer is a minimal fake of the backend's realtime endpoint.
type socketServer struct {
	t     *testing.T
	srv   *httptest.Server
	url   string // ws:// base, without the /ws path
	mu    sync.Mutex
	conns []*websocket.Conn

	lastAuth string
}

func newSocketServer(t *testing.T) *socketServer {
	t.Helper()
	ss := &socketServer{t: t}
	upgrader := websocket.Upgrader{}

	r := chi.NewRouter()
	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		ss.mu.Lock()
		ss.lastAuth = req.Header.Get("Authorization")
		ss.mu.Unlock()

		conn, err := upgrader.Upgrade(w, req, nil)
		require.NoError(t, err)
		ss.mu.Lock()
		ss.conns = append(ss.conns, conn)
		ss.mu.Unlock()
	})

	ss.srv = httptest.NewServer(r)
	t.Cleanup(ss.srv.Close)
	ss.url = "ws" + strings.TrimPrefix(ss.srv.URL, "http")
	return ss
}

func (ss *socketServer) auth() string {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.lastAuth
}

// conn returns the n-th accepted connection, waiting briefly for it.
func (ss *socketServer) conn(n int) *websocket.Conn {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ss.mu.Lock()
		if len(ss.conns) > n {
			c := ss.conns[n]
			ss.mu.Unlock()
			return c
		}
		ss.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	ss.t.Fatalf("connection %d never arrived", n)
	return nil
}

// readFrame reads one envelope off a server-side connection.
func readFrame(t *testing.T, conn *websocket.Conn) (string, map[string]any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var env envelope
	require.NoError(t, conn.ReadJSON(&env))

	payload := map[string]any{}
	if len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, &payload))
	}
	return env.Event, payload
}

// push sends a new-message frame from the server side.
func push(t *testing.T, conn *websocket.Conn, m model.Message) {
	t.Helper()
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(envelope{Event: eventNewMessage, Data: data}))
}

func TestOpenJoinsAndMergesHistoryWithPush(t *testing.T) {
	ss := newSocketServer(t)
	history := &stubHistory{msgs: []model.Message{msg("m-1", "first"), msg("m-2", "second")}}

	s, err := Open(context.Background(), ss.url, "c-1", testIdentity(), history, testLogger())
	require.NoError(t, err)
	defer s.Close()

	// The client authenticates the dial and announces the course.
	assert.Equal(t, "Bearer a.b.c", ss.auth())
	event, payload := readFrame(t, ss.conn(0))
	assert.Equal(t, eventJoin, event)
	assert.Equal(t, "c-1", payload["courseId"])

	// One realtime push lands after history: appended at the tail.
	push(t, ss.conn(0), msg("m-3", "third"))

	assert.Eventually(t, func() bool { return len(s.Messages()) == 3 }, 2*time.Second, 5*time.Millisecond)

	got := s.Messages()
	assert.Equal(t, []string{"m-1", "m-2", "m-3"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.NoError(t, s.HistoryErr())
}

func TestPushArrivingBeforeHistoryIsNotLost(t *testing.T) {
	ss := newSocketServer(t)
	history := &stubHistory{
		msgs:    []model.Message{msg("m-1", "old"), msg("m-2", "older")},
		release: make(chan struct{}),
	}

	// Hold the history fetch open and slip a push in underneath it.
	go func() {
		conn := ss.conn(0)
		readFrame(t, conn) // join
		push(t, conn, msg("m-3", "early push"))
		close(history.release)
	}()

	s, err := Open(context.Background(), ss.url, "c-1", testIdentity(), history, testLogger())
	require.NoError(t, err)
	defer s.Close()

	// The early push survives, spliced after the history list.
	assert.Eventually(t, func() bool { return len(s.Messages()) == 3 }, 2*time.Second, 5*time.Millisecond)

	got := s.Messages()
	assert.Equal(t, "m-1", got[0].ID)
	assert.Equal(t, "m-2", got[1].ID)
	assert.Equal(t, "m-3", got[2].ID)
}

func TestEmptyHistoryIsLoadedNotAnError(t *testing.T) {
	ss := newSocketServer(t)
	history := &stubHistory{msgs: []model.Message{}}

	s, err := Open(context.Background(), ss.url, "c-1", testIdentity(), history, testLogger())
	require.NoError(t, err)
	defer s.Close()

	assert.Empty(t, s.Messages())
	assert.NoError(t, s.HistoryErr())
}

func TestHistoryFailureIsRecoverable(t *testing.T) {
	ss := newSocketServer(t)
	history := &stubHistory{err: context.DeadlineExceeded}

	s, err := Open(context.Background(), ss.url, "c-1", testIdentity(), history, testLogger())
	require.NoError(t, err, "history failure must not kill the session")
	defer s.Close()

	assert.Error(t, s.HistoryErr())
	assert.Empty(t, s.Messages())

	// The push stream still works after a failed history fetch.
	readFrame(t, ss.conn(0)) // join
	push(t, ss.conn(0), msg("m-9", "still alive"))
	assert.Eventually(t, func() bool { return len(s.Messages()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestSwitchingCourseDropsStalePushes(t *testing.T) {
	ss := newSocketServer(t)

	s1, err := Open(context.Background(), ss.url, "c-1", testIdentity(), &stubHistory{}, testLogger())
	require.NoError(t, err)
	readFrame(t, ss.conn(0)) // join c-1

	// View switches course: close the old session, open a fresh one.
	require.NoError(t, s1.Close())

	s2, err := Open(context.Background(), ss.url, "c-2", testIdentity(), &stubHistory{}, testLogger())
	require.NoError(t, err)
	defer s2.Close()
	readFrame(t, ss.conn(1)) // join c-2

	// A push still in flight for the old course must not be appended.
	_ = ss.conn(0).WriteJSON(envelope{Event: eventNewMessage}) // may fail; conn is down
	push(t, ss.conn(1), model.Message{ID: "m-1", CourseID: "c-2", Body: "fresh"})

	assert.Eventually(t, func() bool { return len(s2.Messages()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, s1.Messages(), "closed session must stay frozen")
}

func TestDeliverAfterCloseIsDropped(t *testing.T) {
	// The stale-closure guard, in isolation: a callback holding a
	// reference to a closed session must not mutate it.
	s := &Session{historyLoaded: true, closed: true, logger: testLogger()}
	s.deliver(msg("m-1", "stale"))
	assert.Empty(t, s.messages)
}

func TestSendTrimsAndSkipsEmpty(t *testing.T) {
	ss := newSocketServer(t)

	s, err := Open(context.Background(), ss.url, "c-1", testIdentity(), &stubHistory{}, testLogger())
	require.NoError(t, err)
	defer s.Close()

	serverConn := ss.conn(0)
	readFrame(t, serverConn) // join

	// Blank input emits nothing.
	require.NoError(t, s.Send("   "))
	require.NoError(t, s.Send(""))

	// The next frame the server sees is the real message — proof the
	// blanks never went out.
	require.NoError(t, s.Send("  hello there  "))
	event, payload := readFrame(t, serverConn)
	assert.Equal(t, eventSend, event)
	assert.Equal(t, "hello there", payload["message"])
	assert.Equal(t, "c-1", payload["courseId"])
	assert.Equal(t, "u-1", payload["senderId"])
}

func TestSendDoesNotAppendLocally(t *testing.T) {
	ss := newSocketServer(t)

	s, err := Open(context.Background(), ss.url, "c-1", testIdentity(), &stubHistory{}, testLogger())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Send("hello"))

	// No optimistic append: the message only shows up when the backend
	// pushes it back.
	assert.Empty(t, s.Messages())

	readFrame(t, ss.conn(0)) // join
	readFrame(t, ss.conn(0)) // the send we just made
	push(t, ss.conn(0), msg("m-1", "hello"))
	assert.Eventually(t, func() bool { return len(s.Messages()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestCloseIsIdempotent(t *testing.T) {
	ss := newSocketServer(t)

	s, err := Open(context.Background(), ss.url, "c-1", testIdentity(), &stubHistory{}, testLogger())
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Error(t, s.Send("into the void"), "send on a closed session fails")
}

func TestOpenRequiresCourseID(t *testing.T) {
	_, err := Open(context.Background(), "ws://unused", "", testIdentity(), &stubHistory{}, testLogger())
	assert.Error(t, err)
}

func TestFollowStreamsNewMessages(t *testing.T) {
	ss := newSocketServer(t)

	s, err := Open(context.Background(), ss.url, "c-1", testIdentity(), &stubHistory{}, testLogger())
	require.NoError(t, err)
	defer s.Close()

	var mu sync.Mutex
	var seen []string
	snapshot := s.Follow(func(m model.Message) {
		mu.Lock()
		seen = append(seen, m.ID)
		mu.Unlock()
	})
	assert.Empty(t, snapshot)

	readFrame(t, ss.conn(0)) // join
	push(t, ss.conn(0), msg("m-1", "one"))
	push(t, ss.conn(0), msg("m-2", "two"))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"m-1", "m-2"}, seen)
	mu.Unlock()
}

func TestFollowNeverDeliversTwice(t *testing.T) {
	// A push landing between Open and Follow must show up in the
	// snapshot OR through the callback, never both.
	ss := newSocketServer(t)
	history := &stubHistory{msgs: []model.Message{msg("m-1", "history")}}

	s, err := Open(context.Background(), ss.url, "c-1", testIdentity(), history, testLogger())
	require.NoError(t, err)
	defer s.Close()

	// Land a push before the callback is registered.
	readFrame(t, ss.conn(0)) // join
	push(t, ss.conn(0), msg("m-2", "between open and follow"))
	assert.Eventually(t, func() bool { return len(s.Messages()) == 2 }, 2*time.Second, 5*time.Millisecond)

	var mu sync.Mutex
	var streamed []string
	snapshot := s.Follow(func(m model.Message) {
		mu.Lock()
		streamed = append(streamed, m.ID)
		mu.Unlock()
	})

	// The early push is in the snapshot, so it must not be streamed.
	require.Len(t, snapshot, 2)
	assert.Equal(t, []string{"m-1", "m-2"}, []string{snapshot[0].ID, snapshot[1].ID})

	push(t, ss.conn(0), msg("m-3", "after follow"))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(streamed) == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"m-3"}, streamed)
	mu.Unlock()
}

package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupchat-client/internal/protocol"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type chatServer struct {
	srv      *httptest.Server
	upgrades atomic.Int32
}

// startChatServer runs a fake group-chat backend. handle is invoked per
// connection with the 1-based connection number; a nil handle just keeps the
// connection alive.
func startChatServer(t *testing.T, handle func(n int32, conn *websocket.Conn)) *chatServer {
	t.Helper()
	cs := &chatServer{}
	cs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := cs.upgrades.Add(1)
		if handle != nil {
			handle(n, conn)
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(cs.srv.Close)
	return cs
}

func (cs *chatServer) url() string {
	return "ws" + strings.TrimPrefix(cs.srv.URL, "http")
}

func newTestConn(cs *chatServer) *Conn {
	c := NewConn(Options{URL: cs.url(), GroupID: "g1"})
	c.backoff = func(int) time.Duration { return 5 * time.Millisecond }
	return c
}

func nextEvent(t *testing.T, c *Conn) Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func expectNoEvent(t *testing.T, c *Conn, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-c.Events():
		t.Fatalf("unexpected event: %#v", ev)
	case <-time.After(wait):
	}
}

func TestConnectDeliversFramesInOrder(t *testing.T) {
	cs := startChatServer(t, func(n int32, conn *websocket.Conn) {
		defer conn.Close()
		frames := []string{
			`{"type":"group_message","data":{"message_id":"m1","group_id":"g1","content":"hi"}}`,
			`not even json`,
			`{"type":"mystery_frame"}`,
			`{"type":"typing_indicator","user_id":"u2","is_typing":true}`,
			`{"type":"online_members","members":["u1","u2"]}`,
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	c := newTestConn(cs)
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, Opened{Resumed: false}, nextEvent(t, c))

	ev := nextEvent(t, c).(Received)
	msg := ev.Event.(protocol.GroupMessage)
	assert.Equal(t, "m1", msg.Message.MessageID)

	// the malformed and unrecognized frames are dropped, not delivered
	ev = nextEvent(t, c).(Received)
	assert.Equal(t, protocol.TypingIndicator{UserID: "u2", Typing: true}, ev.Event)

	ev = nextEvent(t, c).(Received)
	assert.Equal(t, protocol.OnlineMembers{Members: []string{"u1", "u2"}}, ev.Event)
}

func TestConnectIsIdempotent(t *testing.T) {
	cs := startChatServer(t, nil)
	c := newTestConn(cs)
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, Opened{Resumed: false}, nextEvent(t, c))

	require.NoError(t, c.Connect(context.Background()))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), cs.upgrades.Load())
	assert.Equal(t, StateOpen, c.State())
}

func TestConnectFailsAgainstDeadEndpoint(t *testing.T) {
	c := NewConn(Options{URL: "ws://127.0.0.1:1/api/v1/group-chat/ws/group/g1", GroupID: "g1"})
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateClosed, c.State())
	// a failed initial handshake never auto-retries
	expectNoEvent(t, c, 100*time.Millisecond)
}

func TestBackoffDelays(t *testing.T) {
	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		10000 * time.Millisecond,
	}
	for attempt, expected := range want {
		assert.Equal(t, expected, backoffDelay(attempt), "attempt %d", attempt)
	}
	assert.Equal(t, 10*time.Second, backoffDelay(6))
}

func TestFatalCloseCodesNeverReconnect(t *testing.T) {
	cases := []struct {
		code    int
		message string
	}{
		{CloseInvalidToken, msgInvalidToken},
		{CloseRemovedFromGroup, msgRemovedGroup},
	}
	for _, tc := range cases {
		t.Run(tc.message, func(t *testing.T) {
			cs := startChatServer(t, func(n int32, conn *websocket.Conn) {
				defer conn.Close()
				deadline := time.Now().Add(time.Second)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(tc.code, "server says no"), deadline)
			})
			c := newTestConn(cs)
			defer c.Close()

			require.NoError(t, c.Connect(context.Background()))
			assert.Equal(t, Opened{Resumed: false}, nextEvent(t, c))
			assert.Equal(t, Failed{Message: tc.message}, nextEvent(t, c))

			// no Closed event, no reconnect attempts
			expectNoEvent(t, c, 100*time.Millisecond)
			assert.Equal(t, int32(1), cs.upgrades.Load())
		})
	}
}

func TestManualCloseIsSilent(t *testing.T) {
	cs := startChatServer(t, nil)
	c := newTestConn(cs)

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, Opened{Resumed: false}, nextEvent(t, c))

	c.Close()
	expectNoEvent(t, c, 150*time.Millisecond)
	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, int32(1), cs.upgrades.Load())

	// closing again is harmless
	c.Close()
}

func TestCloseBeforeConnect(t *testing.T) {
	c := NewConn(Options{URL: "ws://localhost:0", GroupID: "g1"})
	c.Close()
	c.Close()
	assert.Equal(t, StateIdle, c.State())
}

func TestReconnectAfterRetryableClose(t *testing.T) {
	cs := startChatServer(t, func(n int32, conn *websocket.Conn) {
		defer conn.Close()
		if n == 1 {
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseServiceRestart, "restarting"), deadline)
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	c := newTestConn(cs)
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, Opened{Resumed: false}, nextEvent(t, c))

	closed := nextEvent(t, c).(Closed)
	assert.Equal(t, websocket.CloseServiceRestart, closed.Code)

	assert.Equal(t, Opened{Resumed: true}, nextEvent(t, c))
	assert.Equal(t, int32(2), cs.upgrades.Load())

	c.mu.Lock()
	attempts := c.attempts
	c.mu.Unlock()
	assert.Zero(t, attempts, "attempts reset on successful open")
}

func TestReconnectExhaustion(t *testing.T) {
	cs := startChatServer(t, nil)
	c := newTestConn(cs)
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, Opened{Resumed: false}, nextEvent(t, c))

	// kill the backend so every retry fails to dial
	cs.srv.CloseClientConnections()
	cs.srv.Close()

	closed := nextEvent(t, c).(Closed)
	assert.Equal(t, websocket.CloseAbnormalClosure, closed.Code)

	assert.Equal(t, Failed{Message: msgRetriesSpent}, nextEvent(t, c))
	expectNoEvent(t, c, 100*time.Millisecond)

	c.mu.Lock()
	attempts := c.attempts
	c.mu.Unlock()
	assert.Equal(t, defaultMaxAttempts, attempts)
}

func TestSendMessageRequiresOpenSocket(t *testing.T) {
	cs := startChatServer(t, nil)
	c := newTestConn(cs)
	defer c.Close()

	assert.False(t, c.SendMessage("hi"))
	assert.False(t, c.SendTyping(true))
}

func TestSendMessageWritesTrimmedFrame(t *testing.T) {
	received := make(chan []byte, 1)
	cs := startChatServer(t, func(n int32, conn *websocket.Conn) {
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- data
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	c := newTestConn(cs)
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, Opened{Resumed: false}, nextEvent(t, c))

	require.True(t, c.SendMessage("  xin chào  "))
	select {
	case data := <-received:
		assert.JSONEq(t, `{"type":"send_message","content":"xin chào"}`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the frame")
	}
}

func TestSendTypingWritesFrame(t *testing.T) {
	received := make(chan []byte, 1)
	cs := startChatServer(t, func(n int32, conn *websocket.Conn) {
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- data
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	c := newTestConn(cs)
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, Opened{Resumed: false}, nextEvent(t, c))

	require.True(t, c.SendTyping(true))
	select {
	case data := <-received:
		assert.JSONEq(t, `{"type":"typing","is_typing":true}`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the frame")
	}
}

func TestCloseUnblocksSaturatedReader(t *testing.T) {
	frame := []byte(`{"type":"online_members","members":["u1"]}`)
	flooded := make(chan struct{})
	cs := startChatServer(t, func(n int32, conn *websocket.Conn) {
		defer conn.Close()
		for i := 0; i < 4*eventBufferLen; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
		close(flooded)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	baseline := runtime.NumGoroutine()
	c := newTestConn(cs)
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, Opened{Resumed: false}, nextEvent(t, c))

	select {
	case <-flooded:
	case <-time.After(2 * time.Second):
		t.Fatal("server never finished flooding")
	}
	// nothing drains the event channel; let the read loop fill it and park
	time.Sleep(50 * time.Millisecond)

	c.Close()

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline
	}, 2*time.Second, 10*time.Millisecond, "read loop still parked after close")
}

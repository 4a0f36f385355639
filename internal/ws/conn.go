// Package ws owns the websocket connection to one chat group: dialing,
// inbound frame dispatch, reconnection with exponential backoff, and
// close-code classification.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"groupchat-client/internal/observability"
	"groupchat-client/internal/protocol"
	"groupchat-client/internal/telemetry"
)

// Close codes the backend uses for conditions retrying can never fix.
const (
	CloseInvalidToken     = 4001
	CloseRemovedFromGroup = 4003
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	baseReconnectDelay      = time.Second
	maxReconnectDelay       = 10 * time.Second
	defaultMaxAttempts      = 5

	writeTimeout   = 10 * time.Second
	eventBufferLen = 64
)

// Fixed user-facing messages for terminal conditions.
const (
	msgInvalidToken = "chat session rejected: invalid or expired token"
	msgRemovedGroup = "you are no longer a member of this group"
	msgRetriesSpent = "connection lost: reconnect attempts exhausted"
)

// State is the connection lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

// Options configures a Conn.
type Options struct {
	// URL is the fully built group socket endpoint, token included.
	URL string
	// GroupID is used for logging and telemetry only.
	GroupID string
	// Emitter, when set, publishes lifecycle telemetry. Nil-safe.
	Emitter *telemetry.LifecycleEmitter
	// HandshakeTimeout bounds each dial. Zero means 10s.
	HandshakeTimeout time.Duration
}

// Conn manages the socket for a single group.
type Conn struct {
	url     string
	groupID string
	emitter *telemetry.LifecycleEmitter
	dialer  *websocket.Dialer
	events  chan Event

	mu         sync.Mutex
	state      State
	sock       *websocket.Conn
	attempts   int
	retry      *time.Timer
	manual     bool
	connID     string
	openedAt   time.Time
	done       chan struct{}
	doneClosed bool

	writeMu sync.Mutex

	// overridable in tests
	backoff     func(attempt int) time.Duration
	maxAttempts int
}

// NewConn builds a connection manager. Nothing is dialed until Connect.
func NewConn(opts Options) *Conn {
	timeout := opts.HandshakeTimeout
	if timeout == 0 {
		timeout = defaultHandshakeTimeout
	}
	return &Conn{
		url:     opts.URL,
		groupID: opts.GroupID,
		emitter: opts.Emitter,
		dialer: &websocket.Dialer{
			HandshakeTimeout: timeout,
		},
		events:      make(chan Event, eventBufferLen),
		done:        make(chan struct{}),
		backoff:     backoffDelay,
		maxAttempts: defaultMaxAttempts,
	}
}

// Events returns the channel lifecycle and inbound events are published on.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// emit publishes an event without parking forever: a Close while the buffer
// is full and the consumer is gone unblocks the sender.
func (c *Conn) emit(ev Event) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	select {
	case c.events <- ev:
	case <-done:
	}
}

// State reports the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsOpen reports whether the socket is currently open.
func (c *Conn) IsOpen() bool {
	return c.State() == StateOpen
}

// Connect opens the socket. Idempotent: while Open or Connecting it returns
// nil without dialing a second transport. A pending reconnect timer is
// superseded. The returned error covers only the initial handshake; post-open
// failures flow through the event channel.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.stopRetryLocked()
	c.manual = false
	c.attempts = 0
	c.state = StateConnecting
	if c.doneClosed {
		c.done = make(chan struct{})
		c.doneClosed = false
	}
	c.mu.Unlock()

	return c.dial(ctx, false)
}

// dial performs one handshake attempt. The caller must have moved state to
// Connecting.
func (c *Conn) dial(ctx context.Context, resumed bool) error {
	ctx, span := otel.Tracer("groupchat-client/ws").Start(ctx, "ws.connect")
	defer span.End()

	sock, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		observability.IncWSEvent("ws_dial_error")
		return fmt.Errorf("dial group %s: %w", c.groupID, err)
	}

	c.mu.Lock()
	if c.manual {
		// Close raced the handshake; drop the fresh socket silently.
		c.state = StateClosed
		c.mu.Unlock()
		_ = sock.Close()
		return fmt.Errorf("dial group %s: connection closed during handshake", c.groupID)
	}
	c.sock = sock
	c.state = StateOpen
	c.attempts = 0
	c.connID = uuid.NewString()
	c.openedAt = time.Now()
	connID := c.connID
	c.mu.Unlock()

	observability.IncWSActive()
	if resumed {
		observability.IncReconnect()
		observability.IncWSEvent("ws_reconnect")
		c.emitter.Emit(ctx, "ws_reconnect", c.groupID, connID, 0, "")
	} else {
		observability.IncWSEvent("ws_connect")
		c.emitter.Emit(ctx, "ws_connect", c.groupID, connID, 0, "")
	}

	c.emit(Opened{Resumed: resumed})
	go c.readLoop(sock)
	return nil
}

func (c *Conn) readLoop(sock *websocket.Conn) {
	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			c.handleClose(sock, err)
			return
		}

		ev, derr := protocol.DecodeServerEvent(data)
		if derr != nil {
			log.Printf("group %s: dropping malformed frame: %v", c.groupID, derr)
			observability.IncWSEvent("ws_bad_frame")
			continue
		}
		if unk, ok := ev.(protocol.Unrecognized); ok {
			log.Printf("group %s: ignoring frame type %q", c.groupID, unk.Type)
			continue
		}
		c.emit(Received{Event: ev})
	}
}

func (c *Conn) handleClose(sock *websocket.Conn, err error) {
	c.mu.Lock()
	if c.sock != sock {
		// A newer socket superseded this one.
		c.mu.Unlock()
		return
	}
	c.sock = nil
	c.state = StateClosed
	manual := c.manual
	connID := c.connID
	lifetime := time.Since(c.openedAt)
	c.mu.Unlock()

	code, reason := closeDetails(err)

	observability.DecWSActive()
	observability.IncWSEvent("ws_disconnect")
	c.emitter.Emit(context.Background(), "ws_disconnect", c.groupID, connID, lifetime, reason)

	if manual {
		return
	}

	switch code {
	case CloseInvalidToken:
		c.fail(msgInvalidToken, connID)
		return
	case CloseRemovedFromGroup:
		c.fail(msgRemovedGroup, connID)
		return
	}

	c.emit(Closed{Code: code, Reason: reason})
	c.scheduleRetry()
}

func (c *Conn) fail(message, connID string) {
	observability.IncWSEvent("ws_error")
	c.emitter.Emit(context.Background(), "ws_error", c.groupID, connID, 0, message)
	c.emit(Failed{Message: message})
}

// scheduleRetry arms the backoff timer for the next attempt, or reports
// exhaustion once no attempts remain.
func (c *Conn) scheduleRetry() {
	c.mu.Lock()
	if c.manual {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.maxAttempts {
		connID := c.connID
		c.mu.Unlock()
		observability.IncWSEvent("ws_reconnect_exhausted")
		c.fail(msgRetriesSpent, connID)
		return
	}
	delay := c.backoff(c.attempts)
	c.attempts++
	attempt := c.attempts
	c.retry = time.AfterFunc(delay, c.redial)
	c.mu.Unlock()

	log.Printf("group %s: reconnect attempt %d in %s", c.groupID, attempt, delay)
}

func (c *Conn) redial() {
	c.mu.Lock()
	if c.manual || c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	timeout := c.dialer.HandshakeTimeout
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := c.dial(ctx, true); err != nil {
		log.Printf("group %s: reconnect failed: %v", c.groupID, err)
		c.scheduleRetry()
	}
}

// SendMessage writes a send_message frame. Returns false without error when
// the socket is not open or the write fails. Content is trimmed here; length
// limits are the session's job.
func (c *Conn) SendMessage(content string) bool {
	payload, err := protocol.EncodeSendMessage(strings.TrimSpace(content))
	if err != nil {
		return false
	}
	if !c.write(payload) {
		return false
	}
	observability.IncMessageSent()
	return true
}

// SendTyping writes a typing frame under the same contract as SendMessage.
func (c *Conn) SendTyping(isTyping bool) bool {
	payload, err := protocol.EncodeTyping(isTyping)
	if err != nil {
		return false
	}
	return c.write(payload)
}

func (c *Conn) write(payload []byte) bool {
	c.mu.Lock()
	sock := c.sock
	open := c.state == StateOpen
	c.mu.Unlock()
	if !open || sock == nil {
		return false
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = sock.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := sock.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.Printf("group %s: websocket write error: %v", c.groupID, err)
		return false
	}
	return true
}

// Close marks the disconnect as manual, cancels any pending reconnect and
// closes the transport. Safe to call repeatedly and before any Connect.
func (c *Conn) Close() {
	c.mu.Lock()
	c.manual = true
	c.stopRetryLocked()
	if !c.doneClosed {
		close(c.done)
		c.doneClosed = true
	}
	sock := c.sock
	c.mu.Unlock()

	if sock != nil {
		deadline := time.Now().Add(writeTimeout)
		_ = sock.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = sock.Close()
	}
}

func (c *Conn) stopRetryLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

// backoffDelay implements min(1s * 2^attempt, 10s).
func backoffDelay(attempt int) time.Duration {
	delay := baseReconnectDelay << attempt
	if delay > maxReconnectDelay {
		return maxReconnectDelay
	}
	return delay
}

func closeDetails(err error) (int, string) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code, closeErr.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}

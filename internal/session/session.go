// Package session composes the connection manager, the state registry and
// the REST history collaborator into the per-group chat session: initial
// history load, live updates, send/typing actions, reconnect, and backward
// pagination.
package session

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"groupchat-client/internal/models"
	"groupchat-client/internal/protocol"
	"groupchat-client/internal/store"
	"groupchat-client/internal/ws"
)

const (
	defaultPageSize   = 50
	maxMessageLength  = 1000
	typingIdleTimeout = 1200 * time.Millisecond
)

// Connector is the connection-manager surface the session drives.
// *ws.Conn satisfies it.
type Connector interface {
	Connect(ctx context.Context) error
	Events() <-chan ws.Event
	SendMessage(content string) bool
	SendTyping(isTyping bool) bool
	IsOpen() bool
	Close()
}

// HistoryFetcher is the REST collaborator for paginated history.
type HistoryFetcher interface {
	FetchMessages(ctx context.Context, groupID string, skip, limit int) ([]models.GroupChatMessage, error)
}

// Options configures a Session.
type Options struct {
	GroupID string
	// SelfID is the local account id; its own typing indicators are ignored.
	SelfID string
	// AutoLoadMessages fetches page zero during Start.
	AutoLoadMessages bool
	// PageSize is messages per history page. Zero means 50.
	PageSize int
	// Notify receives user-facing error text. Nil means log only.
	Notify func(message string)
	// OnMessage, when set, observes each live message after it is stored.
	OnMessage func(msg models.GroupChatMessage)
	// TypingIdle is the inactivity window before a synthetic typing stop.
	// Zero means 1200 ms.
	TypingIdle time.Duration
}

// Session owns the event loop for one group. It is the sole writer of that
// group's partition in the registry.
type Session struct {
	groupID   string
	selfID    string
	conn      Connector
	store     *store.Registry
	history   HistoryFetcher
	notify    func(string)
	onMessage func(models.GroupChatMessage)
	pageSize  int
	autoLoad  bool

	typingIdle time.Duration

	mu           sync.Mutex
	page         int
	hasMore      bool
	loading      bool
	typingTimer  *time.Timer
	remoteTyping map[string]*time.Timer
	closed       bool

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New builds a session around an existing connector and registry.
func New(conn Connector, registry *store.Registry, history HistoryFetcher, opts Options) *Session {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	typingIdle := opts.TypingIdle
	if typingIdle <= 0 {
		typingIdle = typingIdleTimeout
	}
	notify := opts.Notify
	if notify == nil {
		notify = func(message string) {
			log.Printf("group %s: %s", opts.GroupID, message)
		}
	}
	return &Session{
		groupID:      opts.GroupID,
		selfID:       opts.SelfID,
		conn:         conn,
		store:        registry,
		history:      history,
		notify:       notify,
		onMessage:    opts.OnMessage,
		pageSize:     pageSize,
		autoLoad:     opts.AutoLoadMessages,
		typingIdle:   typingIdle,
		remoteTyping: make(map[string]*time.Timer),
		done:         make(chan struct{}),
	}
}

// Start connects the socket, launches the event loop, and optionally loads
// the first history page.
func (s *Session) Start(ctx context.Context) error {
	s.store.SetConnectionStatus(s.groupID, models.ConnectionStatus{IsConnecting: true})
	if err := s.conn.Connect(ctx); err != nil {
		s.store.SetConnectionStatus(s.groupID, models.ConnectionStatus{LastError: err.Error()})
		s.notify("unable to join the group chat")
		return err
	}

	s.wg.Add(1)
	go s.run()

	if s.autoLoad {
		if err := s.loadInitial(ctx); err != nil {
			s.notify("failed to load messages")
		}
	}
	return nil
}

func (s *Session) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.conn.Events():
			s.apply(ev)
		}
	}
}

func (s *Session) apply(ev ws.Event) {
	switch ev := ev.(type) {
	case ws.Opened:
		s.store.SetConnectionStatus(s.groupID, models.ConnectionStatus{IsConnected: true})
	case ws.Closed:
		s.store.SetConnectionStatus(s.groupID, models.ConnectionStatus{LastError: ev.Reason})
	case ws.Failed:
		s.store.SetConnectionStatus(s.groupID, models.ConnectionStatus{LastError: ev.Message})
		s.notify(ev.Message)
	case ws.Received:
		s.applyFrame(ev.Event)
	}
}

func (s *Session) applyFrame(frame protocol.ServerEvent) {
	switch frame := frame.(type) {
	case protocol.GroupMessage:
		s.store.AddMessage(s.groupID, frame.Message)
		if s.onMessage != nil {
			s.onMessage(frame.Message)
		}
	case protocol.TypingIndicator:
		if frame.UserID == s.selfID {
			return
		}
		s.setRemoteTyping(frame.UserID, frame.Typing)
	case protocol.OnlineMembers:
		s.store.SetOnlineMembers(s.groupID, frame.Members)
	case protocol.MessageSent:
		// ack only, reserved
	case protocol.ServerError:
		s.notify(frame.Detail)
	}
}

// setRemoteTyping updates the typing set and arms the idle expiry so a peer
// that vanishes mid-composition does not stay "typing" forever.
func (s *Session) setRemoteTyping(userID string, typing bool) {
	s.store.SetTypingUser(s.groupID, userID, typing)

	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.remoteTyping[userID]; t != nil {
		t.Stop()
		delete(s.remoteTyping, userID)
	}
	if typing && !s.closed {
		s.remoteTyping[userID] = time.AfterFunc(s.typingIdle, func() {
			s.store.SetTypingUser(s.groupID, userID, false)
			s.mu.Lock()
			delete(s.remoteTyping, userID)
			s.mu.Unlock()
		})
	}
}

func (s *Session) loadInitial(ctx context.Context) error {
	msgs, err := s.history.FetchMessages(ctx, s.groupID, 0, s.pageSize)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.page = 0
	s.hasMore = len(msgs) == s.pageSize
	s.mu.Unlock()

	s.store.SetMessages(s.groupID, msgs)
	return nil
}

// LoadMoreMessages fetches the next older page and prepends it. Returns
// false when a fetch is already in flight, when no more pages exist, or on
// fetch failure. The page cursor only advances after a successful fetch.
func (s *Session) LoadMoreMessages(ctx context.Context) bool {
	s.mu.Lock()
	if s.loading || !s.hasMore || s.closed {
		s.mu.Unlock()
		return false
	}
	s.loading = true
	page := s.page
	s.mu.Unlock()

	msgs, err := s.history.FetchMessages(ctx, s.groupID, (page+1)*s.pageSize, s.pageSize)

	s.mu.Lock()
	s.loading = false
	if err != nil {
		s.mu.Unlock()
		s.notify("failed to load older messages")
		return false
	}
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.page = page + 1
	s.hasMore = len(msgs) == s.pageSize
	s.mu.Unlock()

	s.store.PrependMessages(s.groupID, msgs)
	return true
}

// SendMessage validates and dispatches a message. A successful send also
// clears the local typing state.
func (s *Session) SendMessage(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		s.notify("cannot send an empty message")
		return false
	}
	if utf8.RuneCountInString(trimmed) > maxMessageLength {
		s.notify("message is too long (1000 character limit)")
		return false
	}

	if !s.conn.SendMessage(trimmed) {
		s.notify("not connected to the group chat")
		return false
	}

	s.mu.Lock()
	hadTimer := s.typingTimer != nil
	if hadTimer {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	s.mu.Unlock()
	if hadTimer {
		s.conn.SendTyping(false)
	}
	return true
}

// SendTypingIndicator forwards the typing state. Each "typing" call re-arms
// the idle timer that fires a synthetic stop after 1200 ms of inactivity.
func (s *Session) SendTypingIndicator(isTyping bool) bool {
	if !s.conn.IsOpen() {
		return false
	}
	if !s.conn.SendTyping(isTyping) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	if isTyping && !s.closed {
		s.typingTimer = time.AfterFunc(s.typingIdle, func() {
			s.mu.Lock()
			s.typingTimer = nil
			s.mu.Unlock()
			s.conn.SendTyping(false)
		})
	}
	return true
}

// Reconnect re-opens the socket after a terminal failure.
func (s *Session) Reconnect(ctx context.Context) error {
	s.store.SetConnectionStatus(s.groupID, models.ConnectionStatus{IsConnecting: true})
	if err := s.conn.Connect(ctx); err != nil {
		s.store.SetConnectionStatus(s.groupID, models.ConnectionStatus{LastError: err.Error()})
		s.notify("reconnect failed")
		return err
	}
	return nil
}

// ClearMessages empties this group's history in the registry.
func (s *Session) ClearMessages() {
	s.store.ClearMessages(s.groupID)
}

// HasMoreMessages reports whether older pages may exist.
func (s *Session) HasMoreMessages() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// CurrentPage returns the last fully loaded page index.
func (s *Session) CurrentPage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// Close stops the event loop, cancels timers and closes the socket. Group
// data stays in the registry so a later session for the same group resumes
// where this one left off.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		if s.typingTimer != nil {
			s.typingTimer.Stop()
			s.typingTimer = nil
		}
		for id, t := range s.remoteTyping {
			t.Stop()
			delete(s.remoteTyping, id)
		}
		s.mu.Unlock()

		close(s.done)
		s.conn.Close()
		s.wg.Wait()
	})
}

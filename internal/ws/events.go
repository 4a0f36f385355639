package ws

import "groupchat-client/internal/protocol"

// Event is what a Conn publishes on its event channel. The session facade is
// the single consumer; it applies events to the group's state partition.
type Event interface {
	connEvent()
}

// Opened fires on every successful open. Resumed marks opens won back by the
// reconnect loop, as opposed to the first connect.
type Opened struct {
	Resumed bool
}

// Closed fires on a retryable disconnect, before the reconnect attempt.
// Manual disconnects and fatal close codes never produce it.
type Closed struct {
	Code   int
	Reason string
}

// Failed is terminal for the connection: a fatal close code or reconnect
// exhaustion. No further attempts are scheduled.
type Failed struct {
	Message string
}

// Received wraps a decoded inbound frame.
type Received struct {
	Event protocol.ServerEvent
}

func (Opened) connEvent()   {}
func (Closed) connEvent()   {}
func (Failed) connEvent()   {}
func (Received) connEvent() {}

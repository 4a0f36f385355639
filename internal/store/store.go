// Package store holds the in-memory per-group chat state: message history,
// typing set, presence list, connection status.
package store

import (
	"sort"
	"sync"

	"groupchat-client/internal/models"
)

type groupState struct {
	messages []models.GroupChatMessage
	seen     map[string]struct{}
	typing   map[string]struct{}
	online   []string
	status   models.ConnectionStatus
}

func newGroupState() *groupState {
	return &groupState{
		seen:   make(map[string]struct{}),
		typing: make(map[string]struct{}),
	}
}

// Registry is the keyed store over group ids. Group state is created on
// first access and lives until ClearGroupData/ClearAll; closing a group view
// deliberately does not drop it, so scroll position survives navigation.
type Registry struct {
	mu     sync.RWMutex
	groups map[string]*groupState
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{groups: make(map[string]*groupState)}
}

func (r *Registry) group(groupID string) *groupState {
	g, ok := r.groups[groupID]
	if !ok {
		g = newGroupState()
		r.groups[groupID] = g
	}
	return g
}

// GetMessages returns a copy of the group's message list, oldest first.
// Unknown groups yield an empty list.
func (r *Registry) GetMessages(groupID string) []models.GroupChatMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[groupID]
	if !ok {
		return []models.GroupChatMessage{}
	}
	out := make([]models.GroupChatMessage, len(g.messages))
	copy(out, g.messages)
	return out
}

// GetTypingUsers returns the ids currently typing, sorted for stable output.
func (r *Registry) GetTypingUsers(groupID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[groupID]
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(g.typing))
	for id := range g.typing {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// GetOnlineMembers returns a copy of the presence list.
func (r *Registry) GetOnlineMembers(groupID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[groupID]
	if !ok {
		return []string{}
	}
	out := make([]string, len(g.online))
	copy(out, g.online)
	return out
}

// GetConnectionStatus returns the group's status, zero for unknown groups.
func (r *Registry) GetConnectionStatus(groupID string) models.ConnectionStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[groupID]
	if !ok {
		return models.ConnectionStatus{}
	}
	return g.status
}

// AddMessage appends a live message. Redelivered message ids are dropped so
// a reconnect replay cannot duplicate history.
func (r *Registry) AddMessage(groupID string, msg models.GroupChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.group(groupID)
	if _, dup := g.seen[msg.MessageID]; dup {
		return
	}
	g.seen[msg.MessageID] = struct{}{}
	g.messages = append(g.messages, msg)
}

// SetMessages wholesale-replaces the list, used on first page load.
func (r *Registry) SetMessages(groupID string, msgs []models.GroupChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.group(groupID)
	g.messages = make([]models.GroupChatMessage, 0, len(msgs))
	g.seen = make(map[string]struct{}, len(msgs))
	for _, msg := range msgs {
		if _, dup := g.seen[msg.MessageID]; dup {
			continue
		}
		g.seen[msg.MessageID] = struct{}{}
		g.messages = append(g.messages, msg)
	}
}

// PrependMessages places an older history page before the existing list,
// preserving the caller's order and skipping ids already present.
func (r *Registry) PrependMessages(groupID string, msgs []models.GroupChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.group(groupID)
	page := make([]models.GroupChatMessage, 0, len(msgs))
	for _, msg := range msgs {
		if _, dup := g.seen[msg.MessageID]; dup {
			continue
		}
		g.seen[msg.MessageID] = struct{}{}
		page = append(page, msg)
	}
	g.messages = append(page, g.messages...)
}

// ClearMessages empties the message list but keeps typing/presence/status.
func (r *Registry) ClearMessages(groupID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.groups[groupID]; ok {
		g.messages = nil
		g.seen = make(map[string]struct{})
	}
}

// ClearGroupData removes every trace of one group.
func (r *Registry) ClearGroupData(groupID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.groups, groupID)
}

// ClearAll resets the registry, used on logout or feature teardown.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups = make(map[string]*groupState)
}

// SetTypingUser toggles a member's membership in the typing set.
func (r *Registry) SetTypingUser(groupID, userID string, isTyping bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.group(groupID)
	if isTyping {
		g.typing[userID] = struct{}{}
	} else {
		delete(g.typing, userID)
	}
}

// SetOnlineMembers wholesale-replaces the presence list.
func (r *Registry) SetOnlineMembers(groupID string, members []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.group(groupID)
	g.online = make([]string, len(members))
	copy(g.online, members)
}

// SetConnectionStatus wholesale-replaces the status record.
func (r *Registry) SetConnectionStatus(groupID string, status models.ConnectionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.group(groupID).status = status
}

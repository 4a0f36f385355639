package models

import "time"

// Sender carries the denormalized account info attached to each message.
type Sender struct {
	AccountID string `json:"account_id"`
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	Avatar    string `json:"avatar"`
}

// GroupChatMessage is a message delivered in a group. Immutable once
// received; the server is the only writer.
type GroupChatMessage struct {
	MessageID string    `json:"message_id"`
	GroupID   string    `json:"group_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	Status    string    `json:"status"`
	IsDeleted bool      `json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Sender    Sender    `json:"sender"`
}

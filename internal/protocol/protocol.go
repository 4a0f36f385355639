// Package protocol implements the group-chat wire codec: outgoing client
// intents and the tagged union of inbound server frames.
package protocol

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"groupchat-client/internal/models"
)

// Inbound frame tags.
const (
	TypeGroupMessage    = "group_message"
	TypeTypingIndicator = "typing_indicator"
	TypeOnlineMembers   = "online_members"
	TypeMessageSent     = "message_sent"
	TypeError           = "error"
)

// Outbound frame tags.
const (
	TypeSendMessage = "send_message"
	TypeTyping      = "typing"
)

// DefaultErrorDetail is surfaced when an error frame carries no detail.
const DefaultErrorDetail = "chat server reported an error"

// ServerEvent is the closed union of decoded inbound frames.
type ServerEvent interface {
	serverEvent()
}

// GroupMessage delivers a live message for the group.
type GroupMessage struct {
	Message models.GroupChatMessage
}

// TypingIndicator reports a member starting or stopping composition.
type TypingIndicator struct {
	UserID string
	Typing bool
}

// OnlineMembers wholesale-replaces the group presence list.
type OnlineMembers struct {
	Members []string
}

// MessageSent acknowledges a send. Carries no effect today.
type MessageSent struct {
	MessageID string
}

// ServerError surfaces a server-side failure for the session.
type ServerError struct {
	Detail string
}

// Unrecognized captures frames with an unknown tag so the caller can log and
// drop them instead of falling through generic handling.
type Unrecognized struct {
	Type string
}

func (GroupMessage) serverEvent()    {}
func (TypingIndicator) serverEvent() {}
func (OnlineMembers) serverEvent()   {}
func (MessageSent) serverEvent()     {}
func (ServerError) serverEvent()     {}
func (Unrecognized) serverEvent()    {}

// DecodeServerEvent parses one inbound frame. A malformed payload returns an
// error so the caller drops that single frame; an unknown tag decodes into
// Unrecognized without error.
func DecodeServerEvent(data []byte) (ServerEvent, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}

	switch head.Type {
	case TypeGroupMessage:
		var frame struct {
			Data *models.GroupChatMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("group_message payload: %w", err)
		}
		if frame.Data == nil {
			return nil, errors.New("group_message frame missing data")
		}
		return GroupMessage{Message: *frame.Data}, nil

	case TypeTypingIndicator:
		var frame struct {
			UserID   *string `json:"user_id"`
			IsTyping *bool   `json:"is_typing"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("typing_indicator payload: %w", err)
		}
		if frame.UserID == nil || frame.IsTyping == nil {
			return nil, errors.New("typing_indicator frame missing user_id or is_typing")
		}
		return TypingIndicator{UserID: *frame.UserID, Typing: *frame.IsTyping}, nil

	case TypeOnlineMembers:
		var frame struct {
			Members []string `json:"members"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("online_members payload: %w", err)
		}
		if frame.Members == nil {
			frame.Members = []string{}
		}
		return OnlineMembers{Members: frame.Members}, nil

	case TypeMessageSent:
		var frame struct {
			MessageID string `json:"message_id"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("message_sent payload: %w", err)
		}
		return MessageSent{MessageID: frame.MessageID}, nil

	case TypeError:
		var frame struct {
			Detail string `json:"detail"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("error payload: %w", err)
		}
		if frame.Detail == "" {
			frame.Detail = DefaultErrorDetail
		}
		return ServerError{Detail: frame.Detail}, nil

	default:
		return Unrecognized{Type: head.Type}, nil
	}
}

type sendMessageFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type typingFrame struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"is_typing"`
}

// EncodeSendMessage builds the outbound send_message frame.
func EncodeSendMessage(content string) ([]byte, error) {
	return json.Marshal(sendMessageFrame{Type: TypeSendMessage, Content: content})
}

// EncodeTyping builds the outbound typing frame.
func EncodeTyping(isTyping bool) ([]byte, error) {
	return json.Marshal(typingFrame{Type: TypeTyping, IsTyping: isTyping})
}

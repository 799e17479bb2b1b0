// Package wire defines the JSON payloads exchanged over the persistent
// messaging connection. Field names follow the contract expected by the
// Carnet de Santé web client (camelCase).
package wire

import (
	"encoding/json"
	"time"
)

// Client→server frame types.
const (
	FrameJoinRoom    = "join_room"
	FrameLeaveRoom   = "leave_room"
	FrameSendMessage = "send_message"
	FrameMarkAsRead  = "mark_as_read"
	FrameTypingStart = "typing_start"
	FrameTypingStop  = "typing_stop"
)

// Server→client event types.
const (
	EventConnectionEstablished = "connection_established"
	EventRoomJoined            = "room_joined"
	EventRoomLeft              = "room_left"
	EventUserJoinedRoom        = "user_joined_room"
	EventNewMessage            = "new_message"
	EventMessagesRead          = "messages_read"
	EventTypingStart           = "typing_start"
	EventTypingStop            = "typing_stop"
	EventError                 = "error"
)

// Frame is a client→server command. Content is only set for send_message.
type Frame struct {
	Type           string `json:"type"`
	ConversationID int64  `json:"conversationId"`
	Content        string `json:"content,omitempty"`
}

// MessagePayload is the message shape carried inside new_message events and
// returned by the history endpoint.
type MessagePayload struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	SenderID       int64     `json:"senderId"`
	Content        string    `json:"content"`
	SentAt         time.Time `json:"sentAt"`
	IsRead         bool      `json:"isRead"`
}

// EventHeader is the minimal envelope every server event carries; clients
// decode it first to pick the concrete event type.
type EventHeader struct {
	Type string `json:"type"`
}

// ConnectionEstablishedEvent confirms a successful handshake.
type ConnectionEstablishedEvent struct {
	Type   string `json:"type"`
	UserID int64  `json:"userId"`
}

// RoomEvent acknowledges room_joined/room_left to the caller and announces
// user_joined_room to other members.
type RoomEvent struct {
	Type           string `json:"type"`
	ConversationID int64  `json:"conversationId"`
	UserID         int64  `json:"userId"`
}

// NewMessageEvent carries a freshly persisted message to joined members.
type NewMessageEvent struct {
	Type           string         `json:"type"`
	ConversationID int64          `json:"conversationId"`
	Message        MessagePayload `json:"message"`
}

// MessagesReadEvent announces that userId has read the conversation.
// Safe to apply regardless of arrival order relative to new_message.
type MessagesReadEvent struct {
	Type           string `json:"type"`
	ConversationID int64  `json:"conversationId"`
	UserID         int64  `json:"userId"`
}

// TypingEvent signals typing_start/typing_stop for a user in a conversation.
type TypingEvent struct {
	Type           string `json:"type"`
	ConversationID int64  `json:"conversationId"`
	UserID         int64  `json:"userId"`
	UserName       string `json:"userName,omitempty"`
}

// ErrorEvent reports a rejected or failed operation. Terminal: the user must
// re-attempt the action, the relay never retries on their behalf.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewError builds an error event.
func NewError(msg string) ErrorEvent {
	return ErrorEvent{Type: EventError, Message: msg}
}

// DecodeType extracts the event type from a raw server payload.
func DecodeType(data []byte) (string, error) {
	var h EventHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return "", err
	}
	return h.Type, nil
}

package domain

import "encoding/json"

// Event types from client.
const (
	EventSendMessage = "send-message"
	EventTypingStart = "typing-start"
	EventTypingStop  = "typing-stop"
)

// Event types to client.
const (
	EventRosterUpdate      = "roster-update"
	EventNewMessage        = "new-message"
	EventUserTyping        = "user-typing"
	EventUserStoppedTyping = "user-stopped-typing"
	EventProtocolError     = "protocol-error"
)

// Envelope is the wire framing for every WebSocket event. Inbound payloads
// stay raw until the event type selects a concrete payload struct.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event is an outbound event before JSON encoding.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Client -> Server payloads

type SendMessagePayload struct {
	Content string `json:"content" validate:"required,max=1000"`
}

// Server -> Client payloads

type TypingPayload struct {
	Username string `json:"username"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func NewRosterUpdate(roster []Identity) *Event {
	return &Event{Type: EventRosterUpdate, Data: roster}
}

func NewMessageEvent(msg *ChatMessage) *Event {
	return &Event{Type: EventNewMessage, Data: msg}
}

func NewUserTyping(username string) *Event {
	return &Event{Type: EventUserTyping, Data: TypingPayload{Username: username}}
}

func NewUserStoppedTyping(username string) *Event {
	return &Event{Type: EventUserStoppedTyping, Data: TypingPayload{Username: username}}
}

func NewProtocolError(message string) *Event {
	return &Event{Type: EventProtocolError, Data: ErrorPayload{Message: message}}
}

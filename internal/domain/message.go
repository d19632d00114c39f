package domain

import "time"

// ChatMessage is a persisted chat message with its sender resolved to
// display form. The ID is assigned by the message store, never by clients.
type ChatMessage struct {
	ID        string    `json:"id"`
	Sender    Identity  `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

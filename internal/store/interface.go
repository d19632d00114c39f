package store

import (
	"context"
	"time"

	"github.com/nelsonmaranda/tubonge-chat-app/internal/domain"
)

// MessageStore is the durable home of chat messages. A message is broadcast
// only after Create succeeds, so everything clients ever see is recoverable
// from ListRecent.
type MessageStore interface {
	// Create persists the message and returns the store-assigned id.
	Create(ctx context.Context, sender domain.Identity, content string, createdAt time.Time) (string, error)
	// ReadBack fetches a message by id with its sender resolved to display form.
	ReadBack(ctx context.Context, id string) (*domain.ChatMessage, error)
	// ListRecent returns up to limit of the most recent messages, oldest first.
	ListRecent(ctx context.Context, limit int) ([]domain.ChatMessage, error)
	Close()
}

package service

import (
	"context"

	"github.com/nelsonmaranda/tubonge-chat-app/internal/domain"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/hub"
)

// ChatService owns the protocol semantics behind an admitted connection:
// presence announcements, message intake, typing relays, and disconnect
// cleanup.
type ChatService interface {
	HandleConnect(ctx context.Context, client *hub.Client, identity domain.Identity) error
	HandleSendMessage(ctx context.Context, client *hub.Client, content string) error
	HandleTypingStart(ctx context.Context, client *hub.Client) error
	HandleTypingStop(ctx context.Context, client *hub.Client) error
	HandleDisconnect(ctx context.Context, client *hub.Client) error
}

// HistoryService serves replay data for clients joining the conversation.
type HistoryService interface {
	Recent(ctx context.Context, limit int) ([]domain.ChatMessage, error)
}

package cache

import (
	"context"
	"errors"
	"time"

	"github.com/nelsonmaranda/tubonge-chat-app/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// RecentCache sits in front of the message store for replay reads. Entries
// are short-lived and invalidated whenever a new message is persisted.
type RecentCache interface {
	Get(ctx context.Context, key string) ([]domain.ChatMessage, error)
	Set(ctx context.Context, key string, messages []domain.ChatMessage, ttl time.Duration) error
	// Invalidate drops every cached replay page.
	Invalidate(ctx context.Context) error
	BuildKey(limit int) string
	Close() error
}

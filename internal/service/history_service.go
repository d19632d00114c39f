package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nelsonmaranda/tubonge-chat-app/internal/cache"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/domain"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/log"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/store"
)

type historyService struct {
	store    store.MessageStore
	cache    cache.RecentCache
	cacheTTL time.Duration
	sf       singleflight.Group
}

func NewHistoryService(msgStore store.MessageStore, recentCache cache.RecentCache, cacheTTL time.Duration) HistoryService {
	return &historyService{
		store:    msgStore,
		cache:    recentCache,
		cacheTTL: cacheTTL,
	}
}

// Recent returns the latest messages oldest-first, in the same shape the
// new-message broadcast uses, so clients can replay them on initial load.
func (s *historyService) Recent(ctx context.Context, limit int) ([]domain.ChatMessage, error) {
	key := s.cache.BuildKey(limit)

	// Collapse concurrent misses for the same page into one store read.
	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		return s.fetchWithCache(ctx, key, limit)
	})
	if err != nil {
		return nil, err
	}

	messages, ok := result.([]domain.ChatMessage)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	return messages, nil
}

func (s *historyService) fetchWithCache(ctx context.Context, key string, limit int) ([]domain.ChatMessage, error) {
	cached, err := s.cache.Get(ctx, key)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		log.Ctx(ctx).Warn().Err(err).Msg("cache get error")
	}

	messages, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}

	if err := s.cache.Set(ctx, key, messages, s.cacheTTL); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("cache set error")
	}

	return messages, nil
}

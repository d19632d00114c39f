package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nelsonmaranda/tubonge-chat-app/internal/cache"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/domain"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/hub"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/log"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/registry"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/store"
)

var (
	// ErrInvalidContent rejects empty, whitespace-only, or oversized messages.
	ErrInvalidContent = errors.New("invalid message content")
	// ErrStorageFailure means the message could not be durably recorded, so
	// it was not broadcast.
	ErrStorageFailure = errors.New("message storage failure")
)

type chatService struct {
	hub      *hub.Hub
	registry *registry.Registry
	store    store.MessageStore
	cache    cache.RecentCache
	validate *validator.Validate
}

func NewChatService(
	h *hub.Hub,
	reg *registry.Registry,
	msgStore store.MessageStore,
	recentCache cache.RecentCache,
) ChatService {
	return &chatService{
		hub:      h,
		registry: reg,
		store:    msgStore,
		cache:    recentCache,
		validate: validator.New(),
	}
}

// HandleConnect admits a verified connection: it records presence, sends the
// newly joined client its initial roster, and announces the updated roster to
// everyone else. If the identity already had a live connection, that older
// connection is displaced and closed (last connection wins).
func (s *chatService) HandleConnect(ctx context.Context, c *hub.Client, identity domain.Identity) error {
	if !c.Session.Authenticate(identity) {
		return fmt.Errorf("session %s is not awaiting authentication", c.ID)
	}

	roster, displaced := s.registry.Register(identity, c)
	if displaced != nil {
		if old, ok := displaced.(*hub.Client); ok {
			log.L().Info().
				Str(log.FieldUserID, identity.ID).
				Str(log.FieldSessionID, old.ID).
				Msg("displacing earlier connection for identity")
			s.hub.Unregister(old)
			old.Close()
		}
	}

	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldUserID, identity.ID).
		Str(log.FieldUsername, identity.Username).
		Str(log.FieldSessionID, c.ID).
		Msg("user connected")

	// The new client sees the roster immediately; everyone else learns of the
	// change through the broadcast.
	if err := s.hub.SendTo(c, domain.NewRosterUpdate(roster)); err != nil {
		return err
	}
	return s.hub.BroadcastOthers(c, domain.NewRosterUpdate(roster))
}

// HandleSendMessage validates, persists, and republishes a chat message. The
// sender identity is taken from the session, never from the payload. A
// message that cannot be durably recorded is never broadcast.
func (s *chatService) HandleSendMessage(ctx context.Context, c *hub.Client, content string) error {
	identity := c.Session.Identity()

	if err := s.validateContent(content); err != nil {
		s.hub.SendTo(c, domain.NewProtocolError("message must be 1-1000 characters and not blank"))
		return err
	}

	createdAt := time.Now().UTC()
	id, err := s.store.Create(ctx, identity, content, createdAt)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldUserID, identity.ID).Msg("failed to persist message")
		s.hub.SendTo(c, domain.NewProtocolError("failed to send message"))
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	msg, err := s.store.ReadBack(ctx, id)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldUserID, identity.ID).Msg("failed to read back message")
		s.hub.SendTo(c, domain.NewProtocolError("failed to send message"))
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	if err := s.cache.Invalidate(ctx); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to invalidate recent cache")
	}

	// Everyone gets the same broadcast, the sender included: clients render
	// their own messages from the server echo, nothing else.
	return s.hub.BroadcastAll(domain.NewMessageEvent(msg))
}

// HandleTypingStart relays an ephemeral typing signal to everyone except the
// sender. No server-side typing state is kept; recipients expire the
// indicator locally.
func (s *chatService) HandleTypingStart(ctx context.Context, c *hub.Client) error {
	identity := c.Session.Identity()
	return s.hub.BroadcastOthers(c, domain.NewUserTyping(identity.Username))
}

// HandleTypingStop is idempotent: relaying a stop for a user who never
// started typing simply clears nothing on the receivers.
func (s *chatService) HandleTypingStop(ctx context.Context, c *hub.Client) error {
	identity := c.Session.Identity()
	return s.hub.BroadcastOthers(c, domain.NewUserStoppedTyping(identity.Username))
}

// HandleDisconnect removes presence and announces the shrunken roster to
// whoever remains. Idempotence comes from the registry, not the session: the
// session may already be Closed (eviction, displacement) when the read pump
// unwinds, but only the connection currently bound to the identity can
// produce a removal, so duplicate and stale disconnects change nothing.
func (s *chatService) HandleDisconnect(ctx context.Context, c *hub.Client) error {
	c.Session.Close()

	identity := c.Session.Identity()
	if identity.ID == "" {
		return nil
	}

	roster, removed := s.registry.Unregister(identity.ID, c)
	if !removed {
		return nil
	}

	log.Ctx(ctx).Info().
		Str(log.FieldUserID, identity.ID).
		Str(log.FieldUsername, identity.Username).
		Str(log.FieldSessionID, c.ID).
		Msg("user disconnected")

	// The departing client is already out of the hub, so "all" is everyone
	// remaining.
	return s.hub.BroadcastAll(domain.NewRosterUpdate(roster))
}

func (s *chatService) validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrInvalidContent
	}
	payload := domain.SendMessagePayload{Content: content}
	if err := s.validate.Struct(payload); err != nil {
		return ErrInvalidContent
	}
	return nil
}

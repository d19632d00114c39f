package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nelsonmaranda/tubonge-chat-app/internal/auth"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/config"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/domain"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/hub"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/log"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler admits WebSocket connections. The credential is checked before
// the upgrade, so a failed verification rejects the connection attempt
// itself; an unauthenticated socket never exists.
type WSHandler struct {
	hub      *hub.Hub
	service  service.ChatService
	verifier *auth.Verifier
	wsCfg    config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, svc service.ChatService, verifier *auth.Verifier, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:      h,
		service:  svc,
		verifier: verifier,
		wsCfg:    wsCfg,
	}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.HandleWebSocket)
}

func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	identity, err := h.verifier.Verify(credentialFrom(c))
	if err != nil {
		status := http.StatusUnauthorized
		msg := "invalid credential"
		if errors.Is(err, auth.ErrMissingCredential) {
			msg = "missing credential"
		}
		c.AbortWithStatusJSON(status, gin.H{"error": msg})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Ctx(c.Request.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)

	h.hub.Register(client)
	go client.WritePump()

	// The upgraded connection outlives the HTTP exchange, whose context is
	// canceled once this handler returns. Keep the request-scoped logger but
	// detach from the request's cancelation.
	ctx := log.WithLogger(context.Background(), log.Ctx(c.Request.Context()))

	if err := h.service.HandleConnect(ctx, client, identity); err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldSessionID, client.ID).Msg("connect handling failed")
		h.teardown(ctx, client)
		return
	}

	// Activate succeeds exactly once per session: event handlers are attached
	// here and never re-attached, so a reconnect always comes in as a fresh
	// client and can never double-deliver inbound events.
	if !client.Session.Activate() {
		log.Ctx(ctx).Error().Str(log.FieldSessionID, client.ID).Msg("session not activatable")
		h.teardown(ctx, client)
		return
	}

	go func() {
		client.ReadPump(func(rc *hub.Client, raw []byte) {
			h.handleEvent(ctx, rc, raw)
		})
		if err := h.service.HandleDisconnect(ctx, client); err != nil {
			log.Ctx(ctx).Error().Err(err).Str(log.FieldSessionID, client.ID).Msg("disconnect handling failed")
		}
	}()
}

// teardown unwinds a partially admitted connection, including any presence
// entry HandleConnect already registered for it.
func (h *WSHandler) teardown(ctx context.Context, client *hub.Client) {
	h.hub.Unregister(client)
	client.Close()
	if err := h.service.HandleDisconnect(ctx, client); err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldSessionID, client.ID).Msg("disconnect handling failed")
	}
}

func (h *WSHandler) handleEvent(ctx context.Context, c *hub.Client, raw []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.hub.SendTo(c, domain.NewProtocolError("invalid event format"))
		return
	}

	if !c.Session.IsActive() {
		h.hub.SendTo(c, domain.NewProtocolError("session is not active"))
		return
	}

	switch env.Type {
	case domain.EventSendMessage:
		var payload domain.SendMessagePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			h.hub.SendTo(c, domain.NewProtocolError("invalid send-message payload"))
			return
		}
		if err := h.service.HandleSendMessage(ctx, c, payload.Content); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str(log.FieldSessionID, c.ID).Str(log.FieldEvent, env.Type).Msg("send-message rejected")
		}

	case domain.EventTypingStart:
		if err := h.service.HandleTypingStart(ctx, c); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str(log.FieldSessionID, c.ID).Msg("typing-start relay failed")
		}

	case domain.EventTypingStop:
		if err := h.service.HandleTypingStop(ctx, c); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str(log.FieldSessionID, c.ID).Msg("typing-stop relay failed")
		}

	default:
		h.hub.SendTo(c, domain.NewProtocolError("unknown event type"))
	}
}

// credentialFrom reads the bearer credential supplied at handshake time,
// either as a token query parameter or an Authorization header.
func credentialFrom(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return ""
}

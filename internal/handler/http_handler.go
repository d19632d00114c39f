package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nelsonmaranda/tubonge-chat-app/internal/config"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/domain"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/log"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/service"
)

// HTTPHandler serves the replay endpoint consumed by clients on initial load,
// plus the health check.
type HTTPHandler struct {
	history service.HistoryService
	cfg     config.HistoryConfig
}

func NewHTTPHandler(history service.HistoryService, cfg config.HistoryConfig) *HTTPHandler {
	return &HTTPHandler{
		history: history,
		cfg:     cfg,
	}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.GET("/messages", h.GetRecentMessages)
	}

	r.GET("/health", h.HealthCheck)
}

func (h *HTTPHandler) GetRecentMessages(c *gin.Context) {
	limit := h.cfg.DefaultLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
		if limit > h.cfg.MaxLimit {
			limit = h.cfg.MaxLimit
		}
	}

	messages, err := h.history.Recent(c.Request.Context(), limit)
	if err != nil {
		log.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to get recent messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get messages"})
		return
	}

	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

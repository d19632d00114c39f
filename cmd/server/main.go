package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nelsonmaranda/tubonge-chat-app/internal/auth"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/cache"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/config"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/handler"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/hub"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/log"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/registry"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/service"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log)
	logger := log.L()
	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting tubonge chat server")

	// Persistence must be reachable at startup; per-request storage errors
	// later are never process-fatal.
	messageStore, err := store.NewCassandraStore(cfg.Cassandra)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to cassandra")
	}
	defer messageStore.Close()
	logger.Info().Strs("hosts", cfg.Cassandra.Hosts).Msg("connected to cassandra")

	recentCache, err := cache.NewRedisRecentCache(cfg.Redis, "chat:recent")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer recentCache.Close()
	logger.Info().Str("address", cfg.Redis.Address).Msg("connected to redis")

	verifier := auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer)

	presence := registry.New()
	wsHub := hub.NewHub()
	go wsHub.Run()

	chatSvc := service.NewChatService(wsHub, presence, messageStore, recentCache)
	historySvc := service.NewHistoryService(messageStore, recentCache, cfg.History.CacheTTL)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(log.GinMiddleware(logger), gin.Recovery())

	handler.NewWSHandler(wsHub, chatSvc, verifier, cfg.WebSocket).RegisterRoutes(router)
	handler.NewHTTPHandler(historySvc, cfg.History).RegisterRoutes(router)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("stopped")
}

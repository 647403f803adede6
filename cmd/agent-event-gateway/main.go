package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/firestore"
	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"

	"agent-event-gateway/internal/config"
	"agent-event-gateway/internal/handlers"
	"agent-event-gateway/internal/middleware"
	"agent-event-gateway/internal/services"
)

func main() {
	cfg := config.Load()

	setupLogging(cfg)
	gin.SetMode(cfg.GinMode)

	ctx := context.Background()

	slog.Info("Connecting to Firestore", "project_id", cfg.FirestoreProjectID, "database_id", cfg.FirestoreDatabaseID)
	firestoreClient, err := firestore.NewClientWithDatabase(ctx, cfg.FirestoreProjectID, cfg.FirestoreDatabaseID)
	if err != nil {
		slog.Error("Failed to create Firestore client", "component", "startup", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := firestoreClient.Close(); err != nil {
			slog.Error("Error closing Firestore client", "component", "shutdown", "error", err)
		}
	}()

	slackClient := slack.New(cfg.SlackBotToken)

	store := services.NewFirestoreConversationStore(firestoreClient)
	notifier := services.NewHTTPAgentNotifier(cfg.AgentRuntimeURL, cfg.AgentAPIKey, nil)
	resolver := services.NewEntityResolver(slackClient)
	fileFetcher := services.NewFileFetcher(nil, cfg.SlackBotToken, cfg.AllowedFileTypes, cfg.MaxFileBytes)
	extractor := services.NewMetadataExtractor(resolver, fileFetcher)

	githubHandler := handlers.NewGitHubWebhookHandler(store, notifier, cfg.GitHubWebhookSecret, cfg.GitHubBotLogin)
	slackHandler := handlers.NewSlackEventsHandler(extractor, notifier, cfg.SlackSigningSecret, cfg.SlackBotUserID)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logging())

	router.POST("/webhooks/github", githubHandler.HandleWebhook)
	router.POST("/webhooks/slack", slackHandler.HandleEvent)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	slog.Info("Starting server", "component", "server", "port", cfg.Port)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "component", "server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...", "component", "server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "component", "server", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited gracefully", "component", "server")
}

func setupLogging(cfg *config.Config) {
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var logger *slog.Logger
	if cfg.GinMode != "release" {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	}
	slog.SetDefault(logger)
}

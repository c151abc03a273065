package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"social_messenger/internal/config"
	"social_messenger/internal/handler"
	"social_messenger/internal/middleware"
	"social_messenger/internal/realtime"
	"social_messenger/internal/repository"
	"social_messenger/internal/service"
	"social_messenger/internal/storage"
	"social_messenger/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	appLogger := logger.New(cfg.Log.Level)

	// Подключение к PostgreSQL
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", "error", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		appLogger.Fatal("Failed to ping database", "error", err)
	}
	appLogger.Info("Database connection established")

	// Подключение к Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		appLogger.Fatal("Failed to connect to Redis", "error", err)
	}
	appLogger.Info("Redis connection established")

	// Хранилище вложений
	store, err := storage.NewLocalStore(cfg.Storage, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize object store", "error", err)
	}

	// Инициализация репозиториев
	repos := repository.NewRepositories(dbPool, rdb, appLogger)

	// Presence и доставка realtime-событий
	registry := realtime.NewRegistry()
	rtRouter := realtime.NewRouter(registry, appLogger)

	// Инициализация сервисов
	services := service.NewServices(repos, store, rtRouter, cfg, appLogger)

	// Инициализация middleware
	authMiddleware := middleware.NewAuthMiddleware(services.Auth, appLogger)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(services.RateLimit, appLogger)

	// Инициализация handlers
	handlers := handler.NewHandlers(services, registry, rtRouter, cfg, appLogger)

	// Настройка роутера
	router := setupRouter(handlers, authMiddleware, rateLimitMiddleware, cfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		appLogger.Info("Starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Fatal("Server forced to shutdown", "error", err)
	}

	appLogger.Info("Server exited")
}

func setupRouter(
	handlers *handler.Handlers,
	authMiddleware *middleware.AuthMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	cfg *config.Config,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.ErrorHandler())

	// Health check
	router.GET("/health", handlers.Health.Check)

	sendLimit := rateLimitMiddleware.Limit(cfg.RateLimit.SendLimit, cfg.RateLimit.SendWindow)

	// API v1
	v1 := router.Group("/api/v1")
	{
		messages := v1.Group("/messages")
		messages.Use(authMiddleware.RequireAuth())
		{
			// Беседы
			messages.POST("/conversations/start", handlers.Conversation.StartConversation)
			messages.GET("/conversations", handlers.Conversation.GetConversations)
			messages.DELETE("/conversation/:conversationId", handlers.Conversation.DeleteConversation)

			// Группы
			messages.POST("/group/create", handlers.Conversation.CreateGroup)
			messages.PUT("/group/rename", handlers.Conversation.RenameGroup)
			messages.PUT("/group/add-member", handlers.Conversation.AddToGroup)
			messages.PUT("/group/remove-member", handlers.Conversation.RemoveFromGroup)

			// Сообщения
			messages.POST("", sendLimit, handlers.Message.SendMessage)
			messages.GET("/conversation/:conversationId", handlers.Message.GetMessages)
			messages.PUT("/update/:messageId", handlers.Message.UpdateMessage)
			messages.DELETE("/message/for-me/:messageId", handlers.Message.DeleteMessageForMe)
			messages.DELETE("/message/:messageId", handlers.Message.DeleteMessage)
			messages.POST("/message/forward/:messageId", sendLimit, handlers.Message.ForwardMessage)
			messages.PUT("/seen/:conversationId", handlers.Message.MarkSeen)

			// Вложения
			messages.GET("/get-signed-url/:publicId", handlers.Message.GetSignedURL)
		}
	}

	// WebSocket endpoint
	router.GET("/ws", handlers.WebSocket.HandleConnection)

	return router
}

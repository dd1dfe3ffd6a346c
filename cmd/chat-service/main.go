package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"echowaves-backend/internal/database"
	chatHandler "echowaves-backend/internal/handler/http/chat"
	conversationHandler "echowaves-backend/internal/handler/http/conversation"
	userHandler "echowaves-backend/internal/handler/http/user"
	wsHandler "echowaves-backend/internal/handler/ws"
	"echowaves-backend/internal/middleware"
	"echowaves-backend/internal/repository/cockroach"
	"echowaves-backend/internal/service/broadcast"
	chatService "echowaves-backend/internal/service/chat"
	conversationService "echowaves-backend/internal/service/conversation"
	"echowaves-backend/internal/service/ledger"
	"echowaves-backend/internal/service/moderation"
	"echowaves-backend/internal/service/storage"
	"echowaves-backend/internal/service/subscription"
	userService "echowaves-backend/internal/service/user"
	"echowaves-backend/pkg/config"
	"echowaves-backend/pkg/jwt"
	"echowaves-backend/pkg/logger"
	"echowaves-backend/pkg/metrics"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      cfg.Log.Output,
		FilePath:    cfg.Log.FilePath,
		ServiceName: cfg.Server.ServiceName,
	}); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName)

	// 1. Connect to CockroachDB
	db, err := database.NewDB(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to CockroachDB", zap.Error(err))
	}
	defer db.Close()
	go db.ReportStats(ctx, appMetrics, 15*time.Second)

	store := cockroach.NewStore(db.Pool, appMetrics)
	if cfg.Database.Migrate {
		if err := store.Migrate(ctx); err != nil {
			logger.Fatal("Failed to apply schema", zap.Error(err))
		}
	}

	// 2. Connect to Redis with degraded mode support
	redisDB := database.NewRedisDB(cfg.Redis, appMetrics)
	defer redisDB.Close()
	if err := redisDB.HealthCheck(ctx); err != nil {
		logger.Warn("Redis unavailable at startup, running degraded", zap.Error(err))
	}
	redisDB.StartHealthCheck(ctx, 10*time.Second)

	// 3. Attachment URLs
	var urls broadcast.AttachmentURLResolver = storage.NewStaticURLResolver(cfg.Messages.AttachmentURLBase)
	if cfg.MinIO.Enabled {
		minioClient, err := storage.NewMinioClient(cfg.MinIO)
		if err != nil {
			logger.Fatal("Failed to create MinIO client", zap.Error(err))
		}
		if err := minioClient.EnsureBucket(ctx, cfg.MinIO.Bucket); err != nil {
			logger.Warn("Attachment bucket check failed", zap.Error(err))
		}
		urls = storage.NewMinioURLResolver(minioClient, cfg.MinIO.Bucket, cfg.MinIO.URLExpiry)
	}

	// 4. Services
	counters := ledger.New()
	subscriptionSvc := subscription.NewService(store)
	userSvc := userService.NewService(store)
	conversationSvc := conversationService.NewService(store, counters, subscriptionSvc)

	publisher := broadcast.NewPublisher(broadcast.NewRedisBroker(redisDB), subscriptionSvc, urls, cfg.Broadcast.PublishTimeout)
	dispatcher := broadcast.NewDispatcher(store, publisher, cfg.Broadcast)
	dispatcher.Start()

	moderationSvc := moderation.NewService(store, cfg.Moderation, dispatcher)
	chatSvc := chatService.NewService(store, counters, subscriptionSvc, storage.NewPolicy(cfg.Messages), dispatcher, cfg.Messages)

	// 5. Handlers
	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Audience, 15*time.Minute)
	chatHdlr := chatHandler.NewHandler(chatSvc, moderationSvc, conversationSvc)
	conversationHdlr := conversationHandler.NewHandler(conversationSvc, subscriptionSvc)
	userHdlr := userHandler.NewHandler(userSvc, subscriptionSvc)

	chatHub := wsHandler.NewChatHub(wsHandler.NewRedisSubscriber(redisDB), conversationSvc)
	go chatHub.Run(ctx)

	// 6. Router
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware(cfg.Server.CORSOrigins))
	router.Use(middleware.NewPrometheusMiddleware(appMetrics).Handler())

	router.GET("/health", middleware.HealthCheck(cfg.Server.ServiceName))
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	auth := middleware.AuthMiddleware(jwtManager, userSvc)
	var writeLimit gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if cfg.RateLimit.Enabled {
		writeLimit = middleware.NewRateLimiter(redisDB, "ratelimit:writes", cfg.RateLimit.Requests, cfg.RateLimit.Window).Middleware()
	}

	v1 := router.Group("/v1")
	v1.Use(auth)
	{
		// WebSocket connections outlive the request timeout
		v1.GET("/ws/conversations/:key", chatHub.ServeWS)

		api := v1.Group("")
		api.Use(middleware.Timeout(cfg.Server.RequestTimeout))
		{
			api.POST("/conversations", writeLimit, conversationHdlr.CreateConversation)
			api.GET("/conversations/:id", conversationHdlr.GetConversation)
			api.POST("/conversations/:id/read", conversationHdlr.MarkRead)
			api.GET("/subscriptions", conversationHdlr.ListSubscriptions)

			api.POST("/conversations/:id/messages", writeLimit, chatHdlr.PostMessage)
			api.GET("/conversations/:id/messages", chatHdlr.ListMessages)
			api.GET("/messages/:id", chatHdlr.GetMessage)
			api.POST("/messages/:id/abuse_reports", writeLimit, chatHdlr.ReportAbuse)

			api.GET("/users/me", userHdlr.GetMe)
			api.GET("/users/:id", userHdlr.GetProfile)
			api.PUT("/users/me/personal_conversation", writeLimit, userHdlr.SetPersonalConversation)
		}
	}

	// 7. Start server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Chat service starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("environment", cfg.Server.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 8. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		logger.Warn("Broadcast queue not drained", zap.Error(err))
	}
	stop()

	logger.Info("Server exited")
}

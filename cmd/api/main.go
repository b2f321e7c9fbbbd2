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

	"smartops-chat/internal/config"
	apihttp "smartops-chat/internal/http"
	"smartops-chat/internal/llm"
	"smartops-chat/internal/logger"
	"smartops-chat/internal/repository"
	"smartops-chat/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}

	err = run(context.Background(), cfg, zl)
	if err != nil {
		zl.Error("api stopped", zap.Error(err))
	}
	_ = zl.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// run arma el servidor y bloquea hasta que termina; los recursos se cierran antes de volver.
func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	store, err := repository.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	zl.Info("store ready", zap.String("backend", store.Backend))

	var (
		responseCache service.ResponseCache = service.NewLRUResponseCache(cfg.ResponseCacheSize)
		chatLimiter   service.ChatRateLimiter
		redisClient   *redis.Client
	)
	if cfg.ChatRateLimit > 0 {
		chatLimiter = service.NewMemoryChatRateLimiter(cfg.ChatRateWindow, cfg.ChatRateLimit)
	}
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			zl.Warn("redis ping failed, using in-memory cache", zap.Error(err))
		} else {
			responseCache = service.NewRedisResponseCache(redisClient, cfg.ResponseCacheTTL)
			if cfg.ChatRateLimit > 0 {
				chatLimiter = service.NewRedisChatRateLimiter(redisClient, cfg.ChatRateWindow, cfg.ChatRateLimit)
			}
		}
		cancel()
	}

	llmClient := llm.NewLangflowClient(cfg.LangflowBaseURL, cfg.LangflowFlowID, cfg.LangflowAPIKey, cfg.LangflowTimeout, zl)
	identitySvc := service.NewIdentityService(store.Users)
	contextSvc := service.NewBasicContextService(store.Messages, cfg.HistoryFetchLimit, cfg.ContextWindow)
	responseSvc := service.NewResponseService(zl, store.Messages, responseCache)
	chatSvc := service.NewChatService(zl, identitySvc, store.Conversations, store.Messages, contextSvc, llmClient, responseSvc, chatLimiter)
	exportSvc := service.NewExportService()

	chatHandler := apihttp.NewChatHandler(zl, chatSvc)
	exportHandler := apihttp.NewExportHandler(zl, responseSvc, exportSvc)
	healthHandler := apihttp.NewHealthHandler(zl, store.Ping)
	router := apihttp.NewRouter(zl, chatHandler, exportHandler, healthHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		zl.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zl.Warn("server shutdown", zap.Error(err))
		}
	}()

	zl.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	<-drained
	return nil
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/multimind-ai/multimind/internal/ai"
	"github.com/multimind-ai/multimind/internal/chat"
	"github.com/multimind-ai/multimind/internal/config"
	"github.com/multimind-ai/multimind/internal/db"
	"github.com/multimind-ai/multimind/internal/files"
	"github.com/multimind-ai/multimind/internal/httpapi"
	"github.com/multimind-ai/multimind/internal/httpapi/handlers"
	"github.com/multimind-ai/multimind/internal/limits"
	"github.com/multimind-ai/multimind/internal/logger"
	"github.com/multimind-ai/multimind/internal/prompts"
	"github.com/multimind-ai/multimind/internal/store/rabbitmq"
	"github.com/multimind-ai/multimind/internal/store/redisstore"
	"github.com/multimind-ai/multimind/internal/tasks"
	"github.com/multimind-ai/multimind/internal/usage"
)

func main() {
	cfg := config.Load()

	if cfg.AppMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	zlog, err := logger.New(cfg.AppMode)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()

	gdb := db.Connect(cfg.DBDSN)
	if err := db.Migrate(gdb); err != nil {
		zlog.Fatal("db migrate", "err", err)
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	// provider registry; factories honor a per-call key override for BYOK
	reg := ai.NewRegistry()
	reg.Register(ai.HostOpenAI, func(ctx context.Context, upstream, apiKey string) (ai.Provider, error) {
		key := apiKey
		if key == "" {
			key = cfg.OpenAIAPIKey
		}
		return ai.NewOpenAIProvider(cfg.OpenAIBaseURL, key, upstream), nil
	})
	reg.Register(ai.HostOllama, func(ctx context.Context, upstream, apiKey string) (ai.Provider, error) {
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, upstream), nil
	})
	reg.Register(ai.HostOpenRouter, func(ctx context.Context, upstream, apiKey string) (ai.Provider, error) {
		key := apiKey
		if key == "" {
			key = cfg.OpenRouterAPIKey
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, key, upstream, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})

	catalog := ai.NewCatalog(gdb)
	chatRepo := chat.NewRepo(gdb)
	usageRepo := usage.NewRepo(gdb)
	limitsRepo := limits.NewRepo(gdb)
	guard := limits.NewGuard(limitsRepo, usageRepo, &ai.RegistryTokenizer{Registry: reg}, zlog)

	var pub usage.Publisher
	if p, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue); err != nil {
		// usage rows are still written in-process; only the mirror is lost
		zlog.Warn("rabbitmq unavailable, usage events stay local", "err", err)
	} else {
		pub = p
		defer func() { _ = p.Close() }()
	}
	tracker := usage.NewTracker(usageRepo, pub, zlog)

	promptSrc, err := prompts.New()
	if err != nil {
		zlog.Fatal("prompts", "err", err)
	}

	fileStore := files.NewStore(rds, cfg.AttachmentTTL)

	executor := tasks.NewExecutor(4, 256, 30*time.Second, zlog)
	defer executor.Close()

	chatSvc := chat.NewService(chatRepo, catalog, reg, guard, tracker, fileStore, promptSrc, executor, zlog, cfg.TitleModelID)

	h := handlers.NewHandler(gdb, cfg, zlog, rds, chatSvc, catalog, fileStore, usageRepo, limitsRepo)
	router := httpapi.NewRouter(h, cfg, rds, zlog)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		zlog.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server", "err", err)
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("shutdown", "err", err)
	}
}

package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"contractlens/internal/app"
	"contractlens/internal/config"
	"contractlens/internal/ratelimit"
	"contractlens/internal/server"
	"contractlens/internal/util"
	"contractlens/internal/ws"
	"contractlens/pkg/ai"
	"contractlens/pkg/queue"
	"contractlens/pkg/relay"
	"contractlens/pkg/storage"
	"contractlens/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	sessions := buildSessions(cfg)

	objects, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("failed to init object storage: %v", err)
	}

	jobs, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		Stream:     cfg.QueueStream,
		Group:      cfg.QueueGroup,
		MaxRetries: cfg.QueueMaxRetries,
	})
	if err != nil {
		log.Fatalf("failed to init job queue: %v", err)
	}

	generator, err := buildGenerator(cfg)
	if err != nil {
		log.Fatalf("failed to init text generator: %v", err)
	}

	allowed := make([]string, len(cfg.AllowedExtensions))
	copy(allowed, cfg.AllowedExtensions)
	appCore := app.New(st, sessions, objects, jobs, generator, app.Config{
		MaxUploadBytes:    int64(cfg.MaxUploadMB) << 20,
		AllowedExtensions: allowed,
	})

	hub := ws.NewHub()

	var commentRelay *relay.AMQPRelay
	if cfg.AmqpURL != "" {
		commentRelay, err = relay.NewAMQPRelay(cfg.AmqpURL, cfg.AmqpExchange)
		if err != nil {
			log.Fatalf("failed to connect relay: %v", err)
		}
		defer commentRelay.Close()
		hub.SetPublisher(func(contractID string, msg ws.ServerMessage) {
			payload, err := json.Marshal(msg)
			if err != nil {
				return
			}
			if err := commentRelay.Publish(ctx, contractID, payload); err != nil {
				slog.Warn("relay publish failed", "contract_id", contractID, "error", err)
			}
		})
		if err := commentRelay.Start(ctx, func(topic string, payload json.RawMessage) {
			var msg ws.ServerMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				return
			}
			hub.Broadcast(topic, msg)
		}); err != nil {
			log.Fatalf("failed to start relay consumer: %v", err)
		}
	}

	authLimiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "contractlens:ratelimit:auth", cfg.AuthLimitPerMinute, time.Minute)
	if err != nil {
		log.Fatalf("failed to init rate limiter: %v", err)
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		Hub:            hub,
		AuthLimiter:    authLimiter,
		MaxUploadBytes: int64(cfg.MaxUploadMB) << 20,
		TrustForwarded: cfg.TrustForwarded,
	})

	jobs.Start(ctx, cfg.QueueConcurrency, appCore.ProcessExtraction)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}

func buildStore(cfg config.FileConfig) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		slog.Warn("databaseURL not set, using in-memory store; data is lost on restart")
		return store.NewMemoryStore(), nil
	}
	return store.NewGormStore(cfg.DatabaseURL)
}

func buildSessions(cfg config.FileConfig) store.SessionStore {
	ttl := time.Duration(cfg.SessionTTLHours) * time.Hour
	if cfg.SessionBackend == "redis" {
		return store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, ttl)
	}
	return store.NewJWTSessionStore(cfg.JWTSecret, ttl)
}

func buildGenerator(cfg config.FileConfig) (ai.TextGenerator, error) {
	switch cfg.AIProvider {
	case "gemini":
		client, err := ai.NewGeminiClient(cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return ai.NewGeminiGenerator(client, cfg.AIModel), nil
	case "openai":
		return ai.NewOpenAICompatGenerator(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.AIModel), nil
	default:
		return ai.NewOllamaGenerator(ai.NewOllamaClient(cfg.OllamaBaseURL), cfg.AIModel), nil
	}
}

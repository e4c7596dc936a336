package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"promptforge/internal/app"
	"promptforge/internal/config"
	"promptforge/internal/server"
	"promptforge/internal/util"
	"promptforge/pkg/ai"
	"promptforge/pkg/notify"
	"promptforge/pkg/storage"
	"promptforge/pkg/store"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.InitLogger(cfg.LogLevel)

	var dataStore store.Store
	if cfg.DatabaseURL != "" {
		gormStore, err := store.Shared(cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to init postgres store", "err", err)
			os.Exit(1)
		}
		dataStore = gormStore
	} else {
		slog.Warn("no databaseURL configured, conversations are held in memory")
		dataStore = store.NewMemoryStore()
	}

	var llm app.Generator
	if cfg.AnthropicAPIKey != "" {
		opts := []ai.Option{
			ai.WithModel(cfg.GenerationModel),
			ai.WithMaxTokens(cfg.MaxTokens),
		}
		if cfg.AnthropicBaseURL != "" {
			opts = append(opts, ai.WithBaseURL(cfg.AnthropicBaseURL))
		}
		client, err := ai.NewClient(cfg.AnthropicAPIKey, opts...)
		if err != nil {
			logger.Error("failed to init anthropic client", "err", err)
			os.Exit(1)
		}
		llm = client
	} else {
		slog.Warn("no anthropic api key configured, generation requests will fail")
	}

	appCfg := app.Config{
		Store:      dataStore,
		LLM:        llm,
		FilePacing: time.Duration(cfg.FilePacingMS) * time.Millisecond,
	}
	if cfg.RedisAddr != "" {
		ttl := time.Duration(cfg.SnapshotTTLMinutes) * time.Minute
		appCfg.StateCache = store.NewStateCache(cfg.RedisAddr, cfg.RedisPassword, ttl)
	}
	if cfg.MinioEndpoint != "" {
		archive, err := storage.NewMinioArchive(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			logger.Error("failed to init upload archive", "err", err)
			os.Exit(1)
		}
		appCfg.Archive = archive
	}
	if cfg.AMQPURL != "" {
		notifier, err := notify.NewNotifier(cfg.AMQPURL)
		if err != nil {
			logger.Error("failed to init notifier", "err", err)
			os.Exit(1)
		}
		defer notifier.Close()
		appCfg.Notifier = notifier
	}

	appCore, err := app.New(appCfg)
	if err != nil {
		logger.Error("failed to init app", "err", err)
		os.Exit(1)
	}

	httpServer := server.New(server.Config{App: appCore})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:        addr,
		Handler:     httpServer.Router(),
		ReadTimeout: 15 * time.Second,
		// Generation streams stay open for minutes, so no write timeout.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
}

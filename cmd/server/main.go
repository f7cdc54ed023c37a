package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"intake-card/internal/card"
	"intake-card/internal/config"
	"intake-card/internal/core"
	"intake-card/internal/db"
	httpserver "intake-card/internal/http"
	"intake-card/internal/llm"
	"intake-card/internal/storage"
	"intake-card/internal/util"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := util.InitLogger(cfg.LogLevel)

	dbConn, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fatal(logger, "failed to open database", err)
	}
	defer dbConn.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dbConn.PingContext(ctx); err != nil {
		fatal(logger, "failed to ping database", err)
	}
	if err := db.Migrate(ctx, dbConn); err != nil {
		fatal(logger, "failed to run migrations", err)
	}
	repo := db.NewRepository(dbConn)
	notifier := db.NewNotifier(dbConn, cfg.NotifyChannel)

	blobs, err := storage.NewMinioStore(ctx, storage.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		fatal(logger, "failed to init blob storage", err)
	}

	prompt, err := core.LoadSystemPrompt(cfg.PromptPath)
	if err != nil {
		fatal(logger, "failed to load system prompt", err)
	}
	fonts, err := card.LoadFonts(cfg.FontPath, cfg.BoldFontPath)
	if err != nil {
		fatal(logger, "failed to load card fonts", err)
	}
	if fonts == nil {
		logger.Warn("no card font configured, Hangul text will not render")
	}

	model := llm.NewOpenAIClient(llm.Config{
		APIKey:    cfg.OpenAIAPIKey,
		BaseURL:   cfg.OpenAIBaseURL,
		ChatModel: cfg.ChatModel,
		JSONModel: cfg.EnrichModel,
	})
	chat := core.NewChatService(model, repo, notifier, core.IntakeConfig{
		SystemPrompt: prompt,
		HistoryLimit: cfg.HistoryLimit,
		PersistTurns: cfg.PersistTurns,
		Timeout:      cfg.GatewayTimeout,
	})
	cards := core.NewCardService(repo, core.NewEnricher(model, cfg.GatewayTimeout), card.NewComposer(fonts), blobs, core.CardConfig{
		Enrich:        cfg.EnrichCards,
		SignedURLTTL:  cfg.SignedURLTTL,
		UploadTimeout: cfg.UploadTimeout,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpserver.NewServer(chat, cards),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.GatewayTimeout + cfg.UploadTimeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr, "chat_model", cfg.ChatModel, "enrich_cards", cfg.EnrichCards)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "server error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "err", err)
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"voxstudio/internal/app"
	"voxstudio/internal/bot"
	"voxstudio/internal/config"
	"voxstudio/internal/storage"
	"voxstudio/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	resetDB := flag.Bool("reset-db", false, "Reset database by dropping all tables and re-running migrations")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load config:", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Options{
		Debug:    cfg.Log.Debug,
		Level:    cfg.Log.Level,
		Encoding: cfg.Log.Encoding,
	}); err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("Starting voxstudio bot service")

	if *resetDB {
		if cfg.Postgres.DSN == "" {
			logger.Fatal("DATABASE_URL environment variable is required")
		}
		logger.Info("Resetting database...")
		if err := storage.ResetMigrations(cfg.Postgres.DSN, cfg.Postgres.MigrationsPath); err != nil {
			logger.Fatal("Failed to reset database", zap.Error(err))
		}
		logger.Info("Database reset completed successfully")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer a.Close()

	botInstance, err := bot.NewBot(cfg.Telegram.Token, a.Cache, a.Transcription, a.SynthesisRunner(), a.Artifacts)
	if err != nil {
		logger.Fatal("Failed to initialize bot", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("Starting Telegram bot")
		botInstance.Start()
	}()

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	cancel()
	botInstance.Stop()

	logger.Info("Bot service shutdown complete")
}

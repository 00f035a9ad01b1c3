package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"voxstudio/internal/app"
	"voxstudio/internal/bot"
	"voxstudio/internal/config"
	"voxstudio/internal/httpapi"
	"voxstudio/internal/storage"
	"voxstudio/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	resetDB := flag.Bool("reset-db", false, "Reset database by dropping all tables and re-running migrations")
	withBot := flag.Bool("with-bot", false, "Also run the Telegram bot in this process")
	printUsage := flag.Bool("config-help", false, "Print the supported environment variables and exit")
	flag.Parse()

	if *printUsage {
		fmt.Println(config.Usage())
		return
	}

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

	logger.Info("Starting voxstudio server")

	if *resetDB {
		if cfg.Postgres.DSN == "" {
			logger.Fatal("DATABASE_URL environment variable is required")
		}
		if err := storage.ResetMigrations(cfg.Postgres.DSN, cfg.Postgres.MigrationsPath); err != nil {
			logger.Fatal("Failed to reset database", zap.Error(err))
		}
		logger.Info("Database reset completed successfully")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer a.Close()

	handler := httpapi.NewHandler(a.Transcription, a.SynthesisRunner(), a.Views, a.Artifacts, httpapi.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		MaxUploadBytes: cfg.Ingest.MaxUploadBytes,
		Debug:          a.DebugInfo(),
		History:        a.RunHistory(),
	})

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: handler.Router(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if *withBot {
		botInstance, err := bot.NewBot(cfg.Telegram.Token, a.Cache, a.Transcription, a.SynthesisRunner(), a.Artifacts)
		if err != nil {
			logger.Fatal("Failed to initialize bot", zap.Error(err))
		}

		g.Go(func() error {
			logger.Info("Starting Telegram bot")
			botInstance.Start()
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			botInstance.Stop()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return
	}

	logger.Info("Server shutdown complete")
}

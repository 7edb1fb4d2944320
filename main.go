package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"userdesk/internal/app"
	"userdesk/internal/config"
	"userdesk/internal/logger"

	"go.uber.org/zap"
)

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	cfg, err := config.Load(envFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	server, err := app.New(*cfg, zl)
	if err != nil {
		zl.Fatal("failed to initialize application", zap.Error(err))
	}
	defer func() {
		if err := server.Close(); err != nil {
			zl.Error("failed to release resources", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		zl.Error("server stopped with error", zap.Error(err))
		return
	}
	zl.Info("server gracefully stopped")
}

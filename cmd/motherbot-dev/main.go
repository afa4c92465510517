package main

import (
	"context"
	"os"

	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"go.uber.org/zap"

	"motherbot/internal/app"
)

// Runs the mother bot against a throwaway ClickHouse archive and a local
// SQLite store in polling mode.
func main() {
	ctx := context.Background()
	logger := zap.Must(zap.NewDevelopment())

	logger.Info("Starting ClickHouse testcontainer...")

	clickhouseContainer, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:latest",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword("devpassword"),
		clickhouse.WithDatabase("default"),
	)
	if err != nil {
		logger.Fatal("Failed to start ClickHouse container", zap.Error(err))
	}

	// Ensure container cleanup on exit
	defer func() {
		logger.Info("Stopping ClickHouse container...")
		if err := clickhouseContainer.Terminate(ctx); err != nil {
			logger.Warn("Failed to terminate container", zap.Error(err))
		}
	}()

	host, err := clickhouseContainer.Host(ctx)
	if err != nil {
		logger.Fatal("Failed to get container host", zap.Error(err))
	}

	port, err := clickhouseContainer.MappedPort(ctx, "9000/tcp")
	if err != nil {
		logger.Fatal("Failed to get container port", zap.Error(err))
	}

	logger.Info("ClickHouse started", zap.String("host", host), zap.String("port", port.Port()))

	// Set environment variables for the application
	os.Setenv("CLICKHOUSE_HOST", host)
	os.Setenv("CLICKHOUSE_PORT", port.Port())
	os.Setenv("CLICKHOUSE_DATABASE", "default")
	os.Setenv("CLICKHOUSE_USER", "default")
	os.Setenv("CLICKHOUSE_PASSWORD", "devpassword")
	os.Setenv("CLICKHOUSE_USE_TLS", "false")
	os.Setenv("USE_MOCK_DB", "false")
	os.Setenv("WEBHOOK_MODE", "false")
	os.Setenv("LOG_FORMAT", "console")
	if os.Getenv("DATABASE_PATH") == "" {
		os.Setenv("DATABASE_PATH", "data/motherbot-dev.db")
	}
	if os.Getenv("LOG_LEVEL") == "" {
		os.Setenv("LOG_LEVEL", "debug")
	}

	if os.Getenv("TELEGRAM_BOT_TOKEN") == "" {
		logger.Warn("TELEGRAM_BOT_TOKEN not set. Please set it in your .env file or environment.")
	}

	logger.Info("Starting application with ClickHouse archive...")

	application, err := app.New()
	if err != nil {
		logger.Error("Failed to create application", zap.Error(err))
		return
	}

	// Run blocks until SIGINT/SIGTERM, then the deferred cleanup removes the container
	if err := application.Run(); err != nil {
		logger.Error("Application error", zap.Error(err))
	}
}

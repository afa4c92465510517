package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"motherbot/internal/blocklist"
	"motherbot/internal/bot"
	"motherbot/internal/config"
	"motherbot/internal/metrics"
	"motherbot/internal/platform/telegram"
	"motherbot/internal/provision"
	"motherbot/internal/registry"
	"motherbot/internal/relay"
	"motherbot/internal/steps"
	"motherbot/internal/storage"
	"motherbot/internal/storage/ch"
	"motherbot/internal/storage/sqlite"
	"motherbot/internal/storage/stubs"
)

// limiterSize bounds the number of (relay, sender) buckets kept in memory
const limiterSize = 10000

// App represents the application
type App struct {
	config    *config.Config
	logger    *zap.Logger
	db        storage.Storage
	archive   storage.Archive
	metrics   *metrics.Metrics
	client    *telegram.Client
	bot       *bot.Bot
	runner    *bot.Runner
	scheduler gocron.Scheduler
	server    *http.Server
}

// New creates and initializes a new application instance
func New() (*App, error) {
	// Load .env file if it exists
	envErr := godotenv.Load()

	// Load configuration from environment variables
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if envErr != nil {
		logger.Info("No .env file found, using system environment variables")
	}

	app := &App{config: cfg, logger: logger, metrics: metrics.New()}

	logger.Info("Starting mother bot...")

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initBot(); err != nil {
		return nil, err
	}

	app.initHTTPServer()

	return app, nil
}

// initDatabase opens the record store and the optional message archive
func (a *App) initDatabase() error {
	var db storage.Storage
	if a.config.UseMockDB {
		a.logger.Info("Using mock database")
		db = stubs.NewMockDB()
	} else {
		if dir := filepath.Dir(a.config.DatabasePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		a.logger.Info("Opening SQLite database", zap.String("path", a.config.DatabasePath))
		sqliteDB, err := sqlite.NewSQLiteDB(a.config.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		db = sqliteDB
	}

	ctx := context.Background()
	if err := db.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.logger.Info("Database initialized successfully")
	a.db = db

	if !a.config.ArchiveEnabled() {
		return nil
	}

	a.logger.Info("Connecting to ClickHouse archive",
		zap.String("host", a.config.ClickHouseHost),
		zap.Int("port", a.config.ClickHousePort),
		zap.String("database", a.config.ClickHouseDatabase),
		zap.String("user", a.config.ClickHouseUser),
		zap.Bool("tls", a.config.ClickHouseUseTLS))
	archive, err := ch.NewClickHouseDB(
		a.config.ClickHouseHost,
		a.config.ClickHousePort,
		a.config.ClickHouseDatabase,
		a.config.ClickHouseUser,
		a.config.ClickHousePassword,
		a.config.ClickHouseUseTLS,
	)
	if err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := archive.Initialize(ctx); err != nil {
		archive.Close()
		return fmt.Errorf("failed to initialize archive: %w", err)
	}
	a.archive = archive
	return nil
}

// initBot wires the relay engine, the relay runner and the mother bot
func (a *App) initBot() error {
	cfg := a.config

	a.client = telegram.NewClient(cfg.PlatformTimeout, a.logger)

	settings := registry.DefaultSettings()
	settings.MaxMessageLength = cfg.DefaultMaxMessageLength
	settings.RateLimitPerWindow = cfg.DefaultRateLimit
	reg := registry.New(a.db, cfg.MaxRelaysPerOwner, settings, a.logger)

	tracker := steps.New(a.db, cfg.StepTTL, a.logger)
	scheduler, err := tracker.StartSweeper(cfg.StepSweepInterval)
	if err != nil {
		return err
	}
	a.scheduler = scheduler

	deps := relay.Deps{
		Store:    a.db,
		Registry: reg,
		Blocks:   blocklist.New(a.db),
		Steps:    tracker,
		Channel:  a.client,
		Limiter:  relay.NewLimiter(cfg.RateWindow, limiterSize),
		Archive:  a.archive,
		Metrics:  a.metrics,
		NodeID:   1,
		Logger:   a.logger,
	}
	engine, err := relay.NewEngine(deps)
	if err != nil {
		return err
	}

	webhookURL, webhookSecret := "", ""
	if cfg.WebhookMode {
		webhookURL, webhookSecret = cfg.WebhookURL, cfg.WebhookSecret
	}
	a.runner = bot.NewRunner(bot.RunnerOptions{
		APIs:          a.client,
		Channel:       a.client,
		Engine:        engine,
		Registry:      reg,
		Steps:         tracker,
		Store:         a.db,
		Metrics:       a.metrics,
		WebhookURL:    webhookURL,
		WebhookSecret: webhookSecret,
		Logger:        a.logger,
	})

	api, err := a.client.API(cfg.TelegramToken)
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	a.bot = bot.NewBot(bot.Options{
		API:       api,
		Token:     cfg.TelegramToken,
		Channel:   a.client,
		Store:     a.db,
		Provision: provision.NewEngine(reg, a.db, a.client, a.runner, a.logger),
		Registry:  reg,
		Relays:    engine,
		Steps:     tracker,
		Runner:    a.runner,
		Metrics:   a.metrics,
		AdminIDs:  cfg.AdminUserIDs,
		Logger:    a.logger,
	})
	a.logger.Info("Bot created successfully", zap.Int64s("admin_user_ids", cfg.AdminUserIDs))
	return nil
}

// initHTTPServer initializes the HTTP server for health checks, metrics and webhooks
func (a *App) initHTTPServer() {
	a.server = &http.Server{
		Addr:         ":" + a.config.Port,
		Handler:      a.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Start HTTP server in background
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("port", a.config.Port))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
}

// Run starts the application and blocks until shutdown
func (a *App) Run() error {
	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Relay bots that were active before the restart come back first
	launched, err := a.runner.RestartActive(context.Background())
	if err != nil {
		return fmt.Errorf("failed to restart relay bots: %w", err)
	}
	a.logger.Info("Relay bots restarted", zap.Int("count", launched))

	if a.config.WebhookMode {
		a.logger.Info("Starting bot in WEBHOOK mode", zap.String("webhook_url", a.config.WebhookURL))
		if err := a.bot.StartWebhook(a.config.WebhookURL, a.config.WebhookSecret); err != nil {
			return fmt.Errorf("failed to setup webhook: %w", err)
		}
		a.logger.Info("Webhook configured. Updates arrive via " + bot.WebhookPath + "{id}")
	} else {
		go func() {
			if err := a.bot.Start(); err != nil {
				a.logger.Fatal("Failed to start bot", zap.Error(err))
			}
		}()
	}

	// Wait for interrupt signal
	<-sigChan

	a.logger.Info("Shutting down...")
	return a.Shutdown()
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	if !a.config.WebhookMode {
		a.bot.Stop()
	}
	a.runner.StopAll()

	if err := a.scheduler.Shutdown(); err != nil {
		a.logger.Warn("Scheduler shutdown error", zap.Error(err))
	}

	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			a.logger.Warn("Error closing archive", zap.Error(err))
		}
	}

	if err := a.db.Close(); err != nil {
		a.logger.Error("Error closing database", zap.Error(err))
		return err
	}

	a.logger.Info("Shutdown complete")
	_ = a.logger.Sync()
	return nil
}

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"convertbot/internal/bot"
	"convertbot/internal/config"
	"convertbot/internal/convert"
	"convertbot/internal/phrases"
	"convertbot/internal/service"
	"convertbot/internal/storage"
	"convertbot/internal/storage/ch"
	"convertbot/internal/storage/sqlite"
	"convertbot/internal/storage/stubs"
)

// App represents the application
type App struct {
	config      *config.Config
	logger      *zap.Logger
	users       storage.UserStore
	conversions storage.ConversionLog
	workspace   *convert.Workspace
	gateway     *bot.TelegramGateway
	bot         *bot.Bot
	scheduler   *service.SchedulerService
	sweeper     *service.SweepService
	server      *http.Server
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

	logger, err := newLogger(cfg.LogDevelopment)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if envErr != nil {
		logger.Debug("No .env file found, using system environment variables")
	}

	app := &App{config: cfg, logger: logger}

	logger.Info("Starting conversion bot...")

	if err := app.initStorage(); err != nil {
		return nil, err
	}
	if err := app.initBot(); err != nil {
		return nil, err
	}
	if err := app.initScheduler(); err != nil {
		return nil, err
	}
	app.initHTTPServer()

	return app, nil
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// initStorage opens the user store and the conversion log
func (a *App) initStorage() error {
	ctx := context.Background()

	if a.config.UseMockDB {
		a.logger.Info("Using mock database")
		a.users = stubs.NewMockDB()
	} else {
		a.logger.Info("Opening SQLite user store", zap.String("path", a.config.DatabasePath))
		store, err := sqlite.NewStore(a.config.DatabasePath, a.logger)
		if err != nil {
			return fmt.Errorf("failed to open user store: %w", err)
		}
		a.users = store
	}

	if err := a.users.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if a.config.ClickHouseEnabled() {
		a.logger.Info("Connecting to ClickHouse",
			zap.String("host", a.config.ClickHouseHost),
			zap.Int("port", a.config.ClickHousePort),
			zap.String("database", a.config.ClickHouseDatabase),
			zap.Bool("tls", a.config.ClickHouseUseTLS),
		)
		conversions, err := ch.NewConversionLog(clickHouseOptions(a.config.ClickHouseConfig))
		if err != nil {
			return err
		}
		a.conversions = conversions
	} else {
		a.logger.Info("CLICKHOUSE_HOST not set, keeping conversion history in memory")
		a.conversions = stubs.NewMockDB()
	}

	if id := a.config.AdminTelegramID; id != 0 {
		if err := a.users.SetAdmin(ctx, id, true); err != nil {
			return fmt.Errorf("failed to bootstrap admin: %w", err)
		}
		a.logger.Info("Admin ensured", zap.Int64("user_id", id))
	}

	a.logger.Info("Database initialized successfully")
	return nil
}

func clickHouseOptions(c config.ClickHouseConfig) ch.Options {
	return ch.Options{
		Host:     c.ClickHouseHost,
		Port:     c.ClickHousePort,
		Database: c.ClickHouseDatabase,
		User:     c.ClickHouseUser,
		Password: c.ClickHousePassword,
		UseTLS:   c.ClickHouseUseTLS,
	}
}

// initBot builds the backends, the Telegram gateway and the bot
func (a *App) initBot() error {
	workspace, err := convert.NewWorkspace(a.config.TempDir)
	if err != nil {
		return err
	}
	a.workspace = workspace

	table, err := phrases.Load(a.config.PhrasesFile, a.config.Language)
	if err != nil {
		return fmt.Errorf("failed to load phrases: %w", err)
	}

	gateway, err := bot.NewTelegramGateway(a.config.TelegramToken, a.logger.Named("telegram"))
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	a.gateway = gateway

	convLogger := a.logger.Named("convert")
	a.bot, err = bot.New(bot.Params{
		Gateway:     gateway,
		Users:       a.users,
		Conversions: a.conversions,
		Backends: bot.Backends{
			Image:    convert.NewImageConverter(workspace, convLogger),
			Document: convert.NewDocumentConverter(workspace, a.config.PandocPath, a.config.PandocPDFEngine, convert.ExecRunner, convLogger),
			Video:    convert.NewVideoConverter(workspace, a.config.FFmpegPath, convert.ExecRunner, convLogger),
		},
		Phrases:     table,
		Workspace:   workspace,
		MaxFileSize: a.config.MaxFileSize,
		Logger:      a.logger.Named("bot"),
	})
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}
	return nil
}

// initScheduler schedules the temp folder sweep
func (a *App) initScheduler() error {
	a.sweeper = service.NewSweepService(a.users, a.workspace, a.config.TempFileTTL, a.logger)
	a.scheduler = service.NewSchedulerService(time.UTC)

	if _, err := a.scheduler.ScheduleInterval(a.config.SweepInterval, a.sweeper.Job(context.Background())); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	return nil
}

// initHTTPServer initializes the HTTP server for health checks and webhook
func (a *App) initHTTPServer() {
	a.server = &http.Server{
		Addr:        ":" + strconv.Itoa(a.config.Port),
		Handler:     NewRouter(a.config.WebhookPath, a.mode(), a.bot.WebhookHandler()),
		ReadTimeout: 10 * time.Second,
		// Conversions run inside the webhook request
		WriteTimeout: 5 * time.Minute,
	}
}

func (a *App) mode() string {
	if a.config.WebhookMode {
		return "webhook"
	}
	return "polling"
}

// NewRouter serves the webhook at webhookPath plus health and status pages
func NewRouter(webhookPath, mode string, webhook http.Handler) *mux.Router {
	r := mux.NewRouter()

	// Webhook endpoint (only receives traffic in webhook mode)
	r.Handle(webhookPath, webhook).Methods(http.MethodPost)

	// Health check endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}).Methods(http.MethodGet)

	// Root endpoint
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "Conversion bot is running (mode: %s)", mode)
	}).Methods(http.MethodGet)

	return r
}

// Run starts the application and blocks until shutdown
func (a *App) Run() error {
	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if _, err := a.sweeper.Sweep(ctx); err != nil {
		a.logger.Warn("Initial temp folder sweep failed", zap.Error(err))
	}
	a.scheduler.Start()
	a.logger.Info("Scheduler started",
		zap.Int("jobs", a.scheduler.Entries()),
		zap.Duration("sweep_interval", a.config.SweepInterval),
	)

	// Start bot in appropriate mode
	if a.config.WebhookMode {
		a.logger.Info("Starting bot in WEBHOOK mode",
			zap.String("url", a.config.WebhookURL),
			zap.String("path", a.config.WebhookPath),
		)
		if err := a.gateway.SetWebhook(a.config.WebhookURL); err != nil {
			a.Shutdown()
			return fmt.Errorf("failed to setup webhook: %w", err)
		}
	} else {
		go a.gateway.Poll(ctx, a.bot.HandleUpdate)
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down...")
	case err := <-serverErr:
		runErr = fmt.Errorf("HTTP server error: %w", err)
	}

	if err := a.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	a.scheduler.Stop()

	// Shutdown HTTP server gracefully
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	var errs []error
	if err := a.conversions.Close(); err != nil {
		a.logger.Error("Error closing conversion log", zap.Error(err))
		errs = append(errs, err)
	}
	if err := a.users.Close(); err != nil {
		a.logger.Error("Error closing database", zap.Error(err))
		errs = append(errs, err)
	}

	a.logger.Info("Shutdown complete")
	a.logger.Sync()
	return errors.Join(errs...)
}

// MigrateClickHouse applies a goose command to the conversion log schema
func MigrateClickHouse(cfg *config.ClickHouseConfig, command string) error {
	if !cfg.ClickHouseEnabled() {
		return errors.New("CLICKHOUSE_HOST is required for migrations")
	}
	return ch.Migrate(clickHouseOptions(*cfg), command)
}

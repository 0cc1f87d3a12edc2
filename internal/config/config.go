package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the application configuration
type Config struct {
	TelegramToken string `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	// AdminTelegramID is registered as admin on startup, 0 disables it
	AdminTelegramID int64 `envconfig:"ADMIN_TELEGRAM_ID"`

	// Bot mode configuration
	WebhookMode bool   `envconfig:"WEBHOOK_MODE"` // If true, use webhook mode; if false, use polling mode
	WebhookURL  string `envconfig:"WEBHOOK_URL"`  // Public URL of the webhook (required if WebhookMode is true)
	WebhookPath string `envconfig:"WEBHOOK_PATH" default:"/"`
	Port        int    `envconfig:"PORT" default:"5000"`

	// Conversion
	TempDir         string `envconfig:"TEMP_DIR" default:"temp"`
	MaxFileSize     int    `envconfig:"MAX_FILE_SIZE" default:"2000000"`
	FFmpegPath      string `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	PandocPath      string `envconfig:"PANDOC_PATH" default:"pandoc"`
	PandocPDFEngine string `envconfig:"PANDOC_PDF_ENGINE"`

	// Temp folder maintenance
	TempFileTTL   time.Duration `envconfig:"TEMP_FILE_TTL" default:"24h"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"1h"`

	// Replies
	Language    string `envconfig:"LANGUAGE" default:"eng"`
	PhrasesFile string `envconfig:"PHRASES_FILE"`

	// User store
	DatabasePath string `envconfig:"DATABASE_PATH" default:"database/database.db"`
	UseMockDB    bool   `envconfig:"USE_MOCK_DB"`

	ClickHouseConfig

	LogDevelopment bool `envconfig:"LOG_DEVELOPMENT"`
}

// ClickHouseConfig holds the conversion log connection, disabled when the
// host is empty
type ClickHouseConfig struct {
	ClickHouseHost     string `envconfig:"CLICKHOUSE_HOST"`
	ClickHousePort     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	ClickHouseDatabase string `envconfig:"CLICKHOUSE_DATABASE" default:"default"`
	ClickHouseUser     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	ClickHousePassword string `envconfig:"CLICKHOUSE_PASSWORD"`
	ClickHouseUseTLS   bool   `envconfig:"CLICKHOUSE_USE_TLS"`
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{}
	if err := envconfig.Process("", config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks settings that depend on each other
func (c *Config) Validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.WebhookMode && c.WebhookURL == "" {
		return fmt.Errorf("WEBHOOK_URL is required when WEBHOOK_MODE is true")
	}
	if c.WebhookPath == "" || c.WebhookPath[0] != '/' {
		return fmt.Errorf("WEBHOOK_PATH must start with /, got %q", c.WebhookPath)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive")
	}
	if c.TempFileTTL <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("TEMP_FILE_TTL and SWEEP_INTERVAL must be positive")
	}
	if !c.UseMockDB && c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required when USE_MOCK_DB is not set")
	}
	return nil
}

// LoadClickHouseFromEnv loads only the ClickHouse settings
func LoadClickHouseFromEnv() (*ClickHouseConfig, error) {
	config := &ClickHouseConfig{}
	if err := envconfig.Process("", config); err != nil {
		return nil, err
	}
	return config, nil
}

// ClickHouseEnabled reports whether conversions are logged to ClickHouse
func (c *ClickHouseConfig) ClickHouseEnabled() bool {
	return c.ClickHouseHost != ""
}

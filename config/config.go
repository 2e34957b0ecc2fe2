// Package config loads application configuration from the environment.
// A .env file is honored when present, so development machines do not need
// exported variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Telegram Bot
	Telegram TelegramConfig

	// Admin panel / HTTP API
	Admin AdminConfig

	// Storage
	Storage StorageConfig

	// Google Sheets roster
	Sheets SheetsConfig

	// Logging
	LogLevel string

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration
}

// TelegramConfig holds Telegram Bot settings.
type TelegramConfig struct {
	// Token from @BotFather.
	Token string

	// PollingTimeout is the long-poll timeout in seconds.
	PollingTimeout int
}

// AdminConfig holds admin panel settings.
type AdminConfig struct {
	// AllowedIDs are the Telegram user ids permitted into the panel.
	AllowedIDs []string

	// OpenMode disables the allow-list entirely. Development only.
	OpenMode bool

	// PanelURL is the Mini App address sent by /adminbtn.
	PanelURL string

	// Host and Port of the HTTP API.
	Host string
	Port int
}

// StorageConfig holds file storage settings.
type StorageConfig struct {
	// DataDir holds the JSON document collections.
	DataDir string

	// UploadsDir holds downloaded report photos.
	UploadsDir string
}

// SheetsConfig holds Google Sheets roster settings.
type SheetsConfig struct {
	// APIKey for the Sheets values API.
	APIKey string

	// SpreadsheetID of the roster document.
	SpreadsheetID string

	// ReadRange in A1 notation, e.g. "liste!A:D".
	ReadRange string
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first when it exists.
func Load() (*Config, error) {
	// Absence of .env is normal in production.
	_ = godotenv.Load()

	cfg := &Config{
		Telegram: TelegramConfig{
			Token:          os.Getenv("TELEGRAM_TOKEN"),
			PollingTimeout: getEnvInt("TELEGRAM_POLLING_TIMEOUT", 30),
		},
		Admin: AdminConfig{
			AllowedIDs: splitCSV(os.Getenv("ALLOWED_ADMINS")),
			OpenMode:   getEnvBool("ADMIN_OPEN_MODE", false),
			PanelURL:   os.Getenv("ADMIN_PANEL_URL"),
			Host:       getEnv("HOST", "0.0.0.0"),
			Port:       getEnvInt("PORT", 7445),
		},
		Storage: StorageConfig{
			DataDir:    getEnv("DATA_DIR", "data"),
			UploadsDir: getEnv("UPLOADS_DIR", "uploads"),
		},
		Sheets: SheetsConfig{
			APIKey:        os.Getenv("SHEETS_API_KEY"),
			SpreadsheetID: os.Getenv("SHEETS_SPREADSHEET_ID"),
			ReadRange:     getEnv("SHEETS_RANGE", "liste!A:D"),
		},
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that the required settings are present.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return errors.New("TELEGRAM_TOKEN is required")
	}
	if c.Sheets.APIKey == "" {
		return errors.New("SHEETS_API_KEY is required")
	}
	if c.Sheets.SpreadsheetID == "" {
		return errors.New("SHEETS_SPREADSHEET_ID is required")
	}
	if c.Admin.Port <= 0 || c.Admin.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Admin.Port)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENV HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

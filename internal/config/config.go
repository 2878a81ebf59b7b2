package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"splitter/internal/core"
)

// Remote backends
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendDrive  = "drive"
)

var validBackends = []string{BackendNone, BackendMemory, BackendDrive}

type Config struct {
	// HTTP Server
	Port string

	// Ledger
	LedgerCSVPath string
	Participants  string // comma separated
	Categories    string // Name=L pairs, comma separated

	// Remote mirror
	RemoteBackend     string
	DriveFileID       string
	ClientSecretsFile string
	TokenPath         string

	// Spreadsheet import, optional
	SheetsSpreadsheetID string
	SheetsRange         string

	// Sync journal
	SQLiteDBPath string

	// AMQP, optional
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Worker
	SyncBatchSize  int
	SyncInterval   time.Duration
	SyncMaxRetries int

	LogLevel string
}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8081"),

		LedgerCSVPath: getEnv("LEDGER_CSV_PATH", "./data/transactions.csv"),
		Participants:  getEnv("SPLITTER_PARTICIPANTS", "Adrian,Vic"),
		Categories:    getEnv("SPLITTER_CATEGORIES", "Food & Drinks=A,Travel=B,Groceries=C,Other=D"),

		RemoteBackend:     getEnv("REMOTE_BACKEND", BackendNone),
		DriveFileID:       getEnv("GOOGLE_DRIVE_FILE_ID", ""),
		ClientSecretsFile: getEnv("GOOGLE_CLIENT_SECRETS_FILE", "resources/credentials.json"),
		TokenPath:         getEnv("GOOGLE_TOKEN_PATH", DefaultTokenPath()),

		SheetsSpreadsheetID: getEnv("SHEETS_SPREADSHEET_ID", ""),
		SheetsRange:         getEnv("SHEETS_RANGE", "Sheet1!A:H"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/sync.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "splitter"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_sync"),

		SyncBatchSize:  getEnvInt("SYNC_BATCH_SIZE", 10),
		SyncInterval:   getEnvDuration("SYNC_INTERVAL", 30*time.Second),
		SyncMaxRetries: getEnvInt("SYNC_MAX_RETRIES", 3),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// DefaultTokenPath is ~/.config/splitter_app/token.json, or a relative
// token.json when the home directory is unknown.
func DefaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "token.json"
	}
	return filepath.Join(home, ".config", "splitter_app", "token.json")
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if strings.TrimSpace(c.LedgerCSVPath) == "" {
		errs = append(errs, "ledger CSV path cannot be empty")
	}
	if _, err := c.Roster(); err != nil {
		errs = append(errs, fmt.Sprintf("invalid roster: %v", err))
	}

	if !slices.Contains(validBackends, c.RemoteBackend) {
		errs = append(errs, fmt.Sprintf("invalid remote backend '%s': must be one of %v", c.RemoteBackend, validBackends))
	}
	if c.RemoteBackend == BackendDrive {
		if c.DriveFileID == "" {
			errs = append(errs, "GOOGLE_DRIVE_FILE_ID is required when using the drive backend")
		}
		if c.ClientSecretsFile == "" {
			errs = append(errs, "GOOGLE_CLIENT_SECRETS_FILE is required when using the drive backend")
		} else if _, err := os.Stat(c.ClientSecretsFile); os.IsNotExist(err) {
			errs = append(errs, fmt.Sprintf("Google client secrets file does not exist: %s", c.ClientSecretsFile))
		}
		if c.TokenPath == "" {
			errs = append(errs, "GOOGLE_TOKEN_PATH cannot be empty when using the drive backend")
		}
	}

	if c.SheetsSpreadsheetID != "" {
		if strings.TrimSpace(c.SheetsRange) == "" {
			errs = append(errs, "SHEETS_RANGE cannot be empty when SHEETS_SPREADSHEET_ID is set")
		}
		if c.ClientSecretsFile == "" {
			errs = append(errs, "GOOGLE_CLIENT_SECRETS_FILE is required when SHEETS_SPREADSHEET_ID is set")
		}
	}

	if c.SQLiteDBPath == "" {
		errs = append(errs, "SQLite database path cannot be empty")
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.SyncBatchSize < 1 {
		errs = append(errs, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errs = append(errs, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}
	if c.SyncInterval < time.Second {
		errs = append(errs, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errs = append(errs, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}
	if c.SyncMaxRetries < 1 || c.SyncMaxRetries > 100 {
		errs = append(errs, fmt.Sprintf("invalid sync max retries %d: must be between 1 and 100", c.SyncMaxRetries))
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// Roster builds the participant and category roster from the settings.
func (c *Config) Roster() (core.Roster, error) {
	cats, err := core.ParseCategories(c.Categories)
	if err != nil {
		return core.Roster{}, err
	}
	return core.NewRoster(core.ParseParticipants(c.Participants), cats)
}

// ParseLevel maps a LOG_LEVEL value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level '%s': must be debug, info, warn or error", s)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

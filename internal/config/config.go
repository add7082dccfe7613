package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Auth modes
const (
	AuthModeNone = "none"
	AuthModePIN  = "pin"
)

// Price scopes
const (
	PriceScopeMonthly = "monthly"
	PriceScopeGlobal  = "global"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// Feature flags (collapses the historical app variants into one service)
	AuthMode   string
	PriceScope string
	Reminders  bool

	// Secret used to derive PIN digests and sign nothing else.
	PINSecret string

	// Session lifetime
	SessionTTL time.Duration

	// AMQP
	AMQPURL            string
	AMQPExchange       string
	AMQPStatementQueue string
	AMQPReminderQueue  string

	// Google Sheets statement export
	GoogleSpreadsheetID string
	GoogleSheetName     string

	// Worker
	ExportBatchSize int
	ExportInterval  time.Duration
}

func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8080"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/milklog.db"),

		AuthMode:   getEnv("AUTH_MODE", AuthModeNone),
		PriceScope: getEnv("PRICE_SCOPE", PriceScopeMonthly),
		Reminders:  getEnvBool("REMINDERS_ENABLED", true),

		PINSecret:  getEnv("PIN_SECRET", "milklog-dev-secret"),
		SessionTTL: getEnvDuration("SESSION_TTL", 30*24*time.Hour),

		AMQPURL:            getEnv("AMQP_URL", ""),
		AMQPExchange:       getEnv("AMQP_EXCHANGE", "milklog"),
		AMQPStatementQueue: getEnv("AMQP_STATEMENT_QUEUE", "statement_sync"),
		AMQPReminderQueue:  getEnv("AMQP_REMINDER_QUEUE", "reminder_due"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Milk"),

		ExportBatchSize: getEnvInt("EXPORT_BATCH_SIZE", 20),
		ExportInterval:  getEnvDuration("EXPORT_INTERVAL", time.Minute),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.AuthMode {
	case AuthModeNone, AuthModePIN:
	default:
		errs = append(errs, fmt.Sprintf("invalid auth mode '%s': must be one of [%s %s]", c.AuthMode, AuthModeNone, AuthModePIN))
	}

	switch c.PriceScope {
	case PriceScopeMonthly, PriceScopeGlobal:
	default:
		errs = append(errs, fmt.Sprintf("invalid price scope '%s': must be one of [%s %s]", c.PriceScope, PriceScopeMonthly, PriceScopeGlobal))
	}

	if c.SQLiteDBPath == "" {
		errs = append(errs, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.AuthMode == AuthModePIN && c.PINSecret == "" {
		errs = append(errs, "PIN_SECRET cannot be empty when auth mode is pin")
	}

	if c.SessionTTL < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
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
		if c.AMQPStatementQueue == "" {
			errs = append(errs, "AMQP statement queue name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPReminderQueue == "" {
			errs = append(errs, "AMQP reminder queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" && c.GoogleSheetName == "" {
		errs = append(errs, "Google sheet name is required when a spreadsheet ID is provided")
	}

	if c.ExportBatchSize < 1 {
		errs = append(errs, fmt.Sprintf("invalid export batch size %d: must be at least 1", c.ExportBatchSize))
	} else if c.ExportBatchSize > 1000 {
		errs = append(errs, fmt.Sprintf("invalid export batch size %d: must be at most 1000", c.ExportBatchSize))
	}

	if c.ExportInterval < time.Second {
		errs = append(errs, fmt.Sprintf("invalid export interval %v: must be at least 1 second", c.ExportInterval))
	} else if c.ExportInterval > 24*time.Hour {
		errs = append(errs, fmt.Sprintf("invalid export interval %v: must be at most 24 hours", c.ExportInterval))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

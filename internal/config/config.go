package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port             string
	OrganizationName string
	LogLevel         string

	// Database
	SQLiteDBPath string

	// Logins
	AdminUsername      string
	AdminPassword      string
	AdminPasswordHash  string
	ViewerUsername     string
	ViewerPassword     string
	ViewerPasswordHash string
	BcryptCost         int

	// Sessions
	SessionTTL         time.Duration
	SessionMax         int
	CookieSecure       bool
	LoginRatePerMinute int

	// AMQP (optional for the web server, required by the worker)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Balance mirror
	MirrorBackend            string
	MirrorResyncInterval     time.Duration
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

func Load() *Config {
	return &Config{
		Port:             getEnv("PORT", "8080"),
		OrganizationName: getEnv("ORGANIZATION_NAME", "Members Ledger"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/mcdry.db"),

		AdminUsername:      getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:      os.Getenv("ADMIN_PASSWORD"),
		AdminPasswordHash:  os.Getenv("ADMIN_PASSWORD_HASH"),
		ViewerUsername:     getEnv("VIEWER_USERNAME", "viewer"),
		ViewerPassword:     os.Getenv("VIEWER_PASSWORD"),
		ViewerPasswordHash: os.Getenv("VIEWER_PASSWORD_HASH"),
		BcryptCost:         getEnvInt("BCRYPT_COST", 12),

		SessionTTL:         getEnvDuration("SESSION_TTL", 12*time.Hour),
		SessionMax:         getEnvInt("SESSION_MAX", 1000),
		CookieSecure:       getEnvBool("COOKIE_SECURE", false),
		LoginRatePerMinute: getEnvInt("LOGIN_RATE_PER_MINUTE", 10),

		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "mcdry"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "mcdry_mirror"),

		MirrorBackend:            getEnv("MIRROR_BACKEND", "memory"),
		MirrorResyncInterval:     getEnvDuration("MIRROR_RESYNC_INTERVAL", 15*time.Minute),
		GoogleSpreadsheetID:      os.Getenv("GOOGLE_SPREADSHEET_ID"),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Members"),
		GoogleServiceAccountJSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
	}
}

// Validate checks the settings the web server needs and returns every
// problem at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if strings.TrimSpace(c.SQLiteDBPath) == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	errors = append(errors, c.validateLogins()...)

	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}
	if c.SessionMax < 1 {
		errors = append(errors, fmt.Sprintf("invalid session max %d: must be at least 1", c.SessionMax))
	}
	if c.LoginRatePerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid login rate %d: must be at least 1 per minute", c.LoginRatePerMinute))
	}

	errors = append(errors, c.validateAMQP()...)

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateWorker checks what the mirror worker needs: database, broker and
// the selected mirror backend.
func (c *Config) ValidateWorker() error {
	var errors []string

	if strings.TrimSpace(c.SQLiteDBPath) == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	}
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP URL is required for the worker")
	}
	errors = append(errors, c.validateAMQP()...)

	switch c.MirrorBackend {
	case "memory":
	case "sheets":
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when using sheets backend")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets backend")
		}
		if c.GoogleServiceAccountFile != "" && c.GoogleServiceAccountJSON == "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid mirror backend '%s': must be one of [memory sheets]", c.MirrorBackend))
	}

	if c.MirrorResyncInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid mirror resync interval %v: must be at least 1 minute", c.MirrorResyncInterval))
	} else if c.MirrorResyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid mirror resync interval %v: must be at most 24 hours", c.MirrorResyncInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("worker configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func (c *Config) validateLogins() []string {
	var errors []string
	if c.AdminUsername == "" {
		errors = append(errors, "admin username cannot be empty")
	}
	if c.AdminPassword == "" && c.AdminPasswordHash == "" {
		errors = append(errors, "either ADMIN_PASSWORD or ADMIN_PASSWORD_HASH must be provided")
	}
	if c.ViewerUsername == "" {
		errors = append(errors, "viewer username cannot be empty")
	}
	if c.ViewerPassword == "" && c.ViewerPasswordHash == "" {
		errors = append(errors, "either VIEWER_PASSWORD or VIEWER_PASSWORD_HASH must be provided")
	}
	if c.AdminUsername != "" && c.AdminUsername == c.ViewerUsername {
		errors = append(errors, "admin and viewer usernames must differ")
	}
	// bcrypt accepts costs 4 through 31.
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errors = append(errors, fmt.Sprintf("invalid bcrypt cost %d: must be between 4 and 31", c.BcryptCost))
	}
	return errors
}

func (c *Config) validateAMQP() []string {
	if c.AMQPURL == "" {
		return nil
	}
	var errors []string
	if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
	} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
	}
	if c.AMQPExchange == "" {
		errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
	}
	if c.AMQPQueue == "" {
		errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
	}
	return errors
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

// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aristath/minerva/internal/utils"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir            string // Base directory for the database and backup staging (always absolute)
	DatabasePath       string
	Port               int
	LogLevel           string
	LogPretty          bool
	DevMode            bool
	CORSAllowedOrigins []string
	PageSize           int
	MaxPageSize        int
	DefaultFromEmail   string
	FrontendURL        string
	Auth               AuthConfig
	Assistant          AssistantConfig
	Backup             BackupConfig
	Schedules          ScheduleConfig
}

// AuthConfig holds token signing configuration.
type AuthConfig struct {
	JWTSecret          string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	PasswordResetTTL   time.Duration
	SecureCookies      bool
	GeneratedPassword  int // length of passwords generated for admin-created users
	CommonPasswordPath string
}

// AssistantConfig configures the Alice natural-language query assistant.
type AssistantConfig struct {
	GeminiAPIKey     string
	Model            string
	Temperature      float64
	MaxRows          int
	QueryTimeout     time.Duration
	SessionRetention time.Duration
}

// BackupConfig configures S3-compatible database backups.
type BackupConfig struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
	Retention time.Duration
}

// Enabled reports whether enough settings are present to upload backups.
func (b BackupConfig) Enabled() bool {
	return b.Bucket != "" && b.AccessKey != "" && b.SecretKey != ""
}

// ScheduleConfig holds cron expressions (with seconds) for background jobs.
type ScheduleConfig struct {
	Backup          string
	OverdueCheck    string
	BudgetReconcile string
	SessionCleanup  string
	DatabaseCheck   string
}

// SettingsReader exposes runtime settings stored in the database.
type SettingsReader interface {
	Get(key string) (*string, error)
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()
	return fromEnv()
}

// LoadFile reads configuration after loading the given env file.
func LoadFile(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	dataDir := getEnv("MINERVA_DATA_DIR", "./data")

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	devMode := getEnvAsBool("DEV_MODE", false)

	cfg := &Config{
		DataDir:            absDataDir,
		DatabasePath:       getEnv("MINERVA_DB_PATH", filepath.Join(absDataDir, "minerva.db")),
		Port:               getEnvAsInt("MINERVA_PORT", 8000),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogPretty:          getEnvAsBool("LOG_PRETTY", devMode),
		DevMode:            devMode,
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		PageSize:           getEnvAsInt("PAGE_SIZE", 10),
		MaxPageSize:        getEnvAsInt("MAX_PAGE_SIZE", 1000),
		DefaultFromEmail:   getEnv("DEFAULT_FROM_EMAIL", "noreply@minerva.local"),
		FrontendURL:        getEnv("FRONTEND_URL", "http://localhost:3000"),
		Auth: AuthConfig{
			JWTSecret:          getEnv("JWT_SECRET", ""),
			AccessTokenTTL:     getEnvAsDuration("ACCESS_TOKEN_TTL", time.Hour),
			RefreshTokenTTL:    getEnvAsDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
			PasswordResetTTL:   getEnvAsDuration("PASSWORD_RESET_TTL", 24*time.Hour),
			SecureCookies:      getEnvAsBool("SECURE_COOKIES", !devMode),
			GeneratedPassword:  10,
			CommonPasswordPath: getEnv("COMMON_PASSWORDS_FILE", ""),
		},
		Assistant: AssistantConfig{
			GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
			Model:            getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
			Temperature:      getEnvAsFloat("GEMINI_TEMPERATURE", 0.1),
			MaxRows:          getEnvAsInt("ALICE_MAX_ROWS", 100),
			QueryTimeout:     getEnvAsDuration("ALICE_QUERY_TIMEOUT", 10*time.Second),
			SessionRetention: getEnvAsDuration("SESSION_RETENTION", 30*24*time.Hour),
		},
		Backup: BackupConfig{
			Bucket:    getEnv("BACKUP_S3_BUCKET", ""),
			Endpoint:  getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:    getEnv("BACKUP_S3_REGION", "auto"),
			AccessKey: getEnv("BACKUP_S3_ACCESS_KEY", ""),
			SecretKey: getEnv("BACKUP_S3_SECRET_KEY", ""),
			Prefix:    getEnv("BACKUP_S3_PREFIX", "minerva"),
			Retention: getEnvAsDuration("BACKUP_RETENTION", 90*24*time.Hour),
		},
		Schedules: ScheduleConfig{
			Backup:          getEnv("BACKUP_SCHEDULE", "0 0 3 * * *"),
			OverdueCheck:    getEnv("INSTALLMENT_SCHEDULE", "0 0 1 * * *"),
			BudgetReconcile: getEnv("RECONCILE_SCHEDULE", "0 0 * * * *"),
			SessionCleanup:  getEnv("SESSION_CLEANUP_SCHEDULE", "0 30 2 * * *"),
			DatabaseCheck:   getEnv("DATABASE_CHECK_SCHEDULE", "0 15 4 * * *"),
		},
	}

	if cfg.Auth.JWTSecret == "" && devMode {
		cfg.Auth.JWTSecret = "minerva-dev-secret"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// UpdateFromSettings overrides assistant settings with values stored in the database.
// Database values take precedence over environment variables when non-empty.
func (c *Config) UpdateFromSettings(settings SettingsReader) error {
	model, err := settings.Get("model")
	if err != nil {
		return fmt.Errorf("failed to get model from settings: %w", err)
	}
	if model != nil && *model != "" {
		c.Assistant.Model = *model
	}

	temperature, err := settings.Get("temperature")
	if err != nil {
		return fmt.Errorf("failed to get temperature from settings: %w", err)
	}
	if temperature != nil && *temperature != "" {
		if t, err := strconv.ParseFloat(*temperature, 64); err == nil {
			c.Assistant.Temperature = t
		}
	}

	maxRows, err := settings.Get("max_rows")
	if err != nil {
		return fmt.Errorf("failed to get max_rows from settings: %w", err)
	}
	if maxRows != nil && *maxRows != "" {
		if n, err := strconv.Atoi(*maxRows); err == nil && n > 0 {
			c.Assistant.MaxRows = n
		}
	}

	return nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when DEV_MODE is off")
	}
	if len(c.Auth.JWTSecret) < 16 && !c.DevMode {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid MINERVA_PORT %d", c.Port)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("PAGE_SIZE must be positive")
	}
	if c.MaxPageSize < c.PageSize {
		return fmt.Errorf("MAX_PAGE_SIZE must be >= PAGE_SIZE")
	}
	if c.Assistant.MaxRows <= 0 {
		return fmt.Errorf("ALICE_MAX_ROWS must be positive")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return utils.ParseCSV(value)
}

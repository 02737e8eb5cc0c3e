package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all engine configuration
type Config struct {
	Ops           OpsConfig
	Storage       StorageConfig
	Logging       LoggingConfig
	Engine        EngineConfig
	Notifications NotificationsConfig
}

// OpsConfig contains the ops listener configuration (/healthz, /metrics)
type OpsConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// StorageConfig contains the audit store configuration
type StorageConfig struct {
	Enabled         bool
	Driver          string
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// For SQLite
	Path string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// EngineConfig contains evaluation behavior
type EngineConfig struct {
	TickInterval      time.Duration
	DeclarationsPath  string
	WatchDeclarations bool
	AlertingEnabled   bool
}

// NotificationsConfig contains channel credentials. Credentials are
// read from the environment and held in process memory only.
type NotificationsConfig struct {
	SlackWebhookURL     string
	SendGridAPIKey      string
	EmailFrom           string
	EmailTo             string
	PagerDutyRoutingKey string
	WebhookURL          string
	WebhookSecret       string
	DeliveriesPerMinute int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors as it's optional)
	_ = godotenv.Load()

	cfg := &Config{
		Ops: OpsConfig{
			Host:            getEnv("OPS_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("OPS_PORT", 9090),
			ReadTimeout:     getEnvAsDuration("OPS_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("OPS_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvAsDuration("OPS_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			Enabled:         getEnvAsBool("STORAGE_ENABLED", false),
			Driver:          getEnv("DB_DRIVER", "sqlite"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "burnwatch"),
			User:            getEnv("DB_USER", ""),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			Path:            getEnv("DB_PATH", "./burnwatch.db"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Engine: EngineConfig{
			TickInterval:      getEnvAsDuration("TICK_INTERVAL", 5*time.Minute),
			DeclarationsPath:  getEnv("DECLARATIONS_PATH", "./targets.yaml"),
			WatchDeclarations: getEnvAsBool("WATCH_DECLARATIONS", true),
			AlertingEnabled:   getEnvAsBool("ALERTING_ENABLED", true),
		},
		Notifications: NotificationsConfig{
			SlackWebhookURL:     getEnv("SLACK_WEBHOOK_URL", ""),
			SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
			EmailFrom:           getEnv("ALERT_EMAIL_FROM", "alerts@burnwatch.local"),
			EmailTo:             getEnv("ALERT_EMAIL_TO", ""),
			PagerDutyRoutingKey: getEnv("PAGERDUTY_ROUTING_KEY", ""),
			WebhookURL:          getEnv("ALERT_WEBHOOK_URL", ""),
			WebhookSecret:       getEnv("ALERT_WEBHOOK_SECRET", ""),
			DeliveriesPerMinute: getEnvAsInt("DELIVERIES_PER_MINUTE", 60),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Ops.Port < 1 || c.Ops.Port > 65535 {
		return fmt.Errorf("invalid ops port: %d", c.Ops.Port)
	}

	if c.Storage.Enabled && c.Storage.Driver != "sqlite" && c.Storage.Driver != "postgres" {
		return fmt.Errorf("unsupported database driver: %s", c.Storage.Driver)
	}

	if c.Engine.TickInterval < time.Second {
		return fmt.Errorf("tick interval too small: %s", c.Engine.TickInterval)
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
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Logger       LoggerConfig       `mapstructure:"logger"`
	Workflow     WorkflowConfig     `mapstructure:"workflow"`
	Bulk         BulkConfig         `mapstructure:"bulk"`
	Directory    DirectoryConfig    `mapstructure:"directory"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Lark         LarkConfig         `mapstructure:"lark"`
	Notification NotificationConfig `mapstructure:"notification"`
	Reminder     ReminderConfig     `mapstructure:"reminder"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// WorkflowConfig locates the workflow definitions file
type WorkflowConfig struct {
	DefinitionsPath string `mapstructure:"definitions_path"`
}

// BulkConfig holds bulk operation settings
type BulkConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// DirectoryConfig holds actor directory settings
type DirectoryConfig struct {
	CacheSize int           `mapstructure:"cache_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	Actors    []ActorConfig `mapstructure:"actors"`
}

// ActorConfig is a seeded directory entry
type ActorConfig struct {
	ID           string   `mapstructure:"id"`
	Name         string   `mapstructure:"name"`
	LarkOpenID   string   `mapstructure:"lark_open_id"`
	Capabilities []string `mapstructure:"capabilities"`
}

// AuthConfig holds API authentication settings
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	BaseURL   string `mapstructure:"base_url"`
}

// NotificationConfig holds delivery retry and breaker settings
type NotificationConfig struct {
	MaxRetries         int           `mapstructure:"max_retries"`
	InitialInterval    time.Duration `mapstructure:"initial_interval"`
	MaxInterval        time.Duration `mapstructure:"max_interval"`
	BreakerTimeout     time.Duration `mapstructure:"breaker_timeout"`
	BreakerMinRequests uint32        `mapstructure:"breaker_min_requests"`
	FailureRatio       float64       `mapstructure:"failure_ratio"`
}

// ReminderConfig holds pending-request reminder settings
type ReminderConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
	BatchSize  int           `mapstructure:"batch_size"`
}

// Load loads configuration from file and environment variables.
// Any key can be overridden as APPROVAL_<SECTION>_<KEY>.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APPROVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.path", "data/approval.db")
	v.SetDefault("database.max_open_conns", 8)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("workflow.definitions_path", "configs/workflows.yaml")
	v.SetDefault("bulk.concurrency", 8)

	v.SetDefault("directory.cache_size", 1024)
	v.SetDefault("directory.cache_ttl", 5*time.Minute)

	v.SetDefault("auth.issuer", "approval-workflow")

	v.SetDefault("lark.enabled", false)

	v.SetDefault("notification.max_retries", 3)
	v.SetDefault("notification.initial_interval", 200*time.Millisecond)
	v.SetDefault("notification.max_interval", 5*time.Second)
	v.SetDefault("notification.breaker_timeout", 60*time.Second)
	v.SetDefault("notification.breaker_min_requests", 5)
	v.SetDefault("notification.failure_ratio", 0.5)

	v.SetDefault("reminder.enabled", false)
	v.SetDefault("reminder.interval", 15*time.Minute)
	v.SetDefault("reminder.stale_after", 24*time.Hour)
	v.SetDefault("reminder.batch_size", 100)
}

// bindEnvVars binds the conventional names of secrets
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console")
	}

	if c.Notification.FailureRatio <= 0 || c.Notification.FailureRatio > 1 {
		return fmt.Errorf("notification.failure_ratio must be in (0, 1]")
	}
	if c.Notification.MaxRetries < 0 {
		return fmt.Errorf("notification.max_retries must not be negative")
	}

	return c.ToContainerConfig().Validate()
}

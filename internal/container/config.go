// Package container provides dependency injection and lifecycle management
// for the approval workflow service.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
type Config struct {
	Database     DatabaseConfig
	Workflow     WorkflowConfig
	Bulk         BulkConfig
	Directory    DirectoryConfig
	Lark         LarkConfig
	Notification NotificationConfig
	Reminder     ReminderConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
}

// WorkflowConfig locates the workflow definitions.
type WorkflowConfig struct {
	// DefinitionsPath is the YAML file of stage chains
	DefinitionsPath string
}

// BulkConfig holds bulk operation settings.
type BulkConfig struct {
	// Concurrency caps in-flight items per bulk call
	Concurrency int
}

// DirectoryConfig holds actor directory settings.
type DirectoryConfig struct {
	CacheSize int
	CacheTTL  time.Duration

	// Actors are upserted into the directory at startup
	Actors []ActorSeed
}

// ActorSeed is a directory entry provided by configuration.
type ActorSeed struct {
	ID           string
	Name         string
	LarkOpenID   string
	Capabilities []string
}

// LarkConfig holds Lark API settings.
type LarkConfig struct {
	// Enabled turns on notification delivery
	Enabled bool

	AppID     string
	AppSecret string

	// BaseURL overrides the open platform endpoint
	BaseURL string
}

// NotificationConfig holds delivery retry and circuit breaker settings.
type NotificationConfig struct {
	MaxRetries         int
	InitialInterval    time.Duration
	MaxInterval        time.Duration
	BreakerTimeout     time.Duration
	BreakerMinRequests uint32
	FailureRatio       float64
}

// ReminderConfig holds pending-request reminder settings.
type ReminderConfig struct {
	Enabled    bool
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/approval.db",
			MaxOpenConns:    8,
			MaxIdleConns:    4,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
		},
		Workflow: WorkflowConfig{
			DefinitionsPath: "configs/workflows.yaml",
		},
		Bulk: BulkConfig{
			Concurrency: 8,
		},
		Directory: DirectoryConfig{
			CacheSize: 1024,
			CacheTTL:  5 * time.Minute,
		},
		Notification: NotificationConfig{
			MaxRetries:         3,
			InitialInterval:    200 * time.Millisecond,
			MaxInterval:        5 * time.Second,
			BreakerTimeout:     60 * time.Second,
			BreakerMinRequests: 5,
			FailureRatio:       0.5,
		},
		Reminder: ReminderConfig{
			Interval:   15 * time.Minute,
			StaleAfter: 24 * time.Hour,
			BatchSize:  100,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Workflow.DefinitionsPath == "" {
		return fmt.Errorf("workflow.definitions_path is required")
	}
	if c.Bulk.Concurrency < 1 {
		return fmt.Errorf("bulk.concurrency must be at least 1")
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required when lark is enabled")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required when lark is enabled")
		}
	}

	if c.Reminder.Enabled && (c.Reminder.Interval <= 0 || c.Reminder.StaleAfter <= 0) {
		return fmt.Errorf("reminder.interval and reminder.stale_after must be positive")
	}

	for i, a := range c.Directory.Actors {
		if a.ID == "" {
			return fmt.Errorf("directory.actors[%d].id is required", i)
		}
	}

	return nil
}

package config

import (
	"github.com/garyjia/approval-workflow/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	actors := make([]container.ActorSeed, len(c.Directory.Actors))
	for i, a := range c.Directory.Actors {
		actors[i] = container.ActorSeed{
			ID:           a.ID,
			Name:         a.Name,
			LarkOpenID:   a.LarkOpenID,
			Capabilities: append([]string(nil), a.Capabilities...),
		}
	}

	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
		},
		Workflow: container.WorkflowConfig{
			DefinitionsPath: c.Workflow.DefinitionsPath,
		},
		Bulk: container.BulkConfig{
			Concurrency: c.Bulk.Concurrency,
		},
		Directory: container.DirectoryConfig{
			CacheSize: c.Directory.CacheSize,
			CacheTTL:  c.Directory.CacheTTL,
			Actors:    actors,
		},
		Lark: container.LarkConfig{
			Enabled:   c.Lark.Enabled,
			AppID:     c.Lark.AppID,
			AppSecret: c.Lark.AppSecret,
			BaseURL:   c.Lark.BaseURL,
		},
		Notification: container.NotificationConfig{
			MaxRetries:         c.Notification.MaxRetries,
			InitialInterval:    c.Notification.InitialInterval,
			MaxInterval:        c.Notification.MaxInterval,
			BreakerTimeout:     c.Notification.BreakerTimeout,
			BreakerMinRequests: c.Notification.BreakerMinRequests,
			FailureRatio:       c.Notification.FailureRatio,
		},
		Reminder: container.ReminderConfig{
			Enabled:    c.Reminder.Enabled,
			Interval:   c.Reminder.Interval,
			StaleAfter: c.Reminder.StaleAfter,
			BatchSize:  c.Reminder.BatchSize,
		},
	}
}

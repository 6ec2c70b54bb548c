/*
 *  Copyright 2018 KardiaChain
 *  This file is part of the go-kardia library.
 *
 *  The go-kardia library is free software: you can redistribute it and/or modify
 *  it under the terms of the GNU Lesser General Public License as published by
 *  the Free Software Foundation, either version 3 of the License, or
 *  (at your option) any later version.
 *
 *  The go-kardia library is distributed in the hope that it will be useful,
 *  but WITHOUT ANY WARRANTY; without even the implied warranty of
 *  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 *  GNU Lesser General Public License for more details.
 *
 *  You should have received a copy of the GNU Lesser General Public License
 *  along with the go-kardia library. If not, see <http://www.gnu.org/licenses/>.
 */

// Package cfg
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/guildkit/treasury-backend/types"
)

const (
	ModeDev        = "dev"
	ModeProduction = "prod"
)

type WebhookConfig struct {
	Enabled bool
	URL     string
	Retries int
	Timeout time.Duration
}

type ChatConfig struct {
	Enabled  bool
	Endpoint string
}

type EmailConfig struct {
	Enabled  bool
	Endpoint string
	From     string
	To       []string
}

type NotificationConfig struct {
	ConsoleEnabled bool
	Webhook        WebhookConfig
	Chat           ChatConfig
	Email          EmailConfig

	// QueueSize bounds the in-memory recent-events buffer.
	QueueSize int

	// SinkTimeout is the per-sink delivery budget.
	SinkTimeout time.Duration

	// RedisURL, when set, mirrors recent events into a shared redis list.
	RedisURL string
	RedisDB  int
}

type Config struct {
	ServerMode string
	LogLevel   string
	SentryDSN  string

	StorageAdapter string // file | memory | mgo
	StorageDir     string
	StorageURI     string // mgo adapter only
	StorageDB      string

	EnableFileStorage   bool
	EnableBackups       bool
	MaxBackupsPerRecord int
	AuditRetentionDays  int

	Notifications NotificationConfig

	// DefaultExpiryDaysByUrgency maps urgency to the default number of days
	// before a proposal expires.
	DefaultExpiryDaysByUrgency map[types.Urgency]int
}

func Default() Config {
	return Config{
		ServerMode:          ModeDev,
		LogLevel:            "info",
		StorageAdapter:      "file",
		StorageDir:          "./treasury-data",
		EnableFileStorage:   true,
		EnableBackups:       true,
		MaxBackupsPerRecord: 10,
		AuditRetentionDays:  30,
		Notifications: NotificationConfig{
			ConsoleEnabled: true,
			QueueSize:      1000,
			SinkTimeout:    5 * time.Second,
			Webhook:        WebhookConfig{Retries: 3, Timeout: 5 * time.Second},
		},
		DefaultExpiryDaysByUrgency: map[types.Urgency]int{
			types.UrgencyLow:       7,
			types.UrgencyNormal:    7,
			types.UrgencyHigh:      7,
			types.UrgencyEmergency: 1,
		},
	}
}

func (c Config) Validate() error {
	if c.EnableFileStorage && c.StorageDir == "" {
		return fmt.Errorf("%w: file storage enabled without storageDir", types.ErrInvalidConfig)
	}
	if c.MaxBackupsPerRecord <= 0 {
		return fmt.Errorf("%w: maxBackupsPerRecord must be positive", types.ErrInvalidConfig)
	}
	if c.AuditRetentionDays <= 0 {
		return fmt.Errorf("%w: auditRetentionDays must be positive", types.ErrInvalidConfig)
	}
	if c.Notifications.QueueSize <= 0 {
		return fmt.Errorf("%w: notification queue size must be positive", types.ErrInvalidConfig)
	}
	for u, days := range c.DefaultExpiryDaysByUrgency {
		if days <= 0 {
			return fmt.Errorf("%w: expiry days for urgency %s must be positive", types.ErrInvalidConfig, u)
		}
	}
	return nil
}

// FromEnv builds a config for the demo binary. The coordination core itself
// only ever sees the struct; nothing inside it reads the environment.
func FromEnv() (Config, error) {
	c := Default()

	if v := os.Getenv("SERVER_MODE"); v != "" {
		c.ServerMode = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	c.SentryDSN = os.Getenv("SENTRY_DSN")

	if v := os.Getenv("STORAGE_ADAPTER"); v != "" {
		c.StorageAdapter = v
	}
	if v := os.Getenv("STORAGE_DIR"); v != "" {
		c.StorageDir = v
	}
	c.StorageURI = os.Getenv("STORAGE_URI")
	c.StorageDB = os.Getenv("STORAGE_DB")

	if v := os.Getenv("ENABLE_BACKUPS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			c.EnableBackups = b
		}
	}
	if v := os.Getenv("MAX_BACKUPS_PER_RECORD"); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			c.MaxBackupsPerRecord = n
		}
	}
	if v := os.Getenv("AUDIT_RETENTION_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			c.AuditRetentionDays = n
		}
	}

	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		c.Notifications.Webhook.Enabled = true
		c.Notifications.Webhook.URL = v
	}
	if v := os.Getenv("CHAT_ENDPOINT"); v != "" {
		c.Notifications.Chat.Enabled = true
		c.Notifications.Chat.Endpoint = v
	}
	if v := os.Getenv("EMAIL_ENDPOINT"); v != "" {
		c.Notifications.Email.Enabled = true
		c.Notifications.Email.Endpoint = v
		c.Notifications.Email.From = os.Getenv("EMAIL_FROM")
		if to := os.Getenv("EMAIL_TO"); to != "" {
			c.Notifications.Email.To = strings.Split(to, ",")
		}
	}
	c.Notifications.RedisURL = os.Getenv("NOTIFY_REDIS_URI")
	if v := os.Getenv("NOTIFY_REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			c.Notifications.RedisDB = n
		}
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

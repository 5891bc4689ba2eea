// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AdminConfig struct {
	Port      int    `yaml:"port"`
	APIKey    string `yaml:"api_key"`
	JWTSecret string `yaml:"jwt_secret"`
	Password  string `yaml:"password"` // admin login password
}

// AutomationConfig is the process-wide feature gate. It is read once at
// startup and passed explicitly into worker and dispatcher constructors;
// changing a flag requires a restart.
type AutomationConfig struct {
	Assignment    bool `yaml:"assignment"`
	Renewals      bool `yaml:"renewals"`
	Notifications bool `yaml:"notifications"`
	Email         bool `yaml:"email"`
	Cleanup       bool `yaml:"cleanup"`
	DebugLogs     bool `yaml:"debug_logs"`
}

// ScheduleConfig holds the two daily wall-clock trigger times in 24-hour
// HH:MM format. Parsed once at startup; bad formats refuse to start.
type ScheduleConfig struct {
	RenewalCheckTime string `yaml:"renewal_check_time"` // e.g. "09:00"
	LogCleanupTime   string `yaml:"log_cleanup_time"`   // e.g. "02:00"
}

// EngineConfig tunes the lifecycle and dispatch behavior. Grace window and
// reminder thresholds are deliberately configuration, not constants.
type EngineConfig struct {
	GraceDays        int           `yaml:"grace_days"`
	ReminderDays     []int         `yaml:"reminder_days"` // e.g. [7,3,1,0]
	RetentionDays    int           `yaml:"retention_days"`
	MaxSendAttempts  int           `yaml:"max_send_attempts"`
	SendBackoffBase  time.Duration `yaml:"send_backoff_base"`
	AttemptTimeout   time.Duration `yaml:"attempt_timeout"`
	ChargeTimeout    time.Duration `yaml:"charge_timeout"`
	RunLockTTL       time.Duration `yaml:"run_lock_ttl"`
	AlertListLimit   int           `yaml:"alert_list_limit"`
	SnapshotCacheTTL time.Duration `yaml:"snapshot_cache_ttl"`
}

type MessagingConfig struct {
	Token string `yaml:"token"` // bot token for the messaging provider
}

type EmailConfig struct {
	ServerToken  string `yaml:"server_token"`
	AccountToken string `yaml:"account_token"`
	From         string `yaml:"from"`
	Support      string `yaml:"support"`
}

type ChannelsConfig struct {
	Messaging MessagingConfig `yaml:"messaging"`
	Email     EmailConfig     `yaml:"email"`
}

type PaymentConfig struct {
	ChargeURL string `yaml:"charge_url"`
	APIKey    string `yaml:"api_key"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Admin      AdminConfig      `yaml:"admin"`
	Automation AutomationConfig `yaml:"automation"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Engine     EngineConfig     `yaml:"engine"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Payment    PaymentConfig    `yaml:"payment"`
	Security   SecurityConfig   `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads, defaults and validates the YAML config. Any validation
// failure here is fatal by design: the automation loop must never start with
// an undefined schedule or missing channel credentials.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Schedule.RenewalCheckTime == "" {
		c.Schedule.RenewalCheckTime = "09:00"
	}
	if c.Schedule.LogCleanupTime == "" {
		c.Schedule.LogCleanupTime = "02:00"
	}
	if c.Engine.GraceDays <= 0 {
		c.Engine.GraceDays = 3
	}
	if len(c.Engine.ReminderDays) == 0 {
		c.Engine.ReminderDays = []int{7, 3, 1, 0}
	}
	if c.Engine.RetentionDays <= 0 {
		c.Engine.RetentionDays = 90
	}
	if c.Engine.MaxSendAttempts <= 0 {
		c.Engine.MaxSendAttempts = 4
	}
	if c.Engine.SendBackoffBase <= 0 {
		c.Engine.SendBackoffBase = 2 * time.Second
	}
	if c.Engine.AttemptTimeout <= 0 {
		c.Engine.AttemptTimeout = 15 * time.Second
	}
	if c.Engine.ChargeTimeout <= 0 {
		c.Engine.ChargeTimeout = 30 * time.Second
	}
	if c.Engine.RunLockTTL <= 0 {
		c.Engine.RunLockTTL = 30 * time.Minute
	}
	if c.Engine.AlertListLimit <= 0 {
		c.Engine.AlertListLimit = 100
	}
	if c.Engine.SnapshotCacheTTL <= 0 {
		c.Engine.SnapshotCacheTTL = time.Minute
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if _, err := ParseClock(c.Schedule.RenewalCheckTime); err != nil {
		return fmt.Errorf("schedule.renewal_check_time: %w", err)
	}
	if _, err := ParseClock(c.Schedule.LogCleanupTime); err != nil {
		return fmt.Errorf("schedule.log_cleanup_time: %w", err)
	}
	if c.Automation.Notifications && c.Channels.Messaging.Token == "" && !c.Automation.Email {
		return errors.New("automation.notifications is on but no channel is configured: set channels.messaging.token or enable automation.email")
	}
	if c.Automation.Email {
		if c.Channels.Email.ServerToken == "" || c.Channels.Email.AccountToken == "" {
			return errors.New("automation.email is on but channels.email.server_token/account_token are missing")
		}
		if c.Channels.Email.From == "" {
			return errors.New("automation.email is on but channels.email.from is missing")
		}
	}
	for _, d := range c.Engine.ReminderDays {
		if d < 0 {
			return fmt.Errorf("engine.reminder_days: negative threshold %d", d)
		}
	}
	switch len(c.Security.EncryptionKey) {
	case 16, 24, 32:
	default:
		return errors.New("security.encryption_key must be 16, 24 or 32 bytes")
	}
	return nil
}

// Clock is a parsed HH:MM wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock validates a 24-hour "HH:MM" string.
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, fmt.Errorf("invalid HH:MM time %q", s)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// NextAfter returns the next occurrence of the clock time strictly after now,
// in now's location.
func (c Clock) NextAfter(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), c.Hour, c.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// GraceWindow converts the configured grace days into a duration.
func (c *Config) GraceWindow() time.Duration {
	return time.Duration(c.Engine.GraceDays) * 24 * time.Hour
}

// Retention converts the configured retention days into a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Engine.RetentionDays) * 24 * time.Hour
}

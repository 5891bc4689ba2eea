//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
database:
  url: postgres://localhost/engine
redis:
  url: localhost:6379
security:
  encryption_key: "0123456789abcdef"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("should apply defaults to a minimal config", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, minimalYAML), false)
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
			t.Errorf("unexpected log defaults: %+v", cfg.Log)
		}
		if cfg.Schedule.RenewalCheckTime != "09:00" {
			t.Errorf("expected default renewal time 09:00, got %s", cfg.Schedule.RenewalCheckTime)
		}
		if cfg.Engine.GraceDays != 3 {
			t.Errorf("expected default grace of 3 days, got %d", cfg.Engine.GraceDays)
		}
		if got := cfg.GraceWindow(); got != 72*time.Hour {
			t.Errorf("expected a 72h grace window, got %v", got)
		}
		if len(cfg.Engine.ReminderDays) == 0 {
			t.Error("expected default reminder thresholds")
		}
		if cfg.Engine.MaxSendAttempts != 4 {
			t.Errorf("expected 4 send attempts, got %d", cfg.Engine.MaxSendAttempts)
		}
	})

	t.Run("should require the database url", func(t *testing.T) {
		body := strings.Replace(minimalYAML, "url: postgres://localhost/engine", "url: \"\"", 1)
		if _, err := LoadConfig(writeConfig(t, body), false); err == nil {
			t.Fatal("expected an error for a missing database url")
		}
	})

	t.Run("should reject a malformed schedule time", func(t *testing.T) {
		body := minimalYAML + "schedule:\n  renewal_check_time: \"25:99\"\n"
		if _, err := LoadConfig(writeConfig(t, body), false); err == nil {
			t.Fatal("expected an error for an invalid schedule time")
		}
	})

	t.Run("should reject a bad encryption key length", func(t *testing.T) {
		body := strings.Replace(minimalYAML, `encryption_key: "0123456789abcdef"`, `encryption_key: "short"`, 1)
		if _, err := LoadConfig(writeConfig(t, body), false); err == nil {
			t.Fatal("expected an error for a short encryption key")
		}
	})

	t.Run("should require a channel when notifications are on", func(t *testing.T) {
		body := minimalYAML + "automation:\n  notifications: true\n"
		if _, err := LoadConfig(writeConfig(t, body), false); err == nil {
			t.Fatal("expected an error when notifications are on without a channel")
		}

		body += "channels:\n  messaging:\n    token: \"bot-token\"\n"
		if _, err := LoadConfig(writeConfig(t, body), false); err != nil {
			t.Fatalf("expected the messaging token to satisfy the check, got: %v", err)
		}
	})

	t.Run("should require email credentials when email is on", func(t *testing.T) {
		body := minimalYAML + "automation:\n  email: true\n"
		if _, err := LoadConfig(writeConfig(t, body), false); err == nil {
			t.Fatal("expected an error when email is on without tokens")
		}
	})
}

func TestParseClock(t *testing.T) {
	t.Run("should parse a 24-hour time", func(t *testing.T) {
		clock, err := ParseClock("09:30")
		if err != nil {
			t.Fatalf("ParseClock: %v", err)
		}
		if clock.Hour != 9 || clock.Minute != 30 {
			t.Errorf("expected 09:30, got %02d:%02d", clock.Hour, clock.Minute)
		}
	})

	t.Run("should reject malformed input", func(t *testing.T) {
		for _, s := range []string{"", "9am", "24:00", "12:60", "12-30"} {
			if _, err := ParseClock(s); err == nil {
				t.Errorf("expected an error for %q", s)
			}
		}
	})
}

func TestClock_NextAfter(t *testing.T) {
	clock := Clock{Hour: 9, Minute: 0}
	loc := time.UTC

	t.Run("should pick today when the time is still ahead", func(t *testing.T) {
		now := time.Date(2026, 8, 29, 8, 0, 0, 0, loc)
		next := clock.NextAfter(now)
		want := time.Date(2026, 8, 29, 9, 0, 0, 0, loc)
		if !next.Equal(want) {
			t.Errorf("expected %v, got %v", want, next)
		}
	})

	t.Run("should roll to tomorrow when the time has passed", func(t *testing.T) {
		now := time.Date(2026, 8, 29, 9, 0, 0, 0, loc)
		next := clock.NextAfter(now)
		want := time.Date(2026, 8, 30, 9, 0, 0, 0, loc)
		if !next.Equal(want) {
			t.Errorf("expected %v, got %v", want, next)
		}
	})
}

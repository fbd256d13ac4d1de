package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeTOML(t, `
[telegram]
bot_token = "tok"
owner_id = 42

[pixiv]
refresh_token = "rt"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Scheduler.TickIntervalSec != 30 {
		t.Fatalf("expected default tick interval 30, got %d", cfg.Scheduler.TickIntervalSec)
	}
	if cfg.Telegram.BotMode != ModePrivate {
		t.Fatalf("expected default bot_mode private, got %q", cfg.Telegram.BotMode)
	}
	if len(cfg.Content.SensitiveTags) != 3 {
		t.Fatalf("expected 3 default sensitive tags, got %v", cfg.Content.SensitiveTags)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeTOML(t, `
[telegram]
bot_token = "tok"

[pixiv]
refresh_token = "rt"
`)
	t.Setenv("PIXIVBOT_TELEGRAM__BOT_MODE", "public")
	t.Setenv("PIXIVBOT_SCHEDULER__TICK_INTERVAL_SEC", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.BotMode != ModePublic {
		t.Fatalf("expected env override to public, got %q", cfg.Telegram.BotMode)
	}
	if cfg.Scheduler.TickIntervalSec != 5 {
		t.Fatalf("expected env override tick interval 5, got %d", cfg.Scheduler.TickIntervalSec)
	}
}

func TestValidate_MissingBotToken(t *testing.T) {
	path := writeTOML(t, `
[pixiv]
refresh_token = "rt"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing bot_token")
	}
}

func TestValidate_BadIntervals(t *testing.T) {
	c := &Config{
		Telegram: Telegram{BotToken: "t", BotMode: ModePrivate},
		Pixiv:    Pixiv{RefreshToken: "r"},
		Scheduler: Scheduler{
			MinIntervalMS: 3000, MaxIntervalMS: 1500,
			MinTaskIntervalSec: 100, MaxTaskIntervalSec: 200,
		},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for inverted interval bounds")
	}
}

// Package config loads the bot's TOML configuration file with environment
// variable overrides, per spec.md §6.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// BotMode gates which chats accept commands from non-privileged users.
type BotMode string

const (
	ModePublic  BotMode = "public"
	ModePrivate BotMode = "private"
)

// Telegram holds the chat-platform credentials and operating mode.
type Telegram struct {
	BotToken string  `mapstructure:"bot_token"`
	OwnerID  int64   `mapstructure:"owner_id"`
	BotMode  BotMode `mapstructure:"bot_mode"`
}

// Pixiv holds the source OAuth credential.
type Pixiv struct {
	RefreshToken string `mapstructure:"refresh_token"`
}

// Database holds the relational store's connection URL.
type Database struct {
	URL string `mapstructure:"url"`
}

// Logging controls the structured logger.
type Logging struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`
}

// Scheduler controls the tick loop, pacing, cache, and retry behavior.
type Scheduler struct {
	TickIntervalSec    int `mapstructure:"tick_interval_sec"`
	MinTaskIntervalSec int `mapstructure:"min_task_interval_sec"`
	MaxTaskIntervalSec int `mapstructure:"max_task_interval_sec"`
	MinIntervalMS      int `mapstructure:"min_interval_ms"`
	MaxIntervalMS      int `mapstructure:"max_interval_ms"`
	CacheDir           string `mapstructure:"cache_dir"`
	CacheRetentionDays int    `mapstructure:"cache_retention_days"`
	MaxRetryCount      int    `mapstructure:"max_retry_count"`
}

// Content holds content-classification defaults.
type Content struct {
	SensitiveTags []string `mapstructure:"sensitive_tags"`
	// RankingTopN is the number of top ranking works pushed per subscriber;
	// see SPEC_FULL.md §9.1 Open Question 3 (kept global, not per-subscription).
	RankingTopN int `mapstructure:"ranking_top_n"`
}

// Config is the fully resolved configuration, after TOML load and env override.
type Config struct {
	Telegram  Telegram  `mapstructure:"telegram"`
	Pixiv     Pixiv     `mapstructure:"pixiv"`
	Database  Database  `mapstructure:"database"`
	Logging   Logging   `mapstructure:"logging"`
	Scheduler Scheduler `mapstructure:"scheduler"`
	Content   Content   `mapstructure:"content"`
}

func defaults() *viper.Viper {
	v := viper.New()
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.owner_id", 0)
	v.SetDefault("telegram.bot_mode", string(ModePrivate))
	v.SetDefault("pixiv.refresh_token", "")
	v.SetDefault("database.url", "sqlite:./data/pixivbot.db?mode=rwc")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.dir", "./data/logs")
	v.SetDefault("scheduler.tick_interval_sec", 30)
	v.SetDefault("scheduler.min_task_interval_sec", 7200)
	v.SetDefault("scheduler.max_task_interval_sec", 10800)
	v.SetDefault("scheduler.min_interval_ms", 1500)
	v.SetDefault("scheduler.max_interval_ms", 3000)
	v.SetDefault("scheduler.cache_dir", "./data/cache")
	v.SetDefault("scheduler.cache_retention_days", 7)
	v.SetDefault("scheduler.max_retry_count", 3)
	v.SetDefault("content.sensitive_tags", []string{"R-18", "R-18G", "NSFW"})
	v.SetDefault("content.ranking_top_n", 10)
	return v
}

// Load reads path (TOML) and overlays environment variables of the form
// PIXIVBOT__<section>__<key> (double underscore between nested keys, per
// spec.md §6). Unrecognized keys in the file are ignored — forward
// compatible by construction, since only the mapstructure tags above are
// ever read back out.
func Load(path string) (*Config, error) {
	v := defaults()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetEnvPrefix("PIXIVBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		// Missing file is tolerated: defaults + env vars may be sufficient.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the minimum set of fields required to start the service.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.Pixiv.RefreshToken == "" {
		return fmt.Errorf("pixiv.refresh_token is required")
	}
	if c.Telegram.BotMode != ModePublic && c.Telegram.BotMode != ModePrivate {
		return fmt.Errorf("telegram.bot_mode must be %q or %q, got %q", ModePublic, ModePrivate, c.Telegram.BotMode)
	}
	if c.Scheduler.MinIntervalMS <= 0 || c.Scheduler.MaxIntervalMS < c.Scheduler.MinIntervalMS {
		return fmt.Errorf("scheduler.min_interval_ms/max_interval_ms are invalid")
	}
	if c.Scheduler.MinTaskIntervalSec <= 0 || c.Scheduler.MaxTaskIntervalSec < c.Scheduler.MinTaskIntervalSec {
		return fmt.Errorf("scheduler.min_task_interval_sec/max_task_interval_sec are invalid")
	}
	return nil
}

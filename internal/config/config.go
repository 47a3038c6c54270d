package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/elonfeng/toonrank/internal/store"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	YouTube  YouTubeConfig  `yaml:"youtube"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig configures the relational store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" (default) or "pgx"
	Path   string `yaml:"path"`   // file path for sqlite, connection URL for pgx
}

// YouTubeConfig configures the video providers.
type YouTubeConfig struct {
	APIKey            string   `yaml:"api_key"`
	SearchMode        string   `yaml:"search_mode"` // "api" or "feeds"
	Channels          []string `yaml:"channels"`
	Region            string   `yaml:"region"`
	Language          string   `yaml:"language"`
	Timeout           string   `yaml:"timeout"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	MaxRetries        uint     `yaml:"max_retries"`
}

// ParseTimeout returns the provider timeout as time.Duration.
func (y YouTubeConfig) ParseTimeout() time.Duration {
	d, err := time.ParseDuration(y.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// FetchConfig configures candidate collection and filtering.
type FetchConfig struct {
	MinCandidates   int      `yaml:"min_candidates"`
	MaxPages        int      `yaml:"max_pages"`
	MaxMinutes      int      `yaml:"max_minutes"`
	AllowShort      bool     `yaml:"allow_short"` // accept videos under one minute
	CaptionLanguage string   `yaml:"caption_language"`
	ExtraDenylist   []string `yaml:"extra_denylist"`
}

// ScheduleConfig configures the cache warmer.
type ScheduleConfig struct {
	WarmInterval string   `yaml:"warm_interval"`
	WarmQueries  []string `yaml:"warm_queries"`
}

// ParseWarmInterval returns the warm interval as time.Duration.
func (s ScheduleConfig) ParseWarmInterval() time.Duration {
	d, err := time.ParseDuration(s.WarmInterval)
	if err != nil || d <= 0 {
		return 6 * time.Hour
	}
	return d
}

// AlertsConfig configures alert destinations.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port    int `yaml:"port"`
	PerPage int `yaml:"per_page"`
}

// LogConfig configures logging. File output is optional and rotated.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // "text" or "json"
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: "sqlite", Path: "./toonrank.db"},
		YouTube: YouTubeConfig{
			SearchMode:        "api",
			Region:            "US",
			Language:          "en",
			Timeout:           "30s",
			RequestsPerSecond: 5,
			MaxRetries:        3,
		},
		Fetch: FetchConfig{
			MinCandidates:   100,
			MaxPages:        10,
			MaxMinutes:      8,
			CaptionLanguage: "en",
		},
		Schedule: ScheduleConfig{WarmInterval: "6h"},
		Server:   ServerConfig{Port: 8080, PerPage: 5},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Validate checks values that have no usable default.
func (c *Config) Validate() error {
	var errs []error
	if _, ok := store.NormalizeDriver(c.Database.Driver); !ok {
		errs = append(errs, fmt.Errorf("database.driver %q is not sqlite or pgx", c.Database.Driver))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	switch c.YouTube.SearchMode {
	case "api":
	case "feeds":
		if len(c.YouTube.Channels) == 0 {
			errs = append(errs, errors.New("youtube.channels is required when search_mode is feeds"))
		}
	default:
		errs = append(errs, fmt.Errorf("youtube.search_mode %q is not api or feeds", c.YouTube.SearchMode))
	}
	if c.Fetch.MinCandidates < 0 || c.Fetch.MaxPages < 0 || c.Fetch.MaxMinutes < 0 {
		errs = append(errs, errors.New("fetch limits must not be negative"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	return errors.Join(errs...)
}

// RequireAPIKey reports whether resolving queries can reach the provider.
func (c *Config) RequireAPIKey() error {
	if c.YouTube.APIKey == "" {
		return errors.New("youtube api key not set (youtube.api_key or YOUTUBE_API_KEY)")
	}
	return nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TOONRANK_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TOONRANK_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("YOUTUBE_API_KEY"); v != "" {
		cfg.YouTube.APIKey = v
	}
	if v := os.Getenv("TOONRANK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
}

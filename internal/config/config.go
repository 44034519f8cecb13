// Package config holds the application configuration of the suggestion bot.
package config

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/suggestbot/core/config"
	coredatabase "github.com/m3rciful/suggestbot/core/database"
)

// SuggestConfig configures the suggestion pipeline.
type SuggestConfig struct {
	// ChannelID is the public channel approved suggestions are published to.
	ChannelID int64  `yaml:"channel_id" envconfig:"CHANNEL_ID"`
	LinkText  string `yaml:"link_text" envconfig:"LINK_TEXT"`
	LinkURL   string `yaml:"link_url" envconfig:"LINK"`

	AlbumLatencyMS int `yaml:"album_latency_ms" envconfig:"ALBUM_LATENCY_MS"`
	AlbumLimit     int `yaml:"album_limit" envconfig:"ALBUM_LIMIT"`

	RetentionHours   int `yaml:"retention_hours" envconfig:"MESSAGE_LIFETIME_HOURS"`
	RetentionSeconds int `yaml:"retention_seconds" envconfig:"MESSAGE_LIFETIME_SECONDS"`
}

// AlbumLatency returns the coalescing window of album parts.
func (s SuggestConfig) AlbumLatency() time.Duration {
	return time.Duration(s.AlbumLatencyMS) * time.Millisecond
}

// Retention returns how long a mirrored suggestion lives before expiry.
func (s SuggestConfig) Retention() time.Duration {
	return time.Duration(s.RetentionHours)*time.Hour + time.Duration(s.RetentionSeconds)*time.Second
}

const (
	defaultAlbumLatencyMS = 300
	defaultAlbumLimit     = 3
	defaultRetentionHours = 47
)

// Config aggregates core, database and suggestion settings.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Suggest  SuggestConfig       `yaml:"suggest"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// Load reads the YAML file at path, applies env overrides and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates every section and fills defaults.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}
	if err := c.Database.Normalize(); err != nil {
		return err
	}

	s := &c.Suggest
	if s.ChannelID == 0 {
		return fmt.Errorf("suggest.channel_id is required")
	}
	s.LinkText = strings.TrimSpace(s.LinkText)
	s.LinkURL = strings.TrimSpace(s.LinkURL)
	if (s.LinkText == "") != (s.LinkURL == "") {
		return fmt.Errorf("suggest.link_text and suggest.link_url must be set together")
	}
	if s.AlbumLatencyMS < 0 || s.AlbumLimit < 0 || s.RetentionHours < 0 || s.RetentionSeconds < 0 {
		return fmt.Errorf("suggest: durations and limits must be >= 0")
	}
	if s.AlbumLatencyMS == 0 {
		s.AlbumLatencyMS = defaultAlbumLatencyMS
	}
	if s.AlbumLimit == 0 {
		s.AlbumLimit = defaultAlbumLimit
	}
	if s.RetentionHours == 0 && s.RetentionSeconds == 0 {
		s.RetentionHours = defaultRetentionHours
	}
	return nil
}

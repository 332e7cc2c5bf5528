// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

// Package config defines the application configuration and loads it from
// layered sources: struct defaults, an optional YAML file, and environment
// variables (highest priority).
package config

import "time"

// Config is the root configuration for the server binary.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	NATS      NATSConfig      `koanf:"nats"`
	Cache     CacheConfig     `koanf:"cache"`
	Crawler   CrawlerConfig   `koanf:"crawler"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	SMTP      SMTPConfig      `koanf:"smtp"`
	Notify    NotifyConfig    `koanf:"notify"`
	Events    EventsConfig    `koanf:"events"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// DatabaseConfig holds the SQLite storage settings.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// NATSConfig holds the connection settings for the distributed cache tier.
// With EmbeddedServer set, an in-process NATS server is started and URL is
// ignored.
type NATSConfig struct {
	Enabled        bool          `koanf:"enabled"`
	URL            string        `koanf:"url"`
	EmbeddedServer bool          `koanf:"embedded_server"`
	StoreDir       string        `koanf:"store_dir"`
	Bucket         string        `koanf:"bucket"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// CacheConfig holds the in-process cache tier settings.
type CacheConfig struct {
	DefaultTTL      time.Duration `koanf:"default_ttl"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	MaxEntries      int           `koanf:"max_entries"`
}

// CrawlerConfig holds the external crawler subprocess settings. The timeout
// for one cycle scales with the number of complexes, clamped to
// [BaseTimeout, MaxTimeout].
type CrawlerConfig struct {
	Command           string        `koanf:"command"`
	Args              []string      `koanf:"args"`
	BaseTimeout       time.Duration `koanf:"base_timeout"`
	TimeoutPerComplex time.Duration `koanf:"timeout_per_complex"`
	MaxTimeout        time.Duration `koanf:"max_timeout"`
}

// SchedulerConfig holds cron scheduling settings.
type SchedulerConfig struct {
	Timezone     string `koanf:"timezone"`
	MaxSchedules int    `koanf:"max_schedules"`
}

// SMTPConfig holds the email channel settings.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
	StartTLS bool   `koanf:"starttls"`
}

// NotifyConfig holds dispatcher settings shared across channels.
type NotifyConfig struct {
	MaxConcurrent  int           `koanf:"max_concurrent"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	// DiscordRate limits Discord webhook POSTs per second across all alerts.
	DiscordRate float64 `koanf:"discord_rate"`
}

// EventsConfig holds push event stream settings.
type EventsConfig struct {
	SubscriberBuffer int           `koanf:"subscriber_buffer"`
	StaleTimeout     time.Duration `koanf:"stale_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8087,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    0, // streaming endpoints manage their own deadlines
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Database: DatabaseConfig{
			Path: "/data/zipalim.db",
		},
		NATS: NATSConfig{
			Enabled:        true,
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: true,
			StoreDir:       "/data/nats/jetstream",
			Bucket:         "zipalim-cache",
			RequestTimeout: 2 * time.Second,
		},
		Cache: CacheConfig{
			DefaultTTL:      5 * time.Minute,
			CleanupInterval: time.Minute,
			MaxEntries:      10000,
		},
		Crawler: CrawlerConfig{
			Command:           "python3",
			Args:              []string{"-m", "crawler"},
			BaseTimeout:       2 * time.Minute,
			TimeoutPerComplex: 30 * time.Second,
			MaxTimeout:        30 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			Timezone:     "UTC",
			MaxSchedules: 50,
		},
		SMTP: SMTPConfig{
			Port:     587,
			StartTLS: true,
		},
		Notify: NotifyConfig{
			MaxConcurrent:  5,
			RequestTimeout: 10 * time.Second,
			DiscordRate:    2,
		},
		Events: EventsConfig{
			SubscriberBuffer: 64,
			StaleTimeout:     5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

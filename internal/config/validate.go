// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate checks the configuration for values that would prevent startup.
// It returns all problems joined, not just the first.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range 1-65535", c.Server.Port))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path must not be empty"))
	}
	if c.NATS.Enabled && !c.NATS.EmbeddedServer && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url required when nats.enabled and not embedded"))
	}
	if c.Cache.DefaultTTL <= 0 {
		errs = append(errs, errors.New("cache.default_ttl must be positive"))
	}
	if c.Crawler.Command == "" {
		errs = append(errs, errors.New("crawler.command must not be empty"))
	}
	if c.Crawler.BaseTimeout <= 0 || c.Crawler.MaxTimeout < c.Crawler.BaseTimeout {
		errs = append(errs, errors.New("crawler timeouts must satisfy 0 < base_timeout <= max_timeout"))
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.timezone %q invalid: %w", c.Scheduler.Timezone, err))
	}
	if c.Scheduler.MaxSchedules < 1 {
		errs = append(errs, errors.New("scheduler.max_schedules must be at least 1"))
	}
	if c.Notify.MaxConcurrent < 1 {
		errs = append(errs, errors.New("notify.max_concurrent must be at least 1"))
	}
	if c.Events.SubscriberBuffer < 1 {
		errs = append(errs, errors.New("events.subscriber_buffer must be at least 1"))
	}

	return errors.Join(errs...)
}

// Location returns the scheduler timezone. Validate has already checked it
// parses; an unexpected failure falls back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

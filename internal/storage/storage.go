// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

// Package storage persists complexes, listings, alert definitions, delivery
// logs, schedules, and crawl history. The SQLite implementation is the
// production store; the in-memory implementation backs tests.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/zipalim/zipalim/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("storage: not found")

// ComplexStore manages tracked apartment complexes.
type ComplexStore interface {
	UpsertComplex(ctx context.Context, c models.Complex) error
	GetComplex(ctx context.Context, complexNo string) (models.Complex, error)
	ListComplexes(ctx context.Context) ([]models.Complex, error)
	DeleteComplex(ctx context.Context, complexNo string) error
}

// ListingStore manages the persisted listing state per complex. The diff in
// the change-detection engine compares a fresh snapshot against
// ListingsByComplex, then ReplaceListings commits the snapshot as the new
// persisted state in one transaction.
type ListingStore interface {
	ListingsByComplex(ctx context.Context, complexNo string) ([]models.Listing, error)
	ReplaceListings(ctx context.Context, complexNo string, listings []models.Listing) error
}

// AlertStore manages alert definitions.
type AlertStore interface {
	CreateAlert(ctx context.Context, a models.AlertDefinition) error
	UpdateAlert(ctx context.Context, a models.AlertDefinition) error
	DeleteAlert(ctx context.Context, id string) error
	GetAlert(ctx context.Context, id string) (models.AlertDefinition, error)
	ListAlerts(ctx context.Context) ([]models.AlertDefinition, error)
	// ActiveAlertsForComplex returns active alerts whose complex filter
	// includes complexNo.
	ActiveAlertsForComplex(ctx context.Context, complexNo string) ([]models.AlertDefinition, error)
}

// NotificationLogStore is the append-only delivery audit trail.
type NotificationLogStore interface {
	AppendNotificationLog(ctx context.Context, e models.NotificationLogEntry) error
	ListNotificationLogs(ctx context.Context, alertID string, limit int) ([]models.NotificationLogEntry, error)
}

// ScheduleStore manages schedules and their per-fire logs.
type ScheduleStore interface {
	CreateSchedule(ctx context.Context, s models.Schedule) error
	UpdateSchedule(ctx context.Context, s models.Schedule) error
	DeleteSchedule(ctx context.Context, id string) error
	GetSchedule(ctx context.Context, id string) (models.Schedule, error)
	ListSchedules(ctx context.Context) ([]models.Schedule, error)
	ListActiveSchedules(ctx context.Context) ([]models.Schedule, error)
	// UpdateScheduleRunTimes records the last fire and the next planned
	// fire. A zero lastRun leaves the recorded last fire untouched.
	UpdateScheduleRunTimes(ctx context.Context, id string, lastRun, nextRun time.Time) error
	AppendScheduleLog(ctx context.Context, l models.ScheduleLog) error
	ListScheduleLogs(ctx context.Context, scheduleID string, limit int) ([]models.ScheduleLog, error)
}

// CrawlHistoryStore records crawl cycles.
type CrawlHistoryStore interface {
	CreateCrawlHistory(ctx context.Context, h models.CrawlHistory) error
	UpdateCrawlHistory(ctx context.Context, h models.CrawlHistory) error
	ListCrawlHistory(ctx context.Context, limit int) ([]models.CrawlHistory, error)
}

// Store is the full persistence surface used by the server.
type Store interface {
	ComplexStore
	ListingStore
	AlertStore
	NotificationLogStore
	ScheduleStore
	CrawlHistoryStore

	Ping(ctx context.Context) error
	Close() error
}

// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package models

import "time"

// Schedule is a recurring crawl job definition. The in-memory timer for an
// active schedule is owned by the scheduler; the persisted record is the
// source of truth re-registered on startup.
type Schedule struct {
	ID           string    `json:"id"`
	Name         string    `json:"name" validate:"required"`
	CronExpr     string    `json:"cron_expr" validate:"required"`
	ComplexNos   []string  `json:"complex_nos" validate:"required_without=UseFavorites"`
	UseFavorites bool      `json:"use_favorites"` // crawl the owner's bookmarked complexes instead
	UserID       string    `json:"user_id,omitempty"`
	IsActive     bool      `json:"is_active"`
	LastRunAt    *time.Time `json:"last_run_at,omitempty"`
	NextRunAt    *time.Time `json:"next_run_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ScheduleLog is the append-only record of one schedule fire.
type ScheduleLog struct {
	ID            int64     `json:"id"`
	ScheduleID    string    `json:"schedule_id"`
	Status        string    `json:"status"` // success | failed
	DurationSec   int       `json:"duration_sec"`
	ListingsCount int       `json:"listings_count"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// CrawlStatus tracks a crawl cycle through its lifecycle.
type CrawlStatus string

const (
	CrawlStatusPending  CrawlStatus = "pending"
	CrawlStatusCrawling CrawlStatus = "crawling"
	CrawlStatusSuccess  CrawlStatus = "success"
	CrawlStatusPartial  CrawlStatus = "partial"
	CrawlStatusFailed   CrawlStatus = "failed"
)

// CrawlHistory records one crawl cycle end to end: which complexes were
// targeted, how far it got, and how it ended.
type CrawlHistory struct {
	ID            string      `json:"id"`
	ComplexNos    []string    `json:"complex_nos"`
	Status        CrawlStatus `json:"status"`
	CurrentStep   string      `json:"current_step,omitempty"`
	SuccessCount  int         `json:"success_count"`
	ErrorCount    int         `json:"error_count"`
	TotalListings int         `json:"total_listings"`
	DurationSec   int         `json:"duration_sec"`
	ErrorMessage  string      `json:"error_message,omitempty"`
	ScheduleID    string      `json:"schedule_id,omitempty"`
	StartedAt     time.Time   `json:"started_at"`
}

// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

// Package metrics exposes Prometheus instrumentation for the pipeline:
// crawl cycles, notification outcomes, cache efficiency per tier, the event
// stream, and the HTTP API. Metrics are served at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Crawl cycle metrics
	CrawlCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawl_cycles_total",
			Help: "Total number of finished crawl cycles",
		},
		[]string{"status"}, // success, partial, failed
	)

	CrawlCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crawl_cycle_duration_seconds",
			Help:    "Duration of crawl cycles in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	CrawlListingsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crawl_listings_processed_total",
			Help: "Total number of listings processed across crawl cycles",
		},
	)

	CrawlChangesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawl_changes_detected_total",
			Help: "Total number of listing changes detected",
		},
		[]string{"kind"}, // new, removed, price_changed
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total number of notification delivery attempts",
		},
		[]string{"channel", "status"}, // channel: browser/email/webhook/discord
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"tier"}, // l1, l2
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of full cache misses",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current number of tier-1 cache entries",
		},
	)

	// Event stream metrics
	EventClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "event_stream_clients",
			Help: "Current number of connected event stream clients",
		},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "event_stream_dropped_total",
			Help: "Total number of events dropped for slow subscribers",
		},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)

	// Scheduler metrics
	SchedulesRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "schedules_registered",
			Help: "Current number of registered schedules",
		},
	)
)

// RecordCrawlCycle records one finished crawl cycle.
func RecordCrawlCycle(status string, duration time.Duration, listings int) {
	CrawlCyclesTotal.WithLabelValues(status).Inc()
	CrawlCycleDuration.Observe(duration.Seconds())
	CrawlListingsProcessed.Add(float64(listings))
}

// RecordChanges records the change counts of one processed complex.
func RecordChanges(newCount, removedCount, priceChangedCount int) {
	if newCount > 0 {
		CrawlChangesDetected.WithLabelValues("new").Add(float64(newCount))
	}
	if removedCount > 0 {
		CrawlChangesDetected.WithLabelValues("removed").Add(float64(removedCount))
	}
	if priceChangedCount > 0 {
		CrawlChangesDetected.WithLabelValues("price_changed").Add(float64(priceChangedCount))
	}
}

// RecordNotification records one delivery attempt.
func RecordNotification(channel, status string) {
	NotificationsTotal.WithLabelValues(channel, status).Inc()
}

// RecordAPIRequest records one API request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

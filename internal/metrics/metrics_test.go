// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordCrawlCycle(t *testing.T) {
	before := testutil.ToFloat64(CrawlCyclesTotal.WithLabelValues("success"))
	listingsBefore := testutil.ToFloat64(CrawlListingsProcessed)

	RecordCrawlCycle("success", 42*time.Second, 120)

	if got := testutil.ToFloat64(CrawlCyclesTotal.WithLabelValues("success")); got != before+1 {
		t.Errorf("crawl_cycles_total = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(CrawlListingsProcessed); got != listingsBefore+120 {
		t.Errorf("crawl_listings_processed_total = %v, want %v", got, listingsBefore+120)
	}
}

func TestRecordChangesSkipsZeroCounts(t *testing.T) {
	newBefore := testutil.ToFloat64(CrawlChangesDetected.WithLabelValues("new"))
	removedBefore := testutil.ToFloat64(CrawlChangesDetected.WithLabelValues("removed"))

	RecordChanges(3, 0, 1)

	if got := testutil.ToFloat64(CrawlChangesDetected.WithLabelValues("new")); got != newBefore+3 {
		t.Errorf("new changes = %v, want %v", got, newBefore+3)
	}
	if got := testutil.ToFloat64(CrawlChangesDetected.WithLabelValues("removed")); got != removedBefore {
		t.Errorf("removed changes moved on zero count: %v", got)
	}
}

func TestRecordNotification(t *testing.T) {
	before := testutil.ToFloat64(NotificationsTotal.WithLabelValues("email", "failed"))
	RecordNotification("email", "failed")
	if got := testutil.ToFloat64(NotificationsTotal.WithLabelValues("email", "failed")); got != before+1 {
		t.Errorf("notifications_total = %v, want %v", got, before+1)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/health", "200"))
	RecordAPIRequest("GET", "/api/v1/health", 200, 3*time.Millisecond)
	if got := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/health", "200")); got != before+1 {
		t.Errorf("api_requests_total = %v, want %v", got, before+1)
	}
}

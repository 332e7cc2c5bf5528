// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/zipalim/zipalim/internal/cache"
	"github.com/zipalim/zipalim/internal/crawler"
	"github.com/zipalim/zipalim/internal/events"
	"github.com/zipalim/zipalim/internal/models"
	"github.com/zipalim/zipalim/internal/notify"
	"github.com/zipalim/zipalim/internal/storage"
)

func TestPipelinePartialWhenComplexMissing(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	// The crawler drops the second complex from its output.
	pipeline, _ := newTestPipeline(store, &fakeCrawler{fn: func(_ context.Context, nos []string) ([]models.Snapshot, error) {
		return snapshotsFor(nos[:1], 2), nil
	}})

	result, err := pipeline.Run(ctx, "", []string{"1001", "1002"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != models.CrawlStatusPartial {
		t.Errorf("status = %s, want partial", result.Status)
	}

	history, err := store.ListCrawlHistory(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Fatalf("history entries = %d, want 1", len(history))
	}
	h := history[0]
	if h.SuccessCount != 1 || h.ErrorCount != 1 || h.TotalListings != 2 {
		t.Errorf("history = %+v", h)
	}
}

func TestPipelineFailedCrawlAbortsCycle(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	pipeline, broadcaster := newTestPipeline(store, &fakeCrawler{fn: func(context.Context, []string) ([]models.Snapshot, error) {
		return nil, fmt.Errorf("%w: boom", crawler.ErrCrawlFailed)
	}})

	sub := broadcaster.Subscribe()
	defer broadcaster.Unsubscribe(sub)

	result, err := pipeline.Run(ctx, "", []string{"1001"})
	if !errors.Is(err, crawler.ErrCrawlFailed) {
		t.Fatalf("err = %v, want ErrCrawlFailed", err)
	}
	if result.Status != models.CrawlStatusFailed {
		t.Errorf("status = %s, want failed", result.Status)
	}

	// No partial change set was processed.
	listings, err := store.ListingsByComplex(ctx, "1001")
	if err != nil {
		t.Fatal(err)
	}
	if len(listings) != 0 {
		t.Errorf("listings persisted from failed crawl: %d", len(listings))
	}

	sawFailed := false
	timeout := time.After(2 * time.Second)
	for !sawFailed {
		select {
		case ev := <-sub.C:
			if ev.Type == events.TypeCrawlFailed {
				if ev.Data.ErrorMessage == "" {
					t.Error("crawl-failed event has no error message")
				}
				sawFailed = true
			}
		case <-timeout:
			t.Fatal("no crawl-failed event observed")
		}
	}

	history, err := store.ListCrawlHistory(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Status != models.CrawlStatusFailed {
		t.Fatalf("history = %+v", history)
	}
	if history[0].ErrorMessage == "" {
		t.Error("failed history record has no error message")
	}
}

func TestPipelineDispatchesMatchedAlerts(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	alert := models.AlertDefinition{
		ID:         "alert-1",
		Name:       "신축 알림",
		ComplexNos: []string{"1001"},
		Channels:   []models.NotificationChannel{models.ChannelBrowser},
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := store.CreateAlert(ctx, alert); err != nil {
		t.Fatal(err)
	}

	broadcaster := events.NewBroadcaster(16)
	dispatch := notify.NewDispatcher(store, 2, time.Second, notify.NewBrowserChannel(broadcaster))
	twoTier := cache.NewTwoTier(cache.NewLocal(time.Minute, 0, 100), nil)
	timeouts := crawler.TimeoutConfig{Base: time.Minute, PerComplex: 10 * time.Second, Max: 5 * time.Minute}
	crawl := &fakeCrawler{fn: func(_ context.Context, nos []string) ([]models.Snapshot, error) {
		return snapshotsFor(nos, 1), nil
	}}
	pipeline := NewPipeline(store, crawl, dispatch, broadcaster, twoTier, timeouts)

	sub := broadcaster.Subscribe()
	defer broadcaster.Unsubscribe(sub)

	result, err := pipeline.Run(ctx, "", []string{"1001"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Changes != 1 {
		t.Errorf("changes = %d, want 1 new listing", result.Changes)
	}

	logs, err := store.ListNotificationLogs(ctx, alert.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].Status != models.DeliverySent {
		t.Fatalf("notification logs = %+v, want one sent entry", logs)
	}

	sawNotification := false
	timeout := time.After(2 * time.Second)
	for !sawNotification {
		select {
		case ev := <-sub.C:
			if ev.Type == events.TypeNotification {
				sawNotification = true
			}
		case <-timeout:
			t.Fatal("no notification event observed")
		}
	}
}

func TestPipelineSecondRunDetectsNoChanges(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	pipeline, _ := newTestPipeline(store, &fakeCrawler{fn: func(_ context.Context, nos []string) ([]models.Snapshot, error) {
		return snapshotsFor(nos, 2), nil
	}})

	if _, err := pipeline.Run(ctx, "", []string{"1001"}); err != nil {
		t.Fatal(err)
	}
	result, err := pipeline.Run(ctx, "", []string{"1001"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Changes != 0 {
		t.Errorf("changes on identical snapshot = %d, want 0", result.Changes)
	}
}

// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zipalim/zipalim/internal/cache"
	"github.com/zipalim/zipalim/internal/crawler"
	"github.com/zipalim/zipalim/internal/events"
	"github.com/zipalim/zipalim/internal/models"
	"github.com/zipalim/zipalim/internal/notify"
	"github.com/zipalim/zipalim/internal/storage"
)

// fakeCrawler yields one snapshot per requested complex through fn.
type fakeCrawler struct {
	fn func(ctx context.Context, complexNos []string) ([]models.Snapshot, error)
}

func (f *fakeCrawler) Crawl(ctx context.Context, complexNos []string) ([]models.Snapshot, error) {
	return f.fn(ctx, complexNos)
}

func snapshotsFor(complexNos []string, perComplex int) []models.Snapshot {
	var out []models.Snapshot
	for _, no := range complexNos {
		snap := models.Snapshot{ComplexNo: no, CapturedAt: time.Now().UTC()}
		for i := 0; i < perComplex; i++ {
			snap.Listings = append(snap.Listings, models.Listing{
				ListingNo: fmt.Sprintf("%s-l%d", no, i),
				ComplexNo: no,
				TradeType: models.TradeTypeSale,
				Price:     "3억",
				Area:      84.9,
			})
		}
		out = append(out, snap)
	}
	return out
}

func newTestPipeline(store storage.Store, crawl crawler.Crawler) (*Pipeline, *events.Broadcaster) {
	broadcaster := events.NewBroadcaster(16)
	dispatch := notify.NewDispatcher(store, 2, time.Second)
	twoTier := cache.NewTwoTier(cache.NewLocal(time.Minute, 0, 100), nil)
	timeouts := crawler.TimeoutConfig{Base: time.Minute, PerComplex: 10 * time.Second, Max: 5 * time.Minute}
	return NewPipeline(store, crawl, dispatch, broadcaster, twoTier, timeouts), broadcaster
}

func newTestScheduler(t *testing.T, store storage.Store, crawl crawler.Crawler) *Scheduler {
	t.Helper()
	pipeline, broadcaster := newTestPipeline(store, crawl)
	return New(store, pipeline, ResolveTargets(store), broadcaster, time.UTC, 10)
}

func neverFiring() models.Schedule {
	return models.Schedule{
		ID:         "sched-1",
		Name:       "daily",
		CronExpr:   "0 0 29 2 *", // Feb 29, far away
		ComplexNos: []string{"1001"},
		IsActive:   true,
	}
}

func TestRegisterRejectsInvalidCron(t *testing.T) {
	store := storage.NewMemoryStore()
	s := newTestScheduler(t, store, &fakeCrawler{fn: func(_ context.Context, nos []string) ([]models.Snapshot, error) {
		return snapshotsFor(nos, 1), nil
	}})

	sched := neverFiring()
	sched.CronExpr = "not a cron"
	if err := s.Register(sched); !errors.Is(err, ErrInvalidCron) {
		t.Errorf("Register = %v, want ErrInvalidCron", err)
	}
	if s.Registered(sched.ID) {
		t.Error("invalid schedule ended up registered")
	}
}

func TestRegisterEnforcesLimit(t *testing.T) {
	store := storage.NewMemoryStore()
	pipeline, broadcaster := newTestPipeline(store, &fakeCrawler{fn: func(_ context.Context, nos []string) ([]models.Snapshot, error) {
		return snapshotsFor(nos, 1), nil
	}})
	s := New(store, pipeline, ResolveTargets(store), broadcaster, time.UTC, 2)

	for i := 0; i < 2; i++ {
		sched := neverFiring()
		sched.ID = fmt.Sprintf("sched-%d", i)
		if err := s.Register(sched); err != nil {
			t.Fatalf("Register %d: %v", i, err)
		}
	}
	sched := neverFiring()
	sched.ID = "sched-over"
	if err := s.Register(sched); !errors.Is(err, ErrTooManySchedules) {
		t.Errorf("Register = %v, want ErrTooManySchedules", err)
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	store := storage.NewMemoryStore()
	s := newTestScheduler(t, store, &fakeCrawler{fn: func(_ context.Context, nos []string) ([]models.Snapshot, error) {
		return snapshotsFor(nos, 1), nil
	}})

	sched := neverFiring()
	if err := s.Register(sched); err != nil {
		t.Fatal(err)
	}
	s.Unregister(sched.ID)
	if s.Registered(sched.ID) {
		t.Fatal("still registered after Unregister")
	}
	s.Unregister(sched.ID) // no-op
	s.Unregister("never-existed")
}

func TestRunNowExecutesCycle(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	s := newTestScheduler(t, store, &fakeCrawler{fn: func(_ context.Context, nos []string) ([]models.Snapshot, error) {
		return snapshotsFor(nos, 3), nil
	}})

	sched := neverFiring()
	if err := store.CreateSchedule(ctx, sched); err != nil {
		t.Fatal(err)
	}
	if err := s.Register(sched); err != nil {
		t.Fatal(err)
	}
	if err := s.RunNow(sched.ID); err != nil {
		t.Fatal(err)
	}

	logs := waitForScheduleLogs(t, store, sched.ID, 1)
	if logs[0].Status != string(models.CrawlStatusSuccess) {
		t.Errorf("log status = %s, want success", logs[0].Status)
	}
	if logs[0].ListingsCount != 3 {
		t.Errorf("listings count = %d, want 3", logs[0].ListingsCount)
	}

	listings, err := store.ListingsByComplex(ctx, "1001")
	if err != nil {
		t.Fatal(err)
	}
	if len(listings) != 3 {
		t.Errorf("persisted %d listings, want 3", len(listings))
	}

	history, err := store.ListCrawlHistory(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Status != models.CrawlStatusSuccess {
		t.Errorf("history = %+v, want one success record", history)
	}
}

func TestRunNowUnknownJob(t *testing.T) {
	store := storage.NewMemoryStore()
	s := newTestScheduler(t, store, &fakeCrawler{fn: func(_ context.Context, nos []string) ([]models.Snapshot, error) {
		return snapshotsFor(nos, 1), nil
	}})
	if err := s.RunNow("missing"); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("RunNow = %v, want ErrNotRegistered", err)
	}
}

func TestRunNowRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	release := make(chan struct{})
	started := make(chan struct{})
	s := newTestScheduler(t, store, &fakeCrawler{fn: func(_ context.Context, nos []string) ([]models.Snapshot, error) {
		close(started)
		<-release
		return snapshotsFor(nos, 1), nil
	}})

	sched := neverFiring()
	if err := store.CreateSchedule(ctx, sched); err != nil {
		t.Fatal(err)
	}
	if err := s.Register(sched); err != nil {
		t.Fatal(err)
	}
	if err := s.RunNow(sched.ID); err != nil {
		t.Fatal(err)
	}

	<-started
	if err := s.RunNow(sched.ID); !errors.Is(err, ErrCycleInFlight) {
		t.Errorf("second RunNow = %v, want ErrCycleInFlight", err)
	}
	close(release)

	waitForScheduleLogs(t, store, sched.ID, 1)
}

func TestInFlightCycleSurvivesUnregister(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	release := make(chan struct{})
	started := make(chan struct{})
	s := newTestScheduler(t, store, &fakeCrawler{fn: func(_ context.Context, nos []string) ([]models.Snapshot, error) {
		close(started)
		<-release
		return snapshotsFor(nos, 2), nil
	}})

	sched := neverFiring()
	if err := store.CreateSchedule(ctx, sched); err != nil {
		t.Fatal(err)
	}
	if err := s.Register(sched); err != nil {
		t.Fatal(err)
	}
	if err := s.RunNow(sched.ID); err != nil {
		t.Fatal(err)
	}

	<-started
	s.Unregister(sched.ID)
	close(release)

	// The cycle still runs to completion and logs its outcome.
	logs := waitForScheduleLogs(t, store, sched.ID, 1)
	if logs[0].Status != string(models.CrawlStatusSuccess) {
		t.Errorf("log status = %s, want success", logs[0].Status)
	}
}

func TestReregisterDuringCycleKeepsNoOverlap(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	var calls atomic.Int32
	started1 := make(chan struct{})
	started2 := make(chan struct{})
	release1 := make(chan struct{})
	release2 := make(chan struct{})
	s := newTestScheduler(t, store, &fakeCrawler{fn: func(_ context.Context, nos []string) ([]models.Snapshot, error) {
		switch calls.Add(1) {
		case 1:
			close(started1)
			<-release1
		case 2:
			close(started2)
			<-release2
		}
		return snapshotsFor(nos, 1), nil
	}})

	sched := neverFiring()
	if err := store.CreateSchedule(ctx, sched); err != nil {
		t.Fatal(err)
	}
	if err := s.Register(sched); err != nil {
		t.Fatal(err)
	}
	if err := s.RunNow(sched.ID); err != nil {
		t.Fatal(err)
	}
	<-started1

	// Replace the job under the same ID while the first cycle is in flight,
	// then start a cycle on the replacement.
	if err := s.Register(sched); err != nil {
		t.Fatal(err)
	}
	if err := s.RunNow(sched.ID); err != nil {
		t.Fatal(err)
	}
	<-started2

	// Let the first cycle finish. Its completion must not clear the
	// replacement job's running flag, so a third trigger stays rejected for
	// as long as the second cycle runs.
	close(release1)
	waitForScheduleLogs(t, store, sched.ID, 1)

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if err := s.RunNow(sched.ID); !errors.Is(err, ErrCycleInFlight) {
			t.Fatalf("RunNow = %v while a cycle was in flight, want ErrCycleInFlight", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	close(release2)
	waitForScheduleLogs(t, store, sched.ID, 2)
}

func TestFailedCycleLogsFailure(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	s := newTestScheduler(t, store, &fakeCrawler{fn: func(context.Context, []string) ([]models.Snapshot, error) {
		return nil, fmt.Errorf("%w: portal unreachable", crawler.ErrCrawlFailed)
	}})

	sched := neverFiring()
	if err := store.CreateSchedule(ctx, sched); err != nil {
		t.Fatal(err)
	}
	if err := s.Register(sched); err != nil {
		t.Fatal(err)
	}
	if err := s.RunNow(sched.ID); err != nil {
		t.Fatal(err)
	}

	logs := waitForScheduleLogs(t, store, sched.ID, 1)
	if logs[0].Status != string(models.CrawlStatusFailed) {
		t.Errorf("log status = %s, want failed", logs[0].Status)
	}
	if logs[0].ErrorMessage == "" {
		t.Error("failed log entry has no error message")
	}
	// A failed cycle re-arms: the job stays registered.
	if !s.Registered(sched.ID) {
		t.Error("job dropped after failed cycle")
	}
}

func TestResolveTargetsFavorites(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	for _, c := range []models.Complex{
		{ComplexNo: "1001", Name: "래미안", UserID: "u1"},
		{ComplexNo: "1002", Name: "자이", UserID: "u2"},
		{ComplexNo: "1003", Name: "힐스테이트", UserID: "u1"},
	} {
		if err := store.UpsertComplex(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	resolve := ResolveTargets(store)

	got, err := resolve(ctx, models.Schedule{UseFavorites: true, UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("favorites for u1 = %v, want 2 complexes", got)
	}

	got, err = resolve(ctx, models.Schedule{ComplexNos: []string{"9999"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "9999" {
		t.Errorf("explicit targets = %v", got)
	}
}

// waitForScheduleLogs polls until scheduleID has at least n log entries.
func waitForScheduleLogs(t *testing.T, store storage.Store, scheduleID string, n int) []models.ScheduleLog {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		logs, err := store.ListScheduleLogs(context.Background(), scheduleID, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(logs) >= n {
			return logs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d schedule logs", n)
	return nil
}

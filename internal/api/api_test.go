// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/zipalim/zipalim/internal/cache"
	"github.com/zipalim/zipalim/internal/crawler"
	"github.com/zipalim/zipalim/internal/events"
	"github.com/zipalim/zipalim/internal/models"
	"github.com/zipalim/zipalim/internal/notify"
	"github.com/zipalim/zipalim/internal/scheduler"
	"github.com/zipalim/zipalim/internal/storage"
)

// crawlFunc adapts a function to the crawler interface.
type crawlFunc func(ctx context.Context, complexNos []string) ([]models.Snapshot, error)

func (f crawlFunc) Crawl(ctx context.Context, complexNos []string) ([]models.Snapshot, error) {
	return f(ctx, complexNos)
}

func oneListingEach(_ context.Context, complexNos []string) ([]models.Snapshot, error) {
	var out []models.Snapshot
	for _, no := range complexNos {
		out = append(out, models.Snapshot{
			ComplexNo:  no,
			CapturedAt: time.Now().UTC(),
			Listings: []models.Listing{{
				ListingNo: no + "-l0",
				ComplexNo: no,
				TradeType: models.TradeTypeSale,
				Price:     "3억",
				Area:      84.9,
			}},
		})
	}
	return out, nil
}

func newTestServer(t *testing.T, crawl crawler.Crawler) (*storage.MemoryStore, http.Handler) {
	t.Helper()
	store := storage.NewMemoryStore()
	broadcaster := events.NewBroadcaster(16)
	twoTier := cache.NewTwoTier(cache.NewLocal(time.Minute, 0, 100), nil)
	dispatch := notify.NewDispatcher(store, 2, time.Second)
	timeouts := crawler.TimeoutConfig{Base: time.Minute, PerComplex: 10 * time.Second, Max: 5 * time.Minute}
	pipeline := scheduler.NewPipeline(store, crawl, dispatch, broadcaster, twoTier, timeouts)
	sched := scheduler.New(store, pipeline, scheduler.ResolveTargets(store), broadcaster, time.UTC, 10)

	handler := NewHandler(store, twoTier, sched, broadcaster)
	router := NewRouter(handler, MiddlewareConfig{CORSOrigins: []string{"*"}}, time.Minute)
	return store, router.Setup()
}

// envelope mirrors the response wrapper with the payload left raw.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope from %q: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t, crawlFunc(oneListingEach))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.Database != "up" {
		t.Errorf("health = %+v", resp)
	}
}

func TestComplexStats(t *testing.T) {
	ctx := context.Background()
	store, h := newTestServer(t, crawlFunc(oneListingEach))

	if err := store.UpsertComplex(ctx, models.Complex{ComplexNo: "1001", Name: "래미안"}); err != nil {
		t.Fatal(err)
	}
	listings := []models.Listing{
		{ListingNo: "a1", ComplexNo: "1001", TradeType: models.TradeTypeSale, Price: "3억", Area: 84.9},
		{ListingNo: "a2", ComplexNo: "1001", TradeType: models.TradeTypeSale, Price: "5억", Area: 84.9},
		{ListingNo: "a3", ComplexNo: "1001", TradeType: models.TradeTypeLease, Price: "2억", Area: 59.8},
	}
	if err := store.ReplaceListings(ctx, "1001", listings); err != nil {
		t.Fatal(err)
	}

	rec, env := doRequest(t, h, http.MethodGet, "/api/v1/complexes/1001/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var stats complexStatsResponse
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalListings != 3 {
		t.Errorf("total listings = %d, want 3", stats.TotalListings)
	}
	sale := stats.TradeTypes[models.TradeTypeSale]
	if sale == nil || sale.AvgFormatted != "4억" {
		t.Errorf("sale stats = %+v, want avg 4억", sale)
	}
	if stats.ListingCounts[models.TradeTypeLease] != 1 {
		t.Errorf("lease count = %d, want 1", stats.ListingCounts[models.TradeTypeLease])
	}
}

func TestComplexStatsUnknownComplex(t *testing.T) {
	_, h := newTestServer(t, crawlFunc(oneListingEach))
	rec, env := doRequest(t, h, http.MethodGet, "/api/v1/complexes/9999/stats", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if env.Error == nil || env.Error.Code != errCodeNotFound {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestListComplexesUsesCache(t *testing.T) {
	ctx := context.Background()
	store, h := newTestServer(t, crawlFunc(oneListingEach))

	if err := store.UpsertComplex(ctx, models.Complex{ComplexNo: "1001", Name: "래미안"}); err != nil {
		t.Fatal(err)
	}
	rec, env := doRequest(t, h, http.MethodGet, "/api/v1/complexes", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var list complexListResponse
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatal(err)
	}
	if list.Count != 1 {
		t.Fatalf("count = %d, want 1", list.Count)
	}

	// A second complex added behind the cache's back stays invisible until
	// invalidation; the list is served from tier 1.
	if err := store.UpsertComplex(ctx, models.Complex{ComplexNo: "1002", Name: "자이"}); err != nil {
		t.Fatal(err)
	}
	_, env = doRequest(t, h, http.MethodGet, "/api/v1/complexes", nil)
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatal(err)
	}
	if list.Count != 1 {
		t.Errorf("cached count = %d, want 1", list.Count)
	}
}

func validSchedule() scheduleRequest {
	return scheduleRequest{
		Name:       "nightly",
		CronExpr:   "0 3 * * *",
		ComplexNos: []string{"1001"},
		IsActive:   true,
	}
}

func TestScheduleCRUD(t *testing.T) {
	_, h := newTestServer(t, crawlFunc(oneListingEach))

	rec, env := doRequest(t, h, http.MethodPost, "/api/v1/schedules", validSchedule())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created models.Schedule
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatal(err)
	}
	if created.ID == "" {
		t.Fatal("created schedule has no ID")
	}

	rec, env = doRequest(t, h, http.MethodGet, "/api/v1/schedules", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var views []scheduleView
	if err := json.Unmarshal(env.Data, &views); err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 || !views[0].Registered {
		t.Fatalf("views = %+v, want one registered schedule", views)
	}

	// Deactivating cancels the timer.
	update := validSchedule()
	update.IsActive = false
	rec, _ = doRequest(t, h, http.MethodPut, "/api/v1/schedules/"+created.ID, update)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d", rec.Code)
	}
	_, env = doRequest(t, h, http.MethodGet, "/api/v1/schedules", nil)
	if err := json.Unmarshal(env.Data, &views); err != nil {
		t.Fatal(err)
	}
	if views[0].Registered {
		t.Error("schedule still registered after deactivation")
	}

	rec, _ = doRequest(t, h, http.MethodDelete, "/api/v1/schedules/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec, _ = doRequest(t, h, http.MethodDelete, "/api/v1/schedules/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestCreateScheduleRejectsInvalidCron(t *testing.T) {
	store, h := newTestServer(t, crawlFunc(oneListingEach))

	req := validSchedule()
	req.CronExpr = "not a cron"
	rec, env := doRequest(t, h, http.MethodPost, "/api/v1/schedules", req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if env.Error == nil || env.Error.Code != errCodeBadRequest {
		t.Errorf("error = %+v", env.Error)
	}

	schedules, err := store.ListSchedules(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(schedules) != 0 {
		t.Errorf("rejected schedule was persisted: %+v", schedules)
	}
}

func TestCreateScheduleValidation(t *testing.T) {
	_, h := newTestServer(t, crawlFunc(oneListingEach))

	// Neither explicit complexes nor favorites.
	req := scheduleRequest{Name: "empty", CronExpr: "0 3 * * *", IsActive: true}
	rec, env := doRequest(t, h, http.MethodPost, "/api/v1/schedules", req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if env.Error == nil || env.Error.Code != errCodeValidationFailed {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestRunScheduleNow(t *testing.T) {
	ctx := context.Background()
	store, h := newTestServer(t, crawlFunc(oneListingEach))

	rec, env := doRequest(t, h, http.MethodPost, "/api/v1/schedules", validSchedule())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	var created models.Schedule
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatal(err)
	}

	rec, _ = doRequest(t, h, http.MethodPost, fmt.Sprintf("/api/v1/schedules/%s/run", created.ID), nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("run status = %d, body %s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		logs, err := store.ListScheduleLogs(ctx, created.ID, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(logs) > 0 {
			if logs[0].Status != string(models.CrawlStatusSuccess) {
				t.Errorf("log status = %s, want success", logs[0].Status)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for schedule log")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRunScheduleUnknown(t *testing.T) {
	_, h := newTestServer(t, crawlFunc(oneListingEach))
	rec, _ := doRequest(t, h, http.MethodPost, "/api/v1/schedules/missing/run", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func validAlert() alertRequest {
	return alertRequest{
		Name:       "신축 알림",
		ComplexNos: []string{"1001"},
		Channels:   []models.NotificationChannel{models.ChannelBrowser},
		IsActive:   true,
	}
}

func TestAlertCRUD(t *testing.T) {
	_, h := newTestServer(t, crawlFunc(oneListingEach))

	rec, env := doRequest(t, h, http.MethodPost, "/api/v1/alerts", validAlert())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created models.AlertDefinition
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatal(err)
	}

	update := validAlert()
	update.Name = "신축 + 가격"
	minPrice := int64(100_000_000)
	update.MinPrice = &minPrice
	rec, env = doRequest(t, h, http.MethodPut, "/api/v1/alerts/"+created.ID, update)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d", rec.Code)
	}
	var updated models.AlertDefinition
	if err := json.Unmarshal(env.Data, &updated); err != nil {
		t.Fatal(err)
	}
	if updated.Name != "신축 + 가격" || updated.MinPrice == nil {
		t.Errorf("updated alert = %+v", updated)
	}
	if updated.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set on update")
	}

	rec, _ = doRequest(t, h, http.MethodDelete, "/api/v1/alerts/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec, _ = doRequest(t, h, http.MethodPut, "/api/v1/alerts/"+created.ID, update)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("update after delete status = %d, want 404", rec.Code)
	}
}

func TestCreateAlertRequiresChannelConfig(t *testing.T) {
	_, h := newTestServer(t, crawlFunc(oneListingEach))

	req := validAlert()
	req.Channels = []models.NotificationChannel{models.ChannelEmail}
	// No email address set.
	rec, env := doRequest(t, h, http.MethodPost, "/api/v1/alerts", req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if env.Error == nil {
		t.Fatal("no error payload")
	}
}

func TestCreateAlertRejectsInvertedBounds(t *testing.T) {
	_, h := newTestServer(t, crawlFunc(oneListingEach))

	req := validAlert()
	lo, hi := int64(500_000_000), int64(100_000_000)
	req.MinPrice = &lo
	req.MaxPrice = &hi
	rec, _ := doRequest(t, h, http.MethodPost, "/api/v1/alerts", req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestNotificationLogs(t *testing.T) {
	ctx := context.Background()
	store, h := newTestServer(t, crawlFunc(oneListingEach))

	rec, _ := doRequest(t, h, http.MethodGet, "/api/v1/notifications/logs", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status without alertId = %d, want 400", rec.Code)
	}

	for i := 0; i < 3; i++ {
		err := store.AppendNotificationLog(ctx, models.NotificationLogEntry{
			ID:        fmt.Sprintf("log-%d", i),
			AlertID:   "alert-1",
			Channel:   models.ChannelBrowser,
			Status:    models.DeliverySent,
			Message:   "신축 알림",
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	rec, env := doRequest(t, h, http.MethodGet, "/api/v1/notifications/logs?alertId=alert-1&limit=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp notificationLogsResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 {
		t.Errorf("count = %d, want 2 (limit applied)", resp.Count)
	}
}

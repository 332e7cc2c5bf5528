// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

// Package api exposes the HTTP surface: health, cached complex reads,
// schedule and alert management, the delivery audit trail, and the push
// event streams. Handlers assume an authorized caller; authentication is
// handled upstream of this service.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/zipalim/zipalim/internal/cache"
	"github.com/zipalim/zipalim/internal/events"
	"github.com/zipalim/zipalim/internal/logging"
	"github.com/zipalim/zipalim/internal/models"
	"github.com/zipalim/zipalim/internal/price"
	"github.com/zipalim/zipalim/internal/scheduler"
	"github.com/zipalim/zipalim/internal/storage"
)

const healthPingTimeout = 2 * time.Second

// Handler carries the dependencies shared by all endpoints.
type Handler struct {
	store       storage.Store
	cache       *cache.TwoTier
	sched       *scheduler.Scheduler
	broadcaster *events.Broadcaster
	validate    *validator.Validate
}

// NewHandler wires the endpoint dependencies.
func NewHandler(store storage.Store, twoTier *cache.TwoTier, sched *scheduler.Scheduler, broadcaster *events.Broadcaster) *Handler {
	return &Handler{
		store:       store,
		cache:       twoTier,
		sched:       sched,
		broadcaster: broadcaster,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// healthResponse reports component state for liveness probes.
type healthResponse struct {
	Status       string `json:"status"`
	Database     string `json:"database"`
	CacheTier2   bool   `json:"cache_tier2"`
	EventClients int    `json:"event_clients"`
}

// Health reports overall service health. Storage down degrades the status to
// 503 so orchestrators stop routing traffic; a missing tier-2 cache does not,
// the cache degrades gracefully on its own.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	resp := healthResponse{
		Status:       "ok",
		Database:     "up",
		CacheTier2:   h.cache.Tier2Available(),
		EventClients: h.broadcaster.ClientCount(),
	}
	status := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		logging.Err(err).Msg("health check storage ping failed")
		resp.Status = "degraded"
		resp.Database = "down"
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, resp)
}

// complexListResponse wraps the cached complex list.
type complexListResponse struct {
	Complexes []models.Complex `json:"complexes"`
	Count     int              `json:"count"`
}

// ListComplexes returns all tracked complexes through the read cache.
func (h *Handler) ListComplexes(w http.ResponseWriter, r *http.Request) {
	complexes, err := cache.GetCached(r.Context(), h.cache, cache.Keys.ComplexList(), cache.TTLMedium,
		func(ctx context.Context) ([]models.Complex, error) {
			return h.store.ListComplexes(ctx)
		})
	if err != nil {
		respondInternalError(w, err)
		return
	}
	respondData(w, http.StatusOK, complexListResponse{Complexes: complexes, Count: len(complexes)})
}

// complexStatsResponse is the per-complex aggregation for the dashboard.
type complexStatsResponse struct {
	Complex       models.Complex                    `json:"complex"`
	TotalListings int                               `json:"total_listings"`
	TradeTypes    map[models.TradeType]*price.Stats `json:"trade_types"`
	ListingCounts map[models.TradeType]int          `json:"listing_counts"`
}

// ComplexStats returns listing counts and price statistics per trade type for
// one complex, computed from the persisted listing state and served through
// the cache. Stats are nil for trade types with no parseable prices.
func (h *Handler) ComplexStats(w http.ResponseWriter, r *http.Request) {
	complexNo := chi.URLParam(r, "id")

	stats, err := cache.GetCached(r.Context(), h.cache, cache.Keys.ComplexPriceStats(complexNo), cache.TTLMedium,
		func(ctx context.Context) (complexStatsResponse, error) {
			return h.buildComplexStats(ctx, complexNo)
		})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, errCodeNotFound, "complex not found")
			return
		}
		respondInternalError(w, err)
		return
	}
	respondData(w, http.StatusOK, stats)
}

func (h *Handler) buildComplexStats(ctx context.Context, complexNo string) (complexStatsResponse, error) {
	c, err := h.store.GetComplex(ctx, complexNo)
	if err != nil {
		return complexStatsResponse{}, err
	}
	listings, err := h.store.ListingsByComplex(ctx, complexNo)
	if err != nil {
		return complexStatsResponse{}, err
	}

	prices := map[models.TradeType][]string{}
	counts := map[models.TradeType]int{}
	for _, l := range listings {
		prices[l.TradeType] = append(prices[l.TradeType], l.Price)
		counts[l.TradeType]++
	}
	stats := make(map[models.TradeType]*price.Stats, len(prices))
	for tt, ps := range prices {
		stats[tt] = price.Calculate(ps)
	}
	return complexStatsResponse{
		Complex:       c,
		TotalListings: len(listings),
		TradeTypes:    stats,
		ListingCounts: counts,
	}, nil
}

// scheduleView decorates a persisted schedule with its live timer state.
type scheduleView struct {
	models.Schedule
	Registered bool `json:"registered"`
}

// ListSchedules returns all schedules with their registration state.
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.store.ListSchedules(r.Context())
	if err != nil {
		respondInternalError(w, err)
		return
	}
	views := make([]scheduleView, 0, len(schedules))
	for _, s := range schedules {
		views = append(views, scheduleView{Schedule: s, Registered: h.sched.Registered(s.ID)})
	}
	respondData(w, http.StatusOK, views)
}

// CreateSchedule persists a new schedule and arms its timer when active.
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if _, err := scheduler.ParseCron(req.CronExpr); err != nil {
		respondError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}

	sched := req.apply(models.Schedule{ID: uuid.NewString(), CreatedAt: time.Now().UTC()})
	if err := h.store.CreateSchedule(r.Context(), sched); err != nil {
		respondInternalError(w, err)
		return
	}
	if sched.IsActive {
		if err := h.registerSchedule(w, sched); err != nil {
			// Keep store and timers coherent: an unregistrable schedule is
			// not persisted.
			if delErr := h.store.DeleteSchedule(r.Context(), sched.ID); delErr != nil {
				logging.Err(delErr).Str("schedule_id", sched.ID).Msg("rollback of unregistrable schedule failed")
			}
			return
		}
	}
	respondData(w, http.StatusCreated, sched)
}

// UpdateSchedule replaces a schedule's definition and re-arms or cancels its
// timer to match the new active state.
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := h.store.GetSchedule(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, errCodeNotFound, "schedule not found")
			return
		}
		respondInternalError(w, err)
		return
	}

	var req scheduleRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if _, err := scheduler.ParseCron(req.CronExpr); err != nil {
		respondError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}

	updated := req.apply(existing)
	if err := h.store.UpdateSchedule(r.Context(), updated); err != nil {
		respondInternalError(w, err)
		return
	}
	if updated.IsActive {
		if err := h.registerSchedule(w, updated); err != nil {
			return
		}
	} else {
		h.sched.Unregister(id)
	}
	respondData(w, http.StatusOK, updated)
}

// registerSchedule arms the timer and maps registration failures onto HTTP
// errors. The response is already written when an error is returned.
func (h *Handler) registerSchedule(w http.ResponseWriter, sched models.Schedule) error {
	err := h.sched.Register(sched)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, scheduler.ErrTooManySchedules):
		respondError(w, http.StatusConflict, errCodeConflict, err.Error())
	case errors.Is(err, scheduler.ErrInvalidCron):
		respondError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
	default:
		respondInternalError(w, err)
	}
	return err
}

// DeleteSchedule removes a schedule and cancels its timer. An in-flight
// cycle finishes; it just never re-arms.
func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteSchedule(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, errCodeNotFound, "schedule not found")
			return
		}
		respondInternalError(w, err)
		return
	}
	h.sched.Unregister(id)
	w.WriteHeader(http.StatusNoContent)
}

// RunSchedule triggers a registered schedule outside its cron cadence. The
// cycle runs asynchronously; 202 means it started, not that it finished.
func (h *Handler) RunSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.sched.RunNow(id)
	switch {
	case err == nil:
		respondData(w, http.StatusAccepted, map[string]string{"schedule_id": id, "status": "started"})
	case errors.Is(err, scheduler.ErrNotRegistered):
		respondError(w, http.StatusNotFound, errCodeNotFound, "schedule not registered")
	case errors.Is(err, scheduler.ErrCycleInFlight):
		respondError(w, http.StatusConflict, errCodeConflict, "a crawl cycle is already running for this schedule")
	default:
		respondInternalError(w, err)
	}
}

// ListAlerts returns all alert definitions.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.store.ListAlerts(r.Context())
	if err != nil {
		respondInternalError(w, err)
		return
	}
	respondData(w, http.StatusOK, alerts)
}

// CreateAlert persists a new alert definition.
func (h *Handler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var req alertRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if err := req.channelConfig(); err != nil {
		respondError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}

	alert := req.apply(models.AlertDefinition{ID: uuid.NewString(), CreatedAt: time.Now().UTC()})
	if err := h.store.CreateAlert(r.Context(), alert); err != nil {
		respondInternalError(w, err)
		return
	}
	respondData(w, http.StatusCreated, alert)
}

// UpdateAlert replaces an alert's definition.
func (h *Handler) UpdateAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := h.store.GetAlert(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, errCodeNotFound, "alert not found")
			return
		}
		respondInternalError(w, err)
		return
	}

	var req alertRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if err := req.channelConfig(); err != nil {
		respondError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}

	updated := req.apply(existing)
	updated.UpdatedAt = time.Now().UTC()
	if err := h.store.UpdateAlert(r.Context(), updated); err != nil {
		respondInternalError(w, err)
		return
	}
	respondData(w, http.StatusOK, updated)
}

// DeleteAlert removes an alert definition. Its notification log entries stay;
// the log is an append-only audit trail.
func (h *Handler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteAlert(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, errCodeNotFound, "alert not found")
			return
		}
		respondInternalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// notificationLogsResponse wraps the delivery audit trail for one alert.
type notificationLogsResponse struct {
	Logs  []models.NotificationLogEntry `json:"logs"`
	Count int                           `json:"count"`
}

// NotificationLogs returns the delivery audit trail for one alert, newest
// first.
func (h *Handler) NotificationLogs(w http.ResponseWriter, r *http.Request) {
	alertID := r.URL.Query().Get("alertId")
	if alertID == "" {
		respondError(w, http.StatusBadRequest, errCodeBadRequest, "alertId query parameter is required")
		return
	}
	limit := parseLimit(r, 50, 200)

	logs, err := h.store.ListNotificationLogs(r.Context(), alertID, limit)
	if err != nil {
		respondInternalError(w, err)
		return
	}
	respondData(w, http.StatusOK, notificationLogsResponse{Logs: logs, Count: len(logs)})
}

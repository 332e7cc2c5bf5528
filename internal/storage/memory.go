// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zipalim/zipalim/internal/models"
)

// MemoryStore is an in-memory Store used by tests and as the executable
// documentation of the storage contract.
type MemoryStore struct {
	mu sync.RWMutex

	complexes    map[string]models.Complex
	listings     map[string][]models.Listing
	alerts       map[string]models.AlertDefinition
	notifLogs    []models.NotificationLogEntry
	schedules    map[string]models.Schedule
	scheduleLogs []models.ScheduleLog
	crawlHistory map[string]models.CrawlHistory
	nextLogID    int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		complexes:    make(map[string]models.Complex),
		listings:     make(map[string][]models.Listing),
		alerts:       make(map[string]models.AlertDefinition),
		schedules:    make(map[string]models.Schedule),
		crawlHistory: make(map[string]models.CrawlHistory),
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
func (m *MemoryStore) Close() error               { return nil }

func (m *MemoryStore) UpsertComplex(_ context.Context, c models.Complex) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.complexes[c.ComplexNo] = c
	return nil
}

func (m *MemoryStore) GetComplex(_ context.Context, complexNo string) (models.Complex, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.complexes[complexNo]
	if !ok {
		return models.Complex{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) ListComplexes(context.Context) ([]models.Complex, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Complex, 0, len(m.complexes))
	for _, c := range m.complexes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) DeleteComplex(_ context.Context, complexNo string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.complexes[complexNo]; !ok {
		return ErrNotFound
	}
	delete(m.complexes, complexNo)
	delete(m.listings, complexNo)
	return nil
}

func (m *MemoryStore) ListingsByComplex(_ context.Context, complexNo string) ([]models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.listings[complexNo]
	out := make([]models.Listing, len(src))
	copy(out, src)
	return out, nil
}

func (m *MemoryStore) ReplaceListings(_ context.Context, complexNo string, listings []models.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]models.Listing, len(listings))
	copy(cp, listings)
	m.listings[complexNo] = cp
	return nil
}

func (m *MemoryStore) CreateAlert(_ context.Context, a models.AlertDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[a.ID] = a
	return nil
}

func (m *MemoryStore) UpdateAlert(_ context.Context, a models.AlertDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alerts[a.ID]; !ok {
		return ErrNotFound
	}
	m.alerts[a.ID] = a
	return nil
}

func (m *MemoryStore) DeleteAlert(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alerts[id]; !ok {
		return ErrNotFound
	}
	delete(m.alerts, id)
	return nil
}

func (m *MemoryStore) GetAlert(_ context.Context, id string) (models.AlertDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.alerts[id]
	if !ok {
		return models.AlertDefinition{}, ErrNotFound
	}
	return a, nil
}

func (m *MemoryStore) ListAlerts(context.Context) ([]models.AlertDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.AlertDefinition, 0, len(m.alerts))
	for _, a := range m.alerts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ActiveAlertsForComplex(_ context.Context, complexNo string) ([]models.AlertDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.AlertDefinition
	for _, a := range m.alerts {
		if !a.IsActive {
			continue
		}
		for _, no := range a.ComplexNos {
			if no == complexNo {
				out = append(out, a)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) AppendNotificationLog(_ context.Context, e models.NotificationLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifLogs = append(m.notifLogs, e)
	return nil
}

func (m *MemoryStore) ListNotificationLogs(_ context.Context, alertID string, limit int) ([]models.NotificationLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	var out []models.NotificationLogEntry
	for i := len(m.notifLogs) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.notifLogs[i]
		if alertID == "" || e.AlertID == alertID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateSchedule(_ context.Context, s models.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.ID] = s
	return nil
}

func (m *MemoryStore) UpdateSchedule(_ context.Context, s models.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[s.ID]; !ok {
		return ErrNotFound
	}
	m.schedules[s.ID] = s
	return nil
}

func (m *MemoryStore) DeleteSchedule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[id]; !ok {
		return ErrNotFound
	}
	delete(m.schedules, id)
	return nil
}

func (m *MemoryStore) GetSchedule(_ context.Context, id string) (models.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[id]
	if !ok {
		return models.Schedule{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) ListSchedules(context.Context) ([]models.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Schedule, 0, len(m.schedules))
	for _, s := range m.schedules {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListActiveSchedules(context.Context) ([]models.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Schedule
	for _, s := range m.schedules {
		if s.IsActive {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) UpdateScheduleRunTimes(_ context.Context, id string, lastRun, nextRun time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return ErrNotFound
	}
	if !lastRun.IsZero() {
		s.LastRunAt = &lastRun
	}
	s.NextRunAt = &nextRun
	m.schedules[id] = s
	return nil
}

func (m *MemoryStore) AppendScheduleLog(_ context.Context, l models.ScheduleLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextLogID++
	l.ID = m.nextLogID
	m.scheduleLogs = append(m.scheduleLogs, l)
	return nil
}

func (m *MemoryStore) ListScheduleLogs(_ context.Context, scheduleID string, limit int) ([]models.ScheduleLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	var out []models.ScheduleLog
	for i := len(m.scheduleLogs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.scheduleLogs[i].ScheduleID == scheduleID {
			out = append(out, m.scheduleLogs[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateCrawlHistory(_ context.Context, h models.CrawlHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.crawlHistory[h.ID] = h
	return nil
}

func (m *MemoryStore) UpdateCrawlHistory(_ context.Context, h models.CrawlHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.crawlHistory[h.ID]
	if !ok {
		return ErrNotFound
	}
	h.ScheduleID = old.ScheduleID
	h.StartedAt = old.StartedAt
	h.ComplexNos = old.ComplexNos
	m.crawlHistory[h.ID] = h
	return nil
}

func (m *MemoryStore) ListCrawlHistory(_ context.Context, limit int) ([]models.CrawlHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	out := make([]models.CrawlHistory, 0, len(m.crawlHistory))
	for _, h := range m.crawlHistory {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/zipalim/zipalim/internal/models"
)

// CreateSchedule inserts a new schedule.
func (s *SQLiteStore) CreateSchedule(ctx context.Context, sc models.Schedule) error {
	complexNos, err := json.Marshal(sc.ComplexNos)
	if err != nil {
		return fmt.Errorf("storage: encode complex_nos: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schedules (id, name, cron_expr, complex_nos, use_favorites,
		                       user_id, is_active, last_run_at, next_run_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.Name, sc.CronExpr, string(complexNos), sc.UseFavorites,
		sc.UserID, sc.IsActive, sc.LastRunAt, sc.NextRunAt, sc.CreatedAt)
	if err != nil {
		return fmt.Errorf("storage: create schedule %s: %w", sc.ID, err)
	}
	return nil
}

// UpdateSchedule replaces an existing schedule.
func (s *SQLiteStore) UpdateSchedule(ctx context.Context, sc models.Schedule) error {
	complexNos, err := json.Marshal(sc.ComplexNos)
	if err != nil {
		return fmt.Errorf("storage: encode complex_nos: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE schedules SET name = ?, cron_expr = ?, complex_nos = ?,
		       use_favorites = ?, user_id = ?, is_active = ?,
		       last_run_at = ?, next_run_at = ?
		WHERE id = ?`,
		sc.Name, sc.CronExpr, string(complexNos), sc.UseFavorites, sc.UserID,
		sc.IsActive, sc.LastRunAt, sc.NextRunAt, sc.ID)
	if err != nil {
		return fmt.Errorf("storage: update schedule %s: %w", sc.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSchedule removes a schedule. Its logs are kept.
func (s *SQLiteStore) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("storage: delete schedule %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSchedule returns one schedule or ErrNotFound.
func (s *SQLiteStore) GetSchedule(ctx context.Context, id string) (models.Schedule, error) {
	row := s.db.QueryRowContext(ctx, scheduleSelect+` WHERE id = ?`, id)
	sc, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return models.Schedule{}, ErrNotFound
	}
	if err != nil {
		return models.Schedule{}, fmt.Errorf("storage: get schedule %s: %w", id, err)
	}
	return sc, nil
}

// ListSchedules returns all schedules, newest first.
func (s *SQLiteStore) ListSchedules(ctx context.Context) ([]models.Schedule, error) {
	return s.querySchedules(ctx, scheduleSelect+` ORDER BY created_at DESC`)
}

// ListActiveSchedules returns the schedules that should be registered with
// the cron timers on startup.
func (s *SQLiteStore) ListActiveSchedules(ctx context.Context) ([]models.Schedule, error) {
	return s.querySchedules(ctx, scheduleSelect+` WHERE is_active = 1 ORDER BY created_at`)
}

// UpdateScheduleRunTimes records a completed fire and the next planned one.
func (s *SQLiteStore) UpdateScheduleRunTimes(ctx context.Context, id string, lastRun, nextRun time.Time) error {
	var res sql.Result
	var err error
	if lastRun.IsZero() {
		res, err = s.db.ExecContext(ctx, `
			UPDATE schedules SET next_run_at = ? WHERE id = ?`, nextRun, id)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE schedules SET last_run_at = ?, next_run_at = ? WHERE id = ?`,
			lastRun, nextRun, id)
	}
	if err != nil {
		return fmt.Errorf("storage: update run times for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendScheduleLog records one schedule fire.
func (s *SQLiteStore) AppendScheduleLog(ctx context.Context, l models.ScheduleLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedule_logs (schedule_id, status, duration_sec, listings_count, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.ScheduleID, l.Status, l.DurationSec, l.ListingsCount, l.ErrorMessage, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("storage: append schedule log: %w", err)
	}
	return nil
}

// ListScheduleLogs returns fire logs for one schedule, newest first.
func (s *SQLiteStore) ListScheduleLogs(ctx context.Context, scheduleID string, limit int) ([]models.ScheduleLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, schedule_id, status, duration_sec, listings_count, error_message, created_at
		FROM schedule_logs WHERE schedule_id = ?
		ORDER BY created_at DESC LIMIT ?`, scheduleID, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list schedule logs: %w", err)
	}
	defer rows.Close()

	var out []models.ScheduleLog
	for rows.Next() {
		var l models.ScheduleLog
		if err := rows.Scan(&l.ID, &l.ScheduleID, &l.Status, &l.DurationSec,
			&l.ListingsCount, &l.ErrorMessage, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan schedule log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CreateCrawlHistory inserts a new crawl cycle record.
func (s *SQLiteStore) CreateCrawlHistory(ctx context.Context, h models.CrawlHistory) error {
	complexNos, err := json.Marshal(h.ComplexNos)
	if err != nil {
		return fmt.Errorf("storage: encode complex_nos: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO crawl_history (id, complex_nos, status, current_step,
		                           success_count, error_count, total_listings,
		                           duration_sec, error_message, schedule_id, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, string(complexNos), h.Status, h.CurrentStep,
		h.SuccessCount, h.ErrorCount, h.TotalListings,
		h.DurationSec, h.ErrorMessage, h.ScheduleID, h.StartedAt)
	if err != nil {
		return fmt.Errorf("storage: create crawl history %s: %w", h.ID, err)
	}
	return nil
}

// UpdateCrawlHistory updates the progress fields of a crawl cycle record.
func (s *SQLiteStore) UpdateCrawlHistory(ctx context.Context, h models.CrawlHistory) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE crawl_history SET status = ?, current_step = ?,
		       success_count = ?, error_count = ?, total_listings = ?,
		       duration_sec = ?, error_message = ?
		WHERE id = ?`,
		h.Status, h.CurrentStep, h.SuccessCount, h.ErrorCount, h.TotalListings,
		h.DurationSec, h.ErrorMessage, h.ID)
	if err != nil {
		return fmt.Errorf("storage: update crawl history %s: %w", h.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCrawlHistory returns recent crawl cycles, newest first.
func (s *SQLiteStore) ListCrawlHistory(ctx context.Context, limit int) ([]models.CrawlHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, complex_nos, status, current_step, success_count, error_count,
		       total_listings, duration_sec, error_message, schedule_id, started_at
		FROM crawl_history ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list crawl history: %w", err)
	}
	defer rows.Close()

	var out []models.CrawlHistory
	for rows.Next() {
		var h models.CrawlHistory
		var complexNos string
		if err := rows.Scan(&h.ID, &complexNos, &h.Status, &h.CurrentStep,
			&h.SuccessCount, &h.ErrorCount, &h.TotalListings,
			&h.DurationSec, &h.ErrorMessage, &h.ScheduleID, &h.StartedAt); err != nil {
			return nil, fmt.Errorf("storage: scan crawl history: %w", err)
		}
		if err := json.Unmarshal([]byte(complexNos), &h.ComplexNos); err != nil {
			return nil, fmt.Errorf("storage: decode complex_nos: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

const scheduleSelect = `
	SELECT id, name, cron_expr, complex_nos, use_favorites, user_id,
	       is_active, last_run_at, next_run_at, created_at
	FROM schedules`

func scanSchedule(row rowScanner) (models.Schedule, error) {
	var sc models.Schedule
	var complexNos string
	err := row.Scan(&sc.ID, &sc.Name, &sc.CronExpr, &complexNos, &sc.UseFavorites,
		&sc.UserID, &sc.IsActive, &sc.LastRunAt, &sc.NextRunAt, &sc.CreatedAt)
	if err != nil {
		return models.Schedule{}, err
	}
	if err := json.Unmarshal([]byte(complexNos), &sc.ComplexNos); err != nil {
		return models.Schedule{}, fmt.Errorf("storage: decode complex_nos: %w", err)
	}
	return sc, nil
}

func (s *SQLiteStore) querySchedules(ctx context.Context, query string) ([]models.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("storage: query schedules: %w", err)
	}
	defer rows.Close()

	var out []models.Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan schedule: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

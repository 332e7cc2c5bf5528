// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package storage

import (
	"context"
	"database/sql"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/zipalim/zipalim/internal/models"
)

// CreateAlert inserts a new alert definition.
func (s *SQLiteStore) CreateAlert(ctx context.Context, a models.AlertDefinition) error {
	complexNos, channels, tradeTypes, err := marshalAlertLists(a)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, user_id, name, complex_nos, trade_types,
		                    min_price, max_price, min_area, max_area, channels,
		                    email, webhook_url, discord_webhook_url,
		                    is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Name, complexNos, tradeTypes,
		a.MinPrice, a.MaxPrice, a.MinArea, a.MaxArea, channels,
		a.Email, a.WebhookURL, a.DiscordWebhookURL,
		a.IsActive, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("storage: create alert %s: %w", a.ID, err)
	}
	return nil
}

// UpdateAlert replaces an existing alert definition.
func (s *SQLiteStore) UpdateAlert(ctx context.Context, a models.AlertDefinition) error {
	complexNos, channels, tradeTypes, err := marshalAlertLists(a)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET user_id = ?, name = ?, complex_nos = ?, trade_types = ?,
		       min_price = ?, max_price = ?, min_area = ?, max_area = ?, channels = ?,
		       email = ?, webhook_url = ?, discord_webhook_url = ?,
		       is_active = ?, updated_at = ?
		WHERE id = ?`,
		a.UserID, a.Name, complexNos, tradeTypes,
		a.MinPrice, a.MaxPrice, a.MinArea, a.MaxArea, channels,
		a.Email, a.WebhookURL, a.DiscordWebhookURL,
		a.IsActive, a.UpdatedAt, a.ID)
	if err != nil {
		return fmt.Errorf("storage: update alert %s: %w", a.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAlert removes an alert definition. Its notification logs are kept.
func (s *SQLiteStore) DeleteAlert(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("storage: delete alert %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetAlert returns one alert or ErrNotFound.
func (s *SQLiteStore) GetAlert(ctx context.Context, id string) (models.AlertDefinition, error) {
	row := s.db.QueryRowContext(ctx, alertSelect+` WHERE id = ?`, id)
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return models.AlertDefinition{}, ErrNotFound
	}
	if err != nil {
		return models.AlertDefinition{}, fmt.Errorf("storage: get alert %s: %w", id, err)
	}
	return a, nil
}

// ListAlerts returns all alert definitions, newest first.
func (s *SQLiteStore) ListAlerts(ctx context.Context) ([]models.AlertDefinition, error) {
	rows, err := s.db.QueryContext(ctx, alertSelect+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list alerts: %w", err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

// ActiveAlertsForComplex returns active alerts whose complex filter includes
// complexNo. The JSON list column is filtered in Go; alert counts are small.
func (s *SQLiteStore) ActiveAlertsForComplex(ctx context.Context, complexNo string) ([]models.AlertDefinition, error) {
	rows, err := s.db.QueryContext(ctx, alertSelect+` WHERE is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("storage: active alerts: %w", err)
	}
	defer rows.Close()

	all, err := collectAlerts(rows)
	if err != nil {
		return nil, err
	}
	var out []models.AlertDefinition
	for _, a := range all {
		for _, no := range a.ComplexNos {
			if no == complexNo {
				out = append(out, a)
				break
			}
		}
	}
	return out, nil
}

// AppendNotificationLog records one delivery attempt.
func (s *SQLiteStore) AppendNotificationLog(ctx context.Context, e models.NotificationLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_logs (id, alert_id, channel, status, message, listing_no, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AlertID, e.Channel, e.Status, e.Message, e.ListingNo, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("storage: append notification log: %w", err)
	}
	return nil
}

// ListNotificationLogs returns delivery attempts, newest first. An empty
// alertID returns logs across all alerts.
func (s *SQLiteStore) ListNotificationLogs(ctx context.Context, alertID string, limit int) ([]models.NotificationLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, alert_id, channel, status, message, listing_no, created_at
		FROM notification_logs`
	args := []any{}
	if alertID != "" {
		query += ` WHERE alert_id = ?`
		args = append(args, alertID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list notification logs: %w", err)
	}
	defer rows.Close()

	var out []models.NotificationLogEntry
	for rows.Next() {
		var e models.NotificationLogEntry
		if err := rows.Scan(&e.ID, &e.AlertID, &e.Channel, &e.Status, &e.Message,
			&e.ListingNo, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan notification log: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const alertSelect = `
	SELECT id, user_id, name, complex_nos, trade_types,
	       min_price, max_price, min_area, max_area, channels,
	       email, webhook_url, discord_webhook_url,
	       is_active, created_at, updated_at
	FROM alerts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (models.AlertDefinition, error) {
	var a models.AlertDefinition
	var complexNos, tradeTypes, channels string
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &complexNos, &tradeTypes,
		&a.MinPrice, &a.MaxPrice, &a.MinArea, &a.MaxArea, &channels,
		&a.Email, &a.WebhookURL, &a.DiscordWebhookURL,
		&a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return models.AlertDefinition{}, err
	}
	if err := json.Unmarshal([]byte(complexNos), &a.ComplexNos); err != nil {
		return models.AlertDefinition{}, fmt.Errorf("storage: decode complex_nos: %w", err)
	}
	if err := json.Unmarshal([]byte(tradeTypes), &a.TradeTypes); err != nil {
		return models.AlertDefinition{}, fmt.Errorf("storage: decode trade_types: %w", err)
	}
	if err := json.Unmarshal([]byte(channels), &a.Channels); err != nil {
		return models.AlertDefinition{}, fmt.Errorf("storage: decode channels: %w", err)
	}
	return a, nil
}

func collectAlerts(rows *sql.Rows) ([]models.AlertDefinition, error) {
	var out []models.AlertDefinition
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func marshalAlertLists(a models.AlertDefinition) (complexNos, channels, tradeTypes string, err error) {
	cn, err := json.Marshal(a.ComplexNos)
	if err != nil {
		return "", "", "", fmt.Errorf("storage: encode complex_nos: %w", err)
	}
	ch, err := json.Marshal(a.Channels)
	if err != nil {
		return "", "", "", fmt.Errorf("storage: encode channels: %w", err)
	}
	tt := []byte("[]")
	if a.TradeTypes != nil {
		if tt, err = json.Marshal(a.TradeTypes); err != nil {
			return "", "", "", fmt.Errorf("storage: encode trade_types: %w", err)
		}
	}
	return string(cn), string(ch), string(tt), nil
}

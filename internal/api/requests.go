// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"github.com/zipalim/zipalim/internal/models"
)

// scheduleRequest is the create/update payload for a schedule. Server-owned
// fields (ID, run times, CreatedAt) are never accepted from the client.
type scheduleRequest struct {
	Name         string   `json:"name" validate:"required,max=100"`
	CronExpr     string   `json:"cron_expr" validate:"required"`
	ComplexNos   []string `json:"complex_nos" validate:"required_without=UseFavorites,omitempty,min=1,dive,required"`
	UseFavorites bool     `json:"use_favorites"`
	UserID       string   `json:"user_id"`
	IsActive     bool     `json:"is_active"`
}

func (r scheduleRequest) apply(s models.Schedule) models.Schedule {
	s.Name = r.Name
	s.CronExpr = r.CronExpr
	s.ComplexNos = r.ComplexNos
	s.UseFavorites = r.UseFavorites
	s.UserID = r.UserID
	s.IsActive = r.IsActive
	return s
}

// alertRequest is the create/update payload for an alert definition.
type alertRequest struct {
	Name       string                       `json:"name" validate:"required,max=100"`
	UserID     string                       `json:"user_id"`
	ComplexNos []string                     `json:"complex_nos" validate:"required,min=1,dive,required"`
	TradeTypes []models.TradeType           `json:"trade_types" validate:"omitempty,dive,oneof=sale lease monthly"`
	MinPrice   *int64                       `json:"min_price" validate:"omitempty,gte=0"`
	MaxPrice   *int64                       `json:"max_price" validate:"omitempty,gte=0"`
	MinArea    *float64                     `json:"min_area" validate:"omitempty,gte=0"`
	MaxArea    *float64                     `json:"max_area" validate:"omitempty,gte=0"`
	Channels   []models.NotificationChannel `json:"channels" validate:"required,min=1,dive,oneof=browser email webhook discord"`

	Email             string `json:"email" validate:"omitempty,email"`
	WebhookURL        string `json:"webhook_url" validate:"omitempty,url"`
	DiscordWebhookURL string `json:"discord_webhook_url" validate:"omitempty,url"`

	IsActive bool `json:"is_active"`
}

func (r alertRequest) apply(a models.AlertDefinition) models.AlertDefinition {
	a.Name = r.Name
	a.UserID = r.UserID
	a.ComplexNos = r.ComplexNos
	a.TradeTypes = r.TradeTypes
	a.MinPrice = r.MinPrice
	a.MaxPrice = r.MaxPrice
	a.MinArea = r.MinArea
	a.MaxArea = r.MaxArea
	a.Channels = r.Channels
	a.Email = r.Email
	a.WebhookURL = r.WebhookURL
	a.DiscordWebhookURL = r.DiscordWebhookURL
	a.IsActive = r.IsActive
	return a
}

// channelConfig checks that every enabled channel has the delivery
// configuration it needs. Struct tags cannot express this cross-field rule.
func (r alertRequest) channelConfig() error {
	for _, ch := range r.Channels {
		switch ch {
		case models.ChannelEmail:
			if r.Email == "" {
				return fmt.Errorf("email channel enabled but no email address set")
			}
		case models.ChannelWebhook:
			if r.WebhookURL == "" {
				return fmt.Errorf("webhook channel enabled but no webhook_url set")
			}
		case models.ChannelDiscord:
			if r.DiscordWebhookURL == "" {
				return fmt.Errorf("discord channel enabled but no discord_webhook_url set")
			}
		}
	}
	if r.MinPrice != nil && r.MaxPrice != nil && *r.MinPrice > *r.MaxPrice {
		return fmt.Errorf("min_price exceeds max_price")
	}
	if r.MinArea != nil && r.MaxArea != nil && *r.MinArea > *r.MaxArea {
		return fmt.Errorf("min_area exceeds max_area")
	}
	return nil
}

// decodeAndValidate decodes the request body into dst and runs struct
// validation. On failure it writes the error response and returns false.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, errCodeBadRequest, "malformed JSON body: "+err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				details = append(details, fmt.Sprintf("%s failed on %q", fe.Field(), fe.Tag()))
			}
			respondValidationError(w, "request validation failed", details)
			return false
		}
		respondError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return false
	}
	return true
}

// parseLimit reads the limit query parameter, clamped to [1, max].
func parseLimit(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

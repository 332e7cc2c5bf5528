// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package models

import "time"

// NotificationChannel identifies a delivery channel for alert notifications.
type NotificationChannel string

const (
	ChannelBrowser NotificationChannel = "browser"
	ChannelEmail   NotificationChannel = "email"
	ChannelWebhook NotificationChannel = "webhook"
	ChannelDiscord NotificationChannel = "discord"
)

// DeliveryStatus is the outcome of one delivery attempt.
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// AlertDefinition is a user-owned filter plus channel configuration that
// triggers on matching listing changes. Optional bounds are pointers: nil
// means the bound is not set.
type AlertDefinition struct {
	ID         string                `json:"id"`
	UserID     string                `json:"user_id"`
	Name       string                `json:"name" validate:"required"`
	ComplexNos []string              `json:"complex_nos" validate:"required,min=1,dive,required"`
	TradeTypes []TradeType           `json:"trade_types,omitempty"`
	MinPrice   *int64                `json:"min_price,omitempty" validate:"omitempty,gte=0"`
	MaxPrice   *int64                `json:"max_price,omitempty" validate:"omitempty,gte=0"`
	MinArea    *float64              `json:"min_area,omitempty" validate:"omitempty,gte=0"`
	MaxArea    *float64              `json:"max_area,omitempty" validate:"omitempty,gte=0"`
	Channels   []NotificationChannel `json:"channels" validate:"required,min=1,dive,oneof=browser email webhook discord"`

	// Channel-specific delivery configuration.
	Email             string `json:"email,omitempty" validate:"omitempty,email"`
	WebhookURL        string `json:"webhook_url,omitempty" validate:"omitempty,url"`
	DiscordWebhookURL string `json:"discord_webhook_url,omitempty" validate:"omitempty,url"`

	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasChannel reports whether the given channel is enabled on the alert.
func (a *AlertDefinition) HasChannel(ch NotificationChannel) bool {
	for _, c := range a.Channels {
		if c == ch {
			return true
		}
	}
	return false
}

// WantsTradeType reports whether the alert's trade-type filter admits t.
// An empty filter admits every trade type.
func (a *AlertDefinition) WantsTradeType(t TradeType) bool {
	if len(a.TradeTypes) == 0 {
		return true
	}
	for _, tt := range a.TradeTypes {
		if tt == t {
			return true
		}
	}
	return false
}

// NotificationLogEntry is the append-only audit record of one delivery
// attempt. Entries are never mutated; corrections are new entries.
type NotificationLogEntry struct {
	ID        string              `json:"id"`
	AlertID   string              `json:"alert_id"`
	Channel   NotificationChannel `json:"channel"`
	Status    DeliveryStatus      `json:"status"`
	Message   string              `json:"message"`
	ListingNo string              `json:"listing_no,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

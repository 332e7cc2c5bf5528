// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package notify

import (
	"context"

	"github.com/zipalim/zipalim/internal/models"
)

// BrowserPusher pushes a notification event to connected dashboard clients.
// Satisfied by events.Broadcaster.
type BrowserPusher interface {
	NotifyAlert(alertID, title, message string)
}

// BrowserChannel delivers notifications as push events to connected browsers.
// Push is fire-and-forget: publishing to the broadcaster always succeeds,
// so the attempt is logged as sent even with zero clients connected.
type BrowserChannel struct {
	pusher BrowserPusher
}

// NewBrowserChannel returns a browser push channel backed by pusher.
func NewBrowserChannel(pusher BrowserPusher) *BrowserChannel {
	return &BrowserChannel{pusher: pusher}
}

func (c *BrowserChannel) Name() models.NotificationChannel {
	return models.ChannelBrowser
}

func (c *BrowserChannel) Send(_ context.Context, alert models.AlertDefinition, msg Message) Result {
	c.pusher.NotifyAlert(alert.ID, msg.Title, msg.Body)
	return sent()
}

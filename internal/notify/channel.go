// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

// Package notify delivers matched alert notifications over the channels
// configured on each alert definition: browser push, email, generic webhook,
// and Discord. Channels are independent; one failing delivery never blocks
// or cancels another, and every attempt leaves exactly one log entry.
package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/zipalim/zipalim/internal/models"
)

// Channel delivers one composed notification for one alert. Implementations
// report failures through the Result rather than an error return so the
// dispatcher can treat every attempt uniformly.
type Channel interface {
	// Name returns the channel identifier (browser, email, webhook, discord).
	Name() models.NotificationChannel

	// Send delivers the message. The returned Result always has Status set.
	Send(ctx context.Context, alert models.AlertDefinition, msg Message) Result
}

// Result is the outcome of one delivery attempt.
type Result struct {
	Status       models.DeliveryStatus
	ErrorMessage string
	// ResponseCode is the HTTP status for webhook-based channels, 0 otherwise.
	ResponseCode int
}

func sent() Result {
	return Result{Status: models.DeliverySent}
}

func failed(format string, args ...any) Result {
	return Result{Status: models.DeliveryFailed, ErrorMessage: fmt.Sprintf(format, args...)}
}

// validateWebhookURL checks that a webhook target is a plausible HTTP URL.
func validateWebhookURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return fmt.Errorf("webhook URL must use http or https scheme")
	}
	if parsed.Host == "" {
		return fmt.Errorf("webhook URL must have a host")
	}
	return nil
}

// validateEmail checks an address for basic plausibility. Full RFC 5322
// validation happens at alert creation time; this only guards against
// garbage reaching the SMTP dialogue.
func validateEmail(addr string) error {
	if addr == "" {
		return fmt.Errorf("email address is required")
	}
	local, domain, ok := strings.Cut(addr, "@")
	if !ok || local == "" || domain == "" || !strings.Contains(domain, ".") {
		return fmt.Errorf("invalid email address format: %s", addr)
	}
	return nil
}

// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package notify

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/zipalim/zipalim/internal/models"
)

// WebhookChannel POSTs a structured JSON payload to the alert's webhook URL.
// Any 2xx response counts as delivered.
type WebhookChannel struct {
	client *http.Client
}

// NewWebhookChannel returns a webhook channel with the given per-request
// timeout.
func NewWebhookChannel(timeout time.Duration) *WebhookChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookChannel{
		client: &http.Client{Timeout: timeout},
	}
}

func (c *WebhookChannel) Name() models.NotificationChannel {
	return models.ChannelWebhook
}

// webhookPayload is the JSON document POSTed to the webhook target.
type webhookPayload struct {
	AlertID      string               `json:"alert_id"`
	AlertName    string               `json:"alert_name"`
	ComplexNo    string               `json:"complex_no,omitempty"`
	Title        string               `json:"title"`
	Summary      string               `json:"summary"`
	Message      string               `json:"message"`
	NewListings  []models.Listing     `json:"new_listings,omitempty"`
	Removed      []models.Listing     `json:"removed_listings,omitempty"`
	PriceChanged []models.PriceChange `json:"price_changed,omitempty"`
	Timestamp    time.Time            `json:"timestamp"`
}

func (c *WebhookChannel) Send(ctx context.Context, alert models.AlertDefinition, msg Message) Result {
	if err := validateWebhookURL(alert.WebhookURL); err != nil {
		return failed("%v", err)
	}

	payload := webhookPayload{
		AlertID:      alert.ID,
		AlertName:    alert.Name,
		ComplexNo:    complexNoOf(msg),
		Title:        msg.Title,
		Summary:      msg.Summary,
		Message:      msg.Body,
		NewListings:  msg.Match.NewListings,
		Removed:      msg.Match.RemovedListings,
		PriceChanged: msg.Match.PriceChanged,
		Timestamp:    time.Now().UTC(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return failed("marshal payload: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, alert.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return failed("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "zipalim-webhook/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return failed("webhook POST failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		r := sent()
		r.ResponseCode = resp.StatusCode
		return r
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	r := failed("webhook returned %d: %s", resp.StatusCode, string(respBody))
	r.ResponseCode = resp.StatusCode
	return r
}

// complexNoOf pulls the complex number from the first listing in the match.
func complexNoOf(msg Message) string {
	if len(msg.Match.NewListings) > 0 {
		return msg.Match.NewListings[0].ComplexNo
	}
	if len(msg.Match.RemovedListings) > 0 {
		return msg.Match.RemovedListings[0].ComplexNo
	}
	if len(msg.Match.PriceChanged) > 0 {
		return msg.Match.PriceChanged[0].New.ComplexNo
	}
	return ""
}

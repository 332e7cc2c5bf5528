// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/zipalim/zipalim/internal/models"
)

// Discord allows at most 10 embeds per webhook message.
const maxEmbedsPerPost = 10

// Embed accent colors per change kind.
const (
	colorNew     = 0x2ECC71
	colorRemoved = 0xE74C3C
	colorPrice   = 0xF39C12
	colorSummary = 0x5865F2
)

// DiscordChannel delivers notifications to a Discord webhook as rich embeds.
// One embed per changed listing plus a summary embed, batched into POSTs of
// at most ten embeds. A shared rate limiter paces POSTs across all alerts so
// a busy cycle does not trip Discord's webhook limits.
type DiscordChannel struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewDiscordChannel returns a Discord channel POSTing at most postsPerSec
// requests per second.
func NewDiscordChannel(timeout time.Duration, postsPerSec float64) *DiscordChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if postsPerSec <= 0 {
		postsPerSec = 2
	}
	return &DiscordChannel{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(postsPerSec), 1),
	}
}

func (c *DiscordChannel) Name() models.NotificationChannel {
	return models.ChannelDiscord
}

// discordPayload is the webhook message body.
type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Footer      *discordFooter      `json:"footer,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
}

type discordFooter struct {
	Text string `json:"text,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

func (c *DiscordChannel) Send(ctx context.Context, alert models.AlertDefinition, msg Message) Result {
	if err := validateWebhookURL(alert.DiscordWebhookURL); err != nil {
		return failed("%v", err)
	}

	embeds := buildEmbeds(alert, msg)
	for start := 0; start < len(embeds); start += maxEmbedsPerPost {
		end := start + maxEmbedsPerPost
		if end > len(embeds) {
			end = len(embeds)
		}
		if err := c.post(ctx, alert.DiscordWebhookURL, discordPayload{
			Username: "Zipalim",
			Embeds:   embeds[start:end],
		}); err != nil {
			return failed("discord webhook: %v", err)
		}
	}
	return sent()
}

func (c *DiscordChannel) post(ctx context.Context, webhookURL string, payload discordPayload) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
}

// buildEmbeds renders one embed per changed listing, then a summary embed.
func buildEmbeds(alert models.AlertDefinition, msg Message) []discordEmbed {
	now := time.Now().UTC().Format(time.RFC3339)
	var embeds []discordEmbed

	for _, l := range msg.Match.NewListings {
		embeds = append(embeds, discordEmbed{
			Title:       "신규 매물",
			Description: listingLine(l),
			Color:       colorNew,
			Timestamp:   now,
		})
	}
	for _, l := range msg.Match.RemovedListings {
		embeds = append(embeds, discordEmbed{
			Title:       "삭제된 매물",
			Description: listingLine(l),
			Color:       colorRemoved,
			Timestamp:   now,
		})
	}
	for _, pc := range msg.Match.PriceChanged {
		embeds = append(embeds, discordEmbed{
			Title:       "가격 변동",
			Description: priceChangeLine(pc),
			Color:       colorPrice,
			Timestamp:   now,
		})
	}

	embeds = append(embeds, discordEmbed{
		Title:       msg.Title,
		Description: msg.Summary,
		Color:       colorSummary,
		Timestamp:   now,
		Footer:      &discordFooter{Text: fmt.Sprintf("알림 %s", alert.Name)},
	})
	return embeds
}

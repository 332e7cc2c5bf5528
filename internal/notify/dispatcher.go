// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zipalim/zipalim/internal/alerting"
	"github.com/zipalim/zipalim/internal/logging"
	"github.com/zipalim/zipalim/internal/models"
	"github.com/zipalim/zipalim/internal/storage"
)

// Summary counts the delivery attempts of one dispatch call.
type Summary struct {
	Sent   int
	Failed int
}

// Dispatcher fans matched alerts out to their configured channels. Every
// alert-channel pair is one independent delivery attempt: attempts run
// concurrently up to a bound, failures are logged and never retried, and no
// attempt can prevent another from running.
type Dispatcher struct {
	channels map[models.NotificationChannel]Channel
	logs     storage.NotificationLogStore

	maxConcurrent  int
	requestTimeout time.Duration

	// onResult is a metrics hook invoked once per attempt, may be nil.
	onResult func(channel models.NotificationChannel, status models.DeliveryStatus)
}

// NewDispatcher returns a Dispatcher delivering through the given channels
// and recording every attempt in logs.
func NewDispatcher(logs storage.NotificationLogStore, maxConcurrent int, requestTimeout time.Duration, channels ...Channel) *Dispatcher {
	if maxConcurrent < 1 {
		maxConcurrent = 5
	}
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	d := &Dispatcher{
		channels:       make(map[models.NotificationChannel]Channel, len(channels)),
		logs:           logs,
		maxConcurrent:  maxConcurrent,
		requestTimeout: requestTimeout,
	}
	for _, ch := range channels {
		d.channels[ch.Name()] = ch
	}
	return d
}

// OnResult registers a callback invoked once per delivery attempt.
func (d *Dispatcher) OnResult(fn func(channel models.NotificationChannel, status models.DeliveryStatus)) {
	d.onResult = fn
}

// Dispatch delivers every match over every channel its alert enables and
// blocks until all attempts finish. Delivery failures are reflected in the
// Summary and the notification log, never as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, matches []alerting.Match) Summary {
	type attempt struct {
		alert models.AlertDefinition
		ch    Channel
		msg   Message
	}

	var attempts []attempt
	for _, m := range matches {
		msg := Compose(m)
		for _, name := range m.Alert.Channels {
			ch, ok := d.channels[name]
			if !ok {
				logging.Warn().Str("channel", string(name)).
					Str("alert_id", m.Alert.ID).
					Msg("alert references unavailable channel")
				d.record(ctx, m.Alert, name, failed("channel %s is not available", name), msg)
				continue
			}
			attempts = append(attempts, attempt{alert: m.Alert, ch: ch, msg: msg})
		}
	}

	var (
		mu      sync.Mutex
		summary Summary
		wg      sync.WaitGroup
		sem     = make(chan struct{}, d.maxConcurrent)
	)
	for _, a := range attempts {
		wg.Add(1)
		sem <- struct{}{}
		go func(a attempt) {
			defer wg.Done()
			defer func() { <-sem }()

			sendCtx, cancel := context.WithTimeout(ctx, d.requestTimeout)
			res := a.ch.Send(sendCtx, a.alert, a.msg)
			cancel()

			d.record(ctx, a.alert, a.ch.Name(), res, a.msg)

			mu.Lock()
			if res.Status == models.DeliverySent {
				summary.Sent++
			} else {
				summary.Failed++
			}
			mu.Unlock()
		}(a)
	}
	wg.Wait()
	return summary
}

// record appends one notification log entry for an attempt. Log persistence
// failures are logged and swallowed: the delivery outcome stands regardless.
func (d *Dispatcher) record(ctx context.Context, alert models.AlertDefinition, channel models.NotificationChannel, res Result, msg Message) {
	if d.onResult != nil {
		d.onResult(channel, res.Status)
	}

	entry := models.NotificationLogEntry{
		ID:        uuid.NewString(),
		AlertID:   alert.ID,
		Channel:   channel,
		Status:    res.Status,
		Message:   msg.Title,
		ListingNo: singleListingNo(msg.Match),
		CreatedAt: time.Now().UTC(),
	}
	if res.Status == models.DeliveryFailed {
		entry.Message = res.ErrorMessage
		logging.Warn().Str("alert_id", alert.ID).
			Str("channel", string(channel)).
			Str("error", res.ErrorMessage).
			Msg("notification delivery failed")
	} else {
		logging.Debug().Str("alert_id", alert.ID).
			Str("channel", string(channel)).
			Msg("notification delivered")
	}

	if err := d.logs.AppendNotificationLog(ctx, entry); err != nil {
		logging.Error().Err(err).Str("alert_id", alert.ID).
			Msg("append notification log")
	}
}

// singleListingNo identifies the listing a log entry is about when the match
// carries exactly one change; multi-change matches stay summary-level.
func singleListingNo(m alerting.Match) string {
	if m.ChangeCount() != 1 {
		return ""
	}
	switch {
	case len(m.NewListings) == 1:
		return m.NewListings[0].ListingNo
	case len(m.RemovedListings) == 1:
		return m.RemovedListings[0].ListingNo
	default:
		return m.PriceChanged[0].New.ListingNo
	}
}

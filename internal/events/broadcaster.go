// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

// Package events fans crawl lifecycle events out to connected dashboard
// clients over SSE and WebSocket. Delivery is best effort per observer; a
// slow observer loses events instead of blocking the pipeline.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/zipalim/zipalim/internal/logging"
)

// Event types pushed to clients.
const (
	TypeCrawlStart       = "crawl-start"
	TypeCrawlProgress    = "crawl-progress"
	TypeCrawlComplete    = "crawl-complete"
	TypeCrawlFailed      = "crawl-failed"
	TypeScheduleStart    = "schedule-start"
	TypeScheduleComplete = "schedule-complete"
	TypeScheduleFailed   = "schedule-failed"
	TypeNotification     = "notification"
)

// Event is one push message. CrawlID carries the schedule ID for schedule
// events and the alert ID for notifications.
type Event struct {
	Type      string    `json:"type"`
	CrawlID   string    `json:"crawlId"`
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data,omitempty"`
}

// EventData is the optional payload; zero-valued fields are omitted.
type EventData struct {
	Progress           int    `json:"progress,omitempty"`
	CurrentStep        string `json:"currentStep,omitempty"`
	TotalComplexes     int    `json:"totalComplexes,omitempty"`
	ProcessedComplexes int    `json:"processedComplexes,omitempty"`
	ListingsCount      int    `json:"articlesCount,omitempty"`
	ErrorMessage       string `json:"errorMessage,omitempty"`
	ScheduleID         string `json:"scheduleId,omitempty"`
	ScheduleName       string `json:"scheduleName,omitempty"`
	DurationSec        int    `json:"duration,omitempty"`
	Title              string `json:"title,omitempty"`
	Message            string `json:"message,omitempty"`
}

// Subscriber receives events on C until Unsubscribe. The channel is buffered;
// when the buffer is full new events are dropped for this subscriber only.
type Subscriber struct {
	C           chan Event
	connectedAt time.Time
}

// Broadcaster fans events out to subscribers.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
	buffer      int
	dropped     func() // metrics hook, may be nil
}

// NewBroadcaster returns a Broadcaster handing each subscriber a channel
// buffered to bufferSize.
func NewBroadcaster(bufferSize int) *Broadcaster {
	if bufferSize < 1 {
		bufferSize = 64
	}
	return &Broadcaster{
		subscribers: make(map[*Subscriber]struct{}),
		buffer:      bufferSize,
	}
}

// OnDrop registers a callback invoked once per dropped event per subscriber.
func (b *Broadcaster) OnDrop(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropped = fn
}

// Subscribe registers a new observer.
func (b *Broadcaster) Subscribe() *Subscriber {
	sub := &Subscriber{
		C:           make(chan Event, b.buffer),
		connectedAt: time.Now(),
	}
	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	total := len(b.subscribers)
	b.mu.Unlock()
	logging.Debug().Int("total_clients", total).Msg("event subscriber connected")
	return sub
}

// Unsubscribe removes the observer and closes its channel. Idempotent.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	_, ok := b.subscribers[sub]
	if ok {
		delete(b.subscribers, sub)
		close(sub.C)
	}
	total := len(b.subscribers)
	b.mu.Unlock()
	if ok {
		logging.Debug().Int("total_clients", total).Msg("event subscriber disconnected")
	}
}

// Publish delivers the event to every subscriber without blocking. A full
// subscriber buffer drops the event for that subscriber.
func (b *Broadcaster) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub.C <- ev:
		default:
			if b.dropped != nil {
				b.dropped()
			}
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// CloseAll disconnects every subscriber. Used on shutdown.
func (b *Broadcaster) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subscribers {
		delete(b.subscribers, sub)
		close(sub.C)
	}
}

// Serve blocks until ctx is canceled, then disconnects all subscribers. It
// exists so the broadcaster slots into the supervision tree.
func (b *Broadcaster) Serve(ctx context.Context) error {
	<-ctx.Done()
	b.CloseAll()
	return ctx.Err()
}

// NotifyCrawlStart publishes a crawl-start event.
func (b *Broadcaster) NotifyCrawlStart(crawlID string, totalComplexes int) {
	b.Publish(Event{Type: TypeCrawlStart, CrawlID: crawlID,
		Data: EventData{TotalComplexes: totalComplexes}})
}

// NotifyCrawlProgress publishes a crawl-progress event. Progress is 0-100.
func (b *Broadcaster) NotifyCrawlProgress(crawlID string, progress int, step string, processed, total int) {
	b.Publish(Event{Type: TypeCrawlProgress, CrawlID: crawlID,
		Data: EventData{Progress: progress, CurrentStep: step,
			ProcessedComplexes: processed, TotalComplexes: total}})
}

// NotifyCrawlComplete publishes a crawl-complete event.
func (b *Broadcaster) NotifyCrawlComplete(crawlID string, listingsCount int) {
	b.Publish(Event{Type: TypeCrawlComplete, CrawlID: crawlID,
		Data: EventData{ListingsCount: listingsCount}})
}

// NotifyCrawlFailed publishes a crawl-failed event.
func (b *Broadcaster) NotifyCrawlFailed(crawlID, errMsg string) {
	b.Publish(Event{Type: TypeCrawlFailed, CrawlID: crawlID,
		Data: EventData{ErrorMessage: errMsg}})
}

// NotifyScheduleStart publishes a schedule-start event.
func (b *Broadcaster) NotifyScheduleStart(scheduleID, name string, totalComplexes int) {
	b.Publish(Event{Type: TypeScheduleStart, CrawlID: scheduleID,
		Data: EventData{ScheduleID: scheduleID, ScheduleName: name, TotalComplexes: totalComplexes}})
}

// NotifyScheduleComplete publishes a schedule-complete event.
func (b *Broadcaster) NotifyScheduleComplete(scheduleID, name string, listingsCount, durationSec int) {
	b.Publish(Event{Type: TypeScheduleComplete, CrawlID: scheduleID,
		Data: EventData{ScheduleID: scheduleID, ScheduleName: name,
			ListingsCount: listingsCount, DurationSec: durationSec}})
}

// NotifyScheduleFailed publishes a schedule-failed event.
func (b *Broadcaster) NotifyScheduleFailed(scheduleID, name, errMsg string) {
	b.Publish(Event{Type: TypeScheduleFailed, CrawlID: scheduleID,
		Data: EventData{ScheduleID: scheduleID, ScheduleName: name, ErrorMessage: errMsg}})
}

// NotifyAlert publishes a notification event carrying an alert message to
// browser clients.
func (b *Broadcaster) NotifyAlert(alertID, title, message string) {
	b.Publish(Event{Type: TypeNotification, CrawlID: alertID,
		Data: EventData{Title: title, Message: message}})
}

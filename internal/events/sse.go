// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package events

import (
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/zipalim/zipalim/internal/logging"
)

const sseHeartbeatInterval = 30 * time.Second

// SSEHandler streams events over Server-Sent Events. Connections are closed
// after staleTimeout; dashboard clients reconnect automatically.
func SSEHandler(b *Broadcaster, staleTimeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		sub := b.Subscribe()
		defer b.Unsubscribe(sub)

		heartbeat := time.NewTicker(sseHeartbeatInterval)
		defer heartbeat.Stop()

		var stale <-chan time.Time
		if staleTimeout > 0 {
			staleTimer := time.NewTimer(staleTimeout)
			defer staleTimer.Stop()
			stale = staleTimer.C
		}

		for {
			select {
			case <-r.Context().Done():
				return
			case <-stale:
				logging.Debug().Dur("age", staleTimeout).Msg("closing stale sse connection")
				return
			case <-heartbeat.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case ev, open := <-sub.C:
				if !open {
					return
				}
				payload, err := json.Marshal(ev)
				if err != nil {
					logging.Err(err).Msg("encode sse event")
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zipalim/zipalim/internal/events"
)

// Router assembles the HTTP surface.
type Router struct {
	handler      *Handler
	mw           MiddlewareConfig
	staleTimeout time.Duration
}

// NewRouter builds the router. staleTimeout bounds how long an SSE connection
// may stay open before the client is asked to reconnect.
func NewRouter(handler *Handler, mw MiddlewareConfig, staleTimeout time.Duration) *Router {
	return &Router{handler: handler, mw: mw, staleTimeout: staleTimeout}
}

// Setup wires all routes and the global middleware stack.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(rt.mw.CORS())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.mw.RateLimit())
		r.Use(Instrument())

		r.Get("/health", rt.handler.Health)

		// Push event streams. The SSE and WebSocket endpoints carry the same
		// event payloads; clients pick the transport.
		r.Get("/events", events.SSEHandler(rt.handler.broadcaster, rt.staleTimeout))
		r.Get("/events/ws", events.WSHandler(rt.handler.broadcaster))

		r.Route("/complexes", func(r chi.Router) {
			r.Get("/", rt.handler.ListComplexes)
			r.Get("/{id}/stats", rt.handler.ComplexStats)
		})

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", rt.handler.ListSchedules)
			r.Post("/", rt.handler.CreateSchedule)
			r.Put("/{id}", rt.handler.UpdateSchedule)
			r.Delete("/{id}", rt.handler.DeleteSchedule)
			r.Post("/{id}/run", rt.handler.RunSchedule)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", rt.handler.ListAlerts)
			r.Post("/", rt.handler.CreateAlert)
			r.Put("/{id}", rt.handler.UpdateAlert)
			r.Delete("/{id}", rt.handler.DeleteAlert)
		})

		r.Get("/notifications/logs", rt.handler.NotificationLogs)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

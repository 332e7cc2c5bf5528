// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package api

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/zipalim/zipalim/internal/logging"
	"github.com/zipalim/zipalim/internal/metrics"
)

// MiddlewareConfig holds settings for the global middleware stack.
type MiddlewareConfig struct {
	CORSOrigins     []string
	RateLimitReqs   int
	RateLimitWindow time.Duration
}

// CORS builds the CORS middleware from the configured origins. The dashboard
// is a browser client, so preflight handling has to sit above every route.
func (c MiddlewareConfig) CORS() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: c.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Accept"},
		MaxAge:         86400,
	})
}

// RateLimit builds a per-IP rate limiter. A non-positive request count
// disables limiting.
func (c MiddlewareConfig) RateLimit() func(http.Handler) http.Handler {
	if c.RateLimitReqs <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	window := c.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(c.RateLimitReqs, window,
		httprate.WithKeyFuncs(httprate.KeyByIP))
}

// Instrument records per-request metrics and a debug log line. The endpoint
// label uses the matched route pattern, not the raw path, so path parameters
// do not explode label cardinality.
func Instrument() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(ww, r)

			endpoint := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					endpoint = pattern
				}
			}
			duration := time.Since(start)
			metrics.RecordAPIRequest(r.Method, endpoint, ww.status, duration)
			logging.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.status).
				Dur("duration", duration).
				Msg("api request")
		})
	}
}

// statusWriter captures the response status for instrumentation. Flush and
// Hijack pass through so the streaming endpoints keep working when wrapped.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

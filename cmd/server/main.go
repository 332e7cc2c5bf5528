// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

// Package main is the entry point for the Zipalim server.
//
// Zipalim monitors apartment complex listings through an external crawler
// subprocess, detects new, removed, and price-changed listings, and delivers
// alerts over browser push, email, webhook, and Discord channels.
//
// The server initializes components in the following order:
//
//  1. Configuration: layered defaults, YAML file, environment (Koanf v2)
//  2. Storage: SQLite listing and schedule persistence
//  3. Cache: in-process tier plus optional NATS JetStream KV tier
//  4. Events: the SSE/WebSocket broadcaster
//  5. Notify: alert channels behind a bounded dispatcher
//  6. Pipeline and scheduler: cron-driven crawl cycles
//  7. HTTP server: REST API, event streams, Prometheus metrics
//
// All long-running components run under a suture supervision tree. The server
// handles graceful shutdown on SIGINT and SIGTERM: timers stop, in-flight
// crawl cycles and HTTP requests drain, then storage and cache close.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/zipalim/zipalim/internal/api"
	"github.com/zipalim/zipalim/internal/cache"
	"github.com/zipalim/zipalim/internal/config"
	"github.com/zipalim/zipalim/internal/crawler"
	"github.com/zipalim/zipalim/internal/events"
	"github.com/zipalim/zipalim/internal/logging"
	"github.com/zipalim/zipalim/internal/metrics"
	"github.com/zipalim/zipalim/internal/models"
	"github.com/zipalim/zipalim/internal/notify"
	"github.com/zipalim/zipalim/internal/scheduler"
	"github.com/zipalim/zipalim/internal/storage"
	"github.com/zipalim/zipalim/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("server exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("listen", listenAddr(cfg)).Msg("starting zipalim")

	store, err := storage.OpenSQLite(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	twoTier := buildCache(cfg)
	defer twoTier.Close()

	broadcaster := events.NewBroadcaster(cfg.Events.SubscriberBuffer)
	dispatcher := buildDispatcher(cfg, store, broadcaster)

	crawl := &crawler.Exec{
		Command: cfg.Crawler.Command,
		Args:    cfg.Crawler.Args,
	}
	timeouts := crawler.TimeoutConfig{
		Base:       cfg.Crawler.BaseTimeout,
		PerComplex: cfg.Crawler.TimeoutPerComplex,
		Max:        cfg.Crawler.MaxTimeout,
	}
	pipeline := scheduler.NewPipeline(store, crawl, dispatcher, broadcaster, twoTier, timeouts)
	sched := scheduler.New(store, pipeline, scheduler.ResolveTargets(store), broadcaster,
		cfg.Location(), cfg.Scheduler.MaxSchedules)

	wireMetrics(twoTier, broadcaster, dispatcher, pipeline, sched)

	handler := api.NewHandler(store, twoTier, sched, broadcaster)
	router := api.NewRouter(handler, api.MiddlewareConfig{
		CORSOrigins:     cfg.Server.CORSOrigins,
		RateLimitReqs:   cfg.Server.RateLimitReqs,
		RateLimitWindow: cfg.Server.RateLimitWindow,
	}, cfg.Events.StaleTimeout)

	srv := &http.Server{
		Addr:         listenAddr(cfg),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree := supervisor.NewTree(logging.NewSlogLogger(), treeCfg)
	tree.AddMessagingService(broadcaster)
	tree.AddMessagingService(sched)
	tree.AddAPIService(supervisor.NewHTTPService("api-http", srv, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go pollGauges(ctx, twoTier, broadcaster)

	err = tree.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logging.Info().Msg("zipalim stopped")
	return err
}

func listenAddr(cfg *config.Config) string {
	return net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
}

// buildCache assembles the two-tier cache. A NATS tier that fails to start is
// logged and skipped; the server runs on the in-process tier alone.
func buildCache(cfg *config.Config) *cache.TwoTier {
	local := cache.NewLocal(cfg.Cache.DefaultTTL, cfg.Cache.CleanupInterval, cfg.Cache.MaxEntries)

	var tier2 cache.Tier2
	if cfg.NATS.Enabled {
		nt, err := cache.NewNATSTier(cache.NATSTierConfig{
			URL:            cfg.NATS.URL,
			EmbeddedServer: cfg.NATS.EmbeddedServer,
			StoreDir:       cfg.NATS.StoreDir,
			Bucket:         cfg.NATS.Bucket,
			RequestTimeout: cfg.NATS.RequestTimeout,
		})
		if err != nil {
			logging.Warn().Err(err).Msg("nats cache tier unavailable, using in-process cache only")
		} else {
			tier2 = nt
		}
	}
	return cache.NewTwoTier(local, tier2)
}

// buildDispatcher wires the notification channels. The email channel is only
// registered when SMTP is configured.
func buildDispatcher(cfg *config.Config, store storage.Store, broadcaster *events.Broadcaster) *notify.Dispatcher {
	channels := []notify.Channel{
		notify.NewBrowserChannel(broadcaster),
		notify.NewWebhookChannel(cfg.Notify.RequestTimeout),
		notify.NewDiscordChannel(cfg.Notify.RequestTimeout, cfg.Notify.DiscordRate),
	}
	if cfg.SMTP.Host != "" {
		channels = append(channels, notify.NewEmailChannel(cfg.SMTP))
	} else {
		logging.Info().Msg("smtp not configured, email channel disabled")
	}
	return notify.NewDispatcher(store, cfg.Notify.MaxConcurrent, cfg.Notify.RequestTimeout, channels...)
}

// wireMetrics connects the component hooks to the Prometheus collectors.
func wireMetrics(
	twoTier *cache.TwoTier,
	broadcaster *events.Broadcaster,
	dispatcher *notify.Dispatcher,
	pipeline *scheduler.Pipeline,
	sched *scheduler.Scheduler,
) {
	twoTier.OnHit(func(tier string) { metrics.CacheHits.WithLabelValues(tier).Inc() })
	twoTier.OnMiss(func() { metrics.CacheMisses.Inc() })
	broadcaster.OnDrop(func() { metrics.EventsDropped.Inc() })
	dispatcher.OnResult(func(channel models.NotificationChannel, status models.DeliveryStatus) {
		metrics.RecordNotification(string(channel), string(status))
	})
	pipeline.OnCycle(func(h models.CrawlHistory) {
		metrics.RecordCrawlCycle(string(h.Status), time.Duration(h.DurationSec)*time.Second, h.TotalListings)
	})
	pipeline.OnChanges(metrics.RecordChanges)
	sched.OnJobsChanged(func(n int) { metrics.SchedulesRegistered.Set(float64(n)) })
}

// pollGauges samples the gauges that have no change hook.
func pollGauges(ctx context.Context, twoTier *cache.TwoTier, broadcaster *events.Broadcaster) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.CacheEntries.Set(float64(twoTier.Local().Stats().Keys))
			metrics.EventClients.Set(float64(broadcaster.ClientCount()))
		}
	}
}

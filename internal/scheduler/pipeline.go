// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zipalim/zipalim/internal/alerting"
	"github.com/zipalim/zipalim/internal/cache"
	"github.com/zipalim/zipalim/internal/crawler"
	"github.com/zipalim/zipalim/internal/events"
	"github.com/zipalim/zipalim/internal/logging"
	"github.com/zipalim/zipalim/internal/models"
	"github.com/zipalim/zipalim/internal/notify"
	"github.com/zipalim/zipalim/internal/storage"
	"github.com/zipalim/zipalim/internal/tracker"
)

// Pipeline runs one crawl cycle: crawl the target complexes, diff each
// snapshot against persisted state, persist the snapshot, match alerts,
// dispatch notifications, invalidate affected cache namespaces, and record
// the cycle in crawl history.
type Pipeline struct {
	store    storage.Store
	crawl    crawler.Crawler
	detector *tracker.Detector
	matcher  *alerting.Matcher
	dispatch *notify.Dispatcher
	events   *events.Broadcaster
	cache    *cache.TwoTier
	timeouts crawler.TimeoutConfig

	// complexMu serializes diff-and-persist per complex. Two schedules
	// targeting the same complex would otherwise race on the
	// previous-snapshot read; cycles stay parallel across complexes.
	complexMu keyedMutex

	// Metrics hooks, may be nil.
	onCycle   func(history models.CrawlHistory)
	onChanges func(newCount, removedCount, priceChangedCount int)
}

// NewPipeline wires a crawl pipeline.
func NewPipeline(
	store storage.Store,
	crawl crawler.Crawler,
	dispatch *notify.Dispatcher,
	broadcaster *events.Broadcaster,
	twoTier *cache.TwoTier,
	timeouts crawler.TimeoutConfig,
) *Pipeline {
	return &Pipeline{
		store:    store,
		crawl:    crawl,
		detector: tracker.NewDetector(store),
		matcher:  alerting.NewMatcher(store),
		dispatch: dispatch,
		events:   broadcaster,
		cache:    twoTier,
		timeouts: timeouts,
	}
}

// OnCycle registers a callback invoked once per finished cycle with the
// final crawl history record.
func (p *Pipeline) OnCycle(fn func(history models.CrawlHistory)) {
	p.onCycle = fn
}

// OnChanges registers a callback invoked once per processed complex that had
// changes, with the per-kind change counts.
func (p *Pipeline) OnChanges(fn func(newCount, removedCount, priceChangedCount int)) {
	p.onChanges = fn
}

// CycleResult summarizes one finished crawl cycle.
type CycleResult struct {
	CrawlID       string
	Status        models.CrawlStatus
	TotalListings int
	Changes       int
	Duration      time.Duration
}

// Run executes one cycle for the given targets. scheduleID is empty for
// manually triggered cycles. A crawl failure aborts the cycle; per-complex
// processing failures degrade the cycle to partial without stopping the
// remaining complexes.
func (p *Pipeline) Run(ctx context.Context, scheduleID string, complexNos []string) (CycleResult, error) {
	if len(complexNos) == 0 {
		return CycleResult{}, fmt.Errorf("crawl cycle has no target complexes")
	}

	crawlID := uuid.NewString()
	start := time.Now()
	result := CycleResult{CrawlID: crawlID}

	history := models.CrawlHistory{
		ID:          crawlID,
		ComplexNos:  complexNos,
		Status:      models.CrawlStatusCrawling,
		CurrentStep: "crawling",
		ScheduleID:  scheduleID,
		StartedAt:   start.UTC(),
	}
	if err := p.store.CreateCrawlHistory(ctx, history); err != nil {
		return result, fmt.Errorf("create crawl history: %w", err)
	}

	p.events.NotifyCrawlStart(crawlID, len(complexNos))

	timeout := crawler.DynamicTimeout(ctx, p.store, p.timeouts, len(complexNos))
	crawlCtx, cancel := context.WithTimeout(ctx, timeout)
	snapshots, err := p.crawl.Crawl(crawlCtx, complexNos)
	cancel()
	if err != nil {
		history.Status = models.CrawlStatusFailed
		history.CurrentStep = "failed"
		history.ErrorCount = len(complexNos)
		history.ErrorMessage = err.Error()
		history.DurationSec = int(time.Since(start).Seconds())
		p.finishCycle(ctx, history)
		p.events.NotifyCrawlFailed(crawlID, err.Error())
		result.Status = models.CrawlStatusFailed
		result.Duration = time.Since(start)
		return result, err
	}

	byComplex := make(map[string]models.Snapshot, len(snapshots))
	for _, s := range snapshots {
		byComplex[s.ComplexNo] = s
	}

	var firstErr error
	for i, complexNo := range complexNos {
		snap, ok := byComplex[complexNo]
		if !ok {
			logging.Warn().Str("complex_no", complexNo).
				Str("crawl_id", crawlID).
				Msg("crawler returned no snapshot for complex")
			history.ErrorCount++
			continue
		}

		changes, err := p.processComplex(ctx, complexNo, snap)
		if err != nil {
			logging.Error().Err(err).Str("complex_no", complexNo).
				Str("crawl_id", crawlID).
				Msg("complex processing failed")
			history.ErrorCount++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		history.SuccessCount++
		history.TotalListings += len(snap.Listings)
		result.Changes += changes

		processed := i + 1
		p.events.NotifyCrawlProgress(crawlID, processed*100/len(complexNos),
			"complex "+complexNo, processed, len(complexNos))
	}

	// Cached aggregates built from listing state are stale after any cycle.
	for _, prefix := range cache.CrawlInvalidationPrefixes {
		p.cache.Invalidate(ctx, prefix)
	}

	switch {
	case history.SuccessCount == 0:
		history.Status = models.CrawlStatusFailed
	case history.ErrorCount > 0:
		history.Status = models.CrawlStatusPartial
	default:
		history.Status = models.CrawlStatusSuccess
	}
	history.CurrentStep = "done"
	history.DurationSec = int(time.Since(start).Seconds())
	if firstErr != nil {
		history.ErrorMessage = firstErr.Error()
	}
	p.finishCycle(ctx, history)

	result.Status = history.Status
	result.TotalListings = history.TotalListings
	result.Duration = time.Since(start)

	if history.Status == models.CrawlStatusFailed {
		msg := "no complex processed successfully"
		if firstErr != nil {
			msg = firstErr.Error()
		}
		p.events.NotifyCrawlFailed(crawlID, msg)
		return result, fmt.Errorf("crawl cycle %s: %s", crawlID, msg)
	}

	p.events.NotifyCrawlComplete(crawlID, history.TotalListings)
	return result, nil
}

// processComplex diffs and persists one snapshot under the per-complex lock,
// then matches and dispatches outside it. Matching reads only the immutable
// change set, so holding the lock across dispatch would serialize slow
// notification I/O for nothing.
func (p *Pipeline) processComplex(ctx context.Context, complexNo string, snap models.Snapshot) (int, error) {
	unlock := p.complexMu.lock(complexNo)
	cs, err := p.detector.DetectChanges(ctx, complexNo, snap)
	if err == nil {
		err = p.store.ReplaceListings(ctx, complexNo, snap.Listings)
		if err != nil {
			err = fmt.Errorf("persist snapshot for %s: %w", complexNo, err)
		}
	}
	unlock()
	if err != nil {
		return 0, err
	}

	changes := len(cs.NewListings) + len(cs.RemovedListings) + len(cs.PriceChanged)
	if cs.Empty() {
		return 0, nil
	}
	if p.onChanges != nil {
		p.onChanges(len(cs.NewListings), len(cs.RemovedListings), len(cs.PriceChanged))
	}

	matches, err := p.matcher.MatchAlerts(ctx, complexNo, cs)
	if err != nil {
		return changes, err
	}
	if len(matches) > 0 {
		summary := p.dispatch.Dispatch(ctx, matches)
		logging.Info().Str("complex_no", complexNo).
			Int("matches", len(matches)).
			Int("sent", summary.Sent).
			Int("failed", summary.Failed).
			Msg("alert notifications dispatched")
	}
	return changes, nil
}

// finishCycle persists the final crawl history record and fires the metrics
// hook. History write failures are logged; the cycle outcome stands.
func (p *Pipeline) finishCycle(ctx context.Context, history models.CrawlHistory) {
	if err := p.store.UpdateCrawlHistory(ctx, history); err != nil {
		logging.Error().Err(err).Str("crawl_id", history.ID).
			Msg("update crawl history")
	}
	if p.onCycle != nil {
		p.onCycle(history)
	}
}

// keyedMutex is a lazily grown set of named locks.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package crawler

import (
	"context"
	"time"

	"github.com/zipalim/zipalim/internal/logging"
	"github.com/zipalim/zipalim/internal/models"
	"github.com/zipalim/zipalim/internal/storage"
)

// TimeoutConfig bounds a crawl cycle deadline.
type TimeoutConfig struct {
	Base       time.Duration // flat buffer per cycle
	PerComplex time.Duration // added per targeted complex
	Max        time.Duration // hard ceiling
}

// StaticTimeout returns base + n*perComplex clamped to [base, max].
func StaticTimeout(cfg TimeoutConfig, complexCount int) time.Duration {
	d := cfg.Base + time.Duration(complexCount)*cfg.PerComplex
	if d < cfg.Base {
		d = cfg.Base
	}
	if cfg.Max > 0 && d > cfg.Max {
		d = cfg.Max
	}
	return d
}

// historySample is how many recent cycles inform the dynamic timeout.
const historySample = 50

// DynamicTimeout derives a deadline from recent cycle durations: average
// observed time per complex, times the target count, with a 1.5x margin plus
// the base buffer, clamped to [base, max]. With no usable history it falls
// back to the static formula.
func DynamicTimeout(ctx context.Context, store storage.CrawlHistoryStore, cfg TimeoutConfig, complexCount int) time.Duration {
	history, err := store.ListCrawlHistory(ctx, historySample)
	if err != nil {
		logging.Warn().Err(err).Msg("crawl history unavailable, using static timeout")
		return StaticTimeout(cfg, complexCount)
	}

	var perComplexSum float64
	samples := 0
	for _, h := range history {
		if h.Status != models.CrawlStatusSuccess && h.Status != models.CrawlStatusPartial {
			continue
		}
		if len(h.ComplexNos) == 0 || h.DurationSec <= 0 {
			continue
		}
		perComplexSum += float64(h.DurationSec) / float64(len(h.ComplexNos))
		samples++
	}
	if samples == 0 {
		return StaticTimeout(cfg, complexCount)
	}

	avgPerComplex := perComplexSum / float64(samples)
	estimated := time.Duration(avgPerComplex*float64(complexCount)*1.5)*time.Second + cfg.Base

	if estimated < cfg.Base {
		estimated = cfg.Base
	}
	if cfg.Max > 0 && estimated > cfg.Max {
		estimated = cfg.Max
	}
	logging.Debug().Int("samples", samples).
		Dur("timeout", estimated).
		Int("complexes", complexCount).
		Msg("dynamic crawl timeout")
	return estimated
}

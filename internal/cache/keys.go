// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package cache

import (
	"fmt"
	"time"
)

// TTL presets by data volatility.
const (
	TTLShort  = time.Minute      // frequently changing data
	TTLMedium = 5 * time.Minute  // general reads
	TTLLong   = 30 * time.Minute // rarely changing data
	TTLDay    = 24 * time.Hour   // near-static data
)

// Key builders per namespace. Keys use ':' separators; the distributed tier
// maps them to its own alphabet.
var Keys = struct {
	ComplexDetail     func(complexNo string) string
	ComplexPriceStats func(complexNo string) string
	ComplexList       func() string
	ArticleList       func(complexNo string, page int) string
	AnalyticsTrend    func(complexNo string, days int) string
	UserFavorites     func(userID string) string
}{
	ComplexDetail:     func(no string) string { return "complex:" + no },
	ComplexPriceStats: func(no string) string { return "complex:" + no + ":price_stats" },
	ComplexList:       func() string { return "complex:list" },
	ArticleList:       func(no string, page int) string { return fmt.Sprintf("article:list:%s:%d", no, page) },
	AnalyticsTrend:    func(no string, days int) string { return fmt.Sprintf("analytics:price_trend:%s:%dd", no, days) },
	UserFavorites:     func(userID string) string { return "user:" + userID + ":favorites" },
}

// CrawlInvalidationPrefixes are flushed after every crawl cycle so the read
// side serves the fresh listing state.
var CrawlInvalidationPrefixes = []string{"complex:", "article:", "analytics:"}

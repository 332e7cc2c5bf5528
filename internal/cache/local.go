// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

// Package cache implements the two-tier cache-aside layer: a fast in-process
// tier backed by an optional distributed tier shared between instances. The
// cache is an optimization only; when a tier is unavailable reads fall
// through to the fetcher and the pipeline keeps working.
package cache

import (
	"strings"
	"sync"
	"time"
)

type localEntry struct {
	data      any
	expiresAt time.Time
}

// Local is the in-process tier: a TTL map with background cleanup.
type Local struct {
	mu         sync.RWMutex
	entries    map[string]localEntry
	defaultTTL time.Duration
	maxEntries int
	stop       chan struct{}
	stopOnce   sync.Once

	stats struct {
		mu        sync.Mutex
		hits      int64
		misses    int64
		evictions int64
	}
}

// LocalStats is a snapshot of tier-1 counters.
type LocalStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Keys      int
}

// NewLocal creates the in-process tier. cleanupInterval <= 0 disables the
// background sweep (expired entries are still rejected on read).
func NewLocal(defaultTTL, cleanupInterval time.Duration, maxEntries int) *Local {
	l := &Local{
		entries:    make(map[string]localEntry),
		defaultTTL: defaultTTL,
		maxEntries: maxEntries,
		stop:       make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go l.cleanupLoop(cleanupInterval)
	}
	return l
}

// Get returns the cached value if present and not expired.
func (l *Local) Get(key string) (any, bool) {
	l.mu.RLock()
	entry, exists := l.entries[key]
	l.mu.RUnlock()

	if !exists {
		l.recordMiss()
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		l.mu.Lock()
		delete(l.entries, key)
		l.mu.Unlock()
		l.recordMiss()
		l.recordEviction()
		return nil, false
	}
	l.recordHit()
	return entry.data, true
}

// Set stores a value with the given TTL; ttl <= 0 uses the default. When the
// map is at capacity the incoming entry evicts an arbitrary existing one.
func (l *Local) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = l.defaultTTL
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxEntries > 0 && len(l.entries) >= l.maxEntries {
		if _, exists := l.entries[key]; !exists {
			for k := range l.entries {
				delete(l.entries, k)
				break
			}
			l.recordEviction()
		}
	}
	l.entries[key] = localEntry{data: value, expiresAt: time.Now().Add(ttl)}
}

// Delete removes one entry. No-op for missing keys.
func (l *Local) Delete(key string) {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
}

// DeletePrefix removes every entry whose key starts with prefix and returns
// the number removed.
func (l *Local) DeletePrefix(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k := range l.entries {
		if strings.HasPrefix(k, prefix) {
			delete(l.entries, k)
			n++
		}
	}
	return n
}

// Clear removes all entries.
func (l *Local) Clear() {
	l.mu.Lock()
	l.entries = make(map[string]localEntry)
	l.mu.Unlock()
}

// Close stops the cleanup goroutine. Idempotent.
func (l *Local) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Stats returns a snapshot of the tier-1 counters.
func (l *Local) Stats() LocalStats {
	l.mu.RLock()
	keys := len(l.entries)
	l.mu.RUnlock()

	l.stats.mu.Lock()
	defer l.stats.mu.Unlock()
	return LocalStats{
		Hits:      l.stats.hits,
		Misses:    l.stats.misses,
		Evictions: l.stats.evictions,
		Keys:      keys,
	}
}

func (l *Local) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *Local) cleanup() {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, e := range l.entries {
		if now.After(e.expiresAt) {
			delete(l.entries, k)
			l.recordEviction()
		}
	}
}

func (l *Local) recordHit() {
	l.stats.mu.Lock()
	l.stats.hits++
	l.stats.mu.Unlock()
}

func (l *Local) recordMiss() {
	l.stats.mu.Lock()
	l.stats.misses++
	l.stats.mu.Unlock()
}

func (l *Local) recordEviction() {
	l.stats.mu.Lock()
	l.stats.evictions++
	l.stats.mu.Unlock()
}

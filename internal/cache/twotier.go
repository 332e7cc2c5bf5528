// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package cache

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/zipalim/zipalim/internal/logging"
)

// localTTLCap bounds how long tier-1 may serve an entry whose authoritative
// expiry lives in tier 2.
const localTTLCap = 5 * time.Minute

// TwoTier is the cache-aside entry point. Tier 1 is the in-process TTL map;
// tier 2 is optional and sits behind a circuit breaker so a struggling
// backend degrades to tier-1-plus-fetcher instead of slowing every read.
type TwoTier struct {
	local   *Local
	tier2   Tier2
	breaker *gobreaker.CircuitBreaker[[]byte]

	onHit  func(tier string) // metrics hooks, may be nil
	onMiss func()
}

// NewTwoTier combines the tiers. tier2 may be nil for single-instance
// deployments without a distributed tier.
func NewTwoTier(local *Local, tier2 Tier2) *TwoTier {
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "cache-tier2",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("cache tier2 breaker state change")
		},
	})
	return &TwoTier{local: local, tier2: tier2, breaker: breaker}
}

// OnHit registers a callback invoked per cache hit with "l1" or "l2".
func (c *TwoTier) OnHit(fn func(tier string)) { c.onHit = fn }

// OnMiss registers a callback invoked per full cache miss.
func (c *TwoTier) OnMiss(fn func()) { c.onMiss = fn }

// Local exposes the tier-1 cache for stats reporting.
func (c *TwoTier) Local() *Local { return c.local }

// Tier2Available reports whether the distributed tier is configured and its
// breaker is not open.
func (c *TwoTier) Tier2Available() bool {
	return c.tier2 != nil && c.breaker.State() != gobreaker.StateOpen
}

// Invalidate removes every key with the given prefix from both tiers. A
// tier-2 failure is logged and does not fail the invalidation: entries left
// behind expire by TTL.
func (c *TwoTier) Invalidate(ctx context.Context, prefix string) {
	n := c.local.DeletePrefix(prefix)
	logging.Debug().Str("prefix", prefix).Int("removed", n).Msg("cache tier1 invalidated")

	if c.tier2 == nil {
		return
	}
	_, err := c.breaker.Execute(func() ([]byte, error) {
		_, err := c.tier2.DeletePrefix(ctx, prefix)
		return nil, err
	})
	if err != nil {
		logging.Warn().Err(err).Str("prefix", prefix).Msg("cache tier2 invalidation failed")
	}
}

// Close releases both tiers.
func (c *TwoTier) Close() {
	c.local.Close()
	if c.tier2 != nil {
		c.tier2.Close()
	}
}

// GetCached implements cache-aside: tier 1, then tier 2, then the fetcher,
// writing back through both tiers. The fetcher runs only on a full miss; its
// error is returned as-is and nothing is cached.
func GetCached[T any](ctx context.Context, c *TwoTier, key string, ttl time.Duration, fetcher func(context.Context) (T, error)) (T, error) {
	var zero T

	if v, ok := c.local.Get(key); ok {
		if typed, ok := v.(T); ok {
			c.hit("l1")
			return typed, nil
		}
		// type drift between callers sharing a key; treat as miss
		c.local.Delete(key)
	}

	if c.tier2 != nil {
		data, err := c.breaker.Execute(func() ([]byte, error) {
			data, found, err := c.tier2.Get(ctx, key)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, nil
			}
			return data, nil
		})
		if err != nil {
			logging.Warn().Err(err).Str("key", key).Msg("cache tier2 read failed")
		} else if data != nil {
			var typed T
			if err := json.Unmarshal(data, &typed); err != nil {
				logging.Warn().Err(err).Str("key", key).Msg("cache tier2 entry undecodable")
			} else {
				c.hit("l2")
				c.local.Set(key, typed, min(ttl, localTTLCap))
				return typed, nil
			}
		}
	}

	c.miss()
	value, err := fetcher(ctx)
	if err != nil {
		return zero, err
	}

	c.local.Set(key, value, min(ttl, localTTLCap))
	if c.tier2 != nil {
		payload, err := json.Marshal(value)
		if err != nil {
			logging.Warn().Err(err).Str("key", key).Msg("cache value not serializable for tier2")
			return value, nil
		}
		if _, err := c.breaker.Execute(func() ([]byte, error) {
			return nil, c.tier2.Set(ctx, key, payload, ttl)
		}); err != nil {
			logging.Warn().Err(err).Str("key", key).Msg("cache tier2 write failed")
		}
	}
	return value, nil
}

func (c *TwoTier) hit(tier string) {
	if c.onHit != nil {
		c.onHit(tier)
	}
}

func (c *TwoTier) miss() {
	if c.onMiss != nil {
		c.onMiss()
	}
}

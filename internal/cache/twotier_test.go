// Zipalim - Apartment Complex Listing Monitor
// Copyright 2026 Zipalim Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zipalim/zipalim

package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeTier2 is an in-memory Tier2 with switchable failure mode.
type fakeTier2 struct {
	mu      sync.Mutex
	data    map[string][]byte
	failing bool
	gets    int
	sets    int
}

func newFakeTier2() *fakeTier2 {
	return &fakeTier2{data: make(map[string][]byte)}
}

func (f *fakeTier2) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.failing {
		return nil, false, errors.New("tier2 down")
	}
	d, ok := f.data[key]
	return d, ok, nil
}

func (f *fakeTier2) Set(_ context.Context, key string, data []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.failing {
		return errors.New("tier2 down")
	}
	f.data[key] = data
	return nil
}

func (f *fakeTier2) DeletePrefix(_ context.Context, prefix string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return 0, errors.New("tier2 down")
	}
	n := 0
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			delete(f.data, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeTier2) Close() {}

func (f *fakeTier2) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

type payload struct {
	Value string `json:"value"`
}

func TestGetCachedFetcherRunsOncePerTTL(t *testing.T) {
	ctx := context.Background()
	c := NewTwoTier(newTestLocal(), newFakeTier2())
	defer c.Close()

	calls := 0
	fetch := func(context.Context) (payload, error) {
		calls++
		return payload{Value: "fresh"}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := GetCached(ctx, c, Keys.ComplexDetail("1001"), TTLMedium, fetch)
		if err != nil {
			t.Fatalf("GetCached: %v", err)
		}
		if got.Value != "fresh" {
			t.Fatalf("got %+v", got)
		}
	}
	if calls != 1 {
		t.Errorf("fetcher ran %d times, want 1", calls)
	}
}

func TestGetCachedInvalidateForcesRefetch(t *testing.T) {
	ctx := context.Background()
	c := NewTwoTier(newTestLocal(), newFakeTier2())
	defer c.Close()

	calls := 0
	fetch := func(context.Context) (payload, error) {
		calls++
		return payload{Value: "v"}, nil
	}

	key := Keys.ComplexDetail("1001")
	if _, err := GetCached(ctx, c, key, TTLMedium, fetch); err != nil {
		t.Fatal(err)
	}
	c.Invalidate(ctx, "complex:")
	if _, err := GetCached(ctx, c, key, TTLMedium, fetch); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("fetcher ran %d times, want 2 (refetch after invalidate)", calls)
	}
}

func TestGetCachedTier2HitPopulatesTier1(t *testing.T) {
	ctx := context.Background()
	tier2 := newFakeTier2()
	local := newTestLocal()
	c := NewTwoTier(local, tier2)
	defer c.Close()

	key := Keys.ComplexPriceStats("1001")
	// warm tier 2 through a first instance's fetch
	if _, err := GetCached(ctx, c, key, TTLMedium, func(context.Context) (payload, error) {
		return payload{Value: "warm"}, nil
	}); err != nil {
		t.Fatal(err)
	}

	// a second instance shares tier 2 but has a cold tier 1
	c2 := NewTwoTier(newTestLocal(), tier2)
	defer c2.Close()

	fetcherRan := false
	got, err := GetCached(ctx, c2, key, TTLMedium, func(context.Context) (payload, error) {
		fetcherRan = true
		return payload{}, nil
	})
	if err != nil {
		t.Fatalf("GetCached: %v", err)
	}
	if fetcherRan {
		t.Error("fetcher ran despite tier-2 hit")
	}
	if got.Value != "warm" {
		t.Errorf("got %+v, want warm value from tier 2", got)
	}
	// tier 1 now warm: a failing tier 2 must not matter
	tier2.setFailing(true)
	got, err = GetCached(ctx, c2, key, TTLMedium, func(context.Context) (payload, error) {
		return payload{}, errors.New("should not run")
	})
	if err != nil || got.Value != "warm" {
		t.Errorf("tier-1 hit after tier-2 failure: %+v, %v", got, err)
	}
}

func TestGetCachedDegradesWhenTier2Fails(t *testing.T) {
	ctx := context.Background()
	tier2 := newFakeTier2()
	tier2.setFailing(true)
	c := NewTwoTier(newTestLocal(), tier2)
	defer c.Close()

	got, err := GetCached(ctx, c, "analytics:x", TTLShort, func(context.Context) (payload, error) {
		return payload{Value: "direct"}, nil
	})
	if err != nil {
		t.Fatalf("GetCached with failing tier2: %v", err)
	}
	if got.Value != "direct" {
		t.Errorf("got %+v", got)
	}
}

func TestGetCachedFetcherErrorNotCached(t *testing.T) {
	ctx := context.Background()
	c := NewTwoTier(newTestLocal(), nil)
	defer c.Close()

	boom := errors.New("db down")
	calls := 0
	fetch := func(context.Context) (payload, error) {
		calls++
		return payload{}, boom
	}

	if _, err := GetCached(ctx, c, "k", TTLShort, fetch); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want fetcher error", err)
	}
	// the failure is not cached; the next read retries
	if _, err := GetCached(ctx, c, "k", TTLShort, fetch); !errors.Is(err, boom) {
		t.Fatalf("second err = %v", err)
	}
	if calls != 2 {
		t.Errorf("fetcher ran %d times, want 2", calls)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	tier2 := newFakeTier2()
	tier2.setFailing(true)
	c := NewTwoTier(newTestLocal(), tier2)
	defer c.Close()

	// each read attempts a tier-2 get and a tier-2 set: 2 failures per loop
	for i := 0; i < 5; i++ {
		key := Keys.ComplexDetail(string(rune('a' + i)))
		if _, err := GetCached(ctx, c, key, TTLShort, func(context.Context) (payload, error) {
			return payload{Value: "v"}, nil
		}); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
	}
	if c.Tier2Available() {
		t.Error("breaker still closed after repeated tier-2 failures")
	}

	// reads keep working while the breaker is open
	tier2.mu.Lock()
	before := tier2.gets
	tier2.mu.Unlock()
	if _, err := GetCached(ctx, c, "complex:zz", TTLShort, func(context.Context) (payload, error) {
		return payload{Value: "v"}, nil
	}); err != nil {
		t.Fatalf("read with open breaker: %v", err)
	}
	tier2.mu.Lock()
	after := tier2.gets
	tier2.mu.Unlock()
	if after != before {
		t.Errorf("tier2 still queried with open breaker: %d -> %d", before, after)
	}
}

func TestKeyBuilders(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{Keys.ComplexDetail("1001"), "complex:1001"},
		{Keys.ComplexPriceStats("1001"), "complex:1001:price_stats"},
		{Keys.ArticleList("1001", 2), "article:list:1001:2"},
		{Keys.AnalyticsTrend("1001", 7), "analytics:price_trend:1001:7d"},
		{Keys.UserFavorites("u1"), "user:u1:favorites"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("key = %q, want %q", tt.got, tt.want)
		}
	}
}
